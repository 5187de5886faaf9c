package account

import (
	"github.com/badrx15/creavisionbot/internal/account/repository"
	"github.com/badrx15/creavisionbot/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
