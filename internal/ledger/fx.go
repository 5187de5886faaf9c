package ledger

import (
	"github.com/badrx15/creavisionbot/internal/ledger/repository"
	"github.com/badrx15/creavisionbot/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
