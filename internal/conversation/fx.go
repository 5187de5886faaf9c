package conversation

import (
	"github.com/badrx15/creavisionbot/internal/conversation/repository"
	"github.com/badrx15/creavisionbot/internal/conversation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("conversation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
