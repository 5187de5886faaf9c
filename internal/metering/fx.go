package metering

import (
	"github.com/badrx15/creavisionbot/internal/metering/service"
	"go.uber.org/fx"
)

var Module = fx.Module("metering.service",
	fx.Provide(service.NewService),
)
