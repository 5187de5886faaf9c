package completion

import "go.uber.org/fx"

var Module = fx.Module("completion",
	fx.Provide(NewService),
)
