package logger

import "go.uber.org/fx"

var Module = fx.Module("observability.logger",
	fx.Provide(NewLogger),
)
