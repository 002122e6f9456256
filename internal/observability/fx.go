package observability

import (
	"github.com/stellarwp/restrict-content-sub000/internal/observability/logger"
	"github.com/stellarwp/restrict-content-sub000/internal/observability/metrics"
	"github.com/stellarwp/restrict-content-sub000/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	fx.Invoke(tracing.NewProvider),
	fx.Provide(metrics.NewSweepMetrics),
)
