package observability

import (
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Invoke(ensureMetrics),
)

func ensureMetrics(cfg config.Config) {
	metrics.WithConfig(metrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}
