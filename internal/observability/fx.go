package observability

import (
	"github.com/groupcart/groupcart/internal/config"
	"github.com/groupcart/groupcart/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		ProvideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
)

// ProvideMetricsConfig maps application config onto the metrics package.
func ProvideMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Metrics.Enabled,
		ExporterEndpoint: cfg.Metrics.Endpoint,
		ExporterProtocol: cfg.Metrics.Exporter,
		ServiceName:      cfg.AppName,
	}
}
