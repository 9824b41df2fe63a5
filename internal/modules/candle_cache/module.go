package candle_cache

import (
	"signal_engine/internal/modules/candle_cache/service"
	"signal_engine/internal/modules/config"
	"signal_engine/pkg/metrics"

	"go.uber.org/fx"
)

// Module отдаёт общий кэш свечей: пишет поток, читают детекция и закрытие.
func Module() fx.Option {
	return fx.Module("candle_cache",
		fx.Provide(
			func(cfg *config.Config, rec *metrics.Recorder) *service.Cache {
				return service.NewCache(cfg.Cache.Capacity, rec)
			},
		),
	)
}
