package scheduler

import (
	"context"

	bn "signal_engine/internal/modules/binance_websocket/service"
	cache "signal_engine/internal/modules/candle_cache/service"
	"signal_engine/internal/modules/config"
	health "signal_engine/internal/modules/health/service"
	"signal_engine/internal/modules/scheduler/service"
	signals "signal_engine/internal/modules/signals/service"
	"signal_engine/pkg/metrics"

	"go.uber.org/fx"
)

// Module запускает supervisor на старте приложения и дожидается его на остановке.
func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(
			NewSupervisor,
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Supervisor) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// ctx хука живёт только на время старта
					return s.Start(context.Background())
				},
				OnStop: func(ctx context.Context) error {
					s.Stop()
					return s.Wait()
				},
			})
		}),
	)
}

func NewSupervisor(
	cfg *config.Config,
	feed *bn.Client,
	c *cache.Cache,
	m *signals.Manager,
	closer *signals.Closer,
	state *health.State,
	rec *metrics.Recorder,
) *service.Supervisor {
	return service.NewSupervisor(service.Options{
		Symbols:      cfg.Binance.Symbols,
		DetectEvery:  cfg.Scheduler.DetectEvery,
		CloseEvery:   cfg.Scheduler.CloseEvery,
		CycleTimeout: cfg.Scheduler.CycleTimeout,
		Warmup:       cfg.Binance.Warmup,
	}, feed, c, m, closer, state, rec)
}
