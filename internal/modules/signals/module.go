package signals

import (
	bn "signal_engine/internal/modules/binance_websocket/service"
	cache "signal_engine/internal/modules/candle_cache/service"
	"signal_engine/internal/modules/config"
	"signal_engine/internal/modules/signals/service"
	"signal_engine/internal/notify"
	"signal_engine/internal/oracle"
	"signal_engine/internal/store"
	"signal_engine/pkg/metrics"

	"go.uber.org/fx"
)

// Module собирает жизненный цикл сигналов: оценка инструментов и закрытие по TP/SL.
func Module() fx.Option {
	return fx.Module("signals",
		fx.Provide(
			NewManager,
			NewCloser,
		),
	)
}

func NewManager(
	cfg *config.Config,
	c *cache.Cache,
	st store.Store,
	or oracle.Oracle,
	n notify.Notifier,
	feed *bn.Client,
	rec *metrics.Recorder,
) *service.Manager {
	var funding service.FundingSource
	if cfg.Binance.Funding {
		funding = feed
	}
	return service.NewManager(service.Options{
		Timeframes:       cfg.Binance.Timeframes,
		MinCandles:       cfg.Signals.MinCandles,
		DedupWindow:      cfg.Signals.DedupWindow,
		DedupPct:         cfg.Signals.DedupPct,
		DefaultNextCheck: cfg.Signals.DefaultNextCheck,
	}, c, st, or, n, funding, rec)
}

func NewCloser(cfg *config.Config, c *cache.Cache, st store.Store, n notify.Notifier, rec *metrics.Recorder) (*service.Closer, error) {
	policy, err := service.ParseTiePolicy(cfg.Signals.TiePolicy)
	if err != nil {
		return nil, err
	}
	return service.NewCloser(c, st, n, cfg.Signals.ClosureTimeframe, policy, rec), nil
}
