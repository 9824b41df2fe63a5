package telegram

import (
	"context"

	cache "signal_engine/internal/modules/candle_cache/service"
	"signal_engine/internal/modules/config"
	health "signal_engine/internal/modules/health/service"
	"signal_engine/internal/modules/telegram_bot/service"
	"signal_engine/internal/notify"
	"signal_engine/internal/store"
	"signal_engine/pkg/logger"

	"go.uber.org/fx"
)

// Module: приёмник алертов. Без токена алерты уходят в лог.
func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewNotifier,
		),
	)
}

func NewNotifier(lc fx.Lifecycle, cfg *config.Config, state *health.State, c *cache.Cache, st store.Store) (notify.Notifier, error) {
	if cfg.Telegram.Token == "" {
		logger.Warn("[TG] token is empty, alerts go to log")
		return notify.Log{}, nil
	}

	t, err := service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Binance.Symbols, state, c, st)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			t.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			t.Stop()
			return nil
		},
	})
	return t, nil
}
