package main

import (
	"signal_engine/internal/modules/binance_websocket"
	"signal_engine/internal/modules/candle_cache"
	"signal_engine/internal/modules/config"
	"signal_engine/internal/modules/health"
	"signal_engine/internal/modules/oracle"
	"signal_engine/internal/modules/scheduler"
	"signal_engine/internal/modules/signals"
	"signal_engine/internal/modules/storage"
	telegram "signal_engine/internal/modules/telegram_bot"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module(),
		health.Module(),
		storage.Module(),
		candle_cache.Module(),
		binance_websocket.Module(),
		oracle.Module(),
		telegram.Module(),
		signals.Module(),
		scheduler.Module(),
	)
	app.Run()
}
