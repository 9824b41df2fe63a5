package binance_websocket

import (
	"signal_engine/internal/modules/binance_websocket/service"

	"go.uber.org/fx"
)

// Module поднимает клиент фида Binance. Сам поток запускает scheduler.
func Module() fx.Option {
	return fx.Module("binance_websocket",
		fx.Provide(
			service.NewClient,
		),
	)
}
