package config

import (
	"context"

	"signal_engine/pkg/logger"
	"signal_engine/pkg/tracing"

	"go.uber.org/fx"
)

// Module регистрирует *Config как fx-провайдер и поднимает логгер с трейсером.
// Должен идти первым в fx.New: остальные модули логируют уже в конструкторах.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
		fx.Invoke(setupObservability),
	)
}

func setupObservability(lc fx.Lifecycle, cfg *Config) error {
	logger.SetServiceName(cfg.Service.Name)
	if err := logger.Init(cfg.Service.LogLevel); err != nil {
		return err
	}

	tracing.SetServiceName(cfg.Service.Name)
	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	logger.Info("[CONFIG] service=%s storage=%s oracle=%s symbols=%v",
		cfg.Service.Name, cfg.Storage.Driver, cfg.Oracle.Provider, cfg.Binance.Symbols)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closer()
			logger.Sync()
			return nil
		},
	})
	return nil
}
