package oracle

import (
	"fmt"
	"strings"

	"signal_engine/internal/modules/config"
	"signal_engine/internal/oracle"
	"signal_engine/pkg/circuit"
	"signal_engine/pkg/logger"
	"signal_engine/pkg/metrics"

	"go.uber.org/fx"
)

// Module выбирает провайдера решений и оборачивает его в Guard.
func Module() fx.Option {
	return fx.Module("oracle",
		fx.Provide(
			NewOracle,
		),
	)
}

func NewOracle(cfg *config.Config, rec *metrics.Recorder) (oracle.Oracle, error) {
	oc := cfg.Oracle
	next := cfg.Signals.DefaultNextCheck

	var inner oracle.Oracle
	switch strings.ToLower(oc.Provider) {
	case "", "rules":
		inner = oracle.NewRules(oc.StopPct, oc.RewardRisk, next)
	case "openai":
		if oc.APIKey == "" {
			logger.Warn("[ORACLE] provider=openai without api key, relying on base_url auth")
		}
		inner = oracle.NewOpenAI(oc.BaseURL, oc.APIKey, oc.Model, oc.Timeout, oc.MaxRetries, next)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", oc.Provider)
	}

	logger.Info("[ORACLE] provider=%s rate=%d/min breaker=%d/%s", oc.Provider, oc.RatePerMinute, oc.BreakerThreshold, oc.BreakerTimeout)
	br := circuit.New("oracle", oc.BreakerThreshold, oc.BreakerTimeout)
	return oracle.NewGuard(inner, oc.RatePerMinute, br, next, rec), nil
}
