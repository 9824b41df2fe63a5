package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal_engine/internal/confluence"
	"signal_engine/internal/models"
)

// Rules это детерминированный оракул: торгует по сводному bias,
// стоп в StopPct процентах от входа, тейк = RewardRisk x риск.
type Rules struct {
	StopPct      float64
	RewardRisk   float64
	TradeDelay   time.Duration
	NoTradeDelay time.Duration
	MaxConf      int
}

func NewRules(stopPct, rewardRisk float64, delay time.Duration) *Rules {
	if stopPct <= 0 {
		stopPct = 1.0
	}
	if rewardRisk <= 0 {
		rewardRisk = 2.0
	}
	if delay <= 0 {
		delay = time.Hour
	}
	return &Rules{
		StopPct:      stopPct,
		RewardRisk:   rewardRisk,
		TradeDelay:   delay,
		NoTradeDelay: delay / 4,
		MaxConf:      95,
	}
}

func (r *Rules) Decide(_ context.Context, req Request) (models.Decision, error) {
	dir, ok := req.Confluence.Resolved.Direction()
	if !ok {
		return models.NoTradeDecision(r.NoTradeDelay), nil
	}
	entry, ok := req.LastClose()
	if !ok || entry <= 0 {
		return models.NoTradeDecision(r.NoTradeDelay), nil
	}

	want := models.BiasBullish
	if dir == models.DirectionShort {
		want = models.BiasBearish
	}
	var (
		sum, n int
		notes  []string
	)
	for _, p := range req.Patterns {
		if p.Bias != want {
			continue
		}
		sum += p.Confidence
		n++
		notes = append(notes, fmt.Sprintf("%s %s", p.Timeframe, p.Kind))
	}
	if n == 0 {
		return models.NoTradeDecision(r.NoTradeDelay), nil
	}
	conf := sum/n + 2*(n-1)
	if conf > r.MaxConf {
		conf = r.MaxConf
	}

	risk := entry * r.StopPct / 100
	plan := models.TradePlan{
		Direction:  dir,
		Confidence: conf,
		Entry:      entry,
		Timeframe:  r.label(req, dir),
		Thesis:     fmt.Sprintf("%d aligned patterns: %s", n, strings.Join(notes, ", ")),
	}
	if dir == models.DirectionLong {
		plan.StopLoss = entry - risk
		plan.TakeProfit = entry + r.RewardRisk*risk
	} else {
		plan.StopLoss = entry + risk
		plan.TakeProfit = entry - r.RewardRisk*risk
	}
	return models.TradeDecision(plan, r.TradeDelay), nil
}

// label: таймфреймы, согласные со сводным направлением.
func (r *Rules) label(req Request, dir models.Direction) string {
	var tfs []string
	for _, c := range req.PerTimeframe {
		if d, ok := c.Resolved.Direction(); ok && d == dir {
			tfs = append(tfs, c.Timeframe)
		}
	}
	switch len(tfs) {
	case 0:
		return confluence.Label
	case 1:
		return tfs[0]
	}
	return strings.Join(tfs, "/")
}
