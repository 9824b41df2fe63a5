package oracle

import (
	"context"
	"testing"
	"time"

	"signal_engine/internal/confluence"
	"signal_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(tf string, kind models.PatternKind, bias models.Bias, conf int) models.PatternSignal {
	return models.PatternSignal{Symbol: "BTCUSDT", Timeframe: tf, Kind: kind, Bias: bias, Confidence: conf}
}

func request(patterns []models.PatternSignal, last float64) Request {
	return Request{
		Symbol: "BTCUSDT",
		Windows: map[string][]models.Candle{
			"4h": {{Close: last + 50}},
			"1h": {{Close: last - 1}, {Close: last}},
		},
		Patterns:     patterns,
		Confluence:   confluence.Resolve("BTCUSDT", confluence.Label, patterns),
		PerTimeframe: confluence.ResolveAll("BTCUSDT", patterns),
		Now:          time.Unix(1_700_000_000, 0),
	}
}

func TestRules_Long(t *testing.T) {
	r := NewRules(1, 2, time.Hour)
	ps := []models.PatternSignal{
		pattern("1h", models.PatternFVG, models.BiasBullish, 78),
		pattern("1h", models.PatternBOS, models.BiasBullish, 80),
		pattern("4h", models.PatternOrderBlock, models.BiasBullish, 77),
		pattern("4h", models.PatternLiquiditySweep, models.BiasBearish, 79),
	}

	d, err := r.Decide(context.Background(), request(ps, 100))
	require.NoError(t, err)
	require.True(t, d.IsTrade())

	p := d.Plan
	assert.Equal(t, models.DirectionLong, p.Direction)
	assert.Equal(t, 100.0, p.Entry)
	assert.InDelta(t, 99.0, p.StopLoss, 1e-9)
	assert.InDelta(t, 102.0, p.TakeProfit, 1e-9)
	// (78+80+77)/3 + 2*2
	assert.Equal(t, 82, p.Confidence)
	assert.Equal(t, "1h", p.Timeframe)
	assert.Equal(t, time.Hour, d.NextCheck)
	assert.NoError(t, p.Validate())
}

func TestRules_ShortAndLabel(t *testing.T) {
	r := NewRules(2, 1.5, time.Hour)
	ps := []models.PatternSignal{
		pattern("1h", models.PatternBOS, models.BiasBearish, 80),
		pattern("4h", models.PatternDivergence, models.BiasBearish, 81),
	}

	d, err := r.Decide(context.Background(), request(ps, 200))
	require.NoError(t, err)
	require.True(t, d.IsTrade())
	assert.Equal(t, models.DirectionShort, d.Plan.Direction)
	assert.InDelta(t, 204.0, d.Plan.StopLoss, 1e-9)
	assert.InDelta(t, 194.0, d.Plan.TakeProfit, 1e-9)
	assert.Equal(t, "1h/4h", d.Plan.Timeframe)
	assert.NoError(t, d.Plan.Validate())
}

func TestRules_NoTrade(t *testing.T) {
	r := NewRules(1, 2, time.Hour)

	// ничья
	ps := []models.PatternSignal{
		pattern("1h", models.PatternBOS, models.BiasBearish, 80),
		pattern("1h", models.PatternFVG, models.BiasBullish, 78),
	}
	d, err := r.Decide(context.Background(), request(ps, 100))
	require.NoError(t, err)
	assert.False(t, d.IsTrade())
	assert.Equal(t, 15*time.Minute, d.NextCheck)

	// нет свечей
	req := request([]models.PatternSignal{pattern("1h", models.PatternBOS, models.BiasBullish, 80)}, 100)
	req.Windows = nil
	d, err = r.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, d.IsTrade())
}

func TestRequest_LastCloseUsesShortestTimeframe(t *testing.T) {
	req := request(nil, 321)
	last, ok := req.LastClose()
	require.True(t, ok)
	assert.Equal(t, 321.0, last)
	assert.Equal(t, []string{"1h", "4h"}, req.Timeframes())
}
