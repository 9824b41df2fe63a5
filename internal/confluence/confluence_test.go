package confluence

import (
	"testing"

	"signal_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pats(tf string, biases ...models.Bias) []models.PatternSignal {
	out := make([]models.PatternSignal, 0, len(biases))
	for _, b := range biases {
		out = append(out, models.PatternSignal{Symbol: "BTCUSDT", Timeframe: tf, Bias: b})
	}
	return out
}

func TestResolve(t *testing.T) {
	bull, bear, neu := models.BiasBullish, models.BiasBearish, models.BiasNeutral

	tests := []struct {
		name   string
		biases []models.Bias
		want   models.ResolvedBias
	}{
		{"3 vs 1", []models.Bias{bull, bull, bull, bear}, models.ResolvedLong},
		{"2 vs 2", []models.Bias{bull, bull, bear, bear}, models.ResolvedNone},
		{"bearish majority", []models.Bias{bear, bear, bull, neu}, models.ResolvedShort},
		{"empty", nil, models.ResolvedNone},
		{"neutral only", []models.Bias{neu, neu}, models.ResolvedNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve("BTCUSDT", "1h", pats("1h", tt.biases...))
			assert.Equal(t, tt.want, r.Resolved)
			assert.Equal(t, len(tt.biases), r.Bullish+r.Bearish+r.Neutral)
		})
	}
}

func TestResolveCounts(t *testing.T) {
	r := Resolve("ETHUSDT", "4h", pats("4h", models.BiasBullish, models.BiasNeutral, models.BiasBearish, models.BiasBullish))
	assert.Equal(t, models.ConfluenceResult{
		Symbol: "ETHUSDT", Timeframe: "4h",
		Bullish: 2, Bearish: 1, Neutral: 1,
		Resolved: models.ResolvedLong,
	}, r)
}

func TestResolveAllOrdersByInterval(t *testing.T) {
	var all []models.PatternSignal
	all = append(all, pats("4h", models.BiasBearish)...)
	all = append(all, pats("5m", models.BiasBullish, models.BiasBullish)...)
	all = append(all, pats("1h", models.BiasBullish, models.BiasBearish)...)

	got := ResolveAll("BTCUSDT", all)
	require.Len(t, got, 3)
	assert.Equal(t, "5m", got[0].Timeframe)
	assert.Equal(t, models.ResolvedLong, got[0].Resolved)
	assert.Equal(t, "1h", got[1].Timeframe)
	assert.Equal(t, models.ResolvedNone, got[1].Resolved)
	assert.Equal(t, "4h", got[2].Timeframe)
	assert.Equal(t, models.ResolvedShort, got[2].Resolved)
}
