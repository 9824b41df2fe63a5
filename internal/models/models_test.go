package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalDedupKeyRoundsEntry(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 1, 30, 0, time.UTC)
	a := Signal{Symbol: "BTCUSDT", Direction: DirectionLong, Entry: 100.000041, Timeframe: "1h", CreatedAt: at}
	b := Signal{Symbol: "BTCUSDT", Direction: DirectionLong, Entry: 100.00004, Timeframe: "1h", CreatedAt: at.Add(time.Minute)}
	c := Signal{Symbol: "BTCUSDT", Direction: DirectionShort, Entry: 100.00004, Timeframe: "1h", CreatedAt: at}

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
	assert.Equal(t, "BTCUSDT|LONG|100|1h|1740830400", a.DedupKey())
}

func TestSignalDedupKeyExpiresWithBucket(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Signal{Symbol: "BTCUSDT", Direction: DirectionLong, Entry: 100, Timeframe: "1h", CreatedAt: at}
	next := a
	next.CreatedAt = at.Add(DedupBucket)
	later := a
	later.CreatedAt = at.Add(72 * time.Hour)

	assert.NotEqual(t, a.DedupKey(), next.DedupKey())
	assert.NotEqual(t, a.DedupKey(), later.DedupKey())
}

func TestStatsAdd(t *testing.T) {
	var s Stats
	s = s.Add(OutcomeWin)
	s = s.Add(OutcomeLoss)
	s = s.Add(OutcomeWin)
	s = s.Add(OutcomeWin)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 75.0, s.WinRate, 1e-9)
}

func TestTradePlanValidate(t *testing.T) {
	tests := []struct {
		name string
		plan TradePlan
		ok   bool
	}{
		{"long ok", TradePlan{Direction: DirectionLong, Entry: 100, StopLoss: 95, TakeProfit: 110}, true},
		{"long inverted", TradePlan{Direction: DirectionLong, Entry: 100, StopLoss: 105, TakeProfit: 110}, false},
		{"short ok", TradePlan{Direction: DirectionShort, Entry: 100, StopLoss: 105, TakeProfit: 90}, true},
		{"short inverted", TradePlan{Direction: DirectionShort, Entry: 100, StopLoss: 95, TakeProfit: 90}, false},
		{"zero entry", TradePlan{Direction: DirectionLong, StopLoss: 95, TakeProfit: 110}, false},
		{"no direction", TradePlan{Entry: 100, StopLoss: 95, TakeProfit: 110}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
