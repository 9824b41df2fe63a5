package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const combinedFrame = `{"stream":"btcusdt@kline_5m","data":{"e":"kline","E":1700000001000,"s":"BTCUSDT",
"k":{"t":1700000000000,"T":1700000299999,"s":"BTCUSDT","i":"5m","o":"100.5","c":"101.0","h":"102.0","l":"99.5","v":"12.5","x":false}}}`

func TestParseKlineCombined(t *testing.T) {
	u, reason, ok := ParseKline([]byte(combinedFrame))
	require.True(t, ok, reason)

	assert.Equal(t, "BTCUSDT", u.Symbol)
	assert.Equal(t, "5m", u.Interval)
	assert.Equal(t, int64(1700000000000), u.Candle.Timestamp)
	assert.Equal(t, 100.5, u.Candle.Open)
	assert.Equal(t, 102.0, u.Candle.High)
	assert.Equal(t, 99.5, u.Candle.Low)
	assert.Equal(t, 101.0, u.Candle.Close)
	assert.Equal(t, 12.5, u.Candle.Volume)
	assert.False(t, u.Closed)
}

func TestParseKlineRejectsPartial(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{"stream":`},
		{"no kline", `{"e":"aggTrade","s":"BTCUSDT"}`},
		{"no symbol", `{"k":{"t":1,"i":"5m","o":"1","h":"1","l":"1","c":"1","v":"1"}}`},
		{"no interval", `{"s":"BTCUSDT","k":{"t":1,"o":"1","h":"1","l":"1","c":"1","v":"1"}}`},
		{"no timestamp", `{"s":"BTCUSDT","k":{"i":"5m","o":"1","h":"1","l":"1","c":"1","v":"1"}}`},
		{"no volume", `{"s":"BTCUSDT","k":{"t":1,"i":"5m","o":"1","h":"1","l":"1","c":"1"}}`},
		{"bad close", `{"s":"BTCUSDT","k":{"t":1,"i":"5m","o":"1","h":"1","l":"1","c":"abc","v":"1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, reason, ok := ParseKline([]byte(tt.frame))
			assert.False(t, ok)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestIngestCountsDropped(t *testing.T) {
	c := NewCache(10, nil)

	assert.True(t, c.Ingest([]byte(combinedFrame)))
	assert.False(t, c.Ingest([]byte(`garbage`)))
	assert.False(t, c.Ingest([]byte(`{"s":"BTCUSDT","k":{"t":1,"i":"5m"}}`)))

	// повтор того же интервала заменяет свечу
	assert.True(t, c.Ingest([]byte(combinedFrame)))

	st := c.Stats()
	assert.Equal(t, int64(2), st.Dropped)
	assert.Equal(t, int64(2), st.Ingested)
	assert.Equal(t, int64(1), st.Replaced)
	assert.Len(t, c.Window("BTCUSDT", "5m"), 1)
}
