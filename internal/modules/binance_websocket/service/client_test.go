package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal_engine/internal/models"
	"signal_engine/internal/modules/config"
	health "signal_engine/internal/modules/health/service"
	"signal_engine/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, wsURL, restURL string) (*Client, *health.State) {
	t.Helper()
	logger.InitNop()

	cfg := config.Default()
	cfg.Binance.WSURL = wsURL
	cfg.Binance.RESTURL = restURL
	cfg.Binance.Symbols = []string{"BTCUSDT"}
	cfg.Binance.Timeframes = []string{"5m"}
	cfg.Signals.ClosureTimeframe = "5m"

	state := health.NewState()
	c := NewClient(&cfg, state, nil)
	c.minBackoff = 10 * time.Millisecond
	c.maxBackoff = 20 * time.Millisecond
	return c, state
}

func TestCombinedURL(t *testing.T) {
	url, err := combinedURL("wss://fstream.binance.com/", []string{"BTCUSDT", "ethusdt"}, []string{"5m", "1H", "5m"})
	require.NoError(t, err)
	assert.Equal(t,
		"wss://fstream.binance.com/stream?streams=btcusdt@kline_5m/btcusdt@kline_1h/ethusdt@kline_5m/ethusdt@kline_1h",
		url)

	_, err = combinedURL("", nil, []string{"5m"})
	assert.Error(t, err)
}

func TestNextDelayIsBounded(t *testing.T) {
	d := time.Second
	for i := 0; i < 10; i++ {
		d = nextDelay(d, 30*time.Second)
	}
	assert.Equal(t, 30*time.Second, d)
	assert.Equal(t, time.Second, nextDelay(0, 30*time.Second))
}

func TestStreamReconnectsAndResubscribes(t *testing.T) {
	var (
		connects atomic.Int32
		mu       sync.Mutex
		queries  []string
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("streams"))
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connects.Add(1)
		frame := `{"stream":"btcusdt@kline_5m","data":{"s":"BTCUSDT","k":{"t":1,"i":"5m","o":"1","h":"2","l":"0.5","c":"1.5","v":"3"}}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"broken"`))
		// обрываем соединение, клиент должен переподключиться
	}))
	defer srv.Close()

	c, state := testClient(t, "ws"+strings.TrimPrefix(srv.URL, "http"), srv.URL)

	var frames atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Stream(ctx, func(raw []byte) bool {
			frames.Add(1)
			return true
		})
	}()

	require.Eventually(t, func() bool { return connects.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}

	assert.GreaterOrEqual(t, frames.Load(), int32(2))
	assert.GreaterOrEqual(t, c.Stats().Reconnects, int64(1))
	assert.False(t, state.WSConnected())
	assert.False(t, state.LastTick().IsZero())

	mu.Lock()
	defer mu.Unlock()
	for _, q := range queries {
		assert.Equal(t, "btcusdt@kline_5m", q)
	}
}

type historySink struct {
	got map[string][]models.Candle
	mu  sync.Mutex
}

func (h *historySink) PutHistory(symbol, interval string, candles []models.Candle) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got[models.Key(symbol, interval)] = candles
	return len(candles)
}

func TestWarmupAndFundingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/fapi/v1/klines":
			_, _ = w.Write([]byte(`[
[1700000000000,"100","105","95","102","10",1700000299999,"0",1,"0","0","0"],
[1700000300000,"102","103","101","101.5","12",1700000599999,"0",1,"0","0","0"]]`))
		case "/fapi/v1/premiumIndex":
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"100","lastFundingRate":"0.0001","nextFundingTime":0,"time":0}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, _ := testClient(t, "ws://unused", srv.URL)

	sink := &historySink{got: map[string][]models.Candle{}}
	require.NoError(t, c.Warmup(context.Background(), sink))

	got := sink.got["BTCUSDT@5m"]
	require.Len(t, got, 2)
	assert.Equal(t, int64(1700000000000), got[0].Timestamp)
	assert.Equal(t, 105.0, got[0].High)
	assert.Equal(t, 12.0, got[1].Volume)

	rate, err := c.FundingRate(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, rate, 1e-12)
}
