package oracle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"signal_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestOpenAI_RetriesThenParses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "test-model", gjson.GetBytes(body, "model").String())
		assert.Contains(t, gjson.GetBytes(body, "messages.1.content").String(), "BTCUSDT")

		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` +
			"```json\\n{\\\"trade\\\":\\\"LONG\\\",\\\"entry\\\":100,\\\"stop_loss\\\":99,\\\"take_profit\\\":103,\\\"confidence\\\":70}\\n```" +
			`"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL+"/v1/", "secret", "test-model", time.Second, 2, time.Hour)
	o.sleep = func(context.Context, time.Duration) error { return nil }

	d, err := o.Decide(context.Background(), Request{
		Symbol:  "BTCUSDT",
		Windows: map[string][]models.Candle{"1h": {{Open: 1, High: 2, Low: 0.5, Close: 1.5}}},
	})
	require.NoError(t, err)
	require.True(t, d.IsTrade())
	assert.Equal(t, 103.0, d.Plan.TakeProfit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestOpenAI_BackoffStopsOnContextCancel(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "", "m", time.Second, 3, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	d, err := o.Decide(ctx, Request{Symbol: "BTCUSDT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, models.NoTradeDecision(time.Hour), d)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOpenAI_NonRetryableStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "", "m", time.Second, 3, time.Hour)
	o.sleep = func(context.Context, time.Duration) error { return nil }

	d, err := o.Decide(context.Background(), Request{Symbol: "ETHUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, models.NoTradeDecision(time.Hour), d)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOpenAI_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  "}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "", "m", time.Second, 0, time.Hour)
	_, err := o.Decide(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3", 0))
	assert.Equal(t, 800*time.Millisecond, retryAfter("", 0))
	assert.Equal(t, 1600*time.Millisecond, retryAfter("x", 1))
	assert.Equal(t, 8*time.Second, retryAfter("", 10))
}
