package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal_engine/internal/models"
	cache "signal_engine/internal/modules/candle_cache/service"
	"signal_engine/internal/notify"
	"signal_engine/internal/store"
	"signal_engine/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fiveMinMs = int64(5 * time.Minute / time.Millisecond)

func openSignal(t *testing.T, st store.Store, dir models.Direction, entry, sl, tp float64) models.Signal {
	t.Helper()
	sig := &models.Signal{
		ID: "sig-" + string(dir), Symbol: "BTCUSDT", Direction: dir, Entry: entry,
		StopLoss: sl, TakeProfit: tp, Confidence: 80, Timeframe: "1h", CreatedAt: now,
	}
	ok, err := st.InsertSignal(context.Background(), sig)
	require.NoError(t, err)
	require.True(t, ok)
	return *sig
}

// after: свечи 5m начиная с момента создания сигнала.
func after(candles ...models.Candle) []models.Candle {
	for i := range candles {
		candles[i].Timestamp = now.UnixMilli() + int64(i)*fiveMinMs
	}
	return candles
}

func TestResolve(t *testing.T) {
	long := models.Signal{Direction: models.DirectionLong, Entry: 100, StopLoss: 99, TakeProfit: 102}
	short := models.Signal{Direction: models.DirectionShort, Entry: 100, StopLoss: 101, TakeProfit: 98}

	cases := []struct {
		name    string
		sig     models.Signal
		candles []models.Candle
		policy  TiePolicy
		ok      bool
		outcome models.Outcome
		reason  models.ClosedReason
		price   float64
	}{
		{
			name: "long take profit", sig: long, policy: StopFirst, ok: true,
			candles: after(bar(100, 101, 99.5, 100.5), bar(100.5, 102.5, 100, 102)),
			outcome: models.OutcomeWin, reason: models.ClosedTP, price: 102,
		},
		{
			name: "long stop", sig: long, policy: StopFirst, ok: true,
			candles: after(bar(100, 100.5, 98.9, 99)),
			outcome: models.OutcomeLoss, reason: models.ClosedSL, price: 99,
		},
		{
			name: "long both in one candle stop first", sig: long, policy: StopFirst, ok: true,
			candles: after(bar(100, 102.5, 98.5, 101)),
			outcome: models.OutcomeLoss, reason: models.ClosedSL, price: 99,
		},
		{
			name: "long both in one candle target first", sig: long, policy: TargetFirst, ok: true,
			candles: after(bar(100, 102.5, 98.5, 101)),
			outcome: models.OutcomeWin, reason: models.ClosedTP, price: 102,
		},
		{
			name: "short take profit", sig: short, policy: StopFirst, ok: true,
			candles: after(bar(100, 100.5, 97.5, 98)),
			outcome: models.OutcomeWin, reason: models.ClosedTP, price: 98,
		},
		{
			name: "short both stop first", sig: short, policy: StopFirst, ok: true,
			candles: after(bar(100, 101.5, 97.5, 98)),
			outcome: models.OutcomeLoss, reason: models.ClosedSL, price: 101,
		},
		{
			name: "unresolved", sig: long, policy: StopFirst,
			candles: after(bar(100, 101, 99.5, 100), bar(100, 101.9, 99.1, 101)),
		},
		{name: "no candles", sig: long, policy: StopFirst},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cl, ok := Resolve(tc.sig, tc.candles, tc.policy, now.Add(time.Hour))
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.outcome, cl.Outcome)
			assert.Equal(t, tc.reason, cl.Reason)
			assert.Equal(t, tc.price, cl.HitPrice)
			assert.True(t, cl.ClosedAt.Equal(now.Add(time.Hour)))
		})
	}
}

func TestCloser_RunClosesOnceAndCountsStats(t *testing.T) {
	st := memory.New()
	win := openSignal(t, st, models.DirectionLong, 100, 99, 102)

	c := cache.NewCache(100, nil)
	// свеча до создания сигнала не учитывается
	early := bar(100, 103, 100, 102)
	early.Timestamp = now.UnixMilli() - fiveMinMs
	c.Put("BTCUSDT", "5m", early)
	c.PutHistory("BTCUSDT", "5m", after(bar(100, 101, 99.5, 100.5), bar(100.5, 102.5, 100.2, 102.2)))

	alerts := &notify.Recorder{}
	closer := NewCloser(c, st, alerts, "5m", StopFirst, nil)

	n, err := closer.Run(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := st.Get(win.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusClosed, got.Status)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, models.OutcomeWin, *got.Outcome)
	require.NotNil(t, got.HitTime)
	assert.Equal(t, now.Add(5*time.Minute).UnixMilli(), got.HitTime.UnixMilli())
	assert.Equal(t, []string{"BTCUSDT | LONG | 1h | WIN (tp) @ 102"}, alerts.Messages())

	// повторный проход ничего не меняет
	n, err = closer.Run(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	st2, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Wins: 1, Total: 1, WinRate: 100}, st2)
}

func TestCloser_TieIsLossByDefault(t *testing.T) {
	st := memory.New()
	sig := openSignal(t, st, models.DirectionLong, 100, 99, 102)

	c := cache.NewCache(100, nil)
	c.PutHistory("BTCUSDT", "5m", after(bar(100, 102.5, 98.5, 101)))

	n, err := NewCloser(c, st, nil, "5m", StopFirst, nil).Run(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, _ := st.Get(sig.ID)
	assert.Equal(t, models.OutcomeLoss, *got.Outcome)
	assert.Equal(t, models.ClosedSL, *got.ClosedReason)
	assert.Equal(t, 99.0, *got.HitPrice)
}

func TestCloser_SkipsUnresolvedAndLevelless(t *testing.T) {
	st := memory.New()
	openSignal(t, st, models.DirectionLong, 100, 99, 102)
	_, err := st.InsertSignal(context.Background(), &models.Signal{
		ID: "no-levels", Symbol: "BTCUSDT", Direction: models.DirectionShort, Entry: 100, Timeframe: "1h", CreatedAt: now,
	})
	require.NoError(t, err)

	c := cache.NewCache(100, nil)
	c.PutHistory("BTCUSDT", "5m", after(bar(100, 101, 99.5, 100)))

	n, err := NewCloser(c, st, nil, "5m", StopFirst, nil).Run(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	open, err := st.ListOpenSignals(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestCloser_ConcurrentCloseIsBenign(t *testing.T) {
	st := memory.New()
	openSignal(t, st, models.DirectionLong, 100, 99, 102)

	c := cache.NewCache(100, nil)
	c.PutHistory("BTCUSDT", "5m", after(bar(100, 100.5, 98.9, 99)))
	alerts := &notify.Recorder{}
	closer := NewCloser(c, st, alerts, "5m", StopFirst, nil)

	const workers = 8
	var (
		wg    sync.WaitGroup
		total atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := closer.Run(context.Background(), now.Add(time.Hour))
			assert.NoError(t, err)
			total.Add(int64(n))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), total.Load())
	assert.Len(t, alerts.Messages(), 1)
	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Losses)
}

func TestParseTiePolicy(t *testing.T) {
	p, err := ParseTiePolicy("target_first")
	require.NoError(t, err)
	assert.Equal(t, TargetFirst, p)

	p, err = ParseTiePolicy("")
	require.NoError(t, err)
	assert.Equal(t, StopFirst, p)

	_, err = ParseTiePolicy("random")
	assert.Error(t, err)
}
