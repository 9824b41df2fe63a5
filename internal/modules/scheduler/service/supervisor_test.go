package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal_engine/internal/models"
	bn "signal_engine/internal/modules/binance_websocket/service"
	cache "signal_engine/internal/modules/candle_cache/service"
	signals "signal_engine/internal/modules/signals/service"
	"signal_engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	m.Run()
}

const frame = `{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1700000000000,"i":"1m","o":"1","h":"2","l":"0.5","c":"1.5","v":"10"}}}`

type fakeFeed struct {
	warmed    atomic.Bool
	streamErr error
}

func (f *fakeFeed) Warmup(_ context.Context, sink bn.HistorySink) error {
	sink.PutHistory("BTCUSDT", "1h", []models.Candle{{Open: 1, High: 2, Low: 0.5, Close: 1.5, Timestamp: 1}})
	f.warmed.Store(true)
	return errors.New("one pair failed")
}

func (f *fakeFeed) Stream(ctx context.Context, sink func([]byte) bool) error {
	if f.streamErr != nil {
		return f.streamErr
	}
	sink([]byte(frame))
	<-ctx.Done()
	return nil
}

type countingEval struct {
	mu      sync.Mutex
	symbols []string
	ctxErr  error
}

func (e *countingEval) Evaluate(ctx context.Context, symbol string, _ time.Time) (signals.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.symbols = append(e.symbols, symbol)
	if ctx.Err() != nil {
		e.ctxErr = ctx.Err()
	}
	return signals.OutcomeNoTrade, nil
}

func (e *countingEval) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.symbols)
}

type countingCloser struct{ runs atomic.Int32 }

func (c *countingCloser) Run(context.Context, time.Time) (int, error) {
	c.runs.Add(1)
	return 0, nil
}

type readyFlag struct{ v atomic.Bool }

func (r *readyFlag) SetReady(v bool) { r.v.Store(v) }

func TestSupervisor_RunsAllTasksAndStops(t *testing.T) {
	feed := &fakeFeed{}
	c := cache.NewCache(100, nil)
	eval := &countingEval{}
	closer := &countingCloser{}
	ready := &readyFlag{}

	s := NewSupervisor(Options{
		Symbols:     []string{"BTCUSDT", "ETHUSDT"},
		DetectEvery: 5 * time.Millisecond,
		CloseEvery:  5 * time.Millisecond,
		Warmup:      true,
	}, feed, c, eval, closer, ready, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	assert.Eventually(t, func() bool {
		return eval.calls() >= 4 && closer.runs.Load() >= 2 && ready.v.Load()
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, feed.warmed.Load())
	assert.Len(t, c.Window("BTCUSDT", "1h"), 1)
	assert.Len(t, c.Window("BTCUSDT", "1m"), 1)

	s.Stop()
	require.NoError(t, s.Wait())
	assert.False(t, ready.v.Load())

	eval.mu.Lock()
	defer eval.mu.Unlock()
	assert.NoError(t, eval.ctxErr)
}

type blockingEval struct {
	entered atomic.Bool
	err     atomic.Value
}

func (e *blockingEval) Evaluate(ctx context.Context, _ string, _ time.Time) (signals.Outcome, error) {
	e.entered.Store(true)
	<-ctx.Done()
	e.err.Store(ctx.Err())
	return signals.OutcomeOracleError, nil
}

func TestSupervisor_StuckCycleIsBoundedOnStop(t *testing.T) {
	eval := &blockingEval{}
	s := NewSupervisor(Options{
		Symbols:      []string{"BTCUSDT"},
		DetectEvery:  5 * time.Millisecond,
		CloseEvery:   time.Hour,
		CycleTimeout: 50 * time.Millisecond,
	}, &fakeFeed{}, cache.NewCache(10, nil), eval, &countingCloser{}, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, eval.entered.Load, time.Second, 5*time.Millisecond)

	s.Stop()
	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stuck cycle held the supervisor after Stop")
	}
	assert.ErrorIs(t, eval.err.Load().(error), context.DeadlineExceeded)
}

func TestSupervisor_FatalStreamErrorStopsEverything(t *testing.T) {
	feed := &fakeFeed{streamErr: errors.New("bad url")}
	s := NewSupervisor(Options{Symbols: []string{"BTCUSDT"}, DetectEvery: time.Hour, CloseEvery: time.Hour},
		feed, cache.NewCache(10, nil), &countingEval{}, &countingCloser{}, nil, nil)

	require.NoError(t, s.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	select {
	case err := <-done:
		assert.EqualError(t, err, "bad url")
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after fatal stream error")
	}
	assert.False(t, feed.warmed.Load())
}

func TestSupervisor_WaitBeforeStart(t *testing.T) {
	s := NewSupervisor(Options{}, &fakeFeed{}, cache.NewCache(10, nil), &countingEval{}, &countingCloser{}, nil, nil)
	assert.NoError(t, s.Wait())
	s.Stop()
}
