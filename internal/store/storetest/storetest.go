// Package storetest: общий набор проверок для реализаций store.Store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal_engine/internal/models"
	"signal_engine/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func NewSignal(symbol string, dir models.Direction, entry float64, at time.Time) *models.Signal {
	sl, tp := entry*0.99, entry*1.02
	if dir == models.DirectionShort {
		sl, tp = entry*1.01, entry*0.98
	}
	return &models.Signal{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Direction:  dir,
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: 80,
		Timeframe:  "1h",
		Rationale:  "test",
		Patterns: []models.PatternSignal{
			{Symbol: symbol, Timeframe: "1h", Kind: models.PatternBOS, Bias: models.BiasBullish, Confidence: 80},
		},
		CreatedAt: at,
		Status:    models.StatusOpen,
	}
}

// Run прогоняет контракт Store на свежем экземпляре из factory.
func Run(t *testing.T, factory func(t *testing.T) store.Store) {
	t.Run("control", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		_, err := s.GetControl(ctx, "BTCUSDT")
		require.ErrorIs(t, err, store.ErrNotFound)

		c := models.SymbolControl{
			Symbol: "BTCUSDT", LastCheckAt: base, NextCheckAt: base.Add(time.Hour),
			LastStatus: models.ControlNoTrade, Notes: "first",
		}
		require.NoError(t, s.UpsertControl(ctx, c))
		c.LastStatus = models.ControlTrade
		c.Notes = "second"
		require.NoError(t, s.UpsertControl(ctx, c))

		got, err := s.GetControl(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, models.ControlTrade, got.LastStatus)
		assert.Equal(t, "second", got.Notes)
		assert.True(t, got.NextCheckAt.Equal(base.Add(time.Hour)))
	})

	t.Run("insert is idempotent on dedup key", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		sig := NewSignal("BTCUSDT", models.DirectionLong, 100.00001, base)
		ok, err := s.InsertSignal(ctx, sig)
		require.NoError(t, err)
		assert.True(t, ok)

		// другой id, тот же ключ после округления
		again := NewSignal("BTCUSDT", models.DirectionLong, 100.000012, base.Add(time.Minute))
		ok, err = s.InsertSignal(ctx, again)
		require.NoError(t, err)
		assert.False(t, ok)

		open, err := s.ListOpenSignals(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, sig.ID, open[0].ID)
		assert.Len(t, open[0].Patterns, 1)
	})

	t.Run("same entry in a later bucket is a new signal", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		first := NewSignal("BTCUSDT", models.DirectionLong, 100, base)
		ok, err := s.InsertSignal(ctx, first)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.CloseSignal(ctx, first.ID, models.Closure{
			Outcome: models.OutcomeWin, Reason: models.ClosedTP, HitPrice: 102, HitTime: base, ClosedAt: base,
		}))

		later := NewSignal("BTCUSDT", models.DirectionLong, 100, base.Add(72*time.Hour))
		ok, err = s.InsertSignal(ctx, later)
		require.NoError(t, err)
		assert.True(t, ok)

		open, err := s.ListOpenSignals(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, later.ID, open[0].ID)
	})

	t.Run("latest signal per direction", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		_, err := s.LatestSignal(ctx, "ETHUSDT", models.DirectionLong)
		require.ErrorIs(t, err, store.ErrNotFound)

		older := NewSignal("ETHUSDT", models.DirectionLong, 2000, base)
		newer := NewSignal("ETHUSDT", models.DirectionLong, 2010, base.Add(10*time.Minute))
		short := NewSignal("ETHUSDT", models.DirectionShort, 2020, base.Add(20*time.Minute))
		for _, sig := range []*models.Signal{older, newer, short} {
			_, err := s.InsertSignal(ctx, sig)
			require.NoError(t, err)
		}

		got, err := s.LatestSignal(ctx, "ETHUSDT", models.DirectionLong)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)
		assert.Equal(t, 2010.0, got.Entry)
	})

	t.Run("close is conditional and updates stats", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		win := NewSignal("BTCUSDT", models.DirectionLong, 100, base)
		loss := NewSignal("BTCUSDT", models.DirectionShort, 100, base)
		for _, sig := range []*models.Signal{win, loss} {
			_, err := s.InsertSignal(ctx, sig)
			require.NoError(t, err)
		}

		hit := base.Add(2 * time.Hour)
		first := models.Closure{Outcome: models.OutcomeWin, Reason: models.ClosedTP, HitPrice: 102, HitTime: hit, ClosedAt: hit}
		require.NoError(t, s.CloseSignal(ctx, win.ID, first))

		// повтор с другим исходом ничего не меняет
		second := models.Closure{Outcome: models.OutcomeLoss, Reason: models.ClosedSL, HitPrice: 99, HitTime: hit, ClosedAt: hit}
		require.ErrorIs(t, s.CloseSignal(ctx, win.ID, second), store.ErrAlreadyClosed)

		require.NoError(t, s.CloseSignal(ctx, loss.ID, models.Closure{
			Outcome: models.OutcomeLoss, Reason: models.ClosedSL, HitPrice: 101, HitTime: hit, ClosedAt: hit,
		}))

		open, err := s.ListOpenSignals(ctx)
		require.NoError(t, err)
		assert.Empty(t, open)

		got, err := s.LatestSignal(ctx, "BTCUSDT", models.DirectionLong)
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, got.Status)
		require.NotNil(t, got.Outcome)
		assert.Equal(t, models.OutcomeWin, *got.Outcome)
		require.NotNil(t, got.ClosedReason)
		assert.Equal(t, models.ClosedTP, *got.ClosedReason)
		require.NotNil(t, got.HitPrice)
		assert.Equal(t, 102.0, *got.HitPrice)

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Wins)
		assert.Equal(t, 1, st.Losses)
		assert.Equal(t, 2, st.Total)
		assert.InDelta(t, 50.0, st.WinRate, 1e-9)
	})

	t.Run("concurrent close succeeds once", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		sig := NewSignal("BTCUSDT", models.DirectionLong, 100, base)
		_, err := s.InsertSignal(ctx, sig)
		require.NoError(t, err)

		const workers = 16
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			closed    atomic.Int32
		)
		hit := base.Add(time.Hour)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CloseSignal(ctx, sig.ID, models.Closure{
					Outcome: models.OutcomeWin, Reason: models.ClosedTP, HitPrice: 102, HitTime: hit, ClosedAt: hit,
				})
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, store.ErrAlreadyClosed):
					closed.Add(1)
				default:
					t.Errorf("close: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(workers-1), closed.Load())
		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Total)
		assert.Equal(t, 1, st.Wins)
	})

	t.Run("close unknown id", func(t *testing.T) {
		s := factory(t)
		err := s.CloseSignal(context.Background(), uuid.NewString(), models.Closure{Outcome: models.OutcomeWin, Reason: models.ClosedTP})
		require.ErrorIs(t, err, store.ErrAlreadyClosed)

		st, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.Stats{}, st)
	})
}
