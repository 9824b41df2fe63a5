package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal_engine/internal/models"
	"signal_engine/internal/notify"
	"signal_engine/internal/store"
	"signal_engine/pkg/logger"
	"signal_engine/pkg/metrics"
)

// TiePolicy решает, что сработало первым, если свеча задела и TP, и SL.
type TiePolicy int

const (
	StopFirst TiePolicy = iota
	TargetFirst
)

func (p TiePolicy) String() string {
	if p == TargetFirst {
		return "target_first"
	}
	return "stop_first"
}

func ParseTiePolicy(s string) (TiePolicy, error) {
	switch s {
	case "", "stop_first":
		return StopFirst, nil
	case "target_first":
		return TargetFirst, nil
	}
	return StopFirst, fmt.Errorf("unknown tie policy %q", s)
}

// Resolve проходит свечи по порядку и возвращает первое касание уровня.
func Resolve(sig models.Signal, candles []models.Candle, policy TiePolicy, now time.Time) (models.Closure, bool) {
	for _, c := range candles {
		var hitTP, hitSL bool
		switch sig.Direction {
		case models.DirectionLong:
			hitTP = c.High >= sig.TakeProfit
			hitSL = c.Low <= sig.StopLoss
		case models.DirectionShort:
			hitTP = c.Low <= sig.TakeProfit
			hitSL = c.High >= sig.StopLoss
		default:
			return models.Closure{}, false
		}
		if !hitTP && !hitSL {
			continue
		}
		win := hitTP && (!hitSL || policy == TargetFirst)
		cl := models.Closure{HitTime: c.Time(), ClosedAt: now.UTC()}
		if win {
			cl.Outcome, cl.Reason, cl.HitPrice = models.OutcomeWin, models.ClosedTP, sig.TakeProfit
		} else {
			cl.Outcome, cl.Reason, cl.HitPrice = models.OutcomeLoss, models.ClosedSL, sig.StopLoss
		}
		return cl, true
	}
	return models.Closure{}, false
}

// Closer закрывает открытые сигналы по свечам таймфрейма закрытия.
type Closer struct {
	cache     CandleSource
	store     store.Store
	notifier  notify.Notifier
	metrics   *metrics.Recorder
	timeframe string
	policy    TiePolicy
}

func NewCloser(cache CandleSource, st store.Store, notifier notify.Notifier, timeframe string, policy TiePolicy, rec *metrics.Recorder) *Closer {
	if notifier == nil {
		notifier = notify.Log{}
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Closer{
		cache:     cache,
		store:     st,
		notifier:  notifier,
		metrics:   rec,
		timeframe: timeframe,
		policy:    policy,
	}
}

func (c *Closer) Policy() TiePolicy { return c.policy }

// Run: один проход закрытия. Возвращает число закрытых сигналов.
func (c *Closer) Run(ctx context.Context, now time.Time) (int, error) {
	open, err := c.store.ListOpenSignals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open signals: %w", err)
	}

	closed := 0
	for i := range open {
		sig := open[i]
		if !sig.HasLevels() {
			continue
		}
		candles := c.cache.Since(sig.Symbol, c.timeframe, sig.CreatedAt.UnixMilli())
		cl, ok := Resolve(sig, candles, c.policy, now)
		if !ok {
			continue
		}

		err := c.store.CloseSignal(ctx, sig.ID, cl)
		switch {
		case errors.Is(err, store.ErrAlreadyClosed):
			logger.Debug("[CLOSE] %s already closed", sig.ID)
			continue
		case err != nil:
			logger.Error("[CLOSE] %s %s: %v", sig.Symbol, sig.ID, err)
			continue
		}

		closed++
		c.metrics.SignalClosed(string(cl.Outcome))
		logger.Info("[CLOSE] %s %s %s by %s at %v", sig.Symbol, sig.Direction, cl.Outcome, cl.Reason, cl.HitPrice)
		notify.Sendf(ctx, c.notifier, "%s", CloseLine(&sig, cl))
	}
	return closed, nil
}
