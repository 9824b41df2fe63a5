package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"signal_engine/internal/confluence"
	"signal_engine/internal/models"
	"signal_engine/internal/notify"
	"signal_engine/internal/oracle"
	"signal_engine/internal/patterns"
	"signal_engine/internal/store"
	"signal_engine/pkg/logger"
	"signal_engine/pkg/metrics"

	"github.com/google/uuid"
)

// Outcome: итог одной оценки инструмента.
type Outcome string

const (
	OutcomeSkipped      Outcome = "skipped"
	OutcomeInsufficient Outcome = "insufficient"
	OutcomeNoTrade      Outcome = "no_trade"
	OutcomeOracleError  Outcome = "oracle_error"
	OutcomeSuppressed   Outcome = "suppressed"
	OutcomeEmitted      Outcome = "emitted"
)

// CandleSource: чтение окон из кэша свечей.
type CandleSource interface {
	Window(symbol, interval string) []models.Candle
	Since(symbol, interval string, fromMs int64) []models.Candle
}

// FundingSource: контекст ставки финансирования, best effort.
type FundingSource interface {
	FundingRate(ctx context.Context, symbol string) (float64, error)
}

type Options struct {
	Timeframes       []string
	MinCandles       int
	DedupWindow      time.Duration
	DedupPct         float64
	DefaultNextCheck time.Duration
}

type Manager struct {
	opts     Options
	cache    CandleSource
	store    store.Store
	oracle   oracle.Oracle
	notifier notify.Notifier
	funding  FundingSource
	metrics  *metrics.Recorder

	newID func() string
}

func NewManager(
	opts Options,
	cache CandleSource,
	st store.Store,
	or oracle.Oracle,
	notifier notify.Notifier,
	funding FundingSource,
	rec *metrics.Recorder,
) *Manager {
	if opts.MinCandles <= 0 {
		opts.MinCandles = 10
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 5 * time.Minute
	}
	if opts.DedupPct <= 0 {
		opts.DedupPct = 0.2
	}
	if opts.DefaultNextCheck <= 0 {
		opts.DefaultNextCheck = time.Hour
	}
	if notifier == nil {
		notifier = notify.Log{}
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Manager{
		opts:     opts,
		cache:    cache,
		store:    st,
		oracle:   or,
		notifier: notifier,
		funding:  funding,
		metrics:  rec,
		newID:    uuid.NewString,
	}
}

// Evaluate проводит инструмент через cooldown, детекцию, оракул, дедуп и сохранение.
func (m *Manager) Evaluate(ctx context.Context, symbol string, now time.Time) (out Outcome, err error) {
	defer func() {
		if err == nil {
			m.metrics.Evaluation(string(out))
		}
	}()

	ctrl, err := m.store.GetControl(ctx, symbol)
	switch {
	case err == nil:
		if now.Before(ctrl.NextCheckAt) {
			return OutcomeSkipped, nil
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return "", fmt.Errorf("get control %s: %w", symbol, err)
	}

	windows := make(map[string][]models.Candle, len(m.opts.Timeframes))
	for _, tf := range m.opts.Timeframes {
		if w := m.cache.Window(symbol, tf); len(w) >= m.opts.MinCandles {
			windows[tf] = w
		}
	}
	if len(windows) == 0 {
		logger.Debug("[DETECT] %s: not enough candles", symbol)
		return OutcomeInsufficient, nil
	}

	req := oracle.Request{Symbol: symbol, Windows: windows, Now: now}
	for _, tf := range req.Timeframes() {
		req.Patterns = append(req.Patterns, patterns.DetectAll(windows[tf], symbol, tf)...)
	}
	req.PerTimeframe = confluence.ResolveAll(symbol, req.Patterns)
	req.Confluence = confluence.Resolve(symbol, confluence.Label, req.Patterns)
	if m.funding != nil {
		if rate, err := m.funding.FundingRate(ctx, symbol); err == nil {
			req.FundingRate = &rate
		} else {
			logger.Debug("[DETECT] %s: funding rate unavailable: %v", symbol, err)
		}
	}

	logger.Debug("[DETECT] %s: %d patterns, bias=%s (bull=%d bear=%d)",
		symbol, len(req.Patterns), req.Confluence.Resolved, req.Confluence.Bullish, req.Confluence.Bearish)

	decision, oerr := m.oracle.Decide(ctx, req)
	if oerr != nil {
		logger.Warn("[ORACLE] %s: %v", symbol, oerr)
		return OutcomeOracleError, m.control(ctx, symbol, now, m.opts.DefaultNextCheck, models.ControlOracleError, oerr.Error())
	}

	if !decision.IsTrade() {
		return OutcomeNoTrade, m.control(ctx, symbol, now, m.delay(decision), models.ControlNoTrade, "")
	}

	plan := *decision.Plan
	if err := plan.Validate(); err != nil {
		logger.Warn("[DETECT] %s: rejected plan: %v", symbol, err)
		return OutcomeNoTrade, m.control(ctx, symbol, now, m.delay(decision), models.ControlNoTrade, "invalid plan: "+err.Error())
	}
	if plan.Timeframe == "" {
		plan.Timeframe = confluence.Label
	}

	dup, err := m.isDuplicate(ctx, symbol, plan, now)
	if err != nil {
		return "", err
	}
	if dup {
		logger.Info("[DETECT] %s: duplicate %s @ %v suppressed", symbol, plan.Direction, plan.Entry)
		return OutcomeSuppressed, m.control(ctx, symbol, now, m.delay(decision), models.ControlTrade, "duplicate")
	}

	sig := &models.Signal{
		ID:         m.newID(),
		Symbol:     symbol,
		Direction:  plan.Direction,
		Entry:      plan.Entry,
		StopLoss:   plan.StopLoss,
		TakeProfit: plan.TakeProfit,
		Confidence: plan.Confidence,
		Timeframe:  plan.Timeframe,
		Rationale:  plan.Thesis,
		Patterns:   req.Patterns,
		CreatedAt:  now.UTC(),
		Status:     models.StatusOpen,
	}
	inserted, err := m.store.InsertSignal(ctx, sig)
	if err != nil {
		return "", fmt.Errorf("insert signal %s: %w", symbol, err)
	}
	if !inserted {
		logger.Info("[DETECT] %s: signal %s already stored", symbol, sig.DedupKey())
		return OutcomeSuppressed, m.control(ctx, symbol, now, m.delay(decision), models.ControlTrade, "duplicate")
	}

	if err := m.control(ctx, symbol, now, m.delay(decision), models.ControlTrade, sig.ID); err != nil {
		return "", err
	}
	logger.Info("[DETECT] new signal %s %s entry=%v sl=%v tp=%v conf=%d",
		sig.Symbol, sig.Direction, sig.Entry, sig.StopLoss, sig.TakeProfit, sig.Confidence)
	notify.Sendf(ctx, m.notifier, "%s", AlertLine(sig))
	return OutcomeEmitted, nil
}

// isDuplicate: тот же инструмент и направление, моложе окна, вход в пределах DedupPct процентов.
func (m *Manager) isDuplicate(ctx context.Context, symbol string, plan models.TradePlan, now time.Time) (bool, error) {
	prev, err := m.store.LatestSignal(ctx, symbol, plan.Direction)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("latest signal %s: %w", symbol, err)
	}
	return IsDuplicate(prev, plan.Entry, now, m.opts.DedupWindow, m.opts.DedupPct), nil
}

// IsDuplicate: чистая проверка окна дедупликации.
func IsDuplicate(prev *models.Signal, entry float64, now time.Time, window time.Duration, pct float64) bool {
	if prev == nil || prev.Entry <= 0 {
		return false
	}
	if now.Sub(prev.CreatedAt) >= window {
		return false
	}
	return math.Abs(entry-prev.Entry)/prev.Entry*100 <= pct
}

func (m *Manager) delay(d models.Decision) time.Duration {
	if d.NextCheck > 0 {
		return d.NextCheck
	}
	return m.opts.DefaultNextCheck
}

func (m *Manager) control(ctx context.Context, symbol string, now time.Time, next time.Duration, status models.ControlStatus, notes string) error {
	err := m.store.UpsertControl(ctx, models.SymbolControl{
		Symbol:      symbol,
		LastCheckAt: now.UTC(),
		NextCheckAt: now.Add(next).UTC(),
		LastStatus:  status,
		Notes:       notes,
	})
	if err != nil {
		return fmt.Errorf("upsert control %s: %w", symbol, err)
	}
	return nil
}
