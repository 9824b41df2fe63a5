// Package oracle: граница с внешним «решателем»: по сводке рынка возвращает NoTrade или Trade.
package oracle

import (
	"context"
	"errors"
	"sort"
	"time"

	"signal_engine/internal/models"
)

var (
	ErrEmptyResponse = errors.New("oracle: empty response")
	ErrMalformed     = errors.New("oracle: malformed response")
	ErrBreakerOpen   = errors.New("oracle: circuit open")
	ErrRateLimited   = errors.New("oracle: rate limited")
)

// Request: структурированная сводка по инструменту.
type Request struct {
	Symbol       string
	Windows      map[string][]models.Candle
	Patterns     []models.PatternSignal
	Confluence   models.ConfluenceResult
	PerTimeframe []models.ConfluenceResult
	FundingRate  *float64
	Now          time.Time
}

// Timeframes: таймфреймы запроса от младшего к старшему.
func (r Request) Timeframes() []string {
	out := make([]string, 0, len(r.Windows))
	for tf := range r.Windows {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool {
		return models.IntervalDuration(out[i]) < models.IntervalDuration(out[j])
	})
	return out
}

// LastClose: close последней свечи младшего таймфрейма.
func (r Request) LastClose() (float64, bool) {
	for _, tf := range r.Timeframes() {
		if w := r.Windows[tf]; len(w) > 0 {
			return w[len(w)-1].Close, true
		}
	}
	return 0, false
}

// Oracle при ошибке обязан вернуть валидный NoTrade вместе с err.
type Oracle interface {
	Decide(ctx context.Context, req Request) (models.Decision, error)
}

// Func: адаптер функции к Oracle.
type Func func(ctx context.Context, req Request) (models.Decision, error)

func (f Func) Decide(ctx context.Context, req Request) (models.Decision, error) { return f(ctx, req) }
