package oracle

import (
	"context"
	"fmt"
	"time"

	"signal_engine/internal/models"
	"signal_engine/pkg/circuit"
	"signal_engine/pkg/metrics"

	"golang.org/x/time/rate"
)

// Guard ограничивает частоту вызовов, размыкает цепь при сериях ошибок
// и всегда отдаёт валидный Decision: при любой ошибке это NoTrade(DefaultNext).
type Guard struct {
	inner       Oracle
	limiter     *rate.Limiter
	breaker     *circuit.Breaker
	metrics     *metrics.Recorder
	DefaultNext time.Duration
	MaxWait     time.Duration
}

func NewGuard(inner Oracle, perMinute int, breaker *circuit.Breaker, defaultNext time.Duration, rec *metrics.Recorder) *Guard {
	if perMinute <= 0 {
		perMinute = 30
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Guard{
		inner:       inner,
		limiter:     rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		breaker:     breaker,
		metrics:     rec,
		DefaultNext: defaultNext,
		MaxWait:     5 * time.Second,
	}
}

func (g *Guard) Decide(ctx context.Context, req Request) (d models.Decision, err error) {
	if g.breaker != nil && !g.breaker.Allow() {
		g.metrics.OracleCall("breaker_open")
		return models.NoTradeDecision(g.DefaultNext), ErrBreakerOpen
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.MaxWait)
	defer cancel()
	if err := g.limiter.Wait(waitCtx); err != nil {
		g.metrics.OracleCall("rate_limited")
		return models.NoTradeDecision(g.DefaultNext), ErrRateLimited
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("oracle panic: %v", p)
		}
		if err != nil {
			if g.breaker != nil {
				g.breaker.RecordFailure()
			}
			g.metrics.OracleCall("error")
			d = models.NoTradeDecision(g.DefaultNext)
			return
		}
		if g.breaker != nil {
			g.breaker.RecordSuccess()
		}
		if d.IsTrade() {
			g.metrics.OracleCall("trade")
		} else {
			g.metrics.OracleCall("no_trade")
			if d.NextCheck <= 0 {
				d.NextCheck = g.DefaultNext
			}
		}
	}()

	return g.inner.Decide(ctx, req)
}
