package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"signal_engine/internal/models"
	bn "signal_engine/internal/modules/binance_websocket/service"
	signals "signal_engine/internal/modules/signals/service"
	"signal_engine/pkg/logger"
	"signal_engine/pkg/metrics"
	"signal_engine/pkg/tracing"

	"golang.org/x/sync/errgroup"
)

var ErrAlreadyStarted = errors.New("supervisor already started")

// Sink принимает свечи, это кэш.
type Sink interface {
	Ingest(raw []byte) bool
	PutHistory(symbol, interval string, candles []models.Candle) int
	Ages(now time.Time) map[string]time.Duration
}

type Feed interface {
	Warmup(ctx context.Context, sink bn.HistorySink) error
	Stream(ctx context.Context, sink func(raw []byte) bool) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, now time.Time) (signals.Outcome, error)
}

type ClosureRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// ReadySetter: флаг готовности для /readyz.
type ReadySetter interface {
	SetReady(v bool)
}

type Options struct {
	Symbols     []string
	DetectEvery time.Duration
	CloseEvery  time.Duration
	// CycleTimeout ограничивает один цикл, в том числе после Stop.
	CycleTimeout time.Duration
	Warmup       bool
}

// Supervisor держит три задачи: приём свечей, детекцию и закрытие.
type Supervisor struct {
	opts    Options
	feed    Feed
	sink    Sink
	eval    Evaluator
	closer  ClosureRunner
	ready   ReadySetter
	metrics *metrics.Recorder
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

func NewSupervisor(opts Options, feed Feed, sink Sink, eval Evaluator, closer ClosureRunner, ready ReadySetter, rec *metrics.Recorder) *Supervisor {
	if opts.DetectEvery <= 0 {
		opts.DetectEvery = 30 * time.Second
	}
	if opts.CloseEvery <= 0 {
		opts.CloseEvery = time.Minute
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 2 * time.Minute
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Supervisor{
		opts:    opts,
		feed:    feed,
		sink:    sink,
		eval:    eval,
		closer:  closer,
		ready:   ready,
		metrics: rec,
		now:     time.Now,
	}
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	g.Go(func() error { return s.ingest(gctx) })
	g.Go(func() error { return s.loop(gctx, "detect", s.opts.DetectEvery, s.detectCycle) })
	g.Go(func() error { return s.loop(gctx, "close", s.opts.CloseEvery, s.closeCycle) })

	logger.Info("[SCHED] started: symbols=%v detect=%s close=%s", s.opts.Symbols, s.opts.DetectEvery, s.opts.CloseEvery)
	return nil
}

// Stop отменяет задачи. Текущие циклы дорабатывают, но не дольше CycleTimeout.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait ждёт завершения всех задач. Отмена контекста ошибкой не считается.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Supervisor) ingest(ctx context.Context) error {
	if s.opts.Warmup {
		if err := s.feed.Warmup(ctx, s.sink); err != nil {
			logger.Warn("[SCHED] warmup incomplete: %v", err)
		}
	}
	if s.ready != nil {
		s.ready.SetReady(true)
	}
	defer func() {
		if s.ready != nil {
			s.ready.SetReady(false)
		}
	}()
	return s.feed.Stream(ctx, s.sink.Ingest)
}

// loop: следующий тик не начнётся, пока не закончился текущий цикл.
func (s *Supervisor) loop(ctx context.Context, name string, every time.Duration, cycle func(ctx context.Context)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[SCHED] %s loop stopped", name)
			return nil
		case <-ticker.C:
			started := time.Now()
			// цикл доводит запись до конца даже при остановке, но не дольше CycleTimeout
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CycleTimeout)
			cycle(cctx)
			cancel()
			s.metrics.CycleLatency(name, time.Since(started).Seconds())
		}
	}
}

func (s *Supervisor) detectCycle(ctx context.Context) {
	span, ctx := tracing.StartSpan(ctx, "scheduler.detect", map[string]any{"symbols": len(s.opts.Symbols)})
	defer span.Finish()

	now := s.now()
	counts := make(map[signals.Outcome]int)
	for _, symbol := range s.opts.Symbols {
		out, err := s.eval.Evaluate(ctx, symbol, now)
		if err != nil {
			tracing.Fail(span, err)
			logger.Error("[DETECT] %s: %v", symbol, err)
			continue
		}
		counts[out]++
	}
	logger.Debug("[DETECT] cycle done: %v", counts)
}

func (s *Supervisor) closeCycle(ctx context.Context) {
	span, ctx := tracing.StartSpan(ctx, "scheduler.close", nil)
	defer span.Finish()

	now := s.now()
	s.sink.Ages(now)

	n, err := s.closer.Run(ctx, now)
	if err != nil {
		tracing.Fail(span, err)
		logger.Error("[CLOSE] cycle failed: %v", err)
		return
	}
	if n > 0 {
		logger.Info("[CLOSE] closed %d signals", n)
	}
}
