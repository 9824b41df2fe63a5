// Package notify: приёмники алертов движка сигналов.
package notify

import (
	"context"
	"fmt"
	"sync"

	"signal_engine/pkg/logger"
)

type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// Func: адаптер функции к Notifier.
type Func func(ctx context.Context, msg string) error

func (f Func) Send(ctx context.Context, msg string) error { return f(ctx, msg) }

// Sendf форматирует и отправляет, ошибку только логирует.
func Sendf(ctx context.Context, n Notifier, format string, args ...any) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, fmt.Sprintf(format, args...)); err != nil {
		logger.Warn("[NOTIFY] send failed: %v", err)
	}
}

// Log используется без Telegram и пишет алерты в лог.
type Log struct{}

func (Log) Send(_ context.Context, msg string) error {
	logger.Info("[ALERT] %s", msg)
	return nil
}

// Recorder копит сообщения в памяти.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Send(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}
