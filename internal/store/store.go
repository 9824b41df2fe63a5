// Package store: персистентность сигналов, cooldown-контроля и статистики.
package store

import (
	"context"
	"errors"

	"signal_engine/internal/models"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyClosed = errors.New("store: signal already closed")
)

// Store: владелец всех записей. Реализации: pg, sqlite, memory.
type Store interface {
	// GetControl возвращает ErrNotFound, если инструмент ещё не проверялся.
	GetControl(ctx context.Context, symbol string) (models.SymbolControl, error)
	UpsertControl(ctx context.Context, c models.SymbolControl) error

	// LatestSignal: последний по created_at сигнал инструмента в направлении, ErrNotFound если нет.
	LatestSignal(ctx context.Context, symbol string, dir models.Direction) (*models.Signal, error)
	// InsertSignal идемпотентен по DedupKey: повтор возвращает inserted=false без ошибки.
	InsertSignal(ctx context.Context, s *models.Signal) (inserted bool, err error)
	ListOpenSignals(ctx context.Context) ([]models.Signal, error)
	// CloseSignal меняет только открытый сигнал, иначе ErrAlreadyClosed. Статистика обновляется вместе с ним.
	CloseSignal(ctx context.Context, id string, c models.Closure) error

	Stats(ctx context.Context) (models.Stats, error)
	Close() error
}
