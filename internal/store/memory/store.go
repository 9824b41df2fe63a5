// Package memory: Store в памяти процесса: тесты и запуск без базы.
package memory

import (
	"context"
	"sort"
	"sync"

	"signal_engine/internal/models"
	"signal_engine/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	signals  map[string]*models.Signal
	byKey    map[string]string
	controls map[string]models.SymbolControl
	stats    models.Stats
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		signals:  make(map[string]*models.Signal),
		byKey:    make(map[string]string),
		controls: make(map[string]models.SymbolControl),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) GetControl(_ context.Context, symbol string) (models.SymbolControl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controls[symbol]
	if !ok {
		return models.SymbolControl{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpsertControl(_ context.Context, c models.SymbolControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls[c.Symbol] = c
	return nil
}

func (s *Store) LatestSignal(_ context.Context, symbol string, dir models.Direction) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Signal
	for _, sig := range s.signals {
		if sig.Symbol != symbol || sig.Direction != dir {
			continue
		}
		if latest == nil || sig.CreatedAt.After(latest.CreatedAt) {
			latest = sig
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := clone(latest)
	return &cp, nil
}

func (s *Store) InsertSignal(_ context.Context, sig *models.Signal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sig.DedupKey()
	if _, dup := s.byKey[key]; dup {
		return false, nil
	}
	cp := clone(sig)
	cp.Status = models.StatusOpen
	s.signals[cp.ID] = &cp
	s.byKey[key] = cp.ID
	return true, nil
}

func (s *Store) ListOpenSignals(_ context.Context) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if sig.Status == models.StatusOpen {
			out = append(out, clone(sig))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CloseSignal(_ context.Context, id string, c models.Closure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok || sig.Status != models.StatusOpen {
		return store.ErrAlreadyClosed
	}
	outcome, reason := c.Outcome, c.Reason
	closedAt, hitTime, hitPrice := c.ClosedAt, c.HitTime, c.HitPrice
	sig.Status = models.StatusClosed
	sig.Outcome = &outcome
	sig.ClosedReason = &reason
	sig.ClosedAt = &closedAt
	sig.HitTime = &hitTime
	sig.HitPrice = &hitPrice
	s.stats = s.stats.Add(outcome)
	return nil
}

func (s *Store) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

// Get: сигнал по id, для тестов и диагностики.
func (s *Store) Get(id string) (models.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[id]
	if !ok {
		return models.Signal{}, false
	}
	return clone(sig), true
}

// All: все сигналы в порядке создания.
func (s *Store) All() []models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		out = append(out, clone(sig))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func clone(sig *models.Signal) models.Signal {
	cp := *sig
	cp.Patterns = append([]models.PatternSignal(nil), sig.Patterns...)
	return cp
}
