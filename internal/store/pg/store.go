// Package pg: Store поверх Postgres (pgx).
package pg

import (
	"context"
	"errors"
	"fmt"

	"signal_engine/internal/models"
	"signal_engine/internal/store"
	"signal_engine/internal/store/pg/sql"
	"signal_engine/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

type Store struct {
	db  *db.PgTxManager
	sql *sql.Queries
}

var _ store.Store = (*Store)(nil)

func New(db *db.PgTxManager) *Store {
	return &Store{
		db:  db,
		sql: sql.New(),
	}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) GetControl(ctx context.Context, symbol string) (c models.SymbolControl, err error) {
	defer func() {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("pg.GetControl: %w", err)
		}
	}()

	row, err := s.sql.GetControl(ctx, s.db.Conn(), symbol)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, store.ErrNotFound
	}
	if err != nil {
		return c, err
	}
	return models.SymbolControl{
		Symbol:      row.Symbol,
		LastCheckAt: row.LastCheckAt,
		NextCheckAt: row.NextCheckAt,
		LastStatus:  models.ControlStatus(row.LastStatus),
		Notes:       row.Notes,
	}, nil
}

func (s *Store) UpsertControl(ctx context.Context, c models.SymbolControl) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.UpsertControl: %w", err)
		}
	}()
	return s.sql.UpsertControl(ctx, s.db.Conn(), &sql.ControlRow{
		Symbol:      c.Symbol,
		LastCheckAt: c.LastCheckAt,
		NextCheckAt: c.NextCheckAt,
		LastStatus:  string(c.LastStatus),
		Notes:       c.Notes,
	})
}

func (s *Store) LatestSignal(ctx context.Context, symbol string, dir models.Direction) (sig *models.Signal, err error) {
	defer func() {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("pg.LatestSignal: %w", err)
		}
	}()

	row, err := s.sql.LatestSignal(ctx, s.db.Conn(), symbol, string(dir))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSignal(row)
}

func (s *Store) InsertSignal(ctx context.Context, sig *models.Signal) (inserted bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.InsertSignal: %w", err)
		}
	}()

	var patterns []byte
	patterns, err = sonic.Marshal(sig.Patterns)
	if err != nil {
		return false, err
	}
	n, err := s.sql.InsertSignal(ctx, s.db.Conn(), &sql.InsertSignalParams{
		ID:         sig.ID,
		Symbol:     sig.Symbol,
		Direction:  string(sig.Direction),
		Entry:      sig.Entry,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Confidence: int32(sig.Confidence),
		Timeframe:  sig.Timeframe,
		Rationale:  sig.Rationale,
		Patterns:   patterns,
		DedupKey:   sig.DedupKey(),
		CreatedAt:  sig.CreatedAt,
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ListOpenSignals(ctx context.Context) (out []models.Signal, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.ListOpenSignals: %w", err)
		}
	}()

	rows, err := s.sql.ListOpenSignals(ctx, s.db.Conn())
	if err != nil {
		return nil, err
	}
	out = make([]models.Signal, 0, len(rows))
	for _, row := range rows {
		sig, err := toSignal(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, nil
}

// CloseSignal: условный UPDATE и счётчики статистики в одной транзакции.
func (s *Store) CloseSignal(ctx context.Context, id string, c models.Closure) (err error) {
	defer func() {
		if err != nil && !errors.Is(err, store.ErrAlreadyClosed) {
			err = fmt.Errorf("pg.CloseSignal: %w", err)
		}
	}()

	var closed bool
	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		n, err := s.sql.CloseSignal(ctxTx, tx, &sql.CloseSignalParams{
			ID:           id,
			Outcome:      string(c.Outcome),
			ClosedReason: string(c.Reason),
			ClosedAt:     c.ClosedAt,
			HitPrice:     c.HitPrice,
			HitTime:      c.HitTime,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		closed = true
		return s.sql.AddOutcome(ctxTx, tx, c.Outcome == models.OutcomeWin)
	})
	if err != nil {
		return err
	}
	if !closed {
		return store.ErrAlreadyClosed
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (st models.Stats, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Stats: %w", err)
		}
	}()

	row, err := s.sql.GetStats(ctx, s.db.Conn())
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	return models.Stats{
		Wins:    int(row.Wins),
		Losses:  int(row.Losses),
		Total:   int(row.Total),
		WinRate: row.WinRate,
	}, nil
}

func toSignal(row *sql.SignalRow) (*models.Signal, error) {
	sig := &models.Signal{
		ID:         row.ID,
		Symbol:     row.Symbol,
		Direction:  models.Direction(row.Direction),
		Entry:      row.Entry,
		StopLoss:   row.StopLoss,
		TakeProfit: row.TakeProfit,
		Confidence: int(row.Confidence),
		Timeframe:  row.Timeframe,
		Rationale:  row.Rationale,
		CreatedAt:  row.CreatedAt,
		Status:     models.Status(row.Status),
		ClosedAt:   row.ClosedAt,
		HitPrice:   row.HitPrice,
		HitTime:    row.HitTime,
	}
	if row.Outcome != nil {
		o := models.Outcome(*row.Outcome)
		sig.Outcome = &o
	}
	if row.ClosedReason != nil {
		r := models.ClosedReason(*row.ClosedReason)
		sig.ClosedReason = &r
	}
	if len(row.Patterns) > 0 {
		if err := sonic.Unmarshal(row.Patterns, &sig.Patterns); err != nil {
			return nil, fmt.Errorf("decode patterns: %w", err)
		}
	}
	return sig, nil
}
