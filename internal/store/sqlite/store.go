// Package sqlite: встраиваемый Store на gorm для локального запуска без Postgres.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"signal_engine/internal/models"
	"signal_engine/internal/store"

	"github.com/bytedance/sonic"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SignalModel{}, &ControlModel{}, &StatsModel{}); err != nil {
		return nil, fmt.Errorf("sqlite.AutoMigrate: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// sqlite пишет в один поток
		sqlDB.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetControl(ctx context.Context, symbol string) (models.SymbolControl, error) {
	var m ControlModel
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SymbolControl{}, store.ErrNotFound
	}
	if err != nil {
		return models.SymbolControl{}, fmt.Errorf("sqlite.GetControl: %w", err)
	}
	return models.SymbolControl{
		Symbol:      m.Symbol,
		LastCheckAt: m.LastCheckAt,
		NextCheckAt: m.NextCheckAt,
		LastStatus:  models.ControlStatus(m.LastStatus),
		Notes:       m.Notes,
	}, nil
}

func (s *Store) UpsertControl(ctx context.Context, c models.SymbolControl) error {
	m := ControlModel{
		Symbol:      c.Symbol,
		LastCheckAt: c.LastCheckAt,
		NextCheckAt: c.NextCheckAt,
		LastStatus:  string(c.LastStatus),
		Notes:       c.Notes,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_check_at", "next_check_at", "last_status", "notes"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("sqlite.UpsertControl: %w", err)
	}
	return nil
}

func (s *Store) LatestSignal(ctx context.Context, symbol string, dir models.Direction) (*models.Signal, error) {
	var m SignalModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND direction = ?", symbol, string(dir)).
		Order("created_at DESC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.LatestSignal: %w", err)
	}
	return toSignal(&m)
}

func (s *Store) InsertSignal(ctx context.Context, sig *models.Signal) (bool, error) {
	patterns, err := sonic.Marshal(sig.Patterns)
	if err != nil {
		return false, fmt.Errorf("sqlite.InsertSignal: %w", err)
	}
	m := SignalModel{
		ID:         sig.ID,
		Symbol:     sig.Symbol,
		Direction:  string(sig.Direction),
		Entry:      sig.Entry,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Confidence: sig.Confidence,
		Timeframe:  sig.Timeframe,
		Rationale:  sig.Rationale,
		Patterns:   patterns,
		DedupKey:   sig.DedupKey(),
		CreatedAt:  sig.CreatedAt.UTC(),
		Status:     string(models.StatusOpen),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return false, fmt.Errorf("sqlite.InsertSignal: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ListOpenSignals(ctx context.Context) ([]models.Signal, error) {
	var rows []SignalModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(models.StatusOpen)).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListOpenSignals: %w", err)
	}
	out := make([]models.Signal, 0, len(rows))
	for i := range rows {
		sig, err := toSignal(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, nil
}

func (s *Store) CloseSignal(ctx context.Context, id string, c models.Closure) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SignalModel{}).
			Where("id = ? AND status = ?", id, string(models.StatusOpen)).
			Updates(map[string]any{
				"status":        string(models.StatusClosed),
				"outcome":       string(c.Outcome),
				"closed_reason": string(c.Reason),
				"closed_at":     c.ClosedAt.UTC(),
				"hit_price":     c.HitPrice,
				"hit_time":      c.HitTime.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrAlreadyClosed
		}

		var st StatsModel
		err := tx.Where("id = ?", 1).Take(&st).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		next := models.Stats{Wins: st.Wins, Losses: st.Losses, Total: st.Total}.Add(c.Outcome)
		return tx.Save(&StatsModel{
			ID:        1,
			Wins:      next.Wins,
			Losses:    next.Losses,
			Total:     next.Total,
			WinRate:   next.WinRate,
			UpdatedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil && !errors.Is(err, store.ErrAlreadyClosed) {
		return fmt.Errorf("sqlite.CloseSignal: %w", err)
	}
	return err
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var st StatsModel
	err := s.db.WithContext(ctx).Where("id = ?", 1).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Stats{}, nil
	}
	if err != nil {
		return models.Stats{}, fmt.Errorf("sqlite.Stats: %w", err)
	}
	return models.Stats{Wins: st.Wins, Losses: st.Losses, Total: st.Total, WinRate: st.WinRate}, nil
}

func toSignal(m *SignalModel) (*models.Signal, error) {
	sig := &models.Signal{
		ID:         m.ID,
		Symbol:     m.Symbol,
		Direction:  models.Direction(m.Direction),
		Entry:      m.Entry,
		StopLoss:   m.StopLoss,
		TakeProfit: m.TakeProfit,
		Confidence: m.Confidence,
		Timeframe:  m.Timeframe,
		Rationale:  m.Rationale,
		CreatedAt:  m.CreatedAt,
		Status:     models.Status(m.Status),
		ClosedAt:   m.ClosedAt,
		HitPrice:   m.HitPrice,
		HitTime:    m.HitTime,
	}
	if m.Outcome != nil {
		o := models.Outcome(*m.Outcome)
		sig.Outcome = &o
	}
	if m.ClosedReason != nil {
		r := models.ClosedReason(*m.ClosedReason)
		sig.ClosedReason = &r
	}
	if len(m.Patterns) > 0 {
		if err := sonic.Unmarshal(m.Patterns, &sig.Patterns); err != nil {
			return nil, fmt.Errorf("decode patterns: %w", err)
		}
	}
	return sig, nil
}
