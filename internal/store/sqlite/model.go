package sqlite

import (
	"time"
)

type SignalModel struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Symbol       string    `gorm:"size:32;not null;index:idx_signals_sym_dir_created,priority:1"`
	Direction    string    `gorm:"size:8;not null;index:idx_signals_sym_dir_created,priority:2"`
	Entry        float64   `gorm:"not null"`
	StopLoss     float64   `gorm:"not null"`
	TakeProfit   float64   `gorm:"not null"`
	Confidence   int       `gorm:"not null"`
	Timeframe    string    `gorm:"size:32;not null"`
	Rationale    string    `gorm:"type:text"`
	Patterns     []byte    `gorm:"type:blob"`
	DedupKey     string    `gorm:"size:128;not null;uniqueIndex"`
	CreatedAt    time.Time `gorm:"not null;index:idx_signals_sym_dir_created,priority:3"`
	Status       string    `gorm:"size:8;not null;index"`
	Outcome      *string   `gorm:"size:8"`
	ClosedReason *string   `gorm:"size:8"`
	ClosedAt     *time.Time
	HitPrice     *float64
	HitTime      *time.Time
}

func (SignalModel) TableName() string { return "signals" }

type ControlModel struct {
	Symbol      string    `gorm:"primaryKey;size:32"`
	LastCheckAt time.Time `gorm:"not null"`
	NextCheckAt time.Time `gorm:"not null"`
	LastStatus  string    `gorm:"size:16;not null"`
	Notes       string    `gorm:"type:text"`
}

func (ControlModel) TableName() string { return "symbol_control" }

type StatsModel struct {
	ID        int `gorm:"primaryKey"`
	Wins      int
	Losses    int
	Total     int     `gorm:"column:total_trades"`
	WinRate   float64 `gorm:"column:winrate"`
	UpdatedAt time.Time
}

func (StatsModel) TableName() string { return "signal_stats" }
