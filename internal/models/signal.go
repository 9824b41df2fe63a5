package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

type ClosedReason string

const (
	ClosedTP ClosedReason = "tp"
	ClosedSL ClosedReason = "sl"
)

// Signal: сохранённая рекомендация. Меняется только при закрытии.
type Signal struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Direction    Direction       `json:"direction"`
	Entry        float64         `json:"entry"`
	StopLoss     float64         `json:"stop_loss"`
	TakeProfit   float64         `json:"take_profit"`
	Confidence   int             `json:"confidence"`
	Timeframe    string          `json:"timeframe"`
	Rationale    string          `json:"rationale"`
	Patterns     []PatternSignal `json:"patterns,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       Status          `json:"status"`
	Outcome      *Outcome        `json:"outcome,omitempty"`
	ClosedReason *ClosedReason   `json:"closed_reason,omitempty"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	HitPrice     *float64        `json:"hit_price,omitempty"`
	HitTime      *time.Time      `json:"hit_time,omitempty"`
}

const (
	// EntryPrecision: знаков после запятой в ключе идемпотентности.
	EntryPrecision = 4
	// DedupBucket: ключ уникален только внутри такого интервала created_at.
	DedupBucket = 5 * time.Minute
)

// DedupKey: instrument|direction|rounded entry|timeframe|bucket.
// Повтор той же записи даёт тот же ключ, тот же вход через час уже новый сигнал.
func (s *Signal) DedupKey() string {
	entry := decimal.NewFromFloat(s.Entry).Round(EntryPrecision).String()
	bucket := s.CreatedAt.UTC().Truncate(DedupBucket).Unix()
	return fmt.Sprintf("%s|%s|%s|%s|%d", s.Symbol, s.Direction, entry, s.Timeframe, bucket)
}

func (s *Signal) HasLevels() bool { return s.TakeProfit > 0 && s.StopLoss > 0 }

// Closure: результат закрытия сигнала.
type Closure struct {
	Outcome  Outcome
	Reason   ClosedReason
	HitPrice float64
	HitTime  time.Time
	ClosedAt time.Time
}

type ControlStatus string

const (
	ControlNoTrade     ControlStatus = "no_trade"
	ControlTrade       ControlStatus = "trade"
	ControlOracleError ControlStatus = "oracle_error"
)

// SymbolControl: одна строка на инструмент, реализует cooldown.
type SymbolControl struct {
	Symbol      string        `json:"symbol"`
	LastCheckAt time.Time     `json:"last_check_at"`
	NextCheckAt time.Time     `json:"next_check_at"`
	LastStatus  ControlStatus `json:"last_status"`
	Notes       string        `json:"notes"`
}

// Stats: агрегат winrate по закрытым сигналам.
type Stats struct {
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Total   int     `json:"total_trades"`
	WinRate float64 `json:"winrate"`
}

func (s Stats) Add(o Outcome) Stats {
	s.Total++
	if o == OutcomeWin {
		s.Wins++
	} else {
		s.Losses++
	}
	s.WinRate = float64(s.Wins) / float64(s.Total) * 100
	return s
}
