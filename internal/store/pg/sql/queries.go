// Package sql: запросы к таблицам signals, symbol_control и signal_stats.
package sql

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Queries struct{}

func New() *Queries {
	return &Queries{}
}

type SignalRow struct {
	ID           string
	Symbol       string
	Direction    string
	Entry        float64
	StopLoss     float64
	TakeProfit   float64
	Confidence   int32
	Timeframe    string
	Rationale    string
	Patterns     []byte
	DedupKey     string
	CreatedAt    time.Time
	Status       string
	Outcome      *string
	ClosedReason *string
	ClosedAt     *time.Time
	HitPrice     *float64
	HitTime      *time.Time
}

const signalColumns = `id, symbol, direction, entry, stop_loss, take_profit, confidence, timeframe, rationale,
patterns, dedup_key, created_at, status, outcome, closed_reason, closed_at, hit_price, hit_time`

func scanSignal(row pgx.Row) (*SignalRow, error) {
	var i SignalRow
	err := row.Scan(
		&i.ID, &i.Symbol, &i.Direction, &i.Entry, &i.StopLoss, &i.TakeProfit, &i.Confidence,
		&i.Timeframe, &i.Rationale, &i.Patterns, &i.DedupKey, &i.CreatedAt, &i.Status,
		&i.Outcome, &i.ClosedReason, &i.ClosedAt, &i.HitPrice, &i.HitTime,
	)
	return &i, err
}

const insertSignal = `-- name: InsertSignal :execrows
INSERT INTO signals (id, symbol, direction, entry, stop_loss, take_profit, confidence, timeframe,
                     rationale, patterns, dedup_key, created_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'open')
ON CONFLICT (dedup_key) DO NOTHING`

type InsertSignalParams struct {
	ID         string
	Symbol     string
	Direction  string
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Confidence int32
	Timeframe  string
	Rationale  string
	Patterns   []byte
	DedupKey   string
	CreatedAt  time.Time
}

func (q *Queries) InsertSignal(ctx context.Context, db DBTX, arg *InsertSignalParams) (int64, error) {
	tag, err := db.Exec(ctx, insertSignal,
		arg.ID, arg.Symbol, arg.Direction, arg.Entry, arg.StopLoss, arg.TakeProfit, arg.Confidence,
		arg.Timeframe, arg.Rationale, arg.Patterns, arg.DedupKey, arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const latestSignal = `-- name: LatestSignal :one
SELECT ` + signalColumns + `
FROM signals
WHERE symbol = $1 AND direction = $2
ORDER BY created_at DESC
LIMIT 1`

func (q *Queries) LatestSignal(ctx context.Context, db DBTX, symbol, direction string) (*SignalRow, error) {
	return scanSignal(db.QueryRow(ctx, latestSignal, symbol, direction))
}

const listOpenSignals = `-- name: ListOpenSignals :many
SELECT ` + signalColumns + `
FROM signals
WHERE status = 'open'
ORDER BY created_at`

func (q *Queries) ListOpenSignals(ctx context.Context, db DBTX) ([]*SignalRow, error) {
	rows, err := db.Query(ctx, listOpenSignals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*SignalRow
	for rows.Next() {
		i, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const closeSignal = `-- name: CloseSignal :execrows
UPDATE signals
SET status = 'closed', outcome = $2, closed_reason = $3, closed_at = $4, hit_price = $5, hit_time = $6
WHERE id = $1 AND status = 'open'`

type CloseSignalParams struct {
	ID           string
	Outcome      string
	ClosedReason string
	ClosedAt     time.Time
	HitPrice     float64
	HitTime      time.Time
}

func (q *Queries) CloseSignal(ctx context.Context, db DBTX, arg *CloseSignalParams) (int64, error) {
	tag, err := db.Exec(ctx, closeSignal,
		arg.ID, arg.Outcome, arg.ClosedReason, arg.ClosedAt, arg.HitPrice, arg.HitTime,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getControl = `-- name: GetControl :one
SELECT symbol, last_check_at, next_check_at, last_status, notes
FROM symbol_control
WHERE symbol = $1`

type ControlRow struct {
	Symbol      string
	LastCheckAt time.Time
	NextCheckAt time.Time
	LastStatus  string
	Notes       string
}

func (q *Queries) GetControl(ctx context.Context, db DBTX, symbol string) (*ControlRow, error) {
	var i ControlRow
	err := db.QueryRow(ctx, getControl, symbol).Scan(
		&i.Symbol, &i.LastCheckAt, &i.NextCheckAt, &i.LastStatus, &i.Notes,
	)
	return &i, err
}

const upsertControl = `-- name: UpsertControl :exec
INSERT INTO symbol_control (symbol, last_check_at, next_check_at, last_status, notes)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (symbol) DO UPDATE
SET last_check_at = EXCLUDED.last_check_at,
    next_check_at = EXCLUDED.next_check_at,
    last_status   = EXCLUDED.last_status,
    notes         = EXCLUDED.notes`

func (q *Queries) UpsertControl(ctx context.Context, db DBTX, arg *ControlRow) error {
	_, err := db.Exec(ctx, upsertControl, arg.Symbol, arg.LastCheckAt, arg.NextCheckAt, arg.LastStatus, arg.Notes)
	return err
}

const addOutcome = `-- name: AddOutcome :exec
INSERT INTO signal_stats (id, wins, losses, total_trades, winrate, updated_at)
VALUES (1, $1::integer, $2::integer, 1, $1::integer * 100.0, now())
ON CONFLICT (id) DO UPDATE
SET wins         = signal_stats.wins + EXCLUDED.wins,
    losses       = signal_stats.losses + EXCLUDED.losses,
    total_trades = signal_stats.total_trades + 1,
    winrate      = (signal_stats.wins + EXCLUDED.wins) * 100.0 / (signal_stats.total_trades + 1),
    updated_at   = now()`

// AddOutcome: win=1 -> ($1=1,$2=0), loss -> ($1=0,$2=1).
func (q *Queries) AddOutcome(ctx context.Context, db DBTX, win bool) error {
	w, l := 0, 1
	if win {
		w, l = 1, 0
	}
	_, err := db.Exec(ctx, addOutcome, w, l)
	return err
}

const getStats = `-- name: GetStats :one
SELECT wins, losses, total_trades, winrate FROM signal_stats WHERE id = 1`

type StatsRow struct {
	Wins    int32
	Losses  int32
	Total   int32
	WinRate float64
}

func (q *Queries) GetStats(ctx context.Context, db DBTX) (*StatsRow, error) {
	var i StatsRow
	err := db.QueryRow(ctx, getStats).Scan(&i.Wins, &i.Losses, &i.Total, &i.WinRate)
	return &i, err
}
