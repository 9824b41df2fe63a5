package models

import "time"

// Candle: OHLCV одного интервала. Timestamp: время открытия, epoch ms.
type Candle struct {
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

func (c Candle) Time() time.Time { return time.UnixMilli(c.Timestamp).UTC() }

func (c Candle) IsUp() bool   { return c.Close > c.Open }
func (c Candle) IsDown() bool { return c.Close < c.Open }

// CandleUpdate: распарсенное обновление из фида.
type CandleUpdate struct {
	Symbol   string
	Interval string
	Candle   Candle
	Closed   bool
}

// Key: ключ буфера "SYMBOL@interval".
func Key(symbol, interval string) string { return symbol + "@" + interval }

// IntervalDuration переводит биржевой интервал в duration. 0 для неизвестных.
func IntervalDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h", "1H":
		return time.Hour
	case "2h", "2H":
		return 2 * time.Hour
	case "4h", "4H":
		return 4 * time.Hour
	case "1d", "1D":
		return 24 * time.Hour
	default:
		return 0
	}
}
