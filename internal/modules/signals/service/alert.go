package service

import (
	"fmt"

	"signal_engine/internal/models"

	"github.com/shopspring/decimal"
)

// AlertLine: SYMBOL | DIRECTION | timeframe | Entry: x | Conf: y
func AlertLine(s *models.Signal) string {
	return fmt.Sprintf("%s | %s | %s | Entry: %s | Conf: %d",
		s.Symbol, s.Direction, s.Timeframe, formatPrice(s.Entry), s.Confidence)
}

// CloseLine: сообщение о закрытии сигнала.
func CloseLine(s *models.Signal, c models.Closure) string {
	return fmt.Sprintf("%s | %s | %s | %s @ %s",
		s.Symbol, s.Direction, s.Timeframe, closeTag(c), formatPrice(c.HitPrice))
}

func closeTag(c models.Closure) string {
	if c.Outcome == models.OutcomeWin {
		return "WIN (tp)"
	}
	return "LOSS (sl)"
}

func formatPrice(v float64) string {
	return decimal.NewFromFloat(v).Round(models.EntryPrecision).String()
}
