package models

import (
	"fmt"
	"time"
)

type DecisionKind int

const (
	NoTrade DecisionKind = iota
	Trade
)

func (k DecisionKind) String() string {
	if k == Trade {
		return "TRADE"
	}
	return "NONE"
}

// TradePlan: параметры рекомендации оракула.
type TradePlan struct {
	Direction  Direction
	Confidence int
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Timeframe  string
	Thesis     string
}

// Validate проверяет, что уровни стоят по правильные стороны от входа.
func (p TradePlan) Validate() error {
	if p.Entry <= 0 || p.StopLoss <= 0 || p.TakeProfit <= 0 {
		return fmt.Errorf("non-positive levels: entry=%v sl=%v tp=%v", p.Entry, p.StopLoss, p.TakeProfit)
	}
	switch p.Direction {
	case DirectionLong:
		if !(p.StopLoss < p.Entry && p.Entry < p.TakeProfit) {
			return fmt.Errorf("long levels out of order: sl=%v entry=%v tp=%v", p.StopLoss, p.Entry, p.TakeProfit)
		}
	case DirectionShort:
		if !(p.TakeProfit < p.Entry && p.Entry < p.StopLoss) {
			return fmt.Errorf("short levels out of order: tp=%v entry=%v sl=%v", p.TakeProfit, p.Entry, p.StopLoss)
		}
	default:
		return fmt.Errorf("unknown direction %q", p.Direction)
	}
	return nil
}

// Decision это типизированный ответ оракула: NoTrade или Trade.
type Decision struct {
	Kind      DecisionKind
	NextCheck time.Duration
	Plan      *TradePlan
}

func NoTradeDecision(next time.Duration) Decision {
	return Decision{Kind: NoTrade, NextCheck: next}
}

func TradeDecision(plan TradePlan, next time.Duration) Decision {
	return Decision{Kind: Trade, NextCheck: next, Plan: &plan}
}

func (d Decision) IsTrade() bool { return d.Kind == Trade && d.Plan != nil }
