// Package confluence сводит паттерны к направленному bias простым большинством голосов.
package confluence

import (
	"sort"

	"signal_engine/internal/models"
)

// Resolve считает голоса без весов: long если bullish > bearish, short если наоборот, иначе none.
func Resolve(symbol, timeframe string, patterns []models.PatternSignal) models.ConfluenceResult {
	r := models.ConfluenceResult{Symbol: symbol, Timeframe: timeframe}
	for _, p := range patterns {
		switch p.Bias {
		case models.BiasBullish:
			r.Bullish++
		case models.BiasBearish:
			r.Bearish++
		default:
			r.Neutral++
		}
	}
	switch {
	case r.Bullish > r.Bearish:
		r.Resolved = models.ResolvedLong
	case r.Bearish > r.Bullish:
		r.Resolved = models.ResolvedShort
	default:
		r.Resolved = models.ResolvedNone
	}
	return r
}

// ResolveAll: результат по каждому таймфрейму, отсортированный по длительности интервала.
func ResolveAll(symbol string, patterns []models.PatternSignal) []models.ConfluenceResult {
	byTF := make(map[string][]models.PatternSignal)
	for _, p := range patterns {
		byTF[p.Timeframe] = append(byTF[p.Timeframe], p)
	}
	out := make([]models.ConfluenceResult, 0, len(byTF))
	for tf, ps := range byTF {
		out = append(out, Resolve(symbol, tf, ps))
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := models.IntervalDuration(out[i].Timeframe), models.IntervalDuration(out[j].Timeframe)
		if di != dj {
			return di < dj
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out
}

// Label: подпись таймфреймов для сводного результата.
const Label = "multi"
