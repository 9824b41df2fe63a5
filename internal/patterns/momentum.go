package patterns

import (
	"signal_engine/internal/models"

	talib "github.com/markcheno/go-talib"
)

// RSI: RSI со сглаживанием Уайлдера. Первые period значений равны 0.
func RSI(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	return talib.Rsi(closes, period)
}

// DetectDivergence ищет расхождение цены и RSI(14) с экстремумом close за 5 предыдущих свечей.
// bullish: последний close ниже минимума, а RSI выше, чем на том минимуме; bearish зеркально.
func DetectDivergence(window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	// RSI должен быть определён на всём lookback
	if len(window) < rsiPeriod+divergenceLookback+1 {
		return nil
	}
	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}
	rsi := RSI(closes, rsiPeriod)
	if len(rsi) != len(closes) {
		return nil
	}

	n := len(closes)
	lo, hi := n-1-divergenceLookback, n-1-divergenceLookback
	for i := n - divergenceLookback; i < n-1; i++ {
		if closes[i] < closes[lo] {
			lo = i
		}
		if closes[i] > closes[hi] {
			hi = i
		}
	}
	lc, lr := closes[n-1], rsi[n-1]

	var out []models.PatternSignal
	if lc < closes[lo] && lr > rsi[lo] {
		out = append(out, signal(symbol, timeframe, models.PatternDivergence, models.BiasBullish, ConfidenceDivergence,
			"bullish divergence: close %.6g<%.6g, rsi %.1f>%.1f", lc, closes[lo], lr, rsi[lo]))
	}
	if lc > closes[hi] && lr < rsi[hi] {
		out = append(out, signal(symbol, timeframe, models.PatternDivergence, models.BiasBearish, ConfidenceDivergence,
			"bearish divergence: close %.6g>%.6g, rsi %.1f<%.1f", lc, closes[hi], lr, rsi[hi]))
	}
	return out
}

// DetectVolumeSpike: объём последней свечи > 1.8 x среднего за 20 предыдущих. Нейтральный.
func DetectVolumeSpike(window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	if len(window) < volumeLookback+1 {
		return nil
	}
	n := len(window)
	var sum float64
	for _, c := range window[n-1-volumeLookback : n-1] {
		sum += c.Volume
	}
	mean := sum / volumeLookback
	last := window[n-1]
	if mean <= 0 || last.Volume <= volumeSpikeFactor*mean {
		return nil
	}
	return []models.PatternSignal{signal(symbol, timeframe, models.PatternVolumeSpike, models.BiasNeutral, ConfidenceVolumeSpike,
		"volume %.6g = %.1fx avg", last.Volume, last.Volume/mean)}
}
