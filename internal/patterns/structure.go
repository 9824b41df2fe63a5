package patterns

import "signal_engine/internal/models"

// DetectFVG: разрыв между c1 и c2 в последних трёх свечах c1,c2,c3.
// bullish: c2.low > c1.high; bearish: c2.high < c1.low.
func DetectFVG(window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	if len(window) < 3 {
		return nil
	}
	n := len(window)
	c1, c2 := window[n-3], window[n-2]

	switch {
	case c2.Low > c1.High:
		return []models.PatternSignal{signal(symbol, timeframe, models.PatternFVG, models.BiasBullish, ConfidenceFVG,
			"bullish FVG %.6g-%.6g", c1.High, c2.Low)}
	case c2.High < c1.Low:
		return []models.PatternSignal{signal(symbol, timeframe, models.PatternFVG, models.BiasBearish, ConfidenceFVG,
			"bearish FVG %.6g-%.6g", c2.High, c1.Low)}
	}
	return nil
}

// DetectBOS: пробой максимума/минимума предыдущих 5 свечей последней свечой.
func DetectBOS(window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	if len(window) < structureLookback+1 {
		return nil
	}
	n := len(window)
	last := window[n-1]
	prev := window[n-1-structureLookback : n-1]

	var out []models.PatternSignal
	if hi := maxHigh(prev); last.High > hi {
		out = append(out, signal(symbol, timeframe, models.PatternBOS, models.BiasBullish, ConfidenceBOS,
			"high %.6g broke structure %.6g", last.High, hi))
	}
	if lo := minLow(prev); last.Low < lo {
		out = append(out, signal(symbol, timeframe, models.PatternBOS, models.BiasBearish, ConfidenceBOS,
			"low %.6g broke structure %.6g", last.Low, lo))
	}
	return out
}

// DetectOrderBlock: down-свеча, за которой up-свеча закрылась выше её open (и зеркально).
func DetectOrderBlock(window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	if len(window) < 2 {
		return nil
	}
	n := len(window)
	prev, last := window[n-2], window[n-1]

	switch {
	case prev.IsDown() && last.IsUp() && last.Close > prev.Open:
		return []models.PatternSignal{signal(symbol, timeframe, models.PatternOrderBlock, models.BiasBullish, ConfidenceOrderBlock,
			"bullish OB %.6g-%.6g", prev.Low, prev.Open)}
	case prev.IsUp() && last.IsDown() && last.Close < prev.Open:
		return []models.PatternSignal{signal(symbol, timeframe, models.PatternOrderBlock, models.BiasBearish, ConfidenceOrderBlock,
			"bearish OB %.6g-%.6g", prev.Open, prev.High)}
	}
	return nil
}

// DetectLiquiditySweep: фитиль за экстремум предыдущих 5 свечей с закрытием обратно внутри (SFP).
func DetectLiquiditySweep(window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	if len(window) < structureLookback+1 {
		return nil
	}
	n := len(window)
	last := window[n-1]
	prev := window[n-1-structureLookback : n-1]

	var out []models.PatternSignal
	if hi := maxHigh(prev); last.High > hi && last.Close < hi {
		out = append(out, signal(symbol, timeframe, models.PatternLiquiditySweep, models.BiasBearish, ConfidenceLiquiditySweep,
			"swept high %.6g, closed %.6g", hi, last.Close))
	}
	if lo := minLow(prev); last.Low < lo && last.Close > lo {
		out = append(out, signal(symbol, timeframe, models.PatternLiquiditySweep, models.BiasBullish, ConfidenceLiquiditySweep,
			"swept low %.6g, closed %.6g", lo, last.Close))
	}
	return out
}
