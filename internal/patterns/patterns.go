// Package patterns: детекторы SMC/TA паттернов над окном свечей одного инструмента и таймфрейма.
// Все функции чистые: на коротком окне возвращают nil, а не ошибку.
package patterns

import (
	"fmt"

	"signal_engine/internal/models"
	"signal_engine/pkg/logger"
)

// Базовые уверенности по типу паттерна. Не вероятности, только порядок важен.
const (
	ConfidenceFVG            = 78
	ConfidenceBOS            = 80
	ConfidenceOrderBlock     = 77
	ConfidenceLiquiditySweep = 79
	ConfidenceDivergence     = 81
	ConfidenceVolumeSpike    = 76
)

const (
	structureLookback  = 5
	volumeLookback     = 20
	volumeSpikeFactor  = 1.8
	rsiPeriod          = 14
	divergenceLookback = 5
)

// Detector: сигнатура детектора.
type Detector func(window []models.Candle, symbol, timeframe string) []models.PatternSignal

// Named: детектор с именем для логов.
type Named struct {
	Kind   models.PatternKind
	Detect Detector
}

// Detectors: набор, который запускает DetectAll.
var Detectors = []Named{
	{models.PatternFVG, DetectFVG},
	{models.PatternBOS, DetectBOS},
	{models.PatternOrderBlock, DetectOrderBlock},
	{models.PatternLiquiditySweep, DetectLiquiditySweep},
	{models.PatternDivergence, DetectDivergence},
	{models.PatternVolumeSpike, DetectVolumeSpike},
}

// DetectAll запускает все детекторы. Паника одного не останавливает остальные.
func DetectAll(window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	return Run(Detectors, window, symbol, timeframe)
}

func Run(detectors []Named, window []models.Candle, symbol, timeframe string) []models.PatternSignal {
	var out []models.PatternSignal
	for _, d := range detectors {
		out = append(out, safeDetect(d, window, symbol, timeframe)...)
	}
	return out
}

func safeDetect(d Named, window []models.Candle, symbol, timeframe string) (out []models.PatternSignal) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("[DETECT] %s %s %s panicked: %v", d.Kind, symbol, timeframe, p)
			out = nil
		}
	}()
	return d.Detect(window, symbol, timeframe)
}

func signal(symbol, timeframe string, kind models.PatternKind, bias models.Bias, conf int, format string, args ...any) models.PatternSignal {
	return models.PatternSignal{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Kind:       kind,
		Bias:       bias,
		Confidence: conf,
		Note:       fmt.Sprintf(format, args...),
	}
}

func maxHigh(cs []models.Candle) float64 {
	m := cs[0].High
	for _, c := range cs[1:] {
		if c.High > m {
			m = c.High
		}
	}
	return m
}

func minLow(cs []models.Candle) float64 {
	m := cs[0].Low
	for _, c := range cs[1:] {
		if c.Low < m {
			m = c.Low
		}
	}
	return m
}
