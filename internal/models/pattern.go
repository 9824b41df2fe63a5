package models

type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

type PatternKind string

const (
	PatternFVG            PatternKind = "fvg"
	PatternBOS            PatternKind = "bos"
	PatternOrderBlock     PatternKind = "order_block"
	PatternLiquiditySweep PatternKind = "liquidity_sweep"
	PatternDivergence     PatternKind = "divergence"
	PatternVolumeSpike    PatternKind = "volume_spike"
)

// PatternSignal живёт в пределах одного скана, отдельно не сохраняется.
type PatternSignal struct {
	Symbol     string      `json:"symbol"`
	Timeframe  string      `json:"timeframe"`
	Kind       PatternKind `json:"kind"`
	Bias       Bias        `json:"bias"`
	Confidence int         `json:"confidence"`
	Note       string      `json:"note"`
}

type ResolvedBias string

const (
	ResolvedLong  ResolvedBias = "long"
	ResolvedShort ResolvedBias = "short"
	ResolvedNone  ResolvedBias = "none"
)

type ConfluenceResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Bullish   int          `json:"bullish_count"`
	Bearish   int          `json:"bearish_count"`
	Neutral   int          `json:"neutral_count"`
	Resolved  ResolvedBias `json:"resolved_bias"`
}

// Direction возвращает направление сделки для решённого bias.
func (r ResolvedBias) Direction() (Direction, bool) {
	switch r {
	case ResolvedLong:
		return DirectionLong, true
	case ResolvedShort:
		return DirectionShort, true
	}
	return "", false
}
