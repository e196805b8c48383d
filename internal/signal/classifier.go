package signal

import (
	"score-trader/internal/config"
	"score-trader/internal/types"
)

// Input is everything the classifier may consult for one symbol.
// The classifier never mutates state; its output is advisory and is
// gated by risk checks before any position is touched.
type Input struct {
	HasOpenLong     bool
	HasOpenShort    bool
	Score           float64
	Confidence      float64
	MarketFilter    bool
	LiquidityFilter bool
}

type Classifier struct {
	longEntry  float64
	longExit   float64
	shortEntry float64
	shortExit  float64
	shortConf  float64
}

func NewClassifier(cfg *config.Config) *Classifier {
	return &Classifier{
		longEntry:  cfg.Thresholds.LongEntry,
		longExit:   cfg.Thresholds.LongExit,
		shortEntry: cfg.Thresholds.ShortEntry,
		shortExit:  cfg.Thresholds.ShortExit,
		shortConf:  cfg.Thresholds.ShortConfidence,
	}
}

// Classify applies the precedence rules, first match wins. Entry signals
// are never produced while any position is open for the symbol, so a flip
// always requires an intervening close in an earlier cycle.
func (c *Classifier) Classify(in Input) types.Signal {
	flat := !in.HasOpenLong && !in.HasOpenShort

	switch {
	case flat && in.Score >= c.longEntry:
		return types.SignalLongEntry
	case flat && in.Score < c.shortEntry && in.Confidence >= c.shortConf &&
		in.MarketFilter && in.LiquidityFilter:
		return types.SignalShortEntry
	case in.HasOpenLong && in.Score <= c.longExit:
		return types.SignalLongExit
	case in.HasOpenShort && in.Score >= c.shortExit:
		return types.SignalShortExit
	default:
		return types.SignalHold
	}
}
