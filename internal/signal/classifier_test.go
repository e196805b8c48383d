package signal

import (
	"testing"

	"score-trader/internal/config"
	"score-trader/internal/types"
)

func newTestClassifier() *Classifier {
	return NewClassifier(config.Default())
}

func TestLongEntryAtThreshold(t *testing.T) {
	c := newTestClassifier()

	sig := c.Classify(Input{Score: 8.5, Confidence: 0.9})
	if sig != types.SignalLongEntry {
		t.Errorf("expected LONG_ENTRY, got %s", sig)
	}

	sig = c.Classify(Input{Score: 8.0, Confidence: 0.9})
	if sig != types.SignalLongEntry {
		t.Errorf("threshold is inclusive, expected LONG_ENTRY, got %s", sig)
	}

	sig = c.Classify(Input{Score: 7.9, Confidence: 0.9})
	if sig != types.SignalHold {
		t.Errorf("expected HOLD below threshold, got %s", sig)
	}
}

func TestShortEntryRequiresFilters(t *testing.T) {
	c := newTestClassifier()
	base := Input{Score: 1.2, Confidence: 0.82, MarketFilter: true, LiquidityFilter: true}

	if sig := c.Classify(base); sig != types.SignalShortEntry {
		t.Errorf("expected SHORT_ENTRY, got %s", sig)
	}

	lowConf := base
	lowConf.Confidence = 0.65
	if sig := c.Classify(lowConf); sig != types.SignalHold {
		t.Errorf("expected HOLD at low confidence, got %s", sig)
	}

	noMarket := base
	noMarket.MarketFilter = false
	if sig := c.Classify(noMarket); sig != types.SignalHold {
		t.Errorf("expected HOLD when market filter fails, got %s", sig)
	}

	noLiq := base
	noLiq.LiquidityFilter = false
	if sig := c.Classify(noLiq); sig != types.SignalHold {
		t.Errorf("expected HOLD when liquidity filter fails, got %s", sig)
	}
}

func TestExitRules(t *testing.T) {
	c := newTestClassifier()

	sig := c.Classify(Input{HasOpenLong: true, Score: 3.5})
	if sig != types.SignalLongExit {
		t.Errorf("expected LONG_EXIT, got %s", sig)
	}

	sig = c.Classify(Input{HasOpenLong: true, Score: 4.0})
	if sig != types.SignalLongExit {
		t.Errorf("long exit threshold is inclusive, got %s", sig)
	}

	sig = c.Classify(Input{HasOpenShort: true, Score: 3.0})
	if sig != types.SignalShortExit {
		t.Errorf("expected SHORT_EXIT, got %s", sig)
	}

	sig = c.Classify(Input{HasOpenShort: true, Score: 2.5})
	if sig != types.SignalHold {
		t.Errorf("expected HOLD for short under exit threshold, got %s", sig)
	}
}

func TestNoEntryWhileHoldingEitherSide(t *testing.T) {
	c := newTestClassifier()

	// A great score on an open short must not propose a same-cycle flip.
	sig := c.Classify(Input{HasOpenShort: true, Score: 9.0, Confidence: 0.95})
	if sig == types.SignalLongEntry {
		t.Error("classifier proposed LONG_ENTRY while a SHORT is open")
	}
	if sig != types.SignalShortExit {
		t.Errorf("expected SHORT_EXIT, got %s", sig)
	}

	sig = c.Classify(Input{
		HasOpenLong: true, Score: 1.0, Confidence: 0.9,
		MarketFilter: true, LiquidityFilter: true,
	})
	if sig == types.SignalShortEntry {
		t.Error("classifier proposed SHORT_ENTRY while a LONG is open")
	}
	if sig != types.SignalLongExit {
		t.Errorf("expected LONG_EXIT, got %s", sig)
	}
}

func TestHoldInMidRange(t *testing.T) {
	c := newTestClassifier()
	if sig := c.Classify(Input{Score: 5.0, Confidence: 0.9}); sig != types.SignalHold {
		t.Errorf("expected HOLD, got %s", sig)
	}
}
