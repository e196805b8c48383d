package indicators

import (
	"math"
	"sync"

	"score-trader/internal/ta"
)

const (
	smaWindow   = 10
	rsiPeriod   = 14
	bbWindow    = 20
	bbStdDev    = 2.0
	rocPeriod   = 5
	historyKeep = 64
)

// Tracker accumulates per-symbol price history across cycles and derives
// the technical and momentum sub-scores consumed by the short-side
// scorer. Outputs are on the same [0,10] health scale as the aggregate
// score: low means bearish confirmation.
type Tracker struct {
	mu      sync.RWMutex
	history map[string][]float64
}

func NewTracker() *Tracker {
	return &Tracker{history: make(map[string][]float64)}
}

// Observe appends the latest price for a symbol.
func (t *Tracker) Observe(symbol string, price float64) {
	if price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.history[symbol], price)
	if len(h) > historyKeep {
		h = h[len(h)-historyKeep:]
	}
	t.history[symbol] = h
}

func (t *Tracker) closes(symbol string) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h := t.history[symbol]
	out := make([]float64, len(h))
	copy(out, h)
	return out
}

// Technical derives a health sub-score from trend, RSI and Bollinger
// position. Returns nil until enough history has accumulated.
func (t *Tracker) Technical(symbol string) *float64 {
	closes := t.closes(symbol)
	if len(closes) < rsiPeriod+1 {
		return nil
	}
	price := closes[len(closes)-1]
	score := 5.0

	if sma := ta.SMA(closes, smaWindow); !math.IsNaN(sma) {
		if price > sma {
			score += 2
		} else {
			score -= 2
		}
	}

	if rsi := ta.RSI(closes, rsiPeriod); !math.IsNaN(rsi) {
		switch {
		case rsi > 60:
			score += 1.5
		case rsi < 40:
			score -= 1.5
		}
	}

	if len(closes) >= bbWindow {
		_, up, low := ta.Bollinger(closes, bbWindow, bbStdDev)
		switch {
		case price > up:
			score += 1.5
		case price < low:
			score -= 1.5
		}
	}

	v := clamp(score, 0, 10)
	return &v
}

// Momentum maps the short-window rate of change onto the health scale.
// Returns nil until enough history has accumulated.
func (t *Tracker) Momentum(symbol string) *float64 {
	closes := t.closes(symbol)
	roc := ta.ROC(closes, rocPeriod)
	if math.IsNaN(roc) {
		return nil
	}
	v := clamp(5+roc, 0, 10)
	return &v
}

// TrailingReturn is the percent change over the last lookback
// observations, used for the benchmark uptrend guard.
func (t *Tracker) TrailingReturn(symbol string, lookback int) (float64, bool) {
	closes := t.closes(symbol)
	if len(closes) < lookback+1 || lookback <= 0 {
		return 0, false
	}
	prev := closes[len(closes)-1-lookback]
	if prev == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - prev) / prev * 100, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
