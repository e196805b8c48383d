package indicators

import "testing"

func feed(t *Tracker, symbol string, prices []float64) {
	for _, p := range prices {
		t.Observe(symbol, p)
	}
}

func TestTechnicalNilWithoutHistory(t *testing.T) {
	tr := NewTracker()
	feed(tr, "BTC-USD", []float64{100, 101, 102})

	if tr.Technical("BTC-USD") != nil {
		t.Error("expected nil technical with 3 observations")
	}
	if tr.Momentum("BTC-USD") != nil {
		t.Error("expected nil momentum with 3 observations")
	}

	feed(tr, "BTC-USD", []float64{103, 104, 105})
	if tr.Momentum("BTC-USD") == nil {
		t.Error("momentum should be available after 6 observations")
	}
}

func TestTechnicalDowntrendScoresLow(t *testing.T) {
	tr := NewTracker()
	prices := make([]float64, 0, 25)
	p := 120.0
	for i := 0; i < 25; i++ {
		prices = append(prices, p)
		p -= 1.5
	}
	feed(tr, "ETH-USD", prices)

	tech := tr.Technical("ETH-USD")
	if tech == nil {
		t.Fatal("expected technical score")
	}
	if *tech >= 5 {
		t.Errorf("steady downtrend should score below 5, got %f", *tech)
	}
}

func TestTechnicalUptrendScoresHigh(t *testing.T) {
	tr := NewTracker()
	prices := make([]float64, 0, 25)
	p := 100.0
	for i := 0; i < 25; i++ {
		prices = append(prices, p)
		p += 1.5
	}
	feed(tr, "BTC-USD", prices)

	tech := tr.Technical("BTC-USD")
	if tech == nil {
		t.Fatal("expected technical score")
	}
	if *tech <= 5 {
		t.Errorf("steady uptrend should score above 5, got %f", *tech)
	}
}

func TestMomentumMapsROC(t *testing.T) {
	tr := NewTracker()
	feed(tr, "SOL-USD", []float64{100, 100, 100, 100, 100, 100, 97})

	mom := tr.Momentum("SOL-USD")
	if mom == nil {
		t.Fatal("expected momentum score")
	}
	// ROC over 5 periods: (97-100)/100 = -3%, mapped to 2.
	if *mom != 2 {
		t.Errorf("expected 2, got %f", *mom)
	}
}

func TestTrailingReturn(t *testing.T) {
	tr := NewTracker()
	feed(tr, "BTC-USD", []float64{100, 101, 102, 103})

	ret, ok := tr.TrailingReturn("BTC-USD", 3)
	if !ok {
		t.Fatal("expected trailing return")
	}
	if ret != 3 {
		t.Errorf("expected +3%%, got %f", ret)
	}

	if _, ok := tr.TrailingReturn("BTC-USD", 10); ok {
		t.Error("lookback beyond history should report not-ok")
	}
}
