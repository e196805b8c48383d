package marketdata

import (
	"testing"
	"time"
)

func TestBudgetMinuteWindow(t *testing.T) {
	b := NewBudget(10, 100)
	now := time.Now()
	b.now = func() time.Time { return now }

	if !b.TryReserve(8) {
		t.Fatal("first batch should fit")
	}
	if b.TryReserve(8) {
		t.Fatal("second batch exceeds per-minute budget")
	}
	if !b.TryReserve(2) {
		t.Fatal("remaining 2 should fit")
	}

	// A minute later the window has slid clear.
	now = now.Add(61 * time.Second)
	if !b.TryReserve(8) {
		t.Fatal("budget should refresh after a minute")
	}
}

func TestBudgetHourWindow(t *testing.T) {
	b := NewBudget(1000, 20)
	now := time.Now()
	b.now = func() time.Time { return now }

	// Fill the hour budget across separate minutes.
	for i := 0; i < 4; i++ {
		if !b.TryReserve(5) {
			t.Fatalf("reserve %d failed", i)
		}
		now = now.Add(2 * time.Minute)
	}
	if b.TryReserve(1) {
		t.Fatal("hour budget exhausted, reserve should fail")
	}

	// First stamps fall out of the hour window.
	now = now.Add(55 * time.Minute)
	if !b.TryReserve(5) {
		t.Fatal("budget should free up as stamps age out")
	}
}

func TestBudgetRemaining(t *testing.T) {
	b := NewBudget(10, 15)
	now := time.Now()
	b.now = func() time.Time { return now }

	if got := b.Remaining(); got != 10 {
		t.Errorf("expected 10 remaining, got %d", got)
	}
	b.TryReserve(8)
	if got := b.Remaining(); got != 2 {
		t.Errorf("expected 2 remaining, got %d", got)
	}

	// Minute window slides but the hour cap now binds: 15-8=7.
	now = now.Add(2 * time.Minute)
	if got := b.Remaining(); got != 7 {
		t.Errorf("expected hour cap 7 remaining, got %d", got)
	}
}

func TestSymbolMapping(t *testing.T) {
	if got := streamName("BTC-USD"); got != "btcusdt" {
		t.Errorf("streamName: got %s", got)
	}
	if got := ourSymbol("ETHUSDT"); got != "ETH-USD" {
		t.Errorf("ourSymbol: got %s", got)
	}
}
