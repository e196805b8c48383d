package session

import (
	"testing"
	"time"

	"score-trader/internal/types"
)

func TestExchangeRouting(t *testing.T) {
	cases := map[string]string{
		"AAPL":    "NASDAQ",
		"BARC.L":  "LSE",
		"BMW.DE":  "FRA",
		"AIR.PA":  "EPA",
		"7203.T":  "TSE",
		"0700.HK": "HKG",
		"BHP.AX":  "ASX",
		"SHOP.TO": "TSX",
	}
	for sym, want := range cases {
		if got := ExchangeFor(sym).Name; got != want {
			t.Errorf("%s routed to %s, want %s", sym, got, want)
		}
	}
}

func TestCryptoAlwaysTradable(t *testing.T) {
	// Sunday 03:00 UTC.
	sunday := time.Date(2026, 8, 23, 3, 0, 0, 0, time.UTC)
	if !IsTradable("BTC-USD", types.Crypto, sunday) {
		t.Error("crypto must be tradable on weekends")
	}
	if IsTradable("AAPL", types.Stock, sunday) {
		t.Error("US equities must not be tradable on Sunday")
	}
}

func TestUSMarketHours(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tz database unavailable")
	}

	// Tuesday 10:00 New York.
	open := time.Date(2026, 8, 25, 10, 0, 0, 0, ny)
	if !IsTradable("AAPL", types.Stock, open) {
		t.Error("AAPL should trade Tuesday 10:00 NY")
	}
	if Current(open) != MarketHours {
		t.Errorf("expected MARKET_HOURS, got %s", Current(open))
	}

	// Tuesday 20:00 New York.
	evening := time.Date(2026, 8, 25, 20, 0, 0, 0, ny)
	if IsTradable("AAPL", types.Stock, evening) {
		t.Error("AAPL should not trade at 20:00 NY")
	}
	if Current(evening) != AfterHours {
		t.Errorf("expected AFTER_HOURS, got %s", Current(evening))
	}

	sat := time.Date(2026, 8, 22, 12, 0, 0, 0, ny)
	if Current(sat) != Weekend {
		t.Errorf("expected WEEKEND, got %s", Current(sat))
	}
}

func TestInternationalHours(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skip("tz database unavailable")
	}

	// Wednesday 09:00 London: LSE open, Tokyo closed.
	morning := time.Date(2026, 8, 26, 9, 0, 0, 0, london)
	if !IsTradable("BARC.L", types.Stock, morning) {
		t.Error("LSE symbol should trade Wednesday 09:00 London")
	}
	if IsTradable("7203.T", types.Stock, morning) {
		t.Error("Tokyo symbol should be closed at 17:00 JST")
	}
}
