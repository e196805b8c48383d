package session

import (
	"strings"
	"time"

	"score-trader/internal/types"
)

// Kind is the market-session context used to adapt the scan watchlist.
type Kind string

const (
	MarketHours Kind = "MARKET_HOURS"
	AfterHours  Kind = "AFTER_HOURS"
	Weekend     Kind = "WEEKEND"
)

// Exchange describes one equity venue's trading window.
type Exchange struct {
	Name     string
	TZ       string
	Open     string // "15:04" local
	Close    string
	Suffixes []string // symbol suffixes routed to this venue
}

// US venues share the NYSE/NASDAQ window and take unsuffixed symbols.
var exchanges = []Exchange{
	{Name: "NASDAQ", TZ: "America/New_York", Open: "09:30", Close: "16:00"},
	{Name: "LSE", TZ: "Europe/London", Open: "08:00", Close: "16:30", Suffixes: []string{".L"}},
	{Name: "FRA", TZ: "Europe/Berlin", Open: "09:00", Close: "17:30", Suffixes: []string{".F", ".DE"}},
	{Name: "EPA", TZ: "Europe/Paris", Open: "09:00", Close: "17:30", Suffixes: []string{".PA"}},
	{Name: "TSE", TZ: "Asia/Tokyo", Open: "09:00", Close: "15:00", Suffixes: []string{".T"}},
	{Name: "HKG", TZ: "Asia/Hong_Kong", Open: "09:30", Close: "16:00", Suffixes: []string{".HK"}},
	{Name: "ASX", TZ: "Australia/Sydney", Open: "10:00", Close: "16:00", Suffixes: []string{".AX"}},
	{Name: "TSX", TZ: "America/Toronto", Open: "09:30", Close: "16:00", Suffixes: []string{".TO"}},
}

// ExchangeFor routes a symbol to its venue by suffix. Unsuffixed symbols
// go to the US session.
func ExchangeFor(symbol string) Exchange {
	for _, ex := range exchanges {
		for _, suf := range ex.Suffixes {
			if strings.HasSuffix(symbol, suf) {
				return ex
			}
		}
	}
	return exchanges[0]
}

// IsTradable reports whether the instrument can trade at time t.
// Crypto is always tradable.
func IsTradable(symbol string, itype types.InstrumentType, t time.Time) bool {
	if itype == types.Crypto {
		return true
	}
	ex := ExchangeFor(symbol)
	loc, err := time.LoadLocation(ex.TZ)
	if err != nil {
		return false
	}
	local := t.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	open, _ := time.Parse("15:04", ex.Open)
	close_, _ := time.Parse("15:04", ex.Close)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= open.Hour()*60+open.Minute() &&
		minutes < close_.Hour()*60+close_.Minute()
}

// Current classifies the present session from the US equity session's
// point of view, which drives tier composition.
func Current(t time.Time) Kind {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return AfterHours
	}
	local := t.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return Weekend
	}
	minutes := local.Hour()*60 + local.Minute()
	if minutes >= 9*60+30 && minutes < 16*60 {
		return MarketHours
	}
	return AfterHours
}
