package engine

import (
	"context"
	"strings"
	"sync"
	"testing"

	"score-trader/internal/alerts"
	"score-trader/internal/book"
	"score-trader/internal/config"
	"score-trader/internal/indicators"
	"score-trader/internal/logger"
	"score-trader/internal/marketdata"
	"score-trader/internal/risk"
	"score-trader/internal/scheduler"
	"score-trader/internal/sentiment"
	"score-trader/internal/types"
)

func init() {
	logger.InitWithConfig(logger.LogConfig{Level: "ERROR", Format: "text"})
}

type memLog struct {
	mu     sync.Mutex
	events []types.Event
}

func (l *memLog) Record(e types.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func testConfig() *config.Config {
	var c config.Config
	c.Universe.Stocks = []string{"AAPL"}
	c.Universe.Crypto = []string{"BTC-USD", "DOGE-USD"}
	config.ApplyDefaults(&c)
	return &c
}

type harness struct {
	eng     *Engine
	gateway *marketdata.MockGateway
	book    *book.Book
	risk    *risk.Manager
	alerts  *alerts.Manager
	tracker *indicators.Tracker
	txlog   *memLog
}

func newHarness(cfg *config.Config) *harness {
	b := book.New(book.Limits{
		MaxShortPositions: cfg.Risk.MaxShortPositions,
		MaxShortNotional:  cfg.Risk.ShortExposureFrac * cfg.Risk.CryptoCapital,
	})
	am := alerts.NewManager()
	tl := &memLog{}
	rm := risk.NewManager(cfg, b, tl, nil, am)
	gw := marketdata.NewMockGateway()
	sched := scheduler.New(cfg, gw, marketdata.NewBudget(cfg.Scan.PerMinute, cfg.Scan.PerHour))
	tr := indicators.NewTracker()
	eng := New(Deps{
		Config:    cfg,
		Book:      b,
		Risk:      rm,
		Scheduler: sched,
		Tracker:   tr,
		Sentiment: sentiment.NewService(false),
		Alerts:    am,
		TxLog:     tl,
	})
	return &harness{eng: eng, gateway: gw, book: b, risk: rm, alerts: am, tracker: tr, txlog: tl}
}

// Neutral quotes that keep every symbol in HOLD territory.
func (h *harness) setNeutralQuotes() {
	h.gateway.SetQuote(types.Quote{Symbol: "AAPL", Type: types.Stock, Price: 180, ChangePct: 0.2, Volume: 500_000, MarketCap: 5e9, Sector: "Utilities"})
	h.gateway.SetQuote(types.Quote{Symbol: "BTC-USD", Type: types.Crypto, Price: 60000, ChangePct: -1, Volume: 50_000_000})
	h.gateway.SetQuote(types.Quote{Symbol: "DOGE-USD", Type: types.Crypto, Price: 0.10, ChangePct: -1, Volume: 50_000_000})
}

// Scenario: a stock scoring at the top of the ladder enters long with
// stock-default stops, everything else holds.
func TestCycleOpensLongOnStrongScore(t *testing.T) {
	h := newHarness(testConfig())
	h.setNeutralQuotes()
	h.gateway.SetQuote(types.Quote{
		Symbol: "AAPL", Type: types.Stock, Price: 200,
		ChangePct: 6, Volume: 20_000_000, MarketCap: 2e12, Sector: "Technology",
	})

	sum, err := h.eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if sum.Opened != 1 {
		t.Fatalf("expected 1 entry, got %d", sum.Opened)
	}

	open := h.book.ListOpen(book.Filter{Symbol: "AAPL"})
	if len(open) != 1 || open[0].Side != types.Long {
		t.Fatalf("expected one open AAPL long, got %+v", open)
	}
	if open[0].StopLoss != 190 {
		t.Errorf("expected stop 190 (entry*0.95), got %f", open[0].StopLoss)
	}
}

// Scenario: a crypto symbol passes the weak-score pre-filter with a
// collapsing price history, the weighted scorer confirms with enough
// confidence, and a short opens with crypto short stops.
func TestDualShortGateOpensShort(t *testing.T) {
	h := newHarness(testConfig())
	h.setNeutralQuotes()

	// 25 observations declining 1% per step, then a 15% break on the
	// current quote: trend, RSI and band position all confirm bearish.
	price := 0.10
	for i := 0; i < 25; i++ {
		h.tracker.Observe("DOGE-USD", price)
		price *= 0.99
	}
	crash := price * 0.85
	h.gateway.SetQuote(types.Quote{
		Symbol: "DOGE-USD", Type: types.Crypto, Price: crash,
		ChangePct: -12, Volume: 20_000_000,
	})

	sum, err := h.eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if sum.Opened != 1 {
		t.Fatalf("expected 1 entry, got %d (rejected=%d)", sum.Opened, sum.Rejected)
	}

	open := h.book.ListOpen(book.Filter{Symbol: "DOGE-USD"})
	if len(open) != 1 || open[0].Side != types.Short {
		t.Fatalf("expected one open DOGE-USD short, got %+v", open)
	}
	wantStop := crash * 1.08
	if diff := open[0].StopLoss - wantStop; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected crypto short stop %f, got %f", wantStop, open[0].StopLoss)
	}
}

// Scenario: the same bearish setup does not short while the benchmark is
// in a strong uptrend.
func TestUptrendGuardBlocksShortEntry(t *testing.T) {
	h := newHarness(testConfig())
	h.setNeutralQuotes()
	h.gateway.SetQuote(types.Quote{Symbol: "BTC-USD", Type: types.Crypto, Price: 60000, ChangePct: 3, Volume: 50_000_000})

	price := 0.10
	for i := 0; i < 25; i++ {
		h.tracker.Observe("DOGE-USD", price)
		price *= 0.99
	}
	h.gateway.SetQuote(types.Quote{
		Symbol: "DOGE-USD", Type: types.Crypto, Price: price * 0.85,
		ChangePct: -12, Volume: 20_000_000,
	})

	sum, _ := h.eng.RunCycle(context.Background())
	if sum.Opened != 0 {
		t.Fatalf("expected no entries under benchmark uptrend, got %d", sum.Opened)
	}
	if len(h.book.ListOpen(book.Filter{Side: types.Short})) != 0 {
		t.Error("short opened despite benchmark uptrend")
	}
}

// Scenario: readers only see the book as of the last cycle boundary; a
// mutation between boundaries stays invisible until the next publish.
func TestSnapshotPublishedAtCycleBoundaries(t *testing.T) {
	h := newHarness(testConfig())
	h.setNeutralQuotes()
	ctx := context.Background()

	if _, err := h.risk.GateEntry(ctx, types.Quote{Symbol: "AAPL", Type: types.Stock, Price: 180}, types.Long); err != nil {
		t.Fatalf("seed entry failed: %v", err)
	}
	if got := h.eng.Snapshot(); len(got.Open) != 0 {
		t.Fatalf("book mutation visible before a cycle boundary: %+v", got.Open)
	}

	if _, err := h.eng.RunCycle(ctx); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	snap := h.eng.Snapshot()
	if len(snap.Open) != 1 || snap.Open[0].Symbol != "AAPL" {
		t.Fatalf("expected the AAPL long in the published snapshot, got %+v", snap.Open)
	}
	if snap.Portfolio.OpenLong != 1 {
		t.Errorf("portfolio snapshot out of step: %+v", snap.Portfolio)
	}
}

// Scenario: once enough benchmark history has accumulated, the uptrend
// guard runs on the trailing return over the configured lookback, not on
// the quote's 24h change.
func TestUptrendGuardUsesTrailingReturn(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.UptrendLookback = 5
	h := newHarness(cfg)
	h.setNeutralQuotes()

	// Benchmark climbed steadily across the lookback window while its
	// 24h change still reads negative.
	price := 100.0
	for i := 0; i < 6; i++ {
		h.tracker.Observe("BTC-USD", price)
		price *= 1.008
	}
	h.gateway.SetQuote(types.Quote{Symbol: "BTC-USD", Type: types.Crypto, Price: 104.5, ChangePct: -1, Volume: 50_000_000})

	if _, err := h.eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if h.risk.MarketFilterPassed() {
		t.Error("guard should block shorts on a rising benchmark trailing return")
	}
}

// Scenario: a position whose quote fetch keeps failing is escalated after
// three consecutive cycles and stays open, still protected on stale data.
func TestStaleOpenPositionEscalates(t *testing.T) {
	h := newHarness(testConfig())
	h.setNeutralQuotes()

	q := types.Quote{Symbol: "AAPL", Type: types.Stock, Price: 100}
	if _, err := h.risk.GateEntry(context.Background(), q, types.Long); err != nil {
		t.Fatalf("seed entry failed: %v", err)
	}
	h.gateway.SetFailing("AAPL", true)

	for i := 0; i < 3; i++ {
		if _, err := h.eng.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}

	high := h.alerts.List(types.SeverityHigh)
	if len(high) == 0 {
		t.Fatal("expected a HIGH alert after 3 consecutive fetch failures")
	}
	if !strings.Contains(high[0].Message, "consecutive") {
		t.Errorf("unexpected alert message %q", high[0].Message)
	}
	if len(h.book.ListOpen(book.Filter{Symbol: "AAPL"})) != 1 {
		t.Error("stale position must stay open, not be force-closed")
	}
}

// Scenario: a stop-loss close in the pre-pass freezes the symbol for the
// rest of the cycle even if its fresh score would qualify for entry.
func TestNoReentryInSameCycle(t *testing.T) {
	h := newHarness(testConfig())
	h.setNeutralQuotes()

	q := types.Quote{Symbol: "AAPL", Type: types.Stock, Price: 100}
	if _, err := h.risk.GateEntry(context.Background(), q, types.Long); err != nil {
		t.Fatalf("seed entry failed: %v", err)
	}
	// Price breaches the stop while the quote still scores a strong long.
	h.gateway.SetQuote(types.Quote{
		Symbol: "AAPL", Type: types.Stock, Price: 90,
		ChangePct: 6, Volume: 20_000_000, MarketCap: 2e12, Sector: "Technology",
	})

	sum, err := h.eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if sum.ClosedPre != 1 {
		t.Fatalf("expected stop-loss close in pre-pass, got %d", sum.ClosedPre)
	}
	if sum.Opened != 0 {
		t.Errorf("expected no same-cycle re-entry, got %d", sum.Opened)
	}
	if len(h.book.ListOpen(book.Filter{Symbol: "AAPL"})) != 0 {
		t.Error("position should remain closed this cycle")
	}
}

// Scenario: the manual emergency trigger sweeps all shorts immediately,
// longs are untouched.
func TestTriggerEmergencyExit(t *testing.T) {
	h := newHarness(testConfig())
	ctx := context.Background()

	if _, err := h.risk.GateEntry(ctx, types.Quote{Symbol: "DOGE-USD", Type: types.Crypto, Price: 0.10}, types.Short); err != nil {
		t.Fatalf("seed short failed: %v", err)
	}
	if _, err := h.risk.GateEntry(ctx, types.Quote{Symbol: "AAPL", Type: types.Stock, Price: 100}, types.Long); err != nil {
		t.Fatalf("seed long failed: %v", err)
	}

	closed := h.eng.TriggerEmergencyExit(ctx)
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed short, got %d", len(closed))
	}
	if closed[0].CloseReason != types.CloseEmergency {
		t.Errorf("expected EMERGENCY close reason, got %s", closed[0].CloseReason)
	}
	if len(h.book.ListOpen(book.Filter{Side: types.Short})) != 0 {
		t.Error("shorts remain open after emergency exit")
	}
	if len(h.book.ListOpen(book.Filter{Side: types.Long})) != 1 {
		t.Error("long should be untouched by emergency exit")
	}
	if snap := h.eng.Snapshot(); len(snap.Open) != 1 || snap.Open[0].Side != types.Long {
		t.Errorf("snapshot not republished after the sweep: %+v", snap.Open)
	}
}
