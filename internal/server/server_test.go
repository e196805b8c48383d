package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"score-trader/internal/alerts"
	"score-trader/internal/book"
	"score-trader/internal/engine"
	"score-trader/internal/logger"
	"score-trader/internal/types"
)

func init() {
	logger.InitWithConfig(logger.LogConfig{Level: "ERROR", Format: "text"})
}

// fakeState backs the server with a live book and an explicit publish
// step, mirroring how the engine swaps its snapshot at cycle boundaries.
type fakeState struct {
	mu     sync.Mutex
	book   *book.Book
	snap   engine.Snapshot
	called bool
	closed []types.Position
}

func (f *fakeState) publish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = engine.Snapshot{
		Open:      f.book.ListOpen(book.Filter{}),
		Closed:    f.book.ListClosed(),
		Portfolio: f.book.Portfolio(),
	}
}

func (f *fakeState) Snapshot() engine.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeState) TriggerEmergencyExit(ctx context.Context) []types.Position {
	f.called = true
	return f.closed
}

func newTestServer(t *testing.T) (*Server, *fakeState, *alerts.Manager) {
	t.Helper()
	fs := &fakeState{book: book.New(book.Limits{MaxShortPositions: 3, MaxShortNotional: 15000})}
	am := alerts.NewManager()
	return New(":0", fs, am), fs, am
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestPositionsFilter(t *testing.T) {
	s, fs, _ := newTestServer(t)
	mustOpen(t, fs.book, "AAPL", types.Long)
	mustOpen(t, fs.book, "DOGE-USD", types.Short)
	fs.publish()

	var all []types.Position
	if code := get(t, s, "/positions", &all); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 open positions, got %d", len(all))
	}

	var shorts []types.Position
	get(t, s, "/positions?side=SHORT", &shorts)
	if len(shorts) != 1 || shorts[0].Symbol != "DOGE-USD" {
		t.Errorf("side filter broken: %+v", shorts)
	}

	var aapl []types.Position
	get(t, s, "/positions?symbol=AAPL", &aapl)
	if len(aapl) != 1 || aapl[0].Symbol != "AAPL" {
		t.Errorf("symbol filter broken: %+v", aapl)
	}
}

// Book mutations between publishes must stay invisible to readers until
// the next snapshot is swapped in.
func TestReadersSeeOnlyPublishedState(t *testing.T) {
	s, fs, _ := newTestServer(t)
	mustOpen(t, fs.book, "AAPL", types.Long)
	fs.publish()
	mustOpen(t, fs.book, "DOGE-USD", types.Short)

	var open []types.Position
	get(t, s, "/positions", &open)
	if len(open) != 1 || open[0].Symbol != "AAPL" {
		t.Fatalf("unpublished mutation leaked to readers: %+v", open)
	}

	var pf types.PortfolioState
	get(t, s, "/portfolio", &pf)
	if pf.OpenShort != 0 || pf.OpenLong != 1 {
		t.Errorf("portfolio out of step with published snapshot: %+v", pf)
	}

	fs.publish()
	get(t, s, "/positions", &open)
	if len(open) != 2 {
		t.Errorf("expected both positions after publish, got %+v", open)
	}
}

func TestAlertsSeverityFilter(t *testing.T) {
	s, _, am := newTestServer(t)
	am.Raise(types.SeverityHigh, "", "DOGE-USD", "near stop")
	am.Raise(types.SeverityLow, "", "AAPL", "held a while")

	var high []types.Alert
	get(t, s, "/alerts?severity=HIGH", &high)
	if len(high) != 1 || high[0].Symbol != "DOGE-USD" {
		t.Errorf("severity filter broken: %+v", high)
	}
}

func TestPerformanceEndpoint(t *testing.T) {
	s, fs, _ := newTestServer(t)
	p := mustOpen(t, fs.book, "AAPL", types.Long)
	if _, err := fs.book.Close(p.ID, types.CloseTakeProfit, 112); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	fs.publish()

	var perf struct {
		Closed      int     `json:"closed"`
		Wins        int     `json:"wins"`
		RealizedPnL float64 `json:"realized_pnl"`
	}
	get(t, s, "/performance", &perf)
	if perf.Closed != 1 || perf.Wins != 1 {
		t.Errorf("unexpected performance summary: %+v", perf)
	}
}

func TestEmergencyExitEndpoint(t *testing.T) {
	s, fs, _ := newTestServer(t)
	fs.closed = []types.Position{{Symbol: "DOGE-USD", Side: types.Short}}

	req := httptest.NewRequest(http.MethodPost, "/emergency-exit", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !fs.called {
		t.Fatal("trigger not invoked")
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("expected count 1, got %d", resp.Count)
	}

	// Method matters: GET must not trigger a sweep.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/emergency-exit", nil))
	if rec.Code == http.StatusOK {
		t.Errorf("GET on emergency-exit should fail, got %d", rec.Code)
	}
}

func mustOpen(t *testing.T, b *book.Book, symbol string, side types.Side) types.Position {
	t.Helper()
	itype := types.Stock
	if side == types.Short {
		itype = types.Crypto
	}
	p, err := b.Open(book.OpenRequest{
		Symbol:     symbol,
		Type:       itype,
		Side:       side,
		Qty:        10,
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 112,
	})
	if err != nil {
		t.Fatalf("open %s: %v", symbol, err)
	}
	return p
}
