package marketdata

import (
	"context"
	"fmt"
	"sync"

	"score-trader/internal/types"
)

// MockGateway serves canned quotes, used in tests and PAPER dry runs.
// Symbols can be failed on demand to exercise stale-quote handling.
type MockGateway struct {
	mu     sync.Mutex
	quotes map[string]types.Quote
	fail   map[string]bool
	calls  int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		quotes: make(map[string]types.Quote),
		fail:   make(map[string]bool),
	}
}

func (g *MockGateway) SetQuote(q types.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[q.Symbol] = q
}

func (g *MockGateway) SetFailing(symbol string, failing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[symbol] = failing
}

func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *MockGateway) FetchQuote(ctx context.Context, symbol string) (types.Quote, error) {
	quotes, errs := g.FetchQuotes(ctx, []string{symbol})
	if q, ok := quotes[symbol]; ok {
		return q, nil
	}
	return types.Quote{}, errs[symbol]
}

func (g *MockGateway) FetchQuotes(ctx context.Context, symbols []string) (map[string]types.Quote, map[string]error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	quotes := make(map[string]types.Quote)
	errs := make(map[string]error)
	for _, s := range symbols {
		if g.fail[s] {
			errs[s] = fmt.Errorf("simulated fetch failure for %s", s)
			continue
		}
		q, ok := g.quotes[s]
		if !ok {
			errs[s] = fmt.Errorf("unknown symbol %s", s)
			continue
		}
		quotes[s] = q
	}
	return quotes, errs
}
