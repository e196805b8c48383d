package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"score-trader/internal/config"
	"score-trader/internal/interfaces"
	"score-trader/internal/logger"
	"score-trader/internal/marketdata"
	"score-trader/internal/session"
	"score-trader/internal/types"
)

// CycleData is what one scan cycle produced: fresh quotes, last-known
// quotes for symbols whose fetch failed (stale, still risk-checked), and
// per-symbol consecutive-failure counts.
type CycleData struct {
	Quotes    map[string]types.Quote
	Stale     map[string]types.Quote
	FailCount map[string]int
	Deferred  []string
}

// Scheduler selects which symbols are fetched each cycle, in tier order
// and fixed-size batches, inside the sliding rate budget. Tier0 (symbols
// with open positions) is always fetched and never deferred.
type Scheduler struct {
	cfg     *config.Config
	gateway interfaces.MarketDataGateway
	budget  *marketdata.Budget

	mu        sync.Mutex
	lastKnown map[string]types.Quote
	failCount map[string]int
	tier1     map[string]bool // flagged by notable movement last cycle
	deferred  []string        // tier2 remainder pushed to next cycle
	stopping  bool

	now func() time.Time
}

func New(cfg *config.Config, gateway interfaces.MarketDataGateway, budget *marketdata.Budget) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		gateway:   gateway,
		budget:    budget,
		lastKnown: make(map[string]types.Quote),
		failCount: make(map[string]int),
		tier1:     make(map[string]bool),
		now:       time.Now,
	}
}

// Stop requests a graceful stop: the in-flight batch completes, remaining
// tier2 batches are skipped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
}

// LastKnown returns the most recent quote ever fetched for a symbol.
func (s *Scheduler) LastKnown(symbol string) (types.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.lastKnown[symbol]
	return q, ok
}

// Plan builds this cycle's ordered batches. Tier0 comes first and whole;
// tier1 next; tier2 is composed for the session: during US market hours
// equities and top crypto lead, after hours and on weekends crypto and
// international instruments dominate.
func (s *Scheduler) Plan(openSymbols []string, now time.Time) [][]string {
	s.mu.Lock()
	deferred := s.deferred
	s.deferred = nil
	tier1 := make([]string, 0, len(s.tier1))
	for sym := range s.tier1 {
		tier1 = append(tier1, sym)
	}
	s.mu.Unlock()
	sort.Strings(tier1)

	seen := make(map[string]bool)
	ordered := make([]string, 0)
	add := func(syms ...string) {
		for _, sym := range syms {
			if sym != "" && !seen[sym] {
				seen[sym] = true
				ordered = append(ordered, sym)
			}
		}
	}

	add(openSymbols...)
	add(s.cfg.Universe.Benchmark)
	add(tier1...)
	add(deferred...)

	switch session.Current(now) {
	case session.MarketHours:
		add(s.cfg.Universe.Stocks...)
		add(s.cfg.Universe.Crypto...)
		add(s.cfg.Universe.International...)
	default:
		add(s.cfg.Universe.Crypto...)
		add(s.cfg.Universe.International...)
		add(s.cfg.Universe.Stocks...)
	}

	batches := make([][]string, 0, len(ordered)/s.cfg.Scan.BatchSize+1)
	for i := 0; i < len(ordered); i += s.cfg.Scan.BatchSize {
		end := i + s.cfg.Scan.BatchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batches = append(batches, ordered[i:end])
	}

	return batches
}

// tier0Set marks the symbols that may never be deferred.
func tier0Set(openSymbols []string, benchmark string) map[string]bool {
	set := make(map[string]bool, len(openSymbols)+1)
	for _, sym := range openSymbols {
		set[sym] = true
	}
	set[benchmark] = true
	return set
}

// Fetch runs the plan against the gateway. Tier0 batches wait on the
// budget if they must; other batches are deferred to the next cycle once
// the budget is exhausted or a stop was requested.
func (s *Scheduler) Fetch(ctx context.Context, openSymbols []string) CycleData {
	batches := s.Plan(openSymbols, s.now())
	tier0 := tier0Set(openSymbols, s.cfg.Universe.Benchmark)

	data := CycleData{
		Quotes:    make(map[string]types.Quote),
		Stale:     make(map[string]types.Quote),
		FailCount: make(map[string]int),
	}

	for _, batch := range batches {
		isTier0 := false
		for _, sym := range batch {
			if tier0[sym] {
				isTier0 = true
				break
			}
		}

		s.mu.Lock()
		stopping := s.stopping
		s.mu.Unlock()

		if !isTier0 {
			if stopping || !s.reserveBounded(ctx, len(batch)) {
				s.pushDeferred(batch)
				data.Deferred = append(data.Deferred, batch...)
				continue
			}
		} else {
			// Position safety is never rate-limited out; block if needed.
			if err := s.budget.Wait(ctx, len(batch)); err != nil {
				s.fillStale(batch, &data)
				continue
			}
		}

		s.fetchBatch(ctx, batch, &data)
	}

	s.updateTier1(data.Quotes)
	return data
}

func (s *Scheduler) fetchBatch(ctx context.Context, batch []string, data *CycleData) {
	quotes, errs := s.gateway.FetchQuotes(ctx, batch)

	// One retry for the failures, inside the same budget.
	if len(errs) > 0 && s.cfg.Scan.FetchRetries > 0 {
		retry := make([]string, 0, len(errs))
		for sym := range errs {
			retry = append(retry, sym)
		}
		sort.Strings(retry)
		if s.budget.TryReserve(len(retry)) {
			more, stillErrs := s.gateway.FetchQuotes(ctx, retry)
			for sym, q := range more {
				quotes[sym] = q
				delete(errs, sym)
			}
			for sym, err := range stillErrs {
				errs[sym] = err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, q := range quotes {
		s.lastKnown[sym] = q
		s.failCount[sym] = 0
		data.Quotes[sym] = q
	}
	for sym, err := range errs {
		s.failCount[sym]++
		data.FailCount[sym] = s.failCount[sym]
		if last, ok := s.lastKnown[sym]; ok {
			data.Stale[sym] = last
		}
		logger.Warn(ctx, "Quote fetch failed, symbol stale for cycle",
			"symbol", sym, "consecutive_failures", s.failCount[sym], "error", err)
	}
}

// fillStale records last-known quotes for a batch that could not be
// fetched at all.
func (s *Scheduler) fillStale(batch []string, data *CycleData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range batch {
		s.failCount[sym]++
		data.FailCount[sym] = s.failCount[sym]
		if last, ok := s.lastKnown[sym]; ok {
			data.Stale[sym] = last
		}
	}
}

// reserveBounded gives a lower-tier batch a short window on the budget
// before giving up. Transient per-minute exhaustion clears inside the
// window; anything longer defers the batch to the next cycle.
func (s *Scheduler) reserveBounded(ctx context.Context, n int) bool {
	if s.budget.TryReserve(n) {
		return true
	}
	wait := time.Duration(s.cfg.Scan.BatchWaitSec) * time.Second
	if wait <= 0 {
		return false
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return s.budget.Wait(wctx, n) == nil
}

func (s *Scheduler) pushDeferred(batch []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred = append(s.deferred, batch...)
}

// updateTier1 reflags opportunity candidates from this cycle's movement.
func (s *Scheduler) updateTier1(quotes map[string]types.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, q := range quotes {
		if q.ChangePct >= s.cfg.Scan.Tier1ChangePct || q.ChangePct <= -s.cfg.Scan.Tier1ChangePct {
			s.tier1[sym] = true
		} else {
			delete(s.tier1, sym)
		}
	}
}
