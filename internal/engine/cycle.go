package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"score-trader/internal/alerts"
	"score-trader/internal/book"
	"score-trader/internal/config"
	"score-trader/internal/indicators"
	"score-trader/internal/interfaces"
	"score-trader/internal/logger"
	"score-trader/internal/risk"
	"score-trader/internal/scheduler"
	"score-trader/internal/scoring"
	"score-trader/internal/sentiment"
	"score-trader/internal/signal"
	"score-trader/internal/types"
)

// Engine drives one scan cycle end to end: select and fetch symbols,
// score them, run the risk pre-pass, classify signals, gate entries,
// and emit alerts. Cycles never overlap; the book is only mutated by
// the cycle that holds the engine lock.
type Engine struct {
	cfg        *config.Config
	book       *book.Book
	risk       *risk.Manager
	classifier *signal.Classifier
	scheduler  *scheduler.Scheduler
	tracker    *indicators.Tracker
	sentiment  *sentiment.Service
	ticker     interfaces.TickerCache // may be nil
	alerts     *alerts.Manager
	txlog      interfaces.TransactionLog
	ledger     interfaces.Ledger // may be nil

	mu   sync.Mutex
	now  func() time.Time
	snap atomic.Pointer[Snapshot]
}

// Snapshot is the read-consistent view handed to the HTTP surface. It
// is replaced wholesale at cycle boundaries, so a reader never sees a
// cycle's mutations half applied.
type Snapshot struct {
	Open      []types.Position
	Closed    []types.Position
	Portfolio types.PortfolioState
	TakenAt   time.Time
}

type Deps struct {
	Config    *config.Config
	Book      *book.Book
	Risk      *risk.Manager
	Scheduler *scheduler.Scheduler
	Tracker   *indicators.Tracker
	Sentiment *sentiment.Service
	Ticker    interfaces.TickerCache
	Alerts    *alerts.Manager
	TxLog     interfaces.TransactionLog
	Ledger    interfaces.Ledger
}

func New(d Deps) *Engine {
	e := &Engine{
		cfg:        d.Config,
		book:       d.Book,
		risk:       d.Risk,
		classifier: signal.NewClassifier(d.Config),
		scheduler:  d.Scheduler,
		tracker:    d.Tracker,
		sentiment:  d.Sentiment,
		ticker:     d.Ticker,
		alerts:     d.Alerts,
		txlog:      d.TxLog,
		ledger:     d.Ledger,
		now:        time.Now,
	}
	e.publish()
	return e
}

// Snapshot returns the view published at the last cycle boundary.
func (e *Engine) Snapshot() Snapshot {
	return *e.snap.Load()
}

// publish captures the book under the engine lock (or before the engine
// is handed out) and swaps it in atomically.
func (e *Engine) publish() {
	e.snap.Store(&Snapshot{
		Open:      e.book.ListOpen(book.Filter{}),
		Closed:    e.book.ListClosed(),
		Portfolio: e.book.Portfolio(),
		TakenAt:   e.now(),
	})
}

// CycleSummary reports what one scan cycle did.
type CycleSummary struct {
	Scanned   int
	Stale     int
	Opened    int
	ClosedPre int
	ClosedSig int
	Rejected  int
	Deferred  int
}

// RunCycle executes one full scan cycle.
func (e *Engine) RunCycle(ctx context.Context) (CycleSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := logger.StartOperation(ctx, "scan-cycle")
	ctx = timer.GetContext()
	var sum CycleSummary

	open := e.book.ListOpen(book.Filter{})
	openSymbols := make([]string, 0, len(open))
	for _, p := range open {
		openSymbols = append(openSymbols, p.Symbol)
	}

	data := e.scheduler.Fetch(ctx, openSymbols)
	sum.Scanned = len(data.Quotes)
	sum.Stale = len(data.Stale)
	sum.Deferred = len(data.Deferred)

	for _, q := range data.Quotes {
		e.tracker.Observe(q.Symbol, q.Price)
	}

	if ret, ok := e.benchmarkReturn(data); ok {
		e.risk.SetBenchmarkReturn(ret)
	}

	priceFor := e.priceResolver(data)

	// Risk pre-pass: stops, takes and the emergency condition run before
	// any score is consulted.
	closedPre := e.risk.PrePass(ctx, priceFor)
	sum.ClosedPre = len(closedPre)
	closedThisCycle := make(map[string]bool, len(closedPre))
	for _, p := range closedPre {
		closedThisCycle[p.Symbol] = true
	}

	// Score and classify fresh quotes. Symbols closed by the pre-pass are
	// left alone until next cycle; no same-cycle re-entry.
	scores := make(map[string]types.Score, len(data.Quotes))
	for sym, q := range data.Quotes {
		if closedThisCycle[sym] {
			continue
		}
		opened, closedSig, rejected := e.evaluateSymbol(ctx, q, scores)
		sum.Opened += opened
		sum.ClosedSig += closedSig
		sum.Rejected += rejected
	}

	e.evaluateAlerts(ctx, scores, priceFor)
	e.exposureWatch(ctx)
	e.staleWatch(ctx, data)
	e.publish()

	timer.End(
		"scanned", sum.Scanned,
		"stale", sum.Stale,
		"opened", sum.Opened,
		"closed", sum.ClosedPre+sum.ClosedSig,
		"rejected", sum.Rejected,
	)
	return sum, nil
}

// benchmarkReturn feeds the uptrend guard: the trailing return over the
// configured lookback once enough benchmark history has accumulated,
// the fetched quote's 24h change until then.
func (e *Engine) benchmarkReturn(data scheduler.CycleData) (float64, bool) {
	bench := e.cfg.Universe.Benchmark
	if ret, ok := e.tracker.TrailingReturn(bench, e.cfg.Risk.UptrendLookback); ok {
		return ret, true
	}
	if q, ok := data.Quotes[bench]; ok {
		return q.ChangePct, true
	}
	return 0, false
}

// priceResolver picks the freshest price per symbol: this cycle's quote,
// then the streaming ticker, then the last known quote. Stale prices are
// still used so risk protection never lapses.
func (e *Engine) priceResolver(data scheduler.CycleData) func(string) (float64, bool) {
	return func(sym string) (float64, bool) {
		if q, ok := data.Quotes[sym]; ok {
			return q.Price, true
		}
		if e.ticker != nil {
			if p, ok := e.ticker.LastPrice(sym); ok {
				return p, true
			}
		}
		if q, ok := data.Stale[sym]; ok {
			return q.Price, true
		}
		if q, ok := e.scheduler.LastKnown(sym); ok {
			return q.Price, true
		}
		return 0, false
	}
}

// evaluateSymbol scores one fresh quote and routes the resulting signal.
func (e *Engine) evaluateSymbol(ctx context.Context, q types.Quote, scores map[string]types.Score) (opened, closed, rejected int) {
	hasLong, hasShort := e.book.OpenFor(q.Symbol)
	base := scoring.Base(q)
	scores[q.Symbol] = base

	in := signal.Input{
		HasOpenLong:     hasLong,
		HasOpenShort:    hasShort,
		Score:           base.Value,
		Confidence:      base.Confidence,
		MarketFilter:    e.risk.MarketFilterPassed(),
		LiquidityFilter: e.shortLiquidityOK(q),
	}

	// Dual short gate: a weak base score is only a pre-filter. The
	// weighted scorer decides, with its own confidence.
	flat := !hasLong && !hasShort
	if flat && q.Type == types.Crypto && base.Value < e.cfg.Thresholds.ShortPrefilter {
		adv := scoring.ShortAdvanced(q, types.Indicators{
			Technical: e.tracker.Technical(q.Symbol),
			Sentiment: e.sentiment.Score(ctx, q.Symbol),
			Momentum:  e.tracker.Momentum(q.Symbol),
		})
		in.Score = adv.Value
		in.Confidence = adv.Confidence
		scores[q.Symbol] = adv
	}

	sig := e.classifier.Classify(in)
	if sig == types.SignalHold {
		return 0, 0, 0
	}
	logger.Signal(ctx, q.Symbol, string(sig), in.Score, in.Confidence)

	switch sig {
	case types.SignalLongEntry:
		if _, err := e.risk.GateEntry(ctx, q, types.Long); err != nil {
			return 0, 0, 1
		}
		return 1, 0, 0
	case types.SignalShortEntry:
		if _, err := e.risk.GateEntry(ctx, q, types.Short); err != nil {
			return 0, 0, 1
		}
		return 1, 0, 0
	case types.SignalLongExit:
		return 0, e.closeSide(ctx, q, types.Long), 0
	case types.SignalShortExit:
		return 0, e.closeSide(ctx, q, types.Short), 0
	}
	return 0, 0, 0
}

func (e *Engine) closeSide(ctx context.Context, q types.Quote, side types.Side) int {
	for _, p := range e.book.ListOpen(book.Filter{Symbol: q.Symbol, Side: side}) {
		if _, err := e.risk.CloseOnSignal(ctx, p.ID, q.Price); err != nil {
			logger.ErrorWithErr(ctx, "Signal close failed", err, "position_id", p.ID)
			continue
		}
		return 1
	}
	return 0
}

func (e *Engine) shortLiquidityOK(q types.Quote) bool {
	return q.Type == types.Crypto && q.Volume >= e.cfg.Risk.ShortMinVolume
}

// evaluateAlerts runs the health rules over open positions after all
// mutations for the cycle are applied.
func (e *Engine) evaluateAlerts(ctx context.Context, scores map[string]types.Score, priceFor func(string) (float64, bool)) {
	now := e.now()
	for _, p := range e.book.ListOpen(book.Filter{}) {
		price, ok := priceFor(p.Symbol)
		if !ok {
			continue
		}
		score := 5.0
		if s, ok := scores[p.Symbol]; ok {
			score = s.Value
		}
		for _, a := range alerts.EvaluatePosition(p, price, score, now) {
			e.raise(ctx, a)
		}
	}
}

// exposureWatch flags aggregate short notional nearing its cap so the
// approaching rejection of further shorts is visible before it happens.
func (e *Engine) exposureWatch(ctx context.Context) {
	limit := e.cfg.Risk.ShortExposureFrac * e.cfg.Risk.CryptoCapital
	if limit <= 0 {
		return
	}
	if notional := e.book.Portfolio().ShortNotional; notional >= 0.9*limit {
		e.raise(ctx, types.Alert{
			Severity: types.SeverityMedium,
			Message:  fmt.Sprintf("short exposure %.2f at %.0f%% of cap %.2f", notional, notional/limit*100, limit),
		})
	}
}

// staleWatch escalates symbols with open positions whose quote fetch has
// failed for several consecutive cycles. Scanning still retries every
// cycle; protection is evaluated on the last-known quote meanwhile.
func (e *Engine) staleWatch(ctx context.Context, data scheduler.CycleData) {
	for _, p := range e.book.ListOpen(book.Filter{}) {
		n := data.FailCount[p.Symbol]
		if n >= e.cfg.Scan.StaleAlertCycles {
			e.raise(ctx, types.Alert{
				Severity:   types.SeverityHigh,
				PositionID: p.ID,
				Symbol:     p.Symbol,
				Message:    fmt.Sprintf("quote fetch failing for %d consecutive cycles, risk checks running on stale data", n),
			})
		}
	}
}

func (e *Engine) raise(ctx context.Context, a types.Alert) {
	raised := e.alerts.Raise(a.Severity, a.PositionID, a.Symbol, a.Message)
	if e.txlog != nil {
		if err := e.txlog.Record(types.Event{
			Type:   types.EventAlert,
			Symbol: a.Symbol,
			Reason: a.Message,
			Time:   raised.Time,
		}); err != nil {
			logger.Error(ctx, "Alert event write failed", "error", err)
		}
	}
	if e.ledger != nil {
		if err := e.ledger.SaveAlert(ctx, raised); err != nil {
			logger.ErrorWithErr(ctx, "Alert persist failed", err)
		}
	}
	logger.Warn(ctx, "Alert raised", "severity", string(a.Severity), "symbol", a.Symbol, "message", a.Message)
}

// TriggerEmergencyExit closes all open shorts immediately against the
// current book state, without waiting for the next cycle's fetch round.
func (e *Engine) TriggerEmergencyExit(ctx context.Context) []types.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger.Risk(ctx, "", "EMERGENCY_EXIT_REQUESTED")
	priceFor := e.priceResolver(scheduler.CycleData{
		Quotes: map[string]types.Quote{},
		Stale:  map[string]types.Quote{},
	})
	closed := e.risk.EmergencySweep(ctx, priceFor)
	e.publish()
	return closed
}

// Run loops scan cycles until the context ends. The first cycle starts
// immediately.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.CycleMinutes) * time.Minute
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := e.RunCycle(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Scan cycle failed", err)
		}
		select {
		case <-ctx.Done():
			e.scheduler.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
