package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"score-trader/internal/alerts"
	"score-trader/internal/book"
	"score-trader/internal/config"
	"score-trader/internal/interfaces"
	"score-trader/internal/logger"
	"score-trader/internal/types"
)

var (
	ErrDuplicate     = errors.New("position already open for symbol and side")
	ErrShortLimit    = errors.New("max short positions reached")
	ErrShortExposure = errors.New("short exposure cap reached")
	ErrUptrendGuard  = errors.New("benchmark in uptrend, shorts blocked")
)

// Manager owns the two risk passes of each cycle: the unconditional
// stop/take/emergency pre-pass on open positions, and the entry gate for
// classifier-proposed entries. It is the sole writer path into the book.
type Manager struct {
	cfg    *config.Config
	book   *book.Book
	stops  *StopTable
	txlog  interfaces.TransactionLog
	ledger interfaces.Ledger // may be nil when running without persistence
	alerts *alerts.Manager

	benchmarkReturn float64
	now             func() time.Time
}

func NewManager(cfg *config.Config, b *book.Book, tx interfaces.TransactionLog, ledger interfaces.Ledger, am *alerts.Manager) *Manager {
	return &Manager{
		cfg:    cfg,
		book:   b,
		stops:  NewStopTable(cfg),
		txlog:  tx,
		ledger: ledger,
		alerts: am,
		now:    time.Now,
	}
}

// SetBenchmarkReturn records the benchmark trailing return for the cycle,
// consulted by the short-side market filter.
func (m *Manager) SetBenchmarkReturn(pct float64) { m.benchmarkReturn = pct }

// MarketFilterPassed reports whether shorting is allowed under the
// benchmark uptrend guard.
func (m *Manager) MarketFilterPassed() bool {
	return m.benchmarkReturn <= m.cfg.Risk.UptrendGuardPct
}

// PrePass evaluates every open position against its stop and take prices
// before any new signal is considered, closing on trigger. It cannot be
// vetoed by a favorable score. After individual checks it runs the
// emergency condition over the surviving shorts. priceFor returns the most
// recent known price for a symbol; symbols with no price at all are
// skipped for triggers but never removed from future passes.
func (m *Manager) PrePass(ctx context.Context, priceFor func(symbol string) (float64, bool)) []types.Position {
	var closed []types.Position

	for _, p := range m.book.ListOpen(book.Filter{}) {
		price, ok := priceFor(p.Symbol)
		if !ok || price <= 0 {
			continue
		}

		p = m.heal(ctx, p)

		if reason, hit := m.trigger(p, price); hit {
			if cp, err := m.closePosition(ctx, p.ID, reason, price); err == nil {
				closed = append(closed, cp)
			} else {
				logger.ErrorWithErr(ctx, "Stop/take close failed", err, "position_id", p.ID)
			}
		}
	}

	closed = append(closed, m.emergencyCheck(ctx, priceFor)...)
	return closed
}

// heal recomputes missing stop/take prices from entry price and config.
// A missing pair on an open position is a prior defect, not a reason to
// skip protection.
func (m *Manager) heal(ctx context.Context, p types.Position) types.Position {
	if p.StopLoss > 0 && p.TakeProfit > 0 {
		return p
	}
	stop, take, err := m.stops.Prices(p.Type, p.Side, p.EntryPrice)
	if err != nil {
		logger.ErrorWithErr(ctx, "Cannot heal position stops", err, "position_id", p.ID)
		return p
	}
	if err := m.book.SetStops(p.ID, stop, take); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist healed stops", err, "position_id", p.ID)
		return p
	}
	logger.Warn(ctx, "Recomputed missing stop/take for open position",
		"position_id", p.ID, "symbol", p.Symbol, "stop", stop, "take", take)
	p.StopLoss = stop
	p.TakeProfit = take
	m.persistUpdate(ctx, p)
	return p
}

// trigger checks one position's price against its thresholds.
func (m *Manager) trigger(p types.Position, price float64) (types.CloseReason, bool) {
	if p.Side == types.Long {
		if price <= p.StopLoss {
			return types.CloseStopLoss, true
		}
		if price >= p.TakeProfit {
			return types.CloseTakeProfit, true
		}
		return "", false
	}
	if price >= p.StopLoss {
		return types.CloseStopLoss, true
	}
	if price <= p.TakeProfit {
		return types.CloseTakeProfit, true
	}
	return "", false
}

// emergencyCheck closes every open short when the configured number of
// shorts are simultaneously beyond the loss threshold.
func (m *Manager) emergencyCheck(ctx context.Context, priceFor func(string) (float64, bool)) []types.Position {
	shorts := m.book.ListOpen(book.Filter{Side: types.Short})
	breaches := 0
	for _, p := range shorts {
		price, ok := priceFor(p.Symbol)
		if !ok || price <= 0 {
			continue
		}
		if p.UnrealizedPnLPct(price)*100 < -m.cfg.Risk.EmergencyLossPct {
			breaches++
		}
	}
	if breaches < m.cfg.Risk.EmergencyMinBreaches {
		return nil
	}

	logger.Risk(ctx, "", "EMERGENCY_EXIT",
		"breaches", breaches, "open_shorts", len(shorts))
	m.alerts.Raise(types.SeverityCritical, "", "",
		fmt.Sprintf("emergency exit: %d shorts beyond %.0f%% loss, closing all %d",
			breaches, m.cfg.Risk.EmergencyLossPct, len(shorts)))
	return m.EmergencySweep(ctx, priceFor)
}

// EmergencySweep closes all open SHORT positions with reason EMERGENCY.
// Each close is attempted independently; one failure never aborts the
// sweep. Also invoked directly by the external emergency-exit trigger.
func (m *Manager) EmergencySweep(ctx context.Context, priceFor func(string) (float64, bool)) []types.Position {
	var closed []types.Position
	for _, p := range m.book.ListOpen(book.Filter{Side: types.Short}) {
		price, ok := priceFor(p.Symbol)
		if !ok || price <= 0 {
			// Close at entry as a last resort so the sweep never leaves
			// a short behind for lack of a quote.
			price = p.EntryPrice
		}
		cp, err := m.closePosition(ctx, p.ID, types.CloseEmergency, price)
		if err != nil {
			logger.ErrorWithErr(ctx, "Emergency close failed", err,
				"position_id", p.ID, "symbol", p.Symbol)
			continue
		}
		closed = append(closed, cp)
	}
	return closed
}

// GateEntry validates a classifier-proposed entry and, if approved, opens
// the position with stop/take computed at open time. On rejection a REJECT
// event is recorded with the limit violated and no position is created.
func (m *Manager) GateEntry(ctx context.Context, q types.Quote, side types.Side) (types.Position, error) {
	if err := m.checkLimits(q, side); err != nil {
		m.record(types.Event{
			Type:   types.EventReject,
			Symbol: q.Symbol,
			Reason: err.Error(),
			Time:   m.now(),
		})
		logger.Risk(ctx, q.Symbol, "ENTRY_REJECTED", "side", string(side), "reason", err.Error())
		return types.Position{}, err
	}

	stop, take, err := m.stops.Prices(q.Type, side, q.Price)
	if err != nil {
		return types.Position{}, err
	}
	qty := m.cfg.Risk.PositionNotional / q.Price

	p, err := m.book.Open(book.OpenRequest{
		Symbol:     q.Symbol,
		Type:       q.Type,
		Side:       side,
		Qty:        qty,
		EntryPrice: q.Price,
		StopLoss:   stop,
		TakeProfit: take,
	})
	if err != nil {
		m.record(types.Event{Type: types.EventReject, Symbol: q.Symbol, Reason: err.Error(), Time: m.now()})
		return types.Position{}, err
	}

	m.record(types.Event{Type: types.EventOpen, Position: &p, Reason: string(side) + " entry approved", Time: m.now()})
	if m.ledger != nil {
		if err := m.ledger.SavePosition(ctx, p); err != nil {
			logger.ErrorWithErr(ctx, "Failed to persist opened position", err, "position_id", p.ID)
		}
	}
	logger.Trade(ctx, p.Symbol, string(p.Side), "OPEN", p.Qty, p.EntryPrice,
		"stop", p.StopLoss, "take", p.TakeProfit)
	return p, nil
}

func (m *Manager) checkLimits(q types.Quote, side types.Side) error {
	hasLong, hasShort := m.book.OpenFor(q.Symbol)
	if (side == types.Long && hasLong) || (side == types.Short && hasShort) {
		return fmt.Errorf("%w: %s", ErrDuplicate, q.Symbol)
	}

	if side != types.Short {
		return nil
	}

	shorts := m.book.ListOpen(book.Filter{Side: types.Short})
	if len(shorts)+1 > m.cfg.Risk.MaxShortPositions {
		return fmt.Errorf("%w (%d)", ErrShortLimit, m.cfg.Risk.MaxShortPositions)
	}

	notional := 0.0
	for _, p := range shorts {
		notional += p.Notional()
	}
	limit := m.cfg.Risk.ShortExposureFrac * m.cfg.Risk.CryptoCapital
	if notional+m.cfg.Risk.PositionNotional > limit {
		return fmt.Errorf("%w (%.0f of %.0f)", ErrShortExposure, notional, limit)
	}

	if !m.MarketFilterPassed() {
		return fmt.Errorf("%w (benchmark %+.1f%%)", ErrUptrendGuard, m.benchmarkReturn)
	}
	return nil
}

// CloseOnSignal routes a classifier-proposed exit so the close reason is
// recorded uniformly with risk-triggered closes.
func (m *Manager) CloseOnSignal(ctx context.Context, positionID string, exitPrice float64) (types.Position, error) {
	return m.closePosition(ctx, positionID, types.CloseScoreReversal, exitPrice)
}

// CloseManual closes a position at the given price with reason MANUAL.
func (m *Manager) CloseManual(ctx context.Context, positionID string, exitPrice float64) (types.Position, error) {
	return m.closePosition(ctx, positionID, types.CloseManual, exitPrice)
}

func (m *Manager) closePosition(ctx context.Context, id string, reason types.CloseReason, exitPrice float64) (types.Position, error) {
	pnl, err := m.book.Close(id, reason, exitPrice)
	if err != nil {
		return types.Position{}, err
	}
	p, err := m.book.Get(id)
	if err != nil {
		return types.Position{}, err
	}

	m.record(types.Event{Type: types.EventClose, Position: &p, Reason: string(reason), Time: m.now()})
	m.persistUpdate(ctx, p)
	logger.Trade(ctx, p.Symbol, string(p.Side), "CLOSE", p.Qty, exitPrice,
		"reason", string(reason), "pnl", pnl)
	return p, nil
}

func (m *Manager) persistUpdate(ctx context.Context, p types.Position) {
	if m.ledger == nil {
		return
	}
	if err := m.ledger.UpdatePosition(ctx, p); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist position update", err, "position_id", p.ID)
	}
}

func (m *Manager) record(e types.Event) {
	if m.txlog == nil {
		return
	}
	if err := m.txlog.Record(e); err != nil {
		logger.Error(context.Background(), "Transaction log write failed", "error", err)
	}
}
