package book

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"score-trader/internal/types"
)

var (
	ErrDuplicatePosition = errors.New("duplicate position for symbol and side")
	ErrLimitExceeded     = errors.New("position limit exceeded")
	ErrNotFound          = errors.New("position not found")
	ErrAlreadyClosed     = errors.New("position already closed")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Limits holds the defensive caps the book re-checks on open. Risk gating
// is expected to have filtered violations already; the book enforces them
// anyway so no writer path can corrupt the ledger.
type Limits struct {
	MaxShortPositions int
	MaxShortNotional  float64
}

// OpenRequest is a fully-specified open handed over by risk gating.
// Stop and take prices are set here, atomically with creation.
type OpenRequest struct {
	Symbol     string
	Type       types.InstrumentType
	Side       types.Side
	Qty        float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
}

// Book is the authoritative ledger of open and closed positions.
// Mutations are serialized; reads return consistent snapshots and never
// observe a partially-applied cycle.
type Book struct {
	mu     sync.RWMutex
	limits Limits
	open   map[string]*types.Position // keyed by id
	closed []types.Position
	seq    int
	now    func() time.Time
}

func New(limits Limits) *Book {
	return &Book{
		limits: limits,
		open:   make(map[string]*types.Position),
		now:    time.Now,
	}
}

// Restore seeds the book with previously persisted positions, used on
// process restart before the first cycle runs.
func (b *Book) Restore(open []types.Position, closed []types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range open {
		p := open[i]
		b.open[p.ID] = &p
		b.seq++
	}
	b.closed = append(b.closed, closed...)
	b.seq += len(closed)
}

// Open creates a new OPEN position. Fails with ErrDuplicatePosition when a
// position already exists for the same symbol and side, ErrLimitExceeded
// when short count or short notional caps would be breached.
func (b *Book) Open(req OpenRequest) (types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.Qty <= 0 {
		return types.Position{}, ErrInvalidQuantity
	}
	for _, p := range b.open {
		if p.Symbol == req.Symbol && p.Side == req.Side {
			return types.Position{}, fmt.Errorf("%w: %s %s", ErrDuplicatePosition, req.Symbol, req.Side)
		}
	}
	if req.Side == types.Short {
		count, notional := 0, 0.0
		for _, p := range b.open {
			if p.Side == types.Short {
				count++
				notional += p.Notional()
			}
		}
		if b.limits.MaxShortPositions > 0 && count+1 > b.limits.MaxShortPositions {
			return types.Position{}, fmt.Errorf("%w: max %d short positions", ErrLimitExceeded, b.limits.MaxShortPositions)
		}
		if b.limits.MaxShortNotional > 0 && notional+req.Qty*req.EntryPrice > b.limits.MaxShortNotional {
			return types.Position{}, fmt.Errorf("%w: short notional cap %.2f", ErrLimitExceeded, b.limits.MaxShortNotional)
		}
	}

	b.seq++
	p := types.Position{
		ID:         fmt.Sprintf("pos-%d-%d", b.now().Unix(), b.seq),
		Symbol:     req.Symbol,
		Type:       req.Type,
		Side:       req.Side,
		Qty:        req.Qty,
		EntryPrice: req.EntryPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   b.now(),
		Status:     types.StatusOpen,
	}
	b.open[p.ID] = &p
	return p, nil
}

// Close transitions a position to CLOSED and returns realized P&L.
// LONG P&L is (exit - entry) * qty; SHORT P&L is (entry - exit) * qty.
func (b *Book) Close(id string, reason types.CloseReason, exitPrice float64) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.open[id]
	if !ok {
		for i := range b.closed {
			if b.closed[i].ID == id {
				return 0, fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
			}
		}
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	pnl := p.UnrealizedPnL(exitPrice)
	p.Status = types.StatusClosed
	p.CloseReason = reason
	p.ExitPrice = exitPrice
	p.ClosedAt = b.now()
	p.RealizedPnL = pnl

	b.closed = append(b.closed, *p)
	delete(b.open, id)
	return pnl, nil
}

// Get returns the position with the given id, open or closed.
func (b *Book) Get(id string) (types.Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if p, ok := b.open[id]; ok {
		return *p, nil
	}
	for i := range b.closed {
		if b.closed[i].ID == id {
			return b.closed[i], nil
		}
	}
	return types.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Filter narrows ListOpen results. Zero values match everything.
type Filter struct {
	Symbol string
	Side   types.Side
	Type   types.InstrumentType
}

// ListOpen returns a snapshot of open positions matching the filter.
func (b *Book) ListOpen(f Filter) []types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Position, 0, len(b.open))
	for _, p := range b.open {
		if f.Symbol != "" && p.Symbol != f.Symbol {
			continue
		}
		if f.Side != "" && p.Side != f.Side {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// ListClosed returns a snapshot of the closed-position history.
func (b *Book) ListClosed() []types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Position, len(b.closed))
	copy(out, b.closed)
	return out
}

// OpenFor reports whether an open position exists per side for a symbol.
func (b *Book) OpenFor(symbol string) (hasLong, hasShort bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.open {
		if p.Symbol != symbol {
			continue
		}
		if p.Side == types.Long {
			hasLong = true
		} else {
			hasShort = true
		}
	}
	return
}

// SetStops rewrites the stop and take prices of an open position. Used by
// the self-heal path when a prior defect left them unset.
func (b *Book) SetStops(id string, stop, take float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.open[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.StopLoss = stop
	p.TakeProfit = take
	return nil
}

// Portfolio recomputes the derived aggregate from current ledger state.
func (b *Book) Portfolio() types.PortfolioState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ps := types.PortfolioState{OpenByType: map[types.InstrumentType]int{}}
	for _, p := range b.open {
		ps.OpenByType[p.Type]++
		if p.Side == types.Long {
			ps.OpenLong++
			ps.LongNotional += p.Notional()
		} else {
			ps.OpenShort++
			ps.ShortNotional += p.Notional()
		}
	}
	for i := range b.closed {
		ps.RealizedPnL += b.closed[i].RealizedPnL
	}
	ps.ClosedPositions = len(b.closed)
	return ps
}
