package types

import "time"

type InstrumentType string

const (
	Stock  InstrumentType = "stock"
	Crypto InstrumentType = "crypto"
)

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

type Signal string

const (
	SignalLongEntry  Signal = "LONG_ENTRY"
	SignalLongExit   Signal = "LONG_EXIT"
	SignalShortEntry Signal = "SHORT_ENTRY"
	SignalShortExit  Signal = "SHORT_EXIT"
	SignalHold       Signal = "HOLD"
)

type CloseReason string

const (
	CloseStopLoss      CloseReason = "STOP_LOSS"
	CloseTakeProfit    CloseReason = "TAKE_PROFIT"
	CloseScoreReversal CloseReason = "SCORE_REVERSAL"
	CloseEmergency     CloseReason = "EMERGENCY"
	CloseManual        CloseReason = "MANUAL"
)

type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// Quote is an immutable point-in-time snapshot for one symbol.
type Quote struct {
	Symbol    string         `json:"symbol"`
	Type      InstrumentType `json:"type"`
	Price     float64        `json:"price"`
	ChangePct float64        `json:"change_pct"`
	Volume    float64        `json:"volume"`
	MarketCap float64        `json:"market_cap"`
	Sector    string         `json:"sector,omitempty"`
	Time      time.Time      `json:"time"`
}

// Score is the normalized [0,10] health metric for an instrument with its
// per-component breakdown. Low favors SHORT, high favors LONG.
type Score struct {
	Symbol     string             `json:"symbol"`
	Value      float64            `json:"value"`
	Confidence float64            `json:"confidence"`
	Components map[string]float64 `json:"components"`
	ComputedAt time.Time          `json:"computed_at"`
}

type Position struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	Type        InstrumentType `json:"type"`
	Side        Side           `json:"side"`
	Qty         float64        `json:"qty"`
	EntryPrice  float64        `json:"entry_price"`
	StopLoss    float64        `json:"stop_loss"`
	TakeProfit  float64        `json:"take_profit"`
	OpenedAt    time.Time      `json:"opened_at"`
	Status      PositionStatus `json:"status"`
	CloseReason CloseReason    `json:"close_reason,omitempty"`
	ExitPrice   float64        `json:"exit_price,omitempty"`
	ClosedAt    time.Time      `json:"closed_at,omitempty"`
	RealizedPnL float64        `json:"realized_pnl,omitempty"`
}

// UnrealizedPnL computes mark-to-market P&L at the given price.
// SHORT profits when price falls below entry.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Side == Short {
		return (p.EntryPrice - price) * p.Qty
	}
	return (price - p.EntryPrice) * p.Qty
}

// UnrealizedPnLPct is the P&L as a fraction of entry notional.
func (p Position) UnrealizedPnLPct(price float64) float64 {
	notional := p.EntryPrice * p.Qty
	if notional == 0 {
		return 0
	}
	return p.UnrealizedPnL(price) / notional
}

func (p Position) Notional() float64 { return p.EntryPrice * p.Qty }

// PortfolioState is derived from the position book each time it is asked
// for, never mutated independently.
type PortfolioState struct {
	OpenLong        int                `json:"open_long"`
	OpenShort       int                `json:"open_short"`
	OpenByType      map[InstrumentType]int `json:"open_by_type"`
	LongNotional    float64            `json:"long_notional"`
	ShortNotional   float64            `json:"short_notional"`
	RealizedPnL     float64            `json:"realized_pnl"`
	ClosedPositions int                `json:"closed_positions"`
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type Alert struct {
	Severity   Severity  `json:"severity"`
	PositionID string    `json:"position_id,omitempty"`
	Symbol     string    `json:"symbol,omitempty"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

type EventType string

const (
	EventOpen   EventType = "OPEN"
	EventClose  EventType = "CLOSE"
	EventReject EventType = "REJECT"
	EventAlert  EventType = "ALERT"
)

// Event is the append-only transaction log record shape.
type Event struct {
	Type     EventType `json:"type"`
	Position *Position `json:"position,omitempty"`
	Symbol   string    `json:"symbol,omitempty"`
	Reason   string    `json:"reason"`
	Time     time.Time `json:"time"`
}

// Indicators carries the auxiliary inputs to the crypto short-side scoring
// profile. A nil pointer means the component was not obtainable this cycle.
type Indicators struct {
	Technical *float64 `json:"technical,omitempty"`
	Sentiment *float64 `json:"sentiment,omitempty"`
	Momentum  *float64 `json:"momentum,omitempty"`
}
