package alerts

import (
	"fmt"
	"sync"
	"time"

	"score-trader/internal/types"
)

// Manager stores the alert history and evaluates position health rules.
// Alerts are kept in memory for the read surface; durable history goes
// through the ledger by whoever raised the alert.
type Manager struct {
	mu     sync.RWMutex
	alerts []types.Alert
	max    int
	now    func() time.Time
}

func NewManager() *Manager {
	return &Manager{max: 1000, now: time.Now}
}

// Raise appends an alert and returns it with the timestamp filled in.
func (m *Manager) Raise(severity types.Severity, positionID, symbol, message string) types.Alert {
	a := types.Alert{
		Severity:   severity,
		PositionID: positionID,
		Symbol:     symbol,
		Message:    message,
		Time:       m.now(),
	}
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.max {
		m.alerts = m.alerts[len(m.alerts)-m.max:]
	}
	m.mu.Unlock()
	return a
}

// List returns alerts matching the severity filter, newest first.
// An empty severity matches everything.
func (m *Manager) List(severity types.Severity) []types.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Alert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if severity == "" || m.alerts[i].Severity == severity {
			out = append(out, m.alerts[i])
		}
	}
	return out
}

// Restore seeds the in-memory history from persisted alerts.
func (m *Manager) Restore(history []types.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, history...)
	if len(m.alerts) > m.max {
		m.alerts = m.alerts[len(m.alerts)-m.max:]
	}
}

// EvaluatePosition runs the health rules for one open position against its
// current price and score, returning the alerts that fired without
// recording them. The caller decides which to raise.
func EvaluatePosition(p types.Position, price, score float64, now time.Time) []types.Alert {
	var out []types.Alert
	pnlPct := p.UnrealizedPnLPct(price) * 100

	if pnlPct < -6 {
		out = append(out, types.Alert{
			Severity: types.SeverityCritical, PositionID: p.ID, Symbol: p.Symbol,
			Message: fmt.Sprintf("position down %.1f%%, approaching forced exit", pnlPct),
		})
	}

	if p.Side == types.Short {
		if score >= 4.0 {
			out = append(out, types.Alert{
				Severity: types.SeverityHigh, PositionID: p.ID, Symbol: p.Symbol,
				Message: fmt.Sprintf("strong exit signal: score recovered to %.1f", score),
			})
		} else if score >= 3.0 {
			out = append(out, types.Alert{
				Severity: types.SeverityMedium, PositionID: p.ID, Symbol: p.Symbol,
				Message: fmt.Sprintf("exit signal: score at %.1f", score),
			})
		}
	}

	if held := now.Sub(p.OpenedAt); held > 7*24*time.Hour {
		out = append(out, types.Alert{
			Severity: types.SeverityMedium, PositionID: p.ID, Symbol: p.Symbol,
			Message: fmt.Sprintf("position held %d days", int(held.Hours()/24)),
		})
	}

	if p.StopLoss > 0 && withinPctOfStop(p, price, 2.0) {
		out = append(out, types.Alert{
			Severity: types.SeverityHigh, PositionID: p.ID, Symbol: p.Symbol,
			Message: fmt.Sprintf("price %.2f within 2%% of stop %.2f", price, p.StopLoss),
		})
	}

	return out
}

func withinPctOfStop(p types.Position, price, pct float64) bool {
	if p.Side == types.Short {
		// Stop sits above entry; adverse move is price rising toward it.
		return price >= p.StopLoss*(1-pct/100)
	}
	return price <= p.StopLoss*(1+pct/100)
}
