package risk

import (
	"fmt"

	"score-trader/internal/config"
	"score-trader/internal/types"
)

// StopTable resolves stop-loss / take-profit percentages by
// (instrument type, side), replacing scattered conditionals with a
// single lookup.
type StopTable struct {
	pairs map[tableKey]config.StopPair
}

type tableKey struct {
	t    types.InstrumentType
	side types.Side
}

func NewStopTable(cfg *config.Config) *StopTable {
	return &StopTable{pairs: map[tableKey]config.StopPair{
		{types.Crypto, types.Short}: cfg.Stops.CryptoShort,
		{types.Crypto, types.Long}:  cfg.Stops.CryptoLong,
		{types.Stock, types.Long}:   cfg.Stops.StockLong,
	}}
}

// Lookup returns the configured pair, or an error for unsupported
// combinations (stock shorts are not traded).
func (st *StopTable) Lookup(t types.InstrumentType, side types.Side) (config.StopPair, error) {
	p, ok := st.pairs[tableKey{t, side}]
	if !ok {
		return config.StopPair{}, fmt.Errorf("no stop profile for %s %s", t, side)
	}
	return p, nil
}

// Prices converts the percentage pair into absolute stop and take prices
// for the given entry. For LONG the stop sits below entry and take above;
// for SHORT the stop sits above entry (a loss on a short is a price rise)
// and take below.
func (st *StopTable) Prices(t types.InstrumentType, side types.Side, entry float64) (stop, take float64, err error) {
	p, err := st.Lookup(t, side)
	if err != nil {
		return 0, 0, err
	}
	if side == types.Short {
		return entry * (1 + p.StopPct/100), entry * (1 - p.TakePct/100), nil
	}
	return entry * (1 - p.StopPct/100), entry * (1 + p.TakePct/100), nil
}
