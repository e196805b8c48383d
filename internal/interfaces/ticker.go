package interfaces

import "context"

// TickerCache maintains streaming last prices between scan cycles.
type TickerCache interface {
	Start(ctx context.Context, symbols []string) error
	Stop(ctx context.Context)
	LastPrice(symbol string) (float64, bool)
}
