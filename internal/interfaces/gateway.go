package interfaces

import (
	"context"

	"score-trader/internal/types"
)

// MarketDataGateway supplies point-in-time quotes. Batch fetches are
// partial-failure tolerant: the returned map holds every symbol that
// succeeded and the error map holds the rest.
type MarketDataGateway interface {
	FetchQuote(ctx context.Context, symbol string) (types.Quote, error)
	FetchQuotes(ctx context.Context, symbols []string) (map[string]types.Quote, map[string]error)
}
