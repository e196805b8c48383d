package interfaces

import (
	"context"

	"score-trader/internal/types"
)

// Ledger persists the full position history and alert stream so
// portfolio state can be rebuilt after a restart without replaying quotes.
type Ledger interface {
	SavePosition(ctx context.Context, p types.Position) error
	UpdatePosition(ctx context.Context, p types.Position) error
	LoadOpenPositions(ctx context.Context) ([]types.Position, error)
	SaveAlert(ctx context.Context, a types.Alert) error
	Close()
}
