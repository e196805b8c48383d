package interfaces

import "score-trader/internal/types"

// TransactionLog is the append-only sink for every open/close/reject/alert
// event emitted by the core. Records are never rewritten.
type TransactionLog interface {
	Record(event types.Event) error
}
