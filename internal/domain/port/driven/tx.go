package driven

import "context"

// Stores bundles the transaction-scoped store accessors handed to a
// WithTransaction closure. Every write performed through them commits or
// rolls back atomically.
type Stores struct {
	Dependencies DependencyStore
	Aliases      AliasStore
	Latency      LatencyHistoryStore
	ErrorHistory ErrorHistoryStore
}

// TxManager runs a closure inside a single database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(Stores) error) error
}
