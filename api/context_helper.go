package api

import (
	"context"
	"time"
)

// QueryTimeout is the default timeout for store calls made on behalf of a request
const QueryTimeout = 10 * time.Second

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

// Detached returns a context that keeps parent's values but not its cancellation, bounded
// by QueryTimeout. Redemptions and ledger writes run on it so a client disconnect cannot
// abandon a transaction halfway.
func Detached(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), QueryTimeout)
}
