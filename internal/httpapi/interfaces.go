package httpapi

import (
	"context"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
)

// UserReader resolves users for authorization checks.
type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (ledger.User, error)
}

// IdempotencyStore replays responses for retried creates. Optional; a nil
// store disables the Idempotency-Key header.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (body []byte, status int, ok bool, err error)
	Set(ctx context.Context, key string, body []byte, status int) error
}

// pinger is probed via type assertion by readyz.
type pinger interface {
	Ping(ctx context.Context) error
}
