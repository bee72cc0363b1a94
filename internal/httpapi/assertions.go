package httpapi

import (
	"github.com/tallyhq/tally/internal/service/account"
	"github.com/tallyhq/tally/internal/service/transaction"
	"github.com/tallyhq/tally/internal/storage/memory"
	"github.com/tallyhq/tally/internal/storage/postgres"
	"github.com/tallyhq/tally/internal/storage/redis"
)

// Compile-time assertions that both stores satisfy the wiring interfaces.
var (
	_ account.Repo       = (*memory.Store)(nil)
	_ account.Writer     = (*memory.Store)(nil)
	_ transaction.Repo   = (*memory.Store)(nil)
	_ transaction.Writer = (*memory.Store)(nil)
	_ UserReader         = (*memory.Store)(nil)
	_ IdempotencyStore   = (*memory.Store)(nil)

	_ account.Repo       = (*postgres.Store)(nil)
	_ account.Writer     = (*postgres.Store)(nil)
	_ transaction.Repo   = (*postgres.Store)(nil)
	_ transaction.Writer = (*postgres.Store)(nil)
	_ UserReader         = (*postgres.Store)(nil)

	_ IdempotencyStore = (*redis.IdempotencyStore)(nil)
)
