package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	// ErrNotFound marks a missing account or transaction (HTTP 404).
	ErrNotFound = errors.New("not_found")
	// ErrInvalid marks malformed input rejected before any mutation (HTTP 422).
	ErrInvalid = errors.New("invalid")
	// ErrInvalidTransfer marks a transfer with a missing destination or a
	// destination equal to the source.
	ErrInvalidTransfer = errors.New("invalid_transfer")
	// ErrInsufficientFunds is raised by the API-layer overdraft policy only;
	// the ledger itself permits negative balances.
	ErrInsufficientFunds = errors.New("insufficient_funds")
	// ErrConflict marks a state conflict, e.g. deleting an account that still
	// has transactions referencing it (HTTP 409).
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks an authorization failure at the API layer.
	ErrForbidden = errors.New("forbidden")
)
