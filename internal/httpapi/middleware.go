package httpapi

import (
	"context"
	"net/http"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/meta"
)

type ctxKey string

const ctxKeyCreateAccount ctxKey = "validatedCreateAccount"
const ctxKeyCreateTransaction ctxKey = "validatedCreateTransaction"

// validateCreateAccount decodes and validates POST /v1/accounts, stashing the
// domain account in the request context for the handler.
func (s *Server) validateCreateAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req createAccountRequest
			if err := decodeStrict(r, &req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			if err := s.validate.Struct(req); err != nil {
				writeValidationErr(w, err)
				return
			}
			if req.Metadata != nil {
				if err := meta.New(req.Metadata).Validate(); err != nil {
					unprocessable(w, err.Error(), "validation_error")
					return
				}
			}
			if !s.authorizedFor(r, req.UserID) {
				forbidden(w)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyCreateAccount, toAccountDomain(req))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateCreateTransaction decodes POST /v1/transactions, runs structural
// validation, then the full domain validation, so the handler only has to
// apply policy and write.
func (s *Server) validateCreateTransaction() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req createTransactionRequest
			if err := decodeStrict(r, &req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			if err := s.validate.Struct(req); err != nil {
				writeValidationErr(w, err)
				return
			}
			if req.Metadata != nil {
				if err := meta.New(req.Metadata).Validate(); err != nil {
					unprocessable(w, err.Error(), "validation_error")
					return
				}
			}
			if !s.authorizedFor(r, req.UserID) {
				forbidden(w)
				return
			}
			tx := toTransactionDomain(req)
			if err := s.txSvc.Validate(r.Context(), tx); err != nil {
				writeDomainErr(w, err)
				return
			}
			// The recorder check above is not enough: the referenced accounts
			// may belong to someone else entirely.
			if ok, err := s.authorizedForAccounts(r, ledger.Effects(tx)); err != nil {
				writeDomainErr(w, err)
				return
			} else if !ok {
				forbidden(w)
				return
			}
			if !req.AllowOverdraft {
				if err := s.checkOverdraft(r.Context(), ledger.Effects(tx)); err != nil {
					writeDomainErr(w, err)
					return
				}
			}
			ctx := context.WithValue(r.Context(), ctxKeyCreateTransaction, tx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// checkOverdraft applies the insufficient-funds policy: refuse when an effect
// would push an account balance below zero. Advisory only; the ledger itself
// accepts negative balances, so a concurrent write slipping past this check
// is harmless.
func (s *Server) checkOverdraft(ctx context.Context, sets ...[]ledger.BalanceEffect) error {
	for _, e := range ledger.MergeEffects(sets...) {
		if e.DeltaMinor >= 0 {
			continue
		}
		acc, err := s.accRepo.GetAccount(ctx, e.AccountID)
		if err != nil {
			return err
		}
		if acc.BalanceMinor+e.DeltaMinor < 0 {
			return errs.ErrInsufficientFunds
		}
	}
	return nil
}
