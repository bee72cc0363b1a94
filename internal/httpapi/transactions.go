package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/recurrence"
	"github.com/tallyhq/tally/internal/service/transaction"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := r.Context().Value(ctxKeyCreateTransaction).(ledger.Transaction)
	if !ok {
		badRequest(w, "missing validated request")
		return
	}

	// Replay identical retries. The key is scoped to the request content so a
	// reused header with a different body creates a fresh record.
	var idemKey string
	if key := r.Header.Get("Idempotency-Key"); key != "" && s.idem != nil {
		canonical, _ := json.Marshal(tx)
		idemKey = key + ":" + hashBytes(canonical)
		if body, status, found, err := s.idem.Get(r.Context(), idemKey); err == nil && found {
			w.Header().Set("Idempotency-Replayed", "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write(body)
			return
		}
	}

	created, err := s.txSvc.Create(r.Context(), tx)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	ledgerMutationsTotal.WithLabelValues("transaction_create").Inc()

	resp := toTransactionResponse(created)
	if idemKey != "" {
		if body, err := json.Marshal(resp); err == nil {
			if err := s.idem.Set(r.Context(), idemKey, body, http.StatusCreated); err != nil {
				s.log.Warn("idempotency store write failed", "err", err)
			}
		}
	}
	toJSON(w, http.StatusCreated, resp)
}

// listTransactions serves GET /v1/transactions with exactly one of user_id,
// account_id or family_id, plus limit/cursor pagination.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := 0
	for _, k := range []string{"user_id", "account_id", "family_id"} {
		if q.Get(k) != "" {
			filters++
		}
	}
	if filters != 1 {
		badRequest(w, "exactly one of user_id, account_id or family_id is required")
		return
	}

	var (
		txs []ledger.Transaction
		err error
	)
	switch {
	case q.Get("user_id") != "":
		var userID uuid.UUID
		if userID, err = uuid.Parse(q.Get("user_id")); err != nil {
			badRequest(w, "invalid user_id")
			return
		}
		if !s.authorizedFor(r, userID) {
			forbidden(w)
			return
		}
		txs, err = s.txSvc.ListByUser(r.Context(), userID)
	case q.Get("account_id") != "":
		var accountID uuid.UUID
		if accountID, err = uuid.Parse(q.Get("account_id")); err != nil {
			badRequest(w, "invalid account_id")
			return
		}
		acc, aerr := s.accountSvc.Get(r.Context(), accountID)
		if aerr != nil {
			writeDomainErr(w, aerr)
			return
		}
		if !s.authorizedFor(r, acc.UserID) {
			forbidden(w)
			return
		}
		txs, err = s.txSvc.ListByAccount(r.Context(), accountID)
	default:
		var familyID uuid.UUID
		if familyID, err = uuid.Parse(q.Get("family_id")); err != nil {
			badRequest(w, "invalid family_id")
			return
		}
		if !s.authorizedForFamily(r, familyID) {
			forbidden(w)
			return
		}
		txs, err = s.txSvc.ListByFamily(r.Context(), familyID)
	}
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n < 1 {
			badRequest(w, "invalid limit")
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		limit = n
	}
	page, next := paginate(txs, limit, q.Get("cursor"))
	toJSON(w, http.StatusOK, listTransactionsResponse{
		Transactions: toTransactionResponses(page),
		NextCursor:   next,
	})
}

// paginate slices an ordered listing after the cursor transaction ID. Set the
// returned cursor as next_cursor when more rows remain.
func paginate(txs []ledger.Transaction, limit int, cursor string) ([]ledger.Transaction, string) {
	start := 0
	if cursor != "" {
		if id, err := uuid.Parse(cursor); err == nil {
			for i, tx := range txs {
				if tx.ID == id {
					start = i + 1
					break
				}
			}
		}
	}
	if start >= len(txs) {
		return []ledger.Transaction{}, ""
	}
	end := start + limit
	if end >= len(txs) {
		return txs[start:], ""
	}
	page := txs[start:end]
	return page, page[len(page)-1].ID.String()
}

// authorizedForFamily reports whether the request subject belongs to familyID.
func (s *Server) authorizedForFamily(r *http.Request, familyID uuid.UUID) bool {
	sub, ok := authSubject(r.Context())
	if !ok {
		return true
	}
	if s.users == nil {
		return false
	}
	me, err := s.users.GetUser(r.Context(), sub)
	if err != nil {
		return false
	}
	return me.FamilyID == familyID
}

// getOwnedTransaction resolves {id} and applies the ownership check, writing
// the error response itself on failure.
func (s *Server) getOwnedTransaction(w http.ResponseWriter, r *http.Request) (ledger.Transaction, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid transaction id")
		return ledger.Transaction{}, false
	}
	tx, err := s.txSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return ledger.Transaction{}, false
	}
	if !s.authorizedFor(r, tx.UserID) {
		forbidden(w)
		return ledger.Transaction{}, false
	}
	return tx, true
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.getOwnedTransaction(w, r)
	if !ok {
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	orig, ok := s.getOwnedTransaction(w, r)
	if !ok {
		return
	}
	var req updateTransactionRequest
	if err := decodeStrict(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidationErr(w, err)
		return
	}
	patch := toTransactionPatch(req)
	next := transaction.Apply(orig, patch)
	undo := ledger.InverseEffects(ledger.Effects(orig))
	apply := ledger.Effects(next)
	// Owning the record is not enough: a patch can re-point the transaction
	// at accounts the subject has no claim on.
	if ok, aerr := s.authorizedForAccounts(r, undo, apply); aerr != nil {
		writeDomainErr(w, aerr)
		return
	} else if !ok {
		forbidden(w)
		return
	}
	if !req.AllowOverdraft {
		if err := s.checkOverdraft(r.Context(), undo, apply); err != nil {
			writeDomainErr(w, err)
			return
		}
	}
	updated, err := s.txSvc.Update(r.Context(), orig.ID, patch)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	ledgerMutationsTotal.WithLabelValues("transaction_update").Inc()
	toJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.getOwnedTransaction(w, r)
	if !ok {
		return
	}
	if err := s.txSvc.Delete(r.Context(), tx.ID); err != nil {
		writeDomainErr(w, err)
		return
	}
	ledgerMutationsTotal.WithLabelValues("transaction_delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// dayOf truncates t to a UTC calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDateParam accepts date-only (2006-01-02) or RFC3339 values.
func parseDateParam(raw string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// transactionOccurs answers whether the transaction occurs on a given day.
func (s *Server) transactionOccurs(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.getOwnedTransaction(w, r)
	if !ok {
		return
	}
	day, ok := parseDateParam(r.URL.Query().Get("date"))
	if !ok {
		badRequest(w, "date is required (YYYY-MM-DD)")
		return
	}
	toJSON(w, http.StatusOK, map[string]any{
		"date":   day.Format("2006-01-02"),
		"occurs": recurrence.OccursOn(tx, day),
	})
}

// transactionOccurrences counts exact occurrences in [from, to]. For custom
// frequencies the response also carries the coarse interval estimate used by
// summary views, which can disagree with the exact count.
func (s *Server) transactionOccurrences(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.getOwnedTransaction(w, r)
	if !ok {
		return
	}
	from, okFrom := parseDateParam(r.URL.Query().Get("from"))
	to, okTo := parseDateParam(r.URL.Query().Get("to"))
	if !okFrom || !okTo || to.Before(from) {
		badRequest(w, "from and to are required (YYYY-MM-DD), from <= to")
		return
	}
	resp := map[string]any{
		"from":  from.Format("2006-01-02"),
		"to":    to.Format("2006-01-02"),
		"count": recurrence.CountInRange(tx, from, to),
	}
	if tx.IsRecurring && tx.Frequency == ledger.FrequencyCustom {
		// Compare whole days; RFC3339 inputs may carry partial-day offsets
		// that would shave a day off the period.
		days := int(dayOf(to).Sub(dayOf(from)).Hours()/24) + 1
		resp["estimate"] = recurrence.EstimateCustomPerPeriod(tx, days)
	}
	toJSON(w, http.StatusOK, resp)
}
