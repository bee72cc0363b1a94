package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
)

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := r.Context().Value(ctxKeyCreateAccount).(ledger.Account)
	if !ok {
		badRequest(w, "missing validated request")
		return
	}
	created, err := s.accountSvc.Create(r.Context(), acc)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	ledgerMutationsTotal.WithLabelValues("account_create").Inc()
	toJSON(w, http.StatusCreated, toAccountResponse(created))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		badRequest(w, "user_id is required")
		return
	}
	if !s.authorizedFor(r, userID) {
		forbidden(w)
		return
	}
	accs, err := s.accountSvc.List(r.Context(), userID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

// getOwnedAccount resolves {id} and applies the ownership check, writing the
// error response itself on failure.
func (s *Server) getOwnedAccount(w http.ResponseWriter, r *http.Request) (ledger.Account, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid account id")
		return ledger.Account{}, false
	}
	acc, err := s.accountSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return ledger.Account{}, false
	}
	if !s.authorizedFor(r, acc.UserID) {
		forbidden(w)
		return ledger.Account{}, false
	}
	return acc, true
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.getOwnedAccount(w, r)
	if !ok {
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.getOwnedAccount(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := decodeStrict(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidationErr(w, err)
		return
	}
	updated, err := s.accountSvc.Update(r.Context(), acc.ID, toAccountPatch(req))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(updated))
}

// deleteAccount removes an account permanently. 409 while any transaction
// still references it.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.getOwnedAccount(w, r)
	if !ok {
		return
	}
	if err := s.accountSvc.Delete(r.Context(), acc.ID); err != nil {
		writeDomainErr(w, err)
		return
	}
	ledgerMutationsTotal.WithLabelValues("account_delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}
