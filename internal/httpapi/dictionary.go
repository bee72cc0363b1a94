package httpapi

import (
	"net/http"

	"github.com/tallyhq/tally/internal/dictionary"
	"github.com/tallyhq/tally/internal/ledger"
)

// listCategories returns the curated transaction categories, optionally
// filtered by ?type=.
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	var filter *ledger.TransactionType
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := ledger.TransactionType(raw)
		if !ledger.ValidType(t) {
			badRequest(w, "invalid type")
			return
		}
		filter = &t
	}
	toJSON(w, http.StatusOK, map[string]any{"categories": dictionary.CategoriesFor(filter)})
}

func (s *Server) listAccountCategories(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, map[string]any{"categories": dictionary.AccountCategories()})
}
