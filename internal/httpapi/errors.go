package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tallyhq/tally/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func forbidden(w http.ResponseWriter)              { writeErr(w, http.StatusForbidden, "forbidden", "forbidden") }
func conflict(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusConflict, msg, "conflict")
}
func unprocessable(w http.ResponseWriter, msg, code string) {
	writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// writeDomainErr maps service-layer sentinels onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrInvalidTransfer):
		unprocessable(w, "invalid transfer", "invalid_transfer")
	case errors.Is(err, errs.ErrInsufficientFunds):
		unprocessable(w, "insufficient funds", "insufficient_funds")
	case errors.Is(err, errs.ErrInvalid):
		unprocessable(w, err.Error(), "validation_error")
	case errors.Is(err, errs.ErrConflict):
		conflict(w, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		forbidden(w)
	default:
		writeErr(w, http.StatusInternalServerError, "internal error", "")
	}
}

// writeValidationErr renders go-playground/validator failures as 422 with the
// first offending field named.
func writeValidationErr(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		unprocessable(w, "invalid field: "+verrs[0].Field(), "validation_error")
		return
	}
	unprocessable(w, err.Error(), "validation_error")
}
