package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/forecast"
)

// getForecast serves GET /v1/forecast: a day-indexed balance projection for a
// user's accounts. Optional account_id params restrict the projected set;
// baseline=false disables the estimated expense blend.
func (s *Server) getForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := uuid.Parse(q.Get("user_id"))
	if err != nil {
		badRequest(w, "user_id is required")
		return
	}
	if !s.authorizedFor(r, userID) {
		forbidden(w)
		return
	}

	days := s.opts.ForecastHorizonDays
	if raw := q.Get("days"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n < 1 {
			badRequest(w, "invalid days")
			return
		}
		// Cap at a year; beyond that the baseline estimate dominates and the
		// series is noise.
		if n > 366 {
			n = 366
		}
		days = n
	}
	sampleEvery := 1
	if raw := q.Get("sample_every"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n < 1 {
			badRequest(w, "invalid sample_every")
			return
		}
		sampleEvery = n
	}
	baseline := true
	if raw := q.Get("baseline"); raw != "" {
		b, perr := strconv.ParseBool(raw)
		if perr != nil {
			badRequest(w, "invalid baseline")
			return
		}
		baseline = b
	}
	var categories []string
	if raw := q.Get("categories"); raw != "" {
		categories = strings.Split(raw, ",")
	}

	accounts, err := s.accRepo.AccountsByUser(r.Context(), userID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if wanted := q["account_id"]; len(wanted) > 0 {
		keep := make(map[uuid.UUID]bool, len(wanted))
		for _, raw := range wanted {
			id, perr := uuid.Parse(raw)
			if perr != nil {
				badRequest(w, "invalid account_id")
				return
			}
			keep[id] = true
		}
		filtered := accounts[:0]
		for _, a := range accounts {
			if keep[a.ID] {
				filtered = append(filtered, a)
			}
		}
		accounts = filtered
	}

	txs, err := s.txSvc.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	points := forecast.Project(accounts, txs, forecast.Options{
		Today:              time.Now().UTC(),
		HorizonDays:        days,
		SampleEvery:        sampleEvery,
		Baseline:           baseline,
		BaselineCategories: categories,
	})
	out := make([]forecastPointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, forecastPointResponse{
			Date:         p.Date.Format("2006-01-02"),
			BalanceMinor: p.BalanceMinor,
			IncomeMinor:  p.IncomeMinor,
			ExpenseMinor: p.ExpenseMinor,
		})
	}
	toJSON(w, http.StatusOK, forecastResponse{Points: out})
}
