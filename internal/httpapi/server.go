// Package httpapi wires the HTTP surface of the tracker. Handlers stay thin
// and delegate the ledger rules to the service layer.
package httpapi

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/tallyhq/tally/internal/service/account"
	"github.com/tallyhq/tally/internal/service/transaction"
)

// Options tune optional server behavior. The zero value is usable.
type Options struct {
	// ForecastHorizonDays caps and defaults the forecast window (default 30).
	ForecastHorizonDays int
	// JWTSecret enables bearer auth when non-empty.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// Server composes read (repo) and write (writer) dependencies through the
// account and transaction services.
type Server struct {
	accountSvc account.Service
	txSvc      transaction.Service
	accRepo    account.Repo
	txRepo     transaction.Repo
	users      UserReader
	idem       IdempotencyStore
	validate   *validator.Validate
	opts       Options
	log        *slog.Logger
	rt         *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(arepo account.Repo, awriter account.Writer, trepo transaction.Repo, twriter transaction.Writer, users UserReader, idem IdempotencyStore, logger *slog.Logger, opts Options) *Server {
	if opts.ForecastHorizonDays <= 0 {
		opts.ForecastHorizonDays = 30
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(metricsMiddleware)
	r.Use(recoverer(logger))

	s := &Server{
		accountSvc: account.New(arepo, awriter),
		txSvc:      transaction.New(trepo, twriter),
		accRepo:    arepo,
		txRepo:     trepo,
		users:      users,
		idem:       idem,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		opts:       opts,
		log:        logger,
		rt:         r,
	}
	if mw := s.authJWT(); mw != nil {
		r.Use(mw)
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

func (s *Server) routes() {
	// Accounts
	s.rt.With(s.validateCreateAccount()).Post("/v1/accounts", s.postAccount)
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Get("/v1/accounts/{id}", s.getAccount)
	s.rt.Patch("/v1/accounts/{id}", s.updateAccount)
	s.rt.Delete("/v1/accounts/{id}", s.deleteAccount)
	// Transactions
	s.rt.With(s.validateCreateTransaction()).Post("/v1/transactions", s.postTransaction)
	s.rt.Get("/v1/transactions", s.listTransactions)
	s.rt.Get("/v1/transactions/{id}", s.getTransaction)
	s.rt.Patch("/v1/transactions/{id}", s.updateTransaction)
	s.rt.Delete("/v1/transactions/{id}", s.deleteTransaction)
	s.rt.Get("/v1/transactions/{id}/occurs", s.transactionOccurs)
	s.rt.Get("/v1/transactions/{id}/occurrences", s.transactionOccurrences)
	// Forecast
	s.rt.Get("/v1/forecast", s.getForecast)
	// Dictionary
	s.rt.Get("/v1/dictionary/categories", s.listCategories)
	s.rt.Get("/v1/dictionary/account-categories", s.listAccountCategories)
	// Operational (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
