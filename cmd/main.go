package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/httpapi"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/storage/memory"
	pgstore "github.com/tallyhq/tally/internal/storage/postgres"
	redisstore "github.com/tallyhq/tally/internal/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	var (
		handler http.Handler
		closeFn func()
	)
	opts := httpapi.Options{
		ForecastHorizonDays: cfg.ForecastHorizonDays,
		JWTSecret:           cfg.JWTSecret,
		JWTIssuer:           cfg.JWTIssuer,
		JWTAudience:         cfg.JWTAudience,
	}

	var idem httpapi.IdempotencyStore
	var closeIdem func()
	if cfg.RedisURL != "" {
		rs, err := redisstore.Open(ctx, cfg.RedisURL, redisstore.DefaultTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		idem = rs
		closeIdem = func() { _ = rs.Close() }
		logger.Info("idempotency backend: redis")
	}

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closeFn = pg.Close
		if cfg.DevSeed {
			user, accs, err := pg.SeedDev(ctx)
			if err != nil {
				logger.Error("dev seed failed", "err", err)
			} else {
				printDevSeed(logger, "postgres", user, accs)
			}
		}
		handler = httpapi.New(pg, pg, pg, pg, pg, idem, logger, opts).Handler()
		logger.Info("storage backend: postgres")
	} else {
		store := memory.New()
		if idem == nil {
			idem = store
		}
		if cfg.DevSeed {
			user, accs, err := seedMemory(ctx, store)
			if err != nil {
				logger.Error("dev seed failed", "err", err)
			} else {
				printDevSeed(logger, "memory", user, accs)
			}
		}
		handler = httpapi.New(store, store, store, store, store, idem, logger, opts).Handler()
		logger.Info("storage backend: memory")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tally service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeIdem != nil {
		closeIdem()
	}
	if closeFn != nil {
		closeFn()
	}
}

// seedMemory inserts a demo user with two accounts for quick local testing.
func seedMemory(ctx context.Context, store *memory.Store) (ledger.User, []ledger.Account, error) {
	user, err := store.CreateUser(ctx, ledger.User{ID: uuid.New(), FamilyID: uuid.New()})
	if err != nil {
		return ledger.User{}, nil, err
	}
	accs := []ledger.Account{
		{ID: uuid.New(), UserID: user.ID, Name: "Current", Category: ledger.AccountCategoryChecking, Currency: "GBP", BalanceMinor: 100_000, Active: true},
		{ID: uuid.New(), UserID: user.ID, Name: "Savings", Category: ledger.AccountCategorySavings, Currency: "GBP", BalanceMinor: 500_000, Active: true},
	}
	for _, a := range accs {
		if _, err := store.CreateAccount(ctx, a); err != nil {
			return ledger.User{}, nil, err
		}
	}
	return user, accs, nil
}

// printDevSeed logs the seeded IDs and prints a copy/paste banner.
func printDevSeed(l *slog.Logger, backend string, user ledger.User, accs []ledger.Account) {
	l.Info("DEV seed ("+backend+")", "user_id", user.ID.String(), "family_id", user.FamilyID.String())
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("user_id: %s\n", user.ID)
	fmt.Printf("family_id: %s\n", user.FamilyID)
	for _, a := range accs {
		fmt.Printf("%s_account_id: %s\n", a.Category, a.ID)
	}
	fmt.Println("==================================================")
}

func parseLogLevel(s string) slog.Leveler {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "WARNING", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "ERR", "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(cfg config.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
