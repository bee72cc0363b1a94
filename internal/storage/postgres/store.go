// Package postgres provides a pgx-backed store. Every ledger mutation runs
// the record statement and its balance effects inside one transaction, with
// the affected account rows locked in ascending ID order so concurrent
// mutations touching the same accounts cannot deadlock.
package postgres

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/meta"
)

type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string and
// verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return errs.ErrConflict
		case "23503": // foreign_key_violation
			return errs.ErrConflict
		}
	}
	return err
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		insert into users (id, email, family_id) values ($1, $2, $3)
	`, u.ID, u.Email, u.FamilyID)
	if err != nil {
		return ledger.User{}, mapPgErr(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (ledger.User, error) {
	var u ledger.User
	err := s.pool.QueryRow(ctx, `
		select id, email, family_id from users where id = $1
	`, id).Scan(&u.ID, &u.Email, &u.FamilyID)
	if err != nil {
		return ledger.User{}, mapPgErr(err)
	}
	return u, nil
}

func (s *Store) FamilyMembers(ctx context.Context, familyID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		select id from users where family_id = $1 order by id
	`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- accounts ---

const accountCols = `id, user_id, name, category, icon, currency, balance_minor, metadata, active`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var mdBytes []byte
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Category, &a.Icon, &a.Currency,
		&a.BalanceMinor, &mdBytes, &a.Active)
	if err != nil {
		return ledger.Account{}, mapPgErr(err)
	}
	if len(mdBytes) > 0 {
		var m meta.Metadata
		if err := m.UnmarshalJSON(mdBytes); err == nil {
			a.Metadata = m
		}
	}
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := a.Metadata.Validate(); err != nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	md, _ := a.Metadata.MarshalStableJSON()
	_, err := s.pool.Exec(ctx, `
		insert into accounts (id, user_id, name, category, icon, currency, balance_minor, metadata, active)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.ID, a.UserID, a.Name, a.Category, a.Icon, strings.ToUpper(a.Currency),
		a.BalanceMinor, md, a.Active)
	if err != nil {
		return ledger.Account{}, mapPgErr(err)
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `
		select `+accountCols+` from accounts where id = $1
	`, id))
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]ledger.Account{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select `+accountCols+` from accounts where id = any($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (s *Store) AccountsByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `
		select `+accountCols+` from accounts where user_id = $1 order by name, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAccount writes the mutable fields. Balance is ledger-owned and is
// deliberately absent from the statement.
func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := a.Metadata.Validate(); err != nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	md, _ := a.Metadata.MarshalStableJSON()
	ct, err := s.pool.Exec(ctx, `
		update accounts set name=$1, category=$2, icon=$3, metadata=$4, active=$5
		where id=$6
	`, a.Name, a.Category, a.Icon, md, a.Active, a.ID)
	if err != nil {
		return ledger.Account{}, mapPgErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ledger.Account{}, errs.ErrNotFound
	}
	return s.GetAccount(ctx, a.ID)
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		// FK violations surface as conflict: transactions still reference it.
		return mapPgErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) HasTransactions(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		select exists (
			select 1 from transactions
			where source_account_id = $1 or destination_account_id = $1
		)
	`, accountID).Scan(&exists)
	return exists, err
}

// --- transactions ---

const txCols = `id, user_id, source_account_id, destination_account_id, amount_minor,
	currency, type, category, description, date, is_recurring, frequency,
	frequency_day, frequency_custom_days, recurring_end_date, metadata`

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var t ledger.Transaction
	var dst *uuid.UUID
	var mdBytes []byte
	err := row.Scan(&t.ID, &t.UserID, &t.SourceAccountID, &dst, &t.AmountMinor,
		&t.Currency, &t.Type, &t.Category, &t.Description, &t.Date, &t.IsRecurring,
		&t.Frequency, &t.FrequencyDay, &t.FrequencyCustomDays, &t.RecurringEndDate, &mdBytes)
	if err != nil {
		return ledger.Transaction{}, mapPgErr(err)
	}
	if dst != nil {
		t.DestinationAccountID = *dst
	}
	if len(mdBytes) > 0 {
		var m meta.Metadata
		if err := m.UnmarshalJSON(mdBytes); err == nil {
			t.Metadata = m
		}
	}
	return t, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, `
		select `+txCols+` from transactions where id = $1
	`, id))
}

func (s *Store) queryTransactions(ctx context.Context, sql string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) TransactionsByUsers(ctx context.Context, userIDs []uuid.UUID) ([]ledger.Transaction, error) {
	return s.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where user_id = any($1)
		order by date desc, seq asc
	`, userIDs)
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	return s.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where source_account_id = $1 or destination_account_id = $1
		order by date desc, seq asc
	`, accountID)
}

// applyEffects locks the affected account rows in ascending ID order, then
// adds the merged per-account deltas. Returns ErrNotFound when any target row
// is missing, before anything mutates.
func applyEffects(ctx context.Context, tx pgx.Tx, sets ...[]ledger.BalanceEffect) error {
	merged := ledger.MergeEffects(sets...)
	if len(merged) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(merged))
	for _, e := range merged {
		ids = append(ids, e.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	rows, err := tx.Query(ctx, `
		select id from accounts where id = any($1) order by id for update
	`, ids)
	if err != nil {
		return err
	}
	locked := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if locked != len(ids) {
		return errs.ErrNotFound
	}

	for _, e := range merged {
		if _, err := tx.Exec(ctx, `
			update accounts set balance_minor = balance_minor + $1 where id = $2
		`, e.DeltaMinor, e.AccountID); err != nil {
			return err
		}
	}
	return nil
}

func insertTransaction(ctx context.Context, dbtx pgx.Tx, t ledger.Transaction) error {
	var dst *uuid.UUID
	if t.DestinationAccountID != uuid.Nil {
		dst = &t.DestinationAccountID
	}
	md, _ := t.Metadata.MarshalStableJSON()
	_, err := dbtx.Exec(ctx, `
		insert into transactions (id, user_id, source_account_id, destination_account_id,
			amount_minor, currency, type, category, description, date, is_recurring,
			frequency, frequency_day, frequency_custom_days, recurring_end_date, metadata)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, t.ID, t.UserID, t.SourceAccountID, dst, t.AmountMinor, t.Currency, t.Type,
		t.Category, t.Description, t.Date, t.IsRecurring, t.Frequency, t.FrequencyDay,
		t.FrequencyCustomDays, t.RecurringEndDate, md)
	return err
}

func (s *Store) CreateTransaction(ctx context.Context, t ledger.Transaction, effects []ledger.BalanceEffect) (ledger.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertTransaction(ctx, tx, t); err != nil {
		return ledger.Transaction{}, mapPgErr(err)
	}
	if err := applyEffects(ctx, tx, effects); err != nil {
		return ledger.Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t ledger.Transaction, undo, apply []ledger.BalanceEffect) (ledger.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var dst *uuid.UUID
	if t.DestinationAccountID != uuid.Nil {
		dst = &t.DestinationAccountID
	}
	md, _ := t.Metadata.MarshalStableJSON()
	ct, err := tx.Exec(ctx, `
		update transactions set source_account_id=$1, destination_account_id=$2,
			amount_minor=$3, currency=$4, type=$5, category=$6, description=$7,
			date=$8, is_recurring=$9, frequency=$10, frequency_day=$11,
			frequency_custom_days=$12, recurring_end_date=$13, metadata=$14
		where id=$15
	`, t.SourceAccountID, dst, t.AmountMinor, t.Currency, t.Type, t.Category,
		t.Description, t.Date, t.IsRecurring, t.Frequency, t.FrequencyDay,
		t.FrequencyCustomDays, t.RecurringEndDate, md, t.ID)
	if err != nil {
		return ledger.Transaction{}, mapPgErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	// Undo then reapply inside the same transaction boundary.
	if err := applyEffects(ctx, tx, undo, apply); err != nil {
		return ledger.Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id uuid.UUID, undo []ledger.BalanceEffect) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `delete from transactions where id = $1`, id)
	if err != nil {
		return mapPgErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	if err := applyEffects(ctx, tx, undo); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SeedDev inserts a demo user with two accounts for local testing.
func (s *Store) SeedDev(ctx context.Context) (ledger.User, []ledger.Account, error) {
	user := ledger.User{ID: uuid.New(), FamilyID: uuid.New()}
	if _, err := s.CreateUser(ctx, user); err != nil {
		return ledger.User{}, nil, err
	}
	accs := []ledger.Account{
		{ID: uuid.New(), UserID: user.ID, Name: "Current", Category: ledger.AccountCategoryChecking, Currency: "GBP", BalanceMinor: 100_000, Active: true},
		{ID: uuid.New(), UserID: user.ID, Name: "Savings", Category: ledger.AccountCategorySavings, Currency: "GBP", BalanceMinor: 500_000, Active: true},
	}
	for _, a := range accs {
		if _, err := s.CreateAccount(ctx, a); err != nil {
			return ledger.User{}, nil, err
		}
	}
	return user, accs, nil
}
