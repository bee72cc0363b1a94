// Package transaction implements the ledger rules: every create, update and
// delete pairs the record mutation with exactly one balance-adjustment pass
// over the affected accounts, and updates follow the undo-then-reapply
// protocol so edits that change type or move between accounts stay correct.
package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/slug"
)

// Repo defines read operations needed by the service.
type Repo interface {
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	// TransactionsByUsers returns the union of the users' transactions ordered
	// by date descending, ties broken by insertion order.
	TransactionsByUsers(ctx context.Context, userIDs []uuid.UUID) ([]ledger.Transaction, error)
	// TransactionsByAccount returns transactions referencing the account as
	// source or destination, same ordering.
	TransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error)
	// FamilyMembers returns the user IDs belonging to a family.
	FamilyMembers(ctx context.Context, familyID uuid.UUID) ([]uuid.UUID, error)
}

// Writer defines the atomic write operations needed by the service. Each call
// commits the record and every balance effect together or not at all.
type Writer interface {
	CreateTransaction(ctx context.Context, tx ledger.Transaction, effects []ledger.BalanceEffect) (ledger.Transaction, error)
	// UpdateTransaction persists tx and applies undo then apply inside one
	// atomic boundary. The two effect sets are computed independently from the
	// original and the patched record; they are never a field-level diff.
	UpdateTransaction(ctx context.Context, tx ledger.Transaction, undo, apply []ledger.BalanceEffect) (ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID, undo []ledger.BalanceEffect) error
}

// Patch carries the mutable transaction fields; nil means "leave unchanged".
type Patch struct {
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	AmountMinor          *int64
	Type                 *ledger.TransactionType
	Category             *string
	Description          *string
	Date                 *time.Time
	IsRecurring          *bool
	Frequency            *ledger.Frequency
	FrequencyDay         *int
	FrequencyCustomDays  *int
	RecurringEndDate     *time.Time
	// ClearRecurringEnd removes the end bound; it wins over RecurringEndDate.
	ClearRecurringEnd bool
}

// Service exposes validation and the ledger mutations plus the read views.
type Service interface {
	Validate(ctx context.Context, tx ledger.Transaction) error
	Create(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) (ledger.Transaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error)
	ListByFamily(ctx context.Context, familyID uuid.UUID) ([]ledger.Transaction, error)
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

// Validate front-loads every check so no write ever needs rolling back for a
// validation failure. Overdraft is deliberately not checked here: the ledger
// permits negative balances so corrective entries are never blocked.
func (s *service) Validate(ctx context.Context, tx ledger.Transaction) error {
	if tx.UserID == uuid.Nil || tx.SourceAccountID == uuid.Nil {
		return errs.ErrInvalid
	}
	if tx.AmountMinor < 0 {
		return errs.ErrInvalid
	}
	if !ledger.ValidType(tx.Type) {
		return errs.ErrInvalid
	}
	if tx.Category != "" && !slug.IsSlug(tx.Category) {
		return errs.ErrInvalid
	}
	if tx.Date.IsZero() {
		return errs.ErrInvalid
	}
	if tx.IsTransfer() {
		if tx.DestinationAccountID == uuid.Nil || tx.DestinationAccountID == tx.SourceAccountID {
			return errs.ErrInvalidTransfer
		}
	} else if tx.DestinationAccountID != uuid.Nil {
		return errs.ErrInvalid
	}
	if tx.IsRecurring {
		if !ledger.ValidFrequency(tx.Frequency) {
			return errs.ErrInvalid
		}
		switch tx.Frequency {
		case ledger.FrequencyMonthly:
			if tx.FrequencyDay < 1 || tx.FrequencyDay > 31 {
				return errs.ErrInvalid
			}
		case ledger.FrequencyCustom:
			if tx.FrequencyCustomDays <= 0 {
				return errs.ErrInvalid
			}
		}
		if tx.RecurringEndDate != nil && tx.RecurringEndDate.Before(tx.Date) {
			return errs.ErrInvalid
		}
	}

	ids := []uuid.UUID{tx.SourceAccountID}
	if tx.IsTransfer() {
		ids = append(ids, tx.DestinationAccountID)
	}
	accs, err := s.repo.AccountsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	src, ok := accs[tx.SourceAccountID]
	if !ok {
		return errs.ErrNotFound
	}
	if tx.IsTransfer() {
		dst, ok := accs[tx.DestinationAccountID]
		if !ok {
			return errs.ErrNotFound
		}
		// Currency is a label, not a conversion unit: a transfer between
		// accounts labeled differently has no well-defined amount.
		if dst.Currency != src.Currency {
			return errs.ErrInvalid
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if err := s.Validate(ctx, tx); err != nil {
		return ledger.Transaction{}, err
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	return s.writer.CreateTransaction(ctx, tx, ledger.Effects(tx))
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	if id == uuid.Nil {
		return ledger.Transaction{}, errs.ErrInvalid
	}
	return s.repo.GetTransaction(ctx, id)
}

// Update loads the original, computes the inverse of its effects, applies the
// patch, validates the result, and hands the store the undo and reapply passes
// to run as one atomic unit. The two passes each operate on a self-consistent
// account/amount/type triple; there is no delta arithmetic between old and new
// field values.
func (s *service) Update(ctx context.Context, id uuid.UUID, patch Patch) (ledger.Transaction, error) {
	if id == uuid.Nil {
		return ledger.Transaction{}, errs.ErrInvalid
	}
	orig, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	next := Apply(orig, patch)
	if err := s.Validate(ctx, next); err != nil {
		return ledger.Transaction{}, err
	}
	undo := ledger.InverseEffects(ledger.Effects(orig))
	apply := ledger.Effects(next)
	return s.writer.UpdateTransaction(ctx, next, undo, apply)
}

// Delete reverses the stored effects and removes the record atomically.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	orig, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	return s.writer.DeleteTransaction(ctx, orig.ID, ledger.InverseEffects(ledger.Effects(orig)))
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Transaction, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	return s.repo.TransactionsByUsers(ctx, []uuid.UUID{userID})
}

func (s *service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	if accountID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	return s.repo.TransactionsByAccount(ctx, accountID)
}

// ListByFamily returns the union of all family members' transactions.
func (s *service) ListByFamily(ctx context.Context, familyID uuid.UUID) ([]ledger.Transaction, error) {
	if familyID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	members, err := s.repo.FamilyMembers(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []ledger.Transaction{}, nil
	}
	return s.repo.TransactionsByUsers(ctx, members)
}

// Apply returns tx with the patch applied. Exposed so callers can preview the
// patched record, e.g. for policy checks, before committing an update.
func Apply(tx ledger.Transaction, p Patch) ledger.Transaction {
	if p.SourceAccountID != nil {
		tx.SourceAccountID = *p.SourceAccountID
	}
	if p.DestinationAccountID != nil {
		tx.DestinationAccountID = *p.DestinationAccountID
	}
	if p.AmountMinor != nil {
		tx.AmountMinor = *p.AmountMinor
	}
	if p.Type != nil {
		tx.Type = *p.Type
		if !tx.IsTransfer() {
			tx.DestinationAccountID = uuid.Nil
		}
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	if p.Description != nil {
		tx.Description = *p.Description
	}
	if p.Date != nil {
		tx.Date = *p.Date
	}
	if p.IsRecurring != nil {
		tx.IsRecurring = *p.IsRecurring
	}
	if p.Frequency != nil {
		tx.Frequency = *p.Frequency
	}
	if p.FrequencyDay != nil {
		tx.FrequencyDay = *p.FrequencyDay
	}
	if p.FrequencyCustomDays != nil {
		tx.FrequencyCustomDays = *p.FrequencyCustomDays
	}
	if p.ClearRecurringEnd {
		tx.RecurringEndDate = nil
	} else if p.RecurringEndDate != nil {
		d := *p.RecurringEndDate
		tx.RecurringEndDate = &d
	}
	return tx
}
