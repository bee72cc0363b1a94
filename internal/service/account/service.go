// Package account manages the account catalog. Balances are owned by the
// ledger: nothing here writes BalanceMinor, and deletion is refused while any
// transaction still references the account.
package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/meta"
)

type Repo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	AccountsByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	// HasTransactions reports whether any transaction references the account
	// as source or destination.
	HasTransactions(ctx context.Context, accountID uuid.UUID) (bool, error)
}

type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// Patch carries the mutable account fields; nil means "leave unchanged".
// Balance and currency are absent on purpose: balance changes flow only
// through the ledger, and currency is fixed at creation.
type Patch struct {
	Name     *string
	Category *ledger.AccountCategory
	Icon     *string
	Metadata meta.Metadata
	Active   *bool
}

type Service interface {
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) (ledger.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func validate(a ledger.Account) error {
	if a.UserID == uuid.Nil || a.Name == "" || a.Currency == "" {
		return errs.ErrInvalid
	}
	if !ledger.ValidAccountCategory(a.Category) {
		return errs.ErrInvalid
	}
	return nil
}

// Create stores the account with its opening balance. The opening balance is
// the one balance write that does not come from a transaction.
func (s *service) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := validate(a); err != nil {
		return ledger.Account{}, err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Active = true
	return s.writer.CreateAccount(ctx, a)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	if id == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	return s.repo.GetAccount(ctx, id)
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	return s.repo.AccountsByUser(ctx, userID)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, patch Patch) (ledger.Account, error) {
	if id == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Category != nil {
		a.Category = *patch.Category
	}
	if patch.Icon != nil {
		a.Icon = *patch.Icon
	}
	if patch.Metadata != nil {
		md := a.Metadata.Clone()
		md.Merge(patch.Metadata)
		a.Metadata = md
	}
	if patch.Active != nil {
		a.Active = *patch.Active
	}
	if err := validate(a); err != nil {
		return ledger.Account{}, err
	}
	return s.writer.UpdateAccount(ctx, a)
}

// Delete removes the account permanently. It refuses while transactions still
// reference it, otherwise their balance history would dangle.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	if _, err := s.repo.GetAccount(ctx, id); err != nil {
		return err
	}
	used, err := s.repo.HasTransactions(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return errs.ErrConflict
	}
	return s.writer.DeleteAccount(ctx, id)
}
