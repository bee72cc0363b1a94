package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
)

func newAccount(t *testing.T, s *Store, balance int64) ledger.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), ledger.Account{
		ID: uuid.New(), UserID: uuid.New(), Name: "acc",
		Category: ledger.AccountCategoryChecking, Currency: "GBP",
		BalanceMinor: balance, Active: true,
	})
	require.NoError(t, err)
	return a
}

func TestCreateTransactionAtomicOnMissingAccount(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newAccount(t, s, 1_000)

	// One effect targets a missing account: nothing may be written.
	tx := ledger.Transaction{ID: uuid.New(), UserID: a.UserID, SourceAccountID: a.ID,
		AmountMinor: 100, Type: ledger.TypeTransfer, DestinationAccountID: uuid.New(),
		Date: time.Now()}
	_, err := s.CreateTransaction(ctx, tx, ledger.Effects(tx))
	require.ErrorIs(t, err, errs.ErrNotFound)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), got.BalanceMinor)
	_, err = s.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdateTransactionAppliesUndoThenApply(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newAccount(t, s, 1_000)

	tx := ledger.Transaction{ID: uuid.New(), UserID: a.UserID, SourceAccountID: a.ID,
		AmountMinor: 300, Type: ledger.TypeExpense, Date: time.Now()}
	_, err := s.CreateTransaction(ctx, tx, ledger.Effects(tx))
	require.NoError(t, err)

	next := tx
	next.Type = ledger.TypeIncome
	_, err = s.UpdateTransaction(ctx, next,
		ledger.InverseEffects(ledger.Effects(tx)), ledger.Effects(next))
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_300), got.BalanceMinor)
}

func TestUpdateAccountPreservesBalance(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newAccount(t, s, 777)

	a.Name = "renamed"
	a.BalanceMinor = 0 // callers cannot write balances
	got, err := s.UpdateAccount(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, int64(777), got.BalanceMinor)
}

func TestDeleteAccountRefusedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newAccount(t, s, 1_000)

	tx := ledger.Transaction{ID: uuid.New(), UserID: a.UserID, SourceAccountID: a.ID,
		AmountMinor: 100, Type: ledger.TypeExpense, Date: time.Now()}
	_, err := s.CreateTransaction(ctx, tx, ledger.Effects(tx))
	require.NoError(t, err)

	// The reference check and the delete share one lock acquisition, so the
	// store refuses even when the caller skipped its own pre-check.
	err = s.DeleteAccount(ctx, a.ID)
	require.ErrorIs(t, err, errs.ErrConflict)

	require.NoError(t, s.DeleteTransaction(ctx, tx.ID, ledger.InverseEffects(ledger.Effects(tx))))
	assert.NoError(t, s.DeleteAccount(ctx, a.ID))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newAccount(t, s, 1)
	s.Reset()
	_, err := s.GetAccount(ctx, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
