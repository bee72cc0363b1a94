package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/meta"
)

// TransactionType determines the direction of the balance effect.
type TransactionType string

const (
	// TypeIncome adds the amount to the source account.
	TypeIncome TransactionType = "income"
	// TypeExpense subtracts the amount from the source account.
	TypeExpense TransactionType = "expense"
	// TypeTransfer moves the amount from the source to the destination account.
	TypeTransfer TransactionType = "transfer"
)

// AccountCategory classifies an account for display and reporting.
type AccountCategory string

const (
	AccountCategoryChecking   AccountCategory = "checking"
	AccountCategorySavings    AccountCategory = "savings"
	AccountCategoryCredit     AccountCategory = "credit"
	AccountCategoryLoan       AccountCategory = "loan"
	AccountCategoryInvestment AccountCategory = "investment"
)

// Frequency enumerates how often a recurring transaction repeats.
type Frequency string

const (
	// FrequencyMonthly repeats on a fixed day of the month (FrequencyDay).
	FrequencyMonthly Frequency = "monthly"
	// FrequencyYearly repeats on the anchor's month and day each year.
	FrequencyYearly Frequency = "yearly"
	// FrequencyCustom repeats every FrequencyCustomDays days from the anchor.
	FrequencyCustom Frequency = "custom"
)

// User captures the owner of accounts and transactions. Family membership is
// read-only here; managing families belongs to the auth collaborator.
type User struct {
	ID       uuid.UUID
	Email    *string
	FamilyID uuid.UUID
}

// Account is a single-entry ledger account. BalanceMinor is the net sum of the
// balance effects of every transaction referencing the account; only the
// transaction service mutates it.
type Account struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Name     string
	Category AccountCategory
	Icon     string
	// Currency is a display label. No conversion happens anywhere.
	Currency string
	// BalanceMinor is a signed amount in minor units. Negative balances are
	// legal at this layer; overdraft policy lives in the API layer.
	BalanceMinor int64
	// Metadata holds additional key-value attributes for the account.
	Metadata meta.Metadata `json:"metadata,omitempty"`
	// Active indicates whether the account is active (soft-delete when false).
	Active bool
}

// Transaction is a ledger record. A recurring transaction is a single stored
// template; occurrences are computed on demand, never materialized as rows.
type Transaction struct {
	ID     uuid.UUID
	UserID uuid.UUID
	// SourceAccountID is always present. DestinationAccountID is set only for
	// transfers and is always distinct from the source.
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	// AmountMinor is a non-negative magnitude in minor units. Direction is
	// derived from Type, never stored as a sign.
	AmountMinor int64
	Currency    string
	Type        TransactionType
	Category    string
	Description string
	// Date is the recurrence anchor for recurring transactions.
	Date        time.Time
	IsRecurring bool
	Frequency   Frequency
	// FrequencyDay is the day of month (1-31) for monthly recurrence.
	FrequencyDay int
	// FrequencyCustomDays is the repeat interval in days for custom recurrence.
	FrequencyCustomDays int
	// RecurringEndDate bounds the recurrence when set; nil means indefinitely.
	RecurringEndDate *time.Time
	Metadata         meta.Metadata `json:"metadata,omitempty"`
}

// IsTransfer reports whether the transaction moves funds between two accounts.
func (t Transaction) IsTransfer() bool { return t.Type == TypeTransfer }

// ValidType reports whether t is one of the known transaction types.
func ValidType(t TransactionType) bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

// ValidAccountCategory reports whether c is a known account category.
func ValidAccountCategory(c AccountCategory) bool {
	switch c {
	case AccountCategoryChecking, AccountCategorySavings, AccountCategoryCredit,
		AccountCategoryLoan, AccountCategoryInvestment:
		return true
	}
	return false
}

// ValidFrequency reports whether f is a known recurrence frequency.
func ValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyMonthly, FrequencyYearly, FrequencyCustom:
		return true
	}
	return false
}
