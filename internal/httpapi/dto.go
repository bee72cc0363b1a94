package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/meta"
	"github.com/tallyhq/tally/internal/service/account"
	"github.com/tallyhq/tally/internal/service/transaction"
)

// --- accounts ---

type createAccountRequest struct {
	UserID       uuid.UUID         `json:"user_id" validate:"required"`
	Name         string            `json:"name" validate:"required"`
	Category     string            `json:"category" validate:"required,oneof=checking savings credit loan investment"`
	Icon         string            `json:"icon,omitempty"`
	Currency     string            `json:"currency" validate:"required,len=3"`
	BalanceMinor int64             `json:"balance_minor,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type updateAccountRequest struct {
	Name     *string           `json:"name,omitempty" validate:"omitempty,min=1"`
	Category *string           `json:"category,omitempty" validate:"omitempty,oneof=checking savings credit loan investment"`
	Icon     *string           `json:"icon,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Active   *bool             `json:"active,omitempty"`
}

type accountResponse struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Name         string        `json:"name"`
	Category     string        `json:"category"`
	Icon         string        `json:"icon,omitempty"`
	Currency     string        `json:"currency"`
	BalanceMinor int64         `json:"balance_minor"`
	Balance      string        `json:"balance"`
	Metadata     meta.Metadata `json:"metadata,omitempty"`
	Active       bool          `json:"active"`
}

// formatMinor renders minor units as a decimal string in the account currency,
// e.g. (GBP, 1050) -> "10.50". Falls back to empty on unknown currency codes.
func formatMinor(currency string, units int64) string {
	amt, err := money.NewAmountFromMinorUnits(currency, units)
	if err != nil {
		return ""
	}
	return amt.String()
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		Category:     string(a.Category),
		Icon:         a.Icon,
		Currency:     a.Currency,
		BalanceMinor: a.BalanceMinor,
		Balance:      formatMinor(a.Currency, a.BalanceMinor),
		Metadata:     a.Metadata,
		Active:       a.Active,
	}
}

func toAccountDomain(req createAccountRequest) ledger.Account {
	return ledger.Account{
		UserID:       req.UserID,
		Name:         req.Name,
		Category:     ledger.AccountCategory(req.Category),
		Icon:         req.Icon,
		Currency:     req.Currency,
		BalanceMinor: req.BalanceMinor,
		Metadata:     meta.New(req.Metadata),
	}
}

func toAccountPatch(req updateAccountRequest) account.Patch {
	p := account.Patch{
		Name:   req.Name,
		Icon:   req.Icon,
		Active: req.Active,
	}
	if req.Category != nil {
		c := ledger.AccountCategory(*req.Category)
		p.Category = &c
	}
	if req.Metadata != nil {
		p.Metadata = meta.New(req.Metadata)
	}
	return p
}

// --- transactions ---

type createTransactionRequest struct {
	UserID               uuid.UUID         `json:"user_id" validate:"required"`
	SourceAccountID      uuid.UUID         `json:"source_account_id" validate:"required"`
	DestinationAccountID *uuid.UUID        `json:"destination_account_id,omitempty"`
	AmountMinor          int64             `json:"amount_minor" validate:"gte=0"`
	Currency             string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	Type                 string            `json:"type" validate:"required,oneof=income expense transfer"`
	Category             string            `json:"category,omitempty"`
	Description          string            `json:"description,omitempty"`
	Date                 time.Time         `json:"date" validate:"required"`
	IsRecurring          bool              `json:"is_recurring,omitempty"`
	Frequency            string            `json:"frequency,omitempty" validate:"omitempty,oneof=monthly yearly custom"`
	FrequencyDay         int               `json:"frequency_day,omitempty" validate:"omitempty,min=1,max=31"`
	FrequencyCustomDays  int               `json:"frequency_custom_days,omitempty" validate:"omitempty,min=1"`
	RecurringEndDate     *time.Time        `json:"recurring_end_date,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	// AllowOverdraft opts out of the insufficient-funds policy check for this
	// request. The ledger itself never blocks on balance.
	AllowOverdraft bool `json:"allow_overdraft,omitempty"`
}

type updateTransactionRequest struct {
	SourceAccountID      *uuid.UUID `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID `json:"destination_account_id,omitempty"`
	AmountMinor          *int64     `json:"amount_minor,omitempty" validate:"omitempty,gte=0"`
	Type                 *string    `json:"type,omitempty" validate:"omitempty,oneof=income expense transfer"`
	Category             *string    `json:"category,omitempty"`
	Description          *string    `json:"description,omitempty"`
	Date                 *time.Time `json:"date,omitempty"`
	IsRecurring          *bool      `json:"is_recurring,omitempty"`
	Frequency            *string    `json:"frequency,omitempty" validate:"omitempty,oneof=monthly yearly custom"`
	FrequencyDay         *int       `json:"frequency_day,omitempty" validate:"omitempty,min=1,max=31"`
	FrequencyCustomDays  *int       `json:"frequency_custom_days,omitempty" validate:"omitempty,min=1"`
	RecurringEndDate     *time.Time `json:"recurring_end_date,omitempty"`
	ClearRecurringEnd    bool       `json:"clear_recurring_end,omitempty"`
	AllowOverdraft       bool       `json:"allow_overdraft,omitempty"`
}

type transactionResponse struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               uuid.UUID     `json:"user_id"`
	SourceAccountID      uuid.UUID     `json:"source_account_id"`
	DestinationAccountID *uuid.UUID    `json:"destination_account_id,omitempty"`
	AmountMinor          int64         `json:"amount_minor"`
	Amount               string        `json:"amount,omitempty"`
	Currency             string        `json:"currency,omitempty"`
	Type                 string        `json:"type"`
	Category             string        `json:"category,omitempty"`
	Description          string        `json:"description,omitempty"`
	Date                 time.Time     `json:"date"`
	IsRecurring          bool          `json:"is_recurring"`
	Frequency            string        `json:"frequency,omitempty"`
	FrequencyDay         int           `json:"frequency_day,omitempty"`
	FrequencyCustomDays  int           `json:"frequency_custom_days,omitempty"`
	RecurringEndDate     *time.Time    `json:"recurring_end_date,omitempty"`
	Metadata             meta.Metadata `json:"metadata,omitempty"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:                  t.ID,
		UserID:              t.UserID,
		SourceAccountID:     t.SourceAccountID,
		AmountMinor:         t.AmountMinor,
		Amount:              formatMinor(t.Currency, t.AmountMinor),
		Currency:            t.Currency,
		Type:                string(t.Type),
		Category:            t.Category,
		Description:         t.Description,
		Date:                t.Date,
		IsRecurring:         t.IsRecurring,
		Frequency:           string(t.Frequency),
		FrequencyDay:        t.FrequencyDay,
		FrequencyCustomDays: t.FrequencyCustomDays,
		RecurringEndDate:    t.RecurringEndDate,
		Metadata:            t.Metadata,
	}
	if t.DestinationAccountID != uuid.Nil {
		dst := t.DestinationAccountID
		resp.DestinationAccountID = &dst
	}
	return resp
}

func toTransactionResponses(txs []ledger.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

func toTransactionDomain(req createTransactionRequest) ledger.Transaction {
	t := ledger.Transaction{
		UserID:              req.UserID,
		SourceAccountID:     req.SourceAccountID,
		AmountMinor:         req.AmountMinor,
		Currency:            req.Currency,
		Type:                ledger.TransactionType(req.Type),
		Category:            req.Category,
		Description:         req.Description,
		Date:                req.Date.UTC(),
		IsRecurring:         req.IsRecurring,
		Frequency:           ledger.Frequency(req.Frequency),
		FrequencyDay:        req.FrequencyDay,
		FrequencyCustomDays: req.FrequencyCustomDays,
		Metadata:            meta.New(req.Metadata),
	}
	if req.DestinationAccountID != nil {
		t.DestinationAccountID = *req.DestinationAccountID
	}
	if req.RecurringEndDate != nil {
		end := req.RecurringEndDate.UTC()
		t.RecurringEndDate = &end
	}
	return t
}

func toTransactionPatch(req updateTransactionRequest) transaction.Patch {
	p := transaction.Patch{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		AmountMinor:          req.AmountMinor,
		Category:             req.Category,
		Description:          req.Description,
		Date:                 req.Date,
		IsRecurring:          req.IsRecurring,
		FrequencyDay:         req.FrequencyDay,
		FrequencyCustomDays:  req.FrequencyCustomDays,
		RecurringEndDate:     req.RecurringEndDate,
		ClearRecurringEnd:    req.ClearRecurringEnd,
	}
	if req.Type != nil {
		typ := ledger.TransactionType(*req.Type)
		p.Type = &typ
	}
	if req.Frequency != nil {
		f := ledger.Frequency(*req.Frequency)
		p.Frequency = &f
	}
	return p
}

// listTransactionsResponse is the paginated list envelope.
type listTransactionsResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// --- forecast ---

type forecastPointResponse struct {
	Date         string `json:"date"`
	BalanceMinor int64  `json:"balance_minor"`
	IncomeMinor  int64  `json:"income_minor"`
	ExpenseMinor int64  `json:"expense_minor"`
}

type forecastResponse struct {
	Points []forecastPointResponse `json:"points"`
}
