// Package dictionary holds the curated category vocabulary served to clients.
// Transaction categories are free-form slugs; this list only feeds pickers
// and reporting labels.
package dictionary

import "github.com/tallyhq/tally/internal/ledger"

type CategoryDef struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var transactionCategories = map[ledger.TransactionType][]CategoryDef{
	ledger.TypeIncome: {
		{Code: "salary", Label: "Salary"},
		{Code: "interest", Label: "Interest"},
		{Code: "refund", Label: "Refund"},
		{Code: "gift", Label: "Gift"},
		{Code: "other_income", Label: "Other Income"},
	},
	ledger.TypeExpense: {
		{Code: "groceries", Label: "Groceries"},
		{Code: "eating_out", Label: "Eating Out"},
		{Code: "rent", Label: "Rent"},
		{Code: "utilities", Label: "Utilities"},
		{Code: "transport", Label: "Transport"},
		{Code: "shopping", Label: "Shopping"},
		{Code: "entertainment", Label: "Entertainment"},
		{Code: "subscriptions", Label: "Subscriptions"},
		{Code: "health", Label: "Health"},
		{Code: "general", Label: "General"},
	},
	ledger.TypeTransfer: {
		{Code: "savings_top_up", Label: "Savings Top Up"},
		{Code: "debt_payment", Label: "Debt Payment"},
		{Code: "general", Label: "General"},
	},
}

var accountCategories = []CategoryDef{
	{Code: string(ledger.AccountCategoryChecking), Label: "Checking"},
	{Code: string(ledger.AccountCategorySavings), Label: "Savings"},
	{Code: string(ledger.AccountCategoryCredit), Label: "Credit"},
	{Code: string(ledger.AccountCategoryLoan), Label: "Loan"},
	{Code: string(ledger.AccountCategoryInvestment), Label: "Investment"},
}

// CategoriesFor returns the curated transaction categories, filtered by type
// when t is non-nil.
func CategoriesFor(t *ledger.TransactionType) []CategoryDef {
	if t == nil {
		out := make([]CategoryDef, 0)
		for _, typ := range []ledger.TransactionType{ledger.TypeIncome, ledger.TypeExpense, ledger.TypeTransfer} {
			out = append(out, transactionCategories[typ]...)
		}
		return out
	}
	defs := transactionCategories[*t]
	out := make([]CategoryDef, len(defs))
	copy(out, defs)
	return out
}

// AccountCategories returns the fixed account classification list.
func AccountCategories() []CategoryDef {
	out := make([]CategoryDef, len(accountCategories))
	copy(out, accountCategories)
	return out
}
