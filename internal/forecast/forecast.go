// Package forecast projects future balances for a set of accounts. It blends
// recurring occurrences, known one-time future transactions, and an estimated
// non-recurring expense baseline derived from trailing history. Projections
// are a visualization aid: nothing here writes back to storage.
package forecast

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/recurrence"
)

// historyDays is the trailing window feeding the expense baseline.
const historyDays = 90

// Point is one emitted sample of the projected series.
type Point struct {
	Date         time.Time
	BalanceMinor int64
	IncomeMinor  int64
	ExpenseMinor int64
}

// Options bound and tune a projection.
type Options struct {
	// Today anchors the horizon; projection covers the HorizonDays after it.
	Today       time.Time
	HorizonDays int
	// SampleEvery emits every Nth day (plus the first and last); values < 2
	// emit daily. The balance accumulation always runs day by day.
	SampleEvery int
	// Baseline enables the estimated non-recurring expense blend.
	Baseline bool
	// BaselineCategories restricts which historical expense categories feed
	// the baseline; empty means all.
	BaselineCategories []string
}

// Project computes the day-indexed series for the given account set. The
// series starts at the summed current balance of accounts; transactions whose
// source or destination falls outside the set contribute only their in-set
// half, so transfers inside the set net to zero.
func Project(accounts []ledger.Account, txs []ledger.Transaction, opts Options) []Point {
	if opts.HorizonDays <= 0 {
		return nil
	}
	today := dateOnly(opts.Today)
	inSet := make(map[uuid.UUID]bool, len(accounts))
	var balance int64
	for _, a := range accounts {
		inSet[a.ID] = true
		balance += a.BalanceMinor
	}

	baseline := 0.0
	if opts.Baseline {
		baseline = monthlyExpenseBaseline(txs, inSet, today, opts.BaselineCategories)
	}

	points := make([]Point, 0, opts.HorizonDays+1)
	points = append(points, Point{Date: today, BalanceMinor: balance})

	for i := 1; i <= opts.HorizonDays; i++ {
		day := today.AddDate(0, 0, i)
		var income, expense int64
		for _, tx := range txs {
			if tx.IsRecurring {
				if recurrence.OccursOn(tx, day) {
					inc, exp := setEffect(tx, inSet)
					income += inc
					expense += exp
				}
				continue
			}
			if dateOnly(tx.Date).Equal(day) {
				inc, exp := setEffect(tx, inSet)
				income += inc
				expense += exp
			}
		}
		// Blend the estimated baseline only into days with no known expense,
		// so real data always wins over the smoothing heuristic.
		if opts.Baseline && expense == 0 && baseline > 0 {
			expense += baselineForDay(day, baseline)
		}
		balance += income - expense
		if emit(i, opts.HorizonDays, opts.SampleEvery) {
			points = append(points, Point{Date: day, BalanceMinor: balance, IncomeMinor: income, ExpenseMinor: expense})
		}
	}
	return points
}

// setEffect maps a transaction onto the account set, returning its income and
// expense contributions in minor units. Transfers fully inside the set cancel
// out; a transfer leaving the set is an outflow, one entering it an inflow.
func setEffect(tx ledger.Transaction, inSet map[uuid.UUID]bool) (income, expense int64) {
	switch tx.Type {
	case ledger.TypeIncome:
		if inSet[tx.SourceAccountID] {
			income = tx.AmountMinor
		}
	case ledger.TypeExpense:
		if inSet[tx.SourceAccountID] {
			expense = tx.AmountMinor
		}
	case ledger.TypeTransfer:
		src, dst := inSet[tx.SourceAccountID], inSet[tx.DestinationAccountID]
		switch {
		case src && dst:
			// nets to zero across the set
		case src:
			expense = tx.AmountMinor
		case dst:
			income = tx.AmountMinor
		}
	}
	return income, expense
}

// monthlyExpenseBaseline averages the non-recurring expenses of the trailing
// three months into a per-month estimate, optionally restricted by category.
func monthlyExpenseBaseline(txs []ledger.Transaction, inSet map[uuid.UUID]bool, today time.Time, categories []string) float64 {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	start := today.AddDate(0, 0, -historyDays)
	var total int64
	for _, tx := range txs {
		if tx.IsRecurring || tx.Type != ledger.TypeExpense {
			continue
		}
		if !inSet[tx.SourceAccountID] {
			continue
		}
		d := dateOnly(tx.Date)
		if d.Before(start) || !d.Before(today) {
			continue
		}
		if len(allowed) > 0 && !allowed[tx.Category] {
			continue
		}
		total += tx.AmountMinor
	}
	return float64(total) / 3.0
}

// baselineForDay distributes the monthly baseline unevenly across the month:
// front-loaded, since discretionary spending historically clusters after the
// start of the month rather than spreading flat.
func baselineForDay(day time.Time, monthly float64) int64 {
	daysInMonth := time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	var totalWeight float64
	for d := 1; d <= daysInMonth; d++ {
		totalWeight += dayWeight(d)
	}
	share := monthly * dayWeight(day.Day()) / totalWeight
	return int64(math.Round(share))
}

// dayWeight front-loads the month: the first ten days carry triple weight,
// the middle ten double, the rest single.
func dayWeight(dayOfMonth int) float64 {
	switch {
	case dayOfMonth <= 10:
		return 3
	case dayOfMonth <= 20:
		return 2
	default:
		return 1
	}
}

func emit(i, horizon, every int) bool {
	if every < 2 {
		return true
	}
	return i%every == 0 || i == horizon
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
