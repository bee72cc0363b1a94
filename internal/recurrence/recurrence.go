// Package recurrence decides, for a recurring transaction template, which
// calendar dates it falls on. Everything here is pure: no clock reads, no
// storage. Callers needing a list of occurrences iterate candidate dates and
// query the predicate instead of materializing rows.
package recurrence

import (
	"time"

	"github.com/tallyhq/tally/internal/ledger"
)

// dateOnly truncates t to a UTC calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// OccursOn reports whether tx takes effect on day. Dates are compared at day
// granularity in UTC, with the transaction's own date as the anchor.
//
// Monthly: the day-of-month must equal FrequencyDay; months without that day
// are skipped, never rolled over (day 31 simply does not occur in April).
// Yearly: the month and day must match the anchor's; a Feb 29 anchor occurs on
// Feb 28 in non-leap years.
// Custom: the whole-day difference from the anchor must be a non-negative
// multiple of FrequencyCustomDays.
//
// A non-recurring transaction occurs only on its own date.
func OccursOn(tx ledger.Transaction, day time.Time) bool {
	candidate := dateOnly(day)
	anchor := dateOnly(tx.Date)
	if !tx.IsRecurring {
		return candidate.Equal(anchor)
	}
	if candidate.Before(anchor) {
		return false
	}
	if tx.RecurringEndDate != nil && candidate.After(dateOnly(*tx.RecurringEndDate)) {
		return false
	}
	switch tx.Frequency {
	case ledger.FrequencyMonthly:
		return candidate.Day() == tx.FrequencyDay
	case ledger.FrequencyYearly:
		if candidate.Month() == anchor.Month() && candidate.Day() == anchor.Day() {
			return true
		}
		// Feb 29 anchors fall back to Feb 28 outside leap years.
		if anchor.Month() == time.February && anchor.Day() == 29 {
			return !isLeapYear(candidate.Year()) &&
				candidate.Month() == time.February && candidate.Day() == 28
		}
		return false
	case ledger.FrequencyCustom:
		if tx.FrequencyCustomDays <= 0 {
			return false
		}
		days := int(candidate.Sub(anchor).Hours() / 24)
		return days%tx.FrequencyCustomDays == 0
	}
	return false
}

// CountInRange counts the days in [from, to] (inclusive, day granularity) on
// which tx occurs. This is the exact day-level check used for calendar
// display; see EstimateCustomPerPeriod for the coarse aggregate variant.
func CountInRange(tx ledger.Transaction, from, to time.Time) int {
	start := dateOnly(from)
	end := dateOnly(to)
	if end.Before(start) {
		return 0
	}
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if OccursOn(tx, d) {
			n++
		}
	}
	return n
}

// EstimateCustomPerPeriod returns the coarse days-in-period / interval
// estimate for a custom-frequency transaction over a period of daysInPeriod
// days. It is an aggregate approximation for summary projections and can be
// off by one occurrence at period boundaries; it must never replace the exact
// OccursOn/CountInRange checks.
func EstimateCustomPerPeriod(tx ledger.Transaction, daysInPeriod int) float64 {
	if !tx.IsRecurring || tx.Frequency != ledger.FrequencyCustom || tx.FrequencyCustomDays <= 0 || daysInPeriod <= 0 {
		return 0
	}
	return float64(daysInPeriod) / float64(tx.FrequencyCustomDays)
}
