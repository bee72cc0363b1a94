package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tallyhq/tally/internal/ledger"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthlyOn(dayOfMonth int, anchor time.Time) ledger.Transaction {
	return ledger.Transaction{
		Date:         anchor,
		IsRecurring:  true,
		Frequency:    ledger.FrequencyMonthly,
		FrequencyDay: dayOfMonth,
	}
}

func TestOccursOn_MonthlyDay31SkipsShortMonths(t *testing.T) {
	tx := monthlyOn(31, day(2025, time.January, 31))

	assert.True(t, OccursOn(tx, day(2025, time.March, 31)))
	assert.True(t, OccursOn(tx, day(2025, time.May, 31)))
	// April has 30 days; the occurrence is skipped, not rolled over.
	for d := 1; d <= 30; d++ {
		assert.False(t, OccursOn(tx, day(2025, time.April, d)), "april %d", d)
	}
}

func TestOccursOn_MonthlyBounds(t *testing.T) {
	end := day(2025, time.June, 30)
	tx := monthlyOn(15, day(2025, time.March, 15))
	tx.RecurringEndDate = &end

	assert.False(t, OccursOn(tx, day(2025, time.February, 15)), "before anchor")
	assert.True(t, OccursOn(tx, day(2025, time.March, 15)), "anchor itself")
	assert.True(t, OccursOn(tx, day(2025, time.June, 15)), "inside end bound")
	assert.False(t, OccursOn(tx, day(2025, time.July, 15)), "past end bound")
}

func TestOccursOn_Yearly(t *testing.T) {
	tx := ledger.Transaction{
		Date:        day(2024, time.March, 10),
		IsRecurring: true,
		Frequency:   ledger.FrequencyYearly,
	}
	assert.True(t, OccursOn(tx, day(2025, time.March, 10)))
	assert.False(t, OccursOn(tx, day(2025, time.March, 11)))
	assert.False(t, OccursOn(tx, day(2025, time.April, 10)))
}

func TestOccursOn_YearlyLeapDayFallsBackToFeb28(t *testing.T) {
	tx := ledger.Transaction{
		Date:        day(2024, time.February, 29),
		IsRecurring: true,
		Frequency:   ledger.FrequencyYearly,
	}
	assert.True(t, OccursOn(tx, day(2028, time.February, 29)), "leap year keeps Feb 29")
	assert.False(t, OccursOn(tx, day(2028, time.February, 28)), "no double hit in leap years")
	assert.True(t, OccursOn(tx, day(2025, time.February, 28)), "non-leap year falls back")
}

func TestOccursOn_CustomEverySevenDays(t *testing.T) {
	anchor := day(2025, time.January, 1)
	tx := ledger.Transaction{
		Date:                anchor,
		IsRecurring:         true,
		Frequency:           ledger.FrequencyCustom,
		FrequencyCustomDays: 7,
	}
	assert.True(t, OccursOn(tx, anchor), "day 0")
	assert.True(t, OccursOn(tx, anchor.AddDate(0, 0, 14)), "day 14")
	assert.False(t, OccursOn(tx, anchor.AddDate(0, 0, 15)), "day 15")
	assert.False(t, OccursOn(tx, anchor.AddDate(0, 0, -7)), "before anchor")
}

func TestOccursOn_NonRecurringOnlyOnOwnDate(t *testing.T) {
	tx := ledger.Transaction{Date: day(2025, time.May, 2)}
	assert.True(t, OccursOn(tx, day(2025, time.May, 2)))
	assert.False(t, OccursOn(tx, day(2025, time.May, 3)))
}

func TestCountInRange(t *testing.T) {
	tx := ledger.Transaction{
		Date:                day(2025, time.January, 1),
		IsRecurring:         true,
		Frequency:           ledger.FrequencyCustom,
		FrequencyCustomDays: 7,
	}
	// Jan 1, 8, 15, 22, 29
	assert.Equal(t, 5, CountInRange(tx, day(2025, time.January, 1), day(2025, time.January, 31)))
	assert.Equal(t, 0, CountInRange(tx, day(2025, time.January, 31), day(2025, time.January, 1)), "inverted range")

	monthly := monthlyOn(31, day(2025, time.January, 31))
	// Jan 31, Mar 31, May 31 — Feb and Apr have no day 31.
	assert.Equal(t, 3, CountInRange(monthly, day(2025, time.January, 1), day(2025, time.May, 31)))
}

func TestEstimateCustomPerPeriod_DistinctFromExactCount(t *testing.T) {
	tx := ledger.Transaction{
		Date:                day(2025, time.January, 1),
		IsRecurring:         true,
		Frequency:           ledger.FrequencyCustom,
		FrequencyCustomDays: 7,
	}
	assert.InDelta(t, 30.0/7.0, EstimateCustomPerPeriod(tx, 30), 1e-9)
	// The coarse estimate disagrees with the exact count at boundaries.
	assert.Equal(t, 5, CountInRange(tx, day(2025, time.January, 1), day(2025, time.January, 30)))

	assert.Zero(t, EstimateCustomPerPeriod(monthlyOn(1, day(2025, time.January, 1)), 30), "monthly is not estimated")
	assert.Zero(t, EstimateCustomPerPeriod(tx, 0))
}
