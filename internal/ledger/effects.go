package ledger

import "github.com/google/uuid"

// BalanceEffect is a signed delta in minor units applied to one account.
type BalanceEffect struct {
	AccountID  uuid.UUID
	DeltaMinor int64
}

// Effects returns the balance effects of applying t:
//
//	income:   source += amount
//	expense:  source -= amount
//	transfer: source -= amount; destination += amount
//
// The same rule, inverted, reverses the transaction on delete and on the undo
// half of an update.
func Effects(t Transaction) []BalanceEffect {
	switch t.Type {
	case TypeIncome:
		return []BalanceEffect{{AccountID: t.SourceAccountID, DeltaMinor: t.AmountMinor}}
	case TypeExpense:
		return []BalanceEffect{{AccountID: t.SourceAccountID, DeltaMinor: -t.AmountMinor}}
	case TypeTransfer:
		return []BalanceEffect{
			{AccountID: t.SourceAccountID, DeltaMinor: -t.AmountMinor},
			{AccountID: t.DestinationAccountID, DeltaMinor: t.AmountMinor},
		}
	}
	return nil
}

// InverseEffects returns the effects that undo effs exactly.
func InverseEffects(effs []BalanceEffect) []BalanceEffect {
	out := make([]BalanceEffect, len(effs))
	for i, e := range effs {
		out[i] = BalanceEffect{AccountID: e.AccountID, DeltaMinor: -e.DeltaMinor}
	}
	return out
}

// MergeEffects sums deltas per account, dropping zero entries. Used to apply
// the undo and reapply halves of an update as a single atomic write set.
func MergeEffects(sets ...[]BalanceEffect) []BalanceEffect {
	totals := make(map[uuid.UUID]int64)
	order := make([]uuid.UUID, 0)
	for _, set := range sets {
		for _, e := range set {
			if _, ok := totals[e.AccountID]; !ok {
				order = append(order, e.AccountID)
			}
			totals[e.AccountID] += e.DeltaMinor
		}
	}
	out := make([]BalanceEffect, 0, len(order))
	for _, id := range order {
		if totals[id] == 0 {
			continue
		}
		out = append(out, BalanceEffect{AccountID: id, DeltaMinor: totals[id]})
	}
	return out
}
