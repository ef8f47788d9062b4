package ledger

import "fmt"

// InvariantValidator checks ledger invariants. The settlement core runs it
// in tests and on demand through the admin surface; a violation means an
// internal accounting bug, not bad input.
type InvariantValidator struct {
	ledger *Ledger
}

func NewInvariantValidator(l *Ledger) *InvariantValidator {
	return &InvariantValidator{ledger: l}
}

// ValidateNonNegative verifies no balance has gone below zero.
func (v *InvariantValidator) ValidateNonNegative() error {
	for key, balance := range v.ledger.Snapshot() {
		if balance < 0 {
			return fmt.Errorf("negative balance %d at %s", balance, key.AccountPath())
		}
	}
	return nil
}

// CaptureTotals records per-property totals for a later conservation check.
func (v *InvariantValidator) CaptureTotals() map[uint32]int64 {
	totals := make(map[uint32]int64)
	for key, balance := range v.ledger.Snapshot() {
		totals[key.PropertyID] += balance
	}
	return totals
}

// ValidateConservation verifies per-property totals match a baseline. Margin
// reserve and fee moves shuffle value between accounts and categories without
// changing totals; deposits and realized PnL settled at a price away from
// entry do shift them, so the baseline must bracket a window with neither.
func (v *InvariantValidator) ValidateConservation(baseline map[uint32]int64) error {
	current := v.CaptureTotals()

	for prop, want := range baseline {
		if got := current[prop]; got != want {
			return fmt.Errorf("property %d total drifted: want %d, got %d", prop, want, got)
		}
	}
	for prop, got := range current {
		if _, ok := baseline[prop]; !ok && got != 0 {
			return fmt.Errorf("property %d appeared with total %d", prop, got)
		}
	}
	return nil
}
