package ledger

import (
	"fmt"
	"sort"

	fpmath "ContractLedger/internal/math"
)

// Category tags a balance by purpose within an address/property pair.
type Category uint8

const (
	// Spendable is the freely available balance.
	Spendable Category = iota
	// OpenContract tracks collateral committed to open contract positions.
	OpenContract
	// MarginReserve is collateral locked against resting orders.
	MarginReserve
	// FeeCache accumulates fee-equivalent adjustments owed to the system.
	FeeCache

	categoryCount
)

func (c Category) String() string {
	switch c {
	case Spendable:
		return "spendable"
	case OpenContract:
		return "open_contract"
	case MarginReserve:
		return "margin_reserve"
	case FeeCache:
		return "fee_cache"
	default:
		return "unknown"
	}
}

// BalanceKey identifies a single balance cell.
type BalanceKey struct {
	Address    string
	PropertyID uint32
	Category   Category
}

// AccountPath returns the string form used for logging and state digests.
func (k BalanceKey) AccountPath() string {
	return fmt.Sprintf("%s:%d:%s", k.Address, k.PropertyID, k.Category)
}

// Ledger is the per-address, per-property balance store. The matching engine
// is its single writer; it performs no I/O and no locking of its own.
type Ledger struct {
	balances map[BalanceKey]int64
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[BalanceKey]int64),
	}
}

// GetBalance returns the current amount for (address, property, category).
// Missing cells read as zero.
func (l *Ledger) GetBalance(address string, propertyID uint32, category Category) int64 {
	return l.balances[BalanceKey{Address: address, PropertyID: propertyID, Category: category}]
}

// Adjust applies a signed delta to a balance cell. The adjustment is rejected
// without mutation when the category is out of range, the delta would
// overflow, or the resulting balance would be negative.
func (l *Ledger) Adjust(address string, propertyID uint32, category Category, delta int64) error {
	if category >= categoryCount {
		return fmt.Errorf("adjust %s/%d: invalid category %d", address, propertyID, category)
	}
	if delta == 0 {
		return nil
	}

	key := BalanceKey{Address: address, PropertyID: propertyID, Category: category}
	now, err := fpmath.AddSafe(l.balances[key], delta)
	if err != nil {
		return fmt.Errorf("adjust %s: %w", key.AccountPath(), err)
	}
	if now < 0 {
		return fmt.Errorf("adjust %s: balance would go negative (%d)", key.AccountPath(), now)
	}

	l.balances[key] = now
	return nil
}

// Move shifts amount between two categories of the same address/property,
// atomically: either both legs apply or neither does.
func (l *Ledger) Move(address string, propertyID uint32, from, to Category, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("move %s/%d: negative amount %d", address, propertyID, amount)
	}
	if err := l.Adjust(address, propertyID, from, -amount); err != nil {
		return err
	}
	if err := l.Adjust(address, propertyID, to, amount); err != nil {
		// roll the first leg back; it cannot fail since we just subtracted
		_ = l.Adjust(address, propertyID, from, amount)
		return err
	}
	return nil
}

// Transfer shifts amount between categories of two distinct addresses.
func (l *Ledger) Transfer(fromAddr, toAddr string, propertyID uint32, from, to Category, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("transfer %d: negative amount %d", propertyID, amount)
	}
	if err := l.Adjust(fromAddr, propertyID, from, -amount); err != nil {
		return err
	}
	if err := l.Adjust(toAddr, propertyID, to, amount); err != nil {
		_ = l.Adjust(fromAddr, propertyID, from, amount)
		return err
	}
	return nil
}

// TotalByProperty sums every cell of a property across addresses and
// categories; used by consistency checks.
func (l *Ledger) TotalByProperty(propertyID uint32) int64 {
	var total int64
	for key, balance := range l.balances {
		if key.PropertyID == propertyID {
			total += balance
		}
	}
	return total
}

// Snapshot returns a copy of all non-zero balances.
func (l *Ledger) Snapshot() map[BalanceKey]int64 {
	snapshot := make(map[BalanceKey]int64, len(l.balances))
	for k, v := range l.balances {
		if v != 0 {
			snapshot[k] = v
		}
	}
	return snapshot
}

// SortedKeys returns all non-zero balance keys in deterministic order by
// account path; the state digest walks balances in this order.
func (l *Ledger) SortedKeys() []BalanceKey {
	keys := make([]BalanceKey, 0, len(l.balances))
	for k, v := range l.balances {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].AccountPath() < keys[j].AccountPath()
	})
	return keys
}
