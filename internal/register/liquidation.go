package register

import (
	"fmt"
	"math/big"

	"ContractLedger/internal/directory"
	fpmath "ContractLedger/internal/math"
)

// marginFraction returns the loss fraction of entry price, fixed-point COIN
// scale, that exhausts posted margin: marginRequirement / (leverage · notionalSize).
func marginFraction(def *directory.ContractDefinition, leverage int64) (int64, error) {
	if leverage <= 0 {
		return 0, fmt.Errorf("margin fraction: leverage %d out of range", leverage)
	}

	num := fpmath.Mul128(def.MarginRequirement, fpmath.COIN)
	defer fpmath.Release(num)
	num.Mul(num, big.NewInt(fpmath.COIN))

	den := fpmath.Mul128(leverage, def.NotionalSize)
	defer fpmath.Release(den)
	if den.Sign() == 0 {
		return 0, fmt.Errorf("margin fraction: zero denominator for contract %d", def.ContractID)
	}

	num.Quo(num, den)
	return fpmath.Narrow(num)
}

// invertPrice maps a price into inverse-quote space, COIN² / price, and back;
// the mapping is its own inverse.
func invertPrice(price int64) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("invert price: price %d out of range", price)
	}
	sq := fpmath.Mul128(fpmath.COIN, fpmath.COIN)
	defer fpmath.Release(sq)
	inv, err := fpmath.Div128(sq, price, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("invert price: %w", err)
	}
	if inv == 0 {
		return 0, fmt.Errorf("invert price: %d underflows", price)
	}
	return inv, nil
}

// ComputeBankruptcyPrice derives the price at which a position's margin is
// exhausted. For linear contracts the margin fraction is applied to the entry
// price directly: longs go bankrupt below entry, shorts above, floored at
// zero. For inverse-quoted contracts PnL is linear in 1/price, so the offset
// is applied in inverse-price space and mapped back.
func ComputeBankruptcyPrice(entryPrice int64, def *directory.ContractDefinition, leverage int64, short bool) (int64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("bankruptcy price: entry price %d out of range", entryPrice)
	}
	f, err := marginFraction(def, leverage)
	if err != nil {
		return 0, fmt.Errorf("bankruptcy price: %w", err)
	}

	if def.InverseQuoted {
		inv, err := invertPrice(entryPrice)
		if err != nil {
			return 0, fmt.Errorf("bankruptcy price: %w", err)
		}
		// long gains as price rises, i.e. as inverse price falls
		var invBankruptcy int64
		if short {
			if f >= fpmath.COIN {
				return 0, nil
			}
			invBankruptcy, err = fpmath.MulDiv(inv, fpmath.COIN-f, fpmath.COIN, fpmath.RoundDown)
		} else {
			invBankruptcy, err = fpmath.MulDiv(inv, fpmath.COIN+f, fpmath.COIN, fpmath.RoundUp)
		}
		if err != nil {
			return 0, fmt.Errorf("bankruptcy price: %w", err)
		}
		if invBankruptcy == 0 {
			return 0, nil
		}
		price, err := invertPrice(invBankruptcy)
		if err != nil {
			return 0, fmt.Errorf("bankruptcy price: %w", err)
		}
		return price, nil
	}

	if short {
		price, err := fpmath.MulDiv(entryPrice, fpmath.COIN+f, fpmath.COIN, fpmath.RoundUp)
		if err != nil {
			return 0, fmt.Errorf("bankruptcy price: %w", err)
		}
		return price, nil
	}
	if f >= fpmath.COIN {
		return 0, nil
	}
	price, err := fpmath.MulDiv(entryPrice, fpmath.COIN-f, fpmath.COIN, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("bankruptcy price: %w", err)
	}
	return price, nil
}

// ComputeLiquidationPrice places the liquidation trigger at the midpoint of
// entry and bankruptcy price. Oracle-settled contracts blend the midpoint
// 50/50 with the mark TWAP when one is available, damping trigger jitter from
// a single stale entry.
func ComputeLiquidationPrice(entryPrice, bankruptcyPrice, twap int64, isOracle bool) (int64, error) {
	mid, err := fpmath.AddSafe(entryPrice, bankruptcyPrice)
	if err != nil {
		return 0, fmt.Errorf("liquidation price: %w", err)
	}
	mid /= 2

	if isOracle && twap > 0 {
		blended, err := fpmath.AddSafe(mid, twap)
		if err != nil {
			return 0, fmt.Errorf("liquidation price: %w", err)
		}
		mid = blended / 2
	}
	return mid, nil
}

// RefreshRiskPrices recomputes and caches the bankruptcy and liquidation
// prices from the current lots and position direction. A flat position clears
// both caches.
func (r *Register) RefreshRiskPrices(contractID uint32, def *directory.ContractDefinition, leverage, twap int64) error {
	position := r.GetRecord(contractID, Position)
	if position == 0 {
		r.SetRecord(contractID, 0, BankruptcyPrice)
		r.SetRecord(contractID, 0, LiquidationPrice)
		return nil
	}

	entry := r.GetPosEntryPrice(contractID)
	if entry == 0 {
		return fmt.Errorf("refresh risk prices: contract %d has position %d but no lots", contractID, position)
	}

	bankruptcy, err := ComputeBankruptcyPrice(entry, def, leverage, position < 0)
	if err != nil {
		return fmt.Errorf("refresh risk prices: %w", err)
	}
	liquidation, err := ComputeLiquidationPrice(entry, bankruptcy, twap, def.IsOracle)
	if err != nil {
		return fmt.Errorf("refresh risk prices: %w", err)
	}

	r.SetRecord(contractID, entry, EntryPrice)
	r.SetRecord(contractID, bankruptcy, BankruptcyPrice)
	r.SetRecord(contractID, liquidation, LiquidationPrice)
	return nil
}
