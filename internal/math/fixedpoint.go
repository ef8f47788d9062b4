package math

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// COIN is the fixed-point unit: all monetary quantities carry 8 fractional
// decimal digits (1 COIN = 10^8 smallest units).
const COIN int64 = 100_000_000

// ErrOverflow is returned when a widened result does not fit back into int64.
// Overflow is consensus-fatal for the triggering instruction: callers must not
// fall back to a wrapped value.
var ErrOverflow = errors.New("arithmetic overflow narrowing wide result")

// RoundingMode selects how Div128 resolves a non-zero remainder.
type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // banker's rounding
	RoundDown                         // truncate toward zero
	RoundUp                           // any positive remainder rounds up
)

var wideInts = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWide() *big.Int {
	return wideInts.Get().(*big.Int)
}

func putWide(v *big.Int) {
	v.SetInt64(0)
	wideInts.Put(v)
}

// Mul128 computes a * b in the widened domain. The caller owns the result and
// should hand it back with Release once narrowed.
func Mul128(a, b int64) *big.Int {
	result := getWide()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// Release returns a wide intermediate to the pool.
func Release(v *big.Int) {
	putWide(v)
}

// Narrow converts a wide value back to int64, failing loudly on overflow.
func Narrow(v *big.Int) (int64, error) {
	if !v.IsInt64() {
		return 0, ErrOverflow
	}
	return v.Int64(), nil
}

// Div128 divides a wide numerator by an int64 denominator with the given
// rounding mode and narrows the result.
func Div128(numerator *big.Int, denominator int64, mode RoundingMode) (int64, error) {
	if denominator == 0 {
		return 0, errors.New("division by zero")
	}

	denom := big.NewInt(denominator)
	quotient := getWide()
	remainder := getWide()
	quotient.QuoRem(numerator, denom, remainder)

	result, err := Narrow(quotient)
	if err != nil {
		putWide(quotient)
		putWide(remainder)
		return 0, err
	}

	switch mode {
	case RoundUp:
		if remainder.Sign() > 0 {
			if result == math.MaxInt64 {
				putWide(quotient)
				putWide(remainder)
				return 0, ErrOverflow
			}
			result++
		}
	case RoundHalfEven:
		if remainder.Sign() > 0 {
			half := big.NewInt(denominator / 2)
			cmp := remainder.Cmp(half)
			if cmp > 0 || (cmp == 0 && denominator%2 == 0 && result%2 != 0) {
				if result == math.MaxInt64 {
					putWide(quotient)
					putWide(remainder)
					return 0, ErrOverflow
				}
				result++
			}
		}
	}

	putWide(quotient)
	putWide(remainder)
	return result, nil
}

// MulDiv computes a*b/denominator with a wide intermediate product.
func MulDiv(a, b, denominator int64, mode RoundingMode) (int64, error) {
	product := Mul128(a, b)
	result, err := Div128(product, denominator, mode)
	putWide(product)
	return result, err
}

// AddSafe adds two int64 values, detecting overflow before it wraps.
func AddSafe(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// AddsOverflow reports whether a+b would overflow int64.
func AddsOverflow(a, b int64) bool {
	_, err := AddSafe(a, b)
	return err != nil
}

// ReserveAmount computes the margin reserve for a contract order:
// COIN * amount * marginRequirement / (leverage * price), all operands in
// COIN scale, intermediate kept wide.
func ReserveAmount(amount, marginRequirement, leverage, price int64) (int64, error) {
	if leverage == 0 || price == 0 {
		return 0, errors.New("reserve amount: zero leverage or price")
	}

	numerator := Mul128(COIN, amount)
	numerator.Mul(numerator, big.NewInt(marginRequirement))

	denominator := Mul128(leverage, price)
	defer putWide(denominator)
	defer putWide(numerator)

	quotient := getWide()
	defer putWide(quotient)
	quotient.Quo(numerator, denominator)

	return Narrow(quotient)
}

// NotionalVolume converts a fill of nTraded contracts into collateral volume:
// notionalSize * nTraded / COIN, widened.
func NotionalVolume(notionalSize, nTraded int64) (int64, error) {
	return MulDiv(notionalSize, nTraded, COIN, RoundDown)
}
