// Package pricewindow maintains per-contract trade samples and per-property
// volume accumulators, and derives the volume- and time-weighted prices the
// settlement core uses for mark pricing and liquidation blending.
package pricewindow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	fpmath "ContractLedger/internal/math"
)

const (
	// DefaultWindow is the lookback, in blocks, for VWAP and TWAP queries
	// that do not name one.
	DefaultWindow int64 = 12

	// LongWindow is the lookback for the cross-property conversion gate.
	LongWindow int64 = 1000

	// ConversionVolumeThreshold is the minimum accumulated volume, over
	// LongWindow blocks, required on each side of a property pair before
	// prices may be converted through it.
	ConversionVolumeThreshold int64 = 1000 * fpmath.COIN
)

type sample struct {
	block  int64
	amount int64
	price  int64
}

// Window holds the rolling sample history. All methods are safe for
// concurrent use.
type Window struct {
	mu sync.RWMutex

	// trade samples per contract, nondecreasing block order
	samples map[uint32][]sample

	// last traded price per contract per block, for TWAP
	marks map[uint32]map[int64]int64

	// accumulated notional volume per property per block
	volumes map[uint32]map[int64]int64
}

func New() *Window {
	return &Window{
		samples: make(map[uint32][]sample),
		marks:   make(map[uint32]map[int64]int64),
		volumes: make(map[uint32]map[int64]int64),
	}
}

// RecordSample appends a trade observation for the contract and updates the
// block's mark price. Samples older than LongWindow blocks are pruned.
func (w *Window) RecordSample(contractID uint32, block, amount, price int64) error {
	if amount <= 0 || price <= 0 {
		return fmt.Errorf("price window: sample amount %d price %d out of range", amount, price)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	samples := append(w.samples[contractID], sample{block: block, amount: amount, price: price})
	cut := 0
	for cut < len(samples) && samples[cut].block <= block-LongWindow {
		cut++
	}
	w.samples[contractID] = samples[cut:]

	marks, ok := w.marks[contractID]
	if !ok {
		marks = make(map[int64]int64)
		w.marks[contractID] = marks
	}
	marks[block] = price
	for b := range marks {
		if b <= block-LongWindow {
			delete(marks, b)
		}
	}
	return nil
}

// AccumulateVolume adds traded notional volume for a property at a block.
func (w *Window) AccumulateVolume(propertyID uint32, block, volume int64) error {
	if volume < 0 {
		return fmt.Errorf("price window: volume %d out of range", volume)
	}
	if volume == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	blocks, ok := w.volumes[propertyID]
	if !ok {
		blocks = make(map[int64]int64)
		w.volumes[propertyID] = blocks
	}
	now, err := fpmath.AddSafe(blocks[block], volume)
	if err != nil {
		return fmt.Errorf("price window: property %d block %d: %w", propertyID, block, err)
	}
	blocks[block] = now
	for b := range blocks {
		if b <= block-LongWindow {
			delete(blocks, b)
		}
	}
	return nil
}

// VolumeWithin sums accumulated volume for a property over blocks in
// (fromBlock, toBlock].
func (w *Window) VolumeWithin(propertyID uint32, fromBlock, toBlock int64) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var total int64
	for b, v := range w.volumes[propertyID] {
		if b > fromBlock && b <= toBlock {
			total += v
		}
	}
	return total
}

// VWAP returns the volume-weighted price over the trailing window ending at
// block: the wide sum of amount·price over the contract's samples, divided by
// the property volume accumulated over the same blocks. The denominator is
// the independently accumulated volume, not the sample amounts. Returns 0
// when no volume accumulated.
func (w *Window) VWAP(contractID, propertyID uint32, block, window int64) (int64, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	from := block - window

	w.mu.RLock()
	defer w.mu.RUnlock()

	num := new(big.Int)
	for _, s := range w.samples[contractID] {
		if s.block <= from || s.block > block {
			continue
		}
		term := fpmath.Mul128(s.amount, s.price)
		num.Add(num, term)
		fpmath.Release(term)
	}

	var den int64
	for b, v := range w.volumes[propertyID] {
		if b > from && b <= block {
			den += v
		}
	}
	if den == 0 || num.Sign() == 0 {
		return 0, nil
	}

	vwap, err := fpmath.Div128(num, den, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("price window: vwap contract %d: %w", contractID, err)
	}
	return vwap, nil
}

// TWAP returns the equal-weighted mean of the per-block mark prices over the
// trailing window ending at block, 0 when no marks fall inside it.
func (w *Window) TWAP(contractID uint32, block, window int64) (int64, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	from := block - window

	w.mu.RLock()
	defer w.mu.RUnlock()

	sum := new(big.Int)
	var n int64
	for b, price := range w.marks[contractID] {
		if b <= from || b > block {
			continue
		}
		sum.Add(sum, big.NewInt(price))
		n++
	}
	if n == 0 {
		return 0, nil
	}

	twap, err := fpmath.Div128(sum, n, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("price window: twap contract %d: %w", contractID, err)
	}
	return twap, nil
}

// ConversionEligible reports whether a price may be converted between two
// properties: each side must have accumulated at least
// ConversionVolumeThreshold of volume over the trailing LongWindow blocks.
func (w *Window) ConversionEligible(propertyA, propertyB uint32, block int64) bool {
	from := block - LongWindow
	return w.VolumeWithin(propertyA, from, block) >= ConversionVolumeThreshold &&
		w.VolumeWithin(propertyB, from, block) >= ConversionVolumeThreshold
}

// ErrConversionIneligible is returned by ConvertAmount when either side of
// the property pair has not cleared the volume gate.
var ErrConversionIneligible = errors.New("price window: conversion volume below threshold")

// ConvertAmount re-denominates amount from one property into another through
// the contract's VWAP: amount×VWAP/COIN in the widened domain, rounded down.
// Returns ErrConversionIneligible unless both properties accumulated at
// least ConversionVolumeThreshold over the trailing LongWindow blocks, and 0
// when the window holds no price to convert through.
func (w *Window) ConvertAmount(contractID, fromProperty, toProperty uint32, amount, block int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	if !w.ConversionEligible(fromProperty, toProperty, block) {
		return 0, ErrConversionIneligible
	}
	vwap, err := w.VWAP(contractID, toProperty, block, LongWindow)
	if err != nil {
		return 0, err
	}
	if vwap == 0 {
		return 0, nil
	}
	converted, err := fpmath.MulDiv(amount, vwap, fpmath.COIN, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("price window: convert %d to %d: %w", fromProperty, toProperty, err)
	}
	return converted, nil
}
