package pricewindow_test

import (
	"testing"

	fpmath "ContractLedger/internal/math"
	"ContractLedger/internal/pricewindow"
)

const (
	contractID = uint32(6)
	propertyID = uint32(3)
)

func TestVWAP(t *testing.T) {
	w := pricewindow.New()
	block := int64(5000)

	// five fills of 2000 contracts across the trailing four blocks
	prices := []int64{1500, 1600, 1700, 1800, 1900}
	for i, p := range prices {
		b := block - int64(i%4) - 1
		if err := w.RecordSample(contractID, b, 2000*fpmath.COIN, p*fpmath.COIN); err != nil {
			t.Fatal(err)
		}
	}
	for i, v := range []int64{2000, 1000, 3000, 4000} {
		if err := w.AccumulateVolume(propertyID, block-int64(i)-1, v*fpmath.COIN); err != nil {
			t.Fatal(err)
		}
	}

	got, err := w.VWAP(contractID, propertyID, block, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 1700 * fpmath.COIN; got != want {
		t.Fatalf("vwap = %d, want %d", got, want)
	}
}

func TestVWAP_NoVolume(t *testing.T) {
	w := pricewindow.New()
	w.RecordSample(contractID, 100, 2000*fpmath.COIN, 1500*fpmath.COIN)

	got, err := w.VWAP(contractID, propertyID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("vwap with no accumulated volume = %d, want 0", got)
	}
}

func TestVWAP_WindowExcludesOldSamples(t *testing.T) {
	w := pricewindow.New()
	block := int64(500)

	// sample and volume just outside the 12-block window must not count
	w.RecordSample(contractID, block-pricewindow.DefaultWindow, 1000*fpmath.COIN, 9000*fpmath.COIN)
	w.AccumulateVolume(propertyID, block-pricewindow.DefaultWindow, 1000*fpmath.COIN)

	w.RecordSample(contractID, block-1, 1000*fpmath.COIN, 2000*fpmath.COIN)
	w.AccumulateVolume(propertyID, block-1, 1000*fpmath.COIN)

	got, err := w.VWAP(contractID, propertyID, block, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 2000 * fpmath.COIN; got != want {
		t.Fatalf("vwap = %d, want %d", got, want)
	}
}

func TestTWAP(t *testing.T) {
	w := pricewindow.New()
	block := int64(300)

	for i, p := range []int64{1000, 2000, 3000} {
		w.RecordSample(contractID, block-int64(i), 100*fpmath.COIN, p*fpmath.COIN)
	}

	got, err := w.TWAP(contractID, block, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 2000 * fpmath.COIN; got != want {
		t.Fatalf("twap = %d, want %d", got, want)
	}

	// two samples in the same block: the later one is the block's mark
	w.RecordSample(contractID, block, 100*fpmath.COIN, 4000*fpmath.COIN)
	got, err = w.TWAP(contractID, block, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 3000 * fpmath.COIN; got != want {
		t.Fatalf("twap after re-mark = %d, want %d", got, want)
	}
}

func TestTWAP_Empty(t *testing.T) {
	w := pricewindow.New()
	got, err := w.TWAP(contractID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("twap with no marks = %d, want 0", got)
	}
}

func TestConversionEligible(t *testing.T) {
	w := pricewindow.New()
	block := int64(2000)
	other := uint32(4)

	if w.ConversionEligible(propertyID, other, block) {
		t.Fatal("eligible with no volume")
	}

	w.AccumulateVolume(propertyID, block-5, pricewindow.ConversionVolumeThreshold)
	if w.ConversionEligible(propertyID, other, block) {
		t.Fatal("eligible with one-sided volume")
	}

	w.AccumulateVolume(other, block-900, pricewindow.ConversionVolumeThreshold-1)
	if w.ConversionEligible(propertyID, other, block) {
		t.Fatal("eligible below threshold")
	}

	w.AccumulateVolume(other, block-900, 1)
	if !w.ConversionEligible(propertyID, other, block) {
		t.Fatal("not eligible with threshold volume on both sides")
	}
}

func TestConvertAmount(t *testing.T) {
	w := pricewindow.New()
	block := int64(2000)
	other := uint32(4)

	// one fill backing the VWAP, threshold volume on one pair side
	w.RecordSample(contractID, block-1, 1000*fpmath.COIN, 2*fpmath.COIN)
	w.AccumulateVolume(propertyID, block-5, pricewindow.ConversionVolumeThreshold)

	if _, err := w.ConvertAmount(contractID, propertyID, other, 500*fpmath.COIN, block); err != pricewindow.ErrConversionIneligible {
		t.Fatalf("below gate: got %v, want ErrConversionIneligible", err)
	}

	// clearing the far side puts exactly 1000·COIN under the fill, so the
	// long-window VWAP is 2·COIN
	w.AccumulateVolume(other, block-900, pricewindow.ConversionVolumeThreshold)
	got, err := w.ConvertAmount(contractID, propertyID, other, 500*fpmath.COIN, block)
	if err != nil {
		t.Fatal(err)
	}
	// 500 at a 2·COIN VWAP converts to 1000
	if want := 1000 * fpmath.COIN; got != want {
		t.Fatalf("converted = %d, want %d", got, want)
	}

	if got, err := w.ConvertAmount(contractID, propertyID, other, 0, block); err != nil || got != 0 {
		t.Fatalf("zero amount: got (%d, %v), want (0, nil)", got, err)
	}
}

func TestAccumulateVolume_Overflow(t *testing.T) {
	w := pricewindow.New()
	w.AccumulateVolume(propertyID, 10, int64(^uint64(0)>>1))
	if err := w.AccumulateVolume(propertyID, 10, 1); err == nil {
		t.Fatal("accepted overflowing volume accumulation")
	}
}
