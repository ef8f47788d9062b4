package register_test

import (
	"testing"

	"ContractLedger/internal/directory"
	fpmath "ContractLedger/internal/math"
	"ContractLedger/internal/register"
)

const testContract uint32 = 6

func TestGetPosEntryPrice_WeightedCeiling(t *testing.T) {
	reg := register.NewRegister()

	if got := reg.GetPosEntryPrice(testContract); got != 0 {
		t.Fatalf("empty register entry price = %d, want 0", got)
	}

	// 1000@2000, 2000@3000, 3000@4000 (prices in COIN units):
	// 2e15 / 6000 = 333333333333.33..., rounded up.
	if !reg.InsertEntry(testContract, 1000, 2000*fpmath.COIN) {
		t.Fatal("InsertEntry rejected valid lot")
	}
	reg.InsertEntry(testContract, 2000, 3000*fpmath.COIN)
	reg.InsertEntry(testContract, 3000, 4000*fpmath.COIN)

	if got := reg.GetPosEntryPrice(testContract); got != 333333333334 {
		t.Fatalf("entry price = %d, want 333333333334", got)
	}
}

func TestGetPosEntryPrice_TwoLots(t *testing.T) {
	reg := register.NewRegister()
	reg.InsertEntry(testContract, 1000, 2000*fpmath.COIN)
	reg.InsertEntry(testContract, 2000, 3000*fpmath.COIN)

	// 8e14 / 3000 = 266666666666.67..., rounded up.
	if got := reg.GetPosEntryPrice(testContract); got != 266666666667 {
		t.Fatalf("entry price = %d, want 266666666667", got)
	}
}

func TestDecreasePosRecord_FIFO(t *testing.T) {
	reg := register.NewRegister()
	reg.InsertEntry(testContract, 1000, 2000*fpmath.COIN)
	reg.InsertEntry(testContract, 2000, 3000*fpmath.COIN)
	reg.InsertEntry(testContract, 3000, 4000*fpmath.COIN)

	// Consuming the oldest lot leaves 2000@3000 + 3000@4000.
	if !reg.DecreasePosRecord(testContract, 1000, 0) {
		t.Fatal("DecreasePosRecord rejected valid decrease")
	}
	if got := reg.GetPosEntryPrice(testContract); got != 360000000000 {
		t.Fatalf("after decrease 1000: entry price = %d, want 360000000000", got)
	}

	// Consuming the second lot leaves the single 3000@4000 lot.
	if !reg.DecreasePosRecord(testContract, 2000, 0) {
		t.Fatal("DecreasePosRecord rejected valid decrease")
	}
	if got := reg.GetPosEntryPrice(testContract); got != 400000000000 {
		t.Fatalf("after decrease 3000: entry price = %d, want 400000000000", got)
	}
}

func TestDecreasePosRecord_Flip(t *testing.T) {
	reg := register.NewRegister()
	reg.InsertEntry(testContract, 1000, 2000*fpmath.COIN)
	reg.InsertEntry(testContract, 2000, 3000*fpmath.COIN)
	reg.InsertEntry(testContract, 3000, 4000*fpmath.COIN)

	// Decreasing past the 6000 open units flips into a single lot of the
	// 5000 excess at the flip price.
	if !reg.DecreasePosRecord(testContract, 11000, 6000*fpmath.COIN) {
		t.Fatal("DecreasePosRecord rejected flip")
	}
	if got := reg.GetPosEntryPrice(testContract); got != 600000000000 {
		t.Fatalf("post-flip entry price = %d, want 600000000000", got)
	}
	lots := reg.Lots(testContract)
	if len(lots) != 1 || lots[0].Amount != 5000 || lots[0].Price != 6000*fpmath.COIN {
		t.Fatalf("post-flip lots = %+v, want single 5000@600000000000", lots)
	}
}

func TestDecreasePosRecord_NoLots(t *testing.T) {
	reg := register.NewRegister()
	if reg.DecreasePosRecord(testContract, 1000, 0) {
		t.Fatal("DecreasePosRecord succeeded with no lots")
	}
}

func TestGetEntryPrice_ReadOnly(t *testing.T) {
	reg := register.NewRegister()
	reg.InsertEntry(testContract, 1000, 2000*fpmath.COIN)
	reg.InsertEntry(testContract, 2000, 3000*fpmath.COIN)

	// 1500 units cost 1000@2000 + 500@3000 = 3.5e14 / 1500.
	got, ok := reg.GetEntryPrice(testContract, 1500)
	if !ok {
		t.Fatal("GetEntryPrice rejected covered amount")
	}
	if want := int64(233333333334); got != want {
		t.Fatalf("FIFO cost = %d, want %d", got, want)
	}

	if _, ok := reg.GetEntryPrice(testContract, 4000); ok {
		t.Fatal("GetEntryPrice accepted amount beyond open lots")
	}

	// lots untouched
	if got := reg.GetPosEntryPrice(testContract); got != 266666666667 {
		t.Fatalf("lots mutated by GetEntryPrice: entry price = %d", got)
	}
}

func TestUpdateRecord(t *testing.T) {
	reg := register.NewRegister()

	if reg.UpdateRecord(testContract, 1000, register.RecordType(99)) {
		t.Fatal("accepted out-of-range selector")
	}
	if reg.UpdateRecord(testContract, 0, register.Position) {
		t.Fatal("accepted zero amount")
	}

	if !reg.UpdateRecord(testContract, 1000, register.Position) {
		t.Fatal("rejected position update")
	}
	if !reg.UpdateRecord(testContract, -3000, register.Position) {
		t.Fatal("rejected position going negative")
	}
	if got := reg.GetRecord(testContract, register.Position); got != -2000 {
		t.Fatalf("position = %d, want -2000", got)
	}

	if !reg.UpdateRecord(testContract, -233000, register.UPNL) {
		t.Fatal("rejected negative unrealized PnL")
	}
	if got := reg.GetRecord(testContract, register.UPNL); got != -233000 {
		t.Fatalf("upnl = %d, want -233000", got)
	}

	if !reg.UpdateRecord(testContract, 500, register.Margin) {
		t.Fatal("rejected margin update")
	}
	if reg.UpdateRecord(testContract, -600, register.Margin) {
		t.Fatal("accepted margin going negative")
	}
	if got := reg.GetRecord(testContract, register.Margin); got != 500 {
		t.Fatalf("margin = %d after rejected update, want 500", got)
	}

	reg.UpdateRecord(testContract, 1, register.Reserve)
	if reg.UpdateRecord(testContract, int64(^uint64(0)>>1), register.Reserve) {
		t.Fatal("accepted overflowing update")
	}
	if got := reg.GetRecord(testContract, register.Reserve); got != 1 {
		t.Fatalf("reserve = %d after rejected overflow, want 1", got)
	}
}

func TestIterator(t *testing.T) {
	reg := register.NewRegister()
	if got := reg.Init(); got != 0 {
		t.Fatalf("Init on empty register = %d, want 0", got)
	}
	if got := reg.Next(); got != 0 {
		t.Fatalf("Next on empty register = %d, want 0", got)
	}

	for _, id := range []uint32{7, 2, 3, 1} {
		reg.UpdateRecord(id, 100, register.Position)
	}

	if got := reg.Init(); got != 1 {
		t.Fatalf("Init = %d, want 1", got)
	}
	want := []uint32{1, 2, 3, 7, 0, 0}
	for i, w := range want {
		if got := reg.Next(); got != w {
			t.Fatalf("Next #%d = %d, want %d", i, got, w)
		}
	}
}

func TestEqual(t *testing.T) {
	a := register.NewRegister()
	b := register.NewRegister()
	a.InsertEntry(1, 1000, 50*fpmath.COIN)
	a.UpdateRecord(1, 1000, register.Position)

	if a.Equal(b) {
		t.Fatal("registers with different contents compare equal")
	}

	b.InsertEntry(1, 1000, 50*fpmath.COIN)
	b.UpdateRecord(1, 1000, register.Position)
	if !a.Equal(b) {
		t.Fatal("identical registers compare unequal")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		oldSize, newSize int64
		want             register.Label
	}{
		{0, 0, register.None},
		{0, 500, register.OpenLongPosition},
		{0, -500, register.OpenShortPosition},
		{500, 800, register.LongPosIncreased},
		{-500, -800, register.ShortPosIncreased},
		{500, 200, register.LongPosNettedPartly},
		{-500, -200, register.ShortPosNettedPartly},
		{500, 0, register.LongPosNetted},
		{-500, 0, register.ShortPosNetted},
		{500, -300, register.OpenShortPosByLongPosNetted},
		{-500, 300, register.OpenLongPosByShortPosNetted},
	}
	for _, tc := range cases {
		got, err := register.Classify(tc.oldSize, tc.newSize)
		if err != nil {
			t.Fatalf("Classify(%d, %d): %v", tc.oldSize, tc.newSize, err)
		}
		if got != tc.want {
			t.Fatalf("Classify(%d, %d) = %s, want %s", tc.oldSize, tc.newSize, got, tc.want)
		}
	}

	if _, err := register.Classify(500, 500); err == nil {
		t.Fatal("Classify accepted unchanged nonzero position")
	}
}

func testContractDef(inverse, oracle bool) *directory.ContractDefinition {
	return &directory.ContractDefinition{
		ContractID:         testContract,
		Name:               "ALL/dUSD",
		NotionalSize:       1 * fpmath.COIN,
		MarginRequirement:  fpmath.COIN / 10,
		CollateralCurrency: 4,
		InverseQuoted:      inverse,
		IsOracle:           oracle,
	}
}

func TestComputeBankruptcyPrice_Linear(t *testing.T) {
	def := testContractDef(false, false)
	leverage := int64(10 * fpmath.COIN)
	entry := int64(1000 * fpmath.COIN)

	// margin fraction 0.1/10 = 1%
	long, err := register.ComputeBankruptcyPrice(entry, def, leverage, false)
	if err != nil {
		t.Fatalf("long: %v", err)
	}
	if long != 99_000_000_000 {
		t.Fatalf("long bankruptcy = %d, want 99000000000", long)
	}

	short, err := register.ComputeBankruptcyPrice(entry, def, leverage, true)
	if err != nil {
		t.Fatalf("short: %v", err)
	}
	if short != 101_000_000_000 {
		t.Fatalf("short bankruptcy = %d, want 101000000000", short)
	}
}

func TestComputeBankruptcyPrice_Inverse(t *testing.T) {
	def := testContractDef(true, false)
	leverage := int64(10 * fpmath.COIN)
	entry := int64(2 * fpmath.COIN)

	// inverse entry 5e7; long offsets up in inverse space, so the
	// bankruptcy price lands below entry.
	long, err := register.ComputeBankruptcyPrice(entry, def, leverage, false)
	if err != nil {
		t.Fatalf("long: %v", err)
	}
	if long != 198_019_801 {
		t.Fatalf("long inverse bankruptcy = %d, want 198019801", long)
	}

	short, err := register.ComputeBankruptcyPrice(entry, def, leverage, true)
	if err != nil {
		t.Fatalf("short: %v", err)
	}
	if short != 202_020_202 {
		t.Fatalf("short inverse bankruptcy = %d, want 202020202", short)
	}
}

func TestComputeLiquidationPrice(t *testing.T) {
	entry := int64(1000 * fpmath.COIN)
	bankruptcy := int64(99_000_000_000)

	liq, err := register.ComputeLiquidationPrice(entry, bankruptcy, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if liq != 99_500_000_000 {
		t.Fatalf("liquidation = %d, want 99500000000", liq)
	}

	// oracle contracts blend with TWAP
	blended, err := register.ComputeLiquidationPrice(entry, bankruptcy, 1000*fpmath.COIN, true)
	if err != nil {
		t.Fatal(err)
	}
	if blended != 99_750_000_000 {
		t.Fatalf("blended liquidation = %d, want 99750000000", blended)
	}
}

func TestRefreshRiskPrices(t *testing.T) {
	def := testContractDef(false, false)
	reg := register.NewRegister()
	reg.InsertEntry(testContract, 1000, 1000*fpmath.COIN)
	reg.UpdateRecord(testContract, 1000, register.Position)

	if err := reg.RefreshRiskPrices(testContract, def, 10*fpmath.COIN, 0); err != nil {
		t.Fatal(err)
	}
	if got := reg.GetRecord(testContract, register.EntryPrice); got != 1000*fpmath.COIN {
		t.Fatalf("cached entry price = %d", got)
	}
	if got := reg.GetRecord(testContract, register.BankruptcyPrice); got != 99_000_000_000 {
		t.Fatalf("cached bankruptcy price = %d", got)
	}
	if got := reg.GetRecord(testContract, register.LiquidationPrice); got != 99_500_000_000 {
		t.Fatalf("cached liquidation price = %d", got)
	}

	// flatten and refresh: caches clear
	reg.UpdateRecord(testContract, -1000, register.Position)
	reg.DecreasePosRecord(testContract, 1000, 0)
	if err := reg.RefreshRiskPrices(testContract, def, 10*fpmath.COIN, 0); err != nil {
		t.Fatal(err)
	}
	if got := reg.GetRecord(testContract, register.BankruptcyPrice); got != 0 {
		t.Fatalf("bankruptcy cache not cleared: %d", got)
	}
}
