package core_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"ContractLedger/internal/core"
	"ContractLedger/internal/directory"
	"ContractLedger/internal/event"
	"ContractLedger/internal/ledger"
	fpmath "ContractLedger/internal/math"
	"ContractLedger/internal/register"
)

const (
	contractID = uint32(6)
	collateral = uint32(4)

	initialFunds = 1_000_000 * fpmath.COIN
)

type harness struct {
	core    *core.SettlementCore
	outputs chan core.CoreOutput
	nextIdx int64
	block   int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := directory.New()
	err := dir.Register(&directory.ContractDefinition{
		ContractID:         contractID,
		Name:               "ALL/dUSD",
		NotionalSize:       1 * fpmath.COIN,
		MarginRequirement:  10 * fpmath.COIN,
		CollateralCurrency: collateral,
	})
	if err != nil {
		t.Fatal(err)
	}

	outputs := make(chan core.CoreOutput, 256)
	c := core.NewSettlementCore(0, dir, outputs, nil, nil, nil)

	for _, addr := range []string{"alice", "bob", "carol"} {
		if err := c.Deposit(addr, collateral, initialFunds); err != nil {
			t.Fatal(err)
		}
	}
	return &harness{core: c, outputs: outputs, block: 100}
}

func (h *harness) order(t *testing.T, addr string, side event.OrderSide, amount, price int64) *event.TradeOrder {
	t.Helper()
	h.nextIdx++
	o := &event.TradeOrder{
		OrderID:    uuid.New(),
		Address:    addr,
		ContractID: contractID,
		Side:       side,
		Amount:     amount,
		Price:      price,
		Leverage:   10 * fpmath.COIN,
		Block:      h.block,
		Idx:        h.nextIdx,
		Timestamp:  time.Unix(1700000000, 0),
	}
	if err := h.core.ProcessInstruction(o); err != nil {
		t.Fatal(err)
	}
	return o
}

func (h *harness) drain() []core.CoreOutput {
	var out []core.CoreOutput
	for {
		select {
		case o := <-h.outputs:
			out = append(out, o)
		default:
			return out
		}
	}
}

func TestOpenPositions(t *testing.T) {
	h := newHarness(t)

	h.order(t, "bob", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)
	h.order(t, "alice", event.OrderSideBuy, 1000*fpmath.COIN, 100*fpmath.COIN)

	outs := h.drain()
	if len(outs) != 1 || outs[0].Execution == nil {
		t.Fatalf("outputs = %d, want 1 execution", len(outs))
	}
	exec := outs[0].Execution

	if exec.Amount != 1000*fpmath.COIN || exec.Price != 100*fpmath.COIN {
		t.Fatalf("execution %d@%d, want 100000000000@10000000000", exec.Amount, exec.Price)
	}
	if exec.BuyerTransition != string(register.OpenLongPosition) {
		t.Fatalf("buyer transition = %s", exec.BuyerTransition)
	}
	if exec.SellerTransition != string(register.OpenShortPosition) {
		t.Fatalf("seller transition = %s", exec.SellerTransition)
	}

	if got := h.core.GetRecord("alice", contractID, register.Position); got != 1000*fpmath.COIN {
		t.Fatalf("alice position = %d", got)
	}
	if got := h.core.GetRecord("bob", contractID, register.Position); got != -1000*fpmath.COIN {
		t.Fatalf("bob position = %d", got)
	}

	// reserve = COIN·amount·marginReq / (leverage·price) = 10 COIN, posted
	// in full since the orders filled completely
	wantMargin := int64(10 * fpmath.COIN)
	if got := h.core.GetBalance("alice", collateral, ledger.OpenContract); got != wantMargin {
		t.Fatalf("alice posted margin = %d, want %d", got, wantMargin)
	}
	if got := h.core.GetBalance("alice", collateral, ledger.MarginReserve); got != 0 {
		t.Fatalf("alice margin reserve = %d, want 0", got)
	}

	// notional 1e13: taker 2.5bp = 25 COIN, maker 1bp = 10 COIN
	if exec.BuyerFee != 25*fpmath.COIN {
		t.Fatalf("buyer (taker) fee = %d, want %d", exec.BuyerFee, 25*fpmath.COIN)
	}
	if exec.SellerFee != 10*fpmath.COIN {
		t.Fatalf("seller (maker) fee = %d, want %d", exec.SellerFee, 10*fpmath.COIN)
	}
	wantFees := int64(35 * fpmath.COIN)
	if got := h.core.GetBalance(core.FeeCollectorAddress, collateral, ledger.FeeCache); got != wantFees {
		t.Fatalf("fee cache = %d, want %d", got, wantFees)
	}
}

func TestMakerPriceExecution(t *testing.T) {
	h := newHarness(t)

	h.order(t, "bob", event.OrderSideSell, 500*fpmath.COIN, 100*fpmath.COIN)
	h.order(t, "bob", event.OrderSideSell, 500*fpmath.COIN, 101*fpmath.COIN)
	h.order(t, "alice", event.OrderSideBuy, 1000*fpmath.COIN, 102*fpmath.COIN)

	outs := h.drain()
	if len(outs) != 2 {
		t.Fatalf("outputs = %d, want 2 executions", len(outs))
	}
	if outs[0].Execution.Price != 100*fpmath.COIN {
		t.Fatalf("first fill price = %d, want resting 100", outs[0].Execution.Price)
	}
	if outs[1].Execution.Price != 101*fpmath.COIN {
		t.Fatalf("second fill price = %d, want resting 101", outs[1].Execution.Price)
	}
	if ask := h.core.BestAsk(contractID); ask != 0 {
		t.Fatalf("sells not fully consumed, best ask = %d", ask)
	}
}

func TestPartialFillRests(t *testing.T) {
	h := newHarness(t)

	h.order(t, "bob", event.OrderSideSell, 400*fpmath.COIN, 100*fpmath.COIN)
	h.order(t, "alice", event.OrderSideBuy, 1000*fpmath.COIN, 100*fpmath.COIN)

	outs := h.drain()
	if len(outs) != 1 || outs[0].Execution.Amount != 400*fpmath.COIN {
		t.Fatalf("expected single 400-unit execution")
	}
	if bid := h.core.BestBid(contractID); bid != 100*fpmath.COIN {
		t.Fatalf("remainder not resting, best bid = %d", bid)
	}
	if got := h.core.GetRecord("alice", contractID, register.Position); got != 400*fpmath.COIN {
		t.Fatalf("alice position = %d, want 40000000000", got)
	}
}

func TestNettingRealizesPnL(t *testing.T) {
	h := newHarness(t)

	// alice long 1000 @ 100 against bob
	h.order(t, "bob", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)
	h.order(t, "alice", event.OrderSideBuy, 1000*fpmath.COIN, 100*fpmath.COIN)
	h.drain()

	aliceBefore := h.core.GetBalance("alice", collateral, ledger.Spendable)

	// alice closes at 110 against carol
	h.order(t, "carol", event.OrderSideBuy, 1000*fpmath.COIN, 110*fpmath.COIN)
	h.order(t, "alice", event.OrderSideSell, 1000*fpmath.COIN, 110*fpmath.COIN)

	outs := h.drain()
	if len(outs) != 1 {
		t.Fatalf("outputs = %d, want 1 execution", len(outs))
	}
	exec := outs[0].Execution
	if exec.SellerTransition != string(register.LongPosNetted) {
		t.Fatalf("alice transition = %s, want LongPosNetted", exec.SellerTransition)
	}
	if exec.BuyerTransition != string(register.OpenLongPosition) {
		t.Fatalf("carol transition = %s", exec.BuyerTransition)
	}

	if got := h.core.GetRecord("alice", contractID, register.Position); got != 0 {
		t.Fatalf("alice position = %d, want flat", got)
	}
	if got := h.core.GetBalance("alice", collateral, ledger.OpenContract); got != 0 {
		t.Fatalf("alice posted margin = %d, want fully released", got)
	}

	// realized pnl = (110-100)·1000 = 10000 COIN, plus the 10 COIN of
	// released margin, minus the 27.5 COIN taker fee on 1.1e13 notional;
	// the close order's own reserve round-trips to zero
	wantDelta := 10_000*fpmath.COIN + 10*fpmath.COIN - 2750*fpmath.COIN/100
	if got := h.core.GetBalance("alice", collateral, ledger.Spendable) - aliceBefore; got != wantDelta {
		t.Fatalf("alice spendable delta = %d, want %d", got, wantDelta)
	}
}

func TestFlipCreatesOppositePosition(t *testing.T) {
	h := newHarness(t)

	h.order(t, "bob", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)
	h.order(t, "alice", event.OrderSideBuy, 1000*fpmath.COIN, 100*fpmath.COIN)
	h.drain()

	// alice sells 2500 at 100: nets 1000, opens 1500 short
	h.order(t, "carol", event.OrderSideBuy, 2500*fpmath.COIN, 100*fpmath.COIN)
	h.order(t, "alice", event.OrderSideSell, 2500*fpmath.COIN, 100*fpmath.COIN)

	outs := h.drain()
	if len(outs) != 1 {
		t.Fatalf("outputs = %d, want 1 execution", len(outs))
	}
	if got := outs[0].Execution.SellerTransition; got != string(register.OpenShortPosByLongPosNetted) {
		t.Fatalf("alice transition = %s, want OpenShortPosByLongPosNetted", got)
	}
	if got := h.core.GetRecord("alice", contractID, register.Position); got != -1500*fpmath.COIN {
		t.Fatalf("alice position = %d, want -150000000000", got)
	}
	// post-flip entry price is the flip trade price exactly
	if got := h.core.GetRecord("alice", contractID, register.EntryPrice); got != 100*fpmath.COIN {
		t.Fatalf("alice entry price = %d, want 10000000000", got)
	}
}

func TestSelfTradeSuppressed(t *testing.T) {
	h := newHarness(t)

	h.order(t, "alice", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)
	h.order(t, "alice", event.OrderSideBuy, 1000*fpmath.COIN, 100*fpmath.COIN)

	if outs := h.drain(); len(outs) != 0 {
		t.Fatalf("self-trade executed: %d outputs", len(outs))
	}
	if got := h.core.GetRecord("alice", contractID, register.Position); got != 0 {
		t.Fatalf("alice position = %d, want 0", got)
	}
	// both orders rest, crossed, waiting for a counterparty
	if ask := h.core.BestAsk(contractID); ask != 100*fpmath.COIN {
		t.Fatalf("best ask = %d", ask)
	}
	if bid := h.core.BestBid(contractID); bid != 100*fpmath.COIN {
		t.Fatalf("best bid = %d", bid)
	}
}

func TestDuplicateInstructionSkipped(t *testing.T) {
	h := newHarness(t)

	o := h.order(t, "bob", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)

	// replay of the same instruction is silently absorbed
	if err := h.core.ProcessInstruction(o); err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if got := h.core.GetBalance("bob", collateral, ledger.MarginReserve); got != 10*fpmath.COIN {
		t.Fatalf("reserve double-charged on replay: %d", got)
	}
}

func TestOutOfOrderInstructionRejected(t *testing.T) {
	h := newHarness(t)
	h.order(t, "bob", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)

	stale := &event.TradeOrder{
		OrderID:    uuid.New(),
		Address:    "alice",
		ContractID: contractID,
		Side:       event.OrderSideBuy,
		Amount:     1000 * fpmath.COIN,
		Price:      100 * fpmath.COIN,
		Leverage:   10 * fpmath.COIN,
		Block:      h.block - 1,
		Idx:        0,
		Timestamp:  time.Unix(1700000000, 0),
	}
	if err := h.core.ProcessInstruction(stale); err == nil {
		t.Fatal("accepted instruction from an earlier block")
	}
}

func TestOrderValidation(t *testing.T) {
	h := newHarness(t)

	bad := &event.TradeOrder{
		OrderID:    uuid.New(),
		Address:    "alice",
		ContractID: contractID,
		Side:       event.OrderSideBuy,
		Amount:     1000 * fpmath.COIN,
		Price:      100 * fpmath.COIN,
		Leverage:   11 * fpmath.COIN,
		Block:      h.block,
		Idx:        99,
		Timestamp:  time.Unix(1700000000, 0),
	}
	if err := h.core.ProcessInstruction(bad); err == nil {
		t.Fatal("accepted leverage above maximum")
	}

	bad.Leverage = 10 * fpmath.COIN
	bad.ContractID = 999
	bad.Idx = 100
	if err := h.core.ProcessInstruction(bad); err == nil {
		t.Fatal("accepted unknown contract")
	}
}

func TestCancelRefundsReserve(t *testing.T) {
	h := newHarness(t)

	o := h.order(t, "bob", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)
	if got := h.core.GetBalance("bob", collateral, ledger.MarginReserve); got != 10*fpmath.COIN {
		t.Fatalf("reserve = %d", got)
	}

	h.nextIdx++
	cancel := &event.CancelOrder{
		CancelID:  uuid.New(),
		OrderID:   o.OrderID,
		Address:   "bob",
		Block:     h.block,
		Idx:       h.nextIdx,
		Timestamp: time.Unix(1700000000, 0),
	}
	if err := h.core.ProcessInstruction(cancel); err != nil {
		t.Fatal(err)
	}

	if got := h.core.GetBalance("bob", collateral, ledger.MarginReserve); got != 0 {
		t.Fatalf("reserve after cancel = %d, want 0", got)
	}
	if got := h.core.GetBalance("bob", collateral, ledger.Spendable); got != initialFunds {
		t.Fatalf("spendable after cancel = %d, want %d", got, initialFunds)
	}

	outs := h.drain()
	if len(outs) != 1 || outs[0].Cancellation == nil {
		t.Fatalf("expected one cancellation output")
	}
	if outs[0].Cancellation.Released != 10*fpmath.COIN {
		t.Fatalf("released = %d", outs[0].Cancellation.Released)
	}

	// cancelling someone else's order is rejected
	o2 := h.order(t, "bob", event.OrderSideSell, 1000*fpmath.COIN, 100*fpmath.COIN)
	h.nextIdx++
	theft := &event.CancelOrder{
		CancelID:  uuid.New(),
		OrderID:   o2.OrderID,
		Address:   "alice",
		Block:     h.block,
		Idx:       h.nextIdx,
		Timestamp: time.Unix(1700000000, 0),
	}
	if err := h.core.ProcessInstruction(theft); err == nil {
		t.Fatal("cancelled an order owned by another address")
	}
}

func TestDeterministicReplay(t *testing.T) {
	run := func() [32]byte {
		h := newHarness(t)
		// fixed ids so both runs see byte-identical instructions
		ids := []uuid.UUID{
			uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			uuid.MustParse("00000000-0000-0000-0000-000000000002"),
			uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		}
		params := []struct {
			addr  string
			side  event.OrderSide
			price int64
		}{
			{"bob", event.OrderSideSell, 100 * fpmath.COIN},
			{"alice", event.OrderSideBuy, 100 * fpmath.COIN},
			{"carol", event.OrderSideBuy, 99 * fpmath.COIN},
		}
		for i, p := range params {
			h.nextIdx++
			ins := &event.TradeOrder{
				OrderID:    ids[i],
				Address:    p.addr,
				ContractID: contractID,
				Side:       p.side,
				Amount:     1000 * fpmath.COIN,
				Price:      p.price,
				Leverage:   10 * fpmath.COIN,
				Block:      h.block,
				Idx:        h.nextIdx,
				Timestamp:  time.Unix(1700000000, 0),
			}
			if err := h.core.ProcessInstruction(ins); err != nil {
				t.Fatal(err)
			}
		}
		h.drain()
		return h.core.GetStateHash()
	}

	first := run()
	second := run()
	if first != second {
		t.Fatal("identical instruction streams produced different state hashes")
	}
}

func TestDesiredPropertyVolumeConversion(t *testing.T) {
	h := newHarness(t)
	desired := uint32(5)
	ts := time.Unix(1700000000, 0)

	// clear the conversion gate on both pair sides, far enough back to sit
	// outside the short VWAP window but inside the long one
	for _, prop := range []uint32{collateral, desired} {
		h.nextIdx++
		err := h.core.ProcessInstruction(&event.VolumeSample{
			SampleID:   uuid.New(),
			PropertyID: prop,
			Volume:     1000 * fpmath.COIN,
			Block:      h.block,
			Idx:        h.nextIdx,
			Timestamp:  ts,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	h.block = 1000
	h.order(t, "bob", event.OrderSideSell, 500*fpmath.COIN, 2*fpmath.COIN)
	h.nextIdx++
	taker := &event.TradeOrder{
		OrderID:         uuid.New(),
		Address:         "alice",
		ContractID:      contractID,
		Side:            event.OrderSideBuy,
		Amount:          500 * fpmath.COIN,
		Price:           2 * fpmath.COIN,
		Leverage:        10 * fpmath.COIN,
		DesiredProperty: desired,
		Block:           h.block,
		Idx:             h.nextIdx,
		Timestamp:       ts,
	}
	if err := h.core.ProcessInstruction(taker); err != nil {
		t.Fatal(err)
	}
	if outs := h.drain(); len(outs) != 1 || outs[0].Execution == nil {
		t.Fatalf("outputs = %d, want 1 execution", len(outs))
	}

	// The fill's 500·COIN of notional converts at the long-window VWAP of
	// 1·COIN and lands on the desired property. Inside the short window
	// that credit is the only denominator, so the pair VWAP resolves to
	// the fill price.
	got, err := h.core.VWAP(contractID, desired, h.block, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 2 * fpmath.COIN; got != want {
		t.Fatalf("vwap against desired property = %d, want %d", got, want)
	}
}

func TestDesiredPropertyBelowGateNotCredited(t *testing.T) {
	h := newHarness(t)
	desired := uint32(9)

	// no accumulated volume on either pair side: the fill must not leak
	// converted volume onto the desired property
	h.block = 1000
	h.order(t, "bob", event.OrderSideSell, 500*fpmath.COIN, 2*fpmath.COIN)
	h.nextIdx++
	taker := &event.TradeOrder{
		OrderID:         uuid.New(),
		Address:         "alice",
		ContractID:      contractID,
		Side:            event.OrderSideBuy,
		Amount:          500 * fpmath.COIN,
		Price:           2 * fpmath.COIN,
		Leverage:        10 * fpmath.COIN,
		DesiredProperty: desired,
		Block:           h.block,
		Idx:             h.nextIdx,
		Timestamp:       time.Unix(1700000000, 0),
	}
	if err := h.core.ProcessInstruction(taker); err != nil {
		t.Fatal(err)
	}
	h.drain()

	got, err := h.core.VWAP(contractID, desired, h.block, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("vwap against desired property = %d, want 0 with gate closed", got)
	}
}
