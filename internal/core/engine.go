package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ContractLedger/internal/book"
	"ContractLedger/internal/directory"
	"ContractLedger/internal/event"
	"ContractLedger/internal/ledger"
	fpmath "ContractLedger/internal/math"
	"ContractLedger/internal/observability"
	"ContractLedger/internal/pricewindow"
	"ContractLedger/internal/register"
)

const (
	// FeeCollectorAddress accumulates trading fees per collateral property.
	FeeCollectorAddress = "fee_cache"

	// Trading fees in millionths of notional: taker 2.5 basis points,
	// maker 1 basis point.
	takerFeePPM int64 = 250
	makerFeePPM int64 = 100

	// Leverage bounds, fixed-point COIN scale.
	MinLeverage int64 = 1 * fpmath.COIN
	MaxLeverage int64 = 10 * fpmath.COIN
)

// CoreOutput is one settlement result emitted to the persistence and
// projection workers.
type CoreOutput struct {
	Execution    *event.Execution
	Cancellation *event.Cancellation
	StateDelta   []byte
}

// SettlementCore applies the ordered instruction stream to the book, the
// balance ledger and the position registers. All mutation happens under a
// single writer; queries share a read lock.
type SettlementCore struct {
	mu sync.RWMutex

	sequence  int64
	hasher    *StateHasher
	ledger    *ledger.Ledger
	registers map[string]*register.Register
	book      *book.Book
	window    *pricewindow.Window
	directory *directory.Directory

	idempotency *IdempotencyChecker
	ordering    *OrderingValidator
	metrics     *observability.Metrics
	logger      zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

func NewSettlementCore(
	startSequence int64,
	dir *directory.Directory,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *SettlementCore {
	return &SettlementCore{
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		ledger:         ledger.New(),
		registers:      make(map[string]*register.Register),
		book:           book.New(),
		window:         pricewindow.New(),
		directory:      dir,
		idempotency:    NewIdempotencyChecker(1_000_000, dbChecker, metrics),
		ordering:       NewOrderingValidator(),
		metrics:        metrics,
		logger:         observability.NewLogger("core"),
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// Deposit credits spendable collateral. Funding is upstream of the
// instruction stream; this is the only entry point that creates balance.
func (c *SettlementCore) Deposit(address string, propertyID uint32, amount int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if amount <= 0 {
		return fmt.Errorf("deposit: amount %d out of range", amount)
	}
	return c.ledger.Adjust(address, propertyID, ledger.Spendable, amount)
}

// ProcessInstruction is the main settlement pipeline.
func (c *SettlementCore) ProcessInstruction(ins event.Instruction) error {
	start := time.Now()
	insType := ins.InstructionType().String()
	idempotencyKey := ins.IdempotencyKey()

	c.mu.Lock()
	defer c.mu.Unlock()

	isDuplicate := c.idempotency.IsDuplicate(insType, idempotencyKey)

	block, idx := ins.Ordering()
	if err := c.ordering.Validate(block, idx, isDuplicate); err != nil {
		c.reject(insType, "ordering")
		return fmt.Errorf("ordering validation failed: %w", err)
	}

	if isDuplicate {
		c.reject(insType, "duplicate")
		return nil
	}

	var err error
	switch i := ins.(type) {
	case *event.TradeOrder:
		err = c.handleTradeOrder(i)
	case *event.CancelOrder:
		err = c.handleCancelOrder(i)
	case *event.CancelAll:
		err = c.handleCancelAll(i)
	case *event.CancelAtPrice:
		err = c.handleCancelAtPrice(i)
	case *event.VolumeSample:
		err = c.handleVolumeSample(i)
	default:
		err = fmt.Errorf("unknown instruction type: %T", ins)
	}
	if err != nil {
		c.reject(insType, "dispatch")
		return fmt.Errorf("dispatch failed: %w", err)
	}

	c.idempotency.MarkProcessed(insType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.InstructionsApplied.WithLabelValues(insType).Inc()
		c.metrics.InstructionDuration.WithLabelValues(insType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}
	return nil
}

func (c *SettlementCore) reject(insType, reason string) {
	if c.metrics != nil {
		c.metrics.InstructionsRejected.WithLabelValues(insType, reason).Inc()
	}
}

func (c *SettlementCore) handleTradeOrder(o *event.TradeOrder) error {
	def, ok := c.directory.Resolve(o.ContractID)
	if !ok {
		return fmt.Errorf("unknown contract: %d", o.ContractID)
	}
	if o.Amount <= 0 || o.Price <= 0 {
		return fmt.Errorf("order %s: amount %d price %d out of range", o.OrderID, o.Amount, o.Price)
	}
	if o.Leverage < MinLeverage || o.Leverage > MaxLeverage {
		return fmt.Errorf("order %s: leverage %d out of range", o.OrderID, o.Leverage)
	}
	if def.ExpirationBlock > 0 && o.Block >= def.ExpirationBlock {
		return fmt.Errorf("order %s: contract %d expired at block %d", o.OrderID, o.ContractID, def.ExpirationBlock)
	}

	reserve, err := fpmath.ReserveAmount(o.Amount, def.MarginRequirement, o.Leverage, o.Price)
	if err != nil {
		return fmt.Errorf("order %s: %w", o.OrderID, err)
	}
	if err := c.ledger.Move(o.Address, def.CollateralCurrency, ledger.Spendable, ledger.MarginReserve, reserve); err != nil {
		return fmt.Errorf("order %s: reserve: %w", o.OrderID, err)
	}

	side := book.Sell
	if o.Side == event.OrderSideBuy {
		side = book.Buy
	}
	taker := &book.Order{
		OrderID:    o.OrderID,
		Address:    o.Address,
		ContractID: o.ContractID,
		Side:       side,
		Price:      o.Price,
		Amount:     o.Amount,
		Remaining:  o.Amount,
		Leverage:   o.Leverage,
		Reserved:   reserve,
		Block:      o.Block,
		Idx:        o.Idx,
	}

	if err := c.matchOrder(taker, def, o); err != nil {
		return err
	}

	if taker.Remaining > 0 {
		if err := c.book.Insert(taker); err != nil {
			return fmt.Errorf("order %s: rest: %w", o.OrderID, err)
		}
	} else if taker.Reserved > 0 {
		// rounding residue from pro-rata reserve consumption
		if err := c.ledger.Move(o.Address, def.CollateralCurrency, ledger.MarginReserve, ledger.Spendable, taker.Reserved); err != nil {
			return fmt.Errorf("order %s: residue refund: %w", o.OrderID, err)
		}
		taker.Reserved = 0
	}

	c.updateDepthGauges(o.ContractID)
	return nil
}

// matchOrder walks the opposite side in priority order. Fills execute at the
// resting order's price; resting orders from the taker's own address are
// skipped, never matched.
func (c *SettlementCore) matchOrder(taker *book.Order, def *directory.ContractDefinition, ins *event.TradeOrder) error {
	counterSide := book.Sell
	if taker.Side == book.Sell {
		counterSide = book.Buy
	}

	for taker.Remaining > 0 {
		maker := c.bestCounterOrder(taker, counterSide)
		if maker == nil || !crosses(taker, maker) {
			break
		}

		fill := taker.Remaining
		if maker.Remaining < fill {
			fill = maker.Remaining
		}

		if err := c.settleExecution(def, taker, maker, fill, maker.Price, ins); err != nil {
			return err
		}
	}
	return nil
}

func (c *SettlementCore) bestCounterOrder(taker *book.Order, side book.Side) *book.Order {
	for _, o := range c.book.Orders(taker.ContractID, side) {
		if o.Address == taker.Address {
			if c.metrics != nil {
				c.metrics.SelfTradesSkipped.WithLabelValues(fmt.Sprint(taker.ContractID)).Inc()
			}
			continue
		}
		return o
	}
	return nil
}

func crosses(taker, maker *book.Order) bool {
	if taker.Side == book.Buy {
		return taker.Price >= maker.Price
	}
	return taker.Price <= maker.Price
}

// settleExecution books one fill: consumes order reserves, mutates both
// position registers, settles realized PnL and fees, records market data and
// emits the execution. Any arithmetic failure aborts the instruction loudly.
func (c *SettlementCore) settleExecution(
	def *directory.ContractDefinition,
	taker, maker *book.Order,
	fill, price int64,
	ins *event.TradeOrder,
) error {
	takerPortion, err := consumeReserve(taker, fill)
	if err != nil {
		return err
	}
	makerPortion, err := consumeReserve(maker, fill)
	if err != nil {
		return err
	}
	if maker.Remaining == 0 {
		c.book.Remove(maker)
	}

	buyer, seller := taker, maker
	buyerPortion, sellerPortion := takerPortion, makerPortion
	if taker.Side == book.Sell {
		buyer, seller = maker, taker
		buyerPortion, sellerPortion = makerPortion, takerPortion
	}

	buyerLabel, err := c.applyFill(buyer.Address, def, fill, price, buyerPortion, buyer.Leverage, ins.Block)
	if err != nil {
		return fmt.Errorf("buyer %s: %w", buyer.Address, err)
	}
	sellerLabel, err := c.applyFill(seller.Address, def, -fill, price, sellerPortion, seller.Leverage, ins.Block)
	if err != nil {
		return fmt.Errorf("seller %s: %w", seller.Address, err)
	}

	buyerFee, err := c.collectFee(taker == buyer, buyer.Address, def, fill, price)
	if err != nil {
		return err
	}
	sellerFee, err := c.collectFee(taker == seller, seller.Address, def, fill, price)
	if err != nil {
		return err
	}

	if err := c.window.RecordSample(def.ContractID, ins.Block, fill, price); err != nil {
		return err
	}
	volume, err := fpmath.NotionalVolume(def.NotionalSize, fill)
	if err != nil {
		return err
	}
	if err := c.window.AccumulateVolume(def.CollateralCurrency, ins.Block, volume); err != nil {
		return err
	}
	if ins.DesiredProperty != 0 && ins.DesiredProperty != def.CollateralCurrency {
		converted, err := c.window.ConvertAmount(def.ContractID, def.CollateralCurrency, ins.DesiredProperty, volume, ins.Block)
		switch {
		case errors.Is(err, pricewindow.ErrConversionIneligible):
			// volume gate not cleared, no cross-property credit
		case err != nil:
			return err
		case converted > 0:
			if err := c.window.AccumulateVolume(ins.DesiredProperty, ins.Block, converted); err != nil {
				return err
			}
		}
	}

	prevHash := c.hasher.GetPrevHash()
	stateDigest := computeStateDigest(c.ledger, c.registers)
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	exec := &event.Execution{
		ExecutionID:      executionID(buyer.OrderID, seller.OrderID, c.sequence),
		Sequence:         c.sequence,
		ContractID:       def.ContractID,
		BuyOrderID:       buyer.OrderID,
		SellOrderID:      seller.OrderID,
		BuyAddress:       buyer.Address,
		SellAddress:      seller.Address,
		Amount:           fill,
		Price:            price,
		BuyerTransition:  string(buyerLabel),
		SellerTransition: string(sellerLabel),
		BuyerFee:         buyerFee,
		SellerFee:        sellerFee,
		Block:            ins.Block,
		Idx:              ins.Idx,
		Timestamp:        ins.Timestamp,
		StateHash:        stateHash,
		PrevHash:         prevHash,
	}

	c.emit(CoreOutput{Execution: exec, StateDelta: stateDigest})
	c.sequence++

	if c.metrics != nil {
		cid := fmt.Sprint(def.ContractID)
		c.metrics.ExecutionsTotal.WithLabelValues(cid).Inc()
		c.metrics.ExecutionVolume.WithLabelValues(cid).Add(float64(fill))
	}

	c.logger.Debug().
		Uint32("contract_id", def.ContractID).
		Int64("amount", fill).
		Int64("price", price).
		Str("buyer_transition", string(buyerLabel)).
		Str("seller_transition", string(sellerLabel)).
		Msg("execution settled")

	return nil
}

// consumeReserve peels the pro-rata share of an order's reserved margin off
// for a fill and shrinks the order.
func consumeReserve(o *book.Order, fill int64) (int64, error) {
	portion, err := fpmath.MulDiv(o.Reserved, fill, o.Remaining, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("order %s: reserve split: %w", o.OrderID, err)
	}
	o.Reserved -= portion
	o.Remaining -= fill
	return portion, nil
}

// applyFill mutates one trader's register and collateral for a signed fill.
// Positive signed is bought contracts, negative sold. reservePortion is the
// slice of the order's margin reserve backing this fill.
func (c *SettlementCore) applyFill(
	address string,
	def *directory.ContractDefinition,
	signed, price, reservePortion, leverage, block int64,
) (register.Label, error) {
	reg := c.register(address)
	cid := def.ContractID
	coll := def.CollateralCurrency

	oldPos := reg.GetRecord(cid, register.Position)
	newPos, err := fpmath.AddSafe(oldPos, signed)
	if err != nil {
		return register.None, fmt.Errorf("position: %w", err)
	}
	label, err := register.Classify(oldPos, newPos)
	if err != nil {
		return register.None, err
	}

	fill := signed
	if fill < 0 {
		fill = -fill
	}
	extendsPosition := oldPos == 0 || (oldPos > 0) == (signed > 0)

	if extendsPosition {
		reg.InsertEntry(cid, fill, price)
		if err := c.postMargin(reg, address, cid, coll, reservePortion); err != nil {
			return label, err
		}
	} else {
		closed := oldPos
		if closed < 0 {
			closed = -closed
		}
		if fill < closed {
			closed = fill
		}

		entry, ok := reg.GetEntryPrice(cid, closed)
		if ok {
			move := price - entry
			if oldPos < 0 {
				move = entry - price
			}
			pnl, err := fpmath.MulDiv(closed, move, fpmath.COIN, fpmath.RoundDown)
			if err != nil {
				return label, fmt.Errorf("realized pnl: %w", err)
			}
			if err := c.settlePnL(reg, address, cid, coll, pnl); err != nil {
				return label, err
			}
		}

		reg.DecreasePosRecord(cid, fill, price)

		// release posted margin pro-rata to the closed exposure
		absOld := oldPos
		if absOld < 0 {
			absOld = -absOld
		}
		margin := reg.GetRecord(cid, register.Margin)
		release, err := fpmath.MulDiv(margin, closed, absOld, fpmath.RoundDown)
		if err != nil {
			return label, fmt.Errorf("margin release: %w", err)
		}
		if release > 0 {
			if err := c.ledger.Move(address, coll, ledger.OpenContract, ledger.Spendable, release); err != nil {
				return label, fmt.Errorf("margin release: %w", err)
			}
			reg.UpdateRecord(cid, -release, register.Margin)
		}

		if fill <= closed {
			// pure netting: the order reserve backing this fill goes home
			if reservePortion > 0 {
				if err := c.ledger.Move(address, coll, ledger.MarginReserve, ledger.Spendable, reservePortion); err != nil {
					return label, fmt.Errorf("reserve refund: %w", err)
				}
			}
		} else {
			// flip: the opened tail keeps its share of the reserve as margin
			openShare, err := fpmath.MulDiv(reservePortion, fill-closed, fill, fpmath.RoundDown)
			if err != nil {
				return label, fmt.Errorf("reserve split: %w", err)
			}
			if refund := reservePortion - openShare; refund > 0 {
				if err := c.ledger.Move(address, coll, ledger.MarginReserve, ledger.Spendable, refund); err != nil {
					return label, fmt.Errorf("reserve refund: %w", err)
				}
			}
			if err := c.postMargin(reg, address, cid, coll, openShare); err != nil {
				return label, err
			}
		}
	}

	reg.UpdateRecord(cid, signed, register.Position)
	reg.SetRecord(cid, leverage, register.Leverage)

	var twap int64
	if def.IsOracle {
		twap, err = c.window.TWAP(cid, block, 0)
		if err != nil {
			return label, err
		}
	}
	if err := reg.RefreshRiskPrices(cid, def, leverage, twap); err != nil {
		return label, err
	}
	return label, nil
}

func (c *SettlementCore) postMargin(reg *register.Register, address string, cid, coll uint32, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if err := c.ledger.Move(address, coll, ledger.MarginReserve, ledger.OpenContract, amount); err != nil {
		return fmt.Errorf("post margin: %w", err)
	}
	reg.UpdateRecord(cid, amount, register.Margin)
	return nil
}

// settlePnL credits gains to spendable balance. Losses come out of spendable
// first and posted margin second; any residual shortfall is carried as
// negative unrealized PnL for the liquidation layer to find.
func (c *SettlementCore) settlePnL(reg *register.Register, address string, cid, coll uint32, pnl int64) error {
	if pnl == 0 {
		return nil
	}
	if pnl > 0 {
		return c.ledger.Adjust(address, coll, ledger.Spendable, pnl)
	}

	loss := -pnl
	spendable := c.ledger.GetBalance(address, coll, ledger.Spendable)
	take := loss
	if take > spendable {
		take = spendable
	}
	if take > 0 {
		if err := c.ledger.Adjust(address, coll, ledger.Spendable, -take); err != nil {
			return err
		}
		loss -= take
	}

	if loss > 0 {
		posted := c.ledger.GetBalance(address, coll, ledger.OpenContract)
		take = loss
		if take > posted {
			take = posted
		}
		if take > 0 {
			if err := c.ledger.Adjust(address, coll, ledger.OpenContract, -take); err != nil {
				return err
			}
			margin := reg.GetRecord(cid, register.Margin)
			if take > margin {
				take = margin
			}
			if take > 0 {
				reg.UpdateRecord(cid, -take, register.Margin)
			}
			loss = loss - take
		}
	}

	if loss > 0 {
		reg.UpdateRecord(cid, -loss, register.UPNL)
		c.logger.Warn().
			Str("address", address).
			Uint32("contract_id", cid).
			Int64("shortfall", loss).
			Msg("loss exceeds collateral, carried as negative upnl")
	}
	return nil
}

func (c *SettlementCore) collectFee(isTaker bool, address string, def *directory.ContractDefinition, fill, price int64) (int64, error) {
	rate := makerFeePPM
	if isTaker {
		rate = takerFeePPM
	}
	notional, err := fpmath.MulDiv(fill, price, fpmath.COIN, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("fee notional: %w", err)
	}
	fee, err := fpmath.MulDiv(notional, rate, 1_000_000, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("fee: %w", err)
	}

	// best-effort: the fee never exceeds what is spendable
	spendable := c.ledger.GetBalance(address, def.CollateralCurrency, ledger.Spendable)
	if fee > spendable {
		fee = spendable
	}
	if fee == 0 {
		return 0, nil
	}
	if err := c.ledger.Adjust(address, def.CollateralCurrency, ledger.Spendable, -fee); err != nil {
		return 0, err
	}
	if err := c.ledger.Adjust(FeeCollectorAddress, def.CollateralCurrency, ledger.FeeCache, fee); err != nil {
		return 0, err
	}
	return fee, nil
}

func (c *SettlementCore) handleCancelOrder(ins *event.CancelOrder) error {
	o, ok := c.book.Lookup(ins.OrderID)
	if !ok {
		return fmt.Errorf("cancel %s: unknown order %s", ins.CancelID, ins.OrderID)
	}
	if o.Address != ins.Address {
		return fmt.Errorf("cancel %s: order %s not owned by %s", ins.CancelID, ins.OrderID, ins.Address)
	}
	c.book.Remove(o)
	if err := c.refundCancelled(ins.CancelID, o, ins.Block, ins.Timestamp); err != nil {
		return err
	}
	c.countCancel("by_id", 1)
	c.updateDepthGauges(o.ContractID)
	return nil
}

func (c *SettlementCore) handleCancelAll(ins *event.CancelAll) error {
	cancelled := c.book.CancelAllForAddress(ins.ContractID, ins.Address)
	for _, o := range cancelled {
		if err := c.refundCancelled(ins.CancelID, o, ins.Block, ins.Timestamp); err != nil {
			return err
		}
	}
	c.countCancel("all", len(cancelled))
	c.updateDepthGauges(ins.ContractID)
	return nil
}

func (c *SettlementCore) handleCancelAtPrice(ins *event.CancelAtPrice) error {
	side := book.Sell
	if ins.Side == event.OrderSideBuy {
		side = book.Buy
	}
	cancelled := c.book.CancelAtPrice(ins.ContractID, ins.Address, ins.Price, side)
	for _, o := range cancelled {
		if err := c.refundCancelled(ins.CancelID, o, ins.Block, ins.Timestamp); err != nil {
			return err
		}
	}
	c.countCancel("at_price", len(cancelled))
	c.updateDepthGauges(ins.ContractID)
	return nil
}

func (c *SettlementCore) handleVolumeSample(ins *event.VolumeSample) error {
	return c.window.AccumulateVolume(ins.PropertyID, ins.Block, ins.Volume)
}

func (c *SettlementCore) refundCancelled(cancelID uuid.UUID, o *book.Order, block int64, ts time.Time) error {
	def, ok := c.directory.Resolve(o.ContractID)
	if !ok {
		panic(fmt.Sprintf("FATAL: resting order %s references unknown contract %d", o.OrderID, o.ContractID))
	}
	released := o.Reserved
	if released > 0 {
		if err := c.ledger.Move(o.Address, def.CollateralCurrency, ledger.MarginReserve, ledger.Spendable, released); err != nil {
			return fmt.Errorf("cancel refund %s: %w", o.OrderID, err)
		}
		o.Reserved = 0
	}

	c.emit(CoreOutput{Cancellation: &event.Cancellation{
		CancelID:   cancelID,
		OrderID:    o.OrderID,
		ContractID: o.ContractID,
		Address:    o.Address,
		Remaining:  o.Remaining,
		Released:   released,
		Block:      block,
		Timestamp:  ts,
	}})
	return nil
}

func (c *SettlementCore) countCancel(kind string, n int) {
	if c.metrics != nil && n > 0 {
		c.metrics.OrdersCancelled.WithLabelValues(kind).Add(float64(n))
	}
}

func (c *SettlementCore) updateDepthGauges(contractID uint32) {
	if c.metrics == nil {
		return
	}
	buys, sells := c.book.Depth(contractID)
	cid := fmt.Sprint(contractID)
	c.metrics.OrdersResting.WithLabelValues(cid, "buy").Set(float64(buys))
	c.metrics.OrdersResting.WithLabelValues(cid, "sell").Set(float64(sells))
}

// emit sends one output. Persistence uses a blocking send so no execution is
// ever lost; projections are non-blocking and may drop.
func (c *SettlementCore) emit(out CoreOutput) {
	if c.persistChan != nil {
		select {
		case c.persistChan <- out:
		default:
			if c.metrics != nil {
				c.metrics.PersistBackpressure.Inc()
			}
			c.persistChan <- out
		}
	}
	if c.projectionChan != nil {
		select {
		case c.projectionChan <- out:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.Inc()
			}
		}
	}
}

func (c *SettlementCore) register(address string) *register.Register {
	reg, ok := c.registers[address]
	if !ok {
		reg = register.NewRegister()
		c.registers[address] = reg
	}
	return reg
}

func executionID(buyOrderID, sellOrderID uuid.UUID, sequence int64) uuid.UUID {
	// deterministic v5 id so replay reproduces the stream byte for byte
	return uuid.NewSHA1(uuid.NameSpaceOID,
		[]byte(fmt.Sprintf("execution:%s:%s:%d", buyOrderID, sellOrderID, sequence)))
}

// --- Read API (shared lock) ---

func (c *SettlementCore) BestBid(contractID uint32) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.book.BestBid(contractID)
}

func (c *SettlementCore) BestAsk(contractID uint32) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.book.BestAsk(contractID)
}

func (c *SettlementCore) GetBalance(address string, propertyID uint32, cat ledger.Category) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.GetBalance(address, propertyID, cat)
}

func (c *SettlementCore) GetRecord(address string, contractID uint32, ttype register.RecordType) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.registers[address]
	if !ok {
		return 0
	}
	return reg.GetRecord(contractID, ttype)
}

func (c *SettlementCore) VWAP(contractID, propertyID uint32, block, window int64) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.VWAP(contractID, propertyID, block, window)
}

func (c *SettlementCore) TWAP(contractID uint32, block, window int64) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.TWAP(contractID, block, window)
}

func (c *SettlementCore) ConversionEligible(propertyA, propertyB uint32, block int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.ConversionEligible(propertyA, propertyB, block)
}

// GetSequence returns the next settlement sequence to assign.
func (c *SettlementCore) GetSequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence
}

// GetStateHash returns the current hash chain tip.
func (c *SettlementCore) GetStateHash() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasher.GetPrevHash()
}

// RestoreChain re-seeds sequence, chain tip and stream position from
// persisted state, used on warm restart before replay.
func (c *SettlementCore) RestoreChain(sequence int64, stateHash [32]byte, block, idx int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence = sequence
	c.hasher.SetPrevHash(stateHash)
	c.ordering.Restore(block, idx)
}

// OrderingPosition returns the last applied (block, idx), for checkpoints.
func (c *SettlementCore) OrderingPosition() (int64, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ordering.Position()
}

// IdempotencyKeys returns the cached composite dedup keys, for checkpoints.
func (c *SettlementCore) IdempotencyKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idempotency.Keys()
}

// WarmLRU preloads recent idempotency keys.
func (c *SettlementCore) WarmLRU(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempotency.WarmFromKeys(keys)
}
