package event

import (
	"time"

	"github.com/google/uuid"
)

// InstructionType discriminator for ingested instructions
type InstructionType int32

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeTradeOrder
	InstructionTypeCancelOrder
	InstructionTypeCancelAll
	InstructionTypeCancelAtPrice
	InstructionTypeVolumeSample
)

func (it InstructionType) String() string {
	switch it {
	case InstructionTypeTradeOrder:
		return "TradeOrder"
	case InstructionTypeCancelOrder:
		return "CancelOrder"
	case InstructionTypeCancelAll:
		return "CancelAll"
	case InstructionTypeCancelAtPrice:
		return "CancelAtPrice"
	case InstructionTypeVolumeSample:
		return "VolumeSample"
	default:
		return "Unknown"
	}
}

// OrderSide represents instruction direction
type OrderSide int32

const (
	OrderSideBuy OrderSide = iota
	OrderSideSell
)

func (s OrderSide) String() string {
	if s == OrderSideBuy {
		return "buy"
	}
	return "sell"
}

// Instruction is the interface all ingested payloads implement
type Instruction interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// InstructionType returns the discriminator
	InstructionType() InstructionType

	// Ordering returns the consensus position (block, intra-block index)
	Ordering() (int64, int64)
}

// TradeOrder is a validated limit order instruction. All amounts and prices
// are fixed-point with 8 implied decimals.
// Idempotency key: order_id (UUID assigned upstream).
type TradeOrder struct {
	OrderID         uuid.UUID
	Address         string
	ContractID      uint32
	Side            OrderSide
	Amount          int64
	Price           int64
	Leverage        int64
	DesiredProperty uint32
	Block           int64
	Idx             int64
	Timestamp       time.Time // Versioned input timestamp (NOT wall-clock)
}

func (t *TradeOrder) IdempotencyKey() string           { return t.OrderID.String() }
func (t *TradeOrder) InstructionType() InstructionType { return InstructionTypeTradeOrder }
func (t *TradeOrder) Ordering() (int64, int64)         { return t.Block, t.Idx }

// CancelOrder withdraws a single resting order by id.
type CancelOrder struct {
	CancelID  uuid.UUID
	OrderID   uuid.UUID
	Address   string
	Block     int64
	Idx       int64
	Timestamp time.Time
}

func (c *CancelOrder) IdempotencyKey() string           { return c.CancelID.String() }
func (c *CancelOrder) InstructionType() InstructionType { return InstructionTypeCancelOrder }
func (c *CancelOrder) Ordering() (int64, int64)         { return c.Block, c.Idx }

// CancelAll withdraws every resting order an address holds on a contract.
type CancelAll struct {
	CancelID   uuid.UUID
	Address    string
	ContractID uint32
	Block      int64
	Idx        int64
	Timestamp  time.Time
}

func (c *CancelAll) IdempotencyKey() string           { return c.CancelID.String() }
func (c *CancelAll) InstructionType() InstructionType { return InstructionTypeCancelAll }
func (c *CancelAll) Ordering() (int64, int64)         { return c.Block, c.Idx }

// CancelAtPrice withdraws an address's resting orders on one side at an
// exact price.
type CancelAtPrice struct {
	CancelID   uuid.UUID
	Address    string
	ContractID uint32
	Side       OrderSide
	Price      int64
	Block      int64
	Idx        int64
	Timestamp  time.Time
}

func (c *CancelAtPrice) IdempotencyKey() string           { return c.CancelID.String() }
func (c *CancelAtPrice) InstructionType() InstructionType { return InstructionTypeCancelAtPrice }
func (c *CancelAtPrice) Ordering() (int64, int64)         { return c.Block, c.Idx }

// VolumeSample feeds externally observed traded volume into the price
// window, gating cross-property conversion.
type VolumeSample struct {
	SampleID   uuid.UUID
	PropertyID uint32
	Volume     int64
	Block      int64
	Idx        int64
	Timestamp  time.Time
}

func (v *VolumeSample) IdempotencyKey() string           { return v.SampleID.String() }
func (v *VolumeSample) InstructionType() InstructionType { return InstructionTypeVolumeSample }
func (v *VolumeSample) Ordering() (int64, int64)         { return v.Block, v.Idx }
