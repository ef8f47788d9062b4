package event

import (
	"time"

	"github.com/google/uuid"
)

// Execution is one matched fill emitted by the settlement core. Prices are
// the maker's resting price; transitions carry the labels assigned to each
// side's position change.
type Execution struct {
	ExecutionID uuid.UUID
	Sequence    int64
	ContractID  uint32

	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	BuyAddress  string
	SellAddress string

	Amount int64
	Price  int64

	BuyerTransition  string
	SellerTransition string

	BuyerFee  int64
	SellerFee int64

	Block     int64
	Idx       int64
	Timestamp time.Time

	// SHA-256 of state AFTER applying this execution
	StateHash [32]byte

	// Previous execution's state hash (chain integrity)
	PrevHash [32]byte
}

// Cancellation reports a resting order leaving the book without filling.
type Cancellation struct {
	CancelID   uuid.UUID
	OrderID    uuid.UUID
	ContractID uint32
	Address    string
	Remaining  int64
	Released   int64
	Block      int64
	Timestamp  time.Time
}
