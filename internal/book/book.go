// Package book keeps the resting limit orders for every contract in strict
// price/time priority. The book holds orders only; funds backing them live in
// the balance ledger's margin reserve.
package book

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Order is a resting limit order. Block and Idx fix its arrival position and
// never change; Remaining and Reserved shrink as it fills.
type Order struct {
	OrderID    uuid.UUID
	Address    string
	ContractID uint32
	Side       Side
	Price      int64
	Amount     int64
	Remaining  int64
	Leverage   int64
	Reserved   int64
	Block      int64
	Idx        int64
}

// before reports strict priority of o over rhs on the same side: better
// price first, then earlier arrival.
func (o *Order) before(rhs *Order) bool {
	if o.Price != rhs.Price {
		if o.Side == Buy {
			return o.Price > rhs.Price
		}
		return o.Price < rhs.Price
	}
	if o.Block != rhs.Block {
		return o.Block < rhs.Block
	}
	return o.Idx < rhs.Idx
}

type contractBook struct {
	buys  []*Order
	sells []*Order
}

// Book indexes resting orders by contract and by order id. It is not
// goroutine safe; the settlement core serializes access.
type Book struct {
	contracts map[uint32]*contractBook
	byID      map[uuid.UUID]*Order
}

func New() *Book {
	return &Book{
		contracts: make(map[uint32]*contractBook),
		byID:      make(map[uuid.UUID]*Order),
	}
}

func (b *Book) getOrCreate(contractID uint32) *contractBook {
	cb, ok := b.contracts[contractID]
	if !ok {
		cb = &contractBook{}
		b.contracts[contractID] = cb
	}
	return cb
}

// Insert places an order at its priority position.
func (b *Book) Insert(o *Order) error {
	if o.Remaining <= 0 || o.Price <= 0 {
		return fmt.Errorf("book: order %s remaining %d price %d out of range", o.OrderID, o.Remaining, o.Price)
	}
	if _, exists := b.byID[o.OrderID]; exists {
		return fmt.Errorf("book: duplicate order id %s", o.OrderID)
	}

	cb := b.getOrCreate(o.ContractID)
	side := &cb.sells
	if o.Side == Buy {
		side = &cb.buys
	}

	at := sort.Search(len(*side), func(i int) bool { return o.before((*side)[i]) })
	*side = append(*side, nil)
	copy((*side)[at+1:], (*side)[at:])
	(*side)[at] = o

	b.byID[o.OrderID] = o
	return nil
}

// BestAsk returns the lowest resting sell price, 0 when the side is empty.
func (b *Book) BestAsk(contractID uint32) int64 {
	if o := b.PeekBestSell(contractID); o != nil {
		return o.Price
	}
	return 0
}

// BestBid returns the highest resting buy price, 0 when the side is empty.
func (b *Book) BestBid(contractID uint32) int64 {
	if o := b.PeekBestBuy(contractID); o != nil {
		return o.Price
	}
	return 0
}

func (b *Book) PeekBestSell(contractID uint32) *Order {
	cb, ok := b.contracts[contractID]
	if !ok || len(cb.sells) == 0 {
		return nil
	}
	return cb.sells[0]
}

func (b *Book) PeekBestBuy(contractID uint32) *Order {
	cb, ok := b.contracts[contractID]
	if !ok || len(cb.buys) == 0 {
		return nil
	}
	return cb.buys[0]
}

// Lookup returns the resting order with the given id.
func (b *Book) Lookup(orderID uuid.UUID) (*Order, bool) {
	o, ok := b.byID[orderID]
	return o, ok
}

// Remove deletes an order from its side, keeping priority order intact.
func (b *Book) Remove(o *Order) bool {
	if _, ok := b.byID[o.OrderID]; !ok {
		return false
	}
	cb := b.contracts[o.ContractID]
	side := &cb.sells
	if o.Side == Buy {
		side = &cb.buys
	}
	for i, cur := range *side {
		if cur.OrderID == o.OrderID {
			copy((*side)[i:], (*side)[i+1:])
			(*side)[len(*side)-1] = nil
			*side = (*side)[:len(*side)-1]
			delete(b.byID, o.OrderID)
			return true
		}
	}
	return false
}

// CancelByID removes and returns the order with the given id.
func (b *Book) CancelByID(orderID uuid.UUID) (*Order, bool) {
	o, ok := b.byID[orderID]
	if !ok {
		return nil, false
	}
	b.Remove(o)
	return o, true
}

// CancelAllForAddress removes every resting order an address has on a
// contract and returns them in priority order.
func (b *Book) CancelAllForAddress(contractID uint32, address string) []*Order {
	return b.cancelWhere(contractID, func(o *Order) bool {
		return o.Address == address
	})
}

// CancelAtPrice removes an address's resting orders on one side at an exact
// price.
func (b *Book) CancelAtPrice(contractID uint32, address string, price int64, side Side) []*Order {
	return b.cancelWhere(contractID, func(o *Order) bool {
		return o.Address == address && o.Price == price && o.Side == side
	})
}

func (b *Book) cancelWhere(contractID uint32, match func(*Order) bool) []*Order {
	cb, ok := b.contracts[contractID]
	if !ok {
		return nil
	}

	var cancelled []*Order
	for _, side := range []*[]*Order{&cb.buys, &cb.sells} {
		kept := (*side)[:0]
		for _, o := range *side {
			if match(o) {
				cancelled = append(cancelled, o)
				delete(b.byID, o.OrderID)
			} else {
				kept = append(kept, o)
			}
		}
		for i := len(kept); i < len(*side); i++ {
			(*side)[i] = nil
		}
		*side = kept
	}
	return cancelled
}

// Depth returns the resting order counts for a contract.
func (b *Book) Depth(contractID uint32) (buys, sells int) {
	cb, ok := b.contracts[contractID]
	if !ok {
		return 0, 0
	}
	return len(cb.buys), len(cb.sells)
}

// Orders returns a priority-ordered copy of one side, for queries and the
// deterministic state digest.
func (b *Book) Orders(contractID uint32, side Side) []*Order {
	cb, ok := b.contracts[contractID]
	if !ok {
		return nil
	}
	src := cb.sells
	if side == Buy {
		src = cb.buys
	}
	out := make([]*Order, len(src))
	copy(out, src)
	return out
}

// ContractIDs returns every contract with at least one resting order,
// ascending.
func (b *Book) ContractIDs() []uint32 {
	ids := make([]uint32, 0, len(b.contracts))
	for id, cb := range b.contracts {
		if len(cb.buys) == 0 && len(cb.sells) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
