package register

import (
	"math/big"
	"sort"

	fpmath "ContractLedger/internal/math"
)

// RecordType selects a named field of a position record.
type RecordType int

const (
	EntryPrice RecordType = iota
	Position
	BankruptcyPrice
	LiquidationPrice
	UPNL
	Margin
	Leverage
	Reserve

	recordTypeCount
)

func (t RecordType) String() string {
	switch t {
	case EntryPrice:
		return "entry_price"
	case Position:
		return "position"
	case BankruptcyPrice:
		return "bankruptcy_price"
	case LiquidationPrice:
		return "liquidation_price"
	case UPNL:
		return "upnl"
	case Margin:
		return "margin"
	case Leverage:
		return "leverage"
	case Reserve:
		return "reserve"
	default:
		return "unknown"
	}
}

// AllRecordTypes lists every record field in declaration order, for callers
// that serialize a full record.
func AllRecordTypes() []RecordType {
	types := make([]RecordType, recordTypeCount)
	for i := range types {
		types[i] = RecordType(i)
	}
	return types
}

// Lot is a slice of cost basis: amount of contracts acquired at a price.
// Lots are appended in trade order and consumed strictly oldest-first.
type Lot struct {
	Amount int64
	Price  int64
}

type record struct {
	balance [recordTypeCount]int64
	lots    []Lot
}

// Register is the per-address position ledger, keyed by contract id. It owns
// cost-basis lots and the cached margin/liquidation fields. Created lazily on
// first trade; entries are zeroed, never deleted.
type Register struct {
	records map[uint32]*record

	// iteration snapshot, rebuilt by Init
	iterIDs []uint32
	iterPos int
}

func NewRegister() *Register {
	return &Register{
		records: make(map[uint32]*record),
	}
}

func (r *Register) getOrCreate(contractID uint32) *record {
	rec, ok := r.records[contractID]
	if !ok {
		rec = &record{}
		r.records[contractID] = rec
	}
	return rec
}

// Init rebuilds the iteration snapshot in ascending contract-id order and
// returns the first id with activity, or 0 when the register is empty. The
// snapshot must be rebuilt after any UpdateRecord that touches a new id.
func (r *Register) Init() uint32 {
	r.iterIDs = r.iterIDs[:0]
	for id := range r.records {
		r.iterIDs = append(r.iterIDs, id)
	}
	sort.Slice(r.iterIDs, func(i, j int) bool { return r.iterIDs[i] < r.iterIDs[j] })
	r.iterPos = 0

	if len(r.iterIDs) == 0 {
		return 0
	}
	return r.iterIDs[0]
}

// Next returns the id under the iterator and advances it, or 0 when the
// snapshot is exhausted.
func (r *Register) Next() uint32 {
	if r.iterPos >= len(r.iterIDs) {
		return 0
	}
	id := r.iterIDs[r.iterPos]
	r.iterPos++
	return id
}

// UpdateRecord adds amount to the selected field. The update is rejected
// without mutation when the selector is out of range, the amount is zero, the
// addition would overflow, or the result would be negative for a field other
// than position size or unrealized PnL.
func (r *Register) UpdateRecord(contractID uint32, amount int64, ttype RecordType) bool {
	if ttype < 0 || ttype >= recordTypeCount || amount == 0 {
		return false
	}

	rec := r.getOrCreate(contractID)
	now, err := fpmath.AddSafe(rec.balance[ttype], amount)
	if err != nil {
		return false
	}
	if now < 0 && ttype != Position && ttype != UPNL {
		return false
	}

	rec.balance[ttype] = now
	return true
}

// SetRecord overwrites the selected field, bypassing the additive path. Used
// for cached derived prices (bankruptcy, liquidation) which are recomputed,
// not accumulated.
func (r *Register) SetRecord(contractID uint32, amount int64, ttype RecordType) bool {
	if ttype < 0 || ttype >= recordTypeCount {
		return false
	}
	r.getOrCreate(contractID).balance[ttype] = amount
	return true
}

// GetRecord returns the selected field, zero when absent or out of range.
func (r *Register) GetRecord(contractID uint32, ttype RecordType) int64 {
	if ttype < 0 || ttype >= recordTypeCount {
		return 0
	}
	rec, ok := r.records[contractID]
	if !ok {
		return 0
	}
	return rec.balance[ttype]
}

// InsertEntry appends a new cost-basis lot. Always succeeds for a positive
// amount and non-negative price.
func (r *Register) InsertEntry(contractID uint32, amount, price int64) bool {
	if amount <= 0 || price < 0 {
		return false
	}
	rec := r.getOrCreate(contractID)
	rec.lots = append(rec.lots, Lot{Amount: amount, Price: price})
	return true
}

// GetPosEntryPrice returns the amount-weighted average price over all
// outstanding lots: ceil(Σ(amount·price) / Σamount). This is deliberately not
// FIFO-weighted; it matches the accumulated-then-divided arithmetic the
// consensus rules were tested against.
func (r *Register) GetPosEntryPrice(contractID uint32) int64 {
	rec, ok := r.records[contractID]
	if !ok || len(rec.lots) == 0 {
		return 0
	}

	total := new(big.Int)
	var amount int64
	for _, lot := range rec.lots {
		product := fpmath.Mul128(lot.Amount, lot.Price)
		total.Add(total, product)
		fpmath.Release(product)
		amount += lot.Amount
	}

	price, err := fpmath.Div128(total, amount, fpmath.RoundUp)
	if err != nil {
		return 0
	}
	return price
}

// GetEntryPrice returns the FIFO cost basis for exactly amount units without
// mutating the lots: the weighted price of the oldest lots that would be
// consumed by a decrease of that size. Returns false when the open lots do
// not cover the amount.
func (r *Register) GetEntryPrice(contractID uint32, amount int64) (int64, bool) {
	rec, ok := r.records[contractID]
	if !ok || amount <= 0 {
		return 0, false
	}

	total := new(big.Int)
	remaining := amount
	for _, lot := range rec.lots {
		if remaining == 0 {
			break
		}
		part := lot.Amount
		if part > remaining {
			part = remaining
		}
		product := fpmath.Mul128(part, lot.Price)
		total.Add(total, product)
		fpmath.Release(product)
		remaining -= part
	}
	if remaining > 0 {
		return 0, false
	}

	price, err := fpmath.Div128(total, amount, fpmath.RoundUp)
	if err != nil {
		return 0, false
	}
	return price, true
}

// DecreasePosRecord reduces the open position by amount, consuming lots
// strictly oldest-first. A decrease larger than the open lots flips the
// position: all lots are consumed and a single new lot is created for the
// excess at the supplied price, so the post-flip entry price equals the flip
// trade price exactly. Returns false when no lots exist.
func (r *Register) DecreasePosRecord(contractID uint32, amount, price int64) bool {
	rec, ok := r.records[contractID]
	if !ok || amount <= 0 || len(rec.lots) == 0 {
		return false
	}

	remaining := amount
	for remaining > 0 && len(rec.lots) > 0 {
		oldest := &rec.lots[0]
		if oldest.Amount <= remaining {
			remaining -= oldest.Amount
			rec.lots = rec.lots[1:]
		} else {
			oldest.Amount -= remaining
			remaining = 0
		}
	}

	if remaining > 0 {
		rec.lots = append(rec.lots[:0], Lot{Amount: remaining, Price: price})
	}
	return true
}

// Lots returns a copy of the outstanding lots for inspection.
func (r *Register) Lots(contractID uint32) []Lot {
	rec, ok := r.records[contractID]
	if !ok {
		return nil
	}
	out := make([]Lot, len(rec.lots))
	copy(out, rec.lots)
	return out
}

// OpenLotAmount returns the sum of outstanding lot amounts.
func (r *Register) OpenLotAmount(contractID uint32) int64 {
	rec, ok := r.records[contractID]
	if !ok {
		return 0
	}
	var total int64
	for _, lot := range rec.lots {
		total += lot.Amount
	}
	return total
}

// ContractIDs returns every contract id with activity, ascending.
func (r *Register) ContractIDs() []uint32 {
	ids := make([]uint32, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal reports structural equality over all fields and lots. Test and
// consistency-check use only.
func (r *Register) Equal(rhs *Register) bool {
	if len(r.records) != len(rhs.records) {
		return false
	}
	for id, rec := range r.records {
		other, ok := rhs.records[id]
		if !ok {
			return false
		}
		if rec.balance != other.balance {
			return false
		}
		if len(rec.lots) != len(other.lots) {
			return false
		}
		for i := range rec.lots {
			if rec.lots[i] != other.lots[i] {
				return false
			}
		}
	}
	return true
}
