package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ContractLedger/internal/event"
)

// ParseRawInstruction converts a RawInstruction (JSON bytes + instruction
// type string) into a typed event.Instruction. The ingestion shell validates
// and converts before anything reaches the settlement core.
func ParseRawInstruction(raw RawInstruction, instructionType string) (event.Instruction, error) {
	switch instructionType {
	case "TradeOrder":
		return parseTradeOrder(raw.Data)
	case "CancelOrder":
		return parseCancelOrder(raw.Data)
	case "CancelAll":
		return parseCancelAll(raw.Data)
	case "CancelAtPrice":
		return parseCancelAtPrice(raw.Data)
	case "VolumeSample":
		return parseVolumeSample(raw.Data)
	default:
		return nil, fmt.Errorf("unknown instruction type: %s", instructionType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. All amounts and
// prices are fixed-point with 8 implied decimals.

type tradeOrderJSON struct {
	OrderID         string `json:"order_id"`
	Address         string `json:"address"`
	ContractID      uint32 `json:"contract_id"`
	Side            string `json:"side"` // "buy" or "sell"
	Amount          int64  `json:"amount"`
	Price           int64  `json:"price"`
	Leverage        int64  `json:"leverage"`
	DesiredProperty uint32 `json:"desired_property"`
	Block           int64  `json:"block"`
	Idx             int64  `json:"idx"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseTradeOrder(data []byte) (*event.TradeOrder, error) {
	var j tradeOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TradeOrder: %w", err)
	}

	orderID, err := uuid.Parse(j.OrderID)
	if err != nil {
		return nil, fmt.Errorf("parse order_id: %w", err)
	}
	if j.Address == "" {
		return nil, fmt.Errorf("parse TradeOrder: empty address")
	}
	side, err := parseSide(j.Side)
	if err != nil {
		return nil, fmt.Errorf("parse TradeOrder: %w", err)
	}

	return &event.TradeOrder{
		OrderID:         orderID,
		Address:         j.Address,
		ContractID:      j.ContractID,
		Side:            side,
		Amount:          j.Amount,
		Price:           j.Price,
		Leverage:        j.Leverage,
		DesiredProperty: j.DesiredProperty,
		Block:           j.Block,
		Idx:             j.Idx,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

type cancelOrderJSON struct {
	CancelID    string `json:"cancel_id"`
	OrderID     string `json:"order_id"`
	Address     string `json:"address"`
	Block       int64  `json:"block"`
	Idx         int64  `json:"idx"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCancelOrder(data []byte) (*event.CancelOrder, error) {
	var j cancelOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelOrder: %w", err)
	}
	cancelID, err := uuid.Parse(j.CancelID)
	if err != nil {
		return nil, fmt.Errorf("parse cancel_id: %w", err)
	}
	orderID, err := uuid.Parse(j.OrderID)
	if err != nil {
		return nil, fmt.Errorf("parse order_id: %w", err)
	}
	return &event.CancelOrder{
		CancelID:  cancelID,
		OrderID:   orderID,
		Address:   j.Address,
		Block:     j.Block,
		Idx:       j.Idx,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type cancelAllJSON struct {
	CancelID    string `json:"cancel_id"`
	Address     string `json:"address"`
	ContractID  uint32 `json:"contract_id"`
	Block       int64  `json:"block"`
	Idx         int64  `json:"idx"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCancelAll(data []byte) (*event.CancelAll, error) {
	var j cancelAllJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelAll: %w", err)
	}
	cancelID, err := uuid.Parse(j.CancelID)
	if err != nil {
		return nil, fmt.Errorf("parse cancel_id: %w", err)
	}
	return &event.CancelAll{
		CancelID:   cancelID,
		Address:    j.Address,
		ContractID: j.ContractID,
		Block:      j.Block,
		Idx:        j.Idx,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type cancelAtPriceJSON struct {
	CancelID    string `json:"cancel_id"`
	Address     string `json:"address"`
	ContractID  uint32 `json:"contract_id"`
	Side        string `json:"side"`
	Price       int64  `json:"price"`
	Block       int64  `json:"block"`
	Idx         int64  `json:"idx"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCancelAtPrice(data []byte) (*event.CancelAtPrice, error) {
	var j cancelAtPriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelAtPrice: %w", err)
	}
	cancelID, err := uuid.Parse(j.CancelID)
	if err != nil {
		return nil, fmt.Errorf("parse cancel_id: %w", err)
	}
	side, err := parseSide(j.Side)
	if err != nil {
		return nil, fmt.Errorf("parse CancelAtPrice: %w", err)
	}
	return &event.CancelAtPrice{
		CancelID:   cancelID,
		Address:    j.Address,
		ContractID: j.ContractID,
		Side:       side,
		Price:      j.Price,
		Block:      j.Block,
		Idx:        j.Idx,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type volumeSampleJSON struct {
	SampleID    string `json:"sample_id"`
	PropertyID  uint32 `json:"property_id"`
	Volume      int64  `json:"volume"`
	Block       int64  `json:"block"`
	Idx         int64  `json:"idx"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseVolumeSample(data []byte) (*event.VolumeSample, error) {
	var j volumeSampleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VolumeSample: %w", err)
	}
	sampleID, err := uuid.Parse(j.SampleID)
	if err != nil {
		return nil, fmt.Errorf("parse sample_id: %w", err)
	}
	return &event.VolumeSample{
		SampleID:   sampleID,
		PropertyID: j.PropertyID,
		Volume:     j.Volume,
		Block:      j.Block,
		Idx:        j.Idx,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseSide(s string) (event.OrderSide, error) {
	switch s {
	case "buy":
		return event.OrderSideBuy, nil
	case "sell":
		return event.OrderSideSell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}
