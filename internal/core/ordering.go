package core

import (
	"fmt"
)

// OrderingValidator enforces consensus ordering on the instruction stream:
// every new instruction must carry a (block, intra-block index) position not
// earlier than the last one applied. Replays of already-applied instructions
// are tolerated; a NEW instruction arriving out of order is a stream fault.
// Not thread-safe — only accessed from the single-threaded settlement core.
type OrderingValidator struct {
	lastBlock int64
	lastIdx   int64
	seen      bool
}

func NewOrderingValidator() *OrderingValidator {
	return &OrderingValidator{}
}

// Validate checks the consensus position of an instruction. Equal positions
// are accepted only for duplicates.
func (ov *OrderingValidator) Validate(block, idx int64, isDuplicate bool) error {
	if !ov.seen {
		ov.lastBlock = block
		ov.lastIdx = idx
		ov.seen = true
		return nil
	}

	if block < ov.lastBlock || (block == ov.lastBlock && idx < ov.lastIdx) {
		if isDuplicate {
			return nil
		}
		return fmt.Errorf("out-of-order instruction: last=(%d,%d), got=(%d,%d)",
			ov.lastBlock, ov.lastIdx, block, idx)
	}
	if block == ov.lastBlock && idx == ov.lastIdx && !isDuplicate {
		return fmt.Errorf("position collision: two instructions at (%d,%d)", block, idx)
	}

	ov.lastBlock = block
	ov.lastIdx = idx
	return nil
}

// Position returns the last accepted consensus position.
func (ov *OrderingValidator) Position() (int64, int64) {
	return ov.lastBlock, ov.lastIdx
}

// Restore re-seeds the validator from persisted state.
func (ov *OrderingValidator) Restore(block, idx int64) {
	ov.lastBlock = block
	ov.lastIdx = idx
	ov.seen = true
}
