package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionLogWriter writes executions and cancellations to Postgres using
// multi-row INSERTs. Writes are idempotent: re-inserting an already-persisted
// sequence is a no-op, so the worker can safely retry a whole batch.
type ExecutionLogWriter struct {
	db *sql.DB
}

// ExecutionRow represents a row in cledger.executions.
type ExecutionRow struct {
	Sequence         int64
	ExecutionID      uuid.UUID
	ContractID       uint32
	BuyOrderID       uuid.UUID
	SellOrderID      uuid.UUID
	BuyAddress       string
	SellAddress      string
	Amount           int64
	Price            int64
	BuyerTransition  string
	SellerTransition string
	BuyerFee         int64
	SellerFee        int64
	Block            int64
	Idx              int64
	StateHash        []byte
	PrevHash         []byte
	Timestamp        time.Time
}

// CancellationRow represents a row in cledger.cancellations.
type CancellationRow struct {
	CancelID   uuid.UUID
	OrderID    uuid.UUID
	ContractID uint32
	Address    string
	Remaining  int64
	Released   int64
	Block      int64
	Timestamp  time.Time
}

func NewExecutionLogWriter(db *sql.DB) *ExecutionLogWriter {
	return &ExecutionLogWriter{db: db}
}

// WriteExecutionBatch inserts a batch of executions inside the given tx.
// ON CONFLICT (sequence) DO NOTHING makes replays after a crash idempotent.
func (w *ExecutionLogWriter) WriteExecutionBatch(ctx context.Context, rows []ExecutionRow, tx *sql.Tx) error {
	if len(rows) == 0 {
		return nil
	}

	const cols = 18
	var sb strings.Builder
	sb.WriteString(`INSERT INTO cledger.executions
		(sequence, execution_id, contract_id, buy_order_id, sell_order_id,
		 buy_address, sell_address, amount, price,
		 buyer_transition, seller_transition, buyer_fee, seller_fee,
		 block, idx, state_hash, prev_hash, executed_at)
		VALUES `)

	args := make([]interface{}, 0, len(rows)*cols)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		sb.WriteString("(")
		for j := 1; j <= cols; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args,
			r.Sequence, r.ExecutionID, int64(r.ContractID), r.BuyOrderID, r.SellOrderID,
			r.BuyAddress, r.SellAddress, r.Amount, r.Price,
			r.BuyerTransition, r.SellerTransition, r.BuyerFee, r.SellerFee,
			r.Block, r.Idx, r.StateHash, r.PrevHash, r.Timestamp,
		)
	}
	sb.WriteString(" ON CONFLICT (sequence) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("write execution batch (%d rows): %w", len(rows), err)
	}
	return nil
}

// WriteCancellationBatch inserts a batch of cancellations inside the given tx.
func (w *ExecutionLogWriter) WriteCancellationBatch(ctx context.Context, rows []CancellationRow, tx *sql.Tx) error {
	if len(rows) == 0 {
		return nil
	}

	const cols = 8
	var sb strings.Builder
	sb.WriteString(`INSERT INTO cledger.cancellations
		(cancel_id, order_id, contract_id, address, remaining, released, block, cancelled_at)
		VALUES `)

	args := make([]interface{}, 0, len(rows)*cols)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		sb.WriteString("(")
		for j := 1; j <= cols; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args,
			r.CancelID, r.OrderID, int64(r.ContractID), r.Address,
			r.Remaining, r.Released, r.Block, r.Timestamp,
		)
	}
	sb.WriteString(" ON CONFLICT (cancel_id) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("write cancellation batch (%d rows): %w", len(rows), err)
	}
	return nil
}

// RecordProcessedKeys inserts the idempotency keys of a flushed batch so the
// DB-tier duplicate check survives restarts beyond the LRU horizon.
func (w *ExecutionLogWriter) RecordProcessedKeys(ctx context.Context, tx *sql.Tx, instructionType string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO cledger.processed_instructions (instruction_type, idempotency_key) VALUES `)
	args := make([]interface{}, 0, len(keys)*2)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d)", i*2+1, i*2+2)
		args = append(args, instructionType, k)
	}
	sb.WriteString(" ON CONFLICT (instruction_type, idempotency_key) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("record processed keys (%d rows): %w", len(keys), err)
	}
	return nil
}
