package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckpointManager saves and loads restart checkpoints. A checkpoint pins
// the hash-chain tip and the instruction ordering position; full balances
// and positions are rebuilt by deterministically replaying the instruction
// stream, with the checkpoint hash used to verify the rebuilt state.
type CheckpointManager struct {
	db *sql.DB
}

// CheckpointData is the serialized restart state.
type CheckpointData struct {
	Sequence        int64     `json:"sequence"`
	StateHash       []byte    `json:"state_hash"`
	Block           int64     `json:"block"`
	Idx             int64     `json:"idx"`
	IdempotencyKeys []string  `json:"idempotency_keys"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewCheckpointManager(db *sql.DB) *CheckpointManager {
	return &CheckpointManager{db: db}
}

// SaveCheckpoint persists a checkpoint. Re-saving the same sequence
// overwrites it.
func (cm *CheckpointManager) SaveCheckpoint(ctx context.Context, cp *CheckpointData) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	checkpointID := uuid.New()
	_, err = cm.db.ExecContext(ctx, `
		INSERT INTO cledger.checkpoints
			(checkpoint_id, sequence, data, state_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4
	`, checkpointID, cp.Sequence, data, cp.StateHash, cp.CreatedAt)

	return err
}

// LoadLatestCheckpoint returns the most recent checkpoint, or nil on a cold
// start.
func (cm *CheckpointManager) LoadLatestCheckpoint(ctx context.Context) (*CheckpointData, error) {
	row := cm.db.QueryRowContext(ctx, `
		SELECT data FROM cledger.checkpoints
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp CheckpointData
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// LoadExecutionsFrom loads persisted executions for chain verification after
// a replay.
func (cm *CheckpointManager) LoadExecutionsFrom(ctx context.Context, fromSequence int64, limit int) ([]ExecutionRow, error) {
	rows, err := cm.db.QueryContext(ctx, `
		SELECT sequence, execution_id, contract_id, buy_order_id, sell_order_id,
		       buy_address, sell_address, amount, price,
		       buyer_transition, seller_transition, buyer_fee, seller_fee,
		       block, idx, state_hash, prev_hash, executed_at
		FROM cledger.executions
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []ExecutionRow
	for rows.Next() {
		var e ExecutionRow
		var contractID int64
		if err := rows.Scan(
			&e.Sequence, &e.ExecutionID, &contractID, &e.BuyOrderID, &e.SellOrderID,
			&e.BuyAddress, &e.SellAddress, &e.Amount, &e.Price,
			&e.BuyerTransition, &e.SellerTransition, &e.BuyerFee, &e.SellerFee,
			&e.Block, &e.Idx, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.ContractID = uint32(contractID)
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// LatestSequence returns the highest persisted execution sequence, or 0 on
// an empty log.
func (cm *CheckpointManager) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := cm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM cledger.executions
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
