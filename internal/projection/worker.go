package projection

import (
	"context"
	"database/sql"
	"fmt"

	"ContractLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Output mirrors the data projection workers need from a settlement result.
// The orchestrator bridges between core.CoreOutput and this.
type Output struct {
	Sequence   int64
	ContractID uint32
	Amount     int64
	Price      int64
	Block      int64
	Timestamp  int64

	Transitions []TransitionEntry
}

// TransitionEntry is one side's position change within an execution.
type TransitionEntry struct {
	Address    string
	ContractID uint32
	Transition string
	Amount     int64
	Price      int64
	Fee        int64
	Block      int64
}

// Worker updates projection tables from settlement outputs. The projection
// channel is non-blocking with drop: if projections fall behind they can be
// rebuilt from the execution log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	lastSeq   int64
	logger    zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan Output) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		logger:    observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent and rebuildable,
				// so a failed update is not fatal.
				pw.logger.Warn().Err(err).Int64("sequence", output.Sequence).
					Msg("projection update failed")
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.Amount > 0 {
		if err := pw.updateContractStats(ctx, tx, output); err != nil {
			return fmt.Errorf("contract stats: %w", err)
		}
	}

	for _, t := range output.Transitions {
		if err := pw.insertTransition(ctx, tx, output.Sequence, t); err != nil {
			return fmt.Errorf("transition history: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *Worker) updateContractStats(ctx context.Context, tx *sql.Tx, output Output) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.contract_stats
			(contract_id, last_price, last_block, executed_amount, executions, last_sequence)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (contract_id) DO UPDATE SET
			last_price      = $2,
			last_block      = $3,
			executed_amount = projections.contract_stats.executed_amount + $4,
			executions      = projections.contract_stats.executions + 1,
			last_sequence   = $5
	`, int64(output.ContractID), output.Price, output.Block, output.Amount, output.Sequence)
	return err
}

func (pw *Worker) insertTransition(ctx context.Context, tx *sql.Tx, sequence int64, t TransitionEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.position_transitions
			(sequence, address, contract_id, transition, amount, price, fee, block)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`, sequence, t.Address, int64(t.ContractID), t.Transition, t.Amount, t.Price, t.Fee, t.Block)
	return err
}

// Rebuild rebuilds all projection tables from the execution log.
func Rebuild(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.contract_stats`,
		`TRUNCATE projections.position_transitions`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.contract_stats
			(contract_id, last_price, last_block, executed_amount, executions, last_sequence)
		SELECT DISTINCT ON (contract_id)
			contract_id,
			price,
			block,
			SUM(amount)    OVER (PARTITION BY contract_id),
			COUNT(*)       OVER (PARTITION BY contract_id),
			MAX(sequence)  OVER (PARTITION BY contract_id)
		FROM cledger.executions
		ORDER BY contract_id, sequence DESC
	`); err != nil {
		return fmt.Errorf("rebuild contract stats: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.position_transitions
			(sequence, address, contract_id, transition, amount, price, fee, block)
		SELECT sequence, buy_address, contract_id, buyer_transition, amount, price, buyer_fee, block
		FROM cledger.executions
		UNION ALL
		SELECT sequence, sell_address, contract_id, seller_transition, amount, price, seller_fee, block
		FROM cledger.executions
		ON CONFLICT DO NOTHING
	`); err != nil {
		return fmt.Errorf("rebuild transition history: %w", err)
	}

	return nil
}
