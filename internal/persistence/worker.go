package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ContractLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Record is one unit of durable work. The orchestrator (cmd/main.go) bridges
// core.CoreOutput into Records to avoid an import cycle, and additionally
// emits a Processed record for every instruction the core applied so the
// DB idempotency tier survives restarts.
type Record struct {
	Execution    *ExecutionRow
	Cancellation *CancellationRow
	Processed    *ProcessedKey
}

// ProcessedKey marks one instruction as applied.
type ProcessedKey struct {
	InstructionType string
	IdempotencyKey  string
}

// Worker drains the record channel and batch-writes to Postgres. The core
// uses blocking sends upstream, so if this worker falls behind the core
// stalls rather than losing an execution.
type Worker struct {
	writer       *ExecutionLogWriter
	db           *sql.DB
	inputChan    <-chan Record
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan Record,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewExecutionLogWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       observability.NewLogger("persistence"),
	}
}

type batch struct {
	executions    []ExecutionRow
	cancellations []CancellationRow
	processed     []ProcessedKey
}

func (b *batch) add(r Record) {
	if r.Execution != nil {
		b.executions = append(b.executions, *r.Execution)
	}
	if r.Cancellation != nil {
		b.cancellations = append(b.cancellations, *r.Cancellation)
	}
	if r.Processed != nil {
		b.processed = append(b.processed, *r.Processed)
	}
}

func (b *batch) len() int {
	return len(b.executions) + len(b.cancellations) + len(b.processed)
}

func (b *batch) reset() {
	b.executions = b.executions[:0]
	b.cancellations = b.cancellations[:0]
	b.processed = b.processed[:0]
}

// Run starts the worker loop. It flushes either when the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled or the channel
// closes.
func (w *Worker) Run(ctx context.Context) error {
	var b batch
	b.executions = make([]ExecutionRow, 0, w.batchSize)
	b.cancellations = make([]CancellationRow, 0, w.batchSize)
	b.processed = make([]ProcessedKey, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if b.len() > 0 {
				if err := w.flush(context.Background(), &b); err != nil {
					w.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case rec, ok := <-w.inputChan:
			if !ok {
				if b.len() > 0 {
					if err := w.flush(context.Background(), &b); err != nil {
						w.logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			b.add(rec)
			if b.len() >= w.batchSize {
				if err := w.flushWithRetry(ctx, &b); err != nil {
					w.logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				b.reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if b.len() > 0 {
				if err := w.flushWithRetry(ctx, &b); err != nil {
					w.logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				b.reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch: it retries until the write succeeds or the context is cancelled, and
// even then attempts one final flush before giving up.
func (w *Worker) flushWithRetry(ctx context.Context, b *batch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("records", b.len()).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), b); err != nil {
					return fmt.Errorf("final flush on shutdown: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, b)
		if err == nil {
			if attempt > 0 {
				w.logger.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, b *batch) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteExecutionBatch(ctx, b.executions, tx); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_executions").Inc()
		}
		return err
	}
	if err := w.writer.WriteCancellationBatch(ctx, b.cancellations, tx); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_cancellations").Inc()
		}
		return err
	}
	if err := w.writeProcessed(ctx, tx, b.processed); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_processed").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchSize.Observe(float64(len(b.executions)))
		w.metrics.PersistExecutionsWritten.Add(float64(len(b.executions)))
		if n := len(b.executions); n > 0 {
			w.metrics.PersistLastSequence.Set(float64(b.executions[n-1].Sequence))
		}
	}
	return nil
}

func (w *Worker) writeProcessed(ctx context.Context, tx *sql.Tx, keys []ProcessedKey) error {
	// Grouped by instruction type to keep the statements simple.
	byType := make(map[string][]string)
	for _, k := range keys {
		byType[k.InstructionType] = append(byType[k.InstructionType], k.IdempotencyKey)
	}
	for typ, ks := range byType {
		if err := w.writer.RecordProcessedKeys(ctx, tx, typ, ks); err != nil {
			return err
		}
	}
	return nil
}

// Writer exposes the underlying writer for checkpoint and replay tooling.
func (w *Worker) Writer() *ExecutionLogWriter {
	return w.writer
}
