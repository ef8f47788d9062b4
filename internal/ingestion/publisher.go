package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes settlement outputs to NATS for downstream
// consumers. Subjects follow the pattern cledger.events.{kind}.{contract_id}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableOutput
}

// PublishableOutput is a settlement output ready for outbound publishing.
type PublishableOutput struct {
	Sequence   int64       `json:"sequence"`
	Kind       string      `json:"kind"` // "execution" or "cancellation"
	ContractID uint32      `json:"contract_id"`
	Payload    interface{} `json:"payload"`
	StateHash  []byte      `json:"state_hash,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableOutput) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, out); err != nil {
				// Non-fatal: downstream consumers can query the archive directly
				log.Printf("WARN: outbound publish failed seq=%d: %v", out.Sequence, err)
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out PublishableOutput) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	subject := fmt.Sprintf("cledger.events.%s.%d", out.Kind, out.ContractID)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CLEDGER_EVENTS",
		Subjects:  []string{"cledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream CLEDGER_EVENTS")
	return nil
}
