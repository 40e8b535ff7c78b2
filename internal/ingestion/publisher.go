package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"StableVault/internal/event"
	"StableVault/internal/observability"
)

// Outbound subjects follow the pattern vault.events.{suffix}, where the
// suffix comes from the payload (collateral.deposited, debt.minted, ...).
const eventSubjectPrefix = "vault.events."

// wireEnvelope is the JSON shape published for each notification. The
// event_type discriminator lets consumers decode the payload without
// inspecting the subject.
type wireEnvelope struct {
	Sequence  int64       `json:"sequence"`
	EventType string      `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   event.Event `json:"payload"`
}

// OutboundPublisher drains committed notifications from the engine's
// publish channel and publishes them to JetStream. Publishing is
// best-effort: a failed publish is logged and skipped, since the operation
// journal remains the authoritative record.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Envelope
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan event.Envelope, log zerolog.Logger, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
		metrics:   metrics,
	}
}

// Run drains the publish channel until ctx is canceled or the channel
// closes.
func (p *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				p.log.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.Inc()
			}
		}
	}
}

func (p *OutboundPublisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(wireEnvelope{
		Sequence:  env.Sequence,
		EventType: env.Payload.EventType().String(),
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = p.js.Publish(ctx, eventSubjectPrefix+env.Payload.Subject(), data)
	return err
}

// EnsureEventStream creates the outbound notification stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_EVENTS",
		Subjects:  []string{"vault.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create event stream: %w", err)
	}
	return nil
}
