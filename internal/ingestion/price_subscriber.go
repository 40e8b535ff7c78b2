package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"StableVault/internal/oracle"
)

// Price updates arrive on vault.prices.{asset} and flow into the engine's
// stream feeds. A quote that never refreshes goes stale in the oracle
// adapter and operations on positions holding that asset start failing,
// which is the intended failure mode.
const priceSubjectPrefix = "vault.prices."

// PriceUpdate is the inbound quote message. Price is a base-10 integer
// string with 8 implied decimals.
type PriceUpdate struct {
	Asset string    `json:"asset"`
	Price string    `json:"price"`
	AsOf  time.Time `json:"as_of"`
}

// PriceSubscriber consumes asset price subjects and pushes each update into
// the matching StreamFeed.
type PriceSubscriber struct {
	js        jetstream.JetStream
	feeds     map[string]*oracle.StreamFeed
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewPriceSubscriber(js jetstream.JetStream, feeds map[string]*oracle.StreamFeed, log zerolog.Logger) *PriceSubscriber {
	return &PriceSubscriber{
		js:    js,
		feeds: feeds,
		log:   log,
	}
}

// Subscribe creates one durable consumer per registered asset. Consumers
// use explicit ACK with DeliverLast: on restart only the newest quote
// matters.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	for asset, feed := range ps.feeds {
		consumer, err := ps.js.CreateOrUpdateConsumer(ctx, "VAULT_PRICES", jetstream.ConsumerConfig{
			Durable:       "vault-prices-" + strings.ToLower(asset),
			FilterSubject: priceSubjectPrefix + asset,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverLastPolicy,
		})
		if err != nil {
			return fmt.Errorf("create price consumer %s: %w", asset, err)
		}

		target := feed
		subjectAsset := asset
		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			update, perr := decodePriceUpdate(msg.Data())
			if perr != nil {
				// Redelivery cannot fix a malformed quote; drop it.
				ps.log.Warn().Err(perr).Str("subject", msg.Subject()).Msg("dropping malformed price update")
				msg.Ack()
				return
			}
			if update.Asset != subjectAsset {
				ps.log.Warn().Str("subject", msg.Subject()).Str("asset", update.Asset).Msg("dropping price update on wrong subject")
				msg.Ack()
				return
			}
			target.Update(update.price, update.AsOf)
			msg.Ack()
		})
		if err != nil {
			return fmt.Errorf("consume prices %s: %w", asset, err)
		}

		ps.consumers = append(ps.consumers, consumerContext)
		ps.log.Info().Str("asset", asset).Msg("subscribed to price updates")
	}
	return nil
}

// Stop gracefully stops all consumers.
func (ps *PriceSubscriber) Stop() {
	for _, cc := range ps.consumers {
		cc.Stop()
	}
}

type parsedPriceUpdate struct {
	PriceUpdate
	price *big.Int
}

func decodePriceUpdate(data []byte) (parsedPriceUpdate, error) {
	var update parsedPriceUpdate
	if err := json.Unmarshal(data, &update.PriceUpdate); err != nil {
		return parsedPriceUpdate{}, fmt.Errorf("unmarshal price update: %w", err)
	}
	price, ok := new(big.Int).SetString(update.Price, 10)
	if !ok {
		return parsedPriceUpdate{}, fmt.Errorf("price %q is not a base-10 integer", update.Price)
	}
	if price.Sign() <= 0 {
		return parsedPriceUpdate{}, fmt.Errorf("price %q is not positive", update.Price)
	}
	if update.AsOf.IsZero() {
		return parsedPriceUpdate{}, fmt.Errorf("price update has no as_of timestamp")
	}
	update.price = price
	return update, nil
}

// EnsurePriceStream creates the inbound price stream.
func EnsurePriceStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_PRICES",
		Subjects:  []string{"vault.prices.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create price stream: %w", err)
	}
	return nil
}
