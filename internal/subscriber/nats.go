// Package subscriber listens for catalog changes made by other replicas and drops the local snapshot.
package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ceramica/storefront/pkg/config"
	"github.com/ceramica/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

// consumerInactiveThreshold removes the consumer of a replica that went away.
const consumerInactiveThreshold = time.Hour

// Invalidator marks the local catalog snapshot as out of date.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// ackableMsg is the part of jetstream.Msg the handler needs.
type ackableMsg interface {
	Data() []byte
	Subject() string
	Ack() error
	Term() error
}

// Start creates the replica's consumer and runs the configured number of workers until ctx is done.
// Each replica must use its own consumer name, otherwise the events are split between replicas.
func Start(ctx context.Context, js jetstream.JetStream, subscriberCfg config.SubscriberConfig, snapshot Invalidator, logger *slog.Logger) error {
	logger = logger.With("component", "subscriber", "consumer", subscriberCfg.Consumer)
	cfg := jetstream.ConsumerConfig{
		FilterSubject:     subscriberCfg.Subject,
		Durable:           subscriberCfg.Consumer,
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: consumerInactiveThreshold,
	}
	if subscriberCfg.MaxDeliver > 0 {
		cfg.MaxDeliver = subscriberCfg.MaxDeliver
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, subscriberCfg.Stream, cfg)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Catalog subscriber started", "stream", subscriberCfg.Stream, "subject", subscriberCfg.Subject)

	g, gCtx := errgroup.WithContext(ctx)
	for range subscriberCfg.Workers {
		g.Go(func() error {
			return runWorker(gCtx, consumer, subscriberCfg, snapshot, logger)
		})
	}
	return g.Wait()
}

// runWorker fetches batches from the consumer and handles them one by one.
func runWorker(ctx context.Context, consumer jetstream.Consumer, cfg config.SubscriberConfig, snapshot Invalidator, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := consumer.Fetch(cfg.Batch, jetstream.FetchMaxWait(cfg.Timeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				logger.ErrorContext(ctx, "Failed to fetch messages", "error", err)
				time.Sleep(cfg.Interval)
				continue
			}
			for msg := range batch.Messages() {
				handleMessage(ctx, msg, snapshot, logger)
			}
			if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
				logger.WarnContext(ctx, "Batch finished with error", "error", err)
			}
		}
	}
}

// handleMessage invalidates the snapshot for a valid event. Payloads that cannot be
// parsed are terminated, since redelivery would not make them valid.
func handleMessage(ctx context.Context, msg ackableMsg, snapshot Invalidator, logger *slog.Logger) {
	if msg == nil {
		logger.ErrorContext(ctx, "Received nil message")
		return
	}
	event, err := events.ParseCatalogChangedEvent(msg.Data())
	if err != nil {
		logger.ErrorContext(ctx, "Dropping malformed catalog event", "error", err, "subject", msg.Subject())
		if err := msg.Term(); err != nil {
			logger.ErrorContext(ctx, "Failed to terminate message", "error", err)
		}
		return
	}

	logger.DebugContext(ctx, "Received catalog changed event",
		slog.String("product_id", event.ProductID.String()),
		slog.String("kind", string(event.Kind)),
		slog.Int("version", int(event.Version)),
		slog.String("changed_at", event.ChangedAt.Format(time.RFC3339)))

	snapshot.Invalidate(ctx)

	if err := msg.Ack(); err != nil {
		logger.ErrorContext(ctx, "Failed to ack message", "error", err)
	}
}
