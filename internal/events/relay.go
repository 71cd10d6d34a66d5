package events

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cimillas/storefront/services/api/internal/clock"
)

var tracer = otel.Tracer("github.com/cimillas/storefront/services/api/internal/events")

const (
	defaultRelayInterval    = time.Second
	defaultRelayBatchSize   = 50
	defaultRelayMaxAttempts = 10
)

// OutboxStore hands out unpublished messages. ClaimPending must lock the rows
// it returns until the surrounding WithTx ends, skipping rows locked by
// another relay and rows that already failed maxAttempts times.
type OutboxStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimPending(ctx context.Context, limit, maxAttempts int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Relay moves outbox rows to a Publisher. Delivery is at least once. A
// message that fails maxAttempts times is left unpublished and no longer
// claimed, so it cannot hold back newer messages.
type Relay struct {
	store       OutboxStore
	publisher   Publisher
	clock       clock.Clock
	logger      *zap.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

type RelayOption func(*Relay)

func WithRelayInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRelayBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithRelayMaxAttempts(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithRelayClock(c clock.Clock) RelayOption {
	return func(r *Relay) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithRelayLogger(l *zap.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRelay(store OutboxStore, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		clock:     clock.NewSystem(),
		logger:    zap.NewNop(),
		interval:    defaultRelayInterval,
		batchSize:   defaultRelayBatchSize,
		maxAttempts: defaultRelayMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. A failed batch is logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
		zap.Int("max_attempts", r.maxAttempts),
	)
	for {
		// Drain the backlog before waiting again.
		for {
			n, err := r.RunOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error("outbox relay batch failed", zap.Error(err))
				}
				break
			}
			if n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce publishes at most one batch and returns how many messages were delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "outbox.relay", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	claimed, sent := 0, 0
	err := r.store.WithTx(ctx, func(txCtx context.Context) error {
		msgs, err := r.store.ClaimPending(txCtx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim pending: %w", err)
		}
		claimed = len(msgs)
		if claimed == 0 {
			return nil
		}

		published := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			if err := r.publisher.Publish(txCtx, msg); err != nil {
				fields := []zap.Field{
					zap.String("message_id", msg.ID),
					zap.String("event_type", msg.Type),
					zap.Int("attempts", msg.Attempts+1),
					zap.Error(err),
				}
				if msg.Attempts+1 >= r.maxAttempts {
					r.logger.Error("outbox message abandoned", fields...)
				} else {
					r.logger.Warn("publish outbox message", fields...)
				}
				if err := r.store.MarkFailed(txCtx, msg.ID, err.Error()); err != nil {
					return fmt.Errorf("mark failed: %w", err)
				}
				continue
			}
			published = append(published, msg.ID)
		}

		if len(published) == 0 {
			return nil
		}
		if err := r.store.MarkPublished(txCtx, published, r.clock.Now()); err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
		sent = len(published)
		r.logger.Debug("outbox messages published", zap.Int("count", sent))
		return nil
	})

	span.SetAttributes(
		attribute.Int("outbox.claimed", claimed),
		attribute.Int("outbox.sent", sent),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return sent, nil
}
