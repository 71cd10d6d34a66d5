package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/storefront/services/api/internal/events"
)

type OutboxRepository struct {
	querier
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{querier{pool: pool}}
}

func (r *OutboxRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// ClaimPending locks up to limit unpublished messages that failed fewer than
// maxAttempts times, oldest first. Rows locked by a concurrent relay are skipped.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit, maxAttempts int) ([]events.Message, error) {
	const query = `
SELECT id, aggregate_id, event_type, payload, attempts, created_at
FROM outbox
WHERE published_at IS NULL AND attempts < $2
ORDER BY created_at ASC
LIMIT $1
FOR UPDATE SKIP LOCKED`
	rows, err := r.query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var msgs []events.Message
	for rows.Next() {
		var m events.Message
		if err := rows.Scan(&m.ID, &m.Key, &m.Type, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate outbox: %w", rows.Err())
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	const stmt = `UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])`
	if _, err := r.exec(ctx, stmt, ids, at); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	const stmt = `UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	if _, err := r.exec(ctx, stmt, id, reason); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
