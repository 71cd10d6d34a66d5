package orderlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/cimillas/storefront/services/api/internal/clock"
	"github.com/cimillas/storefront/services/api/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS creation_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    attempt_id  TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    order_id    TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    trace_id    TEXT NOT NULL DEFAULT '',
    span_id     TEXT NOT NULL DEFAULT '',
    recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_creation_log_attempt ON creation_log(attempt_id, id);
CREATE INDEX IF NOT EXISTS idx_creation_log_order ON creation_log(order_id) WHERE order_id <> '';
`

// SQLiteLog stores entries in a local SQLite file in WAL mode.
type SQLiteLog struct {
	db    *sql.DB
	clock clock.Clock
}

// Open creates the database at path if needed and applies the schema.
func Open(path string, clk clock.Clock) (*SQLiteLog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("orderlog: open %q: %w", path, err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("orderlog: apply schema: %w", err)
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &SQLiteLog{db: db, clock: clk}, nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Record appends ev with the trace and span ids active in ctx.
func (l *SQLiteLog) Record(ctx context.Context, ev domain.CreationEvent) error {
	const q = `
		INSERT INTO creation_log
			(attempt_id, customer_id, order_id, state, detail, trace_id, span_id, recorded_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)`

	var traceID, spanID string
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}

	_, err := l.db.ExecContext(ctx, q,
		ev.AttemptID,
		ev.CustomerID,
		ev.OrderID,
		string(ev.State),
		ev.Detail,
		traceID,
		spanID,
		l.clock.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("orderlog: record %s for attempt %s: %w", ev.State, ev.AttemptID, err)
	}
	return nil
}

// List returns the transitions of one attempt in the order they were recorded.
func (l *SQLiteLog) List(ctx context.Context, attemptID string) ([]Entry, error) {
	const q = `
		SELECT attempt_id, customer_id, order_id, state, detail, trace_id, span_id, recorded_at
		FROM   creation_log
		WHERE  attempt_id = ?
		ORDER  BY id ASC`

	rows, err := l.db.QueryContext(ctx, q, attemptID)
	if err != nil {
		return nil, fmt.Errorf("orderlog: list %s: %w", attemptID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var state, recordedAt string
		if err := rows.Scan(&e.AttemptID, &e.CustomerID, &e.OrderID, &state, &e.Detail,
			&e.TraceID, &e.SpanID, &recordedAt); err != nil {
			return nil, fmt.Errorf("orderlog: scan: %w", err)
		}
		e.State = domain.CreationState(state)
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("orderlog: parse time %q: %w", recordedAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orderlog: iterate: %w", err)
	}
	return entries, nil
}

// AttemptForOrder returns the attempt that produced orderID, or "" if none
// was recorded.
func (l *SQLiteLog) AttemptForOrder(ctx context.Context, orderID string) (string, error) {
	const q = `SELECT attempt_id FROM creation_log WHERE order_id = ? ORDER BY id ASC LIMIT 1`
	var attemptID string
	err := l.db.QueryRowContext(ctx, q, orderID).Scan(&attemptID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("orderlog: attempt for order %s: %w", orderID, err)
	}
	return attemptID, nil
}
