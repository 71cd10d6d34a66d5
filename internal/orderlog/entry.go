// Package orderlog keeps an append-only trail of order-creation attempts.
// Each row is one state transition, stamped with the trace it happened in.
package orderlog

import (
	"time"

	"github.com/cimillas/storefront/services/api/internal/domain"
)

type Entry struct {
	AttemptID  string
	CustomerID string
	OrderID    string
	State      domain.CreationState
	Detail     string
	TraceID    string
	SpanID     string
	RecordedAt time.Time
}
