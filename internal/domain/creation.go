package domain

// CreationState tracks one order-creation attempt.
type CreationState string

const (
	CreationValidating   CreationState = "validating"
	CreationPricing      CreationState = "pricing"
	CreationPersisting   CreationState = "persisting"
	CreationDecrementing CreationState = "decrementing"
	CreationCommitted    CreationState = "committed"
	CreationRejected     CreationState = "rejected"
	CreationFailed       CreationState = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s CreationState) Terminal() bool {
	switch s {
	case CreationCommitted, CreationRejected, CreationFailed:
		return true
	}
	return false
}

// CreationEvent is one transition of an attempt, as handed to a recorder.
type CreationEvent struct {
	AttemptID  string
	CustomerID string
	OrderID    string
	State      CreationState
	Detail     string
}
