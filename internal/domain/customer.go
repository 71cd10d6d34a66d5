package domain

import "time"

// Customer is read-only for order creation; only its existence matters there.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}
