package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLineRequest is a transient (product, quantity) pair from the caller.
type OrderLineRequest struct {
	ProductID string
	Quantity  int
}

// OrderLineItem carries the unit price observed when the order was validated.
type OrderLineItem struct {
	ID        string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

func (i OrderLineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is created once per successful checkout and never mutated afterwards.
type Order struct {
	ID         string
	CustomerID string
	Items      []OrderLineItem
	CreatedAt  time.Time
}

func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}
