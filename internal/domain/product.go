package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is owned by the catalog. Quantity is the stock currently available.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockDecrement is one entry of the batch applied after an order is stored.
// ExpectedQuantity is what the validation snapshot predicts will remain; the
// store applies Quantity conditionally and may observe a different remainder
// when other orders for the same product committed in between.
type StockDecrement struct {
	ProductID        string
	Quantity         int
	ExpectedQuantity int
}
