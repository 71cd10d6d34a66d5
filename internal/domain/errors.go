package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrEmptyOrder           = errors.New("order has no products")
	ErrNoProductsFound      = errors.New("no products found")
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrPersistence          = errors.New("persistence failure")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidID            = errors.New("invalid id")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrCustomerNameRequired = errors.New("customer name required")
	ErrProductNameRequired  = errors.New("product name required")
	ErrEmailAlreadyUsed     = errors.New("email already used")
	ErrProductAlreadyExists = errors.New("product already exists")
	ErrOrderNotFound        = errors.New("order not found")
)

// ProductNotFoundError names the first requested product the catalog could not resolve.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("could not find product %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// InsufficientStockError is returned both by validation and by the conditional
// decrement when a competing order drained the stock first.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
