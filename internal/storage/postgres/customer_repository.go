package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/storefront/services/api/internal/domain"
)

type CustomerRepository struct {
	querier
}

func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{querier{pool: pool}}
}

// FindCustomerByID returns nil, nil when no customer has the id.
func (r *CustomerRepository) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	if !validUUID(id) {
		return nil, nil
	}

	const query = `SELECT id, name, email, created_at FROM customers WHERE id = $1`
	var c domain.Customer
	err := r.queryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &c, nil
}

func (r *CustomerRepository) CreateCustomer(ctx context.Context, customer domain.Customer) error {
	const stmt = `
INSERT INTO customers (id, name, email, created_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.exec(ctx, stmt, customer.ID, customer.Name, customer.Email, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailAlreadyUsed
		}
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}
