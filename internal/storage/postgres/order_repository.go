package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cimillas/storefront/services/api/internal/domain"
	"github.com/cimillas/storefront/services/api/internal/events"
)

type OrderRepository struct {
	querier
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{querier{pool: pool}}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// CreateOrder stores the order, one order_products row per item in request
// order, and an order.created outbox message, all in the transaction of ctx.
func (r *OrderRepository) CreateOrder(ctx context.Context, customerID string, items []domain.OrderLineItem) (domain.Order, error) {
	if !validUUID(customerID) {
		return domain.Order{}, domain.ErrCustomerNotFound
	}

	order := domain.Order{
		CustomerID: customerID,
		Items:      make([]domain.OrderLineItem, len(items)),
	}
	copy(order.Items, items)

	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		const insertOrder = `INSERT INTO orders (customer_id) VALUES ($1) RETURNING id, created_at`
		if err := r.queryRow(txCtx, insertOrder, customerID).Scan(&order.ID, &order.CreatedAt); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrCustomerNotFound
			}
			return fmt.Errorf("insert order: %w", err)
		}

		const insertLine = `
INSERT INTO order_products (order_id, product_id, position, quantity, price)
VALUES ($1, $2, $3, $4, $5::numeric)
RETURNING id`
		batch := &pgx.Batch{}
		for i, item := range order.Items {
			batch.Queue(insertLine, order.ID, item.ProductID, i, item.Quantity, item.Price.StringFixed(2)).
				QueryRow(func(row pgx.Row) error {
					return row.Scan(&order.Items[i].ID)
				})
		}
		if err := r.sendBatch(txCtx, batch).Close(); err != nil {
			return fmt.Errorf("insert order lines: %w", err)
		}

		payload, err := events.NewOrderCreated(order).Encode()
		if err != nil {
			return fmt.Errorf("encode order event: %w", err)
		}
		const insertOutbox = `
INSERT INTO outbox (aggregate_id, event_type, payload)
VALUES ($1, $2, $3)`
		if _, err := r.exec(txCtx, insertOutbox, order.ID, events.TypeOrderCreated, payload); err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if !validUUID(id) {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	const query = `SELECT id, customer_id, created_at FROM orders WHERE id = $1`
	var o domain.Order
	if err := r.queryRow(ctx, query, id).Scan(&o.ID, &o.CustomerID, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	const linesQuery = `
SELECT id, product_id, quantity, price::text
FROM order_products
WHERE order_id = $1
ORDER BY position ASC`
	rows, err := r.query(ctx, linesQuery, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderLineItem
		var price string
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &price); err != nil {
			return domain.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return domain.Order{}, fmt.Errorf("parse price of line %s: %w", item.ID, err)
		}
		o.Items = append(o.Items, item)
	}
	if rows.Err() != nil {
		return domain.Order{}, fmt.Errorf("iterate order lines: %w", rows.Err())
	}
	return o, nil
}
