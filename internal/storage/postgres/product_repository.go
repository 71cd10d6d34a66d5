package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cimillas/storefront/services/api/internal/domain"
)

type ProductRepository struct {
	querier
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) *ProductRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductRepository{querier: querier{pool: pool}, logger: logger}
}

const productColumns = `id, name, price::text, quantity, created_at, updated_at`

// FindProductsByIDs returns the products that exist among ids, in no
// particular order.
func (r *ProductRepository) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1::uuid[])`
	rows, err := r.query(ctx, query, valid)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	return collectProducts(rows)
}

func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at ASC, name ASC`
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collectProducts(rows)
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product domain.Product) error {
	const stmt = `
INSERT INTO products (id, name, price, quantity, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6)`
	_, err := r.exec(ctx, stmt,
		product.ID, product.Name, product.Price.StringFixed(2), product.Quantity,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductAlreadyExists
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// ApplyDecrements subtracts every quantity or none. Each row only changes
// while it still holds enough stock, so a competing order that drained it
// first surfaces as *domain.InsufficientStockError. Rows are updated in id
// order to keep lock acquisition consistent across concurrent batches.
func (r *ProductRepository) ApplyDecrements(ctx context.Context, updates []domain.StockDecrement) error {
	sorted := slices.Clone(updates)
	slices.SortFunc(sorted, func(a, b domain.StockDecrement) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})

	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		for _, u := range sorted {
			if err := r.decrement(txCtx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ProductRepository) decrement(ctx context.Context, u domain.StockDecrement) error {
	if !validUUID(u.ProductID) {
		return &domain.ProductNotFoundError{ProductID: u.ProductID}
	}

	const stmt = `
UPDATE products
SET quantity = quantity - $2, updated_at = NOW()
WHERE id = $1 AND quantity >= $2
RETURNING quantity`

	var remaining int
	err := r.queryRow(ctx, stmt, u.ProductID, u.Quantity).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		var available int
		err := r.queryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, u.ProductID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.ProductNotFoundError{ProductID: u.ProductID}
		}
		if err != nil {
			return fmt.Errorf("read stock %s: %w", u.ProductID, err)
		}
		return &domain.InsufficientStockError{
			ProductID: u.ProductID,
			Requested: u.Quantity,
			Available: available,
		}
	}
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", u.ProductID, err)
	}

	if remaining != u.ExpectedQuantity {
		r.logger.Debug("stock changed since validation",
			zap.String("product_id", u.ProductID),
			zap.Int("expected", u.ExpectedQuantity),
			zap.Int("remaining", remaining),
		)
	}
	return nil
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price of product %s: %w", p.ID, err)
		}
		p.Price = d
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}
	return products, nil
}
