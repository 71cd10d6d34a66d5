package app

import (
	"context"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cimillas/storefront/services/api/internal/clock"
	"github.com/cimillas/storefront/services/api/internal/domain"
)

type CatalogRepository interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) error
	CreateProduct(ctx context.Context, product domain.Product) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// CatalogService registers the customers and products orders refer to.
type CatalogService struct {
	repo  CatalogRepository
	clock clock.Clock
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock) *CatalogService {
	return &CatalogService{
		repo:  repo,
		clock: clk,
	}
}

type CreateCustomerInput struct {
	Name  string
	Email string
}

func (s *CatalogService) CreateCustomer(ctx context.Context, in CreateCustomerInput) (domain.Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrCustomerNameRequired
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	customer := domain.Customer{
		ID:        newID(),
		Name:      name,
		Email:     strings.ToLower(addr.Address),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

type CreateProductInput struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Product{}, domain.ErrProductNameRequired
	}
	if in.Price.IsNegative() {
		return domain.Product{}, domain.ErrInvalidPrice
	}
	if in.Quantity < 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	product := domain.Product{
		ID:        newID(),
		Name:      name,
		Price:     in.Price.Round(2),
		Quantity:  in.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}
