package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cimillas/storefront/services/api/internal/domain"
	"github.com/cimillas/storefront/services/api/internal/telemetry"
)

var tracer = otel.Tracer("github.com/cimillas/storefront/services/api/internal/app")

// CustomerLookup resolves a customer. A nil customer with a nil error means absent.
type CustomerLookup interface {
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
}

// ProductCatalog returns current product snapshots and applies stock decrements.
// FindProductsByIDs may return fewer products than requested.
// ApplyDecrements must be conditional: it fails with *domain.InsufficientStockError
// instead of driving any quantity below zero.
type ProductCatalog interface {
	FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	ApplyDecrements(ctx context.Context, updates []domain.StockDecrement) error
}

// OrderStore persists orders. WithTx must give CreateOrder and the catalog's
// ApplyDecrements one atomic unit when both receive the ctx passed to fn.
type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, customerID string, items []domain.OrderLineItem) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
}

// CreationRecorder receives every state transition of a creation attempt.
type CreationRecorder interface {
	Record(ctx context.Context, ev domain.CreationEvent) error
}

type OrderService struct {
	customers CustomerLookup
	catalog   ProductCatalog
	orders    OrderStore
	recorder  CreationRecorder
	logger    *zap.Logger
}

type OrderServiceOption func(*OrderService)

// WithCreationRecorder sets where creation state transitions are appended.
func WithCreationRecorder(r CreationRecorder) OrderServiceOption {
	return func(s *OrderService) {
		s.recorder = r
	}
}

// WithLogger overrides the no-op default logger.
func WithLogger(l *zap.Logger) OrderServiceOption {
	return func(s *OrderService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewOrderService(customers CustomerLookup, catalog ProductCatalog, orders OrderStore, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		customers: customers,
		catalog:   catalog,
		orders:    orders,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateOrderInput struct {
	CustomerID string
	Lines      []domain.OrderLineRequest
}

// CreateOrder validates the request against a single catalog snapshot, stores
// the order and decrements stock for every ordered product. Nothing is
// written unless every check passes, and the order and decrements commit
// together or not at all.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", in.CustomerID),
		attribute.Int("order.lines", len(in.Lines)),
	))
	defer span.End()

	attempt := &creationAttempt{
		id:         newID(),
		customerID: in.CustomerID,
		recorder:   s.recorder,
		logger:     s.logger,
	}
	attempt.enter(ctx, domain.CreationValidating, "")

	lines, snapshot, err := s.validate(ctx, in)
	if err != nil {
		state := domain.CreationRejected
		if errors.Is(err, domain.ErrPersistence) {
			state = domain.CreationFailed
		}
		attempt.enter(ctx, state, err.Error())
		s.logger.Debug("order not validated", append(telemetry.TraceFields(ctx),
			zap.String("customer_id", in.CustomerID),
			zap.Error(err),
		)...)
		return domain.Order{}, spanError(span, err)
	}

	attempt.enter(ctx, domain.CreationPricing, "")
	items := priceLines(lines, snapshot)

	attempt.enter(ctx, domain.CreationPersisting, "")
	var order domain.Order
	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		stored, err := s.orders.CreateOrder(txCtx, in.CustomerID, items)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		attempt.enter(ctx, domain.CreationDecrementing, "")

		updates, err := decrementsFor(stored.Items, snapshot)
		if err != nil {
			return err
		}
		if err := s.catalog.ApplyDecrements(txCtx, updates); err != nil {
			return fmt.Errorf("apply decrements: %w", err)
		}
		order = stored
		return nil
	})
	if err != nil {
		err = persistenceFailure(err)
		attempt.enter(ctx, domain.CreationFailed, err.Error())
		s.logger.Error("order creation failed", append(telemetry.TraceFields(ctx),
			zap.String("customer_id", in.CustomerID),
			zap.String("attempt_id", attempt.id),
			zap.Error(err),
		)...)
		return domain.Order{}, spanError(span, err)
	}

	// The order id only exists once the transaction committed.
	attempt.orderID = order.ID
	attempt.enter(ctx, domain.CreationCommitted, "")
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.Info("order created", append(telemetry.TraceFields(ctx),
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total().StringFixed(2)),
	)...)
	return order, nil
}

// FindOrder returns a stored order with its line items.
func (s *OrderService) FindOrder(ctx context.Context, id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	return s.orders.GetOrder(ctx, id)
}

// validate runs the read-only steps and returns the accepted lines together
// with the product snapshot, keyed by id, that pricing and decrements use.
func (s *OrderService) validate(ctx context.Context, in CreateOrderInput) ([]domain.OrderLineRequest, map[string]domain.Product, error) {
	customer, err := s.customers.FindCustomerByID(ctx, in.CustomerID)
	if err != nil {
		return nil, nil, persistenceFailure(fmt.Errorf("find customer: %w", err))
	}
	if customer == nil {
		return nil, nil, domain.ErrCustomerNotFound
	}

	lines := make([]domain.OrderLineRequest, 0, len(in.Lines))
	for _, line := range in.Lines {
		if line.ProductID == "" {
			return nil, nil, domain.ErrInvalidID
		}
		if line.Quantity < 0 {
			return nil, nil, domain.ErrInvalidQuantity
		}
		if line.Quantity == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, nil, domain.ErrEmptyOrder
	}

	products, err := s.catalog.FindProductsByIDs(ctx, distinctProductIDs(lines))
	if err != nil {
		return nil, nil, persistenceFailure(fmt.Errorf("find products: %w", err))
	}
	if len(products) == 0 {
		return nil, nil, domain.ErrNoProductsFound
	}

	snapshot := make(map[string]domain.Product, len(products))
	for _, p := range products {
		snapshot[p.ID] = p
	}

	for _, line := range lines {
		if _, ok := snapshot[line.ProductID]; !ok {
			return nil, nil, &domain.ProductNotFoundError{ProductID: line.ProductID}
		}
	}

	// Repeated product ids draw from the same stock, so compare running totals.
	requested := make(map[string]int, len(snapshot))
	for _, line := range lines {
		requested[line.ProductID] += line.Quantity
		if available := snapshot[line.ProductID].Quantity; requested[line.ProductID] > available {
			return nil, nil, &domain.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: requested[line.ProductID],
				Available: available,
			}
		}
	}

	return lines, snapshot, nil
}

func distinctProductIDs(lines []domain.OrderLineRequest) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

func priceLines(lines []domain.OrderLineRequest, snapshot map[string]domain.Product) []domain.OrderLineItem {
	items := make([]domain.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.OrderLineItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     snapshot[line.ProductID].Price,
		})
	}
	return items
}

// decrementsFor builds one decrement per product from the stored line items,
// in first-appearance order.
func decrementsFor(items []domain.OrderLineItem, snapshot map[string]domain.Product) ([]domain.StockDecrement, error) {
	totals := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := snapshot[item.ProductID]; !ok {
			return nil, fmt.Errorf("stored line references unvalidated product %s", item.ProductID)
		}
		if _, ok := totals[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		totals[item.ProductID] += item.Quantity
	}

	updates := make([]domain.StockDecrement, 0, len(order))
	for _, id := range order {
		updates = append(updates, domain.StockDecrement{
			ProductID:        id,
			Quantity:         totals[id],
			ExpectedQuantity: snapshot[id].Quantity - totals[id],
		})
	}
	return updates, nil
}

// persistenceFailure tags collaborator errors with domain.ErrPersistence.
// A stock conflict detected at write time keeps its own kind.
func persistenceFailure(err error) error {
	if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type creationAttempt struct {
	id         string
	customerID string
	orderID    string
	recorder   CreationRecorder
	logger     *zap.Logger
}

func (a *creationAttempt) enter(ctx context.Context, state domain.CreationState, detail string) {
	trace.SpanFromContext(ctx).AddEvent(string(state))
	if a.recorder == nil {
		return
	}
	err := a.recorder.Record(ctx, domain.CreationEvent{
		AttemptID:  a.id,
		CustomerID: a.customerID,
		OrderID:    a.orderID,
		State:      state,
		Detail:     detail,
	})
	if err != nil {
		a.logger.Warn("record creation state",
			zap.String("attempt_id", a.id),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}
