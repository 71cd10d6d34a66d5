package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimillas/storefront/services/api/internal/domain"
)

func TestOrderService_CreateOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates order and decrements stock", func(t *testing.T) {
		customers := newFakeCustomers("c1")
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		store := newFakeOrderStore()
		svc := NewOrderService(customers, catalog, store)

		order, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if order.ID == "" {
			t.Fatalf("expected order ID to be set")
		}
		if order.CustomerID != "c1" {
			t.Fatalf("expected customer c1, got %s", order.CustomerID)
		}
		if len(order.Items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(order.Items))
		}
		item := order.Items[0]
		if item.ProductID != "p1" || item.Quantity != 3 || !item.Price.Equal(decimal.RequireFromString("10.00")) {
			t.Fatalf("unexpected item: %+v", item)
		}
		if got := catalog.quantity("p1"); got != 2 {
			t.Fatalf("expected p1 quantity 2, got %d", got)
		}
		if len(catalog.batches) != 1 {
			t.Fatalf("expected exactly one decrement batch, got %d", len(catalog.batches))
		}
		want := domain.StockDecrement{ProductID: "p1", Quantity: 3, ExpectedQuantity: 2}
		if catalog.batches[0][0] != want {
			t.Fatalf("expected decrement %+v, got %+v", want, catalog.batches[0][0])
		}
		if _, ok := store.orders[order.ID]; !ok {
			t.Fatalf("expected order persisted")
		}
	})

	t.Run("line items mirror the request", func(t *testing.T) {
		catalog := newFakeCatalog(
			product("p1", "10.00", 5),
			product("p2", "2.50", 10),
			product("p3", "99.99", 1),
		)
		svc := NewOrderService(newFakeCustomers("c1"), catalog, newFakeOrderStore())

		lines := []domain.OrderLineRequest{
			{ProductID: "p2", Quantity: 4},
			{ProductID: "p3", Quantity: 1},
			{ProductID: "p1", Quantity: 5},
		}
		order, err := svc.CreateOrder(ctx, CreateOrderInput{CustomerID: "c1", Lines: lines})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(order.Items) != len(lines) {
			t.Fatalf("expected %d items, got %d", len(lines), len(order.Items))
		}
		for i, line := range lines {
			if order.Items[i].ProductID != line.ProductID || order.Items[i].Quantity != line.Quantity {
				t.Fatalf("item %d: expected %+v, got %+v", i, line, order.Items[i])
			}
		}
		if !order.Total().Equal(decimal.RequireFromString("159.99")) {
			t.Fatalf("expected total 159.99, got %s", order.Total())
		}
		for id, want := range map[string]int{"p1": 0, "p2": 6, "p3": 0} {
			if got := catalog.quantity(id); got != want {
				t.Fatalf("expected %s quantity %d, got %d", id, want, got)
			}
		}
	})

	t.Run("missing customer returns error", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers(), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "ghost",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		if err != domain.ErrCustomerNotFound {
			t.Fatalf("expected ErrCustomerNotFound, got %v", err)
		}
		if catalog.findCalls != 0 {
			t.Fatalf("expected no catalog lookups, got %d", catalog.findCalls)
		}
		assertNoWrites(t, catalog, store)
	})

	t.Run("empty request returns error", func(t *testing.T) {
		for name, lines := range map[string][]domain.OrderLineRequest{
			"nil lines":      nil,
			"zero quantites": {{ProductID: "p1", Quantity: 0}, {ProductID: "p2", Quantity: 0}},
		} {
			catalog := newFakeCatalog(product("p1", "10.00", 5))
			store := newFakeOrderStore()
			svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

			_, err := svc.CreateOrder(ctx, CreateOrderInput{CustomerID: "c1", Lines: lines})
			if err != domain.ErrEmptyOrder {
				t.Fatalf("%s: expected ErrEmptyOrder, got %v", name, err)
			}
			assertNoWrites(t, catalog, store)
		}
	})

	t.Run("zero quantity lines are dropped", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		svc := NewOrderService(newFakeCustomers("c1"), catalog, newFakeOrderStore())

		order, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines: []domain.OrderLineRequest{
				{ProductID: "p1", Quantity: 2},
				{ProductID: "p9", Quantity: 0},
			},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(order.Items) != 1 || order.Items[0].ProductID != "p1" {
			t.Fatalf("unexpected items: %+v", order.Items)
		}
	})

	t.Run("negative quantity returns error", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: -1}},
		})
		if err != domain.ErrInvalidQuantity {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
		assertNoWrites(t, catalog, store)
	})

	t.Run("blank product id returns error", func(t *testing.T) {
		svc := NewOrderService(newFakeCustomers("c1"), newFakeCatalog(), newFakeOrderStore())

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "", Quantity: 1}},
		})
		if err != domain.ErrInvalidID {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})

	t.Run("catalog returning nothing returns error", func(t *testing.T) {
		catalog := newFakeCatalog()
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		if err != domain.ErrNoProductsFound {
			t.Fatalf("expected ErrNoProductsFound, got %v", err)
		}
		assertNoWrites(t, catalog, store)
	})

	t.Run("reports first missing product in request order", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines: []domain.OrderLineRequest{
				{ProductID: "p1", Quantity: 1},
				{ProductID: "missing-b", Quantity: 1},
				{ProductID: "missing-a", Quantity: 1},
			},
		})
		var notFound *domain.ProductNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected ProductNotFoundError, got %v", err)
		}
		if notFound.ProductID != "missing-b" {
			t.Fatalf("expected missing-b, got %s", notFound.ProductID)
		}
		if !errors.Is(err, domain.ErrProductNotFound) {
			t.Fatalf("expected error to match ErrProductNotFound")
		}
		assertNoWrites(t, catalog, store)
	})

	t.Run("insufficient stock leaves catalog untouched", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 2))
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 5}},
		})
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		want := domain.InsufficientStockError{ProductID: "p1", Requested: 5, Available: 2}
		if *stockErr != want {
			t.Fatalf("expected %+v, got %+v", want, *stockErr)
		}
		if got := catalog.quantity("p1"); got != 2 {
			t.Fatalf("expected p1 quantity 2, got %d", got)
		}
		assertNoWrites(t, catalog, store)
	})

	t.Run("reports first understocked line in request order", func(t *testing.T) {
		catalog := newFakeCatalog(
			product("p1", "1.00", 5),
			product("p2", "1.00", 1),
			product("p3", "1.00", 0),
		)
		svc := NewOrderService(newFakeCustomers("c1"), catalog, newFakeOrderStore())

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines: []domain.OrderLineRequest{
				{ProductID: "p1", Quantity: 5},
				{ProductID: "p3", Quantity: 1},
				{ProductID: "p2", Quantity: 2},
			},
		})
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if stockErr.ProductID != "p3" {
			t.Fatalf("expected p3, got %s", stockErr.ProductID)
		}
	})

	t.Run("repeated product lines share one stock", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "1.00", 3))
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines: []domain.OrderLineRequest{
				{ProductID: "p1", Quantity: 2},
				{ProductID: "p1", Quantity: 2},
			},
		})
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if stockErr.Requested != 4 || stockErr.Available != 3 {
			t.Fatalf("unexpected error detail: %+v", *stockErr)
		}
		assertNoWrites(t, catalog, store)
	})

	t.Run("repeated product lines produce one decrement", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "1.00", 5))
		svc := NewOrderService(newFakeCustomers("c1"), catalog, newFakeOrderStore())

		order, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines: []domain.OrderLineRequest{
				{ProductID: "p1", Quantity: 2},
				{ProductID: "p1", Quantity: 1},
			},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(order.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(order.Items))
		}
		want := []domain.StockDecrement{{ProductID: "p1", Quantity: 3, ExpectedQuantity: 2}}
		if len(catalog.batches) != 1 || len(catalog.batches[0]) != 1 || catalog.batches[0][0] != want[0] {
			t.Fatalf("expected decrements %+v, got %+v", want, catalog.batches)
		}
		if got := catalog.quantity("p1"); got != 2 {
			t.Fatalf("expected p1 quantity 2, got %d", got)
		}
	})

	t.Run("failed requests never mutate the catalog", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 1))
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		in := CreateOrderInput{
			CustomerID: "c1",
			Lines: []domain.OrderLineRequest{
				{ProductID: "p1", Quantity: 2},
				{ProductID: "nope", Quantity: 1},
			},
		}
		for i := 0; i < 2; i++ {
			if _, err := svc.CreateOrder(ctx, in); err == nil {
				t.Fatalf("call %d: expected error", i+1)
			}
			if got := catalog.quantity("p1"); got != 1 {
				t.Fatalf("call %d: expected p1 quantity 1, got %d", i+1, got)
			}
		}
		assertNoWrites(t, catalog, store)
	})

	t.Run("price is taken from the validation snapshot", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		svc := NewOrderService(newFakeCustomers("c1"), catalog, newFakeOrderStore())

		order, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		catalog.setPrice("p1", "12.00")

		if !order.Items[0].Price.Equal(decimal.RequireFromString("10.00")) {
			t.Fatalf("expected price 10.00, got %s", order.Items[0].Price)
		}
	})

	t.Run("customer lookup failure is a persistence failure", func(t *testing.T) {
		customers := newFakeCustomers("c1")
		customers.err = errors.New("connection reset")
		svc := NewOrderService(customers, newFakeCatalog(product("p1", "1.00", 1)), newFakeOrderStore())

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
	})

	t.Run("store failure skips decrements", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		store := newFakeOrderStore()
		store.createErr = errors.New("disk full")
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if len(catalog.batches) != 0 {
			t.Fatalf("expected no decrements")
		}
		if got := catalog.quantity("p1"); got != 5 {
			t.Fatalf("expected p1 quantity 5, got %d", got)
		}
	})

	t.Run("decrement failure rolls the order back", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		catalog.decrementErr = errors.New("deadlock detected")
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if len(store.orders) != 0 {
			t.Fatalf("expected no committed orders, got %d", len(store.orders))
		}
	})

	t.Run("stock drained at write time keeps its kind", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 5))
		catalog.beforeDecrement = func() { catalog.products["p1"] = product("p1", "10.00", 1) }
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 3}},
		})
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected stock conflict not to be tagged as persistence failure")
		}
		if stockErr.Available != 1 {
			t.Fatalf("expected available 1 at write time, got %d", stockErr.Available)
		}
		if len(store.orders) != 0 {
			t.Fatalf("expected no committed orders, got %d", len(store.orders))
		}
	})
}

func TestOrderService_CreateOrder_Concurrent(t *testing.T) {
	t.Parallel()

	t.Run("two orders over half the stock", func(t *testing.T) {
		catalog := newFakeCatalog(product("p1", "10.00", 10))
		catalog.holdReads = 2
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1", "c2"), catalog, store)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, customer := range []string{"c1", "c2"} {
			wg.Add(1)
			go func(i int, customer string) {
				defer wg.Done()
				_, errs[i] = svc.CreateOrder(context.Background(), CreateOrderInput{
					CustomerID: customer,
					Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 6}},
				})
			}(i, customer)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expected exactly one order to succeed, got %d", succeeded)
		}
		if got := catalog.quantity("p1"); got != 4 {
			t.Fatalf("expected p1 quantity 4, got %d", got)
		}
		if len(store.orders) != 1 {
			t.Fatalf("expected 1 committed order, got %d", len(store.orders))
		}
	})

	t.Run("many small orders never oversell", func(t *testing.T) {
		const stock = 5
		const buyers = 20
		catalog := newFakeCatalog(product("p1", "1.00", stock))
		store := newFakeOrderStore()
		svc := NewOrderService(newFakeCustomers("c1"), catalog, store)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
					CustomerID: "c1",
					Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				if !errors.Is(err, domain.ErrInsufficientStock) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if succeeded != stock {
			t.Fatalf("expected %d orders, got %d", stock, succeeded)
		}
		if got := catalog.quantity("p1"); got != 0 {
			t.Fatalf("expected p1 quantity 0, got %d", got)
		}
		if len(store.orders) != stock {
			t.Fatalf("expected %d committed orders, got %d", stock, len(store.orders))
		}
	})
}

func TestOrderService_CreationStates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("committed order walks every state", func(t *testing.T) {
		rec := &fakeRecorder{}
		svc := NewOrderService(newFakeCustomers("c1"), newFakeCatalog(product("p1", "1.00", 1)), newFakeOrderStore(),
			WithCreationRecorder(rec))

		order, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := []domain.CreationState{
			domain.CreationValidating,
			domain.CreationPricing,
			domain.CreationPersisting,
			domain.CreationDecrementing,
			domain.CreationCommitted,
		}
		rec.assertStates(t, want)
		last := rec.events[len(rec.events)-1]
		if last.OrderID != order.ID {
			t.Fatalf("expected committed event for order %s, got %q", order.ID, last.OrderID)
		}
		attempt := rec.events[0].AttemptID
		for _, ev := range rec.events {
			if ev.AttemptID != attempt {
				t.Fatalf("expected one attempt id, got %s and %s", attempt, ev.AttemptID)
			}
		}
	})

	t.Run("validation failure is rejected", func(t *testing.T) {
		rec := &fakeRecorder{}
		svc := NewOrderService(newFakeCustomers(), newFakeCatalog(), newFakeOrderStore(), WithCreationRecorder(rec))

		_, _ = svc.CreateOrder(ctx, CreateOrderInput{CustomerID: "ghost"})

		rec.assertStates(t, []domain.CreationState{domain.CreationValidating, domain.CreationRejected})
		if rec.events[1].Detail != domain.ErrCustomerNotFound.Error() {
			t.Fatalf("expected rejection detail, got %q", rec.events[1].Detail)
		}
	})

	t.Run("store failure is failed", func(t *testing.T) {
		rec := &fakeRecorder{}
		store := newFakeOrderStore()
		store.createErr = errors.New("boom")
		svc := NewOrderService(newFakeCustomers("c1"), newFakeCatalog(product("p1", "1.00", 1)), store,
			WithCreationRecorder(rec))

		_, _ = svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		})

		rec.assertStates(t, []domain.CreationState{
			domain.CreationValidating,
			domain.CreationPricing,
			domain.CreationPersisting,
			domain.CreationFailed,
		})
	})

	t.Run("rolled back order leaves no order id in the trail", func(t *testing.T) {
		rec := &fakeRecorder{}
		catalog := newFakeCatalog(product("p1", "1.00", 1))
		catalog.decrementErr = errors.New("deadlock detected")
		svc := NewOrderService(newFakeCustomers("c1"), catalog, newFakeOrderStore(), WithCreationRecorder(rec))

		if _, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		}); err == nil {
			t.Fatalf("expected error")
		}

		rec.assertStates(t, []domain.CreationState{
			domain.CreationValidating,
			domain.CreationPricing,
			domain.CreationPersisting,
			domain.CreationDecrementing,
			domain.CreationFailed,
		})
		for _, ev := range rec.events {
			if ev.OrderID != "" {
				t.Fatalf("expected no order id for %s, got %q", ev.State, ev.OrderID)
			}
		}
	})

	t.Run("recorder errors do not fail the order", func(t *testing.T) {
		rec := &fakeRecorder{err: errors.New("log offline")}
		svc := NewOrderService(newFakeCustomers("c1"), newFakeCatalog(product("p1", "1.00", 1)), newFakeOrderStore(),
			WithCreationRecorder(rec))

		if _, err := svc.CreateOrder(ctx, CreateOrderInput{
			CustomerID: "c1",
			Lines:      []domain.OrderLineRequest{{ProductID: "p1", Quantity: 1}},
		}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestOrderService_FindOrder(t *testing.T) {
	t.Parallel()

	store := newFakeOrderStore()
	store.orders["order-1"] = domain.Order{ID: "order-1", CustomerID: "c1"}
	svc := NewOrderService(newFakeCustomers(), newFakeCatalog(), store)

	order, err := svc.FindOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if order.CustomerID != "c1" {
		t.Fatalf("expected customer c1, got %s", order.CustomerID)
	}

	if _, err := svc.FindOrder(context.Background(), "order-2"); err != domain.ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.FindOrder(context.Background(), ""); err != domain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func product(id, price string, qty int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "product " + id,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func assertNoWrites(t *testing.T, catalog *fakeCatalog, store *fakeOrderStore) {
	t.Helper()
	if store.createCalls != 0 {
		t.Fatalf("expected no order writes, got %d", store.createCalls)
	}
	if len(catalog.batches) != 0 {
		t.Fatalf("expected no decrements, got %d", len(catalog.batches))
	}
}

type fakeCustomers struct {
	customers map[string]domain.Customer
	err       error
}

func newFakeCustomers(ids ...string) *fakeCustomers {
	f := &fakeCustomers{customers: make(map[string]domain.Customer)}
	for _, id := range ids {
		f.customers[id] = domain.Customer{ID: id, Name: "customer " + id}
	}
	return f
}

func (f *fakeCustomers) FindCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type fakeCatalog struct {
	mu              sync.Mutex
	products        map[string]domain.Product
	findCalls       int
	batches         [][]domain.StockDecrement
	decrementErr    error
	beforeDecrement func()

	// holdReads makes the first n lookups wait for each other so that
	// concurrent orders validate against the same snapshot.
	holdReads int
	readGate  sync.WaitGroup
	gateOnce  sync.Once
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	f := &fakeCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCatalog) FindProductsByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	f.gateOnce.Do(func() { f.readGate.Add(f.holdReads) })

	f.mu.Lock()
	f.findCalls++
	held := f.findCalls <= f.holdReads
	var out []domain.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	f.mu.Unlock()

	if held {
		f.readGate.Done()
		waitTimeout(&f.readGate, time.Second)
	}
	return out, nil
}

func (f *fakeCatalog) ApplyDecrements(_ context.Context, updates []domain.StockDecrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.beforeDecrement != nil {
		f.beforeDecrement()
	}
	if f.decrementErr != nil {
		return f.decrementErr
	}
	for _, u := range updates {
		p := f.products[u.ProductID]
		if p.Quantity < u.Quantity {
			return &domain.InsufficientStockError{ProductID: u.ProductID, Requested: u.Quantity, Available: p.Quantity}
		}
	}
	for _, u := range updates {
		p := f.products[u.ProductID]
		p.Quantity -= u.Quantity
		f.products[u.ProductID] = p
	}
	f.batches = append(f.batches, updates)
	return nil
}

func (f *fakeCatalog) quantity(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Quantity
}

func (f *fakeCatalog) setPrice(id, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.Price = decimal.RequireFromString(price)
	f.products[id] = p
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

type fakeTxKey struct{}

type fakeOrderStore struct {
	mu          sync.Mutex
	orders      map[string]domain.Order
	createCalls int
	createErr   error
	seq         int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]domain.Order)}
}

// WithTx buffers orders created inside fn and commits them only if fn succeeds.
func (f *fakeOrderStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var pending []domain.Order
	if err := fn(context.WithValue(ctx, fakeTxKey{}, &pending)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range pending {
		f.orders[o.ID] = o
	}
	return nil
}

func (f *fakeOrderStore) CreateOrder(ctx context.Context, customerID string, items []domain.OrderLineItem) (domain.Order, error) {
	f.mu.Lock()
	f.createCalls++
	if f.createErr != nil {
		f.mu.Unlock()
		return domain.Order{}, f.createErr
	}
	f.seq++
	order := domain.Order{
		ID:         fmt.Sprintf("order-%d", f.seq),
		CustomerID: customerID,
		CreatedAt:  time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	for i, item := range items {
		item.ID = fmt.Sprintf("%s-line-%d", order.ID, i+1)
		order.Items = append(order.Items, item)
	}
	f.mu.Unlock()

	pending, ok := ctx.Value(fakeTxKey{}).(*[]domain.Order)
	if !ok {
		f.mu.Lock()
		f.orders[order.ID] = order
		f.mu.Unlock()
		return order, nil
	}
	*pending = append(*pending, order)
	return order, nil
}

func (f *fakeOrderStore) GetOrder(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []domain.CreationEvent
	err    error
}

func (r *fakeRecorder) Record(_ context.Context, ev domain.CreationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *fakeRecorder) assertStates(t *testing.T, want []domain.CreationState) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) != len(want) {
		t.Fatalf("expected %d states, got %d: %+v", len(want), len(r.events), r.events)
	}
	for i, state := range want {
		if r.events[i].State != state {
			t.Fatalf("state %d: expected %s, got %s", i, state, r.events[i].State)
		}
	}
}
