package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cimillas/storefront/services/api/internal/app"
	"github.com/cimillas/storefront/services/api/internal/domain"
	"github.com/cimillas/storefront/services/api/internal/orderlog"
)

// OrderCreator is the minimal interface needed to create an order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
}

// OrderFinder is the minimal interface needed to read an order.
type OrderFinder interface {
	FindOrder(ctx context.Context, id string) (domain.Order, error)
}

// OrderService serves the order routes.
type OrderService interface {
	OrderCreator
	OrderFinder
}

// OrderHistory reads the creation trail of an order.
type OrderHistory interface {
	AttemptForOrder(ctx context.Context, orderID string) (string, error)
	List(ctx context.Context, attemptID string) ([]orderlog.Entry, error)
}

// HandleCreateOrder returns an HTTP handler for creating orders.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.CustomerID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "customer_id is required")
			return
		}

		lines := make([]domain.OrderLineRequest, 0, len(req.Products))
		for _, p := range req.Products {
			lines = append(lines, domain.OrderLineRequest{ProductID: p.ID, Quantity: p.Quantity})
		}

		order, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			CustomerID: req.CustomerID,
			Lines:      lines,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newOrderResponse(order))
	}
}

// HandleGetOrder returns an HTTP handler for GET /orders/{id}.
func HandleGetOrder(svc OrderFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.FindOrder(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

// HandleGetOrderHistory returns the recorded creation states of an order.
func HandleGetOrderHistory(history OrderHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "id")
		attemptID, err := history.AttemptForOrder(r.Context(), orderID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		if attemptID == "" {
			writeError(w, http.StatusNotFound, codeOrderNotFound, domain.ErrOrderNotFound.Error())
			return
		}
		entries, err := history.List(r.Context(), attemptID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := make([]historyEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, historyEntryResponse{
				AttemptID:  e.AttemptID,
				State:      string(e.State),
				Detail:     e.Detail,
				TraceID:    e.TraceID,
				RecordedAt: e.RecordedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type createOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	Products   []orderLineRequest `json:"products"`
}

type orderLineRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type orderResponse struct {
	ID         string              `json:"id"`
	CustomerID string              `json:"customer_id"`
	Items      []orderItemResponse `json:"items"`
	Total      string              `json:"total"`
	CreatedAt  time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type historyEntryResponse struct {
	AttemptID  string    `json:"attempt_id"`
	State      string    `json:"state"`
	Detail     string    `json:"detail,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func newOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		})
	}
	return orderResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Items:      items,
		Total:      order.Total().StringFixed(2),
		CreatedAt:  order.CreatedAt,
	}
}
