package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimillas/storefront/services/api/internal/app"
	"github.com/cimillas/storefront/services/api/internal/domain"
)

// CustomerCreator is the minimal interface needed to register customers.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, in app.CreateCustomerInput) (domain.Customer, error)
}

// ProductCatalogService is the minimal interface needed for product endpoints.
type ProductCatalogService interface {
	CreateProduct(ctx context.Context, in app.CreateProductInput) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// HandleCreateCustomer returns an HTTP handler for POST /customers.
func HandleCreateCustomer(svc CustomerCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCustomerRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		customer, err := svc.CreateCustomer(r.Context(), app.CreateCustomerInput{
			Name:  req.Name,
			Email: req.Email,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, customerResponse{
			ID:        customer.ID,
			Name:      customer.Name,
			Email:     customer.Email,
			CreatedAt: customer.CreatedAt,
		})
	}
}

// HandleCreateProduct returns an HTTP handler for POST /products.
func HandleCreateProduct(svc ProductCatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProductRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Price == nil {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "price is required")
			return
		}

		product, err := svc.CreateProduct(r.Context(), app.CreateProductInput{
			Name:     req.Name,
			Price:    *req.Price,
			Quantity: req.Quantity,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newProductResponse(product))
	}
}

// HandleListProducts returns an HTTP handler for GET /products.
func HandleListProducts(svc ProductCatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := svc.ListProducts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		resp := make([]productResponse, 0, len(products))
		for _, p := range products {
			resp = append(resp, newProductResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type createCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type customerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type createProductRequest struct {
	Name string `json:"name"`
	// Accepts a JSON number or a decimal string.
	Price    *decimal.Decimal `json:"price"`
	Quantity int              `json:"quantity"`
}

type productResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.StringFixed(2),
		Quantity:  p.Quantity,
		CreatedAt: p.CreatedAt,
	}
}
