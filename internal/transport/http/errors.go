package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/storefront/services/api/internal/domain"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidID            = "invalid_id"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidPrice         = "invalid_price"
	codeInvalidEmail         = "invalid_email"
	codeCustomerNameRequired = "customer_name_required"
	codeProductNameRequired  = "product_name_required"
	codeEmptyOrder           = "empty_order"
	codeCustomerNotFound     = "customer_not_found"
	codeProductNotFound      = "product_not_found"
	codeNoProductsFound      = "no_products_found"
	codeOrderNotFound        = "order_not_found"
	codeInsufficientStock    = "insufficient_stock"
	codeEmailAlreadyUsed     = "email_already_used"
	codeProductAlreadyExists = "product_already_exists"
	codePersistenceFailure   = "persistence_failure"
	codeForbidden            = "forbidden"
	codeUnavailable          = "unavailable"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type productErrorResponse struct {
	errorResponse
	ProductID string `json:"product_id"`
}

type insufficientStockResponse struct {
	errorResponse
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeServiceError maps service errors to a status and a stable code.
func writeServiceError(w http.ResponseWriter, err error) {
	var stockErr *domain.InsufficientStockError
	var productErr *domain.ProductNotFoundError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, insufficientStockResponse{
			errorResponse: errorResponse{Error: stockErr.Error(), Code: codeInsufficientStock},
			ProductID:     stockErr.ProductID,
			Requested:     stockErr.Requested,
			Available:     stockErr.Available,
		})
	case errors.As(err, &productErr):
		// A missing product inside a request is a defect of that request.
		writeJSON(w, http.StatusBadRequest, productErrorResponse{
			errorResponse: errorResponse{Error: productErr.Error(), Code: codeProductNotFound},
			ProductID:     productErr.ProductID,
		})
	case errors.Is(err, domain.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, codePersistenceFailure, "storage unavailable, retry later")
	default:
		status, code := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		writeError(w, status, code, msg)
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		return http.StatusNotFound, codeCustomerNotFound
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, codeOrderNotFound
	case errors.Is(err, domain.ErrNoProductsFound):
		return http.StatusBadRequest, codeNoProductsFound
	case errors.Is(err, domain.ErrEmptyOrder):
		return http.StatusBadRequest, codeEmptyOrder
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, codeInvalidQuantity
	case errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest, codeInvalidID
	case errors.Is(err, domain.ErrInvalidPrice):
		return http.StatusBadRequest, codeInvalidPrice
	case errors.Is(err, domain.ErrInvalidEmail):
		return http.StatusBadRequest, codeInvalidEmail
	case errors.Is(err, domain.ErrCustomerNameRequired):
		return http.StatusBadRequest, codeCustomerNameRequired
	case errors.Is(err, domain.ErrProductNameRequired):
		return http.StatusBadRequest, codeProductNameRequired
	case errors.Is(err, domain.ErrEmailAlreadyUsed):
		return http.StatusConflict, codeEmailAlreadyUsed
	case errors.Is(err, domain.ErrProductAlreadyExists):
		return http.StatusConflict, codeProductAlreadyExists
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}
