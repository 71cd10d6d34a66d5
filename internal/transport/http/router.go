package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Services groups what the router dispatches to. History is optional; the
// history route is not mounted when it is nil. Health is pinged by /health.
type Services struct {
	Orders    OrderService
	Customers CustomerCreator
	Products  ProductCatalogService
	History   OrderHistory
	Health    []Pinger
}

// NewRouter builds the API handler. Every route gets a request id, panic
// recovery, a server span, an access log line and CORS.
func NewRouter(svc Services, corsOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return RequestLogger(next, logger)
	})
	r.Use(CORS(corsOrigins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", HandleHealth(svc.Health...))

	r.Post("/customers", traced("POST /customers", HandleCreateCustomer(svc.Customers)))
	r.Post("/products", traced("POST /products", HandleCreateProduct(svc.Products)))
	r.Get("/products", traced("GET /products", HandleListProducts(svc.Products)))

	r.Post("/orders", traced("POST /orders", HandleCreateOrder(svc.Orders)))
	r.Get("/orders/{id}", traced("GET /orders/{id}", HandleGetOrder(svc.Orders)))
	if svc.History != nil {
		r.Get("/orders/{id}/history", traced("GET /orders/{id}/history", HandleGetOrderHistory(svc.History)))
	}

	// The server span must exist before RequestLogger reads it.
	return otelhttp.NewHandler(r, "storefront-api")
}

func traced(route string, h http.HandlerFunc) http.HandlerFunc {
	return otelhttp.WithRouteTag(route, h).ServeHTTP
}
