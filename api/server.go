package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/EdissonBeltGom/product/catalog"
	"github.com/EdissonBeltGom/product/observe"
	"github.com/EdissonBeltGom/product/resilience"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// AdminSecret signs and verifies admin bearer tokens.
	AdminSecret []byte

	// ClientRateLimit is the policy applied per client address.
	ClientRateLimit resilience.RateLimiterConfig
}

// Service is the catalog surface the server exposes.
type Service interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	ProductsByCategory(ctx context.Context, category string) ([]catalog.Product, error)
	SimilarProducts(ctx context.Context, id string, limit int) ([]catalog.Product, error)
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Server routes HTTP requests to the catalog service and the resilience
// monitoring surfaces.
type Server struct {
	service  Service
	registry *resilience.Registry
	metrics  *resilience.MetricsRegistry
	logger   observe.Logger
	tracer   trace.Tracer
	config   ServerConfig
	mux      *http.ServeMux
}

// NewServer wires the routes. Call Handler for the middleware-wrapped
// entry point.
func NewServer(service Service, registry *resilience.Registry, metrics *resilience.MetricsRegistry, logger observe.Logger, tracer trace.Tracer, cfg ServerConfig) *Server {
	s := &Server{
		service:  service,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		tracer:   tracer,
		config:   cfg,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/products", s.handleListProducts)
	s.mux.HandleFunc("GET /api/products/{id}", s.handleGetProduct)
	s.mux.HandleFunc("GET /api/products/{id}/similar", s.handleSimilarProducts)
	s.mux.HandleFunc("GET /api/products/category/{category}", s.handleProductsByCategory)

	s.mux.HandleFunc("GET /monitor/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /monitor/circuit-breakers", s.handleBreakers)
	s.mux.HandleFunc("GET /monitor/rate-limiters", s.handleLimiters)

	admin := s.requireAdmin
	s.mux.HandleFunc("POST /api/products", admin(s.handleCreateProduct))
	s.mux.HandleFunc("DELETE /api/products/{id}", admin(s.handleDeleteProduct))
	s.mux.HandleFunc("POST /admin/metrics/reset", admin(s.handleMetricsReset))
	s.mux.HandleFunc("PUT /admin/rate-limiters/{name}/capacity", admin(s.handleLimiterCapacity))
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.withObservability(s.clientRateLimit(s.mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.service.ListProducts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleProductsByCategory(w http.ResponseWriter, r *http.Request) {
	products, err := s.service.ProductsByCategory(r.Context(), r.PathValue("category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleSimilarProducts(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 5)
	products, err := s.service.SimilarProducts(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid product payload"))
		return
	}
	saved, err := s.service.CreateProduct(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps service errors to HTTP responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid product id"))
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("product not found"))
	case errors.Is(err, resilience.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("service temporarily unavailable"))
	case errors.Is(err, context.Canceled):
		// Client went away; status is a formality.
		writeJSON(w, http.StatusServiceUnavailable, errorBody("request cancelled"))
	default:
		s.logger.Error(r.Context(), "request failed",
			observe.F("path", r.URL.Path), observe.F("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}
