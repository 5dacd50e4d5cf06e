package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/storefront/internal/metrics"
	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
	"github.com/corray333/backend-labs/storefront/internal/service/models/stock"
	checkstock "github.com/corray333/backend-labs/storefront/internal/transport/http/check_stock"
	createorder "github.com/corray333/backend-labs/storefront/internal/transport/http/create_order"
	getorder "github.com/corray333/backend-labs/storefront/internal/transport/http/get_order"
	listorders "github.com/corray333/backend-labs/storefront/internal/transport/http/list_orders"
	updatestatus "github.com/corray333/backend-labs/storefront/internal/transport/http/update_status"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/auth"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/ratelimit"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/storefront/pkg/http/respond"
	"github.com/corray333/backend-labs/storefront/pkg/logger"
)

type orderService interface {
	CreateOrder(ctx context.Context, req *order.CreateRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	ListOrdersForUser(ctx context.Context, userID int64) ([]order.Order, error)
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, to order.Status) (*order.Order, error)
}

type stockService interface {
	CheckStock(ctx context.Context, items []stock.CheckRequest) error
}

type healthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP transport.
type Deps struct {
	Orders    orderService
	Stock     stockService
	Health    healthChecker
	JWTSecret []byte
	// Limiter is optional; nil disables rate limiting.
	Limiter   ratelimit.Counter
	RateLimit ratelimit.Config
}

type HTTPTransport struct {
	server *http.Server
	router *chi.Mux
	deps   Deps
}

func NewHTTPTransport(deps Deps) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server: server,
		router: router,
		deps:   deps,
	}
}

func (h *HTTPTransport) Run() error {
	slog.Info("Starting HTTP server", "address", h.server.Addr)

	return h.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler returns the router with every route registered.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/healthz", h.healthz)
	h.router.Handle("/metrics", promhttp.Handler())

	limit := func(next http.Handler) http.Handler { return next }
	if h.deps.Limiter != nil {
		limit = ratelimit.NewRateLimitMiddleware(h.deps.Limiter, h.deps.RateLimit)
	}

	h.router.Route("/api", func(r chi.Router) {
		r.With(limit).Post("/stock/check", h.checkStock)

		r.Group(func(r chi.Router) {
			r.Use(auth.NewAuthMiddleware(h.deps.JWTSecret))
			r.Use(limit)

			r.Post("/orders", h.createOrder)
			r.Get("/orders/{id}", h.getOrder)
			r.Get("/me/orders", h.listMyOrders)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/orders", h.listOrders)
				r.Patch("/orders/{id}/status", h.updateStatus)
			})
		})
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.deps.Orders)
}

func (h *HTTPTransport) checkStock(w http.ResponseWriter, r *http.Request) {
	checkstock.CheckStock(w, r, h.deps.Stock)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.deps.Orders)
}

func (h *HTTPTransport) listMyOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListMyOrders(w, r, h.deps.Orders)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.deps.Orders)
}

func (h *HTTPTransport) updateStatus(w http.ResponseWriter, r *http.Request) {
	updatestatus.UpdateStatus(w, r, h.deps.Orders)
}

func (h *HTTPTransport) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.deps.Health.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "Health check failed", "error", err)
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})

		return
	}

	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(metrics.Middleware)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:              "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
