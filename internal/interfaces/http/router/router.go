package router

import (
	"net/http"

	"github.com/erp/warehouse/internal/infrastructure/logger"
	"github.com/erp/warehouse/internal/interfaces/http/handler"
	"github.com/erp/warehouse/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under a versioned API prefix
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered by Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one resource under a prefix
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodDelete, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Config configures the HTTP engine
type Config struct {
	ServiceName    string
	CORS           middleware.CORSConfig
	MaxBodyBytes   int64
	TrustedProxies []string
	// Tracing starts a server span per request through otelgin
	Tracing bool
	// Meter enables HTTP metrics when set
	Meter metric.Meter
	// Profiling labels profiles with the request route
	Profiling bool
}

// Handlers are the endpoint handlers mounted by New
type Handlers struct {
	Allocation *handler.AllocationHandler
	Stock      *handler.StockHandler
	Health     *handler.HealthHandler
}

// New builds the gin engine with the middleware chain and all routes.
func New(cfg Config, h Handlers, log *zap.Logger) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	if cfg.Tracing {
		engine.Use(
			middleware.Tracing(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health"
			})),
			middleware.SpanAttributes(),
		)
	}
	engine.Use(logger.GinMiddleware(log), logger.Recovery(log))
	if cfg.Meter != nil {
		metricsMW, err := middleware.HTTPMetrics(cfg.Meter)
		if err != nil {
			return nil, err
		}
		engine.Use(metricsMW)
	}
	if cfg.Profiling {
		engine.Use(middleware.Profiling())
	}
	engine.Use(middleware.CORS(cfg.CORS))
	if cfg.MaxBodyBytes > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	}

	engine.GET("/health", h.Health.Health)

	NewRouter(engine).
		Register(NewDomainGroup("orders", "/orders").
			POST("/:id/allocation", h.Allocation.PlaceOrder).
			DELETE("/:id/allocation", h.Allocation.CancelOrder).
			GET("/:id/allocation", h.Allocation.GetOrderAllocation).
			DELETE("/:id/allocation/lines/:index", h.Allocation.ReleaseLine)).
		Register(NewDomainGroup("stock", "/stock").
			POST("/lots", h.Stock.ReceiveStock)).
		Register(NewDomainGroup("products", "/products").
			GET("/:id/lots", h.Stock.ListLots).
			DELETE("/:id/lots/:lot_id", h.Stock.RemoveLot)).
		Setup()

	return engine, nil
}
