package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/feed"
	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

// FeedLister lists the published feeds
type FeedLister interface {
	List(ctx context.Context) ([]models.Feed, error)
}

// HealthChecker reports the health of a dependency
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router sets up API routes
type Router struct {
	handler  *XRPCHandler
	feeds    *feed.Service
	registry FeedLister
	server   config.ServerConfig
	checks   map[string]HealthChecker
	logger   *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(server config.ServerConfig, feeds *feed.Service, registry FeedLister) *Router {
	router := &Router{
		handler:  NewXRPCHandler(),
		feeds:    feeds,
		registry: registry,
		server:   server,
		checks:   make(map[string]HealthChecker),
		logger:   logging.WithComponent("api-router"),
	}

	router.registerMethods()

	return router
}

// AddHealthCheck adds a dependency to the health endpoint
func (r *Router) AddHealthCheck(name string, check HealthChecker) {
	r.checks[name] = check
}

// SetupRoutes installs middleware and routes on engine
func (r *Router) SetupRoutes(engine *gin.Engine, serviceName string) {
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(requestLogger(r.logger))
	engine.Use(cors.Default())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/.well-known/did.json", r.didDocument)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/xrpc/:method", r.handler.Handle)
}

func (r *Router) registerMethods() {
	r.handler.RegisterMethod("app.bsky.feed.getFeedSkeleton", r.getFeedSkeleton)
	r.handler.RegisterMethod("app.bsky.feed.describeFeedGenerator", r.describeFeedGenerator)
}

func (r *Router) getFeedSkeleton(c *gin.Context) (interface{}, error) {
	feedURI := c.Query("feed")
	if feedURI == "" {
		return nil, NewError(http.StatusBadRequest, ErrInvalidRequest, "Missing feed parameter")
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > feed.MaxLimit {
			return nil, NewError(http.StatusBadRequest, ErrInvalidRequest, "limit must be between 1 and 100")
		}
		limit = n
	}

	// Requests are unauthenticated; the query log attributes them to the anonymous identity
	return r.feeds.GetFeedSkeleton(c.Request.Context(), feedURI, c.Query("cursor"), limit, nil)
}

type describedFeed struct {
	URI string `json:"uri"`
}

func (r *Router) describeFeedGenerator(c *gin.Context) (interface{}, error) {
	feeds, err := r.registry.List(c.Request.Context())
	if err != nil {
		return nil, err
	}

	described := make([]describedFeed, 0, len(feeds))
	for i := range feeds {
		described = append(described, describedFeed{URI: feeds[i].URI()})
	}
	return gin.H{
		"did":   r.server.ServiceDID,
		"feeds": described,
	}, nil
}

func (r *Router) didDocument(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"@context": []string{"https://www.w3.org/ns/did/v1"},
		"id":       r.server.ServiceDID,
		"service": []gin.H{{
			"id":              "#bsky_fg",
			"type":            "BskyFeedGenerator",
			"serviceEndpoint": "https://" + r.server.Hostname,
		}},
	})
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range r.checks {
		if err := check.Health(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "OK"
	}

	c.JSON(status, gin.H{
		"status":  http.StatusText(status),
		"service": "skyfeed",
		"checks":  checks,
	})
}
