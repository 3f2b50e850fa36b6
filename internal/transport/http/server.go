package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/metrics"
)

// ServerConfig holds the HTTP settings the server needs.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	// WSActionLimit caps websocket actions per minute per connection.
	WSActionLimit int
}

// Deps are the components served over HTTP.
type Deps struct {
	Adapter Adapter
	Hub     Broadcaster
	// Issuer enables POST /token when non-nil.
	Issuer TokenIssuer
}

// NewServer builds an HTTP server with the adapter routes.
func NewServer(deps Deps, cfg ServerConfig, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the gin engine for the adapter routes.
func NewRouter(deps Deps, cfg ServerConfig, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiHandlers := NewAPIHandlers(deps.Adapter, deps.Issuer, logger)
	api := router.Group("/api")
	{
		api.GET("/manifest", apiHandlers.Manifest)
		api.GET("/state", apiHandlers.State)
		api.POST("/actions/:code", apiHandlers.Action)
		api.POST("/collections/history", apiHandlers.Collection)
	}

	if deps.Issuer != nil {
		router.POST("/token", apiHandlers.Token)
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Adapter, deps.Hub, cfg.WSActionLimit, logger)))

	return router
}
