package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured.
// Profiling endpoints are mounted under /debug/pprof when enabled.
func NewServer(handler *Handler, apiAccessKey string, profiling bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	r.Use(gin.Recovery())

	// The subscription endpoints are called from the web app's origin
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	if profiling {
		pprof.Register(r)
		slog.Info("Profiling endpoints enabled", "path", pprof.DefaultPrefix)
	}

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	if handler.metrics != nil {
		r.GET("/metrics", handler.GetMetrics)
	}

	api := r.Group("/api")
	{
		api.GET("/vapidpubkey", handler.GetVAPIDPublicKey)
		api.POST("/subscribe", handler.Subscribe)
		api.PUT("/subscribers/:id/providers", handler.SetSubscriberProviders)
		api.DELETE("/subscribers/:id", handler.Unsubscribe)
		api.POST("/testmsg", handler.SendTestMessage)
		api.POST("/providers", handler.CreateProvider)
	}

	admin := r.Group("/api/providers")
	if apiAccessKey != "" {
		admin.Use(authMiddleware(apiAccessKey))
		slog.Info("Provider admin endpoints require API key")
	} else {
		slog.Warn("Provider admin endpoints are open (API_ACCESS_KEY not set)")
	}
	{
		admin.GET("", handler.ListProviders)
		admin.DELETE("/:id", handler.DeleteProvider)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "Match Watch",
			"description": "Match schedule watcher with web push notifications",
			"endpoints": map[string]string{
				"health":      "/health",
				"stats":       "/stats",
				"vapidpubkey": "/api/vapidpubkey",
				"subscribe":   "/api/subscribe (POST)",
				"providers":   "/api/providers (POST to register, GET requires X-API-Key when enabled)",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
