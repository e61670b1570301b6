package app

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/platebook/importer-backend/internal/handlers"
	"github.com/platebook/importer-backend/internal/observability"
)

type Handlers struct {
	Import *handlers.ImportHandler
	Health *handlers.HealthHandler
	Queues *handlers.QueueHandler
}

func wireRouter(cfg Config, h Handlers, metrics *observability.Metrics) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("importer-backend"))
	router.Use(metricsMiddleware(metrics))

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", h.Health.Healthz)
	if metrics != nil {
		router.GET("/metrics", gin.WrapF(metrics.WriteHTTP))
	}

	api := router.Group("/api")
	{
		api.POST("/import", h.Import.Import)
		api.GET("/import/:importId", h.Import.GetImport)
		api.GET("/queues", h.Queues.Depths)
	}

	return router
}

func metricsMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		metrics.APIInflightAdd(1)
		c.Next()
		metrics.APIInflightAdd(-1)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
