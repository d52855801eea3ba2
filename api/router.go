package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/shortforge-go/api/handlers"
	"github.com/yourusername/shortforge-go/api/middleware"
	"github.com/yourusername/shortforge-go/internal/app"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// SetupRouter sets up the HTTP router
func SetupRouter(runMgr *app.RunManager, ready handlers.ReadinessCheck, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(ready)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		runHandler := handlers.NewRunHandler(runMgr, log)
		runs := v1.Group("/runs")
		{
			runs.POST("", runHandler.CreateRun)
			runs.GET("", runHandler.ListRuns)
			runs.GET("/stats", runHandler.GetStats)
			runs.GET("/:id", runHandler.GetRun)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
