package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mattgold/scoutline/internal/api/handler"
	"github.com/mattgold/scoutline/internal/api/middleware"
	"github.com/mattgold/scoutline/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	scanHandler *handler.ScanHandler,
	resolutionHandler *handler.ResolutionHandler,
	mode string,
	cors middleware.CORSConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))

	healthHandler := handler.NewHealthHandler()

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Scan jobs
		v1.POST("/scans", scanHandler.CreateScan)
		v1.GET("/scans", scanHandler.ListScans)
		v1.GET("/scans/:id", scanHandler.GetScan)
		v1.POST("/scans/:id/cancel", scanHandler.CancelScan)
		v1.GET("/scans/:id/results", scanHandler.ListResults)

		// Resolution cache
		v1.GET("/resolutions/stats", resolutionHandler.GetStats)
		v1.GET("/resolutions/:upc", resolutionHandler.GetResolution)
		v1.POST("/resolutions/:upc/choice", resolutionHandler.RememberChoice)
	}

	return r
}
