package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videopipe/video-analyzer/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "video-analyzer-api",
		})
	})

	uploadHandler := handler.NewUploadHandler(deps)
	objectHandler := handler.NewObjectHandler(deps)
	analysisHandler := handler.NewAnalysisHandler(deps)
	operatorHandler := handler.NewOperatorHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/uploads - Admit an upload (cache check + capability)
		v1.POST("/uploads", uploadHandler.CreateUpload)

		// PUT /api/v1/objects/*key - Capability-scoped artifact write
		v1.PUT("/objects/*key", objectHandler.PutObject)

		// GET /api/v1/objects/*key - Debug artifact read
		v1.GET("/objects/*key", objectHandler.GetObject)

		analyses := v1.Group("/analyses")
		{
			// GET /api/v1/analyses/:user_id - List all analyses for an owner
			analyses.GET("/:user_id", analysisHandler.ListAnalyses)

			// GET /api/v1/analyses/:user_id/:fingerprint - Poll analysis status
			analyses.GET("/:user_id/:fingerprint", analysisHandler.GetAnalysis)

			// POST /api/v1/analyses/:user_id/:fingerprint/fail - Operator terminalization
			analyses.POST("/:user_id/:fingerprint/fail", analysisHandler.FailAnalysis)
		}

		dlq := v1.Group("/dlq")
		{
			// GET /api/v1/dlq - Peek dead-lettered messages
			dlq.GET("", operatorHandler.GetDeadLetters)

			// POST /api/v1/dlq/redrive - Move dead letters back to the live queue
			dlq.POST("/redrive", operatorHandler.RedriveDeadLetters)

			// POST /api/v1/dlq/drain - Discard dead letters
			dlq.POST("/drain", operatorHandler.DrainDeadLetters)
		}

		worker := v1.Group("/worker")
		{
			// GET /api/v1/worker/config - Read the worker runtime config
			worker.GET("/config", operatorHandler.GetWorkerConfig)

			// PUT /api/v1/worker/config - Replace the worker runtime config
			worker.PUT("/config", operatorHandler.UpdateWorkerConfig)

			// POST /api/v1/worker/pause - Disable the queue-to-worker binding
			worker.POST("/pause", operatorHandler.PauseWorker)

			// POST /api/v1/worker/resume - Re-enable the queue-to-worker binding
			worker.POST("/resume", operatorHandler.ResumeWorker)

			// POST /api/v1/worker/circuit - Open/close the analysis circuit
			worker.POST("/circuit", operatorHandler.SetCircuit)
		}
	}

	return r
}
