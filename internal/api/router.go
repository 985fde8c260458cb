package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mforney/docpipe/internal/api/handler"
	"github.com/mforney/docpipe/internal/api/middleware"
	"github.com/mforney/docpipe/internal/command"
	"github.com/mforney/docpipe/internal/queue"
	"github.com/mforney/docpipe/internal/repository"
	"github.com/mforney/docpipe/internal/storage"
)

// Deps bundles the wired components the router exposes.
type Deps struct {
	Manager  *queue.QueueManager
	Jobs     *repository.JobRepository
	Trackers *repository.TrackerRepository
	Stream   *repository.StreamRepository
	Blobs    *storage.BlobStore
	Bus      command.Bus
	// RetryLimit caps how many times a failed or timed-out job is
	// redelivered before it fails terminally.
	RetryLimit int
	// LocalIngestion mounts the document upload routes used in
	// single-binary mode.
	LocalIngestion bool
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, mode string, cors middleware.CORSConfig) *gin.Engine {
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
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	queueHandler := handler.NewQueueHandler(deps.Manager, deps.Jobs, deps.Trackers)
	jobHandler := handler.NewJobHandler(deps.Jobs, deps.Trackers, deps.Bus, deps.RetryLimit)
	blobHandler := handler.NewBlobHandler(deps.Blobs)
	trackerHandler := handler.NewTrackerHandler(deps.Trackers)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Queues
		v1.GET("/queues", queueHandler.ListQueues)
		v1.POST("/queues/:name/next", queueHandler.NextJob)
		v1.POST("/poll", queueHandler.PollNow)

		// Job lifecycle
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.POST("/jobs/:id/heartbeat", jobHandler.Heartbeat)
		v1.POST("/jobs/:id/complete", jobHandler.Complete)
		v1.POST("/jobs/:id/fail", jobHandler.Fail)

		// Blobs
		v1.POST("/blobs/:format", blobHandler.Upload)
		v1.GET("/blobs/:id", blobHandler.Download)
		v1.GET("/blobs/:id/descriptor", blobHandler.Descriptor)

		// Diagnostics
		v1.GET("/trackers", trackerHandler.ListRecent)

		// Local-mode ingestion
		if deps.LocalIngestion {
			documentHandler := handler.NewDocumentHandler(deps.Blobs, deps.Stream, deps.Manager)
			v1.POST("/documents", documentHandler.Create)
		}
	}

	return r
}
