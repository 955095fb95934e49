package router

import (
	"ckptbench/app/handler"
	"ckptbench/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	checkpointHandler *handler.CheckpointHandler
	apiKey            string
}

// NewRouter creates a new Router
func NewRouter(checkpointHandler *handler.CheckpointHandler, apiKey string) *Router {
	return &Router{
		checkpointHandler: checkpointHandler,
		apiKey:            apiKey,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// V1 API - benchmark control interface
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(r.apiKey))
	{
		v1.POST("/checkpoint", r.checkpointHandler.Checkpoint)
		v1.GET("/summary", r.checkpointHandler.Summary)
		v1.GET("/profiles", r.checkpointHandler.Profiles)
	}

	// Health check
	engine.GET("/health", r.checkpointHandler.Health)
}
