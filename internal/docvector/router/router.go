// Package router provides docvector service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docvector/internal/docvector/handler"
)

// Register registers the docvector routes.
func Register(engine *gin.Engine, vectorHandler *handler.VectorHandler, healthHandler *handler.HealthHandler) error {
	logger.Info("Registering docvector routes...")

	// Probe endpoints
	engine.GET("/healthz", healthHandler.Health)
	engine.GET("/metrics", healthHandler.Metrics)

	v1 := engine.Group("/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", vectorHandler.CreateDocument)
			documents.GET("", vectorHandler.ListDocuments)
			documents.GET("/:id", vectorHandler.GetDocument)
			documents.DELETE("/:id", vectorHandler.DeleteDocument)

			// Vectorization endpoints
			documents.POST("/:id/vectorize", vectorHandler.Vectorize)
			documents.GET("/:id/chunks", vectorHandler.ListChunks)
		}

		v1.POST("/search", vectorHandler.Search)
		v1.GET("/stats", vectorHandler.Stats)
	}

	logger.Info("HTTP routes registered")
	return nil
}
