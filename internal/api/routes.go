package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.POST("/valuations", handler.CreateValuation)
		api.POST("/records", handler.IngestRecords)
		api.POST("/train", handler.TrainModels)
		api.GET("/records/counts", handler.GetRecordCounts)
		api.GET("/models/:property_type/metrics", handler.GetModelMetrics)
		api.GET("/models/:property_type/importance", handler.GetModelImportance)
		api.GET("/history", handler.GetTrainingHistory)
	}
}
