package server

import "github.com/gin-gonic/gin"

func NewRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api/v1")
	{
		api.GET("/trade-data", handler.GetTradeData)
		api.GET("/countries", handler.GetCountries)
		api.GET("/hs-codes", handler.GetHSCodes)
		api.GET("/summary", handler.GetSummary)
		api.GET("/top-traders", handler.GetTopTraders)
		api.GET("/trends", handler.GetTrends)
		api.GET("/export.csv", handler.ExportCSV)
	}

	return router
}
