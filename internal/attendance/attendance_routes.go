package attendance

import (
	"presencegate/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	records := r.Group("/attendance")
	records.Use(middleware.AuthMiddleware())
	{
		records.GET("/today", h.GetToday)
		records.GET("/history", h.GetHistory)
	}
}
