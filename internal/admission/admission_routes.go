package admission

import (
	"presencegate/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler, idem *middleware.Idempotency) {
	presence := r.Group("/presence")
	presence.Use(middleware.AuthMiddleware())
	{
		presence.POST("/check-in", idem.Guard(), h.CheckIn)
		presence.POST("/check-out", idem.Guard(), h.CheckOut)
	}
}
