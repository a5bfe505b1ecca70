package policy

import (
	"presencegate/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	policies := r.Group("/policies")
	policies.Use(middleware.AuthMiddleware())
	{
		policies.GET("", middleware.RoleMiddleware("ADMIN", "SECURITY"), h.GetAll)
		policies.GET("/:id", middleware.RoleMiddleware("ADMIN", "SECURITY"), h.GetByID)
		policies.POST("", middleware.RoleMiddleware("ADMIN"), h.Create)
		policies.PUT("/:id", middleware.RoleMiddleware("ADMIN"), h.Update)
		policies.DELETE("/:id", middleware.RoleMiddleware("ADMIN"), h.Deactivate)
	}
}
