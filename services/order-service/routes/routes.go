package routes

import (
	"github.com/Mark23Dev/project-nexus/services/order-service/controllers"
	"github.com/Mark23Dev/project-nexus/services/order-service/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController, identity middleware.IdentityProvider) {
	orderRoutes := r.Group("/orders")
	orderRoutes.Use(middleware.AuthMiddleware(identity))
	{
		orderRoutes.POST("", oc.CreateOrder)
		orderRoutes.GET("", oc.GetOrders) // own orders; all orders for admins
		orderRoutes.GET("/:id", oc.GetOrderByID)
		orderRoutes.PUT("/:id/items", oc.ReplaceItems)
		orderRoutes.PATCH("/:id", oc.UpdateAddresses)
		orderRoutes.DELETE("/:id", oc.DeleteOrder)
		orderRoutes.PATCH("/:id/status", middleware.AdminOnly(), oc.ChangeStatus)
	}
}

func RegisterProductRoutes(r *gin.Engine, pc *controllers.ProductController, identity middleware.IdentityProvider) {
	r.GET("/products", pc.ListProducts)

	adminRoutes := r.Group("/admin/products")
	adminRoutes.Use(middleware.AuthMiddleware(identity), middleware.AdminOnly())
	{
		adminRoutes.PATCH("/:id", pc.PatchProduct)
		adminRoutes.POST("/:id/disable", pc.DisableProduct)
		adminRoutes.DELETE("/:id", pc.DeleteProduct)
	}
}
