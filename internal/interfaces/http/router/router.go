package router

import (
	"github.com/gin-gonic/gin"

	"tableside/internal/interfaces/http/handler"
)

func RegisterRoutes(
	r *gin.Engine,
	cartHandler *handler.CartHandler,
	paymentHandler *handler.PaymentHandler,
	tableHandler *handler.TableHandler,
	orderHandler *handler.OrderHandler,
	resumeHandler *handler.ResumeHandler,
) {
	api := r.Group("/api")
	{
		api.GET("/locations", tableHandler.Locations)
		api.GET("/tables", tableHandler.Tables)
		api.POST("/table-sessions/start", tableHandler.StartSession)

		api.GET("/cart", cartHandler.GetCart)
		api.POST("/cart", cartHandler.CreateCart)
		api.POST("/cart/refresh", cartHandler.Refresh)
		api.POST("/cart/items", cartHandler.AddItem)
		api.PATCH("/cart/items/:id", cartHandler.UpdateItem)
		api.DELETE("/cart/items/:id", cartHandler.RemoveItem)

		api.GET("/payment-methods", paymentHandler.Methods)
		api.POST("/payments/qr", paymentHandler.GenerateCode)
		api.GET("/payments/status", paymentHandler.Status)
		api.POST("/payments/check", paymentHandler.CheckNow)
		api.POST("/payments/cancel", paymentHandler.Cancel)
		api.POST("/payments/manual", paymentHandler.SubmitManual)
		api.POST("/orders/active/check", paymentHandler.CheckActiveOrder)

		api.GET("/orders/history", orderHandler.History)

		api.GET("/resume", resumeHandler.Get)
		api.PUT("/resume", resumeHandler.Put)
	}
}
