package routes

import (
	"net/http"

	"payment-connector/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(
	router *gin.Engine,
	charges *controllers.ChargeController,
	notifications *controllers.NotificationController,
	discrepancies *controllers.DiscrepancyController,
) {
	// Public
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "payment-connector"})
	})

	api := router.Group("/v1/api")
	{
		api.POST("/charges", charges.CreateCharge)
		api.GET("/charges/:chargeId", charges.GetCharge)
		api.POST("/charges/:chargeId/authorise", charges.Authorise)
		api.POST("/charges/:chargeId/3ds", charges.Complete3DS)
		api.POST("/charges/:chargeId/capture", charges.ApproveCapture)
		api.POST("/charges/:chargeId/cancel", charges.Cancel)
		api.POST("/charges/:chargeId/refunds", charges.SubmitRefund)

		// Provider-facing; origin checks happen inside the reconciler.
		api.POST("/notifications/:provider", notifications.HandleNotification)

		// Operator tooling
		api.POST("/discrepancies/report", discrepancies.Report)
		api.POST("/discrepancies/resolve", discrepancies.Resolve)
	}
}
