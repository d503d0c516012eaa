package handler

import (
	"github.com/gin-gonic/gin"
)

// InitRoutes wires the public integration endpoints.
func InitRoutes(r *gin.Engine) {
	r.POST("/integrations/:integration/webhook", IntegrationWebhookHandler)
	r.GET("/integrations/status", IntegrationStatusHandler)
}
