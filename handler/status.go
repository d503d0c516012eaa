package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crmbridge/integration"
)

// IntegrationStatusHandler lists the integrations this build can talk
// to, for host UIs populating the integration picker.
func IntegrationStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"integrations": integration.RegisteredIntegrations(),
	})
}
