package handler

import (
	"proofpay-core/internal/handler/response"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness of the service.
func HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "UP",
		"service": "proofpay-server",
	})
}
