package server

import (
	"proofpay-core/internal/handler"
	"proofpay-core/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPRouter builds the gin engine with all routes registered.
func NewHTTPRouter(proofHandler *handler.ProofHandler, paymentHandler *handler.PaymentHandler) *gin.Engine {
	monitor.Init()

	r := gin.Default()
	r.Use(monitor.PrometheusMiddleware())

	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/proofs", proofHandler.Submit)
		api.GET("/proofs/:proof_id", proofHandler.Status)

		api.GET("/payments", paymentHandler.History)
		api.POST("/payments/:id/retry", paymentHandler.Retry)
	}

	return r
}
