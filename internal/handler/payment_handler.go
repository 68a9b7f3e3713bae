package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"proofpay-core/internal/handler/request"
	"proofpay-core/internal/handler/response"
	"proofpay-core/internal/service"
	"proofpay-core/pkg/errno"
)

// PaymentHandler exposes payment history and retry over HTTP.
type PaymentHandler struct {
	proofs *service.ProofService
}

func NewPaymentHandler(proofs *service.ProofService) *PaymentHandler {
	return &PaymentHandler{proofs: proofs}
}

// History handles GET /api/v1/payments?user_id=N.
func (h *PaymentHandler) History(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	records, err := h.proofs.GetPaymentHistory(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, records)
}

// Retry handles POST /api/v1/payments/:id/retry.
// Only failed records are retriable.
func (h *PaymentHandler) Retry(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	var req request.RetryPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	record, err := h.proofs.RetryPayment(c.Request.Context(), paymentID, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, record)
}
