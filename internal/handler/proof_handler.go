package handler

import (
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"proofpay-core/internal/handler/request"
	"proofpay-core/internal/handler/response"
	"proofpay-core/internal/service"
	"proofpay-core/pkg/errno"
)

// ProofHandler exposes proof submission and status over HTTP.
type ProofHandler struct {
	proofs *service.ProofService
}

func NewProofHandler(proofs *service.ProofService) *ProofHandler {
	return &ProofHandler{proofs: proofs}
}

// Submit handles POST /api/v1/proofs.
func (h *ProofHandler) Submit(c *gin.Context) {
	var req request.SubmitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	threshold, err := decimal.NewFromString(req.Threshold)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(req.WalletSignature, "0x"))
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	result, err := h.proofs.SubmitProof(c.Request.Context(), req.UserID, req.CircuitID, req.Witness, req.PublicInputs, threshold, signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Status handles GET /api/v1/proofs/:proof_id.
// Still-pending submissions are refreshed against the ledger on demand.
func (h *ProofHandler) Status(c *gin.Context) {
	proofID := c.Param("proof_id")
	if proofID == "" {
		response.Error(c, errno.ErrBind)
		return
	}

	submission, err := h.proofs.GetProofStatus(c.Request.Context(), proofID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}
