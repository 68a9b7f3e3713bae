package request

import "encoding/json"

// SubmitProofRequest carries a prepared witness for proving and submission.
// Authentication is handled upstream; user_id is trusted here.
type SubmitProofRequest struct {
	UserID          uint64          `json:"user_id" binding:"required"`
	CircuitID       string          `json:"circuit_id" binding:"required"`
	Witness         json.RawMessage `json:"witness" binding:"required"`
	PublicInputs    json.RawMessage `json:"public_inputs"`
	Threshold       string          `json:"threshold" binding:"required"`
	WalletSignature string          `json:"wallet_signature"` // hex encoded
}

// RetryPaymentRequest identifies the user retrying a failed payment.
type RetryPaymentRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
}
