package service

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"proofpay-core/internal/model"
	"proofpay-core/pkg/errno"
	"proofpay-core/pkg/logger"
)

// ProofService is the client-facing surface of the pipeline, consumed by the
// HTTP handlers: submit, status (with on-demand poll), payment history and
// payment retry.
type ProofService struct {
	db         *gorm.DB
	generator  ProofGenerator
	submission *SubmissionService
	poller     *PollerService
	settlement *SettlementService
}

func NewProofService(db *gorm.DB, generator ProofGenerator, submission *SubmissionService, poller *PollerService, settlement *SettlementService) *ProofService {
	return &ProofService{
		db:         db,
		generator:  generator,
		submission: submission,
		poller:     poller,
		settlement: settlement,
	}
}

// SubmitProof obtains a proof from the external prover and relays it through
// the submission gateway.
func (s *ProofService) SubmitProof(ctx context.Context, userID uint64, circuitID string, witness, publicInputs json.RawMessage, threshold decimal.Decimal, walletSignature []byte) (*SubmissionResult, error) {
	proof, err := s.generator.Generate(ctx, circuitID, witness, publicInputs)
	if err != nil {
		logger.Warn("proof generation failed",
			zap.String("circuit", circuitID),
			zap.Uint64("user_id", userID),
			zap.Error(err))
		return nil, errno.ErrProverFailed
	}

	return s.submission.Submit(ctx, proof, walletSignature, userID, threshold)
}

// GetProofStatus returns the submission, refreshing it against the ledger
// first when still pending.
func (s *ProofService) GetProofStatus(ctx context.Context, proofID string) (*model.ProofSubmission, error) {
	return s.poller.PollOne(ctx, proofID)
}

// GetPaymentHistory lists the user's payment records, newest first.
func (s *ProofService) GetPaymentHistory(ctx context.Context, userID uint64) ([]model.PaymentRecord, error) {
	var records []model.PaymentRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("triggered_at desc").
		Find(&records).Error
	return records, err
}

// RetryPayment re-runs settlement for a failed payment record.
func (s *ProofService) RetryPayment(ctx context.Context, paymentID uint64, userID uint64) (*model.PaymentRecord, error) {
	return s.settlement.Retry(ctx, paymentID, userID)
}
