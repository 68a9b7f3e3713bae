package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"proofpay-core/internal/model"
	"proofpay-core/internal/service/payment"
	"proofpay-core/pkg/database"
	"proofpay-core/pkg/errno"
	"proofpay-core/pkg/logger"
	"proofpay-core/pkg/monitor"
)

// AmountPolicy holds the reward formula constants:
// amount = min(Max, Base + threshold * Rate).
// Deterministic and bounded, a function of the claimed threshold only.
type AmountPolicy struct {
	Base decimal.Decimal
	Rate decimal.Decimal
	Max  decimal.Decimal
}

// Amount applies the policy to a threshold.
func (p AmountPolicy) Amount(threshold decimal.Decimal) decimal.Decimal {
	amount := p.Base.Add(threshold.Mul(p.Rate))
	if amount.GreaterThan(p.Max) {
		return p.Max
	}
	return amount
}

// SettlementService issues the reward payment for a confirmed submission.
// At-least-once trigger, at-most-once effect: the poller may invoke Settle
// redundantly, and multiple service instances may race; the unique constraint
// on PaymentRecord.proof_id guarantees a single record and a single provider
// issuance per proof.
type SettlementService struct {
	db     *gorm.DB
	issuer payment.Issuer
	policy AmountPolicy
}

func NewSettlementService(db *gorm.DB, issuer payment.Issuer, policy AmountPolicy) *SettlementService {
	return &SettlementService{
		db:     db,
		issuer: issuer,
		policy: policy,
	}
}

// Settle fires settlement for a confirmed proof. If a PaymentRecord already
// exists for the proof it is returned unchanged. Precondition violations
// (no payout destination, no approved funding account) terminate the record
// as failed without contacting the provider; the error is recorded, not
// returned, since the record carries the user-facing state.
func (s *SettlementService) Settle(ctx context.Context, proofID string, userID uint64, threshold decimal.Decimal) (*model.PaymentRecord, error) {
	if existing, err := s.findByProofID(ctx, proofID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	record := model.PaymentRecord{
		UserID:      userID,
		ProofID:     proofID,
		Amount:      s.policy.Amount(threshold),
		Status:      model.PaymentPending,
		TriggeredAt: time.Now().UTC(),
	}

	destination, precondErr := s.checkPreconditions(ctx, userID)
	if precondErr != nil {
		record.Status = model.PaymentFailed
		record.ErrorMessage = precondErr.Error()
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if database.IsUniqueViolation(err) {
			// A concurrent trigger created the record first. No second
			// issuance: return what the winner produced.
			return s.mustFindByProofID(ctx, proofID)
		}
		return nil, err
	}

	if precondErr != nil {
		countSettlement(model.PaymentFailed)
		logger.Warn("settlement precondition unmet",
			zap.String("proof_id", proofID),
			zap.Uint64("user_id", userID),
			zap.String("reason", precondErr.Error()))
		return &record, nil
	}

	s.issue(ctx, &record, destination)
	return &record, nil
}

// Retry re-runs settlement for a failed payment. Only failed records are
// retriable; completed is terminal.
func (s *SettlementService) Retry(ctx context.Context, paymentID uint64, userID uint64) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", paymentID, userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrPaymentNotFound
		}
		return nil, err
	}

	if record.Status != model.PaymentFailed {
		return nil, errno.ErrPaymentNotRetriable
	}

	// Conditional reset so concurrent retries reissue at most once.
	res := s.db.WithContext(ctx).Model(&model.PaymentRecord{}).
		Where("id = ? AND status = ?", record.ID, model.PaymentFailed).
		Updates(map[string]interface{}{
			"status":        model.PaymentPending,
			"error_message": "",
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errno.ErrPaymentNotRetriable
	}
	record.Status = model.PaymentPending
	record.ErrorMessage = ""

	destination, precondErr := s.checkPreconditions(ctx, userID)
	if precondErr != nil {
		s.finalizeFailed(ctx, &record, precondErr.Error())
		return &record, nil
	}

	s.issue(ctx, &record, destination)
	return &record, nil
}

// issue contacts the payment provider and finalizes the record.
func (s *SettlementService) issue(ctx context.Context, record *model.PaymentRecord, destination string) {
	transactionID, err := s.issuer.Issue(ctx, destination, record.Amount)
	if err != nil {
		s.finalizeFailed(ctx, record, err.Error())
		logger.Error("payment issuance failed",
			zap.String("proof_id", record.ProofID),
			zap.Uint64("payment_id", record.ID),
			zap.Error(err))
		return
	}

	now := time.Now().UTC()
	updateErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.PaymentRecord{}).
			Where("id = ? AND status = ?", record.ID, model.PaymentPending).
			Updates(map[string]interface{}{
				"status":         model.PaymentCompleted,
				"transaction_id": transactionID,
				"completed_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		record.Status = model.PaymentCompleted
		record.TransactionID = transactionID
		record.CompletedAt = &now
		return model.CreateOutboxMessage(tx, model.TopicPaymentCompleted, record.ProofID, record)
	})
	if updateErr != nil {
		logger.Error("failed to persist completed payment",
			zap.String("proof_id", record.ProofID), zap.Error(updateErr))
		return
	}

	countSettlement(model.PaymentCompleted)
	if m := monitor.Business; m != nil {
		f, _ := record.Amount.Float64()
		m.SettlementAmountTotal.Add(f)
	}
	logger.Info("payment completed",
		zap.String("proof_id", record.ProofID),
		zap.String("transaction_id", transactionID),
		zap.String("amount", record.Amount.String()))
}

func (s *SettlementService) finalizeFailed(ctx context.Context, record *model.PaymentRecord, message string) {
	res := s.db.WithContext(ctx).Model(&model.PaymentRecord{}).
		Where("id = ? AND status = ?", record.ID, model.PaymentPending).
		Updates(map[string]interface{}{
			"status":        model.PaymentFailed,
			"error_message": message,
		})
	if res.Error != nil {
		logger.Error("failed to persist failed payment",
			zap.Uint64("payment_id", record.ID), zap.Error(res.Error))
		return
	}
	record.Status = model.PaymentFailed
	record.ErrorMessage = message
	countSettlement(model.PaymentFailed)
}

// checkPreconditions verifies the user can actually be paid: an issuance
// destination on file and an approved linked funding account.
func (s *SettlementService) checkPreconditions(ctx context.Context, userID uint64) (string, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.New("user not found")
		}
		return "", err
	}
	if user.PayoutDestination == "" {
		return "", errors.New("no payout destination on file")
	}

	var account model.FundingAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.FundingApproved).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.New("no approved funding account linked")
		}
		return "", err
	}

	return user.PayoutDestination, nil
}

func (s *SettlementService) findByProofID(ctx context.Context, proofID string) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	err := s.db.WithContext(ctx).Where("proof_id = ?", proofID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *SettlementService) mustFindByProofID(ctx context.Context, proofID string) (*model.PaymentRecord, error) {
	record, err := s.findByProofID(ctx, proofID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errno.ErrPaymentNotFound
	}
	return record, nil
}

func countSettlement(status string) {
	if m := monitor.Business; m != nil {
		m.SettlementsTotal.WithLabelValues(status).Inc()
	}
}
