package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"proofpay-core/internal/model"
	"proofpay-core/internal/service/ledger"
	"proofpay-core/pkg/errno"
	"proofpay-core/pkg/logger"
	"proofpay-core/pkg/monitor"
)

// PollerOptions tunes the confirmation poller.
type PollerOptions struct {
	Interval  time.Duration // default 10s
	BatchSize int           // default 50
}

// PollerService advances pending submissions to a terminal state by querying
// the ledger. It is an explicit scheduler: Start launches one recurring tick,
// the in-flight guard keeps ticks from overlapping, and Stop waits for the
// current tick to finish.
//
// Status transitions are conditional updates keyed on status = pending, so
// the scheduled loop and on-demand PollOne calls can race safely: the loser
// observes a no-op.
type PollerService struct {
	db      *gorm.DB
	ledger  LedgerClient
	settler Settler

	interval  time.Duration
	batchSize int

	started  atomic.Bool
	inFlight atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPollerService(db *gorm.DB, ledgerClient LedgerClient, settler Settler, opts PollerOptions) *PollerService {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &PollerService{
		db:        db,
		ledger:    ledgerClient,
		settler:   settler,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *PollerService) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	logger.Info("confirmation poller started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *PollerService) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.wg.Wait()
	logger.Info("confirmation poller stopped")
}

// tick processes one batch. The guard keeps a slow batch from overlapping the
// next ticker fire, bounding load on the ledger.
func (s *PollerService) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	s.pollBatch(ctx)
	if m := monitor.Business; m != nil {
		m.PollBatchDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *PollerService) pollBatch(ctx context.Context) {
	var pending []model.ProofSubmission
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.SubmissionPending).
		Order("submitted_at asc").
		Limit(s.batchSize).
		Find(&pending).Error; err != nil {
		logger.Error("failed to load pending submissions", zap.Error(err))
		return
	}

	if m := monitor.Business; m != nil {
		m.PendingSubmissions.Set(float64(len(pending)))
	}
	if len(pending) == 0 {
		return
	}

	for i := range pending {
		// Per-item errors must not stall the batch; the row stays pending
		// and is retried on the next tick.
		if err := s.checkOne(ctx, &pending[i]); err != nil {
			logger.Warn("confirmation check failed",
				zap.String("proof_id", pending[i].ProofID),
				zap.String("tx_hash", pending[i].TxHash),
				zap.Error(err))
		}
	}
}

// checkOne queries the ledger for one submission and applies the transition.
func (s *PollerService) checkOne(ctx context.Context, sub *model.ProofSubmission) error {
	status, err := s.ledger.TxStatus(ctx, sub.TxHash)
	if err != nil {
		if errors.Is(err, ledger.ErrTxNotFound) {
			// Ledger latency, not an error. Leave pending.
			return nil
		}
		return err
	}

	switch {
	case status.Succeeded():
		confirmed, err := s.transitionConfirmed(ctx, sub)
		if err != nil {
			return err
		}
		if !confirmed {
			// Lost the race against a concurrent poll. Settlement is
			// idempotent, so invoking it again here would also be safe,
			// but the winner already did.
			return nil
		}
		if _, err := s.settler.Settle(ctx, sub.ProofID, sub.UserID, sub.Threshold); err != nil {
			// Settlement failure does not affect the confirmed status; the
			// payment record carries its own state and retry path.
			logger.Error("settlement trigger failed",
				zap.String("proof_id", sub.ProofID), zap.Error(err))
		}
		return nil

	case status.Failed():
		reason := "transaction failed on ledger"
		if status.TxResult != nil && status.TxResult.Log != "" {
			reason = status.TxResult.Log
		}
		return s.transitionFailed(ctx, sub, reason)

	default:
		// Indexed but not finalized yet.
		return nil
	}
}

// transitionConfirmed flips pending -> confirmed. Returns false when another
// poller got there first (or the row already failed).
func (s *PollerService) transitionConfirmed(ctx context.Context, sub *model.ProofSubmission) (bool, error) {
	now := time.Now().UTC()
	var won bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ProofSubmission{}).
			Where("id = ? AND status = ?", sub.ID, model.SubmissionPending).
			Updates(map[string]interface{}{
				"status":       model.SubmissionConfirmed,
				"confirmed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		won = res.RowsAffected == 1
		if !won {
			return nil
		}
		sub.Status = model.SubmissionConfirmed
		sub.ConfirmedAt = &now
		return model.CreateOutboxMessage(tx, model.TopicProofConfirmed, sub.ProofID, sub)
	})
	if err != nil {
		return false, err
	}
	if won {
		if m := monitor.Business; m != nil {
			m.ConfirmationsTotal.WithLabelValues(model.SubmissionConfirmed).Inc()
		}
		logger.Info("submission confirmed",
			zap.String("proof_id", sub.ProofID),
			zap.String("tx_hash", sub.TxHash))
	}
	return won, nil
}

// transitionFailed flips pending -> failed. Terminal, no settlement.
func (s *PollerService) transitionFailed(ctx context.Context, sub *model.ProofSubmission, reason string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ProofSubmission{}).
			Where("id = ? AND status = ?", sub.ID, model.SubmissionPending).
			Updates(map[string]interface{}{
				"status":      model.SubmissionFailed,
				"fail_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		sub.Status = model.SubmissionFailed
		sub.FailReason = reason
		return model.CreateOutboxMessage(tx, model.TopicProofFailed, sub.ProofID, sub)
	})
	if err != nil {
		return err
	}
	if m := monitor.Business; m != nil {
		m.ConfirmationsTotal.WithLabelValues(model.SubmissionFailed).Inc()
	}
	logger.Info("submission failed on ledger",
		zap.String("proof_id", sub.ProofID),
		zap.String("reason", reason))
	return nil
}

// PollOne performs the confirmation check synchronously for one submission,
// used when a client requests fresh status. Idempotent and safe to call
// concurrently with the background loop.
func (s *PollerService) PollOne(ctx context.Context, proofID string) (*model.ProofSubmission, error) {
	var sub model.ProofSubmission
	if err := s.db.WithContext(ctx).Where("proof_id = ?", proofID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrSubmissionNotFound
		}
		return nil, err
	}

	if sub.Status != model.SubmissionPending {
		return &sub, nil
	}

	if err := s.checkOne(ctx, &sub); err != nil {
		// Surface current state; the background loop retries later.
		logger.Warn("on-demand poll failed",
			zap.String("proof_id", proofID), zap.Error(err))
	}

	if err := s.db.WithContext(ctx).Where("proof_id = ?", proofID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}
