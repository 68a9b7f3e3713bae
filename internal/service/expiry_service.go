package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"proofpay-core/internal/model"
	"proofpay-core/pkg/logger"
	"proofpay-core/pkg/monitor"
	"proofpay-core/pkg/utils/lock"
)

const expiredReason = "proof expired before confirmation"

// ExpiryService fails pending submissions whose proof expiry has passed.
// Runs on a cron schedule; the distributed lock keeps the sweep on a single
// instance when several replicas of the service run.
type ExpiryService struct {
	db       *gorm.DB
	locker   lock.DistributedLock
	cron     *cron.Cron
	schedule string
}

// NewExpiryService builds the sweeper. locker may be nil for single-instance
// deployments and tests.
func NewExpiryService(db *gorm.DB, locker lock.DistributedLock, schedule string) *ExpiryService {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &ExpiryService{
		db:       db,
		locker:   locker,
		cron:     cron.New(),
		schedule: schedule,
	}
}

func (s *ExpiryService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runLocked); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("expiry sweeper started", zap.String("schedule", s.schedule))
	return nil
}

func (s *ExpiryService) Stop() {
	// cron.Stop returns a context that completes when running jobs finish.
	<-s.cron.Stop().Done()
	logger.Info("expiry sweeper stopped")
}

func (s *ExpiryService) runLocked() {
	ctx := context.Background()

	if s.locker != nil {
		locked, err := s.locker.Acquire(ctx, "expiry_sweep", 30*time.Second)
		if err != nil || !locked {
			// Another instance holds the sweep.
			return
		}
		defer s.locker.Release(ctx, "expiry_sweep")
	}

	if err := s.SweepExpired(ctx); err != nil {
		logger.Error("expiry sweep failed", zap.Error(err))
	}
}

// SweepExpired conditionally fails all pending submissions past their expiry.
// Same conditional-update discipline as the poller, so racing a concurrent
// confirmation is safe: a row that just confirmed is left alone.
func (s *ExpiryService) SweepExpired(ctx context.Context) error {
	res := s.db.WithContext(ctx).Model(&model.ProofSubmission{}).
		Where("status = ? AND expires_at < ?", model.SubmissionPending, time.Now().UTC()).
		Updates(map[string]interface{}{
			"status":      model.SubmissionFailed,
			"fail_reason": expiredReason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		if m := monitor.Business; m != nil {
			m.ExpiredSubmissionsTotal.Add(float64(res.RowsAffected))
		}
		logger.Info("expired pending submissions",
			zap.Int64("count", res.RowsAffected))
	}
	return nil
}
