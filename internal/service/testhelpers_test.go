package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"proofpay-core/internal/model"
	"proofpay-core/internal/service/ledger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// One connection, or new pool connections would see an empty in-memory db.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, payoutDestination string) *model.User {
	t.Helper()
	n := atomic.AddUint64(&seedSeq, 1)
	user := &model.User{
		Username:          fmt.Sprintf("user-%d", n),
		Email:             fmt.Sprintf("user-%d@example.com", n),
		PayoutDestination: payoutDestination,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

var seedSeq uint64

func linkApprovedAccount(t *testing.T, db *gorm.DB, userID uint64) {
	t.Helper()
	require.NoError(t, db.Create(&model.FundingAccount{
		UserID:   userID,
		Provider: "testbank",
		Status:   model.FundingApproved,
	}).Error)
}

// fakeLedger serves canned statuses keyed by tx hash and counts broadcasts.
type fakeLedger struct {
	broadcasts atomic.Int32
	statuses   map[string]*ledger.TxStatus
	statusErr  error
}

func (f *fakeLedger) BroadcastTx(ctx context.Context, tx []byte, proof []byte) (string, error) {
	n := f.broadcasts.Add(1)
	return fmt.Sprintf("0xtx%04d", n), nil
}

func (f *fakeLedger) TxStatus(ctx context.Context, hash string) (*ledger.TxStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st, ok := f.statuses[hash]
	if !ok {
		return nil, ledger.ErrTxNotFound
	}
	return st, nil
}

// fakeIssuer counts issuances and can be forced to fail.
type fakeIssuer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeIssuer) Issue(ctx context.Context, destination string, amount decimal.Decimal) (string, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("txn_%04d", n), nil
}

// fakeSettler counts how many times settlement is triggered.
type fakeSettler struct {
	calls atomic.Int32
}

func (f *fakeSettler) Settle(ctx context.Context, proofID string, userID uint64, threshold decimal.Decimal) (*model.PaymentRecord, error) {
	f.calls.Add(1)
	return &model.PaymentRecord{ProofID: proofID, UserID: userID, Status: model.PaymentCompleted}, nil
}

func testPolicy() AmountPolicy {
	return AmountPolicy{
		Base: decimal.NewFromInt(5),
		Rate: decimal.RequireFromString("0.0001"),
		Max:  decimal.NewFromInt(50),
	}
}
