package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Submission statuses. Transitions are monotonic:
// pending -> confirmed | failed, never back.
const (
	SubmissionPending   = "pending"
	SubmissionConfirmed = "confirmed"
	SubmissionFailed    = "failed"
)

// Payment statuses. failed is the only retriable state.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Funding account statuses.
const (
	FundingPending  = "pending"
	FundingApproved = "approved"
	FundingRejected = "rejected"
)

// User holds the identity and payout data the settlement preconditions check.
type User struct {
	ID                uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Username          string         `gorm:"type:varchar(255);not null;unique" json:"username"`
	Email             string         `gorm:"type:varchar(255);not null;unique" json:"email"`
	WalletAddress     string         `gorm:"type:varchar(64)" json:"wallet_address"`                // 0x address used to verify submission signatures
	PayoutDestination string         `gorm:"type:varchar(255)" json:"payout_destination"`           // issuance destination on file with the payment provider
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// FundingAccount is the user's linked account with an external funding
// provider. Settlement requires one in status approved.
type FundingAccount struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64    `gorm:"not null;uniqueIndex" json:"user_id"`
	Provider    string    `gorm:"type:varchar(64);not null" json:"provider"`
	ExternalRef string    `gorm:"type:varchar(255)" json:"external_ref"`
	Status      string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProofSubmission records one proof relayed to the ledger.
// The unique index on Nullifier is the sole replay-prevention mechanism;
// the application-level lookup before insert is a fast path only.
// Rows are never deleted, they are kept for audit and expiry checks.
type ProofSubmission struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProofID     string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"proof_id"`
	Nullifier   string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"nullifier"`
	UserID      uint64          `gorm:"not null;index" json:"user_id"`
	TxHash      string          `gorm:"type:varchar(128);not null" json:"tx_hash"`
	Threshold   decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"threshold"`
	Status      string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	FailReason  string          `gorm:"type:text" json:"fail_reason,omitempty"`
	SubmittedAt time.Time       `gorm:"not null" json:"submitted_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"` // set iff status = confirmed
	ExpiresAt   time.Time       `gorm:"not null" json:"expires_at"`
}

// PaymentRecord is one settlement attempt for a confirmed submission.
// The unique index on ProofID makes redundant settlement triggers no-ops.
type PaymentRecord struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint64          `gorm:"not null;index" json:"user_id"`
	ProofID       string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"proof_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"amount"`
	TransactionID string          `gorm:"type:varchar(128)" json:"transaction_id,omitempty"`
	Status        string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ErrorMessage  string          `gorm:"type:text" json:"error_message,omitempty"`
	TriggeredAt   time.Time       `gorm:"not null" json:"triggered_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (FundingAccount) TableName() string {
	return "funding_accounts"
}

func (ProofSubmission) TableName() string {
	return "proof_submissions"
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}
