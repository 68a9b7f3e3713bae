package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"lukechampine.com/blake3"

	"proofpay-core/internal/model"
	"proofpay-core/internal/service/prover"
	"proofpay-core/pkg/database"
	"proofpay-core/pkg/errno"
	"proofpay-core/pkg/logger"
	"proofpay-core/pkg/monitor"
)

// SubmissionResult is returned to the caller after a successful relay.
type SubmissionResult struct {
	ProofID string `json:"proof_id"`
	TxHash  string `json:"tx_hash"`
	Status  string `json:"status"`
}

// SubmissionOptions tunes the gateway.
type SubmissionOptions struct {
	// RequireSignature enforces wallet signature verification against the
	// user's registered address before any ledger interaction.
	RequireSignature bool
}

// SubmissionService relays proofs to the ledger and persists the submission
// record. The unique constraint on nullifier is the authoritative replay
// guard; the lookup before the relay is a fast path that also keeps a
// duplicate from reaching the ledger at all.
type SubmissionService struct {
	db     *gorm.DB
	ledger LedgerClient
	opts   SubmissionOptions
}

func NewSubmissionService(db *gorm.DB, ledgerClient LedgerClient, opts SubmissionOptions) *SubmissionService {
	return &SubmissionService{
		db:     db,
		ledger: ledgerClient,
		opts:   opts,
	}
}

// ledgerTx is the envelope relayed to the ledger node.
type ledgerTx struct {
	Nullifier string `json:"nullifier"`
	UserID    uint64 `json:"user_id"`
	Signature []byte `json:"signature"`
}

// Submit runs the submission pipeline: replay check, ledger relay, persist.
// No side effects occur if the replay check or signature check rejects.
// Ledger relay failure fails the whole submission; the caller resubmits.
func (s *SubmissionService) Submit(ctx context.Context, p *prover.Proof, walletSignature []byte, userID uint64, threshold decimal.Decimal) (*SubmissionResult, error) {
	nullifier := p.PublicOutputs.Nullifier

	if s.opts.RequireSignature {
		if err := s.verifySignature(nullifier, walletSignature, userID); err != nil {
			countSubmission("invalid_signature")
			return nil, err
		}
	}

	// Fast-path replay check. The insert below is the authoritative guard.
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.ProofSubmission{}).
		Where("nullifier = ?", nullifier).Count(&count).Error; err != nil {
		return nil, errno.ErrDatabase
	}
	if count > 0 {
		countSubmission("duplicate")
		return nil, errno.ErrDuplicateNullifier
	}

	txBytes, err := json.Marshal(ledgerTx{
		Nullifier: nullifier,
		UserID:    userID,
		Signature: walletSignature,
	})
	if err != nil {
		return nil, err
	}

	txHash, err := s.ledger.BroadcastTx(ctx, txBytes, p.Blob)
	if err != nil {
		countSubmission("relay_error")
		logger.Error("ledger relay failed",
			zap.String("nullifier", nullifier), zap.Error(err))
		return nil, errno.ErrLedgerUnavailable
	}

	submission := model.ProofSubmission{
		ProofID:     DeriveProofID(nullifier),
		Nullifier:   nullifier,
		UserID:      userID,
		TxHash:      txHash,
		Threshold:   threshold,
		Status:      model.SubmissionPending,
		SubmittedAt: time.Now().UTC(),
		ExpiresAt:   p.PublicOutputs.ExpiresAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&submission).Error; err != nil {
			return err
		}
		return model.CreateOutboxMessage(tx, model.TopicProofSubmitted, submission.ProofID, &submission)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// Lost the race with a concurrent submit of the same nullifier.
			countSubmission("duplicate")
			return nil, errno.ErrDuplicateNullifier
		}
		return nil, err
	}

	countSubmission("accepted")
	logger.Info("proof submitted",
		zap.String("proof_id", submission.ProofID),
		zap.String("tx_hash", txHash),
		zap.Uint64("user_id", userID))

	return &SubmissionResult{
		ProofID: submission.ProofID,
		TxHash:  txHash,
		Status:  submission.Status,
	}, nil
}

// verifySignature recovers the signer of the nullifier digest and matches it
// against the user's registered wallet address.
func (s *SubmissionService) verifySignature(nullifier string, sig []byte, userID uint64) error {
	var user model.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		return errno.ErrUserNotFound
	}
	if user.WalletAddress == "" {
		return errno.ErrInvalidSignature
	}

	digest := SubmissionDigest(nullifier)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return errno.ErrInvalidSignature
	}
	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, user.WalletAddress) {
		return errno.ErrInvalidSignature
	}
	return nil
}

// SubmissionDigest is the 32-byte digest a wallet signs to authorize
// submitting the proof with the given nullifier.
func SubmissionDigest(nullifier string) []byte {
	sum := blake3.Sum256([]byte("proofpay:submit:" + nullifier))
	return sum[:]
}

// DeriveProofID derives a stable proof id from the nullifier. Determinism
// keeps retried submissions of the same proof from minting new ids.
func DeriveProofID(nullifier string) string {
	sum := blake3.Sum256([]byte(nullifier))
	return "pf_" + hex.EncodeToString(sum[:16])
}

func countSubmission(result string) {
	if m := monitor.Business; m != nil {
		m.ProofSubmissionsTotal.WithLabelValues(result).Inc()
	}
}
