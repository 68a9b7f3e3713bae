package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofpay-core/internal/model"
	"proofpay-core/internal/service/prover"
	"proofpay-core/pkg/errno"
)

func testProof(nullifier string) *prover.Proof {
	return &prover.Proof{
		CircuitID: "income_threshold",
		Blob:      []byte("proof-bytes"),
		PublicOutputs: prover.PublicOutputs{
			Nullifier: nullifier,
			Timestamp: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		},
	}
}

func TestSubmitPersistsPendingSubmission(t *testing.T) {
	db := newTestDB(t)
	fl := &fakeLedger{}
	svc := NewSubmissionService(db, fl, SubmissionOptions{})
	user := seedUser(t, db, "dest")

	res, err := svc.Submit(context.Background(), testProof("null-1"), nil, user.ID, decimal.NewFromInt(75000))
	require.NoError(t, err)

	assert.Equal(t, model.SubmissionPending, res.Status)
	assert.Equal(t, DeriveProofID("null-1"), res.ProofID)
	assert.NotEmpty(t, res.TxHash)
	assert.EqualValues(t, 1, fl.broadcasts.Load())

	var sub model.ProofSubmission
	require.NoError(t, db.Where("proof_id = ?", res.ProofID).First(&sub).Error)
	assert.Equal(t, "null-1", sub.Nullifier)
	assert.Equal(t, user.ID, sub.UserID)
	assert.Equal(t, model.SubmissionPending, sub.Status)

	// The lifecycle event is written in the same transaction.
	var outbox model.OutboxMessage
	require.NoError(t, db.Where("topic = ?", model.TopicProofSubmitted).First(&outbox).Error)
	assert.Equal(t, res.ProofID, outbox.Key)
}

func TestSubmitRejectsDuplicateNullifier(t *testing.T) {
	db := newTestDB(t)
	fl := &fakeLedger{}
	svc := NewSubmissionService(db, fl, SubmissionOptions{})
	user := seedUser(t, db, "dest")

	_, err := svc.Submit(context.Background(), testProof("null-dup"), nil, user.ID, decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), testProof("null-dup"), nil, user.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errno.ErrDuplicateNullifier)

	// The duplicate never reached the ledger.
	assert.EqualValues(t, 1, fl.broadcasts.Load())

	var count int64
	require.NoError(t, db.Model(&model.ProofSubmission{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSubmitDuplicateFromAnotherUserRejected(t *testing.T) {
	db := newTestDB(t)
	svc := NewSubmissionService(db, &fakeLedger{}, SubmissionOptions{})
	alice := seedUser(t, db, "dest-a")
	bob := seedUser(t, db, "dest-b")

	_, err := svc.Submit(context.Background(), testProof("null-shared"), nil, alice.ID, decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), testProof("null-shared"), nil, bob.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errno.ErrDuplicateNullifier)
}

func TestSubmitUniqueConstraintBacksFastPath(t *testing.T) {
	db := newTestDB(t)
	svc := NewSubmissionService(db, &fakeLedger{}, SubmissionOptions{})
	user := seedUser(t, db, "dest")

	// Simulate losing the race: the row appears after the fast-path check
	// would have passed. Insert directly, then submit the same nullifier.
	require.NoError(t, db.Create(&model.ProofSubmission{
		ProofID:     DeriveProofID("null-race"),
		Nullifier:   "null-race",
		UserID:      user.ID,
		TxHash:      "0xearlier",
		Threshold:   decimal.NewFromInt(1),
		Status:      model.SubmissionPending,
		SubmittedAt: time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}).Error)

	_, err := svc.Submit(context.Background(), testProof("null-race"), nil, user.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errno.ErrDuplicateNullifier)
}

func TestSubmitVerifiesWalletSignature(t *testing.T) {
	db := newTestDB(t)
	fl := &fakeLedger{}
	svc := NewSubmissionService(db, fl, SubmissionOptions{RequireSignature: true})

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	user := seedUser(t, db, "dest")
	user.WalletAddress = crypto.PubkeyToAddress(key.PublicKey).Hex()
	require.NoError(t, db.Save(user).Error)

	sig, err := crypto.Sign(SubmissionDigest("null-signed"), key)
	require.NoError(t, err)

	res, err := svc.Submit(context.Background(), testProof("null-signed"), sig, user.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, res.Status)
}

func TestSubmitRejectsWrongSigner(t *testing.T) {
	db := newTestDB(t)
	fl := &fakeLedger{}
	svc := NewSubmissionService(db, fl, SubmissionOptions{RequireSignature: true})

	registered, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	user := seedUser(t, db, "dest")
	user.WalletAddress = crypto.PubkeyToAddress(registered.PublicKey).Hex()
	require.NoError(t, db.Save(user).Error)

	sig, err := crypto.Sign(SubmissionDigest("null-forged"), other)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), testProof("null-forged"), sig, user.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errno.ErrInvalidSignature)

	// Rejected before any ledger interaction.
	assert.EqualValues(t, 0, fl.broadcasts.Load())
}

func TestDeriveProofIDDeterministic(t *testing.T) {
	a := DeriveProofID("null-x")
	b := DeriveProofID("null-x")
	c := DeriveProofID("null-y")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("pf_")+32)
}
