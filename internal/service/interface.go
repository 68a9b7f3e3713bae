package service

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"proofpay-core/internal/model"
	"proofpay-core/internal/service/ledger"
	"proofpay-core/internal/service/prover"
)

// LedgerClient is the subset of the ledger RPC surface the pipeline uses.
type LedgerClient interface {
	// BroadcastTx relays a signed transaction and proof, returning the tx hash.
	BroadcastTx(ctx context.Context, tx []byte, proof []byte) (string, error)

	// TxStatus returns the ledger's view of a transaction, or
	// ledger.ErrTxNotFound while it is still unindexed.
	TxStatus(ctx context.Context, hash string) (*ledger.TxStatus, error)
}

// ProofGenerator produces a finished proof from a prepared witness.
type ProofGenerator interface {
	Generate(ctx context.Context, circuitID string, witness, publicInputs json.RawMessage) (*prover.Proof, error)
}

// Settler fires settlement for a confirmed submission. Implementations must
// be idempotent per proof id.
type Settler interface {
	Settle(ctx context.Context, proofID string, userID uint64, threshold decimal.Decimal) (*model.PaymentRecord, error)
}
