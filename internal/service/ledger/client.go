package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrTxNotFound means the ledger has not indexed the transaction yet. The
// caller treats this as latency, not failure.
var ErrTxNotFound = errors.New("transaction not found on ledger")

// TxResult is the execution result of a confirmed transaction.
// Code 0 is success, anything else is a ledger-side rejection.
type TxResult struct {
	Code uint32 `json:"code"`
	Log  string `json:"log"`
}

// TxStatus is the ledger's view of a submitted transaction.
type TxStatus struct {
	Height    int64     `json:"height"`
	TxResult  *TxResult `json:"tx_result"`
	Confirmed bool      `json:"confirmed"`
}

// Succeeded reports whether the transaction was finalized successfully.
func (s *TxStatus) Succeeded() bool {
	return s.Confirmed && s.TxResult != nil && s.TxResult.Code == 0
}

// Failed reports whether the transaction was finalized with a failure code.
func (s *TxStatus) Failed() bool {
	return s.Confirmed && s.TxResult != nil && s.TxResult.Code != 0
}

// Client is a thin JSON-RPC client for the ledger node.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the ledger's JSON-RPC endpoint.
func Dial(ctx context.Context, rawurl string) (*Client, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %w", err)
	}
	return &Client{rpc: c}, nil
}

// NewClient wraps an existing rpc client, used by tests.
func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

type broadcastResult struct {
	Hash string `json:"hash"`
}

// BroadcastTx relays a signed transaction and its proof to the ledger and
// returns the transaction hash. The broadcast is async: acceptance here only
// means the node queued the transaction.
func (c *Client) BroadcastTx(ctx context.Context, tx []byte, proof []byte) (string, error) {
	var res broadcastResult
	err := c.rpc.CallContext(ctx, &res, "broadcast_tx_async",
		base64.StdEncoding.EncodeToString(tx),
		base64.StdEncoding.EncodeToString(proof))
	if err != nil {
		return "", fmt.Errorf("broadcast_tx_async failed: %w", err)
	}
	if res.Hash == "" {
		return "", errors.New("ledger returned empty tx hash")
	}
	return res.Hash, nil
}

// TxStatus queries the status of a transaction by hash. Returns ErrTxNotFound
// while the ledger has not seen the transaction.
func (c *Client) TxStatus(ctx context.Context, hash string) (*TxStatus, error) {
	var res TxStatus
	err := c.rpc.CallContext(ctx, &res, "tx", hash)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("tx query failed: %w", err)
	}
	return &res, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}
