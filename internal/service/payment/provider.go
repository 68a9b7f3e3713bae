package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Issuer is the single capability the settlement pipeline needs from a
// payment provider: issue funds to a destination on file.
type Issuer interface {
	Issue(ctx context.Context, destination string, amount decimal.Decimal) (transactionID string, err error)
}

// HTTPIssuer calls a provider's REST issuance endpoint.
type HTTPIssuer struct {
	baseURL string
	http    *http.Client
}

func NewHTTPIssuer(baseURL string, timeout time.Duration) *HTTPIssuer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPIssuer{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type issueRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type issueResponse struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error,omitempty"`
}

// Issue requests a payout. The provider deduplicates nothing: callers must
// ensure at-most-once invocation per proof, which the PaymentRecord unique
// constraint does.
func (p *HTTPIssuer) Issue(ctx context.Context, destination string, amount decimal.Decimal) (string, error) {
	body, err := json.Marshal(issueRequest{
		Destination: destination,
		Amount:      amount.String(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/issuances", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("payment provider returned status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("malformed provider response: %w", err)
	}
	if decoded.TransactionID == "" {
		return "", fmt.Errorf("provider response missing transaction id")
	}
	return decoded.TransactionID, nil
}
