package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"proofpay-core/pkg/logger"
	"proofpay-core/pkg/monitor"
)

// Sentinel errors for the prover failure taxonomy.
var (
	// ErrUnavailable covers connection-level failures. Connection refused is
	// surfaced immediately; unreachable networks are retried.
	ErrUnavailable = errors.New("prover unavailable")
	// ErrTimeout covers per-attempt deadline hits. Always retryable.
	ErrTimeout = errors.New("prover timeout")
)

// RejectedError is a prover-side validation rejection (4xx). Never retried.
type RejectedError struct {
	Code int
	Body string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("prover rejected request (status %d): %s", e.Code, e.Body)
}

// ProtocolError means the prover answered but the response cannot be used,
// e.g. malformed JSON or public outputs missing the nullifier. Never retried,
// even on HTTP 200.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "prover protocol error: " + e.Reason
}

// PublicOutputs are the public values the proof commits to.
type PublicOutputs struct {
	Nullifier string    `json:"nullifier"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Proof is a finished proof as returned by the external prover.
type Proof struct {
	CircuitID     string        `json:"circuit_id"`
	Blob          []byte        `json:"proof"`
	PublicOutputs PublicOutputs `json:"public_outputs"`
}

// Options tunes the client. Zero values fall back to the documented defaults.
type Options struct {
	BaseURL       string
	Timeout       time.Duration // per attempt
	MaxAttempts   int           // default 3
	BackoffBase   time.Duration // default 1s
	BackoffCap    time.Duration // default 10s
	JitterPercent int           // default 30
}

// Client calls the external prover with retry and failure classification.
// Retries are purely local: they block the calling request only.
type Client struct {
	opts Options
	http *http.Client
}

func NewClient(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 10 * time.Second
	}
	if opts.JitterPercent <= 0 {
		opts.JitterPercent = 30
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}
}

type generateRequest struct {
	Circuit      string          `json:"circuit"`
	Witness      json.RawMessage `json:"witness"`
	PublicInputs json.RawMessage `json:"publicInputs"`
}

type generateResponse struct {
	Proof         []byte `json:"proof"`
	PublicOutputs struct {
		Nullifier string `json:"nullifier"`
		Timestamp int64  `json:"timestamp"`
		ExpiresAt int64  `json:"expiresAt"`
	} `json:"publicOutputs"`
}

// Generate asks the prover for a proof, retrying transient failures with
// exponential backoff and jitter. On exhaustion the last classified error is
// returned.
func (c *Client) Generate(ctx context.Context, circuitID string, witness, publicInputs json.RawMessage) (*Proof, error) {
	var lastErr error

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		proof, retryable, err := c.generateOnce(ctx, circuitID, witness, publicInputs)
		if err == nil {
			countAttempt("success")
			return proof, nil
		}
		lastErr = err

		if !retryable {
			logger.Warn("prover call failed, not retrying",
				zap.String("circuit", circuitID), zap.Error(err))
			return nil, err
		}
		logger.Warn("prover call failed, will retry",
			zap.String("circuit", circuitID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, lastErr
}

func (c *Client) generateOnce(ctx context.Context, circuitID string, witness, publicInputs json.RawMessage) (*Proof, bool, error) {
	body, err := json.Marshal(generateRequest{
		Circuit:      circuitID,
		Witness:      witness,
		PublicInputs: publicInputs,
	})
	if err != nil {
		return nil, false, &ProtocolError{Reason: "cannot encode request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/prove", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		countAttempt("server_error")
		return nil, true, fmt.Errorf("prover returned status %d: %w", resp.StatusCode, ErrUnavailable)
	case resp.StatusCode >= 400:
		countAttempt("rejected")
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, false, &RejectedError{Code: resp.StatusCode, Body: string(raw)}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		countAttempt("protocol_error")
		return nil, false, &ProtocolError{Reason: "malformed response body: " + err.Error()}
	}

	// A structurally incomplete response is a protocol error even on 200.
	switch {
	case len(decoded.Proof) == 0:
		countAttempt("protocol_error")
		return nil, false, &ProtocolError{Reason: "response missing proof blob"}
	case decoded.PublicOutputs.Nullifier == "":
		countAttempt("protocol_error")
		return nil, false, &ProtocolError{Reason: "public outputs missing nullifier"}
	case decoded.PublicOutputs.Timestamp == 0:
		countAttempt("protocol_error")
		return nil, false, &ProtocolError{Reason: "public outputs missing timestamp"}
	case decoded.PublicOutputs.ExpiresAt == 0:
		countAttempt("protocol_error")
		return nil, false, &ProtocolError{Reason: "public outputs missing expiry"}
	}

	return &Proof{
		CircuitID: circuitID,
		Blob:      decoded.Proof,
		PublicOutputs: PublicOutputs{
			Nullifier: decoded.PublicOutputs.Nullifier,
			Timestamp: time.Unix(decoded.PublicOutputs.Timestamp, 0).UTC(),
			ExpiresAt: time.Unix(decoded.PublicOutputs.ExpiresAt, 0).UTC(),
		},
	}, false, nil
}

// Health checks the prover's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prover health returned status %d: %w", resp.StatusCode, ErrUnavailable)
	}
	return nil
}

// classifyTransportError maps a transport failure onto the taxonomy.
// Timeouts and unreachable networks are retryable; a refused connection is
// surfaced immediately so a misconfigured endpoint fails fast.
func classifyTransportError(err error) (*Proof, bool, error) {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		countAttempt("timeout")
		return nil, true, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return nil, false, err
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		countAttempt("refused")
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	countAttempt("network_error")
	return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// backoff computes the delay before retry n (0-based). The jittered delay is
// clamped at the cap, so total wait never exceeds cap * (MaxAttempts - 1).
func (c *Client) backoff(n int) time.Duration {
	d := c.opts.BackoffBase << uint(n)
	if d > c.opts.BackoffCap || d <= 0 {
		d = c.opts.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d)*int64(c.opts.JitterPercent)/100 + 1))
	d += jitter
	if d > c.opts.BackoffCap {
		d = c.opts.BackoffCap
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func countAttempt(outcome string) {
	if m := monitor.Business; m != nil {
		m.ProverAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}
