package prover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResponse() map[string]interface{} {
	return map[string]interface{}{
		"proof": []byte("proof-bytes"),
		"publicOutputs": map[string]interface{}{
			"nullifier": "null-abc",
			"timestamp": time.Now().Unix(),
			"expiresAt": time.Now().Add(time.Hour).Unix(),
		},
	}
}

func fastOptions(baseURL string) Options {
	return Options{
		BaseURL:     baseURL,
		Timeout:     time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}
}

func TestGenerateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prove", r.URL.Path)
		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, `"income_threshold"`, string(req["circuit"]))
		json.NewEncoder(w).Encode(validResponse())
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL))
	proof, err := c.Generate(context.Background(), "income_threshold",
		json.RawMessage(`{"income":80000}`), json.RawMessage(`{"threshold":"75000"}`))
	require.NoError(t, err)

	assert.Equal(t, "income_threshold", proof.CircuitID)
	assert.Equal(t, "null-abc", proof.PublicOutputs.Nullifier)
	assert.NotEmpty(t, proof.Blob)
	assert.True(t, proof.PublicOutputs.ExpiresAt.After(proof.PublicOutputs.Timestamp))
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(validResponse())
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL))
	proof, err := c.Generate(context.Background(), "c", nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, proof)
	assert.EqualValues(t, 3, hits.Load())
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL))
	_, err := c.Generate(context.Background(), "c", nil, nil)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 3, hits.Load())
}

func TestGenerateRejectionNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "witness does not satisfy circuit", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL))
	_, err := c.Generate(context.Background(), "c", nil, nil)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.Code)
	assert.Contains(t, rejected.Body, "witness does not satisfy")
	assert.EqualValues(t, 1, hits.Load())
}

func TestGenerateMalformedBodyNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL))
	_, err := c.Generate(context.Background(), "c", nil, nil)

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.EqualValues(t, 1, hits.Load())
}

func TestGenerateIncompleteOutputsIsProtocolError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
	}{
		{"missing proof blob", func(m map[string]interface{}) {
			delete(m, "proof")
		}},
		{"missing nullifier", func(m map[string]interface{}) {
			m["publicOutputs"].(map[string]interface{})["nullifier"] = ""
		}},
		{"missing timestamp", func(m map[string]interface{}) {
			m["publicOutputs"].(map[string]interface{})["timestamp"] = 0
		}},
		{"missing expiry", func(m map[string]interface{}) {
			m["publicOutputs"].(map[string]interface{})["expiresAt"] = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body := validResponse()
				tt.mutate(body)
				json.NewEncoder(w).Encode(body)
			}))
			defer srv.Close()

			c := NewClient(fastOptions(srv.URL))
			_, err := c.Generate(context.Background(), "c", nil, nil)

			var protoErr *ProtocolError
			assert.ErrorAs(t, err, &protoErr)
		})
	}
}

func TestGenerateTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	opts := fastOptions(srv.URL)
	opts.Timeout = 20 * time.Millisecond
	c := NewClient(opts)

	_, err := c.Generate(context.Background(), "c", nil, nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerateContextCancelStopsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := fastOptions(srv.URL)
	opts.BackoffBase = 500 * time.Millisecond
	opts.BackoffCap = 500 * time.Millisecond
	c := NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, "c", nil, nil)
	assert.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestBackoffBoundedByCap(t *testing.T) {
	c := NewClient(Options{
		BaseURL:     "http://unused",
		BackoffBase: time.Second,
		BackoffCap:  10 * time.Second,
	})

	for n := 0; n < 12; n++ {
		d := c.backoff(n)
		assert.LessOrEqual(t, d, 10*time.Second, "backoff(%d) exceeds cap", n)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(fastOptions(srv.URL))
	assert.NoError(t, c.Health(context.Background()))
}
