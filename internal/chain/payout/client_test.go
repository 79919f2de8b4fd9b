package payout

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/flipledger/internal/chain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signer is a tiny stand-in for the payout signer service.
type signer struct {
	mu      sync.Mutex
	payouts map[string]payoutResponse
}

func newSigner(t *testing.T) (*signer, *httptest.Server) {
	t.Helper()

	s := &signer{payouts: make(map[string]payoutResponse)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payouts":
			var req transferRequest
			_ = json.NewDecoder(r.Body).Decode(&req)

			if req.To == "BadAddress" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"error":"invalid destination"}`))

				return
			}

			if req.Amount == "999" {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}

			p, ok := s.payouts[req.Reference]
			if !ok {
				p = payoutResponse{Reference: req.Reference, Signature: "sig-" + req.Reference, Status: statusConfirmed}
				s.payouts[req.Reference] = p
			}

			_ = json.NewEncoder(w).Encode(p)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payouts/"):
			p, ok := s.payouts[strings.TrimPrefix(r.URL.Path, "/v1/payouts/")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			_ = json.NewEncoder(w).Encode(p)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return s, srv
}

func TestTransferAsset(t *testing.T) {
	t.Parallel()

	_, srv := newSigner(t)
	c := NewClient(srv.URL, "key-1", time.Second)

	tests := []struct {
		name       string
		req        chain.PayoutRequest
		wantSig    string
		wantReject bool
		wantErr    bool
	}{
		{
			name:    "ok",
			req:     chain.PayoutRequest{Reference: "w-1", To: "Dest", Amount: decimal.RequireFromString("5.25")},
			wantSig: "sig-w-1",
		},
		{
			name:    "same_reference_is_idempotent",
			req:     chain.PayoutRequest{Reference: "w-1", To: "Dest", Amount: decimal.RequireFromString("5.25")},
			wantSig: "sig-w-1",
		},
		{
			name:       "rejected",
			req:        chain.PayoutRequest{Reference: "w-2", To: "BadAddress", Amount: decimal.NewFromInt(1)},
			wantReject: true,
			wantErr:    true,
		},
		{
			name:    "unavailable_is_not_a_rejection",
			req:     chain.PayoutRequest{Reference: "w-3", To: "Dest", Amount: decimal.NewFromInt(999)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		sig, err := c.TransferAsset(t.Context(), tt.req)
		if tt.wantErr {
			require.Error(t, err, tt.name)
			assert.Equal(t, tt.wantReject, errors.Is(err, chain.ErrTransferRejected), tt.name)

			continue
		}

		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantSig, sig, tt.name)
	}
}

func TestFindPayout(t *testing.T) {
	t.Parallel()

	s, srv := newSigner(t)
	s.mu.Lock()
	s.payouts["w-ok"] = payoutResponse{Reference: "w-ok", Signature: "sig-ok", Status: statusConfirmed}
	s.payouts["w-failed"] = payoutResponse{Reference: "w-failed", Status: statusFailed}
	s.payouts["w-pending"] = payoutResponse{Reference: "w-pending", Status: "pending"}
	s.mu.Unlock()

	c := NewClient(srv.URL, "key-1", time.Second)

	sig, found, err := c.FindPayout(t.Context(), "w-ok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sig-ok", sig)

	_, found, err = c.FindPayout(t.Context(), "w-failed")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.FindPayout(t.Context(), "w-unknown")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = c.FindPayout(t.Context(), "w-pending")
	require.ErrorIs(t, err, ErrPayoutPending)
}
