//go:build e2e

package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const (
	timeout   = 10 * time.Second
	waitReady = 20 * time.Second
)

var httpClient = &http.Client{Timeout: timeout}

func env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	return v
}

func baseURL() string { return env("E2E_BASE_URL", "http://localhost:8080") }

// token signs an HS256 token the API accepts, for a fresh subject per test.
func token(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   subject,
		"email": subject + "@e2e.test",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}

	if iss := os.Getenv("E2E_JWT_ISSUER"); iss != "" {
		claims["iss"] = iss
	}

	if aud := os.Getenv("E2E_JWT_AUDIENCE"); aud != "" {
		claims["aud"] = aud
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(env("E2E_JWT_SECRET", "dev-secret")))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return signed
}

func TestE2E_AccountAndBets(t *testing.T) {
	waitUntilReady(t)

	tok := token(t, fmt.Sprintf("e2e-%d", time.Now().UnixNano()))

	var start decimal.Decimal

	t.Run("me_creates_account", func(t *testing.T) {
		code, body := call(t, tok, http.MethodGet, "/v1/me", "")
		if code != http.StatusOK {
			t.Fatalf("GET /v1/me: want 200, got %d (%v)", code, body)
		}

		start = money(t, body["balance"])
		if body["bound_deposit_address"] != nil {
			t.Fatalf("new account must be unbound, got %v", body["bound_deposit_address"])
		}
	})

	t.Run("bet_moves_balance_by_stake", func(t *testing.T) {
		if start.LessThan(decimal.NewFromInt(1)) {
			t.Skip("set DEFAULT_BALANCE >= 1 to exercise bets")
		}

		code, body := call(t, tok, http.MethodPost, "/v1/bets", `{"amount":"1.00"}`)
		if code != http.StatusOK {
			t.Fatalf("bet: want 200, got %d (%v)", code, body)
		}

		want := start.Sub(decimal.NewFromInt(1))
		if body["won"] == true {
			want = start.Add(decimal.NewFromInt(1))
		}

		if got := money(t, body["balance"]); !got.Equal(want) {
			t.Fatalf("after bet: want %s, got %s", want, got)
		}

		code, body = call(t, tok, http.MethodPost, "/v1/me/reconcile", "")
		if code != http.StatusOK || body["changed"] != false {
			t.Fatalf("reconcile after bet: got %d (%v)", code, body)
		}
	})

	t.Run("history_lists_entries", func(t *testing.T) {
		code, body := call(t, tok, http.MethodGet, "/v1/me/history?limit=5", "")
		if code != http.StatusOK {
			t.Fatalf("history: want 200, got %d (%v)", code, body)
		}

		if _, ok := body["entries"].([]any); !ok {
			t.Fatalf("history: entries missing in %v", body)
		}
	})
}

func TestE2E_RejectionsLeaveStateUnchanged(t *testing.T) {
	waitUntilReady(t)

	tok := token(t, fmt.Sprintf("e2e-rej-%d", time.Now().UnixNano()))

	_, before := call(t, tok, http.MethodGet, "/v1/me", "")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bet_three_decimals", http.MethodPost, "/v1/bets", `{"amount":"1.001"}`, http.StatusBadRequest},
		{"bet_negative", http.MethodPost, "/v1/bets", `{"amount":"-1"}`, http.StatusBadRequest},
		{"withdraw_unbound", http.MethodPost, "/v1/withdrawals", `{"amount":"1"}`, http.StatusConflict},
		{"rescan_unbound", http.MethodPost, "/v1/deposits", `{"mode":"auto"}`, http.StatusConflict},
		{"deposit_bad_signature", http.MethodPost, "/v1/deposits", `{"signature":"0OIl"}`, http.StatusBadRequest},
		{"payout_bad_address", http.MethodPut, "/v1/me/payout-address", `{"address":"x"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := call(t, tok, tc.method, tc.path, tc.body)
			if code != tc.want {
				t.Fatalf("want %d, got %d (%v)", tc.want, code, body)
			}
		})
	}

	_, after := call(t, tok, http.MethodGet, "/v1/me", "")
	if before["balance"] != after["balance"] {
		t.Fatalf("balance changed by rejected requests: %v -> %v", before["balance"], after["balance"])
	}

	code, _ := call(t, "not-a-token", http.MethodGet, "/v1/me", "")
	if code != http.StatusUnauthorized {
		t.Fatalf("invalid token: want 401, got %d", code)
	}
}

// TestE2E_DepositIdempotent needs a real confirmed transfer to the pool.
func TestE2E_DepositIdempotent(t *testing.T) {
	sig := os.Getenv("E2E_DEPOSIT_SIGNATURE")
	if sig == "" {
		t.Skip("E2E_DEPOSIT_SIGNATURE not set")
	}

	waitUntilReady(t)

	tok := token(t, fmt.Sprintf("e2e-dep-%d", time.Now().UnixNano()))
	payload := fmt.Sprintf(`{"signature":%q}`, sig)

	code, body := call(t, tok, http.MethodPost, "/v1/deposits", payload)
	if code != http.StatusOK && code != http.StatusConflict {
		t.Fatalf("first deposit: got %d (%v)", code, body)
	}

	code, body = call(t, tok, http.MethodPost, "/v1/deposits", payload)
	if code != http.StatusConflict {
		t.Fatalf("replayed deposit: want 409, got %d (%v)", code, body)
	}
}

func call(t *testing.T, tok, method, path, body string) (int, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}

	req, err := http.NewRequest(method, baseURL()+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var out map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}

	return resp.StatusCode, out
}

func money(t *testing.T, v any) decimal.Decimal {
	t.Helper()

	s, ok := v.(string)
	if !ok {
		t.Fatalf("amount is not a string: %v", v)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse amount %q: %v", s, err)
	}

	return d
}

// waitUntilReady polls /healthz.
func waitUntilReady(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitReady)
	defer cancel()

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", baseURL(), waitReady)
		case <-tick.C:
			resp, err := httpClient.Get(baseURL() + "/healthz")
			if err != nil {
				continue
			}

			_ = resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}
