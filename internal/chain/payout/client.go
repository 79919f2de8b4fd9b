// Package payout is the HTTP client of the payout signer, the service that
// holds the treasury key and submits pool transfers on chain.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fastprodman/flipledger/internal/chain"
)

var _ chain.Payer = (*Client)(nil)

const (
	statusConfirmed = "confirmed"
	statusFailed    = "failed"
)

// ErrPayoutPending means the signer knows the reference but has not settled it.
var ErrPayoutPending = errors.New("payout still pending")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transferRequest struct {
	Reference string `json:"reference"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
}

type payoutResponse struct {
	Reference string `json:"reference"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// TransferAsset submits the payout. 4xx answers are definitive rejections;
// anything else that is not a success may or may not have paid.
func (c *Client) TransferAsset(ctx context.Context, req chain.PayoutRequest) (string, error) {
	body, err := json.Marshal(transferRequest{
		Reference: req.Reference,
		To:        req.To,
		Amount:    req.Amount.String(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal payout request: %w", err)
	}

	var out payoutResponse

	status, msg, err := c.do(ctx, http.MethodPost, "/v1/payouts", body, &out)
	if err != nil {
		return "", err
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		if out.Status == statusFailed {
			return "", fmt.Errorf("payout %s: %w", req.Reference, chain.ErrTransferRejected)
		}

		if out.Signature == "" {
			return "", fmt.Errorf("payout %s: signer returned no signature", req.Reference)
		}

		return out.Signature, nil
	case status >= 400 && status < 500:
		return "", fmt.Errorf("payout %s: status %d %s: %w", req.Reference, status, msg, chain.ErrTransferRejected)
	default:
		return "", fmt.Errorf("payout %s: signer returned status %d", req.Reference, status)
	}
}

func (c *Client) FindPayout(ctx context.Context, reference string) (string, bool, error) {
	var out payoutResponse

	status, _, err := c.do(ctx, http.MethodGet, "/v1/payouts/"+url.PathEscape(reference), nil, &out)
	if err != nil {
		return "", false, err
	}

	switch status {
	case http.StatusNotFound:
		return "", false, nil
	case http.StatusOK:
	default:
		return "", false, fmt.Errorf("find payout %s: signer returned status %d", reference, status)
	}

	switch out.Status {
	case statusConfirmed:
		return out.Signature, true, nil
	case statusFailed:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("find payout %s: %w", reference, ErrPayoutPending)
	}
}

// do decodes a JSON body into out on 2xx. For other answers it returns the
// status and the signer's error message, if any.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("execute %s %s: %w", method, path, err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		err = json.Unmarshal(respBody, out)
		if err != nil {
			return 0, "", fmt.Errorf("decode response: %w", err)
		}

		return resp.StatusCode, "", nil
	}

	var apiErr errorResponse

	_ = json.Unmarshal(respBody, &apiErr)

	return resp.StatusCode, apiErr.Error, nil
}
