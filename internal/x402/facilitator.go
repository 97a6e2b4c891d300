package x402

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/logging"
)

// DefaultFacilitatorURL is the public x402 facilitator.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// VerifyResponse is the facilitator's verdict on a payment proof.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's result for an on-chain settlement.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// FacilitatorClient verifies and settles payments against an external
// facilitator service.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*SettleResponse, error)
}

// facilitatorRequest is the body POSTed to /verify and /settle.
type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      *PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// HTTPFacilitator implements FacilitatorClient over the facilitator's HTTP API.
type HTTPFacilitator struct {
	baseURL    string
	httpClient *http.Client
}

// FacilitatorConfig holds configuration for the HTTP facilitator client.
type FacilitatorConfig struct {
	URL string
}

// NewHTTPFacilitator creates a facilitator client for the given endpoint.
func NewHTTPFacilitator(cfg FacilitatorConfig) (*HTTPFacilitator, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("facilitator URL is required")
	}

	return &HTTPFacilitator{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (c *HTTPFacilitator) Verify(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*VerifyResponse, error) {
	logging.X402.Printf("verifying payment (network=%s, amount=%s)", req.Network, req.MaxAmountRequired)

	var resp VerifyResponse
	if err := c.post(ctx, "/verify", payload, req, &resp); err != nil {
		return nil, err
	}

	if resp.IsValid {
		logging.X402.Printf("payment valid (payer=%s)", resp.Payer)
	} else {
		logging.X402.Printf("payment invalid: %s", resp.InvalidReason)
	}
	return &resp, nil
}

func (c *HTTPFacilitator) Settle(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*SettleResponse, error) {
	logging.X402.Printf("settling payment (network=%s, amount=%s)", req.Network, req.MaxAmountRequired)

	var resp SettleResponse
	if err := c.post(ctx, "/settle", payload, req, &resp); err != nil {
		return nil, err
	}

	if resp.Success {
		logging.X402.Printf("settlement succeeded (tx=%s)", resp.Transaction)
	} else {
		logging.X402.Printf("settlement failed: %s", resp.ErrorReason)
	}
	return &resp, nil
}

func (c *HTTPFacilitator) post(ctx context.Context, path string, payload *PaymentPayload, req PaymentRequirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         Version,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("facilitator returned status %d: %s", httpResp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SettleResponseHeader encodes a settlement result as the opaque
// X-PAYMENT-RESPONSE header value.
func SettleResponseHeader(resp *SettleResponse) string {
	raw, _ := json.Marshal(resp)
	return base64.StdEncoding.EncodeToString(raw)
}
