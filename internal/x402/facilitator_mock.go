package x402

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/logging"
)

// MockFacilitator implements FacilitatorClient for development: it approves
// every proof and fabricates a settlement transaction. Never use it with a
// real receiver wallet.
type MockFacilitator struct{}

// NewMockFacilitator creates a facilitator that approves everything.
func NewMockFacilitator() *MockFacilitator {
	return &MockFacilitator{}
}

func (m *MockFacilitator) Verify(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*VerifyResponse, error) {
	logging.X402.Printf("mock: approving payment (network=%s, amount=%s)", req.Network, req.MaxAmountRequired)
	return &VerifyResponse{IsValid: true, Payer: "0xmockpayer"}, nil
}

func (m *MockFacilitator) Settle(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*SettleResponse, error) {
	tx, err := fakeTransactionHash()
	if err != nil {
		return nil, err
	}
	logging.X402.Printf("mock: settling payment (tx=%s)", tx[:10])
	return &SettleResponse{
		Success:     true,
		Transaction: tx,
		Network:     req.Network,
		Payer:       "0xmockpayer",
	}, nil
}

func fakeTransactionHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}
