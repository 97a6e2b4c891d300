package x402

import (
	"context"
	"fmt"
)

// Gate enforces "no proof, no action" at the boundary of a guarded
// operation. It holds the receiving wallet and delegates proof validation
// and settlement to an external facilitator.
type Gate struct {
	facilitator FacilitatorClient
	payTo       string
}

// NewGate creates a payment gate paying out to the given wallet address.
func NewGate(facilitator FacilitatorClient, payTo string) (*Gate, error) {
	if payTo == "" {
		return nil, fmt.Errorf("receiver wallet address is required")
	}
	return &Gate{facilitator: facilitator, payTo: payTo}, nil
}

// PayTo returns the receiving wallet address.
func (g *Gate) PayTo() string {
	return g.payTo
}

// RejectionError reports an invalid payment proof. Payer, when known, is
// diagnostic only and carries no authorization weight.
type RejectionError struct {
	Reason string
	Payer  string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// SettlementError reports that a verified payment could not be finalized
// on-chain. Distinct from RejectionError: the proof was fine, so the client
// may retry without deriving a new one.
type SettlementError struct {
	Reason string
}

func (e *SettlementError) Error() string {
	return e.Reason
}

// Verify decodes the X-PAYMENT header, selects the best-matching requirement
// from the candidate set and asks the facilitator to validate it. Returns
// the selected requirement on success; ErrMalformedPayment or a
// *RejectionError otherwise.
func (g *Gate) Verify(ctx context.Context, paymentHeader string, reqs []PaymentRequirements) (PaymentRequirements, error) {
	payload, err := DecodePayment(paymentHeader)
	if err != nil {
		return PaymentRequirements{}, err
	}

	selected := findMatchingRequirement(reqs, payload)

	resp, err := g.facilitator.Verify(ctx, payload, selected)
	if err != nil {
		return PaymentRequirements{}, &RejectionError{Reason: "payment verification failed: " + err.Error()}
	}
	if !resp.IsValid {
		return PaymentRequirements{}, &RejectionError{Reason: resp.InvalidReason, Payer: resp.Payer}
	}

	return selected, nil
}

// Settle re-decodes the proof and asks the facilitator to finalize the
// on-chain transfer. Blocking: the guarded action must not proceed until
// this returns, or a client could redeem a valid-but-unsettled proof.
// Encode the result with SettleResponseHeader to echo it to the client.
func (g *Gate) Settle(ctx context.Context, paymentHeader string, req PaymentRequirements) (*SettleResponse, error) {
	payload, err := DecodePayment(paymentHeader)
	if err != nil {
		return nil, err
	}

	resp, err := g.facilitator.Settle(ctx, payload, req)
	if err != nil {
		return nil, &SettlementError{Reason: "payment settlement failed: " + err.Error()}
	}
	if !resp.Success {
		reason := resp.ErrorReason
		if reason == "" {
			reason = "payment settlement failed"
		}
		return nil, &SettlementError{Reason: reason}
	}

	return resp, nil
}
