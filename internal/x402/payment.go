package x402

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// HTTP headers used by the gate.
const (
	PaymentHeader    = "X-PAYMENT"          // inline payment proof from the client
	SettlementHeader = "X-PAYMENT-RESPONSE" // settlement receipt echoed to the client
	ProofHeader      = "X-Payment-Proof"    // repeat-access attestation from the client
)

var ErrMalformedPayment = errors.New("invalid or malformed payment header")

// PaymentPayload is the decoded form of the X-PAYMENT header: a
// base64-encoded JSON envelope around a scheme-specific proof.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// DecodePayment decodes an X-PAYMENT header value.
func DecodePayment(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayment, err)
	}

	var p PaymentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayment, err)
	}
	if p.Scheme == "" || p.Network == "" || len(p.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing scheme, network or payload", ErrMalformedPayment)
	}

	p.X402Version = Version
	return &p, nil
}

// EncodePayment is the inverse of DecodePayment. Used by tests and clients.
func EncodePayment(p *PaymentPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
