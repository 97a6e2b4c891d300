package x402

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ChallengeMetadata describes the guarded resource inside a challenge.
type ChallengeMetadata struct {
	FileID    string `json:"fileId"`
	ShareLink string `json:"shareLink"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Duration  int    `json:"duration"`
}

// Challenge is the structured "payment required" response issued when a
// guarded resource is requested without a usable proof.
type Challenge struct {
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Receiver    string            `json:"receiver"`
	Network     string            `json:"network"`
	ChainID     string            `json:"chainId"`
	Description string            `json:"description"`
	Metadata    ChallengeMetadata `json:"metadata"`
	Nonce       string            `json:"nonce"`
	Timestamp   int64             `json:"timestamp"`
}

// NewChallenge builds a payment challenge for a stored resource.
func (g *Gate) NewChallenge(networkName, amount, description string, meta ChallengeMetadata) (*Challenge, error) {
	network, err := NetworkByName(networkName)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return &Challenge{
		Amount:      amount,
		Currency:    "USDC",
		Receiver:    g.payTo,
		Network:     network.Name,
		ChainID:     network.ChainID,
		Description: description,
		Metadata:    meta,
		Nonce:       hex.EncodeToString(nonce),
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

var challengeHeaders = "WWW-Authenticate, X-Payment-Required, X-Payment-Amount, " +
	"X-Payment-Currency, X-Payment-Receiver, X-Payment-Network, X-Payment-Chain-Id, " +
	"X-Payment-Description, X-Payment-Metadata, X-Payment-Nonce"

// WriteChallenge writes the challenge as a 402 response with the full
// challenge header set and a JSON body.
func WriteChallenge(w http.ResponseWriter, c *Challenge) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}

	h := w.Header()
	h.Set("WWW-Authenticate", "X402")
	h.Set("X-Payment-Required", "true")
	h.Set("X-Payment-Amount", c.Amount)
	h.Set("X-Payment-Currency", c.Currency)
	h.Set("X-Payment-Receiver", c.Receiver)
	h.Set("X-Payment-Network", c.Network)
	h.Set("X-Payment-Chain-Id", c.ChainID)
	h.Set("X-Payment-Description", c.Description)
	h.Set("X-Payment-Metadata", string(metadata))
	h.Set("X-Payment-Nonce", c.Nonce)
	h.Set("Access-Control-Expose-Headers", challengeHeaders)
	h.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	return json.NewEncoder(w).Encode(map[string]any{
		"error":     "Payment Required",
		"message":   "This resource requires payment",
		"challenge": c,
	})
}

// PaymentProof is the repeat-access attestation carried in X-Payment-Proof:
// the paying file id plus the on-chain transaction hash. It is not
// independently re-verified on-chain; callers must at minimum cross-check
// FileID against the requested resource.
type PaymentProof struct {
	FileID          string `json:"fileId"`
	TransactionHash string `json:"transactionHash"`

	raw string
}

// Raw returns the proof header exactly as supplied, for persisting as
// settlement metadata.
func (p *PaymentProof) Raw() string {
	return p.raw
}

// ParseProof parses an X-Payment-Proof header value.
func ParseProof(header string) (*PaymentProof, error) {
	var p PaymentProof
	if err := json.Unmarshal([]byte(header), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayment, err)
	}
	if p.FileID == "" || p.TransactionHash == "" {
		return nil, fmt.Errorf("%w: proof requires fileId and transactionHash", ErrMalformedPayment)
	}
	p.raw = header
	return &p, nil
}
