package x402

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/pricing"
)

// Version is the x402 protocol version spoken by this gate.
const Version = 1

// MaxTimeoutSeconds is advisory metadata passed through to the payer; the
// gate does not enforce it locally.
const MaxTimeoutSeconds = 120

var ErrPriceConversion = errors.New("cannot express price in atomic units")

// ExtraInfo carries the EIP-712 domain of the asset for exact-scheme payments.
type ExtraInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentRequirements describes what must be paid for a specific resource.
type PaymentRequirements struct {
	Scheme            string     `json:"scheme"`
	Network           string     `json:"network"`
	MaxAmountRequired string     `json:"maxAmountRequired"`
	Resource          string     `json:"resource"`
	Description       string     `json:"description"`
	MimeType          string     `json:"mimeType"`
	PayTo             string     `json:"payTo"`
	MaxTimeoutSeconds int        `json:"maxTimeoutSeconds"`
	Asset             string     `json:"asset"`
	Extra             *ExtraInfo `json:"extra,omitempty"`
}

// NewRequirement converts a decimal USD price (with optional "$" prefix)
// into the asset's atomic units and packages it as an exact-scheme payment
// requirement for the given resource.
func (g *Gate) NewRequirement(price, networkName, resource, description string) (PaymentRequirements, error) {
	network, err := NetworkByName(networkName)
	if err != nil {
		return PaymentRequirements{}, err
	}

	amount, err := pricing.ParseUSD(price)
	if err != nil {
		return PaymentRequirements{}, fmt.Errorf("%w: %v", ErrPriceConversion, err)
	}

	return PaymentRequirements{
		Scheme:            "exact",
		Network:           network.Name,
		MaxAmountRequired: strconv.FormatInt(amount.AtomicUnits(), 10),
		Resource:          resource,
		Description:       description,
		MimeType:          "",
		PayTo:             g.payTo,
		MaxTimeoutSeconds: MaxTimeoutSeconds,
		Asset:             network.Asset,
		Extra: &ExtraInfo{
			Name:    network.EIP712Name,
			Version: network.EIP712Version,
		},
	}, nil
}

// findMatchingRequirement selects the requirement matching the decoded
// payment's scheme and network, falling back to the first candidate.
func findMatchingRequirement(reqs []PaymentRequirements, payload *PaymentPayload) PaymentRequirements {
	for _, req := range reqs {
		if req.Scheme == payload.Scheme && req.Network == payload.Network {
			return req
		}
	}
	return reqs[0]
}
