package x402

import (
	"errors"
	"fmt"
)

var ErrUnknownNetwork = errors.New("unknown network")

// Network identifies a supported chain and its stablecoin asset.
type Network struct {
	Name          string
	ChainID       string
	Asset         string // USDC contract address
	EIP712Name    string
	EIP712Version string
}

// The gate supports exactly one asset (USDC) on the Base chain family.
var networks = map[string]Network{
	"base-sepolia": {
		Name:          "base-sepolia",
		ChainID:       "84532",
		Asset:         "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		EIP712Name:    "USDC",
		EIP712Version: "2",
	},
	"base": {
		Name:          "base",
		ChainID:       "8453",
		Asset:         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
	},
}

// NetworkByName looks up a supported network.
func NetworkByName(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	return n, nil
}
