package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds environment-driven settings. Listen address, database path
// and the storage directory stay on command-line flags; everything tied to
// deployment secrets lives here.
type Config struct {
	// Wallet address that receives payments. When empty the server runs
	// with a mock facilitator that approves everything.
	ReceiverWallet string `env:"X402_RECEIVER_WALLET"`

	// Facilitator base URL for verify/settle calls.
	FacilitatorURL string `env:"X402_FACILITATOR_URL"`

	// Payment network to quote requirements on.
	Network string `env:"X402_NETWORK" envDefault:"base-sepolia"`

	// When true, uploads are stored unpaid and the downloader pays instead.
	DeferUploadPayment bool `env:"X402_DEFER_UPLOAD_PAYMENT"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config selects the S3-compatible blob backend. Leaving Bucket empty
// keeps blobs on the local filesystem.
type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	KeyID     string `env:"KEY_ID"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"`
	Prefix    string `env:"PREFIX"`
}

// Load reads .env if present, then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.S3.Bucket != "" {
		if cfg.S3.Endpoint == "" || cfg.S3.KeyID == "" || cfg.S3.SecretKey == "" {
			return nil, fmt.Errorf("S3_BUCKET is set but S3_ENDPOINT, S3_KEY_ID or S3_SECRET_KEY is missing")
		}
	}

	return cfg, nil
}
