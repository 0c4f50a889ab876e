package config

import (
	"fmt"
	"strings"

	"otcswap/crypto"
)

var (
	MaxFeePercentage = uint64(10_000)
	MaxMints         = 50
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("config: MaxConnections must be non-negative")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if c.Fee.Percentage > MaxFeePercentage {
		return fmt.Errorf("fee: Percentage %d exceeds %d", c.Fee.Percentage, MaxFeePercentage)
	}
	if strings.TrimSpace(c.Fee.Wallet) != "" {
		if _, err := crypto.ParseAddress(c.Fee.Wallet); err != nil {
			return fmt.Errorf("fee: Wallet: %w", err)
		}
	}
	if len(c.Mints) > MaxMints {
		return fmt.Errorf("config: %d mints exceeds limit of %d", len(c.Mints), MaxMints)
	}
	if _, err := c.MintAddresses(); err != nil {
		return err
	}
	if c.VaultDeposit.Amount > 0 {
		if _, err := crypto.ParseAddress(c.VaultDeposit.Asset); err != nil {
			return fmt.Errorf("vault_deposit: Asset: %w", err)
		}
	}
	for i, g := range c.Genesis {
		if _, err := crypto.ParseAddress(g.Account); err != nil {
			return fmt.Errorf("genesis[%d]: Account: %w", i, err)
		}
		if _, err := crypto.ParseAddress(g.Asset); err != nil {
			return fmt.Errorf("genesis[%d]: Asset: %w", i, err)
		}
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: HMACSecret required when auth is enabled (set %s)", EnvHMACSecret)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must be non-negative")
	}
	if c.Recon.RunHour < 0 || c.Recon.RunHour > 23 || c.Recon.RunMinute < 0 || c.Recon.RunMinute > 59 {
		return fmt.Errorf("recon: RunHour/RunMinute out of range")
	}
	if c.Sweeper.Enabled && c.Sweeper.IntervalSeconds <= 0 {
		return fmt.Errorf("sweeper: IntervalSeconds must be positive")
	}
	if strings.TrimSpace(c.Idempotency.Path) != "" && c.Idempotency.TTLSeconds <= 0 {
		return fmt.Errorf("idempotency: TTLSeconds must be positive")
	}
	return nil
}

// MintAddresses parses the configured initial asset allow-list.
func (c *Config) MintAddresses() ([][20]byte, error) {
	out := make([][20]byte, 0, len(c.Mints))
	for i, m := range c.Mints {
		addr, err := crypto.ParseAddress(m)
		if err != nil {
			return nil, fmt.Errorf("config: Mints[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}
