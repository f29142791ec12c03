package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdchain/native/fees"
)

// Validate checks the configuration for values the node cannot start with.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if _, err := c.Commission(); err != nil {
		return err
	}
	if strings.TrimSpace(c.InstanceAddress) != "" {
		if _, err := ParseAddress(c.InstanceAddress); err != nil {
			return fmt.Errorf("config: InstanceAddress: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case "", "leveldb", "bolt":
	default:
		return fmt.Errorf("config: unsupported StorageBackend %q", c.StorageBackend)
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("config: RateLimit.RequestsPerMinute must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: RateLimit.Burst must be positive")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: Telemetry.SampleRatio must be within [0, 1]")
	}
	if c.Telemetry.MetricIntervalSeconds < 0 {
		return fmt.Errorf("config: Telemetry.MetricIntervalSeconds must not be negative")
	}
	for i, proxy := range c.RateLimit.TrustedProxies {
		if net.ParseIP(strings.TrimSpace(proxy)) == nil {
			return fmt.Errorf("config: RateLimit.TrustedProxies[%d] %q is not an IP address", i, proxy)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("config: Indexer.DSN required for driver %s", c.Indexer.Driver)
		}
	default:
		return fmt.Errorf("config: unsupported Indexer.Driver %q", c.Indexer.Driver)
	}
	seen := make(map[common.Address]struct{}, len(c.Genesis))
	for i, acct := range c.Genesis {
		addr, err := ParseAddress(acct.Address)
		if err != nil {
			return fmt.Errorf("config: Genesis[%d].Address: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("config: Genesis[%d]: duplicate address %s", i, addr.Hex())
		}
		seen[addr] = struct{}{}
		if _, err := ParseAmount(acct.Balance); err != nil {
			return fmt.Errorf("config: Genesis[%d].Balance: %w", i, err)
		}
	}
	chains := make(map[uint64]struct{}, len(c.Deployments))
	for i, dep := range c.Deployments {
		if dep.ChainID == 0 {
			return fmt.Errorf("config: Deployments[%d].ChainID required", i)
		}
		if _, dup := chains[dep.ChainID]; dup {
			return fmt.Errorf("config: Deployments[%d]: duplicate chain id %d", i, dep.ChainID)
		}
		chains[dep.ChainID] = struct{}{}
		if _, err := ParseAddress(dep.Address); err != nil {
			return fmt.Errorf("config: Deployments[%d].Address: %w", i, err)
		}
	}
	return nil
}

// Commission builds the withdrawal fee policy.
func (c *Config) Commission() (fees.Commission, error) {
	policy := fees.Commission{Bps: c.Crowdfund.FeeBps}
	if sink := strings.TrimSpace(c.Crowdfund.FeeSink); sink != "" {
		addr, err := ParseAddress(sink)
		if err != nil {
			return fees.Commission{}, fmt.Errorf("config: Crowdfund.FeeSink: %w", err)
		}
		policy.Sink = addr
	}
	if err := policy.Validate(); err != nil {
		return fees.Commission{}, fmt.Errorf("config: %w", err)
	}
	return policy, nil
}

// DeploymentFor returns the deployment registered for chainID.
func (c *Config) DeploymentFor(chainID uint64) (Deployment, bool) {
	for _, dep := range c.Deployments {
		if dep.ChainID == chainID {
			return dep, true
		}
	}
	return Deployment{}, false
}

// ParseAddress parses a 0x-prefixed 20-byte hex address. The zero address is
// rejected.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address not allowed")
	}
	return addr, nil
}

// ParseAmount parses a non-negative decimal amount of settlement units.
func ParseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}
