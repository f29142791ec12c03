package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv(FeeWalletEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8545" || cfg.ChainID != 31337 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file to be written: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadParsesCrowdfundSettings(t *testing.T) {
	t.Setenv(FeeWalletEnv, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
ChainID = 10143
InstanceAddress = "0x00000000000000000000000000000000000000c1"

[Crowdfund]
FeeSink = "0x00000000000000000000000000000000000000fe"
FeeBps = 250

[Indexer]
Driver = "postgres"
DSN = "postgres://crowd@localhost/crowd"

[[Genesis]]
Address = "0x00000000000000000000000000000000000000d1"
Balance = "1000000000000000000000"

[[Deployments]]
ChainID = 10143
Name = "monad-testnet"
Address = "0x00000000000000000000000000000000000000c1"

[[Deployments]]
ChainID = 50312
Name = "somnia-testnet"
Address = "0x00000000000000000000000000000000000000c2"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	policy, err := cfg.Commission()
	if err != nil {
		t.Fatalf("commission: %v", err)
	}
	if policy.Bps != 250 || !strings.EqualFold(policy.Sink.Hex(), "0x00000000000000000000000000000000000000fe") {
		t.Fatalf("unexpected commission %+v", policy)
	}
	if cfg.RateLimit.RequestsPerMinute != 600 || cfg.Auth.JWTSecretEnv != "CROWD_JWT_SECRET" {
		t.Fatalf("expected defaults to fill unset sections, got %+v", cfg)
	}
	dep, ok := cfg.DeploymentFor(50312)
	if !ok || dep.Name != "somnia-testnet" {
		t.Fatalf("unexpected deployment %+v (ok=%v)", dep, ok)
	}
	if len(cfg.Genesis) != 1 {
		t.Fatalf("expected one genesis account")
	}
	amount, err := ParseAmount(cfg.Genesis[0].Balance)
	if err != nil || amount.Dec() != "1000000000000000000000" {
		t.Fatalf("unexpected genesis balance %v (%v)", amount, err)
	}
}

func TestFeeWalletEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[Crowdfund]\nFeeBps = 100\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(FeeWalletEnv, "0x00000000000000000000000000000000000000aa")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	policy, err := cfg.Commission()
	if err != nil {
		t.Fatalf("commission: %v", err)
	}
	if !strings.EqualFold(policy.Sink.Hex(), "0x00000000000000000000000000000000000000aa") {
		t.Fatalf("expected env sink, got %s", policy.Sink.Hex())
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "bps too high", mutate: func(c *Config) { c.Crowdfund.FeeBps = 10_001 }, want: "bps out of range"},
		{name: "missing sink", mutate: func(c *Config) { c.Crowdfund.FeeBps = 10 }, want: "sink required"},
		{name: "bad sink", mutate: func(c *Config) { c.Crowdfund.FeeSink = "0x1234" }, want: "FeeSink"},
		{name: "bad genesis balance", mutate: func(c *Config) {
			c.Genesis = []GenesisAccount{{Address: "0x00000000000000000000000000000000000000d1", Balance: "-5"}}
		}, want: "Genesis[0].Balance"},
		{name: "duplicate deployment", mutate: func(c *Config) {
			dep := Deployment{ChainID: 1, Address: "0x00000000000000000000000000000000000000c1"}
			c.Deployments = []Deployment{dep, dep}
		}, want: "duplicate chain id"},
		{name: "sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, want: "SampleRatio"},
		{name: "bad proxy", mutate: func(c *Config) { c.RateLimit.TrustedProxies = []string{"proxy.local"} }, want: "TrustedProxies"},
		{name: "unknown storage", mutate: func(c *Config) { c.StorageBackend = "rocksdb" }, want: "StorageBackend"},
		{name: "unknown indexer", mutate: func(c *Config) { c.Indexer.Driver = "mysql" }, want: "unsupported Indexer.Driver"},
		{name: "indexer without dsn", mutate: func(c *Config) { c.Indexer.Driver = "sqlite" }, want: "Indexer.DSN"},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit.RequestsPerMinute = -1 }, want: "RequestsPerMinute"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseAddressRejectsZero(t *testing.T) {
	if _, err := ParseAddress("0x0000000000000000000000000000000000000000"); err == nil {
		t.Fatalf("expected zero address rejection")
	}
	if _, err := ParseAddress("not-an-address"); err == nil {
		t.Fatalf("expected malformed address rejection")
	}
}
