package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FeeWalletEnv overrides Crowdfund.FeeSink when set.
const FeeWalletEnv = "FEE_WALLET_ADDRESS"

type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	DataDir         string `toml:"DataDir"`
	StorageBackend  string `toml:"StorageBackend"`
	Environment     string `toml:"Environment"`
	ChainID         uint64 `toml:"ChainID"`
	InstanceAddress string `toml:"InstanceAddress"`
	LogFile         string `toml:"LogFile"`
	LogLevel        string `toml:"LogLevel"`

	Crowdfund   CrowdfundConfig  `toml:"Crowdfund"`
	Auth        AuthConfig       `toml:"Auth"`
	RateLimit   RateLimitConfig  `toml:"RateLimit"`
	Indexer     IndexerConfig    `toml:"Indexer"`
	Telemetry   TelemetryConfig  `toml:"Telemetry"`
	Genesis     []GenesisAccount `toml:"Genesis"`
	Deployments []Deployment     `toml:"Deployments"`
}

// CrowdfundConfig holds the withdrawal commission.
type CrowdfundConfig struct {
	FeeSink string `toml:"FeeSink"`
	FeeBps  uint32 `toml:"FeeBps"`
}

// AuthConfig configures bearer token validation. The HMAC secret is read from
// the environment variable named by JWTSecretEnv.
type AuthConfig struct {
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer"`
	Audience     string `toml:"Audience"`
}

// RateLimitConfig bounds per-client request rates. X-Forwarded-For is
// honoured only for requests arriving from one of TrustedProxies, or from any
// peer when TrustProxyHeaders is set.
type RateLimitConfig struct {
	RequestsPerMinute int      `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	TrustedProxies    []string `toml:"TrustedProxies"`
	TrustProxyHeaders bool     `toml:"TrustProxyHeaders"`
}

// IndexerConfig selects the event history store. Driver is "sqlite" or
// "postgres"; an empty driver disables indexing.
type IndexerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// TelemetryConfig drives the OTLP exporters. SampleRatio is the fraction of
// root spans kept (0 keeps all); MetricIntervalSeconds defaults to 15.
type TelemetryConfig struct {
	Endpoint              string  `toml:"Endpoint"`
	Headers               string  `toml:"Headers"`
	Insecure              bool    `toml:"Insecure"`
	Traces                bool    `toml:"Traces"`
	Metrics               bool    `toml:"Metrics"`
	SampleRatio           float64 `toml:"SampleRatio"`
	MetricIntervalSeconds int     `toml:"MetricIntervalSeconds"`
}

// GenesisAccount seeds a balance on first start. Balance is a decimal string.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Deployment maps a chain id to the ledger instance serving it.
type Deployment struct {
	ChainID uint64 `toml:"ChainID"`
	Name    string `toml:"Name"`
	Address string `toml:"Address"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
		cfg.ApplyEnv()
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if sink := strings.TrimSpace(os.Getenv(FeeWalletEnv)); sink != "" {
		c.Crowdfund.FeeSink = sink
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./crowd-data"
	}
	if strings.TrimSpace(c.StorageBackend) == "" {
		c.StorageBackend = "leveldb"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.Auth.JWTSecretEnv) == "" {
		c.Auth.JWTSecretEnv = "CROWD_JWT_SECRET"
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 600
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 60
	}
	if c.Genesis == nil {
		c.Genesis = []GenesisAccount{}
	}
	if c.Deployments == nil {
		c.Deployments = []Deployment{}
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8545",
		DataDir:     "./crowd-data",
		Environment: "local",
		ChainID:     31337,
		Auth:        AuthConfig{JWTSecretEnv: "CROWD_JWT_SECRET", Issuer: "crowdchain"},
		RateLimit:   RateLimitConfig{RequestsPerMinute: 600, Burst: 60},
		Indexer:     IndexerConfig{Driver: "sqlite", DSN: "crowd-index.db"},
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
