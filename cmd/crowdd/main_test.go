package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"crowdchain/config"
	"crowdchain/observability/logging"
)

func TestGenesisAllocs(t *testing.T) {
	cfg := &config.Config{Genesis: []config.GenesisAccount{
		{Address: "0x00000000000000000000000000000000000000d1", Balance: "1000"},
		{Address: "0x00000000000000000000000000000000000000d2", Balance: "0"},
	}}
	allocs, err := genesisAllocs(cfg)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if len(allocs) != 2 {
		t.Fatalf("expected two allocations, got %d", len(allocs))
	}
	if allocs[0].Balance.Uint64() != 1000 || !allocs[1].Balance.IsZero() {
		t.Fatalf("unexpected balances %v %v", allocs[0].Balance, allocs[1].Balance)
	}

	cfg.Genesis = append(cfg.Genesis, config.GenesisAccount{Address: "nope", Balance: "1"})
	if _, err := genesisAllocs(cfg); err == nil {
		t.Fatalf("expected invalid address to fail")
	}
	cfg.Genesis = []config.GenesisAccount{{Address: "0x00000000000000000000000000000000000000d1", Balance: "1.5"}}
	if _, err := genesisAllocs(cfg); err == nil {
		t.Fatalf("expected fractional balance to fail")
	}
}

func TestLogAuthSettingsMasksSecret(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	auth := config.AuthConfig{JWTSecretEnv: "CROWD_JWT_SECRET", Issuer: "crowdd", Audience: "crowd-rpc"}

	logAuthSettings(logger, auth, "hunter2-signing-key")
	out := buf.String()
	if strings.Contains(out, "hunter2-signing-key") {
		t.Fatalf("secret leaked into logs: %s", out)
	}
	if !strings.Contains(out, logging.RedactedValue) || !strings.Contains(out, "crowd-rpc") {
		t.Fatalf("expected masked secret with audience, got %s", out)
	}

	buf.Reset()
	logAuthSettings(logger, auth, "")
	if !strings.Contains(buf.String(), "mutating RPC methods are disabled") {
		t.Fatalf("expected disabled warning, got %s", buf.String())
	}
}
