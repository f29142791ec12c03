package otel

import (
	"context"
	"strings"
	"testing"
	"time"

	"crowdchain/config"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,bad, =skip,tenant=crowd")
	if len(headers) != 2 || headers["api-key"] != "abc" || headers["tenant"] != "crowd" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitDisabledSignalsIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "crowdd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestFromNodeConfig(t *testing.T) {
	cfg := &config.Config{
		Environment:     "staging",
		ChainID:         10143,
		InstanceAddress: " 0x00000000000000000000000000000000000c0ffe ",
		StorageBackend:  "bolt",
		Crowdfund:       config.CrowdfundConfig{FeeBps: 250},
		Telemetry: config.TelemetryConfig{
			Endpoint:              "collector:4318",
			Headers:               "api-key=abc",
			Traces:                true,
			SampleRatio:           0.25,
			MetricIntervalSeconds: 30,
		},
	}
	got := FromNodeConfig("crowdd", cfg)
	if got.ServiceName != "crowdd" || got.ChainID != 10143 || got.FeeBps != 250 || got.StorageBackend != "bolt" {
		t.Fatalf("unexpected identity %+v", got)
	}
	if got.Instance != "0x00000000000000000000000000000000000c0ffe" {
		t.Fatalf("instance must be trimmed, got %q", got.Instance)
	}
	if got.Headers["api-key"] != "abc" || got.MetricInterval != 30*time.Second || got.SampleRatio != 0.25 {
		t.Fatalf("unexpected exporter settings %+v", got)
	}
	if empty := FromNodeConfig("crowdd", nil); empty.ServiceName != "crowdd" || empty.Traces {
		t.Fatalf("nil config must only carry the service name, got %+v", empty)
	}
}

func TestResourceCarriesLedgerIdentity(t *testing.T) {
	res, err := Resource(Config{
		ServiceName:    "crowdd",
		ChainID:        50312,
		Instance:       "0x00000000000000000000000000000000000c0ffe",
		FeeBps:         100,
		StorageBackend: "leveldb",
	})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	set := res.Set()
	if v, ok := set.Value(AttrChainID); !ok || v.AsInt64() != 50312 {
		t.Fatalf("expected chain id attribute, got %v", v)
	}
	if v, ok := set.Value(AttrInstance); !ok || v.AsString() != "0x00000000000000000000000000000000000c0ffe" {
		t.Fatalf("expected instance attribute, got %v", v)
	}
	if v, ok := set.Value(AttrFeeBps); !ok || v.AsInt64() != 100 {
		t.Fatalf("expected fee attribute, got %v", v)
	}
	if v, ok := set.Value(AttrStorage); !ok || v.AsString() != "leveldb" {
		t.Fatalf("expected storage attribute, got %v", v)
	}
}

func TestSampler(t *testing.T) {
	if desc := Sampler(0).Description(); !strings.Contains(desc, "AlwaysOnSampler") {
		t.Fatalf("zero ratio must keep every span, got %s", desc)
	}
	if desc := Sampler(0.5).Description(); !strings.Contains(desc, "TraceIDRatioBased") {
		t.Fatalf("expected ratio sampler, got %s", desc)
	}
}
