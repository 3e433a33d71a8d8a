package main

import (
	"testing"
)

func TestParseArgs_StreamOnly(t *testing.T) {
	cfg, err := parseArgs([]string{"dispatch-profiler", "dispatches.jsonl"})
	if err != nil {
		t.Fatalf("parseArgs() error: %v", err)
	}
	if cfg.StreamPath != "dispatches.jsonl" {
		t.Errorf("StreamPath = %q, want dispatches.jsonl", cfg.StreamPath)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty", cfg.MetricsAddr)
	}
}

func TestParseArgs_MetricsAddr(t *testing.T) {
	cfg, err := parseArgs([]string{"dispatch-profiler", "--metrics-addr", ":9090", "run.jsonl"})
	if err != nil {
		t.Fatalf("parseArgs() error: %v", err)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
	if cfg.StreamPath != "run.jsonl" {
		t.Errorf("StreamPath = %q, want run.jsonl", cfg.StreamPath)
	}
}

func TestParseArgs_MissingStream(t *testing.T) {
	if _, err := parseArgs([]string{"dispatch-profiler"}); err == nil {
		t.Error("expected usage error without a stream path")
	}
	if _, err := parseArgs([]string{"dispatch-profiler", "--metrics-addr", ":9090"}); err == nil {
		t.Error("expected usage error with flags but no stream path")
	}
}

func TestParseArgs_MetricsAddrWithoutValue(t *testing.T) {
	if _, err := parseArgs([]string{"dispatch-profiler", "--metrics-addr"}); err == nil {
		t.Error("expected error for --metrics-addr without a value")
	}
}
