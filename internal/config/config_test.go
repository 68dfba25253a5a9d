package config

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_AppliesDefaultAddresses(t *testing.T) {
	cfg, err := New("https://payments.example", "key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Contract.PreprodAddress != DefaultPreprodAddress {
		t.Errorf("preprod: got %q want %q", cfg.Contract.PreprodAddress, DefaultPreprodAddress)
	}
	if cfg.Contract.MainnetAddress != DefaultMainnetAddress {
		t.Errorf("mainnet: got %q want %q", cfg.Contract.MainnetAddress, DefaultMainnetAddress)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("timeout: got %v want 30s", cfg.RequestTimeout())
	}
}

func TestNew_Options(t *testing.T) {
	cfg, err := New("https://payments.example", "key",
		WithRegistry("https://registry.example", "reg-key"),
		WithPreprodAddress("addr_test_custom"),
		WithMainnetAddress(""),
		WithRequestTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Registry.ServiceURL != "https://registry.example" || cfg.Registry.APIKey != "reg-key" {
		t.Errorf("registry: got %+v", cfg.Registry)
	}
	if cfg.Contract.PreprodAddress != "addr_test_custom" {
		t.Errorf("preprod: got %q", cfg.Contract.PreprodAddress)
	}
	if cfg.Contract.MainnetAddress != DefaultMainnetAddress {
		t.Errorf("empty mainnet override should keep default, got %q", cfg.Contract.MainnetAddress)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Errorf("timeout: got %v", cfg.RequestTimeout())
	}
}

func TestNew_SubSecondTimeout(t *testing.T) {
	cfg, err := New("https://payments.example", "key", WithRequestTimeout(500*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.RequestTimeout() != 500*time.Millisecond {
		t.Errorf("timeout: got %v want 500ms", cfg.RequestTimeout())
	}

	cfg, _ = New("https://payments.example", "key", WithRequestTimeout(-time.Second))
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("negative timeout: got %v want default 30s", cfg.RequestTimeout())
	}
}

func TestNew_MissingFieldsAllNamed(t *testing.T) {
	_, err := New("", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("errors.Is(ErrConfiguration) = false for %v", err)
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	want := []string{"PAYMENT_SERVICE_URL", "PAYMENT_API_KEY"}
	if !reflect.DeepEqual(cerr.Missing, want) {
		t.Errorf("missing: got %v want %v", cerr.Missing, want)
	}
}

func TestNew_MissingAPIKeyOnly(t *testing.T) {
	_, err := New("https://payments.example", "  ")
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(cerr.Missing) != 1 || cerr.Missing[0] != "PAYMENT_API_KEY" {
		t.Errorf("missing: got %v", cerr.Missing)
	}
}

func TestContractAddress(t *testing.T) {
	cfg, _ := New("u", "k")
	if got := cfg.ContractAddress("Preprod"); got != DefaultPreprodAddress {
		t.Errorf("Preprod: got %q", got)
	}
	if got := cfg.ContractAddress("Mainnet"); got != DefaultMainnetAddress {
		t.Errorf("Mainnet: got %q", got)
	}
	if got := cfg.ContractAddress("unknown"); got != DefaultPreprodAddress {
		t.Errorf("unknown network should resolve to preprod, got %q", got)
	}
}

// ── Load ──────────────────────────────────────────────────────────────────────

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PAYMENT_SERVICE_URL", "https://payments.example/api/v1")
	t.Setenv("PAYMENT_API_KEY", "env-key")
	t.Setenv("AGENT_IDENTIFIER", "agent-1")
	t.Setenv("NETWORK", "Mainnet")
	t.Setenv("POLL_INTERVAL_SEC", "15")
	t.Setenv("OPERATOR_ADDRESSES", "0xAbc, 0xDef ,")
	t.Setenv("REQUEST_TIMEOUT", "750ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Payment.ServiceURL != "https://payments.example/api/v1" || cfg.Payment.APIKey != "env-key" {
		t.Errorf("payment: got %+v", cfg.Payment)
	}
	if cfg.Agent.Identifier != "agent-1" || cfg.Agent.Network != "Mainnet" {
		t.Errorf("agent: got %+v", cfg.Agent)
	}
	if cfg.RequestTimeout() != 750*time.Millisecond {
		t.Errorf("timeout: got %v want 750ms", cfg.RequestTimeout())
	}
	if cfg.Monitor.PollIntervalSec != 15 {
		t.Errorf("poll interval: got %d", cfg.Monitor.PollIntervalSec)
	}
	if cfg.Monitor.IdleIntervalSec != 60 || cfg.Monitor.StatusLimit != 10 {
		t.Errorf("monitor defaults: got %+v", cfg.Monitor)
	}
	if cfg.Contract.PreprodAddress != DefaultPreprodAddress {
		t.Errorf("preprod default: got %q", cfg.Contract.PreprodAddress)
	}
	if ops := cfg.Operators(); !reflect.DeepEqual(ops, []string{"0xAbc", "0xDef"}) {
		t.Errorf("operators: got %v", ops)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("PAYMENT_SERVICE_URL", "")
	t.Setenv("PAYMENT_API_KEY", "")

	_, err := Load()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
