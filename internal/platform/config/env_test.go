package config

import (
	"strings"
	"testing"
)

type portConfig struct {
	Port int `env:"STORYWEFT_TEST_PORT" envDefault:"123"`
}

func TestParseEnvAppliesDefaults(t *testing.T) {
	cfg, err := ParseEnv[portConfig]()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("port = %d, want 123", cfg.Port)
	}
}

func TestParseEnvReadsEnvironment(t *testing.T) {
	t.Setenv("STORYWEFT_TEST_PORT", "321")

	cfg, err := ParseEnv[portConfig]()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 321 {
		t.Fatalf("port = %d, want 321", cfg.Port)
	}
}

func TestParseEnvRejectsBadValue(t *testing.T) {
	t.Setenv("STORYWEFT_TEST_PORT", "not-a-number")

	_, err := ParseEnv[portConfig]()
	if err == nil {
		t.Fatal("bad value should fail")
	}
	if !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("err = %v, want parse env wrap", err)
	}
}
