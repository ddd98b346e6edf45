package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voucherd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `TreasuryAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress == "" || cfg.DataDir == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.ComplainPeriodSecs != 60 || cfg.CancelPeriodSecs != 60 {
		t.Fatalf("window defaults not applied: %+v", cfg)
	}
	if cfg.SupplyFile != filepath.Join(filepath.Dir(path), "supplies.toml") {
		t.Fatalf("supply file default not applied: %q", cfg.SupplyFile)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
TreasuryAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
LegacyField = true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRequiresTreasury(t *testing.T) {
	path := writeConfig(t, `ListenAddress = "127.0.0.1:9999"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing treasury address")
	}
	path = writeConfig(t, `TreasuryAddress = "not-an-address"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed treasury address")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voucherd.toml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error asking for a treasury address")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
}
