package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nassync.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[nas]
address = "192.0.2.10"
username = "api"
password = "pw"
read_timeout = "20s"

[sync]
allow_list = "Customers"
probe_count = 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NAS.Address != "192.0.2.10" || cfg.NAS.Username != "api" {
		t.Fatalf("unexpected nas config %+v", cfg.NAS)
	}
	if cfg.NAS.Port != 8728 {
		t.Fatalf("expected default port, got %d", cfg.NAS.Port)
	}
	if cfg.NAS.ReadTimeout != 20*time.Second {
		t.Fatalf("expected parsed read timeout, got %v", cfg.NAS.ReadTimeout)
	}
	if cfg.Sync.AllowList != "Customers" || cfg.Sync.ProbeCount != 5 {
		t.Fatalf("unexpected sync config %+v", cfg.Sync)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[nas]
address = "192.0.2.10"
username = "api"
`)
	t.Setenv("NASSYNC_NAS_ADDRESS", "192.0.2.99")
	t.Setenv("NASSYNC_NAS_PORT", "8729")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NAS.Address != "192.0.2.99" {
		t.Fatalf("environment must win over the file, got %q", cfg.NAS.Address)
	}
	if cfg.NAS.Port != 8729 {
		t.Fatalf("expected env port override, got %d", cfg.NAS.Port)
	}
}

func TestLoadWithoutFileUsesEnvOnly(t *testing.T) {
	t.Setenv("NASSYNC_NAS_ADDRESS", "192.0.2.1")
	t.Setenv("NASSYNC_NAS_USERNAME", "api")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NAS.Address != "192.0.2.1" {
		t.Fatalf("unexpected address %q", cfg.NAS.Address)
	}
}

func TestValidateRejectsPlaceholderAddress(t *testing.T) {
	cfg := Default()
	cfg.NAS.Address = "<NAS IP>"
	cfg.NAS.Username = "api"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("placeholder address must be rejected")
	}
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	cfg := Default()
	cfg.NAS.Address = "192.0.2.1"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing username must be rejected")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[nas]
address = "192.0.2.10"
username = "api"
read_timeout = "soon"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("unparsable duration must be rejected")
	}
}

func TestDialerMapping(t *testing.T) {
	cfg := Default()
	cfg.NAS.Address = "192.0.2.1"
	cfg.NAS.Username = "api"
	cfg.Sync.AllowList = "Customers"

	dc := cfg.Dialer()
	if dc.Session.Address != "192.0.2.1" || dc.Session.Port != 8728 {
		t.Fatalf("unexpected session config %+v", dc.Session)
	}
	if dc.AllowList != "Customers" {
		t.Fatalf("unexpected allow list %q", dc.AllowList)
	}
}
