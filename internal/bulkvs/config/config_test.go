package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/provider"
)

func TestLoadDefaults(t *testing.T) {
	// Run away from any bulkvs.yaml in the working directory.
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIURL != provider.DefaultBaseURL {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, provider.DefaultBaseURL)
	}
	if cfg.DatabasePath != ".bulkvs/cache.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulkvs.yaml")
	content := `api_key: key-from-file
api_secret: secret-from-file
trunk_group: tg-east
listen_addr: ":9090"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIKey != "key-from-file" || cfg.APISecret != "secret-from-file" {
		t.Errorf("credentials = %q/%q", cfg.APIKey, cfg.APISecret)
	}
	if cfg.TrunkGroup != "tg-east" {
		t.Errorf("TrunkGroup = %q, want tg-east", cfg.TrunkGroup)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicitly named missing config should be an error")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BULKVS_API_KEY", "key-from-env")
	t.Setenv("BULKVS_API_SECRET", "secret-from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "key-from-env" || cfg.APISecret != "secret-from-env" {
		t.Errorf("credentials = %q/%q, want env values", cfg.APIKey, cfg.APISecret)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed with env credentials: %v", err)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should fail without credentials")
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(old)
	})
}
