package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/api" || cfg.Limits.MaxPageSize != 100 || cfg.Webhooks.Workers != 8 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFromYAMLKeepsDefaultsForOmittedKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\nlog:\n  format: json\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" || cfg.Log.Format != "json" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Server.BasePath != "/api" || cfg.Log.Level != "info" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"base path":  "server:\n  base_path: api\n",
		"public url": "server:\n  public_url: ftp://x\n",
		"workers":    "webhooks:\n  workers: 0\n",
		"page sizes": "limits:\n  default_page_size: 50\n  max_page_size: 10\n",
		"log level":  "log:\n  level: loud\n",
		"bad yaml":   "server: [\n",
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(filepath.Join(dir, "missing.yml"))
	if err != nil || cfg.Storage.Path == "" {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load generated default: %v", err)
	}
	if cfg.Webhooks.UserAgent != "IdeaForge-Webhook/1.0" {
		t.Fatalf("unexpected user agent %q", cfg.Webhooks.UserAgent)
	}
	if _, err := Load(filepath.Join(dir, "nope.yml")); err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("expected hint about config init, got %v", err)
	}
}
