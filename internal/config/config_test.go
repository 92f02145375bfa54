package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walletchat.yaml")
	content := `
server:
  address: ":9090"
wallet:
  api_key: "inline-key"
knowledge:
  source: endpoints.yaml
flow:
  networks: ["POLYGON", "ARBITRUM"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.Wallet.APIKey != "inline-key" {
		t.Fatalf("inline key should win over env: %q", cfg.Wallet.APIKey)
	}
	if cfg.Wallet.BaseURL != "https://sandbox-api.okto.tech/" {
		t.Fatalf("unexpected base url: %s", cfg.Wallet.BaseURL)
	}
	if cfg.FlowTimeout() != 15*time.Minute || cfg.Flow.MaxAttempts != 3 {
		t.Fatalf("unexpected flow defaults: %+v", cfg.Flow)
	}
	if strings.Join(cfg.Flow.Networks, ",") != "POLYGON,ARBITRUM" {
		t.Fatalf("networks should not be overwritten: %v", cfg.Flow.Networks)
	}
	if cfg.Knowledge.Source != filepath.Join(dir, "endpoints.yaml") {
		t.Fatalf("knowledge source not resolved relative to config: %s", cfg.Knowledge.Source)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadJSONAndSecretsFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walletchat.json")
	content := `{"llm":{"provider":"openai","openai":{"api_key_env":"TEST_WALLETCHAT_OPENAI"}},"server":{"webhook_secret_env":"TEST_WALLETCHAT_SECRET"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_WALLETCHAT_OPENAI", "sk-test")
	t.Setenv("TEST_WALLETCHAT_SECRET", " s3cret ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-test" {
		t.Fatalf("expected api key from env, got %q", cfg.LLM.OpenAI.APIKey)
	}
	if cfg.Server.WebhookSecret != "s3cret" {
		t.Fatalf("expected trimmed secret, got %q", cfg.Server.WebhookSecret)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Driver != "memory" || cfg.Events.Driver != "log" || cfg.Storage.History.Driver != "file" {
		t.Fatalf("unexpected defaults: %+v %+v %+v", cfg.Session, cfg.Events, cfg.Storage)
	}
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := "session:\n  driver: etcd\nstorage:\n  history:\n    driver: mysql\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "session.driver") || !strings.Contains(msg, "storage.history.dsn") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if PathFromEnv() != DefaultPath {
		t.Fatalf("expected default path")
	}
	t.Setenv(EnvConfigPath, "/etc/walletchat.yaml")
	if PathFromEnv() != "/etc/walletchat.yaml" {
		t.Fatalf("expected env path")
	}
}
