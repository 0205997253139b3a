package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Usage.MonthlyQuota != 50 {
		t.Errorf("Expected default quota 50, got %d", cfg.Usage.MonthlyQuota)
	}
	if cfg.Chat.SessionPolicy != SessionPerUser {
		t.Errorf("Expected default session policy %s, got %s", SessionPerUser, cfg.Chat.SessionPolicy)
	}
	if cfg.OpenAI.Model != "gpt-4-turbo" {
		t.Errorf("Expected default model gpt-4-turbo, got %s", cfg.OpenAI.Model)
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
server:
  port: "9000"
openai:
  timeout: 45s
usage:
  backend: redis
  monthly_quota: 10
chat:
  session_policy: per_connection
auth:
  admin_emails: ["ops@example.com"]
`
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MONTHLY_QUOTA", "20")
	t.Setenv("ADMIN_UIDS", "uid-a, uid-b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Server.Port)
	}
	if cfg.OpenAI.Timeout != 45*time.Second {
		t.Errorf("Expected 45s model timeout, got %v", cfg.OpenAI.Timeout)
	}
	if cfg.Usage.Backend != UsageBackendRedis {
		t.Errorf("Expected redis backend, got %s", cfg.Usage.Backend)
	}
	if cfg.Usage.MonthlyQuota != 20 {
		t.Errorf("Expected env to override quota to 20, got %d", cfg.Usage.MonthlyQuota)
	}
	if cfg.Chat.SessionPolicy != SessionPerConnection {
		t.Errorf("Expected per_connection policy, got %s", cfg.Chat.SessionPolicy)
	}
	if len(cfg.Auth.AdminUIDs) != 2 || cfg.Auth.AdminUIDs[1] != "uid-b" {
		t.Errorf("Expected two admin uids, got %v", cfg.Auth.AdminUIDs)
	}
}

func TestLoadRejectsUnknownSessionPolicy(t *testing.T) {
	t.Setenv("SESSION_POLICY", "per_tab")
	if _, err := Load(""); err == nil {
		t.Error("Expected validation error for unknown session policy")
	}
}

func TestPlanCatalog(t *testing.T) {
	catalog := DefaultPlanCatalog()

	price, err := catalog.Price("premium", "yearly")
	if err != nil || price != 288 {
		t.Errorf("Expected premium yearly 288, got %v (%v)", price, err)
	}
	if _, err := catalog.Price("gold", "monthly"); err == nil {
		t.Error("Expected error for unknown plan")
	}
	if got := catalog.Description("premium", "monthly"); got != "BlendAr premium plan (monthly)" {
		t.Errorf("Unexpected description %q", got)
	}
	if !catalog.LooksYearly(288) || catalog.LooksYearly(30) {
		t.Error("Expected amount heuristic to classify 288 as yearly and 30 as monthly")
	}
}

func TestLoadPlanCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	if err := os.WriteFile(path, []byte(`{"premium":{"monthly":35,"yearly":300}}`), 0o600); err != nil {
		t.Fatalf("write plans: %v", err)
	}
	t.Setenv("PLAN_CONFIG_FILE", path)

	catalog, err := LoadPlanCatalog()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if catalog.Premium.Monthly != 35 {
		t.Errorf("Expected overridden monthly price 35, got %v", catalog.Premium.Monthly)
	}
	if catalog.DescriptionFormat == "" {
		t.Error("Expected description format to keep its default")
	}
}
