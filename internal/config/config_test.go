package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	for _, env := range []string{"DATABASE_URL", "STORE_DRIVER", "LLM_PROVIDER"} {
		t.Setenv(env, "")
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.StoreDriver() != StoreMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Gemini.Model != "gemini-flash" {
		t.Fatalf("unexpected llm defaults %+v", cfg.LLM)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
store:
  driver: sqlite
sqlite:
  path: /tmp/problems.db
redis:
  addr: localhost:6379
  ttl: 5m
llm:
  provider: openai
  timeout: 3s
  openai:
    model: gpt-4o
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.StoreDriver() != StoreSQLite || cfg.SQLite.Path != "/tmp/problems.db" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("expected env override for redis, got %q", cfg.Redis.Addr)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-test" || cfg.LLM.OpenAI.Model != "gpt-4o" {
		t.Fatalf("unexpected llm config %+v", cfg.LLM.OpenAI)
	}
	if cfg.LLM.Gemini.Model != "gemini-flash" {
		t.Fatalf("expected untouched defaults to survive, got %q", cfg.LLM.Gemini.Model)
	}
	if TTLDuration(cfg.Redis.TTL, time.Minute) != 5*time.Minute {
		t.Fatalf("unexpected ttl")
	}
}

func TestDatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/math")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver() != StorePostgres {
		t.Fatalf("expected postgres driver, got %s", cfg.StoreDriver())
	}
}

func TestValidateRejectsBadDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	cfg.Store.Driver = StorePostgres
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for postgres without url")
	}
}

func TestTTLDuration(t *testing.T) {
	if TTLDuration("", time.Second) != time.Second {
		t.Fatalf("expected fallback for empty")
	}
	if TTLDuration("nonsense", time.Second) != time.Second {
		t.Fatalf("expected fallback for garbage")
	}
	if TTLDuration("90s", time.Second) != 90*time.Second {
		t.Fatalf("expected parsed duration")
	}
}
