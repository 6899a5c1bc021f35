package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"math-problem-service/internal/llm"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Store struct {
		// Driver is one of memory, sqlite, postgres. Empty picks postgres when
		// a URL is configured and memory otherwise.
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	LLM llm.Config `yaml:"llm"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{LLM: llm.DefaultConfig()}
	cfg.Server.Port = "8080"
	cfg.SQLite.Path = "data/math-problems.db"
	return cfg
}

// Load reads YAML config from path on top of Default and applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate rejects unknown store drivers and drivers missing their settings.
func (c Config) Validate() error {
	switch c.StoreDriver() {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite path not configured")
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres url not configured")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// StoreDriver resolves the effective store driver.
func (c Config) StoreDriver() string {
	if c.Store.Driver != "" {
		return c.Store.Driver
	}
	if c.Postgres.URL != "" {
		return StorePostgres
	}
	return StoreMemory
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"DATABASE_URL", &cfg.Postgres.URL},
		{"SQLITE_PATH", &cfg.SQLite.Path},
		{"STORE_DRIVER", &cfg.Store.Driver},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"LLM_PROVIDER", &cfg.LLM.Provider},
		{"GEMINI_API_KEY", &cfg.LLM.Gemini.APIKey},
		{"OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey},
		{"ANTHROPIC_API_KEY", &cfg.LLM.Anthropic.APIKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
