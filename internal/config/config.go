// Package config loads cmd/gateway's static configuration from a YAML
// file plus .env-style overrides, mirroring the teacher's own preference
// for environment-driven wiring (OPENAI_API_KEY, etc in cmd/worker) over
// a flag-only setup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of the gateway's config file.
type Config struct {
	HTTPAddr string `yaml:"httpAddr"`

	SQLitePath string `yaml:"sqlitePath"`

	RedisAddr string `yaml:"redisAddr"`
	RedisTTL  time.Duration `yaml:"redisTtl"`

	Temporal TemporalConfig `yaml:"temporal"`

	DefaultTimeoutMs int64  `yaml:"defaultTimeoutMs"`
	MaxPreviewChars  int    `yaml:"maxPreviewChars"`
	CallbackSecret   string `yaml:"callbackSecret"`
	CallbackTokenTTL time.Duration `yaml:"callbackTokenTtl"`

	RegistryRebuildIntervalSeconds int64 `yaml:"registryRebuildIntervalSeconds"`
}

// TemporalConfig names the worker's connection to the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `yaml:"hostPort"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"taskQueue"`
}

func defaults() Config {
	return Config{
		HTTPAddr:                       ":8080",
		SQLitePath:                     "gateway.db",
		DefaultTimeoutMs:               30_000,
		MaxPreviewChars:                2000,
		CallbackTokenTTL:               5 * time.Minute,
		RegistryRebuildIntervalSeconds: 300,
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "toolgateway",
		},
	}
}

// Load reads a YAML config at path (if it exists), loads a .env file from
// the working directory into the process environment (if present), and applies a handful
// of environment overrides on top. Missing path is not an error; the
// gateway runs on defaults plus whatever the environment supplies.
func Load(path string) (Config, error) {
	cfg := defaults()

	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if v := os.Getenv("GATEWAY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("GATEWAY_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("GATEWAY_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("GATEWAY_CALLBACK_SECRET"); v != "" {
		cfg.CallbackSecret = v
	}
	if v := os.Getenv("TEMPORAL_HOST_PORT"); v != "" {
		cfg.Temporal.HostPort = v
	}

	if cfg.CallbackSecret == "" {
		return Config{}, fmt.Errorf("callback secret is required (set callbackSecret or GATEWAY_CALLBACK_SECRET)")
	}

	return cfg, nil
}
