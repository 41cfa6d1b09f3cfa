package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	log "github.com/sirupsen/logrus"
)

// Backends accepted in Config.Backend.
const (
	BackendMemory = "memory"
	BackendRemote = "remote"
	BackendTable  = "table"
)

type Config struct {
	Debug           bool          `yaml:"debug" env:"DEBUG" env-default:"false"`
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR" env-default:":8080"`
	Backend         string        `yaml:"backend" env:"BACKEND" env-default:"memory"`
	Tracing         bool          `yaml:"tracing" env:"TRACING" env-default:"false"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	Memory  MemoryConfig  `yaml:"memory"`
	Remote  RemoteConfig  `yaml:"remote"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
}

type MemoryConfig struct {
	// LatencyScale multiplies the simulated delays; 0 disables them.
	LatencyScale float64 `yaml:"latency_scale" env:"MEMORY_LATENCY" env-default:"1"`
	Seed         bool    `yaml:"seed" env:"MEMORY_SEED" env-default:"true"`
	// SeedFile replaces the embedded sample data when set.
	SeedFile string `yaml:"seed_file" env:"SEED_FILE"`
}

type RemoteConfig struct {
	BaseURL   string        `yaml:"base_url" env:"REMOTE_BASE_URL"`
	ProjectID string        `yaml:"project_id" env:"REMOTE_PROJECT_ID"`
	PublicKey string        `yaml:"public_key" env:"REMOTE_PUBLIC_KEY"`
	Timeout   time.Duration `yaml:"timeout" env:"REMOTE_TIMEOUT" env-default:"10s"`
}

type StorageConfig struct {
	ConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	TasksTable       string `yaml:"tasks_table" env:"TASKS_TABLE" env-default:"tasks"`
	CategoriesTable  string `yaml:"categories_table" env:"CATEGORIES_TABLE" env-default:"categories"`
	// ChangesQueue enables the change journal when set.
	ChangesQueue string `yaml:"changes_queue" env:"CHANGES_QUEUE"`
}

type CacheConfig struct {
	// RedisURL enables the read-through cache when set.
	RedisURL string        `yaml:"redis_url" env:"REDIS_CONNECTION_STRING"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"5m"`
}

// AuthConfig selects bearer auth. A shared secret enables HS256 local mode;
// otherwise a JWKS URL enables RS256. With neither the API is open.
type AuthConfig struct {
	SharedSecret string        `yaml:"shared_secret" env:"AUTH_SHARED_SECRET"`
	JWKSURL      string        `yaml:"jwks_url" env:"AUTH_JWKS_URL"`
	Audience     string        `yaml:"audience" env:"AUTH_AUDIENCE"`
	Issuer       string        `yaml:"issuer" env:"AUTH_ISSUER"`
	KeyCacheTTL  time.Duration `yaml:"key_cache_ttl" env:"AUTH_JWKS_CACHE_TTL" env-default:"15m"`
}

func (a AuthConfig) Enabled() bool {
	return a.SharedSecret != "" || a.JWKSURL != ""
}

// Load reads the YAML file at path when it exists and then applies
// environment overrides. An empty path reads the environment only.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, fmt.Errorf("read env: %w", err)
		}
		return cfg, cfg.Validate()
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, fmt.Errorf("read env: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

// MustLoad is Load for main: any error is fatal.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Validate checks that the selected backend and optional features have the
// settings they need.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		if c.Memory.LatencyScale < 0 {
			return errors.New("MEMORY_LATENCY must not be negative")
		}
	case BackendRemote:
		if c.Remote.BaseURL == "" || c.Remote.ProjectID == "" || c.Remote.PublicKey == "" {
			return errors.New("missing remote config: REMOTE_BASE_URL, REMOTE_PROJECT_ID and REMOTE_PUBLIC_KEY are required")
		}
	case BackendTable:
		if c.Storage.ConnectionString == "" {
			return errors.New("missing storage config: STORAGE_CONNECTION_STRING is required")
		}
	default:
		return fmt.Errorf("unknown BACKEND %q", c.Backend)
	}
	if c.Storage.ChangesQueue != "" && c.Storage.ConnectionString == "" {
		return errors.New("CHANGES_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.Cache.TTL < 0 {
		return errors.New("CACHE_TTL must not be negative")
	}
	return nil
}
