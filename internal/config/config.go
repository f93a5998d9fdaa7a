package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Env      string         `koanf:"env"` // "dev" | "prod"
	Store    StoreConfig    `koanf:"store"`
	RefData  RefDataConfig  `koanf:"refdata"`
	Operator OperatorConfig `koanf:"operator"`
	Auth     AuthConfig     `koanf:"auth"`
	Export   ExportConfig   `koanf:"export"`
	NATS     NATSConfig     `koanf:"nats"`
	Enrich   EnrichConfig   `koanf:"enrich"`

	// Lookups nobody approved against are dropped after LookupTTL.
	// 0 keeps them forever.
	LookupTTL     time.Duration `koanf:"lookup_ttl"`
	PruneInterval time.Duration `koanf:"prune_interval"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

type StoreConfig struct {
	Driver         string `koanf:"driver"` // "memory" | "sqlite" | "redis"
	SQLitePath     string `koanf:"sqlite_path"`
	RedisURL       string `koanf:"redis_url"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`
}

type RefDataConfig struct {
	Path string `koanf:"path"` // empty = embedded document
}

type OperatorConfig struct {
	DefaultID string `koanf:"default_id"`
}

type AuthConfig struct {
	// JWTSecret enables bearer-token auth on the /v1 routes when set.
	JWTSecret string `koanf:"jwt_secret"`
}

type ExportConfig struct {
	TimeLayout string `koanf:"time_layout"`
	Timezone   string `koanf:"timezone"`
}

type NATSConfig struct {
	URL           string `koanf:"url"` // empty = events are dropped
	SubjectPrefix string `koanf:"subject_prefix"`
}

type EnrichConfig struct {
	Timeout           time.Duration `koanf:"timeout"`
	GeminiAPIKey      string        `koanf:"gemini_api_key"`
	GeminiModel       string        `koanf:"gemini_model"`
	GeminiEndpoint    string        `koanf:"gemini_endpoint"`
	ANPRURL           string        `koanf:"anpr_url"`
	ANPRMinConfidence float64       `koanf:"anpr_min_confidence"`
}

// Load reads the YAML file at path (optional), fills defaults, then applies
// GATELOG_* environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Env = strings.ToLower(cfg.Env)
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}

	return &cfg, nil
}

// Location resolves export.timezone; empty means the server's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Export.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Export.Timezone)
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "http.addr", ":8080")
	setDefault(k, "env", "dev")

	setDefault(k, "store.driver", "sqlite")
	setDefault(k, "store.sqlite_path", "./data/gatelog.db")
	setDefault(k, "store.redis_url", "redis://localhost:6379/0")

	setDefault(k, "lookup_ttl", 30*time.Minute)
	setDefault(k, "prune_interval", 5*time.Minute)

	setDefault(k, "operator.default_id", "local_user")
	setDefault(k, "export.time_layout", "02/01/2006, 15:04:05")
	setDefault(k, "nats.subject_prefix", "gatelog")

	setDefault(k, "enrich.timeout", 20*time.Second)
	setDefault(k, "enrich.gemini_model", "gemini-2.0-flash")
	setDefault(k, "enrich.gemini_endpoint", "https://generativelanguage.googleapis.com")
	setDefault(k, "enrich.anpr_min_confidence", 0.5)
}

func applyEnvOverrides(k *koanf.Koanf) {
	strs := map[string]string{
		"GATELOG_HTTP_ADDR":           "http.addr",
		"GATELOG_ENV":                 "env",
		"GATELOG_STORE_DRIVER":        "store.driver",
		"GATELOG_DB_PATH":             "store.sqlite_path",
		"GATELOG_REDIS_URL":           "store.redis_url",
		"GATELOG_REDIS_KEY_PREFIX":    "store.redis_key_prefix",
		"GATELOG_REFDATA_PATH":        "refdata.path",
		"GATELOG_OPERATOR_ID":         "operator.default_id",
		"GATELOG_JWT_SECRET":          "auth.jwt_secret",
		"GATELOG_EXPORT_TIME_LAYOUT":  "export.time_layout",
		"GATELOG_EXPORT_TIMEZONE":     "export.timezone",
		"GATELOG_NATS_URL":            "nats.url",
		"GATELOG_NATS_SUBJECT_PREFIX": "nats.subject_prefix",
		"GATELOG_GEMINI_API_KEY":      "enrich.gemini_api_key",
		"GATELOG_GEMINI_MODEL":        "enrich.gemini_model",
		"GATELOG_GEMINI_ENDPOINT":     "enrich.gemini_endpoint",
		"GATELOG_ANPR_URL":            "enrich.anpr_url",
	}
	for env, key := range strs {
		if v := getenvDefault(env, ""); v != "" {
			k.Set(key, v)
		}
	}

	durations := map[string]string{
		"GATELOG_LOOKUP_TTL":     "lookup_ttl",
		"GATELOG_PRUNE_INTERVAL": "prune_interval",
		"GATELOG_ENRICH_TIMEOUT": "enrich.timeout",
	}
	for env, key := range durations {
		if d, ok := getenvDuration(env); ok {
			k.Set(key, d)
		}
	}
}

// setDefault only sets the value if the key doesn't already exist.
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// getenvDuration accepts a Go duration ("45m") or a bare number of
// seconds. Negative or unparseable values are ignored.
func getenvDuration(key string) (time.Duration, bool) {
	v := getenvDefault(key, "")
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
