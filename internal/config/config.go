package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/pkg/kv"
)

type Config struct {
	Env       string `mapstructure:"AH_ENV"`
	HTTPAddr  string `mapstructure:"AH_HTTP_ADDR"`
	PublicURL string `mapstructure:"AH_PUBLIC_ORIGIN"`

	Ledger   LedgerConfig   `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type LedgerConfig struct {
	Backend     string `mapstructure:"AH_LEDGER_BACKEND"` // "memdb", "goleveldb"
	Dir         string `mapstructure:"AH_LEDGER_DIR"`
	GenesisPath string `mapstructure:"AH_GENESIS_PATH"`
}

type DBConfig struct {
	// Empty keeps settlement history in memory.
	PostgresDSN string `mapstructure:"AH_POSTGRES_DSN"`
}

type CacheConfig struct {
	Backend    string        `mapstructure:"AH_KV_BACKEND"` // "memory", "redis"
	RedisAddr  string        `mapstructure:"AH_REDIS_ADDR"`
	ReceiptTTL time.Duration `mapstructure:"AH_RECEIPT_TTL"`
}

type SecurityConfig struct {
	RateLimitRPM       int           `mapstructure:"AH_RATE_LIMIT_RPM"`
	RequestTimeout     time.Duration `mapstructure:"AH_REQUEST_TIMEOUT"`
	CORSAllowedOrigins []string      `mapstructure:"AH_CORS_ALLOWED_ORIGINS"`
	// VerifySignatures checks request signatures instead of trusting the
	// declared signers. Required in prod.
	VerifySignatures   bool          `mapstructure:"AH_VERIFY_SIGNATURES"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AH_ENV", "dev")
	v.SetDefault("AH_HTTP_ADDR", ":8080")
	v.SetDefault("AH_PUBLIC_ORIGIN", "http://localhost:3000")
	v.SetDefault("AH_LEDGER_BACKEND", ledger.BackendMemDB)
	v.SetDefault("AH_LEDGER_DIR", "data")
	v.SetDefault("AH_GENESIS_PATH", "")
	v.SetDefault("AH_POSTGRES_DSN", "")
	v.SetDefault("AH_KV_BACKEND", "memory")
	v.SetDefault("AH_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("AH_RECEIPT_TTL", "24h")
	v.SetDefault("AH_RATE_LIMIT_RPM", 120)
	v.SetDefault("AH_REQUEST_TIMEOUT", "30s")
	v.SetDefault("AH_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("AH_VERIFY_SIGNATURES", false)
}

func Load() (*Config, error) {
	loadDotEnvFiles()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// comma-separated values
	if origins := v.GetString("AH_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("AH_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid AH_ENV %q (must be dev, test, or prod)", c.Env)
	}
	switch c.Ledger.Backend {
	case ledger.BackendMemDB:
	case ledger.BackendGoLevelDB:
		if c.Ledger.Dir == "" {
			return fmt.Errorf("AH_LEDGER_DIR is required for the %s backend", c.Ledger.Backend)
		}
	default:
		return fmt.Errorf("invalid AH_LEDGER_BACKEND %q (must be %s or %s)", c.Ledger.Backend, ledger.BackendMemDB, ledger.BackendGoLevelDB)
	}
	switch kv.Backend(c.Cache.Backend) {
	case kv.BackendMemory, kv.BackendRedis:
	default:
		return fmt.Errorf("invalid AH_KV_BACKEND %q (must be %s or %s)", c.Cache.Backend, kv.BackendMemory, kv.BackendRedis)
	}
	if kv.Backend(c.Cache.Backend) == kv.BackendRedis && c.Cache.RedisAddr == "" {
		return fmt.Errorf("AH_REDIS_ADDR is required for the redis backend")
	}
	if c.Cache.ReceiptTTL < 0 {
		return fmt.Errorf("AH_RECEIPT_TTL must not be negative")
	}
	if c.Security.RateLimitRPM <= 0 {
		return fmt.Errorf("AH_RATE_LIMIT_RPM must be positive")
	}
	if c.IsProd() && !c.Security.VerifySignatures {
		return fmt.Errorf("AH_VERIFY_SIGNATURES must be enabled in prod")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// KV returns the store configuration for the receipt cache. Outside prod an
// unreachable Redis degrades to the in-memory store.
func (c *Config) KV(logger kv.LogFunc) kv.Config {
	return kv.Config{
		Backend:          kv.Backend(c.Cache.Backend),
		RedisURL:         c.Cache.RedisAddr,
		FallbackToMemory: !c.IsProd(),
		Logger:           logger,
	}
}
