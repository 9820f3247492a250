// Package config loads service settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Duration parses "10s", "5m" or a bare number of seconds.
type Duration time.Duration

func (d *Duration) SetValue(s string) error {
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(s string) (time.Duration, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration must be like 10s, 5m or a number of seconds: %w", err)
	}
	return d, nil
}

type Config struct {
	Storage StorageConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Wallet  WalletConfig
	Payout  PayoutConfig
	HTTP    HTTPConfig
	Log     LogConfig
}

type StorageConfig struct {
	ConnectionString string `env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	BoardsTable      string `env:"BOARDS_TABLE" env-default:"scrumboards"`
	TasksTable       string `env:"TASKS_TABLE" env-default:"scrumtasks"`
	PaymentsQueue    string `env:"PAYMENTS_QUEUE" env-default:"scrum-payments"`
}

type RedisConfig struct {
	// ConnectionString is a redis:// URL or "host:port,password=...,ssl=true".
	// Without it the service caches nothing and locks in process.
	ConnectionString string   `env:"REDIS_CONNECTION_STRING"`
	BoardCacheTTL    Duration `env:"BOARD_CACHE_TTL" env-default:"5m"`
	TaskLockTTL      Duration `env:"TASK_LOCK_TTL" env-default:"2m"`
}

type AuthConfig struct {
	Domain     string `env:"AUTH0_DOMAIN"`
	Audience   string `env:"AUTH0_AUDIENCE"`
	TestMode   bool   `env:"AUTH0_TEST_MODE" env-default:"false"`
	TestSecret string `env:"TEST_JWT_SECRET"`
}

type WalletConfig struct {
	URL     string   `env:"WALLET_API_URL" env-required:"true"`
	Token   string   `env:"WALLET_API_TOKEN"`
	Timeout Duration `env:"WALLET_TIMEOUT" env-default:"30s"`
}

type PayoutConfig struct {
	Timeout Duration `env:"PAYOUT_TIMEOUT" env-default:"5s"`
}

type HTTPConfig struct {
	ListenAddr string `env:"LISTEN_ADDR" env-default:":8080"`
	// Port is set by the Azure Functions host and wins over ListenAddr.
	Port string `env:"FUNCTIONS_CUSTOMHANDLER_PORT"`
}

type LogConfig struct {
	Debug  bool   `env:"DEBUG" env-default:"false"`
	Format string `env:"LOG_FORMAT" env-default:"text"`
}

// Load reads the given dotenv files, when present, and then the environment.
// Variables already set in the environment are never overridden by a file.
func Load(dotenvFiles ...string) (Config, error) {
	if err := loadDotenv(dotenvFiles); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// InitConfig is the subset of settings needed to provision storage.
type InitConfig struct {
	Storage StorageConfig
	Debug   bool `env:"DEBUG" env-default:"false"`
}

// LoadStorage reads only the storage settings, for the provisioning job.
func LoadStorage(dotenvFiles ...string) (InitConfig, error) {
	if err := loadDotenv(dotenvFiles); err != nil {
		return InitConfig{}, err
	}
	var cfg InitConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return InitConfig{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

func loadDotenv(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

const lockMargin = Duration(10 * time.Second)

func (c Config) validate() error {
	if c.Auth.TestMode {
		if c.Auth.TestSecret == "" {
			return errors.New("TEST_JWT_SECRET is required when AUTH0_TEST_MODE is set")
		}
	} else if c.Auth.Domain == "" || c.Auth.Audience == "" {
		return errors.New("missing Auth0 config")
	}
	if c.Wallet.Timeout <= 0 {
		return errors.New("WALLET_TIMEOUT must be positive")
	}
	if c.Payout.Timeout <= 0 {
		return errors.New("PAYOUT_TIMEOUT must be positive")
	}
	// A completing request holds the task lock across invoice resolution and
	// the wallet call; the lease must outlive both.
	if floor := c.Payout.Timeout + c.Wallet.Timeout + lockMargin; c.Redis.TaskLockTTL <= floor {
		return fmt.Errorf("TASK_LOCK_TTL must exceed PAYOUT_TIMEOUT+WALLET_TIMEOUT+%s (%s), got %s",
			time.Duration(lockMargin), time.Duration(floor), time.Duration(c.Redis.TaskLockTTL))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Addr is the address the HTTP server listens on.
func (c HTTPConfig) Addr() string {
	if c.Port != "" {
		return ":" + c.Port
	}
	return c.ListenAddr
}

// Enabled reports whether a Redis connection is configured.
func (c RedisConfig) Enabled() bool {
	return c.ConnectionString != ""
}

// Options parses the connection string as a redis URL, falling back to the
// Azure Cache for Redis "host:port,password=...,ssl=True" form.
func (c RedisConfig) Options() (*redis.Options, error) {
	if !c.Enabled() {
		return nil, errors.New("redis is not configured")
	}
	if opts, err := redis.ParseURL(c.ConnectionString); err == nil {
		return opts, nil
	}
	parts := strings.Split(c.ConnectionString, ",")
	if strings.Contains(parts[0], "=") || parts[0] == "" {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
