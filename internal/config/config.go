package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dumpgw/internal/plugin"
	"dumpgw/internal/security"

	"gopkg.in/yaml.v3"
)

// DefaultHandlers is the plugin chain used when neither the file nor
// HANDLERS names one.
var DefaultHandlers = []string{"form-data", "stored-response", "dump-request"}

// Config holds the gateway configuration. Values come from an optional YAML
// file named by CONFIG_FILE and are then overridden by environment variables.
type Config struct {
	ListenAddr              string        `yaml:"listen_addr"`
	DownstreamURL           string        `yaml:"downstream_url"`
	GracefulShutdownTimeout int           `yaml:"graceful_shutdown_timeout"`
	MaxRequestSize          int64         `yaml:"max_request_size"`
	StoredResponseMax       int64         `yaml:"stored_response_max"`
	Handlers                []plugin.Spec `yaml:"handlers"`
	Dump                    DumpConfig    `yaml:"dump"`
	Auth                    AuthConfig    `yaml:"auth"`
	Log                     LogConfig     `yaml:"log"`
}

// DumpConfig configures the dump-request handler's sinks.
type DumpConfig struct {
	Address      string        `yaml:"address"`
	Port         int           `yaml:"port"`
	Format       string        `yaml:"format"`
	Framing      string        `yaml:"framing"`
	Async        bool          `yaml:"async"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisKey     string        `yaml:"redis_key"`
	RedisMaxLen  int64         `yaml:"redis_max_len"`
}

type AuthConfig struct {
	Required    bool              `yaml:"required"`
	JWTSecret   string            `yaml:"jwt_secret"`
	JWTIssuer   string            `yaml:"jwt_issuer"`
	JWTAudience string            `yaml:"jwt_audience"`
	JWKSURL     string            `yaml:"jwks_url"`
	BasicUsers  string            `yaml:"basic_users"`
	APIKeys     []security.APIKey `yaml:"api_keys"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		ListenAddr:              ":8080",
		DownstreamURL:           "http://localhost:8081",
		GracefulShutdownTimeout: 15,
		MaxRequestSize:          10 * 1024 * 1024,
		Log:                     LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads CONFIG_FILE when set, applies environment overrides and
// validates the result.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.Handlers) == 0 {
		for _, name := range DefaultHandlers {
			cfg.Handlers = append(cfg.Handlers, plugin.Spec{Name: name})
		}
	}
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.DownstreamURL, "DOWNSTREAM_URL")
	setString(&cfg.Dump.Address, "DUMP_ADDRESS")
	setString(&cfg.Dump.Format, "DUMP_FORMAT")
	setString(&cfg.Dump.Framing, "DUMP_FRAMING")
	setString(&cfg.Dump.RedisAddr, "DUMP_REDIS_ADDR")
	setString(&cfg.Dump.RedisKey, "DUMP_REDIS_KEY")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.JWTIssuer, "JWT_ISS")
	setString(&cfg.Auth.JWTAudience, "JWT_AUD")
	setString(&cfg.Auth.JWKSURL, "JWKS_URL")
	setString(&cfg.Auth.BasicUsers, "BASIC_AUTH_USERS")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("HANDLERS"); v != "" {
		cfg.Handlers = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Handlers = append(cfg.Handlers, plugin.Spec{Name: name})
			}
		}
	}

	var err error
	if cfg.GracefulShutdownTimeout, err = envInt("GRACEFUL_SHUTDOWN_TIMEOUT", cfg.GracefulShutdownTimeout); err != nil {
		return err
	}
	if cfg.Dump.Port, err = envInt("DUMP_PORT", cfg.Dump.Port); err != nil {
		return err
	}
	if cfg.MaxRequestSize, err = envInt64("MAX_REQUEST_SIZE", cfg.MaxRequestSize); err != nil {
		return err
	}
	if cfg.StoredResponseMax, err = envInt64("STORED_RESPONSE_MAX", cfg.StoredResponseMax); err != nil {
		return err
	}
	if cfg.Dump.RedisMaxLen, err = envInt64("DUMP_REDIS_MAXLEN", cfg.Dump.RedisMaxLen); err != nil {
		return err
	}
	if cfg.Dump.Async, err = envBool("DUMP_ASYNC", cfg.Dump.Async); err != nil {
		return err
	}
	if cfg.Auth.Required, err = envBool("AUTH_REQUIRED", cfg.Auth.Required); err != nil {
		return err
	}
	if cfg.Dump.DialTimeout, err = envDuration("DUMP_DIAL_TIMEOUT", cfg.Dump.DialTimeout); err != nil {
		return err
	}
	if cfg.Dump.WriteTimeout, err = envDuration("DUMP_WRITE_TIMEOUT", cfg.Dump.WriteTimeout); err != nil {
		return err
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	if cfg.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful shutdown timeout must be positive, got %d", cfg.GracefulShutdownTimeout)
	}
	if cfg.MaxRequestSize <= 0 {
		return fmt.Errorf("max request size must be positive, got %d", cfg.MaxRequestSize)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	for i, h := range cfg.Handlers {
		if h.Name == "" {
			return fmt.Errorf("handler %d has no name", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
