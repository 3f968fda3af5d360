// Package config loads the server configuration.
//
// PRECEDENCE (lowest to highest):
//  1. Defaults          : Default()
//  2. YAML file         : --config journal.yaml
//  3. .env file         : KEY=value lines, see .env.example
//  4. Process environment
//  5. Command-line flags: applied by cmd/server on top of Load's result
//
// A value set in the real environment always beats the same key in .env, so
// a deployment can override a checked-in development file without editing it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	MinSecretLength = 16
)

type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`

	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`

	CORSOrigins   []string `yaml:"cors_origins"`
	AuthRateLimit float64  `yaml:"auth_rate_limit"` // requests per second per IP
	AuthRateBurst int      `yaml:"auth_rate_burst"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// AppURL is the browser app; GitHub sign-in redirects there.
	AppURL string       `yaml:"app_url"`
	GitHub GitHubConfig `yaml:"github"`
}

type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Default returns the configuration used when nothing else is set. It is
// not valid on its own: JWTSecret has no default.
func Default() Config {
	return Config{
		Port:          8080,
		DatabaseURL:   "sqlite:data/journal.db",
		TokenTTL:      7 * 24 * time.Hour,
		BcryptCost:    12,
		CORSOrigins:   []string{"http://localhost:5173"},
		AuthRateLimit: 1,
		AuthRateBurst: 10,
		LogLevel:      "info",
		LogFormat:     "text",
		AppURL:        "http://localhost:5173",
	}
}

// Load builds a Config from the YAML file at configFile (skipped when empty),
// the dotenv file at envFile (skipped when empty or missing) and the process
// environment. The result is not validated; call Validate after applying
// flags.
func Load(configFile, envFile string) (Config, error) {
	dotenv, err := readDotEnv(envFile)
	if err != nil {
		return Config{}, err
	}
	return load(configFile, func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return values, nil
}

func load(configFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", configFile, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables. Only keys that are present are
// applied, so an unset variable never clobbers a YAML value.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	integer("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("JWT_SECRET", &cfg.JWTSecret)
	integer("BCRYPT_COST", &cfg.BcryptCost)
	integer("AUTH_RATE_BURST", &cfg.AuthRateBurst)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("APP_URL", &cfg.AppURL)
	str("GITHUB_CLIENT_ID", &cfg.GitHub.ClientID)
	str("GITHUB_CLIENT_SECRET", &cfg.GitHub.ClientSecret)
	str("GITHUB_CALLBACK_URL", &cfg.GitHub.CallbackURL)

	if v, ok := lookup("TOKEN_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("TOKEN_TTL: %q is not a duration", v))
		} else {
			cfg.TokenTTL = d
		}
	}
	if v, ok := lookup("AUTH_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("AUTH_RATE_LIMIT: %q is not a number", v))
		} else {
			cfg.AuthRateLimit = f
		}
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every problem at once rather than stopping at the first.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.AuthRateLimit <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT must be positive"))
	}
	if c.AuthRateBurst < 1 {
		errs = append(errs, errors.New("AUTH_RATE_BURST must be at least 1"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not text or json", c.LogFormat))
	}
	if (c.GitHub.ClientID == "") != (c.GitHub.ClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Backend reports which store DatabaseURL selects: a postgres:// or
// postgresql:// URL means PostgreSQL, anything else is a SQLite path.
func (c Config) Backend() string {
	lower := strings.ToLower(c.DatabaseURL)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return BackendPostgres
	}
	return BackendSQLite
}

// SQLitePath strips an optional sqlite: or sqlite:// prefix.
func (c Config) SQLitePath() string {
	path := c.DatabaseURL
	for _, prefix := range []string{"sqlite://", "sqlite:"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimPrefix(path, prefix)
		}
	}
	return path
}

func (c Config) GitHubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// GitHubCallbackURL defaults to this server's own callback route.
func (c Config) GitHubCallbackURL() string {
	if c.GitHub.CallbackURL != "" {
		return c.GitHub.CallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Port)
}
