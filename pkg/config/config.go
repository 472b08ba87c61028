// Package config resolves gateway settings from defaults, an optional YAML
// file, environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile     = "SHOPMCP_CONFIG_FILE"
	EnvAddr           = "SHOPMCP_ADDR"
	EnvAPIBaseURL     = "API_BASE_URL"
	EnvDefaultTimeout = "DEFAULT_TIMEOUT"
	EnvSearchTimeout  = "SEARCH_TIMEOUT"
	EnvCartTimeout    = "CART_TIMEOUT"
	EnvMaxRetries     = "MAX_RETRIES"
	EnvRetryDelay     = "RETRY_DELAY"
	EnvRetryReads     = "SHOPMCP_RETRY_READS"
	EnvCORSOrigins    = "SHOPMCP_CORS_ORIGINS"
	EnvTraceStdout    = "SHOPMCP_TRACE_STDOUT"
	EnvLogLevel       = "SHOPMCP_LOG_LEVEL"
)

const (
	DefaultAddr           = ":8080"
	DefaultAPIBaseURL     = "http://localhost:3000/api"
	DefaultTimeout        = 50 * time.Second
	DefaultSearchTimeout  = 30 * time.Second
	DefaultCartTimeout    = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
	DefaultLogLevel       = "info"
	defaultCORSOriginList = "*"
)

// Config is the resolved gateway configuration.
type Config struct {
	Addr           string
	APIBaseURL     string
	DefaultTimeout time.Duration
	SearchTimeout  time.Duration
	CartTimeout    time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	// RetryReads enables the retry wrapper for GET calls. Off by default.
	RetryReads  bool
	CORSOrigins []string
	TraceStdout bool
	LogLevel    string
}

type fileConfig struct {
	Addr           string   `yaml:"addr"`
	APIBaseURL     string   `yaml:"api_base_url"`
	DefaultTimeout string   `yaml:"default_timeout"`
	SearchTimeout  string   `yaml:"search_timeout"`
	CartTimeout    string   `yaml:"cart_timeout"`
	MaxRetries     *int     `yaml:"max_retries"`
	RetryDelay     string   `yaml:"retry_delay"`
	RetryReads     *bool    `yaml:"retry_reads"`
	CORSOrigins    []string `yaml:"cors_origins"`
	TraceStdout    *bool    `yaml:"trace_stdout"`
	LogLevel       string   `yaml:"log_level"`
}

// Flags holds command-line overrides. Empty values leave the lower layers in place.
type Flags struct {
	ConfigFile string
	Addr       string
	APIBaseURL string
	LogLevel   string
}

// RegisterFlags binds the override flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigFile, "config", "", "path to a YAML config file (env "+EnvConfigFile+")")
	fs.StringVar(&f.Addr, "addr", "", "http listen address (env "+EnvAddr+", default "+DefaultAddr+")")
	fs.StringVar(&f.APIBaseURL, "api-base-url", "", "upstream API root (env "+EnvAPIBaseURL+")")
	fs.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error (env "+EnvLogLevel+")")
	return f
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:           DefaultAddr,
		APIBaseURL:     DefaultAPIBaseURL,
		DefaultTimeout: DefaultTimeout,
		SearchTimeout:  DefaultSearchTimeout,
		CartTimeout:    DefaultCartTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		CORSOrigins:    []string{defaultCORSOriginList},
		LogLevel:       DefaultLogLevel,
	}
}

// Load resolves the configuration and validates it. f may be nil.
func Load(f *Flags) (Config, error) {
	if f == nil {
		f = &Flags{}
	}
	cfg := Default()

	path := strings.TrimSpace(f.ConfigFile)
	if path == "" {
		path = EnvString(EnvConfigFile)
	}
	if path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := applyYAML(&cfg, fc); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyFlags(&cfg, f)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return fc, nil
}

func applyYAML(cfg *Config, source fileConfig) error {
	if value := strings.TrimSpace(source.Addr); value != "" {
		cfg.Addr = value
	}
	if value := strings.TrimSpace(source.APIBaseURL); value != "" {
		cfg.APIBaseURL = value
	}
	var err error
	if cfg.DefaultTimeout, err = parseDuration(source.DefaultTimeout, cfg.DefaultTimeout, "default_timeout"); err != nil {
		return err
	}
	if cfg.SearchTimeout, err = parseDuration(source.SearchTimeout, cfg.SearchTimeout, "search_timeout"); err != nil {
		return err
	}
	if cfg.CartTimeout, err = parseDuration(source.CartTimeout, cfg.CartTimeout, "cart_timeout"); err != nil {
		return err
	}
	if cfg.RetryDelay, err = parseDuration(source.RetryDelay, cfg.RetryDelay, "retry_delay"); err != nil {
		return err
	}
	if source.MaxRetries != nil {
		cfg.MaxRetries = *source.MaxRetries
	}
	if source.RetryReads != nil {
		cfg.RetryReads = *source.RetryReads
	}
	if origins := cleanList(source.CORSOrigins); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if source.TraceStdout != nil {
		cfg.TraceStdout = *source.TraceStdout
	}
	if value := strings.TrimSpace(source.LogLevel); value != "" {
		cfg.LogLevel = strings.ToLower(value)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Addr = EnvOrDefault(EnvAddr, cfg.Addr)
	cfg.APIBaseURL = EnvOrDefault(EnvAPIBaseURL, cfg.APIBaseURL)

	var err error
	if cfg.DefaultTimeout, err = parseDuration(EnvString(EnvDefaultTimeout), cfg.DefaultTimeout, EnvDefaultTimeout); err != nil {
		return err
	}
	if cfg.SearchTimeout, err = parseDuration(EnvString(EnvSearchTimeout), cfg.SearchTimeout, EnvSearchTimeout); err != nil {
		return err
	}
	if cfg.CartTimeout, err = parseDuration(EnvString(EnvCartTimeout), cfg.CartTimeout, EnvCartTimeout); err != nil {
		return err
	}
	if cfg.RetryDelay, err = parseDuration(EnvString(EnvRetryDelay), cfg.RetryDelay, EnvRetryDelay); err != nil {
		return err
	}
	if raw := EnvString(EnvMaxRetries); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxRetries, raw, err)
		}
		cfg.MaxRetries = n
	}
	cfg.RetryReads = parseBoolEnv(EnvRetryReads, cfg.RetryReads)
	if raw := EnvString(EnvCORSOrigins); raw != "" {
		if origins := cleanList(strings.Split(raw, ",")); len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	cfg.TraceStdout = parseBoolEnv(EnvTraceStdout, cfg.TraceStdout)
	cfg.LogLevel = strings.ToLower(EnvOrDefault(EnvLogLevel, cfg.LogLevel))
	return nil
}

func applyFlags(cfg *Config, f *Flags) {
	if value := strings.TrimSpace(f.Addr); value != "" {
		cfg.Addr = value
	}
	if value := strings.TrimSpace(f.APIBaseURL); value != "" {
		cfg.APIBaseURL = value
	}
	if value := strings.TrimSpace(f.LogLevel); value != "" {
		cfg.LogLevel = strings.ToLower(value)
	}
}

// Validate rejects settings the gateway cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%s must not be empty", EnvAddr)
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", EnvAPIBaseURL, c.APIBaseURL)
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvDefaultTimeout)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvSearchTimeout)
	}
	if c.CartTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvCartTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%s must be >= 0", EnvMaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%s must be >= 0", EnvRetryDelay)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%s: unknown log level %q", EnvLogLevel, s)
	}
	return lvl, nil
}

// EnvString returns the trimmed value of an environment variable.
func EnvString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// EnvOrDefault returns the variable's value, or fallback when unset or blank.
func EnvOrDefault(key, fallback string) string {
	if value := EnvString(key); value != "" {
		return value
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	switch strings.ToLower(EnvString(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// parseDuration accepts a Go duration ("30s") or a bare integer of milliseconds ("30000").
func parseDuration(raw string, fallback time.Duration, field string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fallback, nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", field, value, err)
	}
	return d, nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
