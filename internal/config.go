package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the REST backend used when neither VITE_API_URL nor API_URL is set.
const DefaultAPIURL = "https://mapclientes-backend.fly.dev/api"

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// REST backend base URL. All entity records live there.
	APIURL string

	// Static server
	DistDir string

	// Dashboard templates (only read from disk in development)
	TemplatesDir string

	// Health monitor
	HealthInterval time.Duration
	HealthPaths    []string

	// Probe statistics sampler on the configuration page
	StatsInterval time.Duration

	// Login gate
	AuthRequired bool
	SessionTTL   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// fileConfig mirrors the subset of Config that may be set from a YAML file.
// Environment variables always win over file values.
type fileConfig struct {
	Env            string   `yaml:"env"`
	Port           int      `yaml:"port"`
	LogLevel       string   `yaml:"log_level"`
	APIURL         string   `yaml:"api_url"`
	DistDir        string   `yaml:"dist_dir"`
	TemplatesDir   string   `yaml:"templates_dir"`
	HealthInterval string   `yaml:"health_interval"`
	HealthPaths    []string `yaml:"health_paths"`
	StatsInterval  string   `yaml:"stats_interval"`
	AuthRequired   *bool    `yaml:"auth_required"`
	SessionTTL     string   `yaml:"session_ttl"`
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	// Optional YAML file, applied as environment defaults
	if path := os.Getenv("MAPA_CONFIG"); path != "" {
		if err := loadConfigFile(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 3000),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		APIURL: getEnv("VITE_API_URL", getEnv("API_URL", DefaultAPIURL)),

		DistDir:      getEnv("DIST_DIR", "dist"),
		TemplatesDir: getEnv("TEMPLATES_DIR", "web/templates"),

		HealthInterval: getEnvDuration("HEALTH_INTERVAL", 30*time.Second),
		HealthPaths:    getEnvList("HEALTH_PATHS", []string{"/health", "/status", "/ping", "/"}),
		StatsInterval:  getEnvDuration("STATS_INTERVAL", 10*time.Second),

		AuthRequired: getEnvBool("AUTH_REQUIRED", true),
		SessionTTL:   getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got: %d", cfg.Port)
	}
	if !strings.HasPrefix(cfg.APIURL, "http://") && !strings.HasPrefix(cfg.APIURL, "https://") {
		return nil, fmt.Errorf("API_URL must be an http(s) URL, got: %s", cfg.APIURL)
	}
	if cfg.HealthInterval < time.Second {
		return nil, fmt.Errorf("HEALTH_INTERVAL must be at least 1s, got: %v", cfg.HealthInterval)
	}
	if len(cfg.HealthPaths) == 0 {
		return nil, fmt.Errorf("HEALTH_PATHS must name at least one path")
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address. Binds every interface, as hosting platforms expect.
func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// loadConfigFile reads a YAML file and exports its values as environment
// variables that are not already set.
func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := map[string]string{
		"ENV":             fc.Env,
		"LOG_LEVEL":       fc.LogLevel,
		"API_URL":         fc.APIURL,
		"DIST_DIR":        fc.DistDir,
		"TEMPLATES_DIR":   fc.TemplatesDir,
		"HEALTH_INTERVAL": fc.HealthInterval,
		"HEALTH_PATHS":    strings.Join(fc.HealthPaths, ","),
		"STATS_INTERVAL":  fc.StatsInterval,
		"SESSION_TTL":     fc.SessionTTL,
	}
	if fc.Port != 0 {
		values["PORT"] = strconv.Itoa(fc.Port)
	}
	if fc.AuthRequired != nil {
		values["AUTH_REQUIRED"] = strconv.FormatBool(*fc.AuthRequired)
	}

	for key, value := range values {
		if value == "" {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("apply config %s: %w", key, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList parses a comma-separated list, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
