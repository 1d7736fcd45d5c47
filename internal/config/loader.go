package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load assembles the configuration from a hierarchy of sources.
// The loading order (from lowest to highest priority):
//  1. Default values (in code)
//  2. YAML configuration file (CONFIG_FILE, default config/cache.yaml)
//  3. Environment variables
func Load() (*Config, error) {
	cfg := Default()
	cfg.LoadedFrom = []string{"defaults"}

	path := getEnv("CONFIG_FILE", "config/cache.yaml")
	if err := loadFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else {
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	loadEnvironment(cfg)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error. Use only in main().
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// loadEnvironment overlays environment variables on the configuration.
// Only operationally relevant knobs are exposed through the environment;
// fine-grained tuning lives in the YAML file.
func loadEnvironment(cfg *Config) {
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		cfg.Environment = Environment(val)
	}

	// Ops server
	if port := getEnvInt("SERVER_PORT", 0); port > 0 {
		cfg.Server.Port = port
	}
	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}

	// Redis
	if val := os.Getenv("REDIS_HOST"); val != "" {
		cfg.Redis.Host = val
	}
	if port := getEnvInt("REDIS_PORT", 0); port > 0 {
		cfg.Redis.Port = port
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		cfg.Redis.DB = db
	}
	if d := getEnvDuration("REDIS_OP_TIMEOUT", 0); d > 0 {
		cfg.Redis.OpTimeout = d
	}

	// DynamoDB
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.DynamoDB.Region = val
	}
	if val := os.Getenv("PRODUCTS_TABLE"); val != "" {
		cfg.DynamoDB.ProductsTable = val
	}
	if val := os.Getenv("OFFERS_TABLE"); val != "" {
		cfg.DynamoDB.OffersTable = val
	}

	// Scheduler intervals
	if d := getEnvDuration("BUFFER_FLUSH_INTERVAL", 0); d > 0 {
		cfg.Buffer.FlushInterval = d
	}
	if d := getEnvDuration("EXPIRY_SWEEP_INTERVAL", 0); d > 0 {
		cfg.Expiry.SweepInterval = d
	}
	if d := getEnvDuration("WARMER_INTERVAL", 0); d > 0 {
		cfg.Warmer.Interval = d
	}

	// Logging and tracing
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		cfg.Tracing.Enabled = parseBool(val)
	}
	if val := os.Getenv("OTLP_ENDPOINT"); val != "" {
		cfg.Tracing.Endpoint = val
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(s string) bool {
	val, _ := strconv.ParseBool(s)
	return val
}
