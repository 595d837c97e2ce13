package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/catalog"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	LLMProvider    LLMProviderConfig    `yaml:"llm_provider"`
	Router         RouterConfig         `yaml:"router"`
	Catalog        []ModelConfig        `yaml:"catalog"`
	Database       DatabaseConfig       `yaml:"database"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Metrics        MetricsConfig        `yaml:"metrics"`
}

type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             string   `yaml:"port"`
	AppName          string   `yaml:"app_name"`
	RefererURL       string   `yaml:"referer_url"`
	CorsOrigins      []string `yaml:"cors_origins"`
	MaxContentLength int      `yaml:"max_content_length"`
}

type LLMProviderConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RouterConfig struct {
	MetaModel         string        `yaml:"meta_model"`
	DefaultModel      string        `yaml:"default_model"`
	RoutingTimeout    time.Duration `yaml:"routing_timeout"`
	RoutingRetries    int           `yaml:"routing_retries"`
	CompletionTimeout time.Duration `yaml:"completion_timeout"`
}

// ModelConfig is one catalog entry. Prices are USD per million tokens; empty means free.
type ModelConfig struct {
	ID                        string  `yaml:"id"`
	Summary                   string  `yaml:"summary"`
	ContextWindow             int     `yaml:"context_window"`
	PriceInputPerMillion      string  `yaml:"price_input_per_million"`
	PriceOutputPerMillion     string  `yaml:"price_output_per_million"`
	TimeToFirstTokenSeconds   float64 `yaml:"time_to_first_token_seconds"`
	ThroughputTokensPerSecond float64 `yaml:"throughput_tokens_per_second"`
}

type DatabaseConfig struct {
	EnablePersistence bool   `yaml:"enable_persistence"`
	Driver            string `yaml:"driver"`
	URL               string `yaml:"url"`
	Host              string `yaml:"host"`
	Port              string `yaml:"port"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	Name              string `yaml:"name"`
	SSLMode           string `yaml:"ssl_mode"`
	Workers           int    `yaml:"workers"`
	BufferSize        int    `yaml:"buffer_size"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides.
// Values missing from the file keep their defaults.
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             "8080",
			AppName:          "Intelligent LLM Router",
			RefererURL:       "https://github.com/noor188/Intelligent-LLM-Router",
			CorsOrigins:      []string{"*"},
			MaxContentLength: 50000,
		},
		LLMProvider: LLMProviderConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Timeout: 180 * time.Second,
		},
		Router: RouterConfig{
			MetaModel:         "openai/gpt-oss-20b:free",
			RoutingTimeout:    10 * time.Second,
			RoutingRetries:    1,
			CompletionTimeout: 120 * time.Second,
		},
		Database: DatabaseConfig{
			EnablePersistence: false,
			Driver:            "postgres",
			Host:              "localhost",
			Port:              "5432",
			User:              "llm-router",
			Name:              "llm-router",
			SSLMode:           "disable",
			Workers:           5,
			BufferSize:        1000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			MaxRequests:      3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("APP_NAME"); val != "" {
		config.Server.AppName = val
	}
	if val := os.Getenv("REFERER_URL"); val != "" {
		config.Server.RefererURL = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = splitList(val)
	}
	if val := os.Getenv("MAX_CONTENT_LENGTH"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Server.MaxContentLength = i
		}
	}

	// LLM Provider overrides
	if val := os.Getenv("OPENROUTER_API_KEY"); val != "" {
		config.LLMProvider.APIKey = val
	}
	if val := os.Getenv("OPENROUTER_BASE_URL"); val != "" {
		config.LLMProvider.BaseURL = val
	}
	if val := os.Getenv("OPENROUTER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.LLMProvider.Timeout = d
		}
	}

	// Router overrides
	if val := os.Getenv("META_MODEL"); val != "" {
		config.Router.MetaModel = val
	}
	if val := os.Getenv("DEFAULT_MODEL"); val != "" {
		config.Router.DefaultModel = val
	}
	if val := os.Getenv("ROUTING_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Router.RoutingTimeout = d
		}
	}
	if val := os.Getenv("ROUTING_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Router.RoutingRetries = i
		}
	}
	if val := os.Getenv("COMPLETION_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Router.CompletionTimeout = d
		}
	}

	// Database overrides
	if val := os.Getenv("ENABLE_PERSISTENCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.EnablePersistence = b
		}
	}
	if val := os.Getenv("DATABASE_DRIVER"); val != "" {
		config.Database.Driver = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Database.URL = val
	}
	if val := os.Getenv("DATABASE_HOST"); val != "" {
		config.Database.Host = val
	}
	if val := os.Getenv("DATABASE_PORT"); val != "" {
		config.Database.Port = val
	}
	if val := os.Getenv("DATABASE_USER"); val != "" {
		config.Database.User = val
	}
	if val := os.Getenv("DATABASE_PASSWORD"); val != "" {
		config.Database.Password = val
	}
	if val := os.Getenv("DATABASE_NAME"); val != "" {
		config.Database.Name = val
	}
	if val := os.Getenv("DATABASE_SSL_MODE"); val != "" {
		config.Database.SSLMode = val
	}
	if val := os.Getenv("DATABASE_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Database.Workers = i
		}
	}
	if val := os.Getenv("DATABASE_BUFFER_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Database.BufferSize = i
		}
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.SuccessThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	// Metrics overrides
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("METRICS_PATH"); val != "" {
		config.Metrics.Path = val
	}

	return config
}

func splitList(val string) []string {
	items := strings.Split(val, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}

// validateConfig validates the configuration and returns all problems at once
func validateConfig(config *Config) error {
	var errors []string

	if config.LLMProvider.APIKey == "" {
		errors = append(errors, "OPENROUTER_API_KEY is required - get one from https://openrouter.ai/keys")
	}
	if config.LLMProvider.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("llm_provider.timeout must be positive (current: %s)", config.LLMProvider.Timeout))
	}

	if config.Router.MetaModel == "" {
		errors = append(errors, "router.meta_model is required")
	}
	if config.Router.RoutingTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ROUTING_TIMEOUT must be positive (current: %s)", config.Router.RoutingTimeout))
	}
	if config.Router.CompletionTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("COMPLETION_TIMEOUT must be positive (current: %s)", config.Router.CompletionTimeout))
	}
	if config.Router.RoutingRetries < 0 || config.Router.RoutingRetries > 3 {
		errors = append(errors, fmt.Sprintf("ROUTING_RETRIES must be between 0 and 3 (current: %d)", config.Router.RoutingRetries))
	}

	if c, err := config.BuildCatalog(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid catalog: %v", err))
	} else if config.Router.DefaultModel != "" && !c.Contains(config.Router.DefaultModel) {
		errors = append(errors, fmt.Sprintf("DEFAULT_MODEL %q is not in the catalog (available: %s)",
			config.Router.DefaultModel, strings.Join(c.IDs(), ", ")))
	}

	if config.Server.MaxContentLength <= 0 {
		errors = append(errors, fmt.Sprintf("MAX_CONTENT_LENGTH must be positive (current: %d)", config.Server.MaxContentLength))
	}

	switch config.Database.Driver {
	case "postgres", "sqlite":
	default:
		errors = append(errors, fmt.Sprintf("DATABASE_DRIVER must be postgres or sqlite (current: %q)", config.Database.Driver))
	}

	// Warn but don't fail on ids that don't look like provider/model
	for _, m := range config.Catalog {
		if !strings.Contains(m.ID, "/") {
			logrus.WithField("model", m.ID).Warn("Model may not be valid - expected format: provider/model")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// BuildCatalog converts the configured models into a catalog, or returns the built-in
// catalog when none are configured.
func (c *Config) BuildCatalog() (*catalog.Catalog, error) {
	if len(c.Catalog) == 0 {
		return catalog.New(catalog.Default()...)
	}

	models := make([]catalog.ModelDescriptor, 0, len(c.Catalog))
	for _, m := range c.Catalog {
		in, err := parsePrice(m.PriceInputPerMillion)
		if err != nil {
			return nil, fmt.Errorf("model %q input price: %w", m.ID, err)
		}
		out, err := parsePrice(m.PriceOutputPerMillion)
		if err != nil {
			return nil, fmt.Errorf("model %q output price: %w", m.ID, err)
		}
		models = append(models, catalog.ModelDescriptor{
			ID:                        m.ID,
			Summary:                   m.Summary,
			ContextWindow:             m.ContextWindow,
			PriceInputPerMillion:      in,
			PriceOutputPerMillion:     out,
			TimeToFirstTokenSeconds:   m.TimeToFirstTokenSeconds,
			ThroughputTokensPerSecond: m.ThroughputTokensPerSecond,
		})
	}
	return catalog.New(models...)
}

func parsePrice(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative: %s", s)
	}
	return &d, nil
}

// GetDatabaseDSN constructs the database connection string
func (c *Config) GetDatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	if c.Database.Driver == "sqlite" {
		return c.Database.Name + ".db"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
