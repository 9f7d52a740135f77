// Package config provides configuration loading for the cost advisor.
// Values come from a YAML file with environment fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// Config holds all advisor configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Model          ModelConfig          `yaml:"model"`
	Recommendation RecommendationConfig `yaml:"recommendation"`
	LLM            LLMConfig            `yaml:"llm"`
	Ingest         IngestConfig         `yaml:"ingest"`
	AWS            AWSConfig            `yaml:"aws"`
	GCP            GCPConfig            `yaml:"gcp"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	ShutdownTimeoutSeconds int      `yaml:"shutdownTimeoutSeconds"`
	CORSOrigins            []string `yaml:"corsOrigins"`
	MaxBodySize            string   `yaml:"maxBodySize"`
}

// ShutdownTimeout returns the graceful shutdown window as a duration.
func (s *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig configures the PostgreSQL connection.
// URL falls back to the DATABASE_URL environment variable.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ModelConfig configures the trained classifier artifact location.
type ModelConfig struct {
	Dir string `yaml:"dir"`
}

// RecommendationConfig tunes the recommendation and trend endpoints.
type RecommendationConfig struct {
	LookbackDays      int `yaml:"lookbackDays"`
	TrendLookbackDays int `yaml:"trendLookbackDays"`
	AttributionTopK   int `yaml:"attributionTopK"`
}

// LLMConfig configures the optional explanation generator.
// APIKey falls back to the OPENAI_API_KEY environment variable; when
// both are empty the feature is disabled.
type LLMConfig struct {
	APIKey         string `yaml:"apiKey"`
	BaseURL        string `yaml:"baseUrl"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Timeout returns the LLM request timeout as a duration.
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// IngestConfig configures the background ingestion jobs.
type IngestConfig struct {
	Sync       SyncJobConfig       `yaml:"sync"`
	CloudWatch CloudWatchJobConfig `yaml:"cloudwatch"`
	Prometheus PrometheusJobConfig `yaml:"prometheus"`
}

// SyncJobConfig configures periodic cloud inventory discovery.
type SyncJobConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// CloudWatchJobConfig configures periodic CloudWatch metric ingestion.
type CloudWatchJobConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	LookbackHours int    `yaml:"lookbackHours"`
}

// PrometheusJobConfig configures periodic node_exporter scraping.
type PrometheusJobConfig struct {
	URL      string `yaml:"url"`
	Schedule string `yaml:"schedule"`
}

// Enabled reports whether Prometheus ingestion is configured.
func (p *PrometheusJobConfig) Enabled() bool {
	return p.URL != ""
}

// AWSConfig configures AWS discovery and verification.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// GCPConfig configures GCP discovery.
type GCPConfig struct {
	ProjectID string `yaml:"projectId"`
}

// Load reads configuration from a YAML file, applies environment
// fallbacks and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnvFallbacks()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a usable config without a file, for local runs where
// everything comes from environment variables and defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnvFallbacks()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnvFallbacks() {
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.AWS.Region == "" {
		c.AWS.Region = os.Getenv("AWS_REGION")
	}
	if c.GCP.ProjectID == "" {
		c.GCP.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if c.Server.MaxBodySize == "" {
		c.Server.MaxBodySize = "1M"
	}
	if c.Model.Dir == "" {
		c.Model.Dir = "models"
	}
	if c.Recommendation.LookbackDays == 0 {
		c.Recommendation.LookbackDays = engine.DefaultLookbackDays
	}
	if c.Recommendation.TrendLookbackDays == 0 {
		c.Recommendation.TrendLookbackDays = engine.DefaultTrendLookbackDays
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.Ingest.Sync.Schedule == "" {
		c.Ingest.Sync.Schedule = "@hourly"
	}
	if c.Ingest.CloudWatch.Schedule == "" {
		c.Ingest.CloudWatch.Schedule = "@hourly"
	}
	if c.Ingest.CloudWatch.LookbackHours == 0 {
		c.Ingest.CloudWatch.LookbackHours = 24
	}
	if c.Ingest.Prometheus.Schedule == "" {
		c.Ingest.Prometheus.Schedule = "*/15 * * * *"
	}
}

// Validate checks cross-field constraints. Defaults are applied first,
// so this only rejects genuinely bad input.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Recommendation.LookbackDays < 1 {
		return fmt.Errorf("recommendation.lookbackDays must be >= 1")
	}
	if c.Recommendation.TrendLookbackDays < engine.MinTrendLookbackDays ||
		c.Recommendation.TrendLookbackDays > engine.MaxTrendLookbackDays {
		return fmt.Errorf("recommendation.trendLookbackDays must be between %d and %d",
			engine.MinTrendLookbackDays, engine.MaxTrendLookbackDays)
	}
	if c.Recommendation.AttributionTopK < 0 {
		return fmt.Errorf("recommendation.attributionTopK must be >= 0")
	}
	if c.Ingest.CloudWatch.Enabled && c.AWS.Region == "" {
		return fmt.Errorf("aws.region is required when CloudWatch ingestion is enabled")
	}
	if c.Ingest.CloudWatch.LookbackHours < 1 {
		return fmt.Errorf("ingest.cloudwatch.lookbackHours must be >= 1")
	}
	return nil
}
