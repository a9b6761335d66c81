// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Languages is the sequence of language tags to evaluate, in order.
	Languages []string `envconfig:"RAGBENCH_LANGUAGES" yaml:"languages"`

	// Paths configuration
	Paths PathsConfig `yaml:"paths"`

	// Runner configuration
	Runner RunnerConfig `yaml:"runner"`

	// Validator configuration
	Validator ValidatorConfig `yaml:"validator"`

	// Pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Reports configuration
	Reports ReportsConfig `yaml:"reports"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Server configuration (service mode)
	Server ServerConfig `yaml:"server"`
}

// PathsConfig holds dataset file locations. Templates may contain the
// {language} placeholder, expanded per configured language.
type PathsConfig struct {
	QueryTemplate  string `envconfig:"RAGBENCH_QUERY_TEMPLATE" yaml:"query_template"`
	DocsPath       string `envconfig:"RAGBENCH_DOCS_PATH" yaml:"docs_path"`
	OutputTemplate string `envconfig:"RAGBENCH_OUTPUT_TEMPLATE" yaml:"output_template"`
}

// RunnerConfig holds external inference runner settings.
type RunnerConfig struct {
	// Command is the inference command template with {query}, {docs},
	// {language} and {output} placeholders.
	Command string `envconfig:"RAGBENCH_RUNNER_COMMAND" yaml:"command"`

	// TimeoutSeconds bounds one inference invocation. 0 disables the bound.
	TimeoutSeconds int `envconfig:"RAGBENCH_RUNNER_TIMEOUT" yaml:"timeout_seconds"`
}

// ValidatorConfig holds the answer schema expected of predictions.
type ValidatorConfig struct {
	AnswerField string `envconfig:"RAGBENCH_ANSWER_FIELD" yaml:"answer_field"`
	AnswerShape string `envconfig:"RAGBENCH_ANSWER_SHAPE" yaml:"answer_shape"`
}

// PipelineConfig holds orchestration policy.
type PipelineConfig struct {
	// FailFast halts remaining languages after the first failure.
	FailFast bool `envconfig:"RAGBENCH_FAIL_FAST" yaml:"fail_fast"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RAGBENCH_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RAGBENCH_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RAGBENCH_KAFKA_GROUP" yaml:"kafka_group"`
}

// ReportsConfig holds report persistence settings.
type ReportsConfig struct {
	Store    string `envconfig:"RAGBENCH_REPORT_STORE" yaml:"store"`
	RedisURL string `envconfig:"RAGBENCH_REDIS_URL" yaml:"redis_url"`
	TTLHours int    `envconfig:"RAGBENCH_REPORT_TTL_HOURS" yaml:"ttl_hours"` // 0 = no expiry
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RAGBENCH_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RAGBENCH_LOG_FORMAT" yaml:"format"`
}

// ServerConfig holds HTTP service mode settings.
type ServerConfig struct {
	Host      string `envconfig:"RAGBENCH_HOST" yaml:"host"`
	Port      int    `envconfig:"RAGBENCH_PORT" yaml:"port"`
	RateLimit int    `envconfig:"RAGBENCH_RATE_LIMIT" yaml:"rate_limit"` // req/sec per client, 0 = disabled
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Languages = []string{"en", "zh"}

	cfg.Paths = PathsConfig{
		QueryTemplate:  "data/{language}/queries.jsonl",
		DocsPath:       "data/docs.jsonl",
		OutputTemplate: "output/{language}/predictions.jsonl",
	}

	cfg.Runner = RunnerConfig{
		Command:        "python3 rag/main.py --query_path {query} --docs_path {docs} --language {language} --output {output}",
		TimeoutSeconds: 3600,
	}

	cfg.Validator = ValidatorConfig{
		AnswerField: "answer",
		AnswerShape: "any",
	}

	cfg.Pipeline = PipelineConfig{
		FailFast: true,
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Reports = ReportsConfig{
		Store:    "memory",
		RedisURL: "redis://localhost:6379",
		TTLHours: 0,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Server = ServerConfig{
		Host:      "0.0.0.0",
		Port:      8080,
		RateLimit: 0,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Languages) == 0 {
		errs = append(errs, "at least one language must be configured")
	}
	for _, lang := range c.Languages {
		if strings.TrimSpace(lang) == "" {
			errs = append(errs, "language tags must be non-empty")
			break
		}
	}

	if len(c.Languages) > 1 && !strings.Contains(c.Paths.QueryTemplate, "{language}") {
		errs = append(errs, "query_template must contain {language} when multiple languages are configured")
	}
	if len(c.Languages) > 1 && !strings.Contains(c.Paths.OutputTemplate, "{language}") {
		errs = append(errs, "output_template must contain {language} when multiple languages are configured")
	}
	if c.Paths.DocsPath == "" {
		errs = append(errs, "docs_path must be set")
	}

	if strings.TrimSpace(c.Runner.Command) == "" {
		errs = append(errs, "runner command must be set")
	} else {
		for _, placeholder := range []string{"{query}", "{output}"} {
			if !strings.Contains(c.Runner.Command, placeholder) {
				errs = append(errs, fmt.Sprintf("runner command must contain %s", placeholder))
			}
		}
	}
	if c.Runner.TimeoutSeconds < 0 {
		errs = append(errs, "runner timeout_seconds must not be negative")
	}

	validShapes := map[string]bool{"": true, "any": true, "string": true, "object": true}
	if !validShapes[c.Validator.AnswerShape] {
		errs = append(errs, fmt.Sprintf("invalid answer_shape: %s (must be any, string, or object)", c.Validator.AnswerShape))
	}
	if c.Validator.AnswerField == "" {
		errs = append(errs, "answer_field must be set")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers must be set when bus type is kafka")
	}

	validStores := map[string]bool{"memory": true, "redis": true}
	if !validStores[c.Reports.Store] {
		errs = append(errs, fmt.Sprintf("invalid report store: %s (must be memory or redis)", c.Reports.Store))
	}
	if c.Reports.TTLHours < 0 {
		errs = append(errs, "report ttl_hours must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// QueryPath returns the query file path for a language.
func (c *Config) QueryPath(language string) string {
	return strings.ReplaceAll(c.Paths.QueryTemplate, "{language}", language)
}

// OutputPath returns the prediction file path for a language.
func (c *Config) OutputPath(language string) string {
	return strings.ReplaceAll(c.Paths.OutputTemplate, "{language}", language)
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
