package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "LITREVIEW_CONFIG"

	primaryKeyEnv  = "LITREVIEW_PRIMARY_API_KEY"
	backupKeyEnv   = "LITREVIEW_BACKUP_API_KEY"
	postgresURLEnv = "LITREVIEW_POSTGRES_URL"
	pdfDirEnv      = "LITREVIEW_PDF_DIR"
	outputDirEnv   = "LITREVIEW_OUTPUT_DIR"
	maxWorkersEnv  = "LITREVIEW_MAX_WORKERS"
)

// Config holds every setting the pipeline needs, validated once at startup.
type Config struct {
	Project     string            `yaml:"project"`
	Paths       PathsConfig       `yaml:"paths"`
	Primary     EngineConfig      `yaml:"primary"`
	Backup      EngineConfig      `yaml:"backup"`
	Limits      LimitsConfig      `yaml:"limits"`
	Performance PerformanceConfig `yaml:"performance"`
	Retry       RetryConfig       `yaml:"retry"`
	PostgresURL string            `yaml:"postgresUrl"`
}

// PathsConfig describes where inputs live and outputs go.
type PathsConfig struct {
	PDFDir     string `yaml:"pdfDir"`
	OutputDir  string `yaml:"outputDir"`
	PromptFile string `yaml:"promptFile"`
}

// EngineConfig identifies one chat-completion engine and its sampling knobs.
type EngineConfig struct {
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model"`
	APIBase     string  `yaml:"apiBase"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

// Configured reports whether the engine can be called at all.
func (e EngineConfig) Configured() bool {
	return e.APIKey != "" && e.Model != ""
}

// LimitsConfig carries per-engine TPM/RPM budgets. A zero or absent value
// puts that engine in reactive mode (no proactive rate shaping).
type LimitsConfig struct {
	PrimaryTPM int `yaml:"primaryTpm"`
	PrimaryRPM int `yaml:"primaryRpm"`
	BackupTPM  int `yaml:"backupTpm"`
	BackupRPM  int `yaml:"backupRpm"`
}

// PerformanceConfig tunes the worker pool and prompt sizing.
type PerformanceConfig struct {
	MaxWorkers     int `yaml:"maxWorkers"`
	MinTextChars   int `yaml:"minTextChars"`
	ReserveTokens  int `yaml:"reserveTokens"`
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// RetryConfig governs the multi-round automatic retry loop.
type RetryConfig struct {
	MaxRounds        int `yaml:"maxRounds"`
	BaseDelaySeconds int `yaml:"baseDelaySeconds"`
	MaxDelaySeconds  int `yaml:"maxDelaySeconds"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides on top of defaults.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			log.Printf("config: %s not found, using defaults and environment", path)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(primaryKeyEnv); v != "" {
		c.Primary.APIKey = v
	}
	if v := os.Getenv(backupKeyEnv); v != "" {
		c.Backup.APIKey = v
	}
	if v := os.Getenv(postgresURLEnv); v != "" {
		c.PostgresURL = v
	}
	if v := os.Getenv(pdfDirEnv); v != "" {
		c.Paths.PDFDir = v
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		c.Paths.OutputDir = v
	}
	if v := os.Getenv(maxWorkersEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.MaxWorkers = n
		}
	}
}

func (c *Config) fillDefaults() {
	d := defaultConfig()
	if c.Project == "" {
		c.Project = d.Project
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = d.Paths.OutputDir
	}
	if c.Primary.APIBase == "" {
		c.Primary.APIBase = d.Primary.APIBase
	}
	if c.Backup.APIBase == "" {
		c.Backup.APIBase = d.Backup.APIBase
	}
	if c.Primary.MaxTokens <= 0 {
		c.Primary.MaxTokens = d.Primary.MaxTokens
	}
	if c.Backup.MaxTokens <= 0 {
		c.Backup.MaxTokens = d.Backup.MaxTokens
	}
	if c.Primary.Temperature <= 0 {
		c.Primary.Temperature = d.Primary.Temperature
	}
	if c.Backup.Temperature <= 0 {
		c.Backup.Temperature = d.Backup.Temperature
	}
	if c.Performance.MaxWorkers <= 0 {
		c.Performance.MaxWorkers = d.Performance.MaxWorkers
	}
	if c.Performance.MinTextChars <= 0 {
		c.Performance.MinTextChars = d.Performance.MinTextChars
	}
	if c.Performance.ReserveTokens <= 0 {
		c.Performance.ReserveTokens = d.Performance.ReserveTokens
	}
	if c.Performance.TimeoutSeconds <= 0 {
		c.Performance.TimeoutSeconds = d.Performance.TimeoutSeconds
	}
	if c.Retry.MaxRounds <= 0 {
		c.Retry.MaxRounds = d.Retry.MaxRounds
	}
	if c.Retry.BaseDelaySeconds <= 0 {
		c.Retry.BaseDelaySeconds = d.Retry.BaseDelaySeconds
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		c.Retry.MaxDelaySeconds = d.Retry.MaxDelaySeconds
	}
}

// Validate rejects configurations that cannot produce a working run.
func (c Config) Validate() error {
	if !c.Primary.Configured() {
		return fmt.Errorf("config: primary engine requires apiKey and model")
	}
	if c.Backup.APIKey != "" && c.Backup.Model == "" {
		return fmt.Errorf("config: backup engine has apiKey but no model")
	}
	if c.Paths.PDFDir == "" {
		return fmt.Errorf("config: paths.pdfDir is required")
	}
	if c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		return fmt.Errorf("config: retry.maxDelaySeconds must be >= baseDelaySeconds")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Project: "litreview",
		Paths: PathsConfig{
			OutputDir: "./output",
		},
		Primary: EngineConfig{
			APIBase:     "https://api.openai.com/v1",
			MaxTokens:   3000,
			Temperature: 0.3,
		},
		Backup: EngineConfig{
			APIBase:     "https://api.openai.com/v1",
			MaxTokens:   8192,
			Temperature: 0.3,
		},
		Limits: LimitsConfig{
			PrimaryTPM: 900000,
			PrimaryRPM: 9000,
			BackupTPM:  2000000,
			BackupRPM:  9000,
		},
		Performance: PerformanceConfig{
			MaxWorkers:     3,
			MinTextChars:   500,
			ReserveTokens:  3000,
			TimeoutSeconds: 300,
		},
		Retry: RetryConfig{
			MaxRounds:        2,
			BaseDelaySeconds: 30,
			MaxDelaySeconds:  120,
		},
	}
}
