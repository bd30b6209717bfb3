package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// Inference providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds the newsdigest configuration.
type Config struct {
	Logging    LoggingConfig   `yaml:"logging"`
	HTTP       HTTPConfig      `yaml:"http"`
	Auth       AuthConfig      `yaml:"auth"`
	Inference  InferenceConfig `yaml:"inference"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Categories []string        `yaml:"categories"`
	Cache      CacheConfig     `yaml:"cache"`
	Archive    ArchiveConfig   `yaml:"archive"`
	Export     ExportConfig    `yaml:"export"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxItems        int `yaml:"max_items"`
}

// BudgetConfig caps provider requests. Zero limits mean unlimited.
type BudgetConfig struct {
	DailyRequestLimit   int64  `yaml:"daily_request_limit"`
	MonthlyRequestLimit int64  `yaml:"monthly_request_limit"`
	Action              string `yaml:"action"` // "reject" | "warn" (default)
}

// InferenceConfig selects and configures the text-generation provider.
type InferenceConfig struct {
	Provider string       `yaml:"provider"` // gemini (default) | openai
	Model    string       `yaml:"model"`
	APIKey   string       `yaml:"api_key"`
	BaseURL  string       `yaml:"base_url"`
	Budget   BudgetConfig `yaml:"budget"`
}

// PipelineConfig tunes the annotation protocol. Delays are in seconds; unset
// pacing delays default to 5s, which keeps a free-tier per-minute quota.
type PipelineConfig struct {
	ChunkSize           int      `yaml:"chunk_size"`
	BodyLimit           int      `yaml:"body_limit"`
	Temperature         *float32 `yaml:"temperature"`
	SummaryLanguage     string   `yaml:"summary_language"`
	RedactionMarker     string   `yaml:"redaction_marker"`
	FallbackSummary     string   `yaml:"fallback_summary"`
	PassDelaySec        float64  `yaml:"pass_delay_sec"`
	ChunkDelaySec       float64  `yaml:"chunk_delay_sec"`
	RecoveryDelaySec    float64  `yaml:"recovery_delay_sec"`
	MaxAttempts         int      `yaml:"max_attempts"`
	RateLimitDelaySec   float64  `yaml:"rate_limit_delay_sec"`
	AuditedBaseDelaySec float64  `yaml:"audited_base_delay_sec"`
	LegacyBaseDelaySec  float64  `yaml:"legacy_base_delay_sec"`

	// AuditGapFallback keeps draft annotations the audit dropped (default true).
	AuditGapFallback *bool `yaml:"audit_gap_fallback"`
}

// CacheConfig configures the Redis/Valkey store behind the response cache and
// the budget counters. No addrs disables both.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLHours         int      `yaml:"ttl_hours"` // 0 = keep forever
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a store is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// TTL returns the response cache TTL.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLHours) * time.Hour }

// ArchiveConfig locates the SQLite run archive. An empty path disables archiving.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// ExportConfig locates the widget feed.
type ExportConfig struct {
	Path   string       `yaml:"path"`
	Market MarketConfig `yaml:"market"`
}

// MarketConfig configures the futures chart API embedded into the feed.
type MarketConfig struct {
	Disabled   bool   `yaml:"disabled"`
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	// Annotating a full request may wait out several rate-limit backoffs.
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 900
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxItems <= 0 {
		c.HTTP.MaxItems = 500
	}

	if c.Inference.Provider == "" {
		c.Inference.Provider = ProviderGemini
	}
	if c.Inference.Model == "" && c.Inference.Provider == ProviderGemini {
		c.Inference.Model = "gemini-2.0-flash"
	}
	if c.Inference.Budget.Action == "" {
		c.Inference.Budget.Action = "warn"
	}

	p := &c.Pipeline
	ann := domain.DefaultAnnotationConfig()
	if p.ChunkSize <= 0 {
		p.ChunkSize = ann.ChunkSize
	}
	if p.BodyLimit <= 0 {
		p.BodyLimit = ann.BodyLimit
	}
	if p.Temperature == nil {
		p.Temperature = ann.Temperature
	}
	if p.SummaryLanguage == "" {
		p.SummaryLanguage = ann.SummaryLanguage
	}
	if p.RedactionMarker == "" {
		p.RedactionMarker = ann.RedactionMarker
	}
	if p.FallbackSummary == "" {
		p.FallbackSummary = ann.FallbackSummary
	}
	for _, d := range []*float64{&p.PassDelaySec, &p.ChunkDelaySec, &p.RecoveryDelaySec} {
		if *d == 0 {
			*d = 5
		}
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RateLimitDelaySec <= 0 {
		p.RateLimitDelaySec = 65
	}
	if p.AuditedBaseDelaySec <= 0 {
		p.AuditedBaseDelaySec = 15
	}
	if p.LegacyBaseDelaySec <= 0 {
		p.LegacyBaseDelaySec = 35
	}
	if p.AuditGapFallback == nil {
		on := true
		p.AuditGapFallback = &on
	}

	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), domain.DefaultCategories...)
	}
	c.Cache.Addrs = nonEmpty(c.Cache.Addrs)
	c.Auth.APIKeys = nonEmpty(c.Auth.APIKeys)
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Export.Path == "" {
		c.Export.Path = filepath.Join("public", "news.json")
	}
	if c.Export.Market.BaseURL == "" {
		c.Export.Market.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Export.Market.TimeoutSec <= 0 {
		c.Export.Market.TimeoutSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Inference.Provider {
	case ProviderGemini:
	case ProviderOpenAI:
		if c.Inference.Model == "" {
			return errors.New("inference.model is required for the openai provider")
		}
	default:
		return fmt.Errorf("inference.provider must be %q or %q, got %q",
			ProviderGemini, ProviderOpenAI, c.Inference.Provider)
	}
	switch c.Inference.Budget.Action {
	case "warn", "reject":
	default:
		return fmt.Errorf("inference.budget.action must be \"warn\" or \"reject\", got %q", c.Inference.Budget.Action)
	}
	if c.Inference.Budget.DailyRequestLimit < 0 || c.Inference.Budget.MonthlyRequestLimit < 0 {
		return errors.New("inference.budget limits must not be negative")
	}

	p := c.Pipeline
	for name, v := range map[string]float64{
		"pass_delay_sec":     p.PassDelaySec,
		"chunk_delay_sec":    p.ChunkDelaySec,
		"recovery_delay_sec": p.RecoveryDelaySec,
	} {
		if v < 0 {
			return fmt.Errorf("pipeline.%s must not be negative, got %v", name, v)
		}
	}
	if t := p.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("pipeline.temperature must be within [0, 2], got %v", *t)
	}

	if _, err := domain.NewTaxonomy(c.Categories); err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	if c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours must not be negative, got %d", c.Cache.TTLHours)
	}
	return nil
}

// Taxonomy builds the category table. Valid after Validate.
func (c *Config) Taxonomy() domain.Taxonomy {
	return domain.MustTaxonomy(c.Categories)
}

// Annotation returns the prompt-level settings.
func (p PipelineConfig) Annotation() domain.AnnotationConfig {
	return domain.AnnotationConfig{
		ChunkSize:       p.ChunkSize,
		BodyLimit:       p.BodyLimit,
		Temperature:     p.Temperature,
		SummaryLanguage: p.SummaryLanguage,
		RedactionMarker: p.RedactionMarker,
		FallbackSummary: p.FallbackSummary,
	}
}

// Seconds converts a fractional second count from the config.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

// nonEmpty drops blanks left by unset ${VAR} references.
func nonEmpty(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		varName, defaultVal, hasDefault := strings.Cut(string(match[2:len(match)-1]), ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
