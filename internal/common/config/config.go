// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	TemplateStore TemplateStoreConfig     `mapstructure:"template_store"`
	Generation    GenerationConfig        `mapstructure:"generation"`
	Access        AccessConfig            `mapstructure:"access"`
	Catalog       CatalogConfig           `mapstructure:"catalog"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
	Server        ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a Postgres host is configured. The tier lookup
// worker is the only consumer.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Preset Configuration Sections ---

// Template store source kinds.
const (
	SourceHTTP          = "http"
	SourceElasticsearch = "elasticsearch"
)

// TemplateStoreConfig configures where pre-generated template records come from.
type TemplateStoreConfig struct {
	Source     string `mapstructure:"source"` // http | elasticsearch
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"`   // milliseconds
	CacheTTL   int    `mapstructure:"cache_ttl"` // seconds, 0 disables the Redis payload cache
	PreferIPv4 bool   `mapstructure:"prefer_ipv4"`
}

// GenerationConfig configures the paid live-generation backend.
type GenerationConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
}

// AccessConfig holds the tier feature policy. Keys are tier names, values
// list restricted dimension values for that tier.
type AccessConfig struct {
	DefaultTier  string                      `mapstructure:"default_tier"`
	Policies     map[string]TierPolicyConfig `mapstructure:"policies"`
	TierCacheTTL int                         `mapstructure:"tier_cache_ttl"` // seconds
}

type TierPolicyConfig struct {
	RestrictedModifiers []string `mapstructure:"restricted_modifiers"`
	RestrictedSubjects  []string `mapstructure:"restricted_subjects"`
	AllowCustomInput    bool     `mapstructure:"allow_custom_input"`
	AllowGeneration     bool     `mapstructure:"allow_generation"`
	ToolRestrictions    bool     `mapstructure:"tool_restrictions"` // apply per-tool restricted values from the registry
}

// CatalogConfig controls the snapshot catalog lifecycle.
type CatalogConfig struct {
	RegistryPath    string   `mapstructure:"registry_path"`
	WarmTools       []string `mapstructure:"warm_tools"`
	WarmLocales     []string `mapstructure:"warm_locales"`
	RefreshInterval int      `mapstructure:"refresh_interval"` // seconds, 0 disables
	LoadTimeout     int      `mapstructure:"load_timeout"`     // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig enables span export when JaegerEndpoint is set.
type TracingConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// TierPolicy returns the configured policy for a tier, matching case-insensitively.
func (a AccessConfig) TierPolicy(tier string) (TierPolicyConfig, bool) {
	for name, p := range a.Policies {
		if strings.EqualFold(name, tier) {
			return p, true
		}
	}
	return TierPolicyConfig{}, false
}
