package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return Load("")
}

// Load reads the configuration from path, or from the default search paths when path is empty
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mailpilot/")
		v.AddConfigPath("$HOME/.mailpilot")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAILPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// LLM provider defaults
	v.SetDefault("llm.provider", "openai")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.top_p", 0.9)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.top_p", 0.9)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.top_p", 0.9)

	// Signal aggregation defaults
	v.SetDefault("signals.temperature", 0.0)
	v.SetDefault("signals.max_tokens", 8)
	v.SetDefault("signals.max_body_size", 4096)
	v.SetDefault("signals.provider_scorers", []string{"gemini", "bedrock"})
	v.SetDefault("signals.urgency_keywords", []string{
		"urgent", "asap", "immediately", "critical", "emergency", "deadline", "today", "eod", "action required",
	})

	// Intent defaults
	v.SetDefault("intent.temperature", 0.0)
	v.SetDefault("intent.max_tokens", 10)
	v.SetDefault("intent.max_body_size", 4096)

	// Meeting defaults
	v.SetDefault("meetings.enabled", true)
	v.SetDefault("meetings.temperature", 0.0)
	v.SetDefault("meetings.max_tokens", 300)
	v.SetDefault("meetings.max_body_size", 4096)
	v.SetDefault("meetings.scheduling_keywords", []string{
		"meeting", "call", "sync", "schedule", "calendar", "invite", "availability", "catch up",
	})
	v.SetDefault("meetings.auto_accept_threshold", 0.7)
	v.SetDefault("meetings.decline_below", 0.3)
	v.SetDefault("meetings.business_start_hour", 9)
	v.SetDefault("meetings.business_end_hour", 17)
	v.SetDefault("meetings.search_days", 14)
	v.SetDefault("meetings.max_alternatives", 3)
	v.SetDefault("meetings.slot_step", "30m")
	v.SetDefault("meetings.skip_weekends", true)
	v.SetDefault("meetings.soft_buffer", "15m")

	// Relationship defaults
	v.SetDefault("relationships.boss", []string{})
	v.SetDefault("relationships.client", []string{})
	v.SetDefault("relationships.colleague", []string{})
	v.SetDefault("relationships.timeout", "2s")

	// Context defaults
	v.SetDefault("projects.keywords", []string{})

	// Learning defaults
	v.SetDefault("learning.initial_threshold", 0.85)
	v.SetDefault("learning.min_threshold", 0.60)
	v.SetDefault("learning.max_threshold", 0.95)
	v.SetDefault("learning.step", 0.05)
	v.SetDefault("learning.raise_above_rate", 0.95)
	v.SetDefault("learning.raise_min_count", 100)
	v.SetDefault("learning.lower_below_rate", 0.80)

	// Autonomy defaults
	v.SetDefault("autonomy.enabled", false)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.retention", 500)
	v.SetDefault("store.claim_ttl", "720h")
	v.SetDefault("store.cleanup_frequency", "1h")
	v.SetDefault("store.sqlite_path", "/var/lib/mailpilot/mailpilot.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/mailpilot")

	// Calendar defaults
	v.SetDefault("calendar.type", "memory")
	v.SetDefault("calendar.path", "/var/lib/mailpilot/calendar.yaml")

	// Mailbox defaults
	v.SetDefault("mailbox.type", "log")
	v.SetDefault("mailbox.from", "assistant@localhost")
	v.SetDefault("mailbox.smtp.address", "localhost:587")
	v.SetDefault("mailbox.smtp.username", "")
	v.SetDefault("mailbox.smtp.password", "")
	v.SetDefault("mailbox.smtp.helo", "localhost")
	v.SetDefault("mailbox.unsubscribe_timeout", "10s")

	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.domain", "localhost")
	v.SetDefault("server.max_message_bytes", 10*1024*1024)
	v.SetDefault("server.evaluation_timeout", "60s")
	v.SetDefault("server.relay.enabled", true)
	v.SetDefault("server.relay.address", "localhost")
	v.SetDefault("server.relay.port", 10026)
	v.SetDefault("server.headers.action", "X-MailPilot-Action")
	v.SetDefault("server.headers.confidence", "X-MailPilot-Confidence")
	v.SetDefault("server.headers.reason", "X-MailPilot-Reason")
	v.SetDefault("server.headers.decision", "X-MailPilot-Decision")
	v.SetDefault("server.metrics_address", "0.0.0.0:9090")
	v.SetDefault("server.intake_type", "smtp")

	// CLI defaults
	v.SetDefault("cli.verbose", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMapString gets a string map from the configuration
func (c *Config) GetStringMapString(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// Set overrides a value, mainly for command line flags
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
