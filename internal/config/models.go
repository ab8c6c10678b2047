package config

import (
	"fmt"
	"time"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region    string
	ModelID   string
	MaxTokens int
	TopP      float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey    string
	ModelName string
	MaxTokens int
	TopP      float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	ModelName string
	MaxTokens int
	TopP      float32
}

// PromptConfig holds the generation settings of one model-backed component
type PromptConfig struct {
	Temperature float32
	MaxTokens   int
	MaxBodySize int
}

// SignalsConfig configures the priority scorer ensemble
type SignalsConfig struct {
	PromptConfig
	ProviderScorers []string
	UrgencyKeywords []string
}

// MeetingsConfig configures meeting assessment and the meeting sub-policy
type MeetingsConfig struct {
	PromptConfig
	Enabled             bool
	SchedulingKeywords  []string
	AutoAcceptThreshold float64
	DeclineBelow        float64
	BusinessStartHour   int
	BusinessEndHour     int
	SearchDays          int
	MaxAlternatives     int
	SlotStep            time.Duration
	SkipWeekends        bool
	SoftBuffer          time.Duration
}

// RelationshipsConfig lists addresses or domains per relationship tier
type RelationshipsConfig struct {
	Boss      []string
	Client    []string
	Colleague []string
	Timeout   time.Duration
}

// LearningConfig configures the adaptive threshold
type LearningConfig struct {
	InitialThreshold float64
	MinThreshold     float64
	MaxThreshold     float64
	Step             float64
	RaiseAboveRate   float64
	RaiseMinCount    int
	LowerBelowRate   float64
}

// StoreConfig configures durable storage
type StoreConfig struct {
	Type        string
	Retention   int
	ClaimTTL    time.Duration
	CleanupFreq time.Duration
	SQLitePath  string
	MySQLDSN    string
}

// CalendarConfig configures the calendar collaborator
type CalendarConfig struct {
	Type string
	Path string
}

// SMTPConfig configures outgoing mail
type SMTPConfig struct {
	Address  string
	Username string
	Password string
	Helo     string
}

// MailboxConfig configures the mailbox collaborator
type MailboxConfig struct {
	Type               string
	From               string
	SMTP               SMTPConfig
	UnsubscribeTimeout time.Duration
}

// HeadersConfig names the headers added to evaluated mail
type HeadersConfig struct {
	Action     string
	Confidence string
	Reason     string
	Decision   string
}

// ServerConfig configures the SMTP intake daemon
type ServerConfig struct {
	ListenAddress     string
	Domain            string
	MaxMessageBytes   int64
	EvaluationTimeout time.Duration
	RelayEnabled      bool
	RelayAddress      string
	RelayPort         int
	Headers           HeadersConfig
	MetricsAddress    string
}

// KnowledgeEntry is one canned answer of the knowledge base
type KnowledgeEntry struct {
	Keywords []string `mapstructure:"keywords"`
	Answer   string   `mapstructure:"answer"`
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:    c.GetString("bedrock.region"),
		ModelID:   c.GetString("bedrock.model_id"),
		MaxTokens: c.GetInt("bedrock.max_tokens"),
		TopP:      float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:    c.GetString("gemini.api_key"),
		ModelName: c.GetString("gemini.model_name"),
		MaxTokens: c.GetInt("gemini.max_tokens"),
		TopP:      float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:    c.GetString("openai.api_key"),
		BaseURL:   c.GetString("openai.base_url"),
		ModelName: c.GetString("openai.model_name"),
		MaxTokens: c.GetInt("openai.max_tokens"),
		TopP:      float32(c.GetFloat64("openai.top_p")),
	}
}

func (c *Config) prompt(section string) PromptConfig {
	return PromptConfig{
		Temperature: float32(c.GetFloat64(section + ".temperature")),
		MaxTokens:   c.GetInt(section + ".max_tokens"),
		MaxBodySize: c.GetInt(section + ".max_body_size"),
	}
}

// GetSignals returns the scorer ensemble configuration
func (c *Config) GetSignals() SignalsConfig {
	return SignalsConfig{
		PromptConfig:    c.prompt("signals"),
		ProviderScorers: c.GetStringSlice("signals.provider_scorers"),
		UrgencyKeywords: c.GetStringSlice("signals.urgency_keywords"),
	}
}

// GetIntent returns the intent classifier configuration
func (c *Config) GetIntent() PromptConfig {
	return c.prompt("intent")
}

// GetMeetings returns the meeting configuration
func (c *Config) GetMeetings() (MeetingsConfig, error) {
	step, err := c.GetDuration("meetings.slot_step")
	if err != nil {
		return MeetingsConfig{}, err
	}
	buffer, err := c.GetDuration("meetings.soft_buffer")
	if err != nil {
		return MeetingsConfig{}, err
	}
	return MeetingsConfig{
		PromptConfig:        c.prompt("meetings"),
		Enabled:             c.GetBool("meetings.enabled"),
		SchedulingKeywords:  c.GetStringSlice("meetings.scheduling_keywords"),
		AutoAcceptThreshold: c.GetFloat64("meetings.auto_accept_threshold"),
		DeclineBelow:        c.GetFloat64("meetings.decline_below"),
		BusinessStartHour:   c.GetInt("meetings.business_start_hour"),
		BusinessEndHour:     c.GetInt("meetings.business_end_hour"),
		SearchDays:          c.GetInt("meetings.search_days"),
		MaxAlternatives:     c.GetInt("meetings.max_alternatives"),
		SlotStep:            step,
		SkipWeekends:        c.GetBool("meetings.skip_weekends"),
		SoftBuffer:          buffer,
	}, nil
}

// GetRelationships returns the relationship tier lists
func (c *Config) GetRelationships() (RelationshipsConfig, error) {
	timeout, err := c.GetDuration("relationships.timeout")
	if err != nil {
		return RelationshipsConfig{}, err
	}
	return RelationshipsConfig{
		Boss:      c.GetStringSlice("relationships.boss"),
		Client:    c.GetStringSlice("relationships.client"),
		Colleague: c.GetStringSlice("relationships.colleague"),
		Timeout:   timeout,
	}, nil
}

// GetLearning returns the adaptive threshold configuration
func (c *Config) GetLearning() LearningConfig {
	return LearningConfig{
		InitialThreshold: c.GetFloat64("learning.initial_threshold"),
		MinThreshold:     c.GetFloat64("learning.min_threshold"),
		MaxThreshold:     c.GetFloat64("learning.max_threshold"),
		Step:             c.GetFloat64("learning.step"),
		RaiseAboveRate:   c.GetFloat64("learning.raise_above_rate"),
		RaiseMinCount:    c.GetInt("learning.raise_min_count"),
		LowerBelowRate:   c.GetFloat64("learning.lower_below_rate"),
	}
}

// GetStore returns the storage configuration
func (c *Config) GetStore() (StoreConfig, error) {
	ttl, err := c.GetDuration("store.claim_ttl")
	if err != nil {
		return StoreConfig{}, err
	}
	freq, err := c.GetDuration("store.cleanup_frequency")
	if err != nil {
		return StoreConfig{}, err
	}
	return StoreConfig{
		Type:        c.GetString("store.type"),
		Retention:   c.GetInt("store.retention"),
		ClaimTTL:    ttl,
		CleanupFreq: freq,
		SQLitePath:  c.GetString("store.sqlite_path"),
		MySQLDSN:    c.GetString("store.mysql_dsn"),
	}, nil
}

// GetCalendar returns the calendar configuration
func (c *Config) GetCalendar() CalendarConfig {
	return CalendarConfig{
		Type: c.GetString("calendar.type"),
		Path: c.GetString("calendar.path"),
	}
}

// GetMailbox returns the mailbox configuration
func (c *Config) GetMailbox() (MailboxConfig, error) {
	timeout, err := c.GetDuration("mailbox.unsubscribe_timeout")
	if err != nil {
		return MailboxConfig{}, err
	}
	return MailboxConfig{
		Type: c.GetString("mailbox.type"),
		From: c.GetString("mailbox.from"),
		SMTP: SMTPConfig{
			Address:  c.GetString("mailbox.smtp.address"),
			Username: c.GetString("mailbox.smtp.username"),
			Password: c.GetString("mailbox.smtp.password"),
			Helo:     c.GetString("mailbox.smtp.helo"),
		},
		UnsubscribeTimeout: timeout,
	}, nil
}

// GetServer returns the intake daemon configuration
func (c *Config) GetServer() (ServerConfig, error) {
	timeout, err := c.GetDuration("server.evaluation_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		ListenAddress:     c.GetString("server.listen_address"),
		Domain:            c.GetString("server.domain"),
		MaxMessageBytes:   int64(c.GetInt("server.max_message_bytes")),
		EvaluationTimeout: timeout,
		RelayEnabled:      c.GetBool("server.relay.enabled"),
		RelayAddress:      c.GetString("server.relay.address"),
		RelayPort:         c.GetInt("server.relay.port"),
		Headers: HeadersConfig{
			Action:     c.GetString("server.headers.action"),
			Confidence: c.GetString("server.headers.confidence"),
			Reason:     c.GetString("server.headers.reason"),
			Decision:   c.GetString("server.headers.decision"),
		},
		MetricsAddress: c.GetString("server.metrics_address"),
	}, nil
}

// GetKnowledge returns the knowledge base entries
func (c *Config) GetKnowledge() ([]KnowledgeEntry, error) {
	var entries []KnowledgeEntry
	if err := c.UnmarshalKey("knowledge.entries", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// UnmarshalKey decodes a structured section into out
func (c *Config) UnmarshalKey(key string, out interface{}) error {
	if err := c.v.UnmarshalKey(key, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
