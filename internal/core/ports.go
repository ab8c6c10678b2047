package core

import (
	"context"
	"time"
)

// GenerateRequest is a single text-generation call
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// TextGenerator defines the interface for interacting with LLM services
type TextGenerator interface {
	// Generate returns the raw model text. Backend unavailability is reported as *ModelError.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// RelationshipAnalyzer describes how the user relates to a sender
type RelationshipAnalyzer interface {
	Analyze(ctx context.Context, senderAddress string) (*Relationship, error)
}

// SenderHistory exposes per-sender reading and interaction history
type SenderHistory interface {
	OpenRate(ctx context.Context, senderAddress string) (float64, error)
	InteractionCount(ctx context.Context, senderAddress string) (int, error)
}

// Calendar defines the interface for the user's calendar
type Calendar interface {
	ListEvents(ctx context.Context) ([]CalendarEvent, error)
	CreateEvent(ctx context.Context, event CalendarEvent) (string, error)
}

// MailboxActions are the side-effecting verbs on the user's mailbox.
// Every verb must be safe to repeat for the same message.
type MailboxActions interface {
	Reply(ctx context.Context, msg *Message, body string) error
	Archive(ctx context.Context, msg *Message) error
	Forward(ctx context.Context, msg *Message, to string, note string) error
	SnoozeUntil(ctx context.Context, msg *Message, until time.Time) error
	Unsubscribe(ctx context.Context, msg *Message, target string) error
	FlagForReview(ctx context.Context, msg *Message, reason string) error
}

// KnowledgeBase answers informational questions from the user's notes
type KnowledgeBase interface {
	// Lookup returns an answer and true when one was found
	Lookup(ctx context.Context, msg *Message) (string, bool, error)
}

// LearningRepository persists the feedback history
type LearningRepository interface {
	AppendRecord(ctx context.Context, record LearningRecord) error
	// LoadRecords returns at most limit of the newest records, oldest first
	LoadRecords(ctx context.Context, limit int) ([]LearningRecord, error)
	// PruneRecords keeps only the newest keep records
	PruneRecords(ctx context.Context, keep int) error
}

// FeedbackHistory summarizes retained feedback per sender domain
type FeedbackHistory interface {
	PatternsFor(domain string) FeedbackPattern
}

// SettingsRepository persists small scalar settings
type SettingsRepository interface {
	// GetSetting returns ErrNotFound when the key has never been set
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ProfileRepository persists sender profiles
type ProfileRepository interface {
	// GetProfile returns ErrNotFound for unknown senders
	GetProfile(ctx context.Context, address string) (*SenderProfile, error)
	SaveProfile(ctx context.Context, profile *SenderProfile) error
}

// DispatchLedger remembers which side effects already happened
type DispatchLedger interface {
	// Claim returns false when the key was already claimed
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets a claim after a failed side effect
	Release(ctx context.Context, key string) error
}

// MailboxStateRepository persists the local state of messages
type MailboxStateRepository interface {
	SetState(ctx context.Context, state *MailboxState) error
	GetState(ctx context.Context, messageID string) (*MailboxState, error)
}

// Store is the durable key-value storage used by the assistant
type Store interface {
	LearningRepository
	SettingsRepository
	ProfileRepository
	DispatchLedger
	MailboxStateRepository
}
