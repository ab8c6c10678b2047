package core

import (
	"strings"
	"time"
)

// Message represents an inbound email as delivered by the mailbox reader.
// The decision core only reads it.
type Message struct {
	ID              string
	MessageIDHeader string
	From            string
	To              []string
	Subject         string
	Body            string
	ReceivedAt      time.Time
	ThreadLength    int
	HasAttachments  bool
	HasCalendarPart bool
	// ListUnsubscribe is the first usable List-Unsubscribe target (mailto: or https:)
	ListUnsubscribe string
	Headers         map[string][]string
}

// SenderDomain returns the lower-cased domain of the sender address
func (m *Message) SenderDomain() string {
	return DomainOf(m.From)
}

// DomainOf extracts the lower-cased domain from an address like "Name <user@example.com>"
func DomainOf(address string) string {
	addr := strings.TrimSpace(address)
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// NormalizeAddress lower-cases an address and strips any display name
func NormalizeAddress(address string) string {
	addr := strings.TrimSpace(address)
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	return strings.ToLower(strings.TrimSpace(addr))
}

// SignalVote is one scorer's opinion of a message
type SignalVote struct {
	Scorer string
	Score  int
	// Neutral is set when the vote was substituted because the scorer failed
	// or answered with something that was not a score.
	Neutral bool
	Note    string
}

// Tier is a coarse band used for urgency and importance
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// PriorityScore is the aggregated result of the signal ensemble
type PriorityScore struct {
	Score      float64
	Confidence float64
	Urgency    Tier
	Importance Tier
	Votes      []SignalVote
	Reasoning  []string
	// RuleBased is set when the score came from the heuristic fallback
	RuleBased bool
}

// Intent is the coarse category of what the sender wants
type Intent string

const (
	IntentInformation    Intent = "wants_information"
	IntentMeeting        Intent = "wants_meeting"
	IntentAction         Intent = "wants_action"
	IntentDecision       Intent = "wants_decision"
	IntentAcknowledgment Intent = "wants_acknowledgment"
	IntentNothing        Intent = "wants_nothing"
	IntentUnknown        Intent = "unknown"
)

// KnownIntents lists the closed set of intents a classifier may return
var KnownIntents = []Intent{
	IntentInformation,
	IntentMeeting,
	IntentAction,
	IntentDecision,
	IntentAcknowledgment,
	IntentNothing,
}

// RelationshipTier classifies the sender relative to the user
type RelationshipTier string

const (
	RelationshipBoss      RelationshipTier = "boss"
	RelationshipClient    RelationshipTier = "client"
	RelationshipColleague RelationshipTier = "colleague"
	RelationshipUnknown   RelationshipTier = "unknown"
)

// Relationship is what the relationship collaborator knows about a sender
type Relationship struct {
	Tier                RelationshipTier
	LastInteraction     time.Time
	AverageResponseTime time.Duration
}

// SenderProfile is the persisted per-sender history
type SenderProfile struct {
	Address           string
	Delivered         int
	Read              int
	Interactions      int
	LastInteraction   time.Time
	TotalResponseTime time.Duration
	Responses         int
}

// OpenRate returns the fraction of delivered messages that were read
func (p *SenderProfile) OpenRate() float64 {
	if p == nil || p.Delivered == 0 {
		return 0
	}
	return float64(p.Read) / float64(p.Delivered)
}

// AverageResponseTime returns the mean time the user took to respond
func (p *SenderProfile) AverageResponseTime() time.Duration {
	if p == nil || p.Responses == 0 {
		return 0
	}
	return p.TotalResponseTime / time.Duration(p.Responses)
}

// TimeSlot is a half-open time range
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// Duration returns the slot length
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether two ranges intersect (start1 < end2 AND end1 > start2)
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start.Before(o.End) && s.End.After(o.Start)
}

// CalendarEvent is an event known to the calendar collaborator
type CalendarEvent struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
}

// Slot returns the event's time range
func (e CalendarEvent) Slot() TimeSlot {
	return TimeSlot{Start: e.Start, End: e.End}
}

// ConflictKind distinguishes direct overlaps from buffer violations
type ConflictKind string

const (
	ConflictHard ConflictKind = "hard"
	ConflictSoft ConflictKind = "soft"
)

// Conflict is a calendar event clashing with a proposed slot
type Conflict struct {
	Kind  ConflictKind
	Event CalendarEvent
}

// Necessity is how essential a requested meeting is
type Necessity string

const (
	NecessityRequired  Necessity = "required"
	NecessityImportant Necessity = "important"
	NecessityOptional  Necessity = "optional"
	NecessityFYI       Necessity = "fyi"
)

// MeetingRequest is the assessed content of a scheduling request
type MeetingRequest struct {
	Title      string
	Slot       TimeSlot
	ValueScore int
	Necessity  Necessity
}

// MeetingContext bundles everything the meeting sub-policy needs
type MeetingContext struct {
	Request   MeetingRequest
	Conflicts []Conflict
	Events    []CalendarEvent
}

// HardConflicts returns only the direct overlaps
func (m *MeetingContext) HardConflicts() []Conflict {
	return filterConflicts(m.Conflicts, ConflictHard)
}

// SoftConflicts returns only the buffer violations
func (m *MeetingContext) SoftConflicts() []Conflict {
	return filterConflicts(m.Conflicts, ConflictSoft)
}

func filterConflicts(conflicts []Conflict, kind ConflictKind) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Context is the per-decision view of relationship and calendar state
type Context struct {
	Tier             RelationshipTier
	OpenRate         float64
	InteractionCount int
	LastInteraction  time.Time
	SenderImportance float64
	Conflicts        []Conflict
	RelatedProject   string
	KnowledgeAnswer  string
	Feedback         FeedbackPattern
	// CalendarInvite is set when the message carries a text/calendar part
	CalendarInvite bool
	Meeting        *MeetingContext
	// MeetingFailure is set when a scheduling request was detected but could
	// not be assessed; the policy must escalate.
	MeetingFailure string
	Now            time.Time
}

// Outcome is what happened to a decision after gating
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeExecuted  Outcome = "executed"
	OutcomeSuggested Outcome = "suggested"
	OutcomeEscalated Outcome = "escalated"
	OutcomeFailed    Outcome = "failed"
)

// Decision is a candidate action for one message
type Decision struct {
	ID               string
	MessageID        string
	Intent           Intent
	Action           Action
	Confidence       float64
	Reasoning        []string
	RequiresApproval bool
	Outcome          Outcome
	Priority         *PriorityScore
	CreatedAt        time.Time
}

// ClampConfidence keeps a value inside [0,1]
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Fingerprint is a coarse description of a message used for learning
type Fingerprint struct {
	SenderDomain    string   `json:"sender_domain"`
	SubjectKeywords []string `json:"subject_keywords"`
	HasAttachments  bool     `json:"has_attachments"`
	IsThread        bool     `json:"is_thread"`
}

// LearningRecord is one piece of human feedback on a past decision
type LearningRecord struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Action      ActionKind  `json:"action"`
	Approved    bool        `json:"approved"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// FeedbackPattern summarizes past feedback for one sender domain
type FeedbackPattern struct {
	SenderDomain string
	Approved     int
	Rejected     int
	// ByAction counts approvals per suggested action
	ByAction map[ActionKind]int
}

// Total returns the number of feedback events behind the pattern
func (p FeedbackPattern) Total() int {
	return p.Approved + p.Rejected
}

// ApprovalRate returns approved/(approved+rejected), or 0 with no feedback
func (p FeedbackPattern) ApprovalRate() float64 {
	if p.Total() == 0 {
		return 0
	}
	return float64(p.Approved) / float64(p.Total())
}

// MailboxState is the local state the assistant keeps for a message
type MailboxState struct {
	MessageID string
	State     string
	Until     time.Time
	Note      string
	UpdatedAt time.Time
}
