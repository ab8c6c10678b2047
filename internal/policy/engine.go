package policy

import (
	"fmt"

	"github.com/mikey/mailpilot/internal/core"
)

const (
	archiveOpenRateCeiling = 0.05
	acknowledgeScoreCeil   = 50

	confidenceArchive     = 0.95
	confidenceAcknowledge = 0.85
	confidenceAccept      = 0.80
	confidenceInformation = 0.75
	confidenceEscalate    = 1.0
	confidenceFallthrough = 0.5
	confidenceProposal    = 0.75
)

// CannedAcknowledgment is the reply body for simple acknowledgments
const CannedAcknowledgment = "Thanks, got it. I'll follow up if anything else is needed."

// Engine maps (intent, priority, context) to a Decision. It performs no I/O.
type Engine struct {
	meeting MeetingConfig
}

// NewEngine creates a new policy Engine
func NewEngine(meeting MeetingConfig) *Engine {
	return &Engine{meeting: meeting}
}

// rule is one guarded row of the decision matrix
type rule struct {
	name    string
	intents []core.Intent
	guard   func(p *core.PriorityScore, c *core.Context) bool
	decide  func(p *core.PriorityScore, c *core.Context) (core.Action, float64, string)
}

var matrix = []rule{
	{
		name:    "archive ignored sender",
		intents: []core.Intent{core.IntentNothing},
		guard: func(_ *core.PriorityScore, c *core.Context) bool {
			return c.OpenRate < archiveOpenRateCeiling
		},
		decide: func(_ *core.PriorityScore, c *core.Context) (core.Action, float64, string) {
			return core.AutoArchive{}, confidenceArchive,
				fmt.Sprintf("nothing requested and sender open rate %.2f", c.OpenRate)
		},
	},
	{
		name:    "acknowledge low priority",
		intents: []core.Intent{core.IntentAcknowledgment},
		guard: func(p *core.PriorityScore, _ *core.Context) bool {
			return p.Score < acknowledgeScoreCeil
		},
		decide: func(p *core.PriorityScore, _ *core.Context) (core.Action, float64, string) {
			return core.AutoReply{Body: CannedAcknowledgment, SendImmediately: true}, confidenceAcknowledge,
				fmt.Sprintf("acknowledgment requested, priority %.1f", p.Score)
		},
	},
	{
		name:    "accept conflict-free meeting",
		intents: []core.Intent{core.IntentMeeting},
		guard: func(_ *core.PriorityScore, c *core.Context) bool {
			// Without an assessed slot there is nothing to check conflicts against
			return c.Meeting != nil && len(c.Conflicts) == 0
		},
		decide: func(_ *core.PriorityScore, c *core.Context) (core.Action, float64, string) {
			slot := c.Meeting.Request.Slot
			return core.AcceptMeeting{Slot: &slot, Title: c.Meeting.Request.Title, CreateEvent: true}, confidenceAccept,
				"meeting requested with no calendar conflicts"
		},
	},
	{
		name:    "answer from knowledge base",
		intents: []core.Intent{core.IntentInformation},
		guard: func(_ *core.PriorityScore, c *core.Context) bool {
			return c.KnowledgeAnswer != ""
		},
		decide: func(_ *core.PriorityScore, c *core.Context) (core.Action, float64, string) {
			return core.AutoReply{Body: c.KnowledgeAnswer, NeedsReview: true}, confidenceInformation,
				"information requested and found in knowledge base"
		},
	},
	{
		name:    "escalate action or decision",
		intents: []core.Intent{core.IntentAction, core.IntentDecision},
		guard:   func(*core.PriorityScore, *core.Context) bool { return true },
		decide: func(_ *core.PriorityScore, _ *core.Context) (core.Action, float64, string) {
			return core.Escalate{Urgency: core.TierHigh, Reason: "sender needs an action or decision"}, confidenceEscalate,
				"actions and decisions always go to the human"
		},
	},
}

// Decide evaluates the rules in order and falls through to a medium escalation.
// Explicit scheduling requests (wants_meeting or a calendar invite) go to the
// meeting sub-policy first. A request inferred only from subject keywords is
// decided by the sub-policy when no matrix rule applies.
func (e *Engine) Decide(intent core.Intent, priority *core.PriorityScore, c *core.Context) *core.Decision {
	d := e.decide(intent, priority, c)
	if f := c.Feedback; f.Total() > 0 {
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("past feedback for %s: %d approved, %d rejected",
			f.SenderDomain, f.Approved, f.Rejected))
	}
	return d
}

func (e *Engine) decide(intent core.Intent, priority *core.PriorityScore, c *core.Context) *core.Decision {
	if priority == nil {
		priority = &core.PriorityScore{Score: 50}
	}

	if intent == core.IntentMeeting || c.CalendarInvite {
		if d := e.decideScheduling(intent, priority, c); d != nil {
			return d
		}
	}

	for _, r := range matrix {
		if !hasIntent(r.intents, intent) || !r.guard(priority, c) {
			continue
		}
		action, confidence, why := r.decide(priority, c)
		d := newDecision(intent, priority, c, action, confidence, why)
		d.Reasoning = append(d.Reasoning, "rule: "+r.name)
		return d
	}

	if d := e.decideScheduling(intent, priority, c); d != nil {
		d.Reasoning = append(d.Reasoning, "scheduling request inferred from subject")
		return d
	}

	return newDecision(intent, priority, c,
		core.Escalate{Urgency: core.TierMedium, Reason: "no rule matched"},
		confidenceFallthrough, fmt.Sprintf("no rule matched intent %s", intent))
}

// decideScheduling returns nil when the context holds no meeting to decide on
func (e *Engine) decideScheduling(intent core.Intent, priority *core.PriorityScore, c *core.Context) *core.Decision {
	if c.MeetingFailure != "" {
		return newDecision(intent, priority, c,
			core.Escalate{Urgency: core.TierMedium, Reason: "meeting request could not be assessed"},
			confidenceFallthrough, "meeting assessment failed: "+c.MeetingFailure)
	}
	if c.Meeting == nil || e.meeting.Disabled {
		return nil
	}
	return e.decideMeeting(intent, priority, c)
}

func (e *Engine) decideMeeting(intent core.Intent, priority *core.PriorityScore, c *core.Context) *core.Decision {
	mc := c.Meeting
	score, reasons := ScoreMeeting(mc, c.SenderImportance, e.meeting.Preferences)
	summary := fmt.Sprintf("meeting score %.2f", score)

	var d *core.Decision
	switch {
	case len(mc.HardConflicts()) > 0:
		from := mc.Request.Slot.Start
		if c.Now.After(from) {
			from = c.Now
		}
		slots := FindAlternatives(mc.Events, mc.Request.Slot.Duration(), from, e.meeting)
		confidence := confidenceProposal
		why := fmt.Sprintf("hard conflict, proposing %d alternative slot(s)", len(slots))
		if len(slots) == 0 {
			confidence = confidenceFallthrough
			why = "hard conflict and no free slot found"
		}
		d = newDecision(intent, priority, c, core.ProposeAlternative{Slots: slots}, confidence, why)
	case score >= e.meeting.AutoAcceptThreshold:
		slot := mc.Request.Slot
		d = newDecision(intent, priority, c,
			core.AcceptMeeting{Slot: &slot, Title: mc.Request.Title, CreateEvent: true},
			score, summary+" meets auto-accept threshold")
	case score < e.meeting.DeclineBelow:
		d = newDecision(intent, priority, c,
			core.DeclineMeeting{Reason: "schedule does not allow it"},
			1-score, summary+" below decline cut-off")
	default:
		d = newDecision(intent, priority, c,
			core.Escalate{Urgency: core.TierMedium, Reason: "meeting value is borderline"},
			confidenceFallthrough, summary+" is borderline")
	}

	if soft := len(mc.SoftConflicts()); soft > 0 {
		reasons = append(reasons, fmt.Sprintf("%d event(s) within buffer", soft))
	}
	d.Reasoning = append(d.Reasoning, reasons...)
	return d
}

func newDecision(intent core.Intent, priority *core.PriorityScore, c *core.Context, action core.Action, confidence float64, why string) *core.Decision {
	return &core.Decision{
		Intent:     intent,
		Action:     action,
		Confidence: core.ClampConfidence(confidence),
		Reasoning:  []string{why},
		Outcome:    core.OutcomePending,
		Priority:   priority,
		CreatedAt:  c.Now,
	}
}

func hasIntent(intents []core.Intent, intent core.Intent) bool {
	for _, in := range intents {
		if in == intent {
			return true
		}
	}
	return false
}
