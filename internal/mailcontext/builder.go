package mailcontext

import (
	"context"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// neutralOpenRate is assumed when the sender history cannot be read
const neutralOpenRate = 0.5

var tierImportance = map[core.RelationshipTier]float64{
	core.RelationshipBoss:      1.0,
	core.RelationshipClient:    0.85,
	core.RelationshipColleague: 0.6,
	core.RelationshipUnknown:   0.3,
}

// Builder assembles the per-decision Context. It only reads collaborator state.
type Builder struct {
	relationships   core.RelationshipAnalyzer
	history         core.SenderHistory
	calendar        core.Calendar
	knowledge       core.KnowledgeBase
	feedback        core.FeedbackHistory
	projectKeywords []string
	softBuffer      time.Duration
	clock           func() time.Time
	logger          *zap.Logger
}

// NewBuilder creates a new context Builder; knowledge may be nil
func NewBuilder(
	relationships core.RelationshipAnalyzer,
	history core.SenderHistory,
	calendar core.Calendar,
	knowledge core.KnowledgeBase,
	projectKeywords []string,
	softBuffer time.Duration,
	logger *zap.Logger,
) *Builder {
	return &Builder{
		relationships:   relationships,
		history:         history,
		calendar:        calendar,
		knowledge:       knowledge,
		projectKeywords: projectKeywords,
		softBuffer:      softBuffer,
		clock:           time.Now,
		logger:          logger,
	}
}

// WithClock overrides the time source, for tests
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithFeedback adds the per-domain feedback history to every context
func (b *Builder) WithFeedback(feedback core.FeedbackHistory) *Builder {
	b.feedback = feedback
	return b
}

// SoftBuffer returns the configured buffer between events
func (b *Builder) SoftBuffer() time.Duration {
	return b.softBuffer
}

// Build queries relationship, history, knowledge and calendar state
// concurrently and joins them. Collaborator failures degrade to neutral
// defaults, except that a meeting request whose calendar cannot be read is
// marked as failed so the policy escalates.
func (b *Builder) Build(ctx context.Context, msg *core.Message, meeting *core.MeetingRequest) (*core.Context, error) {
	out := &core.Context{
		Tier:           core.RelationshipUnknown,
		OpenRate:       neutralOpenRate,
		CalendarInvite: msg.HasCalendarPart,
		Now:            b.clock(),
	}

	var (
		relationship *core.Relationship
		events       []core.CalendarEvent
		calendarErr  error
	)

	var g errgroup.Group
	g.Go(func() error {
		rel, err := b.relationships.Analyze(ctx, msg.From)
		if err != nil {
			b.warn(msg, "relationship", err)
			return nil
		}
		relationship = rel
		return nil
	})
	g.Go(func() error {
		rate, err := b.history.OpenRate(ctx, msg.From)
		if err != nil {
			b.warn(msg, "open_rate", err)
			return nil
		}
		out.OpenRate = rate
		return nil
	})
	g.Go(func() error {
		count, err := b.history.InteractionCount(ctx, msg.From)
		if err != nil {
			b.warn(msg, "interaction_count", err)
			return nil
		}
		out.InteractionCount = count
		return nil
	})
	if b.knowledge != nil {
		g.Go(func() error {
			answer, found, err := b.knowledge.Lookup(ctx, msg)
			if err != nil {
				b.warn(msg, "knowledge", err)
				return nil
			}
			if found {
				out.KnowledgeAnswer = answer
			}
			return nil
		})
	}
	if meeting != nil {
		g.Go(func() error {
			events, calendarErr = b.calendar.ListEvents(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if relationship != nil {
		out.Tier = relationship.Tier
		out.LastInteraction = relationship.LastInteraction
	}
	out.SenderImportance = senderImportance(out.Tier, out.InteractionCount)

	if b.feedback != nil {
		if domain := msg.SenderDomain(); domain != "" {
			out.Feedback = b.feedback.PatternsFor(domain)
		}
	}

	if kw, ok := utils.ContainsAnyKeyword(msg.Subject+"\n"+msg.Body, b.projectKeywords); ok {
		out.RelatedProject = kw
	}

	if meeting != nil {
		if calendarErr != nil {
			b.warn(msg, "calendar", calendarErr)
			out.MeetingFailure = "calendar unavailable: " + calendarErr.Error()
			return out, nil
		}
		out.Conflicts = DetectConflicts(meeting.Slot, events, b.softBuffer)
		out.Meeting = &core.MeetingContext{
			Request:   *meeting,
			Conflicts: out.Conflicts,
			Events:    events,
		}
	}

	return out, nil
}

func senderImportance(tier core.RelationshipTier, interactions int) float64 {
	importance, ok := tierImportance[tier]
	if !ok {
		importance = tierImportance[core.RelationshipUnknown]
	}
	// Frequent correspondents matter even without a configured tier
	if tier == core.RelationshipUnknown && interactions >= 10 {
		importance = 0.5
	}
	return importance
}

func (b *Builder) warn(msg *core.Message, query string, err error) {
	b.logger.Warn("Context sub-query failed, using default",
		zap.String("message_id", msg.ID),
		zap.String("query", query),
		zap.Error(err))
}
