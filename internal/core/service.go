package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/mailpilot/internal/metrics"
	"go.uber.org/zap"
)

// PriorityAggregator scores a message with the signal ensemble
type PriorityAggregator interface {
	Aggregate(ctx context.Context, msg *Message) (*PriorityScore, error)
}

// IntentClassifier maps a message to one intent; it never fails
type IntentClassifier interface {
	Classify(ctx context.Context, msg *Message) Intent
}

// MeetingAssessor extracts a meeting request from a scheduling message
type MeetingAssessor interface {
	Assess(ctx context.Context, msg *Message, now time.Time) (*MeetingRequest, error)
}

// ContextBuilder assembles the relationship and calendar view of a message
type ContextBuilder interface {
	Build(ctx context.Context, msg *Message, meeting *MeetingRequest) (*Context, error)
}

// PolicyEngine turns intent, priority and context into a decision
type PolicyEngine interface {
	Decide(intent Intent, priority *PriorityScore, c *Context) *Decision
}

// ExecutionGate decides whether a decision runs autonomously
type ExecutionGate interface {
	Apply(ctx context.Context, msg *Message, d *Decision) error
	ExecuteApproved(ctx context.Context, msg *Message, d *Decision) error
}

// FeedbackRecorder learns from human approval of past decisions
type FeedbackRecorder interface {
	Record(ctx context.Context, msg *Message, action ActionKind, approved bool) error
}

// EngagementTracker keeps per-sender history up to date
type EngagementTracker interface {
	RecordDelivery(ctx context.Context, sender string) error
	RecordEngagement(ctx context.Context, sender string, responseTime time.Duration) error
}

// SchedulingDetector reports whether a message asks for calendar time
type SchedulingDetector func(msg *Message, intent Intent) bool

// FallbackPriority scores a message without models
type FallbackPriority func(msg *Message) *PriorityScore

// AssistantService runs the decision pipeline for one message at a time.
// Separate messages may be evaluated concurrently.
type AssistantService struct {
	aggregator PriorityAggregator
	classifier IntentClassifier
	assessor   MeetingAssessor
	builder    ContextBuilder
	policy     PolicyEngine
	gate       ExecutionGate
	learning   FeedbackRecorder
	tracker    EngagementTracker
	scheduling SchedulingDetector
	fallback   FallbackPriority
	meetings   bool
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// ServiceDeps groups the collaborators of the AssistantService. Scheduling is
// only consulted when Meetings is true; wants_meeting messages are assessed
// whenever an Assessor is present so the policy has a slot to check.
type ServiceDeps struct {
	Aggregator PriorityAggregator
	Classifier IntentClassifier
	Assessor   MeetingAssessor
	Builder    ContextBuilder
	Policy     PolicyEngine
	Gate       ExecutionGate
	Learning   FeedbackRecorder
	Tracker    EngagementTracker
	Scheduling SchedulingDetector
	Fallback   FallbackPriority
	Meetings   bool
}

// NewAssistantService creates a new assistant service
func NewAssistantService(deps ServiceDeps, logger *zap.Logger, m *metrics.Metrics) *AssistantService {
	return &AssistantService{
		aggregator: deps.Aggregator,
		classifier: deps.Classifier,
		assessor:   deps.Assessor,
		builder:    deps.Builder,
		policy:     deps.Policy,
		gate:       deps.Gate,
		learning:   deps.Learning,
		tracker:    deps.Tracker,
		scheduling: deps.Scheduling,
		fallback:   deps.Fallback,
		meetings:   deps.Meetings && deps.Scheduling != nil,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests
func (s *AssistantService) WithClock(now func() time.Time) *AssistantService {
	s.now = now
	return s
}

// Evaluate produces a gated decision for msg. A cancelled context yields no
// decision and no side effect. When the dispatch of an autonomous action
// fails the decision is still returned, marked failed, together with the error.
func (s *AssistantService) Evaluate(ctx context.Context, msg *Message) (d *Decision, err error) {
	start := s.now()
	defer func() {
		s.metrics.ObserveEvaluation(s.now().Sub(start))
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, err = s.decide(ctx, msg)
	if err != nil {
		return nil, err
	}
	d.ID = uuid.NewString()
	d.MessageID = msg.ID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}

	if s.tracker != nil {
		if terr := s.tracker.RecordDelivery(ctx, msg.From); terr != nil {
			s.logger.Warn("Failed to record delivery",
				zap.String("message_id", msg.ID),
				zap.String("sender", msg.From),
				zap.Error(terr))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.gate.Apply(ctx, msg, d); err != nil {
		s.logger.Error("Failed to dispatch decision",
			zap.String("message_id", msg.ID),
			zap.String("decision_id", d.ID),
			zap.Error(err))
		return d, err
	}

	s.logger.Info("Message evaluated",
		zap.String("message_id", msg.ID),
		zap.String("sender", msg.From),
		zap.String("intent", string(d.Intent)),
		zap.String("action", string(KindOf(d.Action))),
		zap.Float64("confidence", d.Confidence),
		zap.String("outcome", string(d.Outcome)))
	return d, nil
}

// decide runs everything up to the policy. A panic in any stage becomes an
// escalation rather than a crash.
func (s *AssistantService) decide(ctx context.Context, msg *Message) (d *Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Decision pipeline panicked",
				zap.String("message_id", msg.ID),
				zap.Any("panic", r))
			d = &Decision{
				Intent:     IntentUnknown,
				Action:     Escalate{Urgency: TierHigh, Reason: "internal error while evaluating"},
				Confidence: 0,
				Reasoning:  []string{fmt.Sprintf("evaluation panicked: %v", r)},
				Outcome:    OutcomePending,
				CreatedAt:  s.now(),
			}
			err = nil
		}
	}()

	var (
		wg       sync.WaitGroup
		priority *PriorityScore
		aggErr   error
		intent   Intent
		panics   [2]interface{}
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() { panics[0] = recover() }()
		priority, aggErr = s.aggregator.Aggregate(ctx, msg)
	}()
	go func() {
		defer wg.Done()
		defer func() { panics[1] = recover() }()
		intent = s.classifier.Classify(ctx, msg)
	}()
	wg.Wait()

	// re-raised here so the deferred recover above sees it
	for _, p := range panics {
		if p != nil {
			panic(p)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.metrics.ObserveIntent(string(intent))

	if aggErr != nil {
		s.logger.Warn("Priority aggregation failed, using rule-based score",
			zap.String("message_id", msg.ID),
			zap.Error(aggErr))
		priority = s.fallback(msg)
	}

	var (
		request        *MeetingRequest
		meetingFailure string
	)
	if s.wantsAssessment(msg, intent) {
		request, err = s.assessor.Assess(ctx, msg, s.now())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			meetingFailure = err.Error()
			request = nil
		}
	}

	c, err := s.builder.Build(ctx, msg, request)
	if err != nil {
		return nil, fmt.Errorf("failed to build context: %w", err)
	}
	if meetingFailure != "" {
		c.MeetingFailure = meetingFailure
	}

	return s.policy.Decide(intent, priority, c), nil
}

func (s *AssistantService) wantsAssessment(msg *Message, intent Intent) bool {
	if s.assessor == nil {
		return false
	}
	if intent == IntentMeeting {
		return true
	}
	return s.meetings && s.scheduling(msg, intent)
}

// RecordFeedback teaches the learning loop whether the human agreed with d
func (s *AssistantService) RecordFeedback(ctx context.Context, msg *Message, d *Decision, approved bool) error {
	if d == nil || d.Action == nil {
		return fmt.Errorf("feedback requires a decision with an action")
	}

	if err := s.learning.Record(ctx, msg, KindOf(d.Action), approved); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	if s.tracker != nil && !msg.ReceivedAt.IsZero() {
		responseTime := s.now().Sub(msg.ReceivedAt)
		if responseTime < 0 {
			responseTime = 0
		}
		if err := s.tracker.RecordEngagement(ctx, msg.From, responseTime); err != nil {
			s.logger.Warn("Failed to record engagement",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Feedback recorded",
		zap.String("message_id", msg.ID),
		zap.String("decision_id", d.ID),
		zap.String("action", string(KindOf(d.Action))),
		zap.Bool("approved", approved))
	return nil
}

// ExecuteApproved dispatches a suggestion the human approved
func (s *AssistantService) ExecuteApproved(ctx context.Context, msg *Message, d *Decision) error {
	if d == nil || d.Action == nil {
		return fmt.Errorf("nothing to execute")
	}
	return s.gate.ExecuteApproved(ctx, msg, d)
}
