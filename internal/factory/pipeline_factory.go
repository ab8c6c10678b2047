package factory

import (
	"fmt"

	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/gate"
	"github.com/mikey/mailpilot/internal/intent"
	"github.com/mikey/mailpilot/internal/knowledge"
	"github.com/mikey/mailpilot/internal/learning"
	"github.com/mikey/mailpilot/internal/mailcontext"
	"github.com/mikey/mailpilot/internal/meeting"
	"github.com/mikey/mailpilot/internal/metrics"
	"github.com/mikey/mailpilot/internal/policy"
	"github.com/mikey/mailpilot/internal/relationship"
	"github.com/mikey/mailpilot/internal/signal"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
)

// PipelineFactory creates the stages of the decision pipeline
type PipelineFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	metrics       *metrics.Metrics
}

// NewPipelineFactory creates a new pipeline factory
func NewPipelineFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor, m *metrics.Metrics) *PipelineFactory {
	return &PipelineFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
		metrics:       m,
	}
}

// CreateAggregator creates the signal aggregator over scorers
func (f *PipelineFactory) CreateAggregator(scorers []signal.Scorer) *signal.Aggregator {
	return signal.NewAggregator(scorers, f.cfg.GetSignals().UrgencyKeywords, f.logger, f.metrics)
}

// CreateClassifier creates the intent classifier
func (f *PipelineFactory) CreateClassifier(generator core.TextGenerator) *intent.Classifier {
	ic := f.cfg.GetIntent()
	return intent.NewClassifier(generator, ic.Temperature, ic.MaxTokens, ic.MaxBodySize, f.textProcessor, f.logger)
}

// CreateAssessor creates the meeting assessor
func (f *PipelineFactory) CreateAssessor(generator core.TextGenerator) (*meeting.Assessor, error) {
	mc, err := f.cfg.GetMeetings()
	if err != nil {
		return nil, fmt.Errorf("invalid meetings configuration: %w", err)
	}
	return meeting.NewAssessor(generator, mc.Temperature, mc.MaxTokens, mc.MaxBodySize, f.textProcessor, f.logger), nil
}

// CreateTracker creates the relationship tracker
func (f *PipelineFactory) CreateTracker(profiles core.ProfileRepository) (*relationship.Tracker, error) {
	rc, err := f.cfg.GetRelationships()
	if err != nil {
		return nil, fmt.Errorf("invalid relationships configuration: %w", err)
	}
	tiers := relationship.NewTierMatcher(rc.Boss, rc.Client, rc.Colleague, f.logger)
	return relationship.NewTracker(profiles, tiers, rc.Timeout, f.logger), nil
}

// CreateKnowledgeBase creates the knowledge base from knowledge.entries
func (f *PipelineFactory) CreateKnowledgeBase() (*knowledge.Base, error) {
	entries, err := f.cfg.GetKnowledge()
	if err != nil {
		return nil, err
	}
	out := make([]knowledge.Entry, len(entries))
	for i, e := range entries {
		out[i] = knowledge.Entry{Keywords: e.Keywords, Answer: e.Answer}
	}
	return knowledge.NewBase(out, f.logger), nil
}

// CreateContextBuilder creates the context builder; feedback supplies the
// per-domain approval history shown to the policy
func (f *PipelineFactory) CreateContextBuilder(tracker *relationship.Tracker, cal core.Calendar, kb *knowledge.Base, feedback core.FeedbackHistory) (*mailcontext.Builder, error) {
	mc, err := f.cfg.GetMeetings()
	if err != nil {
		return nil, fmt.Errorf("invalid meetings configuration: %w", err)
	}
	return mailcontext.NewBuilder(tracker, tracker, cal, kb, f.cfg.GetStringSlice("projects.keywords"), mc.SoftBuffer, f.logger).
		WithFeedback(feedback), nil
}

// CreatePolicyEngine creates the policy engine with the meeting preferences
func (f *PipelineFactory) CreatePolicyEngine() (*policy.Engine, error) {
	mc, err := f.cfg.GetMeetings()
	if err != nil {
		return nil, fmt.Errorf("invalid meetings configuration: %w", err)
	}

	var prefs []policy.PreferenceRule
	if err := f.cfg.UnmarshalKey("meetings.preferences", &prefs); err != nil {
		return nil, err
	}

	return policy.NewEngine(policy.MeetingConfig{
		Disabled:            !mc.Enabled,
		AutoAcceptThreshold: mc.AutoAcceptThreshold,
		DeclineBelow:        mc.DeclineBelow,
		BusinessStartHour:   mc.BusinessStartHour,
		BusinessEndHour:     mc.BusinessEndHour,
		SearchDays:          mc.SearchDays,
		MaxAlternatives:     mc.MaxAlternatives,
		SlotStep:            mc.SlotStep,
		SkipWeekends:        mc.SkipWeekends,
		Preferences:         prefs,
	}), nil
}

// CreateLearningLoop creates the learning loop and restores its state
func (f *PipelineFactory) CreateLearningLoop(store core.Store) (*learning.Loop, error) {
	lc := f.cfg.GetLearning()
	sc, err := f.cfg.GetStore()
	if err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	loop := learning.NewLoop(learning.Config{
		InitialThreshold: lc.InitialThreshold,
		MinThreshold:     lc.MinThreshold,
		MaxThreshold:     lc.MaxThreshold,
		Step:             lc.Step,
		RaiseAboveRate:   lc.RaiseAboveRate,
		RaiseMinCount:    lc.RaiseMinCount,
		LowerBelowRate:   lc.LowerBelowRate,
		Retention:        sc.Retention,
	}, store, f.logger, f.metrics)
	return loop, nil
}

// CreateGate creates the execution gate and its dispatcher
func (f *PipelineFactory) CreateGate(loop *learning.Loop, mailbox core.MailboxActions, cal core.Calendar, store core.Store) *gate.Gate {
	dispatcher := gate.NewDispatcher(mailbox, cal, store, f.logger, f.metrics)
	return gate.NewGate(loop, dispatcher, store, f.cfg.GetBool("autonomy.enabled"), f.logger, f.metrics)
}

// ServiceParts are the stages CreateService joins
type ServiceParts struct {
	Aggregator *signal.Aggregator
	Classifier *intent.Classifier
	Assessor   *meeting.Assessor
	Builder    *mailcontext.Builder
	Engine     *policy.Engine
	Gate       *gate.Gate
	Loop       *learning.Loop
	Tracker    *relationship.Tracker
}

// CreateService joins the pipeline stages into the assistant service
func (f *PipelineFactory) CreateService(p ServiceParts) (*core.AssistantService, error) {
	mc, err := f.cfg.GetMeetings()
	if err != nil {
		return nil, fmt.Errorf("invalid meetings configuration: %w", err)
	}
	urgency := f.cfg.GetSignals().UrgencyKeywords

	return core.NewAssistantService(core.ServiceDeps{
		Aggregator: p.Aggregator,
		Classifier: p.Classifier,
		Assessor:   p.Assessor,
		Builder:    p.Builder,
		Policy:     p.Engine,
		Gate:       p.Gate,
		Learning:   p.Loop,
		Tracker:    p.Tracker,
		Scheduling: func(msg *core.Message, in core.Intent) bool {
			return meeting.IsSchedulingRequest(msg, in, mc.SchedulingKeywords)
		},
		Fallback: func(msg *core.Message) *core.PriorityScore {
			return signal.RuleBasedScore(msg, urgency)
		},
		Meetings: mc.Enabled,
	}, f.logger, f.metrics), nil
}
