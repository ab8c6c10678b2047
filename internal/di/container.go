package di

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mailpilot/internal/adapters/mailbox"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/factory"
	"github.com/mikey/mailpilot/internal/gate"
	"github.com/mikey/mailpilot/internal/intent"
	"github.com/mikey/mailpilot/internal/knowledge"
	"github.com/mikey/mailpilot/internal/learning"
	"github.com/mikey/mailpilot/internal/logging"
	"github.com/mikey/mailpilot/internal/mailcontext"
	"github.com/mikey/mailpilot/internal/meeting"
	"github.com/mikey/mailpilot/internal/metrics"
	"github.com/mikey/mailpilot/internal/policy"
	"github.com/mikey/mailpilot/internal/ports"
	"github.com/mikey/mailpilot/internal/relationship"
	"github.com/mikey/mailpilot/internal/signal"
	"github.com/mikey/mailpilot/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
// for the daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	// Register downstream relay
	if err := container.Provide(func(f *factory.CollaboratorFactory) (mailbox.Sender, error) {
		return f.CreateRelay()
	}); err != nil {
		return nil, err
	}

	// Register mail intake
	if err := container.Provide(factory.NewIntakeFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.IntakeFactory, relay mailbox.Sender) (ports.MailIntake, error) {
		return f.CreateIntake(relay, os.Stdout)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// providePipeline registers everything from the store up to the assistant
// service. The caller provides *config.Config and *zap.Logger.
func providePipeline(container *dig.Container) error {
	providers := []interface{}{
		// Metrics
		func() *prometheus.Registry { return prometheus.NewRegistry() },
		func(reg *prometheus.Registry) *metrics.Metrics { return metrics.NewMetrics(reg) },

		// Factories
		factory.NewLLMFactory,
		factory.NewStoreFactory,
		factory.NewCollaboratorFactory,
		factory.NewPipelineFactory,

		// Prompt text shared by every model-facing stage
		func(logger *zap.Logger) *utils.TextProcessor {
			return utils.NewTextProcessor(logger.Named("text"))
		},

		// Generic text generator and scorer ensemble
		func(f *factory.LLMFactory) (core.TextGenerator, error) {
			return f.CreateGenerator()
		},
		func(f *factory.LLMFactory, generator core.TextGenerator) []signal.Scorer {
			return f.CreateScorers(generator)
		},

		// Store and collaborators
		func(f *factory.StoreFactory) (factory.StoppableStore, error) {
			return f.CreateStore()
		},
		func(s factory.StoppableStore) core.Store { return s },
		func(f *factory.CollaboratorFactory, store core.Store) (core.MailboxActions, error) {
			return f.CreateMailbox(store)
		},
		func(f *factory.CollaboratorFactory) (core.Calendar, error) {
			return f.CreateCalendar()
		},

		// Pipeline stages
		func(f *factory.PipelineFactory, scorers []signal.Scorer) *signal.Aggregator {
			return f.CreateAggregator(scorers)
		},
		func(f *factory.PipelineFactory, generator core.TextGenerator) *intent.Classifier {
			return f.CreateClassifier(generator)
		},
		func(f *factory.PipelineFactory, generator core.TextGenerator) (*meeting.Assessor, error) {
			return f.CreateAssessor(generator)
		},
		func(f *factory.PipelineFactory, store core.Store) (*relationship.Tracker, error) {
			return f.CreateTracker(store)
		},
		func(f *factory.PipelineFactory) (*knowledge.Base, error) {
			return f.CreateKnowledgeBase()
		},
		func(f *factory.PipelineFactory, tracker *relationship.Tracker, cal core.Calendar, kb *knowledge.Base, loop *learning.Loop) (*mailcontext.Builder, error) {
			return f.CreateContextBuilder(tracker, cal, kb, loop)
		},
		func(f *factory.PipelineFactory) (*policy.Engine, error) {
			return f.CreatePolicyEngine()
		},
		func(f *factory.PipelineFactory, store core.Store) (*learning.Loop, error) {
			return f.CreateLearningLoop(store)
		},
		func(f *factory.PipelineFactory, loop *learning.Loop, mb core.MailboxActions, cal core.Calendar, store core.Store) *gate.Gate {
			return f.CreateGate(loop, mb, cal, store)
		},

		// Assistant service
		func(f *factory.PipelineFactory, p serviceParams) (*core.AssistantService, error) {
			return f.CreateService(factory.ServiceParts{
				Aggregator: p.Aggregator,
				Classifier: p.Classifier,
				Assessor:   p.Assessor,
				Builder:    p.Builder,
				Engine:     p.Engine,
				Gate:       p.Gate,
				Loop:       p.Loop,
				Tracker:    p.Tracker,
			})
		},
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

type serviceParams struct {
	dig.In

	Aggregator *signal.Aggregator
	Classifier *intent.Classifier
	Assessor   *meeting.Assessor
	Builder    *mailcontext.Builder
	Engine     *policy.Engine
	Gate       *gate.Gate
	Loop       *learning.Loop
	Tracker    *relationship.Tracker
}

// App is what the entry points run
type App struct {
	dig.In

	Config   *config.Config
	Logger   *zap.Logger
	Service  *core.AssistantService
	Gate     *gate.Gate
	Loop     *learning.Loop
	Store    factory.StoppableStore
	Registry *prometheus.Registry
}

// Restore loads the persisted threshold, feedback counters and autonomy flag
func (a App) Restore(ctx context.Context) error {
	if err := a.Loop.Load(ctx); err != nil {
		return fmt.Errorf("failed to restore learning state: %w", err)
	}
	if err := a.Gate.LoadAutonomy(ctx); err != nil {
		return fmt.Errorf("failed to restore autonomy flag: %w", err)
	}
	return nil
}
