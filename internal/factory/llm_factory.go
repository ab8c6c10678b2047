package factory

import (
	"fmt"

	"github.com/mikey/mailpilot/internal/adapters/bedrock"
	"github.com/mikey/mailpilot/internal/adapters/gemini"
	"github.com/mikey/mailpilot/internal/adapters/openai"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/signal"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates text generators and the scorers built on them
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateGenerator creates the generic generator from llm.provider
func (f *LLMFactory) CreateGenerator() (core.TextGenerator, error) {
	return f.createProvider(f.cfg.GetLLM().Provider)
}

func (f *LLMFactory) createProvider(provider string) (core.TextGenerator, error) {
	switch provider {
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateGenerator()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateGenerator()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateGenerator()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// CreateScorers creates the three perspective scorers on the generic model
// plus one scorer per configured provider. A provider that cannot be set up
// is answered by the generic model.
func (f *LLMFactory) CreateScorers(generic core.TextGenerator) []signal.Scorer {
	sc := f.cfg.GetSignals()

	scorers := []signal.Scorer{
		signal.NewLLMScorer("primary", generic, signal.PerspectivePriority,
			sc.Temperature, sc.MaxTokens, sc.MaxBodySize, f.textProcessor),
		signal.NewLLMScorer("secondary", generic, signal.PerspectiveUrgency,
			sc.Temperature, sc.MaxTokens, sc.MaxBodySize, f.textProcessor),
		signal.NewLLMScorer("tertiary", generic, signal.PerspectiveImportance,
			sc.Temperature, sc.MaxTokens, sc.MaxBodySize, f.textProcessor),
	}

	for _, name := range sc.ProviderScorers {
		preferred, err := f.createProvider(name)
		if err != nil {
			f.logger.Warn("Provider scorer not configured, generic model will answer",
				zap.String("scorer", name),
				zap.Error(err))
			preferred = nil
		}
		gen := signal.NewFallbackGenerator(name, preferred, generic, f.logger)
		scorers = append(scorers, signal.NewLLMScorer(name, gen, signal.PerspectivePriority,
			sc.Temperature, sc.MaxTokens, sc.MaxBodySize, f.textProcessor))
	}

	return scorers
}
