package gemini

import (
	"context"
	"fmt"

	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// Factory creates new instances of GeminiClient
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGenerator creates a new GeminiClient
func (f *Factory) CreateGenerator() (core.TextGenerator, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	return NewGeminiClient(
		context.Background(),
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.TopP,
		f.logger,
	)
}
