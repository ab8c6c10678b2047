package openai

import (
	"fmt"

	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Factory creates new instances of OpenAIClient
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for OpenAIClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGenerator creates a new OpenAIClient
func (f *Factory) CreateGenerator() (core.TextGenerator, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(openaiCfg.APIKey)
	if openaiCfg.BaseURL != "" {
		clientCfg.BaseURL = openaiCfg.BaseURL
	}

	return NewOpenAIClient(
		openai.NewClientWithConfig(clientCfg),
		openaiCfg.ModelName,
		openaiCfg.MaxTokens,
		openaiCfg.TopP,
		f.logger,
	), nil
}
