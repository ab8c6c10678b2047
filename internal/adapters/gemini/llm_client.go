package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const providerName = "gemini"

// GeminiClient is an implementation of the TextGenerator interface using Google Gemini
type GeminiClient struct {
	client    *genai.Client
	modelName string
	maxTokens int
	topP      float32
	logger    *zap.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, apiKey, modelName string, maxTokens int, topP float32, logger *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
		maxTokens: maxTokens,
		topP:      topP,
		logger:    logger,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// model returns a model handle configured for one request
func (c *GeminiClient) model(req core.GenerateRequest) *genai.GenerativeModel {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > c.maxTokens {
		maxTokens = c.maxTokens
	}

	model := c.client.GenerativeModel(c.modelName)
	model.SetTemperature(req.Temperature)
	model.SetTopP(c.topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	return model
}

// Generate issues one GenerateContent call and joins the text parts of the first candidate
func (c *GeminiClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	resp, err := c.model(req).GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &core.ModelError{Provider: providerName, Err: fmt.Errorf("failed to generate content: %w", err)}
	}

	text, ok := candidateText(resp)
	if !ok {
		return "", &core.ModelError{Provider: providerName, Err: errors.New("empty response")}
	}

	c.logger.Debug("Gemini completion", zap.String("model", c.modelName), zap.Int("length", len(text)))
	return text, nil
}

func candidateText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	text := strings.TrimSpace(b.String())
	return text, text != ""
}
