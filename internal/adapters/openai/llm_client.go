package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const providerName = "openai"

// chatCompleter is the part of *openai.Client the generator uses
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient is an implementation of the TextGenerator interface using OpenAI
type OpenAIClient struct {
	client    chatCompleter
	modelName string
	maxTokens int
	topP      float32
	logger    *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(client chatCompleter, modelName string, maxTokens int, topP float32, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:    client,
		modelName: modelName,
		maxTokens: maxTokens,
		topP:      topP,
		logger:    logger,
	}
}

// Generate sends a single chat completion and returns the first choice
func (c *OpenAIClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > c.maxTokens {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        c.topP,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &core.ModelError{Provider: providerName, Err: fmt.Errorf("failed to create chat completion: %w", err)}
	}

	if len(resp.Choices) == 0 {
		return "", &core.ModelError{Provider: providerName, Err: errors.New("empty response")}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("OpenAI completion",
		zap.String("model", c.modelName),
		zap.String("id", resp.ID),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return text, nil
}
