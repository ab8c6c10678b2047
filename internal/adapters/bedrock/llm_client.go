package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

const providerName = "bedrock"

// modelInvoker is the part of *bedrockruntime.Client the generator uses
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient is an implementation of the TextGenerator interface using Amazon Bedrock
type BedrockClient struct {
	client    modelInvoker
	modelID   string
	maxTokens int
	topP      float32
	logger    *zap.Logger
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(client modelInvoker, modelID string, maxTokens int, topP float32, logger *zap.Logger) *BedrockClient {
	return &BedrockClient{
		client:    client,
		modelID:   modelID,
		maxTokens: maxTokens,
		topP:      topP,
		logger:    logger,
	}
}

// Generate invokes the model once and extracts the completion text
func (c *BedrockClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	payload, err := c.payload(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &core.ModelError{Provider: providerName, Err: fmt.Errorf("failed to invoke model: %w", err)}
	}

	text, err := c.completion(resp.Body)
	if err != nil {
		return "", &core.ModelError{Provider: providerName, Err: err}
	}

	c.logger.Debug("Bedrock completion", zap.String("model", c.modelID), zap.Int("length", len(text)))
	return text, nil
}

func (c *BedrockClient) payload(req core.GenerateRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > c.maxTokens {
		maxTokens = c.maxTokens
	}

	switch {
	case c.isAnthropicModel():
		body := map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       req.Temperature,
			"top_p":             c.topP,
			"messages": []map[string]string{
				{"role": "user", "content": req.Prompt},
			},
		}
		if req.SystemPrompt != "" {
			body["system"] = req.SystemPrompt
		}
		return json.Marshal(body)
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": joinPrompt(req),
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": maxTokens,
				"temperature":   req.Temperature,
				"topP":          c.topP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      joinPrompt(req),
			"max_tokens":  maxTokens,
			"temperature": req.Temperature,
			"top_p":       c.topP,
		})
	}
}

func joinPrompt(req core.GenerateRequest) string {
	if req.SystemPrompt == "" {
		return req.Prompt
	}
	return req.SystemPrompt + "\n\n" + req.Prompt
}

func (c *BedrockClient) completion(body []byte) (string, error) {
	var text string
	switch {
	case c.isAnthropicModel():
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var b strings.Builder
		for _, block := range claudeResp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		text = b.String()
	case c.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) > 0 {
			text = titanResp.Results[0].OutputText
		}
	default:
		var genericResp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Response   string `json:"response"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		for _, candidate := range []string{genericResp.Output, genericResp.Text, genericResp.Response, genericResp.Generation} {
			if candidate != "" {
				text = candidate
				break
			}
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *BedrockClient) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}
