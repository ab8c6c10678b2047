package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
)

const systemPrompt = "You classify what the sender of an email wants. Respond with exactly one label and nothing else."

// Classifier derives a coarse intent from a single model query
type Classifier struct {
	generator     core.TextGenerator
	temperature   float32
	maxTokens     int
	maxBodySize   int
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	promptFormat  string
}

// NewClassifier creates a new intent classifier
func NewClassifier(
	generator core.TextGenerator,
	temperature float32,
	maxTokens int,
	maxBodySize int,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) *Classifier {
	labels := make([]string, len(core.KnownIntents))
	for i, in := range core.KnownIntents {
		labels[i] = "- " + string(in)
	}

	return &Classifier{
		generator:     generator,
		temperature:   temperature,
		maxTokens:     maxTokens,
		maxBodySize:   maxBodySize,
		textProcessor: textProcessor,
		logger:        logger,
		promptFormat: `What does the sender of this email want from the recipient?
Pick one label:
` + strings.Join(labels, "\n") + `

Email:
From: %s
Subject: %s
Body:
%s

Respond only with the label.`,
	}
}

// Classify returns one of core.KnownIntents, or core.IntentUnknown when the
// model fails or answers outside the closed set. It never returns an error
// and never retries.
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) core.Intent {
	body := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	text, err := c.generator.Generate(ctx, core.GenerateRequest{
		Prompt:       fmt.Sprintf(c.promptFormat, msg.From, msg.Subject, body),
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		c.logger.Warn("Intent classification failed",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return core.IntentUnknown
	}

	intent := Parse(text)
	if intent == core.IntentUnknown {
		c.logger.Debug("Unrecognized intent label",
			zap.String("message_id", msg.ID),
			zap.String("response", text))
	}
	return intent
}

// Parse maps a model response to an intent. Surrounding whitespace, quotes and
// trailing punctuation are tolerated; anything else is unknown.
func Parse(text string) core.Intent {
	label := strings.ToLower(strings.TrimSpace(text))
	label = strings.Trim(label, "\"'`.!")
	label = strings.TrimSpace(label)

	for _, known := range core.KnownIntents {
		if label == string(known) {
			return known
		}
	}
	return core.IntentUnknown
}
