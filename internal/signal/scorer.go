package signal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
)

// ErrMalformedScore is returned when a scorer answered with something other than an integer in [1,100]
var ErrMalformedScore = errors.New("malformed score")

// Scorer produces one independent priority opinion
type Scorer interface {
	Name() string
	Score(ctx context.Context, msg *core.Message) (int, error)
}

// Perspective is the angle a scorer rates a message from
type Perspective string

const (
	PerspectivePriority   Perspective = "priority"
	PerspectiveUrgency    Perspective = "urgency"
	PerspectiveImportance Perspective = "importance"
)

var perspectiveQuestions = map[Perspective]string{
	PerspectivePriority:   "How much does this email deserve the recipient's attention today?",
	PerspectiveUrgency:    "How time-sensitive is this email? Consider deadlines and waiting people.",
	PerspectiveImportance: "How important is this email to the recipient's work and relationships?",
}

const scorerSystemPrompt = "You rate emails. Respond with a single integer between 1 and 100 and nothing else."

// LLMScorer asks a text-generation model for a score
type LLMScorer struct {
	name          string
	generator     core.TextGenerator
	perspective   Perspective
	temperature   float32
	maxTokens     int
	maxBodySize   int
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// NewLLMScorer creates a new LLM-backed scorer
func NewLLMScorer(
	name string,
	generator core.TextGenerator,
	perspective Perspective,
	temperature float32,
	maxTokens int,
	maxBodySize int,
	textProcessor *utils.TextProcessor,
) *LLMScorer {
	return &LLMScorer{
		name:          name,
		generator:     generator,
		perspective:   perspective,
		temperature:   temperature,
		maxTokens:     maxTokens,
		maxBodySize:   maxBodySize,
		textProcessor: textProcessor,
		promptFormat: `%s
Rate it from 1 (ignore) to 100 (drop everything).

Email:
From: %s
Subject: %s
Thread length: %d
Attachments: %t
Body:
%s

Respond only with the integer.`,
	}
}

// Name implements Scorer
func (s *LLMScorer) Name() string {
	return s.name
}

// Score implements Scorer. A reply that is not a valid score yields
// NeutralScore together with ErrMalformedScore.
func (s *LLMScorer) Score(ctx context.Context, msg *core.Message) (int, error) {
	question, ok := perspectiveQuestions[s.perspective]
	if !ok {
		question = perspectiveQuestions[PerspectivePriority]
	}

	body := s.textProcessor.ProcessText(msg.Body, s.maxBodySize)
	prompt := fmt.Sprintf(s.promptFormat, question, msg.From, msg.Subject, msg.ThreadLength, msg.HasAttachments, body)

	text, err := s.generator.Generate(ctx, core.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: scorerSystemPrompt,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	})
	if err != nil {
		return 0, fmt.Errorf("scorer %s failed: %w", s.name, err)
	}

	score, ok := ParseScore(text)
	if !ok {
		return NeutralScore, fmt.Errorf("%w from %s: %q", ErrMalformedScore, s.name, text)
	}
	return score, nil
}

// ParseScore accepts a bare integer in [1,100], optionally quoted or followed by a period
func ParseScore(text string) (int, bool) {
	t := strings.TrimSpace(text)
	t = strings.Trim(t, "\"'`")
	t = strings.TrimSuffix(t, ".")
	t = strings.TrimSpace(t)

	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, false
	}
	if n < 1 || n > 100 {
		return 0, false
	}
	return n, true
}
