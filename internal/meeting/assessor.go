package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
)

// DefaultSchedulingKeywords mark a message as a scheduling request
var DefaultSchedulingKeywords = []string{"meeting", "invite", "invitation", "calendar", "schedule a call", "reschedule", "availability"}

// ParseError describes why a model's meeting assessment was rejected
type ParseError struct {
	Field  string
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid meeting assessment: %s", e.Reason)
	}
	return fmt.Sprintf("invalid meeting assessment: %s: %s", e.Field, e.Reason)
}

// IsSchedulingRequest reports whether msg may ask for time on the calendar.
// Subject keywords only match whole words.
func IsSchedulingRequest(msg *core.Message, intent core.Intent, keywords []string) bool {
	if intent == core.IntentMeeting || msg.HasCalendarPart {
		return true
	}
	if len(keywords) == 0 {
		keywords = DefaultSchedulingKeywords
	}
	_, ok := utils.ContainsAnyWord(msg.Subject, keywords)
	return ok
}

type assessmentResponse struct {
	IsMeeting       *bool  `json:"is_meeting"`
	ValueScore      *int   `json:"value_score"`
	Necessity       string `json:"necessity"`
	ProposedStart   string `json:"proposed_start"`
	DurationMinutes *int   `json:"duration_minutes"`
	Title           string `json:"title"`
}

const assessorSystemPrompt = "You assess meeting requests. Respond only with a JSON object matching the requested schema."

// Assessor asks a model for the value and proposed time of a meeting request
type Assessor struct {
	generator     core.TextGenerator
	temperature   float32
	maxTokens     int
	maxBodySize   int
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	promptFormat  string
}

// NewAssessor creates a new meeting Assessor
func NewAssessor(
	generator core.TextGenerator,
	temperature float32,
	maxTokens int,
	maxBodySize int,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) *Assessor {
	return &Assessor{
		generator:     generator,
		temperature:   temperature,
		maxTokens:     maxTokens,
		maxBodySize:   maxBodySize,
		textProcessor: textProcessor,
		logger:        logger,
		promptFormat: `Decide whether the email below asks the recipient to meet. Today is %s.
Respond with a JSON object containing exactly:
- is_meeting: true if the sender wants to meet or talk at a specific time, false for anything else
  (newsletters, notices, announcements, sales). When false, omit every other field.
- value_score: integer 0-100 (how valuable attending is for the recipient)
- necessity: one of "required", "important", "optional", "fyi"
- proposed_start: RFC3339 timestamp of the proposed start
- duration_minutes: integer between 5 and 480
- title: short event title

Email:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`,
	}
}

// Assess returns the parsed meeting request or an error; *ParseError when the
// model answered with anything that does not satisfy the schema. A nil request
// with a nil error means the model judged the message not to be a meeting.
func (a *Assessor) Assess(ctx context.Context, msg *core.Message, now time.Time) (*core.MeetingRequest, error) {
	body := a.textProcessor.ProcessText(msg.Body, a.maxBodySize)
	text, err := a.generator.Generate(ctx, core.GenerateRequest{
		Prompt:       fmt.Sprintf(a.promptFormat, now.Format(time.RFC3339), msg.From, msg.Subject, body),
		SystemPrompt: assessorSystemPrompt,
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assess meeting: %w", err)
	}

	req, err := ParseAssessment(text, msg.Subject)
	if err != nil {
		a.logger.Warn("Rejected meeting assessment",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return nil, err
	}
	if req == nil {
		a.logger.Debug("Message is not a meeting request",
			zap.String("message_id", msg.ID),
			zap.String("subject", msg.Subject))
	}
	return req, nil
}

// ParseAssessment strictly decodes a model response. A single surrounding
// markdown code fence is the only non-JSON text tolerated. It returns nil and
// no error when the response says the message is not a meeting.
func ParseAssessment(text string, fallbackTitle string) (*core.MeetingRequest, error) {
	raw := stripFence(strings.TrimSpace(text))
	if raw == "" {
		return nil, &ParseError{Reason: "empty response", Raw: text}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var resp assessmentResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, &ParseError{Reason: err.Error(), Raw: text}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Reason: "trailing data after JSON object", Raw: text}
	}

	if resp.IsMeeting == nil {
		return nil, &ParseError{Field: "is_meeting", Reason: "missing", Raw: text}
	}
	if !*resp.IsMeeting {
		return nil, nil
	}

	if resp.ValueScore == nil {
		return nil, &ParseError{Field: "value_score", Reason: "missing", Raw: text}
	}
	if *resp.ValueScore < 0 || *resp.ValueScore > 100 {
		return nil, &ParseError{Field: "value_score", Reason: "out of range", Raw: text}
	}

	necessity := core.Necessity(strings.ToLower(resp.Necessity))
	switch necessity {
	case core.NecessityRequired, core.NecessityImportant, core.NecessityOptional, core.NecessityFYI:
	default:
		return nil, &ParseError{Field: "necessity", Reason: fmt.Sprintf("unknown value %q", resp.Necessity), Raw: text}
	}

	start, err := time.Parse(time.RFC3339, resp.ProposedStart)
	if err != nil {
		return nil, &ParseError{Field: "proposed_start", Reason: "not RFC3339", Raw: text}
	}

	if resp.DurationMinutes == nil {
		return nil, &ParseError{Field: "duration_minutes", Reason: "missing", Raw: text}
	}
	if *resp.DurationMinutes < 5 || *resp.DurationMinutes > 480 {
		return nil, &ParseError{Field: "duration_minutes", Reason: "out of range", Raw: text}
	}

	title := strings.TrimSpace(resp.Title)
	if title == "" {
		title = fallbackTitle
	}

	return &core.MeetingRequest{
		Title: title,
		Slot: core.TimeSlot{
			Start: start,
			End:   start.Add(time.Duration(*resp.DurationMinutes) * time.Minute),
		},
		ValueScore: *resp.ValueScore,
		Necessity:  necessity,
	}, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	inner = strings.TrimPrefix(inner, "json")
	return strings.TrimSpace(inner)
}
