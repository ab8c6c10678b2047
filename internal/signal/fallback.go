package signal

import (
	"context"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
)

var newsletterKeywords = []string{"newsletter", "unsubscribe", "digest", "promotion", "sale", "% off", "webinar"}

// RuleBasedScore is the heuristic priority used when the whole ensemble failed
func RuleBasedScore(msg *core.Message, urgencyKeywords []string) *core.PriorityScore {
	score := NeutralScore
	reasoning := []string{"rule-based fallback score"}

	if kw, ok := utils.ContainsAnyKeyword(msg.Subject, urgencyKeywords); ok {
		score += 25
		reasoning = append(reasoning, "urgency keyword in subject: "+kw)
	}
	if msg.ThreadLength > 3 {
		score += 10
		reasoning = append(reasoning, "active thread")
	}
	if msg.HasAttachments {
		score += 5
		reasoning = append(reasoning, "has attachments")
	}
	if _, ok := utils.ContainsAnyKeyword(msg.Subject+" "+msg.Body, newsletterKeywords); ok || msg.ListUnsubscribe != "" {
		score -= 30
		reasoning = append(reasoning, "bulk mail markers")
	}
	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}

	mean := float64(score)
	return &core.PriorityScore{
		Score:      mean,
		Confidence: 0.5,
		Urgency:    UrgencyTier(mean, msg.Subject, urgencyKeywords),
		Importance: ImportanceTier(mean),
		Votes:      []core.SignalVote{{Scorer: "rules", Score: score}},
		Reasoning:  reasoning,
		RuleBased:  true,
	}
}

// FallbackGenerator prefers a provider-specific backend and falls back to the
// generic one when the preferred backend is missing or unavailable.
type FallbackGenerator struct {
	name      string
	preferred core.TextGenerator
	fallback  core.TextGenerator
	logger    *zap.Logger
}

// NewFallbackGenerator creates a new FallbackGenerator; preferred may be nil
func NewFallbackGenerator(name string, preferred, fallback core.TextGenerator, logger *zap.Logger) *FallbackGenerator {
	return &FallbackGenerator{
		name:      name,
		preferred: preferred,
		fallback:  fallback,
		logger:    logger,
	}
}

// Generate implements core.TextGenerator
func (g *FallbackGenerator) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	if g.preferred == nil {
		return g.fallback.Generate(ctx, req)
	}

	start := time.Now()
	text, err := g.preferred.Generate(ctx, req)
	if err == nil {
		return text, nil
	}
	if !core.IsModelError(err) {
		return "", err
	}

	g.logger.Warn("Provider-specific scorer unavailable, using generic model",
		zap.String("scorer", g.name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return g.fallback.Generate(ctx, req)
}
