package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultUrgencyKeywords are used when no keywords are configured
var DefaultUrgencyKeywords = []string{"urgent", "asap", "immediately", "emergency", "critical", "deadline"}

// Aggregator fans a message out to every scorer and reduces the votes
type Aggregator struct {
	scorers         []Scorer
	urgencyKeywords []string
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// NewAggregator creates a new Aggregator
func NewAggregator(scorers []Scorer, urgencyKeywords []string, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	if len(urgencyKeywords) == 0 {
		urgencyKeywords = DefaultUrgencyKeywords
	}
	return &Aggregator{
		scorers:         scorers,
		urgencyKeywords: urgencyKeywords,
		logger:          logger,
		metrics:         m,
	}
}

// UrgencyKeywords returns the keywords that escalate urgency
func (a *Aggregator) UrgencyKeywords() []string {
	return a.urgencyKeywords
}

// Aggregate scores msg with every scorer concurrently. Errors, timeouts and
// malformed answers all become neutral votes; ErrAggregationFailed is returned
// when no scorer produced a real score.
func (a *Aggregator) Aggregate(ctx context.Context, msg *core.Message) (*core.PriorityScore, error) {
	if len(a.scorers) == 0 {
		return nil, fmt.Errorf("%w: no scorers configured", core.ErrAggregationFailed)
	}

	votes := make([]core.SignalVote, len(a.scorers))
	neutral := make([]bool, len(a.scorers))

	var g errgroup.Group
	for i, scorer := range a.scorers {
		g.Go(func() error {
			score, err := scorer.Score(ctx, msg)
			votes[i] = a.vote(msg, scorer.Name(), score, err)
			neutral[i] = err != nil
			// Failures never abort the group
			return nil
		})
	}
	_ = g.Wait()

	// An abandoned evaluation discards whatever the scorers produced
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failures := 0
	for _, n := range neutral {
		if n {
			failures++
		}
	}
	if failures == len(a.scorers) {
		a.metrics.AggregationFailed()
		a.logger.Warn("No scorer produced a usable vote",
			zap.String("message_id", msg.ID),
			zap.Int("scorers", len(a.scorers)))
		return nil, core.ErrAggregationFailed
	}

	result := Reduce(votes, msg.Subject, a.urgencyKeywords)
	a.logger.Debug("Priority aggregated",
		zap.String("message_id", msg.ID),
		zap.Float64("score", result.Score),
		zap.Float64("confidence", result.Confidence),
		zap.String("urgency", string(result.Urgency)),
		zap.Int("failures", failures))
	return result, nil
}

func (a *Aggregator) vote(msg *core.Message, name string, score int, err error) core.SignalVote {
	if err == nil {
		return core.SignalVote{Scorer: name, Score: score}
	}

	reason := "error"
	switch {
	case errors.Is(err, ErrMalformedScore):
		reason = "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case core.IsModelError(err):
		reason = "unavailable"
	}
	a.metrics.ScorerFailed(name, reason)
	a.logger.Warn("Scorer replaced by neutral vote",
		zap.String("message_id", msg.ID),
		zap.String("scorer", name),
		zap.String("reason", reason),
		zap.Error(err))

	return core.SignalVote{Scorer: name, Score: NeutralScore, Neutral: true, Note: reason}
}
