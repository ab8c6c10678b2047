package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/metrics"
	"go.uber.org/zap"
)

// AutonomySettingKey is the settings key holding the autonomy flag
const AutonomySettingKey = "autonomy_enabled"

// ThresholdSource provides the current confidence threshold
type ThresholdSource interface {
	Threshold() float64
}

// Gate decides whether a decision is executed, suggested or escalated
type Gate struct {
	threshold  ThresholdSource
	dispatcher *Dispatcher
	settings   core.SettingsRepository
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu       sync.RWMutex
	autonomy bool
}

// NewGate creates a new Gate. defaultAutonomy is used until LoadAutonomy finds a stored value.
func NewGate(threshold ThresholdSource, dispatcher *Dispatcher, settings core.SettingsRepository, defaultAutonomy bool, logger *zap.Logger, m *metrics.Metrics) *Gate {
	m.SetAutonomy(defaultAutonomy)
	return &Gate{
		threshold:  threshold,
		dispatcher: dispatcher,
		settings:   settings,
		logger:     logger,
		metrics:    m,
		autonomy:   defaultAutonomy,
	}
}

// LoadAutonomy restores the persisted autonomy flag
func (g *Gate) LoadAutonomy(ctx context.Context) error {
	raw, err := g.settings.GetSetting(ctx, AutonomySettingKey)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load autonomy flag: %w", err)
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid autonomy flag %q: %w", raw, err)
	}

	g.mu.Lock()
	g.autonomy = enabled
	g.mu.Unlock()
	g.metrics.SetAutonomy(enabled)
	return nil
}

// Autonomy reports whether high-confidence decisions are executed without approval
func (g *Gate) Autonomy() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.autonomy
}

// SetAutonomy persists and applies the autonomy flag
func (g *Gate) SetAutonomy(ctx context.Context, enabled bool) error {
	if err := g.settings.SetSetting(ctx, AutonomySettingKey, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("failed to save autonomy flag: %w", err)
	}
	g.mu.Lock()
	g.autonomy = enabled
	g.mu.Unlock()
	g.metrics.SetAutonomy(enabled)
	g.logger.Info("Autonomy changed", zap.Bool("enabled", enabled))
	return nil
}

// Apply gates a pending decision. Only a decision at or above the threshold
// with autonomy enabled is dispatched; everything else requires approval and
// has no side effect.
func (g *Gate) Apply(ctx context.Context, msg *core.Message, d *core.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	threshold := g.threshold.Threshold()
	autonomy := g.Autonomy()

	switch {
	case d.Confidence >= threshold && autonomy:
		d.RequiresApproval = false
		if err := g.dispatcher.Dispatch(ctx, msg, d); err != nil {
			d.RequiresApproval = true
			d.Outcome = core.OutcomeFailed
			g.metrics.ObserveDecision(string(core.KindOf(d.Action)), string(d.Outcome))
			return err
		}
		d.Outcome = core.OutcomeExecuted
	case d.Confidence >= threshold:
		d.RequiresApproval = true
		d.Outcome = core.OutcomeSuggested
	default:
		d.RequiresApproval = true
		d.Outcome = core.OutcomeEscalated
	}

	g.metrics.ObserveDecision(string(core.KindOf(d.Action)), string(d.Outcome))
	g.logger.Info("Decision gated",
		zap.String("message_id", msg.ID),
		zap.String("decision_id", d.ID),
		zap.String("action", string(core.KindOf(d.Action))),
		zap.Float64("confidence", d.Confidence),
		zap.Float64("threshold", threshold),
		zap.Bool("autonomy", autonomy),
		zap.String("outcome", string(d.Outcome)))
	return nil
}

// ExecuteApproved dispatches a decision the human has approved, regardless of
// confidence or autonomy.
func (g *Gate) ExecuteApproved(ctx context.Context, msg *core.Message, d *core.Decision) error {
	if d.Outcome == core.OutcomeExecuted {
		return nil
	}
	if err := g.dispatcher.Dispatch(ctx, msg, d); err != nil {
		d.Outcome = core.OutcomeFailed
		g.metrics.ObserveDecision(string(core.KindOf(d.Action)), string(d.Outcome))
		return err
	}
	d.RequiresApproval = false
	d.Outcome = core.OutcomeExecuted
	g.metrics.ObserveDecision(string(core.KindOf(d.Action)), string(d.Outcome))
	return nil
}
