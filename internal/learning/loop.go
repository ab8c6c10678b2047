package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/metrics"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
)

// Settings keys used to persist the loop state
const (
	ThresholdKey = "confidence_threshold"
	ApprovedKey  = "feedback_approved"
	RejectedKey  = "feedback_rejected"
)

// Config bounds and tunes the adaptive threshold
type Config struct {
	InitialThreshold float64
	MinThreshold     float64
	MaxThreshold     float64
	Step             float64
	RaiseAboveRate   float64
	RaiseMinCount    int
	LowerBelowRate   float64
	Retention        int
}

// DefaultConfig returns the stock learning settings
func DefaultConfig() Config {
	return Config{
		InitialThreshold: 0.85,
		MinThreshold:     0.60,
		MaxThreshold:     0.95,
		Step:             0.05,
		RaiseAboveRate:   0.95,
		RaiseMinCount:    100,
		LowerBelowRate:   0.80,
		Retention:        500,
	}
}

// Loop records human feedback and moves the confidence threshold.
// The approval rate is cumulative over all feedback ever recorded; the
// retained record window only feeds PatternsFor.
type Loop struct {
	cfg     Config
	store   core.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	state   tally
	records []core.LearningRecord
}

// tally is the persisted part of the loop state
type tally struct {
	threshold float64
	approved  int
	rejected  int
}

func (t tally) total() int {
	return t.approved + t.rejected
}

func (t tally) rate() float64 {
	if t.total() == 0 {
		return 0
	}
	return float64(t.approved) / float64(t.total())
}

func (t tally) settings() map[string]string {
	return map[string]string{
		ThresholdKey: strconv.FormatFloat(t.threshold, 'f', -1, 64),
		ApprovedKey:  strconv.Itoa(t.approved),
		RejectedKey:  strconv.Itoa(t.rejected),
	}
}

// NewLoop creates a new learning Loop starting at the configured initial threshold
func NewLoop(cfg Config, store core.Store, logger *zap.Logger, m *metrics.Metrics) *Loop {
	l := &Loop{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	l.state.threshold = l.clamp(cfg.InitialThreshold)
	m.SetThreshold(l.state.threshold)
	return l
}

// WithClock overrides the time source used for record timestamps
func (l *Loop) WithClock(now func() time.Time) *Loop {
	l.now = now
	return l
}

// Load restores threshold, counters and the retained records from the store
func (l *Loop) Load(ctx context.Context) error {
	threshold, err := l.loadFloat(ctx, ThresholdKey)
	if err != nil {
		return err
	}
	approved, err := l.loadInt(ctx, ApprovedKey)
	if err != nil {
		return err
	}
	rejected, err := l.loadInt(ctx, RejectedKey)
	if err != nil {
		return err
	}
	records, err := l.store.LoadRecords(ctx, l.cfg.Retention)
	if err != nil {
		return fmt.Errorf("failed to load learning records: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if threshold != nil {
		l.state.threshold = l.clamp(*threshold)
	}
	if approved != nil {
		l.state.approved = *approved
	}
	if rejected != nil {
		l.state.rejected = *rejected
	}
	l.records = records
	l.metrics.SetThreshold(l.state.threshold)

	l.logger.Info("Learning state loaded",
		zap.Float64("threshold", l.state.threshold),
		zap.Int("approved", l.state.approved),
		zap.Int("rejected", l.state.rejected),
		zap.Int("records", len(l.records)))
	return nil
}

func (l *Loop) loadFloat(ctx context.Context, key string) (*float64, error) {
	raw, err := l.store.GetSetting(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return &v, nil
}

func (l *Loop) loadInt(ctx context.Context, key string) (*int, error) {
	raw, err := l.store.GetSetting(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return &v, nil
}

// Threshold returns the current confidence threshold
func (l *Loop) Threshold() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.threshold
}

// ApprovalRate returns the cumulative approval rate and the number of feedback events
func (l *Loop) ApprovalRate() (float64, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.rate(), l.state.total()
}

// Record stores feedback for the action suggested for msg and adjusts the
// threshold. On error neither the store nor the loop reflects the feedback.
func (l *Loop) Record(ctx context.Context, msg *core.Message, action core.ActionKind, approved bool) error {
	record := core.LearningRecord{
		Fingerprint: FingerprintOf(msg),
		Action:      action,
		Approved:    approved,
		RecordedAt:  l.now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.state
	after := l.next(before, approved)

	if err := l.persist(ctx, before, after); err != nil {
		return err
	}
	if err := l.store.AppendRecord(ctx, record); err != nil {
		if restoreErr := l.persist(ctx, after, before); restoreErr != nil {
			l.logger.Error("Failed to restore learning counters",
				zap.Error(restoreErr))
		}
		return fmt.Errorf("failed to append learning record: %w", err)
	}

	l.state = after
	l.records = append(l.records, record)
	if n := len(l.records) - l.cfg.Retention; l.cfg.Retention > 0 && n > 0 {
		l.records = append([]core.LearningRecord(nil), l.records[n:]...)
	}

	l.metrics.ObserveFeedback(string(action), approved)
	l.metrics.SetThreshold(after.threshold)
	if after.threshold != before.threshold {
		l.logger.Info("Confidence threshold adjusted",
			zap.Float64("from", before.threshold),
			zap.Float64("to", after.threshold),
			zap.Float64("approval_rate", after.rate()),
			zap.Int("feedback", after.total()))
	}
	return nil
}

// next applies one piece of feedback to t
func (l *Loop) next(t tally, approved bool) tally {
	if approved {
		t.approved++
		if t.rate() > l.cfg.RaiseAboveRate && t.total() > l.cfg.RaiseMinCount {
			t.threshold = l.clamp(t.threshold + l.cfg.Step)
		}
		return t
	}
	t.rejected++
	if t.rate() < l.cfg.LowerBelowRate {
		t.threshold = l.clamp(t.threshold - l.cfg.Step)
	}
	return t
}

// persist writes the to state. When a write fails, the keys already written
// are put back to their from values.
func (l *Loop) persist(ctx context.Context, from, to tally) error {
	old, settings := from.settings(), to.settings()
	keys := []string{ApprovedKey, RejectedKey, ThresholdKey}
	for i, key := range keys {
		if err := l.store.SetSetting(ctx, key, settings[key]); err != nil {
			for _, written := range keys[:i] {
				if undoErr := l.store.SetSetting(ctx, written, old[written]); undoErr != nil {
					l.logger.Error("Failed to restore learning setting",
						zap.String("key", written),
						zap.Error(undoErr))
				}
			}
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}
	return nil
}

// clamp keeps the threshold inside the configured band, rounded to hundredths
func (l *Loop) clamp(v float64) float64 {
	v = math.Round(v*100) / 100
	return math.Max(l.cfg.MinThreshold, math.Min(l.cfg.MaxThreshold, v))
}

// FingerprintOf reduces a message to the coarse features kept for learning
func FingerprintOf(msg *core.Message) core.Fingerprint {
	return core.Fingerprint{
		SenderDomain:    msg.SenderDomain(),
		SubjectKeywords: utils.Keywords(msg.Subject),
		HasAttachments:  msg.HasAttachments,
		IsThread:        msg.ThreadLength > 1,
	}
}

// PatternsFor summarizes the retained feedback for a sender domain
func (l *Loop) PatternsFor(domain string) core.FeedbackPattern {
	domain = utils.Fold(domain)
	p := core.FeedbackPattern{SenderDomain: domain, ByAction: make(map[core.ActionKind]int)}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.records {
		if utils.Fold(r.Fingerprint.SenderDomain) != domain {
			continue
		}
		if r.Approved {
			p.Approved++
			p.ByAction[r.Action]++
		} else {
			p.Rejected++
		}
	}
	return p
}
