package relationship

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

const (
	// minDeliveries is how many messages a sender needs before its open rate counts
	minDeliveries = 5
	// neutralOpenRate is reported for senders without enough history
	neutralOpenRate = 0.5
)

// Tracker keeps sender profiles and answers relationship and history queries
type Tracker struct {
	profiles core.ProfileRepository
	tiers    *TierMatcher
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewTracker creates a new Tracker. timeout bounds each profile lookup; zero disables it.
func NewTracker(profiles core.ProfileRepository, tiers *TierMatcher, timeout time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		profiles: profiles,
		tiers:    tiers,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) profile(ctx context.Context, sender string) (*core.SenderProfile, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	address := core.NormalizeAddress(sender)
	p, err := t.profiles.GetProfile(ctx, address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.SenderProfile{Address: address}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile of %s: %w", address, err)
	}
	return p, nil
}

// Analyze implements core.RelationshipAnalyzer
func (t *Tracker) Analyze(ctx context.Context, sender string) (*core.Relationship, error) {
	tier, _ := t.tiers.Match(sender)
	p, err := t.profile(ctx, sender)
	if err != nil {
		return nil, err
	}
	return &core.Relationship{
		Tier:                tier,
		LastInteraction:     p.LastInteraction,
		AverageResponseTime: p.AverageResponseTime(),
	}, nil
}

// OpenRate implements core.SenderHistory
func (t *Tracker) OpenRate(ctx context.Context, sender string) (float64, error) {
	p, err := t.profile(ctx, sender)
	if err != nil {
		return 0, err
	}
	if p.Delivered < minDeliveries {
		return neutralOpenRate, nil
	}
	return p.OpenRate(), nil
}

// InteractionCount implements core.SenderHistory
func (t *Tracker) InteractionCount(ctx context.Context, sender string) (int, error) {
	p, err := t.profile(ctx, sender)
	if err != nil {
		return 0, err
	}
	return p.Interactions, nil
}

// RecordDelivery counts a message received from sender
func (t *Tracker) RecordDelivery(ctx context.Context, sender string) error {
	return t.update(ctx, sender, func(p *core.SenderProfile) {
		p.Delivered++
	})
}

// RecordEngagement marks that the user read a message from sender and acted on
// it. responseTime is the delay since the message arrived; zero skips it.
func (t *Tracker) RecordEngagement(ctx context.Context, sender string, responseTime time.Duration) error {
	return t.update(ctx, sender, func(p *core.SenderProfile) {
		if p.Read < p.Delivered {
			p.Read++
		}
		p.Interactions++
		p.LastInteraction = t.now()
		if responseTime > 0 {
			p.TotalResponseTime += responseTime
			p.Responses++
		}
	})
}

func (t *Tracker) update(ctx context.Context, sender string, fn func(*core.SenderProfile)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.profile(ctx, sender)
	if err != nil {
		return err
	}
	if p.Address == "" {
		return fmt.Errorf("invalid sender address %q", sender)
	}
	fn(p)
	if err := t.profiles.SaveProfile(ctx, p); err != nil {
		return fmt.Errorf("failed to save profile of %s: %w", p.Address, err)
	}
	return nil
}
