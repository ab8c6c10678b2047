package relationship

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/mailpilot/internal/adapters/store"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMatcher() *TierMatcher {
	return NewTierMatcher(
		[]string{"CEO@Example.com"},
		[]string{"bigcustomer.com", "@partner.io"},
		[]string{"example.com"},
		zap.NewNop(),
	)
}

func TestTierMatcher(t *testing.T) {
	m := newMatcher()
	tests := []struct {
		from string
		want core.RelationshipTier
		ok   bool
	}{
		{"The CEO <ceo@example.com>", core.RelationshipBoss, true},
		{"dev@example.com", core.RelationshipColleague, true},
		{"buyer@eu.bigcustomer.com", core.RelationshipClient, true},
		{"a@partner.io", core.RelationshipClient, true},
		{"a@notbigcustomer.com", core.RelationshipUnknown, false},
		{"stranger@elsewhere.org", core.RelationshipUnknown, false},
		{"not-an-address", core.RelationshipUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			got, ok := m.Match(tt.from)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func newTracker(t *testing.T) (*Tracker, *store.MemoryStore) {
	opts := store.DefaultOptions()
	opts.CleanupFreq = 0
	s := store.NewMemoryStore(opts, zap.NewNop())
	t.Cleanup(s.Stop)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return NewTracker(s, newMatcher(), time.Second, zap.NewNop()).WithClock(func() time.Time { return now }), s
}

func TestOpenRateNeedsHistory(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	sender := "News <news@shop.example>"

	rate, err := tr.OpenRate(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, 0.5, rate)

	for i := 0; i < 40; i++ {
		require.NoError(t, tr.RecordDelivery(ctx, sender))
	}
	rate, err = tr.OpenRate(ctx, sender)
	require.NoError(t, err)
	assert.Zero(t, rate)

	require.NoError(t, tr.RecordEngagement(ctx, sender, 0))
	rate, err = tr.OpenRate(ctx, "news@shop.example")
	require.NoError(t, err)
	assert.Equal(t, 1.0/40.0, rate)
}

func TestEngagementUpdatesRelationship(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.RecordDelivery(ctx, "ceo@example.com"))
	require.NoError(t, tr.RecordEngagement(ctx, "ceo@example.com", 2*time.Hour))
	require.NoError(t, tr.RecordDelivery(ctx, "ceo@example.com"))
	require.NoError(t, tr.RecordEngagement(ctx, "ceo@example.com", 4*time.Hour))

	rel, err := tr.Analyze(ctx, "Boss <CEO@example.com>")
	require.NoError(t, err)
	assert.Equal(t, core.RelationshipBoss, rel.Tier)
	assert.Equal(t, 3*time.Hour, rel.AverageResponseTime)
	assert.Equal(t, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC), rel.LastInteraction)

	count, err := tr.InteractionCount(ctx, "ceo@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReadNeverExceedsDelivered(t *testing.T) {
	tr, s := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.RecordEngagement(ctx, "x@y.org", 0))
	p, err := s.GetProfile(ctx, "x@y.org")
	require.NoError(t, err)
	assert.Zero(t, p.Read)
	assert.Equal(t, 1, p.Interactions)
}

func TestInvalidSender(t *testing.T) {
	tr, _ := newTracker(t)
	assert.Error(t, tr.RecordDelivery(context.Background(), ""))
}

type failingProfiles struct{}

func (failingProfiles) GetProfile(context.Context, string) (*core.SenderProfile, error) {
	return nil, errors.New("db down")
}
func (failingProfiles) SaveProfile(context.Context, *core.SenderProfile) error { return nil }

func TestStoreErrorsPropagate(t *testing.T) {
	tr := NewTracker(failingProfiles{}, newMatcher(), 0, zap.NewNop())
	_, err := tr.OpenRate(context.Background(), "a@b.com")
	assert.Error(t, err)
	_, err = tr.Analyze(context.Background(), "a@b.com")
	assert.Error(t, err)
}
