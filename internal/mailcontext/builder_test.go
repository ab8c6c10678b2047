package mailcontext

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h-10)*time.Hour + time.Duration(m)*time.Minute)
}

type fakeRelationships struct {
	rel *core.Relationship
	err error
}

func (f fakeRelationships) Analyze(context.Context, string) (*core.Relationship, error) {
	return f.rel, f.err
}

type fakeHistory struct {
	rate  float64
	count int
	err   error
}

func (f fakeHistory) OpenRate(context.Context, string) (float64, error)      { return f.rate, f.err }
func (f fakeHistory) InteractionCount(context.Context, string) (int, error) { return f.count, f.err }

type fakeCalendar struct {
	events []core.CalendarEvent
	err    error
}

func (f fakeCalendar) ListEvents(context.Context) ([]core.CalendarEvent, error) { return f.events, f.err }
func (f fakeCalendar) CreateEvent(context.Context, core.CalendarEvent) (string, error) {
	return "", errors.New("read only")
}

type fakeKnowledge struct{ answer string }

func (f fakeKnowledge) Lookup(context.Context, *core.Message) (string, bool, error) {
	return f.answer, f.answer != "", nil
}

func TestDetectConflicts(t *testing.T) {
	events := []core.CalendarEvent{
		{ID: "overlap", Start: at(10, 30), End: at(11, 30)},
		{ID: "adjacent-before", Start: at(9, 0), End: at(9, 50)},
		{ID: "far", Start: at(14, 0), End: at(15, 0)},
		{ID: "ends-at-start", Start: at(8, 0), End: at(10, 0)},
	}
	slot := core.TimeSlot{Start: at(10, 0), End: at(11, 0)}

	got := DetectConflicts(slot, events, DefaultSoftBuffer)
	kinds := map[string]core.ConflictKind{}
	for _, c := range got {
		kinds[c.Event.ID] = c.Kind
	}

	assert.Equal(t, core.ConflictHard, kinds["overlap"])
	assert.Equal(t, core.ConflictSoft, kinds["adjacent-before"])
	assert.Equal(t, core.ConflictSoft, kinds["ends-at-start"])
	assert.NotContains(t, kinds, "far")
}

func TestDetectConflictsWithoutBuffer(t *testing.T) {
	events := []core.CalendarEvent{{ID: "back-to-back", Start: at(11, 0), End: at(12, 0)}}
	got := DetectConflicts(core.TimeSlot{Start: at(10, 0), End: at(11, 0)}, events, 0)
	assert.Empty(t, got)
}

func TestBuild(t *testing.T) {
	b := NewBuilder(
		fakeRelationships{rel: &core.Relationship{Tier: core.RelationshipClient, LastInteraction: base}},
		fakeHistory{rate: 0.02, count: 4},
		fakeCalendar{},
		fakeKnowledge{answer: "Office hours are 9-5."},
		[]string{"Apollo"},
		DefaultSoftBuffer,
		zap.NewNop(),
	).WithClock(func() time.Time { return base })

	got, err := b.Build(context.Background(), &core.Message{ID: "1", From: "c@client.com", Subject: "apollo status?"}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.RelationshipClient, got.Tier)
	assert.Equal(t, 0.02, got.OpenRate)
	assert.Equal(t, 4, got.InteractionCount)
	assert.Equal(t, 0.85, got.SenderImportance)
	assert.Equal(t, "Apollo", got.RelatedProject)
	assert.Equal(t, "Office hours are 9-5.", got.KnowledgeAnswer)
	assert.Equal(t, base, got.Now)
	assert.Nil(t, got.Meeting)
	assert.False(t, got.CalendarInvite)

	got, err = b.Build(context.Background(), &core.Message{ID: "2", From: "c@client.com", HasCalendarPart: true}, nil)
	require.NoError(t, err)
	assert.True(t, got.CalendarInvite)
}

func TestBuildDegradesOnCollaboratorErrors(t *testing.T) {
	b := NewBuilder(
		fakeRelationships{err: errors.New("no profile")},
		fakeHistory{err: errors.New("db down")},
		fakeCalendar{},
		nil,
		nil,
		DefaultSoftBuffer,
		zap.NewNop(),
	)

	got, err := b.Build(context.Background(), &core.Message{ID: "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.RelationshipUnknown, got.Tier)
	assert.Equal(t, neutralOpenRate, got.OpenRate)
	assert.Equal(t, 0, got.InteractionCount)
	assert.Equal(t, 0.3, got.SenderImportance)
}

func TestBuildMeetingContext(t *testing.T) {
	cal := fakeCalendar{events: []core.CalendarEvent{{ID: "standup", Start: at(10, 15), End: at(10, 30)}}}
	b := NewBuilder(fakeRelationships{rel: &core.Relationship{Tier: core.RelationshipBoss}}, fakeHistory{}, cal, nil, nil, DefaultSoftBuffer, zap.NewNop())

	req := &core.MeetingRequest{Title: "Sync", Slot: core.TimeSlot{Start: at(10, 0), End: at(11, 0)}, ValueScore: 90}
	got, err := b.Build(context.Background(), &core.Message{ID: "1"}, req)
	require.NoError(t, err)
	require.NotNil(t, got.Meeting)
	assert.Len(t, got.Meeting.HardConflicts(), 1)
	assert.Len(t, got.Conflicts, 1)
	assert.Len(t, got.Meeting.Events, 1)
}

func TestBuildMeetingFailsClosedWhenCalendarUnavailable(t *testing.T) {
	b := NewBuilder(fakeRelationships{}, fakeHistory{}, fakeCalendar{err: errors.New("token expired")}, nil, nil, DefaultSoftBuffer, zap.NewNop())

	req := &core.MeetingRequest{Slot: core.TimeSlot{Start: at(10, 0), End: at(11, 0)}}
	got, err := b.Build(context.Background(), &core.Message{ID: "1"}, req)
	require.NoError(t, err)
	assert.Nil(t, got.Meeting)
	assert.Contains(t, got.MeetingFailure, "calendar unavailable")
}

type fakeFeedback struct{ domains []string }

func (f *fakeFeedback) PatternsFor(domain string) core.FeedbackPattern {
	f.domains = append(f.domains, domain)
	return core.FeedbackPattern{SenderDomain: domain, Approved: 2, Rejected: 1}
}

func TestBuildIncludesFeedbackPattern(t *testing.T) {
	feedback := &fakeFeedback{}
	b := NewBuilder(fakeRelationships{}, fakeHistory{}, fakeCalendar{}, nil, nil, DefaultSoftBuffer, zap.NewNop()).
		WithFeedback(feedback)

	got, err := b.Build(context.Background(), &core.Message{ID: "1", From: "Ann <ann@Client.com>"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"client.com"}, feedback.domains)
	assert.Equal(t, 3, got.Feedback.Total())

	got, err = b.Build(context.Background(), &core.Message{ID: "2", From: "not an address"}, nil)
	require.NoError(t, err)
	assert.Zero(t, got.Feedback.Total())
	assert.Len(t, feedback.domains, 1)
}
