package policy

import (
	"testing"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday
var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func on(day time.Time, h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newEngine() *Engine {
	return NewEngine(DefaultMeetingConfig())
}

func TestDecisionMatrix(t *testing.T) {
	tests := []struct {
		name       string
		intent     core.Intent
		score      float64
		ctx        core.Context
		wantKind   core.ActionKind
		wantConf   float64
		wantUrgent core.Tier
	}{
		{
			name:     "archive when sender is never read",
			intent:   core.IntentNothing,
			score:    30,
			ctx:      core.Context{OpenRate: 0.02},
			wantKind: core.ActionAutoArchive,
			wantConf: 0.95,
		},
		{
			name:       "nothing wanted but sender is read falls through",
			intent:     core.IntentNothing,
			score:      30,
			ctx:        core.Context{OpenRate: 0.05},
			wantKind:   core.ActionEscalate,
			wantConf:   0.5,
			wantUrgent: core.TierMedium,
		},
		{
			name:     "acknowledge low priority",
			intent:   core.IntentAcknowledgment,
			score:    49.9,
			wantKind: core.ActionAutoReply,
			wantConf: 0.85,
		},
		{
			name:       "acknowledgment at priority 50 falls through",
			intent:     core.IntentAcknowledgment,
			score:      50,
			wantKind:   core.ActionEscalate,
			wantConf:   0.5,
			wantUrgent: core.TierMedium,
		},
		{
			name:       "meeting without assessed slot falls through",
			intent:     core.IntentMeeting,
			score:      60,
			wantKind:   core.ActionEscalate,
			wantConf:   0.5,
			wantUrgent: core.TierMedium,
		},
		{
			name:       "meeting with conflicts falls through",
			intent:     core.IntentMeeting,
			score:      60,
			ctx:        core.Context{Conflicts: []core.Conflict{{Kind: core.ConflictSoft}}},
			wantKind:   core.ActionEscalate,
			wantConf:   0.5,
			wantUrgent: core.TierMedium,
		},
		{
			name:     "answer from knowledge base",
			intent:   core.IntentInformation,
			score:    60,
			ctx:      core.Context{KnowledgeAnswer: "The office is closed on Friday."},
			wantKind: core.ActionAutoReply,
			wantConf: 0.75,
		},
		{
			name:       "information without answer falls through",
			intent:     core.IntentInformation,
			score:      60,
			wantKind:   core.ActionEscalate,
			wantConf:   0.5,
			wantUrgent: core.TierMedium,
		},
		{
			name:       "action always escalates high",
			intent:     core.IntentAction,
			score:      10,
			wantKind:   core.ActionEscalate,
			wantConf:   1.0,
			wantUrgent: core.TierHigh,
		},
		{
			name:       "decision always escalates high",
			intent:     core.IntentDecision,
			score:      90,
			wantKind:   core.ActionEscalate,
			wantConf:   1.0,
			wantUrgent: core.TierHigh,
		},
		{
			name:       "unknown intent escalates medium",
			intent:     core.IntentUnknown,
			score:      90,
			ctx:        core.Context{OpenRate: 0.0},
			wantKind:   core.ActionEscalate,
			wantConf:   0.5,
			wantUrgent: core.TierMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.ctx
			d := newEngine().Decide(tt.intent, &core.PriorityScore{Score: tt.score}, &c)
			require.NotNil(t, d.Action)
			assert.Equal(t, tt.wantKind, d.Action.Kind())
			assert.InDelta(t, tt.wantConf, d.Confidence, 1e-9)
			assert.Equal(t, core.OutcomePending, d.Outcome)
			assert.NotEmpty(t, d.Reasoning)
			if tt.wantUrgent != "" {
				esc, ok := d.Action.(core.Escalate)
				require.True(t, ok)
				assert.Equal(t, tt.wantUrgent, esc.Urgency)
			}
		})
	}
}

func TestAcknowledgmentReplyIsCanned(t *testing.T) {
	d := newEngine().Decide(core.IntentAcknowledgment, &core.PriorityScore{Score: 10}, &core.Context{})
	reply := d.Action.(core.AutoReply)
	assert.Equal(t, CannedAcknowledgment, reply.Body)
	assert.True(t, reply.SendImmediately)
	assert.False(t, reply.NeedsReview)

	d = newEngine().Decide(core.IntentInformation, &core.PriorityScore{Score: 10}, &core.Context{KnowledgeAnswer: "42"})
	reply = d.Action.(core.AutoReply)
	assert.True(t, reply.NeedsReview)
	assert.False(t, reply.SendImmediately)
}

func TestMeetingFailureFailsClosed(t *testing.T) {
	c := &core.Context{MeetingFailure: "invalid JSON", OpenRate: 0.01, CalendarInvite: true}
	for _, intent := range append(core.KnownIntents, core.IntentUnknown) {
		d := newEngine().Decide(intent, &core.PriorityScore{Score: 10}, c)
		assert.Equal(t, core.ActionEscalate, d.Action.Kind(), intent)
		assert.Equal(t, 0.5, d.Confidence)
	}

	// A keyword hit whose assessment failed never unlocks more than the matrix allows
	inferred := &core.Context{MeetingFailure: "invalid JSON", OpenRate: 0.01}
	d := newEngine().Decide(core.IntentNothing, &core.PriorityScore{Score: 10}, inferred)
	assert.Equal(t, core.ActionAutoArchive, d.Action.Kind())
	d = newEngine().Decide(core.IntentUnknown, &core.PriorityScore{Score: 10}, inferred)
	assert.Equal(t, core.ActionEscalate, d.Action.Kind())
	assert.Contains(t, d.Reasoning[0], "meeting assessment failed")
}

func TestInferredMeetingDefersToMatrix(t *testing.T) {
	slot := core.TimeSlot{Start: on(monday, 14, 0), End: on(monday, 15, 0)}

	c := &core.Context{Now: monday, Meeting: meetingContext(95, core.NecessityRequired, slot, nil, 0)}
	d := newEngine().Decide(core.IntentAction, &core.PriorityScore{Score: 50}, c)
	esc, ok := d.Action.(core.Escalate)
	require.True(t, ok, "got %T", d.Action)
	assert.Equal(t, core.TierHigh, esc.Urgency)
	assert.Equal(t, 1.0, d.Confidence)

	c = &core.Context{Now: monday, OpenRate: 0.01, Meeting: meetingContext(5, core.NecessityFYI, slot, nil, 0)}
	d = newEngine().Decide(core.IntentNothing, &core.PriorityScore{Score: 20}, c)
	assert.Equal(t, core.ActionAutoArchive, d.Action.Kind())

	// Nothing in the matrix applies, so the sub-policy decides
	c = &core.Context{Now: monday, OpenRate: 0.5, Meeting: meetingContext(5, core.NecessityFYI, slot, nil, 0)}
	d = newEngine().Decide(core.IntentUnknown, &core.PriorityScore{Score: 20}, c)
	assert.Equal(t, core.ActionDeclineMeeting, d.Action.Kind())
	assert.Contains(t, d.Reasoning, "scheduling request inferred from subject")
}

func TestCalendarInviteUsesSubPolicy(t *testing.T) {
	slot := core.TimeSlot{Start: on(monday, 14, 0), End: on(monday, 15, 0)}
	c := &core.Context{Now: monday, CalendarInvite: true, Meeting: meetingContext(95, core.NecessityRequired, slot, nil, 0)}

	d := newEngine().Decide(core.IntentAction, &core.PriorityScore{Score: 50}, c)
	assert.Equal(t, core.ActionAcceptMeeting, d.Action.Kind())
}

func TestMatrixMeetingRowWhenSubPolicyDisabled(t *testing.T) {
	cfg := DefaultMeetingConfig()
	cfg.Disabled = true
	engine := NewEngine(cfg)
	slot := core.TimeSlot{Start: on(monday, 14, 0), End: on(monday, 15, 0)}

	free := &core.Context{Now: monday, Meeting: meetingContext(5, core.NecessityFYI, slot, nil, 0)}
	d := engine.Decide(core.IntentMeeting, &core.PriorityScore{Score: 50}, free)
	accept, ok := d.Action.(core.AcceptMeeting)
	require.True(t, ok, "got %T", d.Action)
	require.NotNil(t, accept.Slot)
	assert.Equal(t, slot, *accept.Slot)
	assert.Equal(t, "Planning", accept.Title)
	assert.True(t, accept.CreateEvent)
	assert.Equal(t, 0.80, d.Confidence)

	busy := []core.CalendarEvent{{ID: "standup", Start: on(monday, 14, 30), End: on(monday, 15, 30)}}
	mc := meetingContext(95, core.NecessityRequired, slot, busy, 0)
	d = engine.Decide(core.IntentMeeting, &core.PriorityScore{Score: 50}, &core.Context{Now: monday, Meeting: mc, Conflicts: mc.Conflicts})
	assert.Equal(t, core.ActionEscalate, d.Action.Kind())
	assert.Equal(t, 0.5, d.Confidence)

	d = engine.Decide(core.IntentMeeting, &core.PriorityScore{Score: 50}, &core.Context{Now: monday})
	assert.Equal(t, core.ActionEscalate, d.Action.Kind())
}

func meetingContext(value int, necessity core.Necessity, slot core.TimeSlot, events []core.CalendarEvent, buffer time.Duration) *core.MeetingContext {
	mc := &core.MeetingContext{
		Request: core.MeetingRequest{Title: "Planning", Slot: slot, ValueScore: value, Necessity: necessity},
		Events:  events,
	}
	for _, ev := range events {
		if slot.Overlaps(ev.Slot()) {
			mc.Conflicts = append(mc.Conflicts, core.Conflict{Kind: core.ConflictHard, Event: ev})
		} else if slot.Overlaps(core.TimeSlot{Start: ev.Start.Add(-buffer), End: ev.End.Add(buffer)}) {
			mc.Conflicts = append(mc.Conflicts, core.Conflict{Kind: core.ConflictSoft, Event: ev})
		}
	}
	return mc
}

func TestHardConflictAlwaysProposesAlternatives(t *testing.T) {
	slot := core.TimeSlot{Start: on(monday, 10, 0), End: on(monday, 11, 0)}
	events := []core.CalendarEvent{
		{ID: "board", Start: on(monday, 10, 0), End: on(monday, 11, 0)},
		{ID: "lunch", Start: on(monday, 11, 0), End: on(monday, 13, 0)},
	}
	c := &core.Context{
		Now:              on(monday, 8, 0),
		SenderImportance: 1.0,
		Meeting:          meetingContext(95, core.NecessityRequired, slot, events, 15*time.Minute),
	}

	score, _ := ScoreMeeting(c.Meeting, c.SenderImportance, nil)
	assert.GreaterOrEqual(t, score, DefaultMeetingConfig().AutoAcceptThreshold)

	d := newEngine().Decide(core.IntentMeeting, &core.PriorityScore{Score: 80}, c)
	proposal, ok := d.Action.(core.ProposeAlternative)
	require.True(t, ok, "got %T", d.Action)
	assert.Equal(t, 0.75, d.Confidence)
	require.Len(t, proposal.Slots, 3)
	assert.Equal(t, on(monday, 13, 0), proposal.Slots[0].Start)

	for _, s := range proposal.Slots {
		assert.GreaterOrEqual(t, s.Start.Hour(), 9)
		assert.False(t, s.End.After(time.Date(s.Start.Year(), s.Start.Month(), s.Start.Day(), 17, 0, 0, 0, time.UTC)))
		assert.Equal(t, time.Hour, s.Duration())
		for _, ev := range events {
			assert.False(t, s.Overlaps(ev.Slot()))
		}
	}
}

func TestMeetingSubPolicy(t *testing.T) {
	slot := core.TimeSlot{Start: on(monday, 14, 0), End: on(monday, 15, 0)}

	tests := []struct {
		name       string
		value      int
		necessity  core.Necessity
		importance float64
		wantKind   core.ActionKind
		wantConf   float64
	}{
		{"valuable meeting accepted", 80, core.NecessityImportant, 0.6, core.ActionAcceptMeeting, 0.93},
		{"worthless meeting declined", 20, core.NecessityFYI, 0.3, core.ActionDeclineMeeting, 1.0},
		{"borderline meeting escalated", 50, core.NecessityOptional, 0.5, core.ActionEscalate, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &core.Context{
				Now:              on(monday, 8, 0),
				SenderImportance: tt.importance,
				Meeting:          meetingContext(tt.value, tt.necessity, slot, nil, 0),
			}
			d := newEngine().Decide(core.IntentMeeting, &core.PriorityScore{Score: 50}, c)
			assert.Equal(t, tt.wantKind, d.Action.Kind())
			assert.InDelta(t, tt.wantConf, d.Confidence, 1e-9)
		})
	}
}

func TestAcceptedMeetingCarriesSlot(t *testing.T) {
	slot := core.TimeSlot{Start: on(monday, 14, 0), End: on(monday, 15, 0)}
	c := &core.Context{Now: monday, SenderImportance: 1, Meeting: meetingContext(90, core.NecessityRequired, slot, nil, 0)}

	d := newEngine().Decide(core.IntentMeeting, &core.PriorityScore{Score: 50}, c)
	accept := d.Action.(core.AcceptMeeting)
	require.NotNil(t, accept.Slot)
	assert.Equal(t, slot, *accept.Slot)
	assert.True(t, accept.CreateEvent)
	assert.Equal(t, "Planning", accept.Title)
}

func TestPreferenceRules(t *testing.T) {
	friday := monday.AddDate(0, 0, 4)
	slot := core.TimeSlot{Start: on(friday, 16, 0), End: on(friday, 17, 30)}

	prefs := []PreferenceRule{
		{Kind: PreferenceDay, Days: []string{"Friday"}, Adjustment: -0.5},
		{Kind: PreferenceTime, StartHour: 9, EndHour: 12, Adjustment: 0.1},
		{Kind: PreferenceDuration, MaxMinutes: 60, Adjustment: 0.01},
		{Kind: PreferenceDuration, MinMinutes: 61, Adjustment: -0.01},
	}

	assert.True(t, prefs[0].Matches(slot))
	assert.Equal(t, -0.3, prefs[0].EffectiveAdjustment())
	assert.False(t, prefs[1].Matches(slot))
	assert.False(t, prefs[2].Matches(slot))
	assert.True(t, prefs[3].Matches(slot))
	assert.Equal(t, -0.05, prefs[3].EffectiveAdjustment())

	mc := meetingContext(70, core.NecessityImportant, slot, nil, 0)
	score, reasons := ScoreMeeting(mc, 0.5, prefs)
	assert.InDelta(t, 0.7-0.3-0.05+0.1, score, 1e-9)
	assert.Len(t, reasons, 5)
}

func TestFindAlternativesSkipsWeekend(t *testing.T) {
	friday := monday.AddDate(0, 0, 4)
	slots := FindAlternatives(nil, time.Hour, on(friday, 16, 30), DefaultMeetingConfig())

	nextMonday := monday.AddDate(0, 0, 7)
	require.Len(t, slots, 3)
	assert.Equal(t, on(nextMonday, 9, 0), slots[0].Start)
	assert.Equal(t, on(nextMonday, 9, 30), slots[1].Start)
	assert.Equal(t, on(nextMonday, 10, 0), slots[2].Start)
}

func TestFindAlternativesRespectsHorizon(t *testing.T) {
	cfg := DefaultMeetingConfig()
	cfg.SearchDays = 1
	busy := []core.CalendarEvent{{Start: on(monday, 9, 0), End: on(monday, 17, 0)}}

	assert.Empty(t, FindAlternatives(busy, time.Hour, on(monday, 8, 0), cfg))
}

func TestProposalWithoutFreeSlotHasLowConfidence(t *testing.T) {
	cfg := DefaultMeetingConfig()
	cfg.SearchDays = 1
	slot := core.TimeSlot{Start: on(monday, 10, 0), End: on(monday, 11, 0)}
	busy := []core.CalendarEvent{{Start: on(monday, 9, 0), End: on(monday, 17, 0)}}
	c := &core.Context{Now: on(monday, 8, 0), Meeting: meetingContext(90, core.NecessityRequired, slot, busy, 0)}

	d := NewEngine(cfg).Decide(core.IntentMeeting, &core.PriorityScore{Score: 50}, c)
	assert.Equal(t, core.ActionProposeAlternative, d.Action.Kind())
	assert.Equal(t, 0.5, d.Confidence)
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	slot := core.TimeSlot{Start: on(monday, 14, 0), End: on(monday, 15, 0)}
	for value := 0; value <= 100; value += 5 {
		for _, n := range []core.Necessity{core.NecessityRequired, core.NecessityFYI} {
			for _, imp := range []float64{0, 0.5, 1} {
				c := &core.Context{Now: monday, SenderImportance: imp, Meeting: meetingContext(value, n, slot, nil, 0)}
				d := newEngine().Decide(core.IntentMeeting, nil, c)
				assert.GreaterOrEqual(t, d.Confidence, 0.0)
				assert.LessOrEqual(t, d.Confidence, 1.0)
			}
		}
	}
}

func TestFeedbackHistoryInReasoning(t *testing.T) {
	c := &core.Context{
		OpenRate: 0.01,
		Feedback: core.FeedbackPattern{SenderDomain: "shop.example", Approved: 4, Rejected: 1},
	}
	d := newEngine().Decide(core.IntentNothing, &core.PriorityScore{Score: 20}, c)
	assert.Equal(t, core.ActionAutoArchive, d.Action.Kind())
	assert.Contains(t, d.Reasoning, "past feedback for shop.example: 4 approved, 1 rejected")

	d = newEngine().Decide(core.IntentNothing, &core.PriorityScore{Score: 20}, &core.Context{OpenRate: 0.01})
	for _, r := range d.Reasoning {
		assert.NotContains(t, r, "past feedback")
	}
}
