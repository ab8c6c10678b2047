package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedThreshold float64

func (f fixedThreshold) Threshold() float64 { return float64(f) }

type call struct {
	verb string
	arg  string
}

type fakeMailbox struct {
	mu    sync.Mutex
	calls []call
	err   error
	delay time.Duration
}

func (m *fakeMailbox) record(verb, arg string) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, call{verb, arg})
	return nil
}

func (m *fakeMailbox) Calls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

func (m *fakeMailbox) Reply(_ context.Context, _ *core.Message, body string) error {
	return m.record("reply", body)
}
func (m *fakeMailbox) Archive(context.Context, *core.Message) error { return m.record("archive", "") }
func (m *fakeMailbox) Forward(_ context.Context, _ *core.Message, to, _ string) error {
	return m.record("forward", to)
}
func (m *fakeMailbox) SnoozeUntil(_ context.Context, _ *core.Message, until time.Time) error {
	return m.record("snooze", until.Format(time.RFC3339))
}
func (m *fakeMailbox) Unsubscribe(_ context.Context, _ *core.Message, target string) error {
	return m.record("unsubscribe", target)
}
func (m *fakeMailbox) FlagForReview(_ context.Context, _ *core.Message, reason string) error {
	return m.record("flag", reason)
}

type fakeCalendar struct {
	created []core.CalendarEvent
}

func (c *fakeCalendar) ListEvents(context.Context) ([]core.CalendarEvent, error) { return c.created, nil }
func (c *fakeCalendar) CreateEvent(_ context.Context, ev core.CalendarEvent) (string, error) {
	c.created = append(c.created, ev)
	return ev.ID, nil
}

type fakeLedger struct {
	mu     sync.Mutex
	claims map[string]bool
}

func (l *fakeLedger) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claims == nil {
		l.claims = map[string]bool{}
	}
	if l.claims[key] {
		return false, nil
	}
	l.claims[key] = true
	return true, nil
}

func (l *fakeLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, key)
	return nil
}

type fakeSettings struct {
	values map[string]string
}

func (s *fakeSettings) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", core.ErrNotFound
	}
	return v, nil
}

func (s *fakeSettings) SetSetting(_ context.Context, key, value string) error {
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
	return nil
}

type harness struct {
	mailbox  *fakeMailbox
	calendar *fakeCalendar
	ledger   *fakeLedger
	settings *fakeSettings
	gate     *Gate
}

func newHarness(threshold float64, autonomy bool) *harness {
	h := &harness{
		mailbox:  &fakeMailbox{},
		calendar: &fakeCalendar{},
		ledger:   &fakeLedger{},
		settings: &fakeSettings{},
	}
	d := NewDispatcher(h.mailbox, h.calendar, h.ledger, zap.NewNop(), nil)
	h.gate = NewGate(fixedThreshold(threshold), d, h.settings, autonomy, zap.NewNop(), nil)
	return h
}

func testMessage() *core.Message {
	return &core.Message{ID: "msg-1", From: "news@shop.example", Subject: "Weekly deals"}
}

func decision(action core.Action, confidence float64) *core.Decision {
	return &core.Decision{ID: "d-1", MessageID: "msg-1", Action: action, Confidence: confidence, Outcome: core.OutcomePending}
}

func TestApplyTruthTable(t *testing.T) {
	tests := []struct {
		name         string
		confidence   float64
		autonomy     bool
		wantApproval bool
		wantOutcome  core.Outcome
		wantCalls    int
	}{
		{"above threshold with autonomy", 0.9, true, false, core.OutcomeExecuted, 1},
		{"at threshold with autonomy", 0.85, true, false, core.OutcomeExecuted, 1},
		{"above threshold without autonomy", 0.9, false, true, core.OutcomeSuggested, 0},
		{"below threshold with autonomy", 0.84, true, true, core.OutcomeEscalated, 0},
		{"below threshold without autonomy", 0.1, false, true, core.OutcomeEscalated, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(0.85, tt.autonomy)
			d := decision(core.AutoArchive{}, tt.confidence)

			require.NoError(t, h.gate.Apply(context.Background(), testMessage(), d))
			assert.Equal(t, tt.wantApproval, d.RequiresApproval)
			assert.Equal(t, tt.wantOutcome, d.Outcome)
			assert.Len(t, h.mailbox.Calls(), tt.wantCalls)
		})
	}
}

func TestApplyCancelledContextDoesNotDispatch(t *testing.T) {
	h := newHarness(0.5, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.gate.Apply(ctx, testMessage(), decision(core.AutoArchive{}, 0.99))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.mailbox.Calls())
}

func TestDispatchErrorKeepsDecision(t *testing.T) {
	h := newHarness(0.5, true)
	h.mailbox.err = errors.New("smtp down")
	d := decision(core.AutoReply{Body: "ok"}, 0.9)

	err := h.gate.Apply(context.Background(), testMessage(), d)
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Same(t, d, de.Decision)
	assert.Equal(t, core.OutcomeFailed, d.Outcome)
	assert.True(t, d.RequiresApproval)

	// the claim was released, so a retry goes through
	h.mailbox.err = nil
	require.NoError(t, h.gate.ExecuteApproved(context.Background(), testMessage(), d))
	assert.Equal(t, core.OutcomeExecuted, d.Outcome)
	assert.Len(t, h.mailbox.Calls(), 1)
}

func TestDispatchIsIdempotentPerMessageAndKind(t *testing.T) {
	h := newHarness(0.5, true)
	msg := testMessage()

	require.NoError(t, h.gate.Apply(context.Background(), msg, decision(core.AutoArchive{}, 0.9)))
	require.NoError(t, h.gate.Apply(context.Background(), msg, decision(core.AutoArchive{}, 0.9)))
	require.NoError(t, h.gate.Apply(context.Background(), msg, decision(core.Escalate{Urgency: core.TierHigh, Reason: "x"}, 0.9)))

	calls := h.mailbox.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "archive", calls[0].verb)
	assert.Equal(t, "flag", calls[1].verb)
}

func TestConcurrentDispatchOfOneDecision(t *testing.T) {
	h := newHarness(0.5, true)
	h.mailbox.delay = 10 * time.Millisecond
	d := decision(core.AutoArchive{}, 0.9)
	disp := h.gate.dispatcher

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = disp.Dispatch(context.Background(), testMessage(), d)
		}()
	}
	wg.Wait()
	assert.Len(t, h.mailbox.Calls(), 1)
}

func TestDispatchActions(t *testing.T) {
	slot := core.TimeSlot{
		Start: time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC),
	}
	msg := testMessage()
	msg.ListUnsubscribe = "https://shop.example/unsub"

	tests := []struct {
		action   core.Action
		wantVerb string
		wantArg  string
	}{
		{core.AutoReply{Body: "hi"}, "reply", "hi"},
		{core.AutoArchive{}, "archive", ""},
		{core.Delegate{To: "pa@example.com"}, "forward", "pa@example.com"},
		{core.Escalate{Urgency: core.TierHigh, Reason: "needs you"}, "flag", "[high] needs you"},
		{core.ScheduleFollowUp{Until: slot.Start}, "snooze", "2026-10-20T14:00:00Z"},
		{core.Unsubscribe{}, "unsubscribe", "https://shop.example/unsub"},
		{core.DeclineMeeting{Reason: "busy"}, "reply", ""},
		{core.ProposeAlternative{Slots: []core.TimeSlot{slot}}, "reply", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.action.Kind()), func(t *testing.T) {
			h := newHarness(0, true)
			require.NoError(t, h.gate.dispatcher.Dispatch(context.Background(), msg, decision(tt.action, 1)))

			calls := h.mailbox.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantVerb, calls[0].verb)
			if tt.wantArg != "" {
				assert.Equal(t, tt.wantArg, calls[0].arg)
			}
		})
	}
}

func TestAcceptMeetingCreatesEvent(t *testing.T) {
	h := newHarness(0, true)
	slot := core.TimeSlot{
		Start: time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC),
	}

	d := decision(core.AcceptMeeting{Slot: &slot, Title: "Sync", CreateEvent: true}, 0.9)
	require.NoError(t, h.gate.Apply(context.Background(), testMessage(), d))

	require.Len(t, h.calendar.created, 1)
	assert.Equal(t, "Sync", h.calendar.created[0].Title)
	assert.Equal(t, slot.Start, h.calendar.created[0].Start)
	assert.NotEmpty(t, h.calendar.created[0].ID)
	assert.Contains(t, h.mailbox.Calls()[0].arg, "works for me")
}

func TestUnsubscribeWithoutTargetFails(t *testing.T) {
	h := newHarness(0, true)
	err := h.gate.dispatcher.Dispatch(context.Background(), testMessage(), decision(core.Unsubscribe{}, 1))

	var de *DispatchError
	assert.ErrorAs(t, err, &de)
	assert.Empty(t, h.mailbox.Calls())
}

func TestAutonomyPersistence(t *testing.T) {
	h := newHarness(0.85, false)
	ctx := context.Background()

	require.NoError(t, h.gate.LoadAutonomy(ctx))
	assert.False(t, h.gate.Autonomy())

	require.NoError(t, h.gate.SetAutonomy(ctx, true))
	assert.Equal(t, "true", h.settings.values[AutonomySettingKey])

	other := NewGate(fixedThreshold(0.85), h.gate.dispatcher, h.settings, false, zap.NewNop(), nil)
	require.NoError(t, other.LoadAutonomy(ctx))
	assert.True(t, other.Autonomy())
}

func TestDispatchKeyIsStable(t *testing.T) {
	a := DispatchKey("m", core.ActionAutoArchive)
	assert.Equal(t, a, DispatchKey("m", core.ActionAutoArchive))
	assert.NotEqual(t, a, DispatchKey("m", core.ActionAutoReply))
	assert.Len(t, a, 64)
}
