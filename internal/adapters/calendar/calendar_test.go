package calendar

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func TestMemoryCalendar(t *testing.T) {
	c := NewMemoryCalendar(core.CalendarEvent{ID: "b", Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour)})
	id, err := c.CreateEvent(context.Background(), core.CalendarEvent{Title: "Standup", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	events, err := c.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, "b", events[1].ID)
}

func TestFileCalendarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal", "calendar.yaml")
	c := NewFileCalendar(path, zap.NewNop())
	ctx := context.Background()

	events, err := c.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	ev := core.CalendarEvent{ID: "e1", Title: "Planning", Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}
	id, err := c.CreateEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "e1", id)

	// creating the same event again is a no-op
	_, err = c.CreateEvent(ctx, ev)
	require.NoError(t, err)

	events, err = NewFileCalendar(path, zap.NewNop()).ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, ev.Start.Equal(events[0].Start))
	assert.True(t, ev.End.Equal(events[0].End))
	assert.Equal(t, "Planning", events[0].Title)
}

func TestFileCalendarReadsHandWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
events:
  - id: lunch
    title: Lunch
    start: "2026-10-19T12:00:00Z"
    end: "2026-10-19T13:00:00Z"
  - id: board
    title: Board
    start: "2026-10-19T09:00:00+02:00"
    end: "2026-10-19T10:00:00+02:00"
`), 0o600))

	events, err := NewFileCalendar(path, zap.NewNop()).ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "board", events[0].ID)
}

func TestFileCalendarRejectsInvalidEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events:\n  - id: x\n    start: tomorrow\n    end: later\n"), 0o600))

	_, err := NewFileCalendar(path, zap.NewNop()).ListEvents(context.Background())
	assert.Error(t, err)

	_, err = NewFileCalendar(filepath.Join(t.TempDir(), "c.yaml"), zap.NewNop()).
		CreateEvent(context.Background(), core.CalendarEvent{Start: day.Add(time.Hour), End: day})
	assert.Error(t, err)
}
