package calendar

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mikey/mailpilot/internal/core"
)

// MemoryCalendar is an in-memory implementation of core.Calendar
type MemoryCalendar struct {
	mu     sync.RWMutex
	events []core.CalendarEvent
}

// NewMemoryCalendar creates a calendar holding events
func NewMemoryCalendar(events ...core.CalendarEvent) *MemoryCalendar {
	return &MemoryCalendar{events: append([]core.CalendarEvent(nil), events...)}
}

// ListEvents returns all events ordered by start
func (c *MemoryCalendar) ListEvents(_ context.Context) ([]core.CalendarEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := append([]core.CalendarEvent(nil), c.events...)
	sortEvents(out)
	return out, nil
}

// CreateEvent adds an event, assigning an id when it has none
func (c *MemoryCalendar) CreateEvent(_ context.Context, ev core.CalendarEvent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	c.events = append(c.events, ev)
	return ev.ID, nil
}

func sortEvents(events []core.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
