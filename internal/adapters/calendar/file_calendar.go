package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// fileEvent is the YAML form of an event
type fileEvent struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type calendarFile struct {
	Events []fileEvent `yaml:"events"`
}

// FileCalendar keeps events in a YAML file
type FileCalendar struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileCalendar creates a calendar backed by the YAML file at path; the file may not exist yet
func NewFileCalendar(path string, logger *zap.Logger) *FileCalendar {
	return &FileCalendar{path: path, logger: logger}
}

// ListEvents reads all events from the file
func (c *FileCalendar) ListEvents(_ context.Context) ([]core.CalendarEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.read()
	if err != nil {
		return nil, err
	}
	events := make([]core.CalendarEvent, 0, len(f.Events))
	for i, fe := range f.Events {
		ev, err := fe.toEvent()
		if err != nil {
			return nil, fmt.Errorf("invalid event %d in %s: %w", i, c.path, err)
		}
		events = append(events, ev)
	}
	sortEvents(events)
	return events, nil
}

// CreateEvent appends an event to the file
func (c *FileCalendar) CreateEvent(_ context.Context, ev core.CalendarEvent) (string, error) {
	if !ev.End.After(ev.Start) {
		return "", fmt.Errorf("event ends before it starts")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.read()
	if err != nil {
		return "", err
	}
	for _, existing := range f.Events {
		if existing.ID == ev.ID {
			return ev.ID, nil
		}
	}
	f.Events = append(f.Events, fileEvent{
		ID:    ev.ID,
		Title: ev.Title,
		Start: ev.Start.Format(time.RFC3339),
		End:   ev.End.Format(time.RFC3339),
	})
	if err := c.write(f); err != nil {
		return "", err
	}

	c.logger.Info("Calendar event created",
		zap.String("event_id", ev.ID),
		zap.String("title", ev.Title),
		zap.Time("start", ev.Start))
	return ev.ID, nil
}

func (c *FileCalendar) read() (*calendarFile, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return &calendarFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}

	var f calendarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse calendar %s: %w", c.path, err)
	}
	return &f, nil
}

func (c *FileCalendar) write(f *calendarFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create calendar directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace calendar: %w", err)
	}
	return nil
}

func (fe fileEvent) toEvent() (core.CalendarEvent, error) {
	start, err := time.Parse(time.RFC3339, fe.Start)
	if err != nil {
		return core.CalendarEvent{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, fe.End)
	if err != nil {
		return core.CalendarEvent{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return core.CalendarEvent{}, fmt.Errorf("event %q ends before it starts", fe.ID)
	}
	return core.CalendarEvent{ID: fe.ID, Title: fe.Title, Start: start, End: end}, nil
}
