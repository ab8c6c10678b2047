package policy

import (
	"fmt"
	"time"

	"github.com/mikey/mailpilot/internal/core"
)

// MeetingConfig tunes the meeting sub-policy
type MeetingConfig struct {
	// Disabled turns the weighted sub-policy off; wants_meeting is then
	// decided by the plain matrix row.
	Disabled            bool
	AutoAcceptThreshold float64
	DeclineBelow        float64
	BusinessStartHour   int
	BusinessEndHour     int
	SearchDays          int
	MaxAlternatives     int
	SlotStep            time.Duration
	SkipWeekends        bool
	Preferences         []PreferenceRule
}

// DefaultMeetingConfig returns the stock meeting sub-policy settings
func DefaultMeetingConfig() MeetingConfig {
	return MeetingConfig{
		AutoAcceptThreshold: 0.7,
		DeclineBelow:        0.3,
		BusinessStartHour:   9,
		BusinessEndHour:     17,
		SearchDays:          14,
		MaxAlternatives:     3,
		SlotStep:            30 * time.Minute,
		SkipWeekends:        true,
	}
}

var necessityAdjustment = map[core.Necessity]float64{
	core.NecessityRequired:  0.2,
	core.NecessityImportant: 0.1,
	core.NecessityOptional:  -0.1,
	core.NecessityFYI:       -0.2,
}

// ScoreMeeting computes the weighted acceptance score in [0,1]
func ScoreMeeting(mc *core.MeetingContext, senderImportance float64, prefs []PreferenceRule) (float64, []string) {
	score := float64(mc.Request.ValueScore) / 100
	reasons := []string{fmt.Sprintf("meeting value %d/100", mc.Request.ValueScore)}

	if len(mc.HardConflicts()) > 0 {
		score -= 0.5
		reasons = append(reasons, fmt.Sprintf("%d hard calendar conflict(s)", len(mc.HardConflicts())))
	}

	importance := (senderImportance - 0.5) * 0.3
	score += importance
	reasons = append(reasons, fmt.Sprintf("sender importance %+.2f", importance))

	for _, rule := range prefs {
		if rule.Matches(mc.Request.Slot) {
			score += rule.EffectiveAdjustment()
			reasons = append(reasons, rule.String())
		}
	}

	if adj, ok := necessityAdjustment[mc.Request.Necessity]; ok {
		score += adj
		reasons = append(reasons, fmt.Sprintf("necessity %s %+.1f", mc.Request.Necessity, adj))
	}

	return core.ClampConfidence(score), reasons
}

// FindAlternatives scans forward from `from` for free slots of the given
// duration inside business hours, skipping any that overlap an event.
func FindAlternatives(events []core.CalendarEvent, duration time.Duration, from time.Time, cfg MeetingConfig) []core.TimeSlot {
	if duration <= 0 || cfg.MaxAlternatives <= 0 {
		return nil
	}
	step := cfg.SlotStep
	if step <= 0 {
		step = 30 * time.Minute
	}

	loc := from.Location()
	horizon := from.AddDate(0, 0, cfg.SearchDays)
	var found []core.TimeSlot

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for ; day.Before(horizon) && len(found) < cfg.MaxAlternatives; day = day.AddDate(0, 0, 1) {
		if cfg.SkipWeekends && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		open := time.Date(day.Year(), day.Month(), day.Day(), cfg.BusinessStartHour, 0, 0, 0, loc)
		closeAt := time.Date(day.Year(), day.Month(), day.Day(), cfg.BusinessEndHour, 0, 0, 0, loc)

		for start := open; !start.Add(duration).After(closeAt); start = start.Add(step) {
			if start.Before(from) || !start.Before(horizon) {
				continue
			}
			candidate := core.TimeSlot{Start: start, End: start.Add(duration)}
			if overlapsAny(candidate, events) {
				continue
			}
			found = append(found, candidate)
			if len(found) == cfg.MaxAlternatives {
				break
			}
		}
	}
	return found
}

func overlapsAny(slot core.TimeSlot, events []core.CalendarEvent) bool {
	for _, ev := range events {
		if slot.Overlaps(ev.Slot()) {
			return true
		}
	}
	return false
}
