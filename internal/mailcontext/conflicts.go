package mailcontext

import (
	"time"

	"github.com/mikey/mailpilot/internal/core"
)

// DefaultSoftBuffer is the minimum gap wanted between adjacent events
const DefaultSoftBuffer = 15 * time.Minute

// DetectConflicts classifies events clashing with slot. An event that
// overlaps the slot is a hard conflict; one that only overlaps once widened
// by buffer on both sides is a soft conflict.
func DetectConflicts(slot core.TimeSlot, events []core.CalendarEvent, buffer time.Duration) []core.Conflict {
	var conflicts []core.Conflict
	for _, ev := range events {
		if slot.Overlaps(ev.Slot()) {
			conflicts = append(conflicts, core.Conflict{Kind: core.ConflictHard, Event: ev})
			continue
		}
		widened := core.TimeSlot{Start: ev.Start.Add(-buffer), End: ev.End.Add(buffer)}
		if buffer > 0 && slot.Overlaps(widened) {
			conflicts = append(conflicts, core.Conflict{Kind: core.ConflictSoft, Event: ev})
		}
	}
	return conflicts
}
