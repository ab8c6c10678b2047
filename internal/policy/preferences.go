package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikey/mailpilot/internal/core"
)

const (
	minAdjustment = 0.05
	maxAdjustment = 0.3
)

// PreferenceKind selects which property of a slot a rule looks at
type PreferenceKind string

const (
	PreferenceDay      PreferenceKind = "day"
	PreferenceTime     PreferenceKind = "time"
	PreferenceDuration PreferenceKind = "duration"
)

// PreferenceRule nudges the meeting score when a slot matches
type PreferenceRule struct {
	Kind PreferenceKind `mapstructure:"kind"`
	// Days matches weekday names ("monday") for day rules
	Days []string `mapstructure:"days"`
	// StartHour/EndHour bound the slot start for time rules, [start, end)
	StartHour int `mapstructure:"start_hour"`
	EndHour   int `mapstructure:"end_hour"`
	// MinMinutes/MaxMinutes bound the duration for duration rules; 0 means unbounded
	MinMinutes int     `mapstructure:"min_minutes"`
	MaxMinutes int     `mapstructure:"max_minutes"`
	Adjustment float64 `mapstructure:"adjustment"`
}

// Matches reports whether slot satisfies the rule
func (r PreferenceRule) Matches(slot core.TimeSlot) bool {
	switch r.Kind {
	case PreferenceDay:
		day := strings.ToLower(slot.Start.Weekday().String())
		for _, d := range r.Days {
			if strings.EqualFold(strings.TrimSpace(d), day) {
				return true
			}
		}
		return false
	case PreferenceTime:
		h := slot.Start.Hour()
		return h >= r.StartHour && h < r.EndHour
	case PreferenceDuration:
		minutes := int(slot.Duration() / time.Minute)
		if r.MinMinutes > 0 && minutes < r.MinMinutes {
			return false
		}
		if r.MaxMinutes > 0 && minutes > r.MaxMinutes {
			return false
		}
		return r.MinMinutes > 0 || r.MaxMinutes > 0
	default:
		return false
	}
}

// EffectiveAdjustment keeps the magnitude of a rule's adjustment within [0.05, 0.3]
func (r PreferenceRule) EffectiveAdjustment() float64 {
	a := r.Adjustment
	if a == 0 {
		return 0
	}
	sign := 1.0
	if a < 0 {
		sign, a = -1, -a
	}
	if a < minAdjustment {
		a = minAdjustment
	}
	if a > maxAdjustment {
		a = maxAdjustment
	}
	return sign * a
}

func (r PreferenceRule) String() string {
	return fmt.Sprintf("%s preference %+.2f", r.Kind, r.EffectiveAdjustment())
}
