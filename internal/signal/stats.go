package signal

import (
	"fmt"
	"math"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
)

const (
	// NeutralScore is substituted for any vote that could not be obtained
	NeutralScore = 50
	// UnanimousConfidence is forced when every scorer lands in the same extreme band
	UnanimousConfidence = 0.95

	unanimousHighFloor = 80
	unanimousLowCeil   = 20
)

// Mean returns the arithmetic mean of the vote scores
func Mean(votes []core.SignalVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	sum := 0
	for _, v := range votes {
		sum += v.Score
	}
	return float64(sum) / float64(len(votes))
}

// SampleStdDev returns the sample (n-1) standard deviation, 0 for fewer than two votes
func SampleStdDev(votes []core.SignalVote) float64 {
	if len(votes) < 2 {
		return 0
	}
	mean := Mean(votes)
	var sq float64
	for _, v := range votes {
		d := float64(v.Score) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(votes)-1))
}

// Confidence derives the agreement-based confidence for a vote set
func Confidence(votes []core.SignalVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	if unanimous(votes) {
		return UnanimousConfidence
	}
	return core.ClampConfidence(1 - SampleStdDev(votes)/100)
}

// unanimous reports whether every vote is above 80 or every vote is below 20
func unanimous(votes []core.SignalVote) bool {
	if len(votes) == 0 {
		return false
	}
	allHigh, allLow := true, true
	for _, v := range votes {
		if v.Score <= unanimousHighFloor {
			allHigh = false
		}
		if v.Score >= unanimousLowCeil {
			allLow = false
		}
	}
	return allHigh || allLow
}

// UrgencyTier bands the mean, escalating to critical for urgent subjects
func UrgencyTier(mean float64, subject string, urgencyKeywords []string) core.Tier {
	if _, urgent := utils.ContainsAnyKeyword(subject, urgencyKeywords); urgent && mean > 70 {
		return core.TierCritical
	}
	switch {
	case mean > 80:
		return core.TierHigh
	case mean > 50:
		return core.TierMedium
	default:
		return core.TierLow
	}
}

// ImportanceTier bands the mean with slightly higher cut-offs than urgency
func ImportanceTier(mean float64) core.Tier {
	switch {
	case mean > 85:
		return core.TierCritical
	case mean > 65:
		return core.TierHigh
	case mean > 35:
		return core.TierMedium
	default:
		return core.TierLow
	}
}

// Reduce turns a complete vote set into a PriorityScore
func Reduce(votes []core.SignalVote, subject string, urgencyKeywords []string) *core.PriorityScore {
	mean := Mean(votes)
	stddev := SampleStdDev(votes)
	confidence := Confidence(votes)

	reasoning := []string{
		fmt.Sprintf("%d votes, mean %.1f, stddev %.1f", len(votes), mean, stddev),
	}
	if unanimous(votes) {
		reasoning = append(reasoning, "scorers unanimous")
	}
	for _, v := range votes {
		if v.Neutral {
			reasoning = append(reasoning, fmt.Sprintf("%s: neutral vote (%s)", v.Scorer, v.Note))
		}
	}

	return &core.PriorityScore{
		Score:      mean,
		Confidence: confidence,
		Urgency:    UrgencyTier(mean, subject, urgencyKeywords),
		Importance: ImportanceTier(mean),
		Votes:      votes,
		Reasoning:  reasoning,
	}
}
