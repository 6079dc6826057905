package mot

import "strings"

// ThreatLevel is the scene-wide categorical threat summary
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "LOW"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatCritical ThreatLevel = "CRITICAL"
)

// DefaultUnknownThreatWeight is the base weight of classes missing from the weights table
const DefaultUnknownThreatWeight = 0.1

// DefaultThreatWeights returns the default per-class base threat weights
func DefaultThreatWeights() map[string]float64 {
	return map[string]float64{
		"person":   0.2,
		"vehicle":  0.3,
		"aircraft": 0.5,
		"weapon":   0.9,
	}
}

// Ordinal returns 0 for LOW up to 3 for CRITICAL
func (tl ThreatLevel) Ordinal() int {
	switch tl {
	case ThreatMedium:
		return 1
	case ThreatHigh:
		return 2
	case ThreatCritical:
		return 3
	default:
		return 0
	}
}

// ThreatLevelFromScore maps a [0, 1] threat score to a level
func ThreatLevelFromScore(score float64) ThreatLevel {
	switch {
	case score > 0.7:
		return ThreatCritical
	case score > 0.5:
		return ThreatHigh
	case score > 0.3:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// ThreatScore returns the highest class weight × fusion confidence among tracks.
// Class names are matched case-insensitively against weights; unknown classes
// weigh DefaultUnknownThreatWeight.
func ThreatScore(tracks []FusedTrack, weights map[string]float64) float64 {
	maxThreat := 0.0
	for i := range tracks {
		classThreat, ok := weights[strings.ToLower(tracks[i].ClassName)]
		if !ok {
			classThreat = DefaultUnknownThreatWeight
		}
		trackThreat := classThreat * tracks[i].FusionConfidence
		if trackThreat > maxThreat {
			maxThreat = trackThreat
		}
	}
	return maxThreat
}

// AssessThreat computes ThreatLevel for the given tracks
func AssessThreat(tracks []FusedTrack, weights map[string]float64) ThreatLevel {
	return ThreatLevelFromScore(ThreatScore(tracks, weights))
}
