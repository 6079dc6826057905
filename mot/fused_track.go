package mot

import (
	"fmt"
	"time"
)

// FusedTrack is a scene identity maintained by FusionEngine across all sensors.
type FusedTrack struct {
	TrackID          string    `json:"track_id"`
	Position         Vector3   `json:"position"`
	Velocity         *Vector3  `json:"velocity,omitempty"`
	ClassName        string    `json:"class"`
	ClassConfidence  float64   `json:"class_confidence"`
	BBox             Rectangle `json:"bbox"`
	SensorSources    []string  `json:"sensor_sources"`
	FusionConfidence float64   `json:"fusion_confidence"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	AgeFrames        int       `json:"age_frames"`
}

// FusedOutput is the snapshot returned by every FusionEngine.Update call.
// DegradedSensors is reserved for sensor-health reporting and is always empty.
type FusedOutput struct {
	Timestamp           time.Time    `json:"timestamp"`
	Tracks              []FusedTrack `json:"tracks"`
	PlatformPosition    *Vector3     `json:"platform_position,omitempty"`
	PlatformOrientation *Vector3     `json:"platform_orientation,omitempty"`
	VisibilityEstimate  float64      `json:"visibility_estimate"`
	ThreatLevel         ThreatLevel  `json:"threat_level"`
	ActiveSensors       []string     `json:"active_sensors"`
	DegradedSensors     []string     `json:"degraded_sensors"`
}

func formatFusedTrackID(seq int) string {
	return fmt.Sprintf("T%04d", seq)
}

// hasSource reports whether sensorID already contributed to the track
func (track *FusedTrack) hasSource(sensorID string) bool {
	for _, source := range track.SensorSources {
		if source == sensorID {
			return true
		}
	}
	return false
}

// refreshFusionConfidence recomputes fusion confidence from sensor agreement and class confidence
func (track *FusedTrack) refreshFusionConfidence() {
	track.FusionConfidence = clamp01(0.3*float64(len(track.SensorSources)) + 0.4*track.ClassConfidence)
}

// clone returns a deep copy so callers can't mutate engine state
func (track *FusedTrack) clone() FusedTrack {
	cp := *track
	cp.SensorSources = append([]string(nil), track.SensorSources...)
	if track.Velocity != nil {
		v := *track.Velocity
		cp.Velocity = &v
	}
	return cp
}
