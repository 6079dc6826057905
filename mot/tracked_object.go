package mot

import (
	"fmt"
	"strings"
	"time"
)

// TrackedObject is a persistent identity maintained by Tracker across frames.
type TrackedObject struct {
	TrackID       string     `json:"track_id"`
	ClassName     string     `json:"class"`
	Confidence    float64    `json:"confidence"`
	BBox          Rectangle  `json:"bbox"`
	PredictedBBox *Rectangle `json:"predicted_bbox,omitempty"`
	Velocity      Vector2    `json:"velocity"`
	Acceleration  Vector2    `json:"acceleration"`
	Hits          int        `json:"hits"`
	Misses        int        `json:"misses"`
	Age           int        `json:"age"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
	Confirmed     bool       `json:"confirmed"`
	Lost          bool       `json:"lost"`
}

func formatTrackedObjectID(seq int) string {
	return fmt.Sprintf("OBJ-%05d", seq)
}

func newTrackedObject(trackID string, detection Detection, now time.Time, minHits int) *TrackedObject {
	obj := &TrackedObject{
		TrackID:    trackID,
		ClassName:  detection.ClassOrDefault(),
		Confidence: detection.ConfidenceOrDefault(),
		BBox:       detection.BBoxOrDefault(),
		Hits:       1,
		FirstSeen:  now,
		LastSeen:   now,
	}
	if obj.Hits >= minHits {
		obj.Confirmed = true
	}
	return obj
}

// predict projects the box center by velocity*dt, keeping the box size
func (obj *TrackedObject) predict(dt float64) {
	predicted := obj.BBox.Translate(obj.Velocity.X*dt, obj.Velocity.Y*dt)
	obj.PredictedBBox = &predicted
}

// matchBBox is the box used for association: prediction if present, current box otherwise
func (obj *TrackedObject) matchBBox() Rectangle {
	if obj.PredictedBBox != nil {
		return *obj.PredictedBBox
	}
	return obj.BBox
}

// update applies matched detection. Velocity is exponentially smoothed from the
// centroid displacement scaled to units per second; acceleration is smoothed
// from the velocity change the same way.
func (obj *TrackedObject) update(detection Detection, now time.Time, cfg TrackerConfig) {
	newBBox := detection.BBoxOr(obj.BBox)

	oldCenter := obj.BBox.Center()
	newCenter := newBBox.Center()
	alpha := cfg.VelocityAlpha
	prevVelocity := obj.Velocity
	obj.Velocity = Vector2{
		X: alpha*(newCenter.X-oldCenter.X)*cfg.FrameRate + (1-alpha)*obj.Velocity.X,
		Y: alpha*(newCenter.Y-oldCenter.Y)*cfg.FrameRate + (1-alpha)*obj.Velocity.Y,
	}
	obj.Acceleration = Vector2{
		X: alpha*(obj.Velocity.X-prevVelocity.X)*cfg.FrameRate + (1-alpha)*obj.Acceleration.X,
		Y: alpha*(obj.Velocity.Y-prevVelocity.Y)*cfg.FrameRate + (1-alpha)*obj.Acceleration.Y,
	}

	obj.BBox = newBBox
	if detection.Confidence != nil {
		obj.Confidence = detection.ConfidenceOrDefault()
	}
	if strings.TrimSpace(detection.Class) != "" {
		obj.ClassName = detection.ClassOrDefault()
	}
	obj.Hits++
	obj.Misses = 0
	obj.Age++
	obj.LastSeen = now

	// Confirm track after enough hits
	if obj.Hits >= cfg.MinHits {
		obj.Confirmed = true
	}
}

// markMissed is called when no detection was assigned during the frame
func (obj *TrackedObject) markMissed(maxMisses int) {
	obj.Misses++
	obj.Age++
	// Use prediction as current position
	if obj.PredictedBBox != nil {
		obj.BBox = *obj.PredictedBBox
	}
	if obj.Misses > maxMisses {
		obj.Lost = true
	}
}

// active reports whether the track is returned by Tracker.Update
func (obj *TrackedObject) active() bool {
	return obj.Confirmed && !obj.Lost
}

func (obj *TrackedObject) clone() TrackedObject {
	cp := *obj
	if obj.PredictedBBox != nil {
		predicted := *obj.PredictedBBox
		cp.PredictedBBox = &predicted
	}
	return cp
}
