package api

import (
	"encoding/json"
	"math"
	"time"

	"github.com/LdDl/mot-fusion/mot"
)

// detectionRequest accepts the loose detection objects sent by sensors:
// "class", "confidence" and "bbox" ([x, y, w, h]) are recognized and every
// other key is kept in Extra.
type detectionRequest struct {
	mot.Detection
}

func (d *detectionRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	det := mot.Detection{}
	for key, value := range raw {
		switch key {
		case "class":
			var class string
			if json.Unmarshal(value, &class) == nil {
				det.Class = class
			}
		case "confidence":
			var confidence *float64
			if json.Unmarshal(value, &confidence) == nil && confidence != nil {
				det.Confidence = confidence
			}
		case "bbox":
			var xywh []float64
			if json.Unmarshal(value, &xywh) == nil {
				if bbox, ok := mot.NewRectFromSlice(xywh); ok {
					det.BBox = &bbox
				}
			}
		default:
			var extra any
			if json.Unmarshal(value, &extra) == nil {
				if det.Extra == nil {
					det.Extra = make(map[string]any)
				}
				det.Extra[key] = extra
			}
		}
	}
	d.Detection = det
	return nil
}

func toDetections(reqs []detectionRequest) []mot.Detection {
	detections := make([]mot.Detection, len(reqs))
	for i := range reqs {
		detections[i] = reqs[i].Detection
	}
	return detections
}

type registerSensorRequest struct {
	SensorID   string `json:"sensor_id"`
	SensorType string `json:"sensor_type"`
}

type registerSensorResponse struct {
	SensorID   string `json:"sensor_id"`
	SensorType string `json:"sensor_type"`
	Status     string `json:"status"`
}

type sensorDataRequest struct {
	SensorID      string             `json:"sensor_id"`
	SensorType    string             `json:"sensor_type"`
	Detections    []detectionRequest `json:"detections"`
	Position      *mot.Vector3       `json:"position"`
	Velocity      *mot.Vector3       `json:"velocity"`
	RawData       map[string]any     `json:"raw_data"`
	Confidence    *float64           `json:"confidence"`
	NoiseEstimate *float64           `json:"noise_estimate"`
}

// reading converts the request into a sensor reading. Unknown sensor types
// fall back to camera_rgb and a missing confidence means 1.0.
func (req sensorDataRequest) reading() mot.SensorReading {
	sensorType, err := mot.ParseSensorType(req.SensorType)
	if err != nil {
		sensorType = mot.SensorCameraRGB
	}
	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	reading := mot.SensorReading{
		SensorID:   req.SensorID,
		SensorType: sensorType,
		Detections: toDetections(req.Detections),
		Position:   req.Position,
		Velocity:   req.Velocity,
		RawData:    req.RawData,
		Confidence: confidence,
	}
	if req.NoiseEstimate != nil {
		reading.NoiseEstimate = *req.NoiseEstimate
	}
	return reading
}

type trackingUpdateRequest struct {
	Detections []detectionRequest `json:"detections"`
}

type sensorView struct {
	SensorID   string    `json:"sensor_id"`
	SensorType string    `json:"sensor_type"`
	LastUpdate time.Time `json:"last_update"`
	Confidence float64   `json:"confidence"`
}

type sensorTypeView struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

type fusedTrackView struct {
	TrackID          string       `json:"track_id"`
	Class            string       `json:"class"`
	Confidence       float64      `json:"confidence"`
	FusionConfidence float64      `json:"fusion_confidence"`
	BBox             []float64    `json:"bbox"`
	Position         mot.Vector3  `json:"position"`
	Velocity         *mot.Vector3 `json:"velocity"`
	SensorSources    []string     `json:"sensor_sources"`
	FirstSeen        time.Time    `json:"first_seen"`
	LastSeen         time.Time    `json:"last_seen"`
	AgeFrames        int          `json:"age_frames"`
}

func newFusedTrackView(track mot.FusedTrack) fusedTrackView {
	return fusedTrackView{
		TrackID:          track.TrackID,
		Class:            track.ClassName,
		Confidence:       round3(track.ClassConfidence),
		FusionConfidence: round3(track.FusionConfidence),
		BBox:             track.BBox.Slice(),
		Position:         track.Position,
		Velocity:         track.Velocity,
		SensorSources:    track.SensorSources,
		FirstSeen:        track.FirstSeen,
		LastSeen:         track.LastSeen,
		AgeFrames:        track.AgeFrames,
	}
}

func newFusedTrackViews(tracks []mot.FusedTrack) []fusedTrackView {
	views := make([]fusedTrackView, 0, len(tracks))
	for _, track := range tracks {
		views = append(views, newFusedTrackView(track))
	}
	return views
}

type sensorDataResponse struct {
	Timestamp        time.Time        `json:"timestamp"`
	DetectionCount   int              `json:"detection_count"`
	ActiveSensors    []string         `json:"active_sensors"`
	ThreatLevel      mot.ThreatLevel  `json:"threat_level"`
	PlatformPosition *mot.Vector3     `json:"platform_position,omitempty"`
	Detections       []fusedTrackView `json:"detections"`
}

type fusedStateResponse struct {
	Timestamp     time.Time        `json:"timestamp"`
	TrackCount    int              `json:"track_count"`
	ActiveSensors []string         `json:"active_sensors"`
	ThreatLevel   mot.ThreatLevel  `json:"threat_level"`
	Tracks        []fusedTrackView `json:"tracks"`
}

type trackedObjectView struct {
	TrackID       string      `json:"track_id"`
	Class         string      `json:"class"`
	Confidence    float64     `json:"confidence"`
	BBox          []float64   `json:"bbox"`
	PredictedBBox []float64   `json:"predicted_bbox"`
	Velocity      mot.Vector2 `json:"velocity"`
	Acceleration  mot.Vector2 `json:"acceleration"`
	Hits          int         `json:"hits"`
	Misses        int         `json:"misses"`
	Age           int         `json:"age"`
	IsConfirmed   bool        `json:"is_confirmed"`
	IsLost        bool        `json:"is_lost"`
	FirstSeen     time.Time   `json:"first_seen"`
	LastSeen      time.Time   `json:"last_seen"`
}

func newTrackedObjectView(obj mot.TrackedObject) trackedObjectView {
	view := trackedObjectView{
		TrackID:      obj.TrackID,
		Class:        obj.ClassName,
		Confidence:   round3(obj.Confidence),
		BBox:         obj.BBox.Slice(),
		Velocity:     obj.Velocity,
		Acceleration: obj.Acceleration,
		Hits:         obj.Hits,
		Misses:       obj.Misses,
		Age:          obj.Age,
		IsConfirmed:  obj.Confirmed,
		IsLost:       obj.Lost,
		FirstSeen:    obj.FirstSeen,
		LastSeen:     obj.LastSeen,
	}
	if obj.PredictedBBox != nil {
		view.PredictedBBox = obj.PredictedBBox.Slice()
	}
	return view
}

func newTrackedObjectViews(objs []mot.TrackedObject) []trackedObjectView {
	views := make([]trackedObjectView, 0, len(objs))
	for _, obj := range objs {
		views = append(views, newTrackedObjectView(obj))
	}
	return views
}

type trackingUpdateResponse struct {
	Timestamp       time.Time           `json:"timestamp"`
	ConfirmedTracks int                 `json:"confirmed_tracks"`
	TotalTracks     int                 `json:"total_tracks"`
	Tracks          []trackedObjectView `json:"tracks"`
}

type trackingTracksResponse struct {
	ConfirmedCount  int                 `json:"confirmed_count"`
	TotalCount      int                 `json:"total_count"`
	ConfirmedTracks []trackedObjectView `json:"confirmed_tracks"`
}

type resetResponse struct {
	Message string `json:"message"`
	Tracks  int    `json:"tracks"`
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
