package mot

import "strings"

const (
	// DefaultClassName is assigned to detections that carry no class label
	DefaultClassName = "unknown"
	// DefaultConfidence is assigned to detections that carry no confidence
	DefaultConfidence = 0.5
)

// DefaultBBox is used for detections whose bounding box is missing or degenerate.
var DefaultBBox = Rectangle{X: 0, Y: 0, Width: 100, Height: 100}

// Detection is a single raw observation inside a sensor reading or a tracker batch.
// Every field is optional: missing values are replaced by DefaultClassName,
// DefaultConfidence and DefaultBBox when the detection is consumed by an engine.
type Detection struct {
	Class      string         `json:"class,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	BBox       *Rectangle     `json:"bbox,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// NewDetection is a shortcut for a fully populated detection
func NewDetection(class string, confidence float64, bbox Rectangle) Detection {
	return Detection{
		Class:      class,
		Confidence: &confidence,
		BBox:       &bbox,
	}
}

// ClassOrDefault returns the trimmed class label or DefaultClassName
func (d Detection) ClassOrDefault() string {
	class := strings.TrimSpace(d.Class)
	if class == "" {
		return DefaultClassName
	}
	return class
}

// ConfidenceOrDefault returns the confidence clamped to [0, 1] or DefaultConfidence
func (d Detection) ConfidenceOrDefault() float64 {
	if d.Confidence == nil {
		return DefaultConfidence
	}
	return clamp01(*d.Confidence)
}

// BBoxOr returns the detection box, or fallback when the box is missing or degenerate
func (d Detection) BBoxOr(fallback Rectangle) Rectangle {
	if d.BBox == nil || !d.BBox.Valid() {
		return fallback
	}
	return *d.BBox
}

// BBoxOrDefault returns the detection box or DefaultBBox
func (d Detection) BBoxOrDefault() Rectangle {
	return d.BBoxOr(DefaultBBox)
}
