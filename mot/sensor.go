package mot

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SensorType is the kind of physical source that produced a reading.
type SensorType string

const (
	SensorCameraRGB      SensorType = "camera_rgb"
	SensorCameraIR       SensorType = "camera_ir"
	SensorRadar          SensorType = "radar"
	SensorLidar          SensorType = "lidar"
	SensorGPS            SensorType = "gps"
	SensorIMU            SensorType = "imu"
	SensorAcoustic       SensorType = "acoustic"
	SensorRFDetector     SensorType = "rf_detector"
	SensorDroneTelemetry SensorType = "drone_telemetry"
)

var sensorTypes = []SensorType{
	SensorCameraRGB,
	SensorCameraIR,
	SensorRadar,
	SensorLidar,
	SensorGPS,
	SensorIMU,
	SensorAcoustic,
	SensorRFDetector,
	SensorDroneTelemetry,
}

// ErrUnknownSensorType is returned by ParseSensorType for unsupported values
var ErrUnknownSensorType = errors.New("unknown sensor type")

// SensorTypes returns every supported sensor type in declaration order
func SensorTypes() []SensorType {
	out := make([]SensorType, len(sensorTypes))
	copy(out, sensorTypes)
	return out
}

// ParseSensorType converts a case-insensitive string to SensorType
func ParseSensorType(s string) (SensorType, error) {
	candidate := SensorType(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range sensorTypes {
		if st == candidate {
			return st, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownSensorType, "'%s'", s)
}

// Name returns Go-style constant name of the sensor type, e.g. "CAMERA_RGB"
func (st SensorType) Name() string {
	if st == SensorDroneTelemetry {
		return "DRONE_TELEMETRY"
	}
	return strings.ToUpper(string(st))
}

// providesPlatformPose reports whether readings of this type describe the platform itself
func (st SensorType) providesPlatformPose() bool {
	return st == SensorGPS || st == SensorDroneTelemetry
}

// SensorReading is one sensor's observation at one instant.
// Readings are treated as immutable by the engines. An empty ID is replaced
// with a random UUID and a zero Timestamp with the engine clock.
// Confidence describes the reading as a whole and is 1.0 unless the sensor
// reports otherwise.
type SensorReading struct {
	ID            string         `json:"id"`
	SensorID      string         `json:"sensor_id"`
	SensorType    SensorType     `json:"sensor_type"`
	Timestamp     time.Time      `json:"timestamp"`
	Detections    []Detection    `json:"detections"`
	Position      *Vector3       `json:"position,omitempty"`
	Velocity      *Vector3       `json:"velocity,omitempty"`
	RawData       map[string]any `json:"raw_data,omitempty"`
	Confidence    float64        `json:"confidence"`
	NoiseEstimate float64        `json:"noise_estimate"`
}

// SensorInfo is the registry entry the fusion engine keeps per sensor
type SensorInfo struct {
	SensorID   string     `json:"sensor_id"`
	SensorType SensorType `json:"sensor_type"`
	LastUpdate time.Time  `json:"last_update"`
	Confidence float64    `json:"confidence"`
}
