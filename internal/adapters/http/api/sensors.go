package api

import (
	"context"
	"net/http"

	"github.com/LdDl/mot-fusion/mot"
)

// SensorsDependencies defines the sensor registry and fusion input operations
type SensorsDependencies interface {
	RegisterSensor(ctx context.Context, sensorID, sensorType string) (mot.SensorInfo, error)
	Sensors(ctx context.Context) []mot.SensorInfo
	SubmitReading(ctx context.Context, reading mot.SensorReading) (mot.FusedOutput, error)
}

// SensorsHandler handles sensor registration and readings
type SensorsHandler struct {
	deps SensorsDependencies
}

// NewSensorsHandler creates a new sensors handler
func NewSensorsHandler(deps SensorsDependencies) *SensorsHandler {
	return &SensorsHandler{deps: deps}
}

// HandleRegister handles POST /sensors/register requests
func (h *SensorsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerSensorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	info, err := h.deps.RegisterSensor(r.Context(), req.SensorID, req.SensorType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerSensorResponse{
		SensorID:   info.SensorID,
		SensorType: string(info.SensorType),
		Status:     "registered",
	})
}

// HandleList handles GET /sensors requests
func (h *SensorsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sensors := h.deps.Sensors(r.Context())
	views := make([]sensorView, 0, len(sensors))
	for _, info := range sensors {
		views = append(views, sensorView{
			SensorID:   info.SensorID,
			SensorType: string(info.SensorType),
			LastUpdate: info.LastUpdate,
			Confidence: info.Confidence,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": views})
}

// HandleTypes handles GET /sensors/types requests
func (h *SensorsHandler) HandleTypes(w http.ResponseWriter, _ *http.Request) {
	types := mot.SensorTypes()
	views := make([]sensorTypeView, 0, len(types))
	for _, st := range types {
		views = append(views, sensorTypeView{Value: string(st), Name: st.Name()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensor_types": views})
}

// HandleData handles POST /sensors/data requests
func (h *SensorsHandler) HandleData(w http.ResponseWriter, r *http.Request) {
	var req sensorDataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	output, err := h.deps.SubmitReading(r.Context(), req.reading())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensorDataResponse{
		Timestamp:        output.Timestamp,
		DetectionCount:   len(output.Tracks),
		ActiveSensors:    output.ActiveSensors,
		ThreatLevel:      output.ThreatLevel,
		PlatformPosition: output.PlatformPosition,
		Detections:       newFusedTrackViews(output.Tracks),
	})
}
