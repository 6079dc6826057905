// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/LdDl/mot-fusion/internal/service"
	"github.com/LdDl/mot-fusion/mot"
	"github.com/LdDl/mot-fusion/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	RegisterSensor(ctx context.Context, sensorID, sensorType string) (mot.SensorInfo, error)
	Sensors(ctx context.Context) []mot.SensorInfo
	SubmitReading(ctx context.Context, reading mot.SensorReading) (mot.FusedOutput, error)
	FusedTracks(ctx context.Context) service.FusedState
	FusedTrack(ctx context.Context, trackID string) (mot.FusedTrack, error)

	UpdateTracking(ctx context.Context, detections []mot.Detection) service.TrackingSnapshot
	TrackingState(ctx context.Context) service.TrackingSnapshot
	TrackedObject(ctx context.Context, trackID string) (mot.TrackedObject, error)
	ResetTracking(ctx context.Context)

	Stats(ctx context.Context) service.Stats
}

// Server wires HTTP routes for the fusion API.
type Server struct {
	sensorsHandler  *SensorsHandler
	fusedHandler    *FusedHandler
	trackingHandler *TrackingHandler
	healthHandler   *HealthHandler

	metricsHandler http.Handler
	streamHandler  http.Handler
	recorder       HTTPRecorder
	logger         logger.Logger
}

// ServerOption configures Server.
type ServerOption func(*Server)

// WithMetricsHandler exposes handler at /metrics.
func WithMetricsHandler(handler http.Handler) ServerOption {
	return func(s *Server) {
		s.metricsHandler = handler
	}
}

// WithStreamHandler exposes handler at /stream.
func WithStreamHandler(handler http.Handler) ServerOption {
	return func(s *Server) {
		s.streamHandler = handler
	}
}

// WithRecorder sets the HTTP metrics sink used by MetricsMiddleware.
func WithRecorder(recorder HTTPRecorder) ServerOption {
	return func(s *Server) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithLogger sets the logger for route registration messages.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{
		sensorsHandler:  NewSensorsHandler(deps),
		fusedHandler:    NewFusedHandler(deps),
		trackingHandler: NewTrackingHandler(deps),
		healthHandler:   NewHealthHandler(deps),
		recorder:        nopRecorder{},
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(s.recorder, h, endpoint))
	}

	route("POST /sensors/register", "sensors_register", s.sensorsHandler.HandleRegister)
	route("GET /sensors", "sensors_list", s.sensorsHandler.HandleList)
	route("GET /sensors/types", "sensors_types", s.sensorsHandler.HandleTypes)
	route("POST /sensors/data", "sensors_data", s.sensorsHandler.HandleData)
	route("GET /sensors/fused", "fused_state", s.fusedHandler.HandleState)
	route("GET /sensors/fused/track/{id}", "fused_track", s.fusedHandler.HandleTrack)

	route("POST /tracking/update", "tracking_update", s.trackingHandler.HandleUpdate)
	route("GET /tracking/tracks", "tracking_tracks", s.trackingHandler.HandleTracks)
	route("GET /tracking/track/{id}", "tracking_track", s.trackingHandler.HandleTrack)
	route("POST /tracking/reset", "tracking_reset", s.trackingHandler.HandleReset)

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.healthHandler.HandleStats)

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.streamHandler != nil {
		mux.Handle("GET /stream", s.streamHandler)
	}
	s.logger.Debug(ctx, "http routes registered",
		logger.Bool("metrics", s.metricsHandler != nil),
		logger.Bool("stream", s.streamHandler != nil),
	)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service error kinds to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "not_found", errors.New("track not found"))
	case errors.Is(err, service.ErrInvalidSensorType):
		writeError(w, http.StatusBadRequest, "invalid_sensor_type",
			fmt.Errorf("invalid sensor type, valid types: %v", mot.SensorTypes()))
	case errors.Is(err, service.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeJSON reads a request body into v. Errors wrap ErrBadRequest.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", ErrBadRequest, err)
	}
	return nil
}
