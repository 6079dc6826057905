// Package service owns the scene engines and implements the dependencies
// required by the HTTP API.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/LdDl/mot-fusion/mot"
	"github.com/LdDl/mot-fusion/pkg/logger"
)

// Publisher receives every fused snapshot produced by SubmitReading.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, output mot.FusedOutput) error
}

// Recorder is the metrics sink used by the service.
type Recorder interface {
	RecordReading(sensorType string, detections int)
	RecordFusionCycle(created, removed, live int, latency time.Duration)
	SetThreatLevel(ordinal int)
	RecordEstimatorFailure()
	SetRegisteredSensors(count int)
	RecordTrackerFrame(confirmed, total int, latency time.Duration)
	RecordPublishError(publisher string)
}

// Service holds one FusionEngine and one Tracker. Each engine is guarded by its own mutex,
// so fusion and tracking requests never block each other.
type Service struct {
	fusionMu     sync.Mutex
	// publishMu is taken before fusionMu is released so snapshots leave in fusion order
	publishMu    sync.Mutex
	fusion       *mot.FusionEngine
	fusionConfig mot.FusionConfig
	threatLevel  mot.ThreatLevel
	readings     uint64

	trackerMu     sync.Mutex
	tracker       *mot.Tracker
	trackerConfig mot.TrackerConfig

	clock      mot.Clock
	publishers []Publisher
	metrics    Recorder
	logger     logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFusionConfig sets fusion engine parameters.
func WithFusionConfig(cfg mot.FusionConfig) Option {
	return func(s *Service) {
		s.fusionConfig = cfg
	}
}

// WithTrackerConfig sets tracker parameters.
func WithTrackerConfig(cfg mot.TrackerConfig) Option {
	return func(s *Service) {
		s.trackerConfig = cfg
	}
}

// WithClock sets the clock shared by both engines.
func WithClock(clock mot.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublishers appends snapshot publishers.
func WithPublishers(publishers ...Publisher) Option {
	return func(s *Service) {
		for _, p := range publishers {
			if p != nil {
				s.publishers = append(s.publishers, p)
			}
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with fresh engines.
func New(opts ...Option) *Service {
	s := &Service{
		fusionConfig:  mot.DefaultFusionConfig(),
		trackerConfig: mot.DefaultTrackerConfig(),
		threatLevel:   mot.ThreatLow,
		clock:         mot.SystemClock(),
		metrics:       nopRecorder{},
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.fusion = mot.NewFusionEngine(
		mot.WithFusionConfig(s.fusionConfig),
		mot.WithFusionClock(s.clock),
		mot.WithEstimatorErrorHandler(s.onEstimatorError),
	)
	s.fusionConfig = s.fusion.Config()
	s.tracker = mot.NewTracker(
		mot.WithTrackerConfig(s.trackerConfig),
		mot.WithTrackerClock(s.clock),
	)
	s.trackerConfig = s.tracker.Config()
	return s
}

func (s *Service) onEstimatorError(trackID string, err error) {
	s.metrics.RecordEstimatorFailure()
	s.logger.Warn(context.Background(), "estimator update rejected, using raw centroid",
		logger.String("track_id", trackID),
		logger.Error(err),
	)
}

// RegisterSensor declares a sensor source. Unknown sensor types are rejected.
func (s *Service) RegisterSensor(ctx context.Context, sensorID, sensorType string) (mot.SensorInfo, error) {
	sensorID = strings.TrimSpace(sensorID)
	if sensorID == "" {
		return mot.SensorInfo{}, newKind("service.register_sensor", ErrBadRequest, "missing sensor_id")
	}
	st, err := mot.ParseSensorType(sensorType)
	if err != nil {
		return mot.SensorInfo{}, wrapKind("service.register_sensor", ErrInvalidSensorType, err)
	}

	s.fusionMu.Lock()
	s.fusion.RegisterSensor(sensorID, st)
	sensors := s.fusion.Sensors()
	s.fusionMu.Unlock()

	s.metrics.SetRegisteredSensors(len(sensors))
	s.logger.Info(ctx, "sensor registered",
		logger.String("sensor_id", sensorID),
		logger.String("sensor_type", string(st)),
	)
	for _, info := range sensors {
		if info.SensorID == sensorID {
			return info, nil
		}
	}
	return mot.SensorInfo{SensorID: sensorID, SensorType: st}, nil
}

// Sensors lists registered sensors in registration order.
func (s *Service) Sensors(_ context.Context) []mot.SensorInfo {
	s.fusionMu.Lock()
	defer s.fusionMu.Unlock()
	return s.fusion.Sensors()
}

// SubmitReading fuses one sensor reading and fans the snapshot out to publishers.
// Publisher failures are logged and counted, never returned.
func (s *Service) SubmitReading(ctx context.Context, reading mot.SensorReading) (mot.FusedOutput, error) {
	reading.SensorID = strings.TrimSpace(reading.SensorID)
	if reading.SensorID == "" {
		return mot.FusedOutput{}, newKind("service.submit_reading", ErrBadRequest, "missing sensor_id")
	}

	start := time.Now()
	s.fusionMu.Lock()
	output := s.fusion.Update(reading)
	cycle := s.fusion.LastCycle()
	sensorCount := len(s.fusion.Sensors())
	previousThreat := s.threatLevel
	s.threatLevel = output.ThreatLevel
	s.readings++
	s.publishMu.Lock()
	s.fusionMu.Unlock()
	defer s.publishMu.Unlock()
	latency := time.Since(start)

	s.metrics.RecordReading(string(reading.SensorType), len(reading.Detections))
	s.metrics.RecordFusionCycle(len(cycle.Created), len(cycle.Removed), len(output.Tracks), latency)
	s.metrics.SetThreatLevel(output.ThreatLevel.Ordinal())
	s.metrics.SetRegisteredSensors(sensorCount)

	s.logCycle(ctx, reading, cycle, previousThreat, output.ThreatLevel)
	s.publish(ctx, output)
	return output, nil
}

func (s *Service) logCycle(ctx context.Context, reading mot.SensorReading, cycle mot.FusionCycle, previous, current mot.ThreatLevel) {
	s.logger.Debug(ctx, "reading fused",
		logger.String("sensor_id", reading.SensorID),
		logger.Int("detections", cycle.Detections),
		logger.Int("matched", cycle.Matched),
	)
	if len(cycle.Created) > 0 {
		s.logger.Info(ctx, "fused tracks created", logger.Strings("track_ids", cycle.Created))
	}
	if len(cycle.Removed) > 0 {
		s.logger.Info(ctx, "fused tracks removed", logger.Strings("track_ids", cycle.Removed))
	}
	if current == previous {
		return
	}
	fields := []logger.Field{
		logger.String("from", string(previous)),
		logger.String("to", string(current)),
	}
	if current.Ordinal() > previous.Ordinal() {
		s.logger.Warn(ctx, "threat level raised", fields...)
		return
	}
	s.logger.Info(ctx, "threat level lowered", fields...)
}

func (s *Service) publish(ctx context.Context, output mot.FusedOutput) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, output); err != nil {
			s.metrics.RecordPublishError(p.Name())
			s.logger.Error(ctx, "publish fused snapshot failed",
				logger.String("publisher", p.Name()),
				logger.Error(err),
			)
		}
	}
}

// FusedState is the current fused scene outside of an update cycle.
type FusedState struct {
	Timestamp     time.Time        `json:"timestamp"`
	Tracks        []mot.FusedTrack `json:"tracks"`
	ActiveSensors []string         `json:"active_sensors"`
	ThreatLevel   mot.ThreatLevel  `json:"threat_level"`
}

// FusedTracks returns current fused tracks with the threat level recomputed from them.
func (s *Service) FusedTracks(_ context.Context) FusedState {
	s.fusionMu.Lock()
	tracks := s.fusion.Tracks()
	sensors := s.fusion.Sensors()
	s.fusionMu.Unlock()

	active := make([]string, 0, len(sensors))
	for _, info := range sensors {
		active = append(active, info.SensorID)
	}
	return FusedState{
		Timestamp:     s.clock.Now(),
		Tracks:        tracks,
		ActiveSensors: active,
		ThreatLevel:   mot.AssessThreat(tracks, s.fusionConfig.ThreatWeights),
	}
}

// FusedTrack returns a single fused track or ErrTrackNotFound.
func (s *Service) FusedTrack(_ context.Context, trackID string) (mot.FusedTrack, error) {
	s.fusionMu.Lock()
	track, ok := s.fusion.Track(trackID)
	s.fusionMu.Unlock()
	if !ok {
		return mot.FusedTrack{}, newKind("service.fused_track", ErrTrackNotFound, trackID)
	}
	return track, nil
}

// TrackingSnapshot is the tracker state returned to callers.
type TrackingSnapshot struct {
	Timestamp      time.Time           `json:"timestamp"`
	ConfirmedCount int                 `json:"confirmed_count"`
	TotalCount     int                 `json:"total_count"`
	Tracks         []mot.TrackedObject `json:"tracks"`
}

// UpdateTracking runs one tracker cycle and returns confirmed tracks.
func (s *Service) UpdateTracking(ctx context.Context, detections []mot.Detection) TrackingSnapshot {
	start := time.Now()
	s.trackerMu.Lock()
	confirmed := s.tracker.Update(detections)
	total := len(s.tracker.AllTracks())
	s.trackerMu.Unlock()

	s.metrics.RecordTrackerFrame(len(confirmed), total, time.Since(start))
	s.logger.Debug(ctx, "tracker updated",
		logger.Int("detections", len(detections)),
		logger.Int("confirmed", len(confirmed)),
		logger.Int("total", total),
	)
	return TrackingSnapshot{
		Timestamp:      s.clock.Now(),
		ConfirmedCount: len(confirmed),
		TotalCount:     total,
		Tracks:         confirmed,
	}
}

// TrackingState returns confirmed tracks without running a cycle.
func (s *Service) TrackingState(_ context.Context) TrackingSnapshot {
	s.trackerMu.Lock()
	confirmed := s.tracker.ConfirmedTracks()
	total := len(s.tracker.AllTracks())
	s.trackerMu.Unlock()
	return TrackingSnapshot{
		Timestamp:      s.clock.Now(),
		ConfirmedCount: len(confirmed),
		TotalCount:     total,
		Tracks:         confirmed,
	}
}

// TrackedObject returns a single tracker object or ErrTrackNotFound.
func (s *Service) TrackedObject(_ context.Context, trackID string) (mot.TrackedObject, error) {
	s.trackerMu.Lock()
	obj, ok := s.tracker.Track(trackID)
	s.trackerMu.Unlock()
	if !ok {
		return mot.TrackedObject{}, newKind("service.tracked_object", ErrTrackNotFound, trackID)
	}
	return obj, nil
}

// ResetTracking drops every tracker object.
func (s *Service) ResetTracking(ctx context.Context) {
	s.trackerMu.Lock()
	s.tracker.Reset()
	s.trackerMu.Unlock()
	s.metrics.RecordTrackerFrame(0, 0, 0)
	s.logger.Info(ctx, "tracking reset")
}

// Stats summarizes both engines.
type Stats struct {
	Sensors           int             `json:"sensors"`
	FusedTracks       int             `json:"fused_tracks"`
	ThreatLevel       mot.ThreatLevel `json:"threat_level"`
	ReadingsProcessed uint64          `json:"readings_processed"`
	TrackerFrames     int             `json:"tracker_frames"`
	TrackerConfirmed  int             `json:"tracker_confirmed"`
	TrackerTotal      int             `json:"tracker_total"`
}

// Stats returns engine counters.
func (s *Service) Stats(_ context.Context) Stats {
	var stats Stats
	s.fusionMu.Lock()
	stats.Sensors = len(s.fusion.Sensors())
	stats.FusedTracks = len(s.fusion.Tracks())
	stats.ThreatLevel = s.threatLevel
	stats.ReadingsProcessed = s.readings
	s.fusionMu.Unlock()

	s.trackerMu.Lock()
	stats.TrackerFrames = s.tracker.Frames()
	stats.TrackerConfirmed = len(s.tracker.ConfirmedTracks())
	stats.TrackerTotal = len(s.tracker.AllTracks())
	s.trackerMu.Unlock()
	return stats
}

type nopRecorder struct{}

func (nopRecorder) RecordReading(string, int)                      {}
func (nopRecorder) RecordFusionCycle(int, int, int, time.Duration) {}
func (nopRecorder) SetThreatLevel(int)                             {}
func (nopRecorder) RecordEstimatorFailure()                        {}
func (nopRecorder) SetRegisteredSensors(int)                       {}
func (nopRecorder) RecordTrackerFrame(int, int, time.Duration)     {}
func (nopRecorder) RecordPublishError(string)                      {}
