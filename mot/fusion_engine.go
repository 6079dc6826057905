package mot

import (
	"time"

	"github.com/google/uuid"
)

// FusionConfig holds FusionEngine parameters. They are fixed for the engine's lifetime.
type FusionConfig struct {
	// IoU a detection must exceed to be matched to an existing track
	IoUThreshold float64
	// Tracks unmatched for more than MaxAge consecutive updates are removed
	MaxAge int
	// Minimum detections to confirm a track. Exposed for the request layer only:
	// fused tracks are visible from creation
	MinHits int
	// Prediction step (seconds) applied to every estimator after each update
	PredictDt float64
	// Estimator used for new tracks
	Estimator EstimatorKind
	// Per-class base threat weights, keys are lower-case class names
	ThreatWeights map[string]float64
}

// DefaultFusionConfig returns default parameters: IoU 0.3, max age 30, min hits 3
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		IoUThreshold:  0.3,
		MaxAge:        30,
		MinHits:       3,
		PredictDt:     DefaultPredictDt,
		Estimator:     EstimatorBlend,
		ThreatWeights: DefaultThreatWeights(),
	}
}

// FusionCycle summarizes what the latest FusionEngine.Update call did
type FusionCycle struct {
	Detections int
	Matched    int
	Created    []string
	Removed    []string
}

// FusionOption configures FusionEngine
type FusionOption func(*FusionEngine)

// WithFusionConfig replaces whole configuration. Non-positive numeric values keep defaults
func WithFusionConfig(cfg FusionConfig) FusionOption {
	return func(engine *FusionEngine) {
		if cfg.IoUThreshold > 0 {
			engine.config.IoUThreshold = cfg.IoUThreshold
		}
		if cfg.MaxAge > 0 {
			engine.config.MaxAge = cfg.MaxAge
		}
		if cfg.MinHits > 0 {
			engine.config.MinHits = cfg.MinHits
		}
		if cfg.PredictDt > 0 {
			engine.config.PredictDt = cfg.PredictDt
		}
		if cfg.Estimator != "" {
			engine.config.Estimator = cfg.Estimator
		}
		if len(cfg.ThreatWeights) > 0 {
			engine.config.ThreatWeights = copyWeights(cfg.ThreatWeights)
		}
	}
}

// WithFusionClock sets clock used for timestamps
func WithFusionClock(clock Clock) FusionOption {
	return func(engine *FusionEngine) {
		if clock != nil {
			engine.clock = clock
		}
	}
}

// WithEstimatorErrorHandler registers callback for failed estimator updates.
// The track keeps the raw detection centroid as its position in that case.
func WithEstimatorErrorHandler(fn func(trackID string, err error)) FusionOption {
	return func(engine *FusionEngine) {
		engine.onEstimatorError = fn
	}
}

// FusionEngine merges detections from many sensors into a single set of fused tracks.
// It is not safe for concurrent use: callers must serialize access.
type FusionEngine struct {
	config FusionConfig
	clock  Clock

	sensors     map[string]*SensorInfo
	sensorOrder []string

	// Main storage. trackOrder keeps creation order which defines tie-breaking during matching
	tracks      map[string]*FusedTrack
	trackOrder  []string
	estimators  map[string]StateEstimator
	nextTrackID int

	platformPosition *Vector3
	lastCycle        FusionCycle
	onEstimatorError func(trackID string, err error)
}

// NewFusionEngine creates FusionEngine with default configuration modified by options
func NewFusionEngine(opts ...FusionOption) *FusionEngine {
	engine := &FusionEngine{
		config:      DefaultFusionConfig(),
		clock:       SystemClock(),
		sensors:     make(map[string]*SensorInfo),
		tracks:      make(map[string]*FusedTrack),
		estimators:  make(map[string]StateEstimator),
		nextTrackID: 1,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Config returns a copy of engine configuration
func (engine *FusionEngine) Config() FusionConfig {
	cfg := engine.config
	cfg.ThreatWeights = copyWeights(engine.config.ThreatWeights)
	return cfg
}

// RegisterSensor declares a sensor source. Calling it again for the same id only refreshes the type.
func (engine *FusionEngine) RegisterSensor(sensorID string, sensorType SensorType) {
	if info, ok := engine.sensors[sensorID]; ok {
		info.SensorType = sensorType
		return
	}
	engine.sensors[sensorID] = &SensorInfo{
		SensorID:   sensorID,
		SensorType: sensorType,
		LastUpdate: engine.clock.Now(),
		Confidence: 1.0,
	}
	engine.sensorOrder = append(engine.sensorOrder, sensorID)
}

// Sensors returns registered sensors in registration order
func (engine *FusionEngine) Sensors() []SensorInfo {
	out := make([]SensorInfo, 0, len(engine.sensorOrder))
	for _, sensorID := range engine.sensorOrder {
		out = append(out, *engine.sensors[sensorID])
	}
	return out
}

// Update ingests one sensor reading: match, update, create, age, clean up, then snapshot.
func (engine *FusionEngine) Update(reading SensorReading) FusedOutput {
	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}
	now := reading.Timestamp
	if now.IsZero() {
		now = engine.clock.Now()
	}

	// Update sensor registry
	engine.RegisterSensor(reading.SensorID, reading.SensorType)
	info := engine.sensors[reading.SensorID]
	info.LastUpdate = now
	info.Confidence = reading.Confidence
	if reading.Position != nil && reading.SensorType.providesPlatformPose() {
		pos := *reading.Position
		engine.platformPosition = &pos
	}

	engine.lastCycle = FusionCycle{Detections: len(reading.Detections)}

	matched, unmatchedDetections, unmatchedTracks := engine.matchDetections(reading.Detections)

	// Update matched tracks
	for _, pair := range matched {
		engine.updateTrack(pair.trackID, reading.Detections[pair.detectionIdx], reading.SensorID, now)
	}
	engine.lastCycle.Matched = len(matched)

	// Create new tracks for unmatched detections
	for _, detIdx := range unmatchedDetections {
		trackID := engine.createTrack(reading.Detections[detIdx], reading.SensorID, now)
		engine.lastCycle.Created = append(engine.lastCycle.Created, trackID)
	}

	// Age unmatched tracks
	for _, trackID := range unmatchedTracks {
		engine.tracks[trackID].AgeFrames++
	}

	engine.cleanupTracks()

	return engine.buildOutput(now)
}

// LastCycle returns summary of the latest Update call
func (engine *FusionEngine) LastCycle() FusionCycle {
	cycle := engine.lastCycle
	cycle.Created = append([]string(nil), engine.lastCycle.Created...)
	cycle.Removed = append([]string(nil), engine.lastCycle.Removed...)
	return cycle
}

// Tracks returns copies of all live fused tracks in creation order
func (engine *FusionEngine) Tracks() []FusedTrack {
	out := make([]FusedTrack, 0, len(engine.trackOrder))
	for _, trackID := range engine.trackOrder {
		out = append(out, engine.tracks[trackID].clone())
	}
	return out
}

// Track returns copy of the fused track with given id
func (engine *FusionEngine) Track(trackID string) (FusedTrack, bool) {
	track, ok := engine.tracks[trackID]
	if !ok {
		return FusedTrack{}, false
	}
	return track.clone(), true
}

// matchPair links detection index to existing track id
type matchPair struct {
	trackID      string
	detectionIdx int
}

// matchDetections greedily assigns each detection, in order, to the unmatched
// track with the highest IoU above threshold. Ties go to the oldest track.
func (engine *FusionEngine) matchDetections(detections []Detection) ([]matchPair, []int, []string) {
	matched := make([]matchPair, 0, len(detections))
	unmatchedDetections := make([]int, 0, len(detections))
	unmatchedTracks := make([]string, len(engine.trackOrder))
	copy(unmatchedTracks, engine.trackOrder)

	for detIdx := range detections {
		detBBox := detections[detIdx].BBoxOrDefault()
		bestIoU := 0.0
		bestPos := -1
		for pos, trackID := range unmatchedTracks {
			iouValue := IoU(detBBox, engine.tracks[trackID].BBox)
			if iouValue > bestIoU && iouValue > engine.config.IoUThreshold {
				bestIoU = iouValue
				bestPos = pos
			}
		}
		if bestPos < 0 {
			unmatchedDetections = append(unmatchedDetections, detIdx)
			continue
		}
		matched = append(matched, matchPair{trackID: unmatchedTracks[bestPos], detectionIdx: detIdx})
		unmatchedTracks = append(unmatchedTracks[:bestPos], unmatchedTracks[bestPos+1:]...)
	}
	return matched, unmatchedDetections, unmatchedTracks
}

func (engine *FusionEngine) createTrack(detection Detection, sensorID string, now time.Time) string {
	trackID := formatFusedTrackID(engine.nextTrackID)
	engine.nextTrackID++

	bbox := detection.BBoxOrDefault()
	center := bbox.Center()
	confidence := detection.ConfidenceOrDefault()

	engine.tracks[trackID] = &FusedTrack{
		TrackID:          trackID,
		Position:         Vector3{X: center.X, Y: center.Y},
		ClassName:        detection.ClassOrDefault(),
		ClassConfidence:  confidence,
		BBox:             bbox,
		SensorSources:    []string{sensorID},
		FusionConfidence: confidence,
		FirstSeen:        now,
		LastSeen:         now,
	}
	engine.trackOrder = append(engine.trackOrder, trackID)
	engine.estimators[trackID] = newEstimator(engine.config.Estimator, center.X, center.Y, engine.config.PredictDt)
	return trackID
}

func (engine *FusionEngine) updateTrack(trackID string, detection Detection, sensorID string, now time.Time) {
	track := engine.tracks[trackID]
	bbox := detection.BBoxOr(track.BBox)
	center := bbox.Center()

	estimator := engine.estimators[trackID]
	if err := estimator.Update(center.X, center.Y); err != nil {
		if engine.onEstimatorError != nil {
			engine.onEstimatorError(trackID, err)
		}
		track.Position = Vector3{X: center.X, Y: center.Y}
	} else {
		state := estimator.State()
		track.Position = Vector3{X: state.X, Y: state.Y}
		track.Velocity = &Vector3{X: state.VX, Y: state.VY}
	}

	track.BBox = bbox
	track.ClassConfidence = maxFloat64(track.ClassConfidence, detection.ConfidenceOrDefault())
	track.LastSeen = now
	track.AgeFrames = 0

	// Add sensor source if new
	if !track.hasSource(sensorID) {
		track.SensorSources = append(track.SensorSources, sensorID)
	}
	track.refreshFusionConfidence()
}

// cleanupTracks removes tracks older than MaxAge along with their estimators
func (engine *FusionEngine) cleanupTracks() {
	kept := engine.trackOrder[:0]
	for _, trackID := range engine.trackOrder {
		if engine.tracks[trackID].AgeFrames > engine.config.MaxAge {
			delete(engine.tracks, trackID)
			delete(engine.estimators, trackID)
			engine.lastCycle.Removed = append(engine.lastCycle.Removed, trackID)
			continue
		}
		kept = append(kept, trackID)
	}
	engine.trackOrder = kept
}

func (engine *FusionEngine) buildOutput(now time.Time) FusedOutput {
	// Advance every estimator one step ahead of the next reading
	for _, trackID := range engine.trackOrder {
		engine.estimators[trackID].Predict(engine.config.PredictDt)
	}

	tracks := engine.Tracks()
	output := FusedOutput{
		Timestamp:          now,
		Tracks:             tracks,
		VisibilityEstimate: 1.0,
		ThreatLevel:        AssessThreat(tracks, engine.config.ThreatWeights),
		ActiveSensors:      append([]string{}, engine.sensorOrder...),
		DegradedSensors:    []string{},
	}
	if engine.platformPosition != nil {
		pos := *engine.platformPosition
		output.PlatformPosition = &pos
	}
	return output
}

func copyWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for class, weight := range weights {
		out[class] = weight
	}
	return out
}
