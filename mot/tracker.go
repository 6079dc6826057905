package mot

// TrackerConfig holds Tracker parameters
type TrackerConfig struct {
	// Minimum IoU for a detection to be assigned to a track (cost = 1 - IoU must not exceed 1 - IoUThreshold)
	IoUThreshold float64
	// Track is lost once Misses exceeds MaxMisses
	MaxMisses int
	// Hits needed to confirm a track
	MinHits int
	// Prediction step in seconds
	PredictDt float64
	// Weight of the newest velocity sample
	VelocityAlpha float64
	// Frames per second used to scale centroid displacement into velocity
	FrameRate float64
	// Assignment algorithm
	Algorithm MatchingAlgorithm
}

// DefaultTrackerConfig returns default parameters: IoU 0.25, max misses 10, min hits 3
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		IoUThreshold:  0.25,
		MaxMisses:     10,
		MinHits:       3,
		PredictDt:     DefaultPredictDt,
		VelocityAlpha: 0.3,
		FrameRate:     30,
		Algorithm:     MatchingAlgorithmGreedy,
	}
}

// TrackerOption configures Tracker
type TrackerOption func(*Tracker)

// WithTrackerConfig replaces whole configuration. Non-positive numeric values keep defaults
func WithTrackerConfig(cfg TrackerConfig) TrackerOption {
	return func(tracker *Tracker) {
		if cfg.IoUThreshold > 0 {
			tracker.config.IoUThreshold = cfg.IoUThreshold
		}
		if cfg.MaxMisses > 0 {
			tracker.config.MaxMisses = cfg.MaxMisses
		}
		if cfg.MinHits > 0 {
			tracker.config.MinHits = cfg.MinHits
		}
		if cfg.PredictDt > 0 {
			tracker.config.PredictDt = cfg.PredictDt
		}
		if cfg.VelocityAlpha > 0 {
			tracker.config.VelocityAlpha = cfg.VelocityAlpha
		}
		if cfg.FrameRate > 0 {
			tracker.config.FrameRate = cfg.FrameRate
		}
		if cfg.Algorithm != "" {
			tracker.config.Algorithm = cfg.Algorithm
		}
	}
}

// WithTrackerClock sets clock used for timestamps
func WithTrackerClock(clock Clock) TrackerOption {
	return func(tracker *Tracker) {
		if clock != nil {
			tracker.clock = clock
		}
	}
}

// Tracker is a SORT-style multi-object tracker with IoU association and
// constant-velocity bbox prediction. It is independent from FusionEngine.
// It is not safe for concurrent use: callers must serialize access.
type Tracker struct {
	config TrackerConfig
	clock  Clock
	// Main storage. order keeps creation order
	tracks map[string]*TrackedObject
	order  []string
	nextID int
	frames int
}

// NewTracker creates Tracker with default configuration modified by options
func NewTracker(opts ...TrackerOption) *Tracker {
	tracker := &Tracker{
		config: DefaultTrackerConfig(),
		clock:  SystemClock(),
		tracks: make(map[string]*TrackedObject),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker
}

// Config returns tracker configuration
func (tracker *Tracker) Config() TrackerConfig {
	return tracker.config
}

// Frames returns number of Update calls since creation or last Reset
func (tracker *Tracker) Frames() int {
	return tracker.frames
}

// Update runs one tracking cycle over a batch of detections and returns
// confirmed, non-lost tracks in creation order.
func (tracker *Tracker) Update(detections []Detection) []TrackedObject {
	now := tracker.clock.Now()
	tracker.frames++

	// Predict all tracks
	for _, trackID := range tracker.order {
		tracker.tracks[trackID].predict(tracker.config.PredictDt)
	}

	matches, unmatchedDetections, unmatchedTracks := tracker.match(detections)

	// Update matched tracks
	for _, match := range matches {
		tracker.tracks[tracker.order[match[0]]].update(detections[match[1]], now, tracker.config)
	}

	// Create new tracks for unmatched detections
	for _, detIdx := range unmatchedDetections {
		trackID := formatTrackedObjectID(tracker.nextID)
		tracker.nextID++
		tracker.tracks[trackID] = newTrackedObject(trackID, detections[detIdx], now, tracker.config.MinHits)
		tracker.order = append(tracker.order, trackID)
	}

	// Mark unmatched tracks as missed
	for _, trackID := range unmatchedTracks {
		tracker.tracks[trackID].markMissed(tracker.config.MaxMisses)
	}

	tracker.cleanup()

	return tracker.ConfirmedTracks()
}

// match assigns detections to existing tracks.
// Returns {trackIndexInOrder, detectionIndex} pairs, unmatched detection indices and unmatched track ids.
func (tracker *Tracker) match(detections []Detection) ([][2]int, []int, []string) {
	matches := make([][2]int, 0)
	if len(detections) == 0 || len(tracker.order) == 0 {
		unmatchedDetections := make([]int, len(detections))
		for i := range detections {
			unmatchedDetections[i] = i
		}
		return matches, unmatchedDetections, append([]string(nil), tracker.order...)
	}

	trackBBoxes := make([]Rectangle, len(tracker.order))
	for i, trackID := range tracker.order {
		trackBBoxes[i] = tracker.tracks[trackID].matchBBox()
	}
	detectionBBoxes := make([]Rectangle, len(detections))
	for j := range detections {
		detectionBBoxes[j] = detections[j].BBoxOrDefault()
	}

	costMatrix := iouCostMatrix(trackBBoxes, detectionBBoxes)
	maxCost := 1 - tracker.config.IoUThreshold
	switch tracker.config.Algorithm {
	case MatchingAlgorithmHungarian:
		matches = assignHungarian(costMatrix, maxCost)
	default:
		matches = assignGreedy(costMatrix, maxCost)
	}

	matchedTracks := make(map[int]struct{}, len(matches))
	matchedDetections := make(map[int]struct{}, len(matches))
	for _, match := range matches {
		matchedTracks[match[0]] = struct{}{}
		matchedDetections[match[1]] = struct{}{}
	}
	unmatchedDetections := make([]int, 0, len(detections)-len(matches))
	for j := range detections {
		if _, ok := matchedDetections[j]; !ok {
			unmatchedDetections = append(unmatchedDetections, j)
		}
	}
	unmatchedTracks := make([]string, 0, len(tracker.order)-len(matches))
	for i, trackID := range tracker.order {
		if _, ok := matchedTracks[i]; !ok {
			unmatchedTracks = append(unmatchedTracks, trackID)
		}
	}
	return matches, unmatchedDetections, unmatchedTracks
}

// cleanup removes lost tracks
func (tracker *Tracker) cleanup() {
	kept := tracker.order[:0]
	for _, trackID := range tracker.order {
		if tracker.tracks[trackID].Lost {
			delete(tracker.tracks, trackID)
			continue
		}
		kept = append(kept, trackID)
	}
	tracker.order = kept
}

// AllTracks returns copies of every live track, including unconfirmed ones
func (tracker *Tracker) AllTracks() []TrackedObject {
	out := make([]TrackedObject, 0, len(tracker.order))
	for _, trackID := range tracker.order {
		out = append(out, tracker.tracks[trackID].clone())
	}
	return out
}

// ConfirmedTracks returns copies of confirmed, non-lost tracks
func (tracker *Tracker) ConfirmedTracks() []TrackedObject {
	out := make([]TrackedObject, 0, len(tracker.order))
	for _, trackID := range tracker.order {
		if obj := tracker.tracks[trackID]; obj.active() {
			out = append(out, obj.clone())
		}
	}
	return out
}

// Track returns copy of the track with given id
func (tracker *Tracker) Track(trackID string) (TrackedObject, bool) {
	obj, ok := tracker.tracks[trackID]
	if !ok {
		return TrackedObject{}, false
	}
	return obj.clone(), true
}

// Reset drops all tracks and restarts id numbering
func (tracker *Tracker) Reset() {
	tracker.tracks = make(map[string]*TrackedObject)
	tracker.order = nil
	tracker.nextID = 1
	tracker.frames = 0
}
