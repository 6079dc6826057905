package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LdDl/mot-fusion/mot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct {
	now time.Time
}

func (c stubClock) Now() time.Time { return c.now }

type capturePublisher struct {
	mu      sync.Mutex
	name    string
	err     error
	outputs []mot.FusedOutput
}

func (p *capturePublisher) Name() string { return p.name }

func (p *capturePublisher) Publish(_ context.Context, output mot.FusedOutput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputs = append(p.outputs, output)
	return p.err
}

// gatedPublisher blocks the first Publish call until release is closed.
type gatedPublisher struct {
	capturePublisher
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPublisher) Publish(ctx context.Context, output mot.FusedOutput) error {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return p.capturePublisher.Publish(ctx, output)
}

type countingRecorder struct {
	nopRecorder
	readings          int
	threat            int
	sensors           int
	publishErrors     map[string]int
	estimatorFailures int
	trackerFrames     int
}

func (r *countingRecorder) RecordReading(string, int)                  { r.readings++ }
func (r *countingRecorder) SetThreatLevel(ordinal int)                 { r.threat = ordinal }
func (r *countingRecorder) SetRegisteredSensors(count int)             { r.sensors = count }
func (r *countingRecorder) RecordEstimatorFailure()                    { r.estimatorFailures++ }
func (r *countingRecorder) RecordTrackerFrame(int, int, time.Duration) { r.trackerFrames++ }

func (r *countingRecorder) RecordPublishError(publisher string) {
	if r.publishErrors == nil {
		r.publishErrors = map[string]int{}
	}
	r.publishErrors[publisher]++
}

func newTestService(opts ...Option) *Service {
	clock := stubClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(append([]Option{WithClock(clock)}, opts...)...)
}

func reading(sensorID string, detections ...mot.Detection) mot.SensorReading {
	return mot.SensorReading{
		SensorID:   sensorID,
		SensorType: mot.SensorCameraRGB,
		Detections: detections,
		Confidence: 1.0,
	}
}

func TestRegisterSensor(t *testing.T) {
	ctx := context.Background()

	t.Run("registers known type case-insensitively", func(t *testing.T) {
		recorder := &countingRecorder{}
		svc := newTestService(WithMetrics(recorder))

		info, err := svc.RegisterSensor(ctx, "cam1", "CAMERA_IR")
		require.NoError(t, err)
		assert.Equal(t, "cam1", info.SensorID)
		assert.Equal(t, mot.SensorCameraIR, info.SensorType)
		assert.Equal(t, 1.0, info.Confidence)
		assert.Equal(t, 1, recorder.sensors)
		assert.Len(t, svc.Sensors(ctx), 1)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		svc := newTestService()

		_, err := svc.RegisterSensor(ctx, "s1", "sonar")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidSensorType))
		assert.True(t, errors.Is(err, mot.ErrUnknownSensorType))
		assert.Empty(t, svc.Sensors(ctx))
	})

	t.Run("rejects empty id", func(t *testing.T) {
		svc := newTestService()

		_, err := svc.RegisterSensor(ctx, "  ", "radar")
		assert.True(t, errors.Is(err, ErrBadRequest))
	})
}

func TestSubmitReading(t *testing.T) {
	ctx := context.Background()

	t.Run("fuses and publishes", func(t *testing.T) {
		pub := &capturePublisher{name: "capture"}
		recorder := &countingRecorder{}
		svc := newTestService(WithPublishers(pub), WithMetrics(recorder))

		output, err := svc.SubmitReading(ctx, reading("cam1", mot.NewDetection("person", 0.9, mot.NewRect(10, 10, 20, 20))))
		require.NoError(t, err)
		require.Len(t, output.Tracks, 1)
		assert.Equal(t, "T0001", output.Tracks[0].TrackID)
		assert.Equal(t, []string{"cam1"}, output.ActiveSensors)

		require.Len(t, pub.outputs, 1)
		assert.Equal(t, output.Tracks[0].TrackID, pub.outputs[0].Tracks[0].TrackID)
		assert.Equal(t, 1, recorder.readings)
		assert.Equal(t, 1, recorder.sensors)
	})

	t.Run("publisher failure does not fail the request", func(t *testing.T) {
		pub := &capturePublisher{name: "broken", err: errors.New("connection refused")}
		recorder := &countingRecorder{}
		svc := newTestService(WithPublishers(pub), WithMetrics(recorder))

		_, err := svc.SubmitReading(ctx, reading("cam1"))
		require.NoError(t, err)
		assert.Equal(t, 1, recorder.publishErrors["broken"])
	})

	t.Run("rejects missing sensor id", func(t *testing.T) {
		svc := newTestService()

		_, err := svc.SubmitReading(ctx, reading(""))
		assert.True(t, errors.Is(err, ErrBadRequest))
	})

	t.Run("threat level follows cross-sensor agreement", func(t *testing.T) {
		recorder := &countingRecorder{}
		svc := newTestService(WithMetrics(recorder))
		weapon := mot.NewDetection("weapon", 0.7, mot.NewRect(100, 100, 50, 50))

		output, err := svc.SubmitReading(ctx, reading("cam1", weapon))
		require.NoError(t, err)
		assert.Equal(t, mot.ThreatHigh, output.ThreatLevel)
		assert.Equal(t, mot.ThreatHigh.Ordinal(), recorder.threat)

		output, err = svc.SubmitReading(ctx, reading("cam2", weapon))
		require.NoError(t, err)
		assert.Equal(t, mot.ThreatCritical, output.ThreatLevel)
		assert.Equal(t, mot.ThreatCritical.Ordinal(), recorder.threat)
		assert.Equal(t, mot.ThreatCritical, svc.Stats(ctx).ThreatLevel)
	})
}

func TestSubmitReadingPublishOrder(t *testing.T) {
	ctx := context.Background()
	publisher := &gatedPublisher{
		capturePublisher: capturePublisher{name: "gated"},
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := newTestService(WithPublishers(publisher))
	box := mot.NewRect(100, 100, 50, 50)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.SubmitReading(ctx, reading("cam1", mot.NewDetection("person", 0.8, box)))
		assert.NoError(t, err)
	}()
	<-publisher.entered
	go func() {
		defer wg.Done()
		_, err := svc.SubmitReading(ctx, reading("cam2", mot.NewDetection("person", 0.8, box)))
		assert.NoError(t, err)
	}()
	// Second reading fuses while the first snapshot is still being published
	time.Sleep(50 * time.Millisecond)
	close(publisher.release)
	wg.Wait()

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.outputs, 2)
	assert.Len(t, publisher.outputs[0].ActiveSensors, 1)
	assert.Len(t, publisher.outputs[1].ActiveSensors, 2)
}

func TestFusedTracks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	state := svc.FusedTracks(ctx)
	assert.Empty(t, state.Tracks)
	assert.Equal(t, mot.ThreatLow, state.ThreatLevel)

	_, err := svc.SubmitReading(ctx, reading("radar1", mot.NewDetection("vehicle", 0.8, mot.NewRect(0, 0, 40, 20))))
	require.NoError(t, err)

	state = svc.FusedTracks(ctx)
	require.Len(t, state.Tracks, 1)
	assert.Equal(t, []string{"radar1"}, state.ActiveSensors)

	track, err := svc.FusedTrack(ctx, "T0001")
	require.NoError(t, err)
	assert.Equal(t, "vehicle", track.ClassName)

	_, err = svc.FusedTrack(ctx, "T9999")
	assert.True(t, errors.Is(err, ErrTrackNotFound))
}

func TestTracking(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	svc := newTestService(WithMetrics(recorder))
	det := mot.NewDetection("car", 0.8, mot.NewRect(100, 100, 50, 50))

	snapshot := svc.UpdateTracking(ctx, []mot.Detection{det})
	assert.Equal(t, 0, snapshot.ConfirmedCount)
	assert.Equal(t, 1, snapshot.TotalCount)
	assert.Empty(t, snapshot.Tracks)

	svc.UpdateTracking(ctx, []mot.Detection{det})
	snapshot = svc.UpdateTracking(ctx, []mot.Detection{det})
	require.Equal(t, 1, snapshot.ConfirmedCount)
	assert.Equal(t, "OBJ-00001", snapshot.Tracks[0].TrackID)
	assert.Equal(t, 3, snapshot.Tracks[0].Hits)
	assert.Equal(t, 3, recorder.trackerFrames)

	state := svc.TrackingState(ctx)
	assert.Equal(t, 1, state.ConfirmedCount)

	obj, err := svc.TrackedObject(ctx, "OBJ-00001")
	require.NoError(t, err)
	assert.Equal(t, "car", obj.ClassName)

	stats := svc.Stats(ctx)
	assert.Equal(t, 3, stats.TrackerFrames)
	assert.Equal(t, 1, stats.TrackerConfirmed)

	svc.ResetTracking(ctx)
	assert.Equal(t, 0, svc.TrackingState(ctx).TotalCount)
	_, err = svc.TrackedObject(ctx, "OBJ-00001")
	assert.True(t, errors.Is(err, ErrTrackNotFound))
}

func TestEngineConfigDefaults(t *testing.T) {
	svc := New(WithFusionConfig(mot.FusionConfig{MaxAge: 5}), WithTrackerConfig(mot.TrackerConfig{MinHits: 1}))

	assert.Equal(t, 5, svc.fusionConfig.MaxAge)
	assert.Equal(t, 0.3, svc.fusionConfig.IoUThreshold)
	assert.Equal(t, 1, svc.trackerConfig.MinHits)
	assert.Equal(t, 10, svc.trackerConfig.MaxMisses)
}
