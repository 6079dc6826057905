package mot

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func cameraReading(sensorID string, detections ...Detection) SensorReading {
	return SensorReading{
		SensorID:   sensorID,
		SensorType: SensorCameraRGB,
		Detections: detections,
		Confidence: 1.0,
	}
}

func TestFusionEngineFirstReadingSnapshot(t *testing.T) {
	clock := newFixedClock()
	engine := NewFusionEngine(WithFusionClock(clock))

	output := engine.Update(cameraReading("cam1", NewDetection("person", 0.9, NewRect(10, 10, 20, 20))))

	want := FusedOutput{
		Timestamp: clock.now,
		Tracks: []FusedTrack{{
			TrackID:          "T0001",
			Position:         Vector3{X: 20, Y: 20},
			ClassName:        "person",
			ClassConfidence:  0.9,
			BBox:             NewRect(10, 10, 20, 20),
			SensorSources:    []string{"cam1"},
			FusionConfidence: 0.9,
			FirstSeen:        clock.now,
			LastSeen:         clock.now,
		}},
		VisibilityEstimate: 1.0,
		ThreatLevel:        ThreatLow,
		ActiveSensors:      []string{"cam1"},
		DegradedSensors:    []string{},
	}
	if diff := cmp.Diff(want, output); diff != "" {
		t.Errorf("Unexpected fused output (-want +got):\n%s", diff)
	}
}

func TestFusionEngineCrossSensorMatch(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))

	first := engine.Update(cameraReading("cam1", NewDetection("person", 0.9, NewRect(10, 10, 20, 20))))
	if len(first.Tracks) != 1 {
		t.Fatalf("Expected 1 track, got %d", len(first.Tracks))
	}
	firstConfidence := first.Tracks[0].FusionConfidence

	second := engine.Update(SensorReading{
		SensorID:   "radar1",
		SensorType: SensorRadar,
		Detections: []Detection{NewDetection("person", 0.9, NewRect(10, 10, 20, 20))},
		Confidence: 1.0,
	})
	if len(second.Tracks) != 1 {
		t.Fatalf("Expected 1 track after matching, got %d", len(second.Tracks))
	}
	track := second.Tracks[0]
	if track.TrackID != "T0001" {
		t.Errorf("Expected track T0001, got %s", track.TrackID)
	}
	if diff := cmp.Diff([]string{"cam1", "radar1"}, track.SensorSources); diff != "" {
		t.Errorf("Unexpected sensor sources (-want +got):\n%s", diff)
	}
	if track.FusionConfidence <= firstConfidence {
		t.Errorf("Fusion confidence should grow: before %v, after %v", firstConfidence, track.FusionConfidence)
	}
	if math.Abs(track.FusionConfidence-0.96) > eps {
		t.Errorf("Expected fusion confidence 0.96, got %v", track.FusionConfidence)
	}
	if track.Velocity == nil {
		t.Error("Matched track should report velocity")
	}
	if diff := cmp.Diff([]string{"cam1", "radar1"}, second.ActiveSensors); diff != "" {
		t.Errorf("Unexpected active sensors (-want +got):\n%s", diff)
	}
}

func TestFusionEngineBlendedPosition(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	engine.Update(cameraReading("cam1", NewDetection("vehicle", 0.6, NewRect(100, 100, 50, 50))))
	output := engine.Update(cameraReading("cam1", NewDetection("vehicle", 0.5, NewRect(102, 102, 50, 50))))

	track := output.Tracks[0]
	// 0.7 * 127 + 0.3 * 125
	if math.Abs(track.Position.X-126.4) > eps || math.Abs(track.Position.Y-126.4) > eps {
		t.Errorf("Wrong blended position: %+v", track.Position)
	}
	if track.ClassConfidence != 0.6 {
		t.Errorf("Class confidence must not decrease: got %v", track.ClassConfidence)
	}
	if track.BBox != NewRect(102, 102, 50, 50) {
		t.Errorf("BBox should be replaced, got %+v", track.BBox)
	}
	if len(track.SensorSources) != 1 {
		t.Errorf("Same sensor must not be appended twice: %v", track.SensorSources)
	}
}

func TestFusionEngineMatchingThreshold(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	engine.Update(cameraReading("cam1", NewDetection("person", 0.8, NewRect(0, 0, 10, 10))))
	// IoU = 25/175 is below 0.3 so a second track appears
	output := engine.Update(cameraReading("cam1", NewDetection("person", 0.8, NewRect(5, 5, 10, 10))))
	if len(output.Tracks) != 2 {
		t.Fatalf("Expected 2 tracks, got %d", len(output.Tracks))
	}
	if output.Tracks[1].TrackID != "T0002" {
		t.Errorf("Expected T0002, got %s", output.Tracks[1].TrackID)
	}
	if output.Tracks[0].AgeFrames != 1 {
		t.Errorf("Unmatched track should age, got %d", output.Tracks[0].AgeFrames)
	}
}

func TestFusionEngineTieGoesToOldestTrack(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	engine.Update(cameraReading("cam1",
		NewDetection("person", 0.8, NewRect(0, 0, 10, 10)),
		NewDetection("person", 0.8, NewRect(10, 0, 10, 10)),
	))
	// Detection has identical IoU (1/3) with both tracks
	engine.Update(cameraReading("cam2", NewDetection("person", 0.8, NewRect(5, 0, 10, 10))))

	first, ok := engine.Track("T0001")
	if !ok {
		t.Fatal("T0001 should exist")
	}
	second, ok := engine.Track("T0002")
	if !ok {
		t.Fatal("T0002 should exist")
	}
	if len(first.SensorSources) != 2 {
		t.Errorf("T0001 should get the detection, sources: %v", first.SensorSources)
	}
	if second.AgeFrames != 1 {
		t.Errorf("T0002 should stay unmatched, age: %d", second.AgeFrames)
	}
}

func TestFusionEngineMaxAge(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	engine.Update(cameraReading("cam1", NewDetection("person", 0.9, NewRect(10, 10, 20, 20))))

	for i := 0; i < 30; i++ {
		engine.Update(cameraReading("cam1"))
	}
	track, ok := engine.Track("T0001")
	if !ok {
		t.Fatal("Track aged exactly max age must survive")
	}
	if track.AgeFrames != 30 {
		t.Errorf("Expected age 30, got %d", track.AgeFrames)
	}

	output := engine.Update(cameraReading("cam1"))
	if len(output.Tracks) != 0 {
		t.Errorf("Expected no tracks, got %d", len(output.Tracks))
	}
	if len(engine.Tracks()) != 0 {
		t.Errorf("Expected Tracks() to be empty, got %d", len(engine.Tracks()))
	}
	if _, ok := engine.Track("T0001"); ok {
		t.Error("T0001 should be removed")
	}
	if diff := cmp.Diff([]string{"T0001"}, engine.LastCycle().Removed); diff != "" {
		t.Errorf("Unexpected removed ids (-want +got):\n%s", diff)
	}

	// Ids are never reused
	output = engine.Update(cameraReading("cam1", NewDetection("person", 0.9, NewRect(10, 10, 20, 20))))
	if output.Tracks[0].TrackID != "T0002" {
		t.Errorf("Expected T0002, got %s", output.Tracks[0].TrackID)
	}
}

func TestFusionEngineDefaultsMalformedDetection(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	output := engine.Update(cameraReading("cam1", Detection{}))
	track := output.Tracks[0]
	if track.ClassName != DefaultClassName {
		t.Errorf("Expected class %s, got %s", DefaultClassName, track.ClassName)
	}
	if track.BBox != DefaultBBox {
		t.Errorf("Expected default bbox, got %+v", track.BBox)
	}
	if track.FusionConfidence != DefaultConfidence {
		t.Errorf("Expected confidence %v, got %v", DefaultConfidence, track.FusionConfidence)
	}
}

func TestFusionEngineConfidenceBounds(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	box := NewRect(10, 10, 20, 20)
	for _, sensorID := range []string{"cam1", "cam2", "radar1", "lidar1", "ir1"} {
		output := engine.Update(cameraReading(sensorID, NewDetection("weapon", 1.0, box)))
		for _, track := range output.Tracks {
			if track.FusionConfidence < 0 || track.FusionConfidence > 1 {
				t.Errorf("Fusion confidence out of range: %v", track.FusionConfidence)
			}
		}
	}
	track, _ := engine.Track("T0001")
	if track.FusionConfidence != 1.0 {
		t.Errorf("Expected clamped fusion confidence 1.0, got %v", track.FusionConfidence)
	}
}

func TestFusionEngineThreatLevel(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	box := NewRect(10, 10, 20, 20)
	output := engine.Update(cameraReading("cam1", NewDetection("weapon", 0.9, box)))
	// 0.9 * 0.9
	if output.ThreatLevel != ThreatCritical {
		t.Errorf("Expected CRITICAL, got %s", output.ThreatLevel)
	}

	engine = NewFusionEngine(
		WithFusionClock(newFixedClock()),
		WithFusionConfig(FusionConfig{ThreatWeights: map[string]float64{"person": 0.6}}),
	)
	output = engine.Update(cameraReading("cam1", NewDetection("Person", 1.0, box)))
	if output.ThreatLevel != ThreatHigh {
		t.Errorf("Expected HIGH with custom weights, got %s", output.ThreatLevel)
	}
}

func TestFusionEnginePlatformPosition(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	output := engine.Update(SensorReading{
		SensorID:   "gps1",
		SensorType: SensorGPS,
		Position:   &Vector3{X: 55.75, Y: 37.61, Z: 120},
		Confidence: 1.0,
	})
	if output.PlatformPosition == nil {
		t.Fatal("Expected platform position")
	}
	if *output.PlatformPosition != (Vector3{X: 55.75, Y: 37.61, Z: 120}) {
		t.Errorf("Wrong platform position: %+v", *output.PlatformPosition)
	}
	// Camera positions don't describe the platform
	output = engine.Update(SensorReading{
		SensorID:   "cam1",
		SensorType: SensorCameraRGB,
		Position:   &Vector3{X: 1, Y: 2, Z: 3},
		Confidence: 1.0,
	})
	if output.PlatformPosition.X != 55.75 {
		t.Errorf("Platform position should come from gps only: %+v", *output.PlatformPosition)
	}
}

func TestFusionEngineSensorRegistry(t *testing.T) {
	clock := newFixedClock()
	engine := NewFusionEngine(WithFusionClock(clock))
	engine.RegisterSensor("cam1", SensorCameraRGB)
	engine.RegisterSensor("radar1", SensorRadar)
	engine.RegisterSensor("cam1", SensorCameraIR)

	sensors := engine.Sensors()
	want := []SensorInfo{
		{SensorID: "cam1", SensorType: SensorCameraIR, LastUpdate: clock.now, Confidence: 1.0},
		{SensorID: "radar1", SensorType: SensorRadar, LastUpdate: clock.now, Confidence: 1.0},
	}
	if diff := cmp.Diff(want, sensors); diff != "" {
		t.Errorf("Unexpected sensors (-want +got):\n%s", diff)
	}
}

func TestFusionEngineReturnsCopies(t *testing.T) {
	engine := NewFusionEngine(WithFusionClock(newFixedClock()))
	output := engine.Update(cameraReading("cam1", NewDetection("person", 0.9, NewRect(10, 10, 20, 20))))
	output.Tracks[0].SensorSources[0] = "mutated"
	output.Tracks[0].ClassName = "mutated"

	track, _ := engine.Track("T0001")
	if track.SensorSources[0] != "cam1" || track.ClassName != "person" {
		t.Errorf("Engine state was mutated through output: %+v", track)
	}
}

func TestFusionEngineKalmanEstimator(t *testing.T) {
	engine := NewFusionEngine(
		WithFusionClock(newFixedClock()),
		WithFusionConfig(FusionConfig{Estimator: EstimatorKalman}),
		WithEstimatorErrorHandler(func(trackID string, err error) {
			t.Errorf("Estimator failed for %s: %v", trackID, err)
		}),
	)
	x := 100.0
	for i := 0; i < 10; i++ {
		output := engine.Update(cameraReading("cam1", NewDetection("vehicle", 0.7, NewRect(x, 100, 40, 40))))
		if len(output.Tracks) != 1 {
			t.Fatalf("Expected single track on step %d, got %d", i, len(output.Tracks))
		}
		x += 2
	}
	track, _ := engine.Track("T0001")
	// Measured center on the last step is 138
	if math.Abs(track.Position.X-138) > 10 {
		t.Errorf("Kalman position diverged from measurements: %v", track.Position.X)
	}
	if track.Velocity == nil || track.Velocity.X <= 0 {
		t.Errorf("Expected positive velocity along X, got %+v", track.Velocity)
	}
}
