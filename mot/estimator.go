package mot

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// EstimatorKind selects the per-track state estimator used by FusionEngine
type EstimatorKind string

const (
	// EstimatorBlend is the fixed-weight position smoother (default)
	EstimatorBlend EstimatorKind = "blend"
	// EstimatorKalman is the constant-velocity Kalman filter
	EstimatorKalman EstimatorKind = "kalman"
)

const (
	// BlendMeasurementWeight is the weight given to a new measurement by BlendEstimator
	BlendMeasurementWeight = 0.7
	// DefaultPredictDt is the prediction step (seconds) used when none is configured
	DefaultPredictDt = 0.033
)

// EstimatorState is the [x, y, vx, vy] state of a fused track
type EstimatorState struct {
	X  float64
	Y  float64
	VX float64
	VY float64
}

// StateEstimator is the recursive position/velocity estimator attached to a fused track.
type StateEstimator interface {
	// Predict advances the state by dt seconds
	Predict(dt float64)
	// Update corrects the state with a measured centroid
	Update(x, y float64) error
	// State returns current estimate
	State() EstimatorState
}

// BlendEstimator is an exponential smoother over position.
// Predict moves position by velocity*dt; Update blends position toward the
// measurement with BlendMeasurementWeight. Velocity is never re-estimated.
type BlendEstimator struct {
	state EstimatorState
	alpha float64
}

// NewBlendEstimator creates BlendEstimator seeded at (x, y) with zero velocity
func NewBlendEstimator(x, y float64) *BlendEstimator {
	return &BlendEstimator{
		state: EstimatorState{X: x, Y: y},
		alpha: BlendMeasurementWeight,
	}
}

// Predict advances position by velocity*dt
func (est *BlendEstimator) Predict(dt float64) {
	est.state.X += est.state.VX * dt
	est.state.Y += est.state.VY * dt
}

// Update blends position toward the measurement
func (est *BlendEstimator) Update(x, y float64) error {
	est.state.X = est.alpha*x + (1-est.alpha)*est.state.X
	est.state.Y = est.alpha*y + (1-est.alpha)*est.state.Y
	return nil
}

// State returns current estimate
func (est *BlendEstimator) State() EstimatorState {
	return est.state
}

// KalmanEstimator wraps a 2-D constant-velocity Kalman filter.
// The filter's time step is fixed at construction, so Predict ignores its argument
// for the filter itself and only uses it to account the elapsed time.
// Velocity is the displacement of the filtered position between two updates
// divided by the time predicted in between.
type KalmanEstimator struct {
	tracker     *kalman_filter.Kalman2D
	state       EstimatorState
	lastX       float64
	lastY       float64
	sinceUpdate float64
}

// NewKalmanEstimator creates KalmanEstimator seeded at (x, y) with filter step dt
func NewKalmanEstimator(x, y, dt float64) *KalmanEstimator {
	if dt <= 0 {
		dt = DefaultPredictDt
	}
	/* Kalman filter props */
	ux := 0.0
	uy := 0.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(x, y))
	return &KalmanEstimator{
		tracker: kf,
		state:   EstimatorState{X: x, Y: y},
		lastX:   x,
		lastY:   y,
	}
}

// Predict executes Kalman filter's prediction step
func (est *KalmanEstimator) Predict(dt float64) {
	est.tracker.Predict()
	est.state.X, est.state.Y = est.tracker.GetState()
	est.sinceUpdate += dt
}

// Update executes Kalman filter's correction step and re-evaluates velocity
func (est *KalmanEstimator) Update(x, y float64) error {
	err := est.tracker.Update(x, y)
	if err != nil {
		return errors.Wrap(err, "Can't update kalman estimator")
	}
	stateX, stateY := est.tracker.GetState()
	if est.sinceUpdate > 0 {
		est.state.VX = (stateX - est.lastX) / est.sinceUpdate
		est.state.VY = (stateY - est.lastY) / est.sinceUpdate
	}
	est.state.X = stateX
	est.state.Y = stateY
	est.lastX = stateX
	est.lastY = stateY
	est.sinceUpdate = 0
	return nil
}

// State returns current estimate
func (est *KalmanEstimator) State() EstimatorState {
	return est.state
}

// newEstimator builds estimator of the requested kind seeded at (x, y)
func newEstimator(kind EstimatorKind, x, y, dt float64) StateEstimator {
	switch kind {
	case EstimatorKalman:
		return NewKalmanEstimator(x, y, dt)
	default:
		return NewBlendEstimator(x, y)
	}
}
