// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LdDl/mot-fusion/mot"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Fusion  FusionConfig  `koanf:"fusion"`
	Tracker TrackerConfig `koanf:"tracker"`

	// ThreatWeights maps lower-case class names to base threat weights.
	ThreatWeights map[string]float64 `koanf:"threat_weights"`

	Stream StreamConfig `koanf:"stream"`
	Redis  RedisConfig  `koanf:"redis"`
}

// FusionConfig configures the multi-sensor fusion engine.
type FusionConfig struct {
	IoUThreshold float64 `koanf:"iou_threshold"`
	MaxAge       int     `koanf:"max_age"`
	MinHits      int     `koanf:"min_hits"`
	PredictDt    float64 `koanf:"predict_dt"`
	// Estimator is either "blend" or "kalman".
	Estimator string `koanf:"estimator"`
}

// TrackerConfig configures the independent SORT-style tracker.
type TrackerConfig struct {
	IoUThreshold float64 `koanf:"iou_threshold"`
	MaxMisses    int     `koanf:"max_misses"`
	MinHits      int     `koanf:"min_hits"`
	PredictDt    float64 `koanf:"predict_dt"`
	// Algorithm is either "greedy" or "hungarian".
	Algorithm string `koanf:"algorithm"`
}

// StreamConfig configures the websocket feed of fused snapshots.
type StreamConfig struct {
	Enabled bool `koanf:"enabled"`
}

// RedisConfig configures the snapshot publisher.
type RedisConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	Timeout  time.Duration `koanf:"timeout"`
}

// New creates a Config populated with defaults. Context is reserved for future use.
func New(_ context.Context) *Config {
	fusion := mot.DefaultFusionConfig()
	tracker := mot.DefaultTrackerConfig()
	return &Config{
		LogLevel:        "info",
		Addr:            ":8090",
		ShutdownTimeout: 10 * time.Second,
		Fusion: FusionConfig{
			IoUThreshold: fusion.IoUThreshold,
			MaxAge:       fusion.MaxAge,
			MinHits:      fusion.MinHits,
			PredictDt:    fusion.PredictDt,
			Estimator:    string(fusion.Estimator),
		},
		Tracker: TrackerConfig{
			IoUThreshold: tracker.IoUThreshold,
			MaxMisses:    tracker.MaxMisses,
			MinHits:      tracker.MinHits,
			PredictDt:    tracker.PredictDt,
			Algorithm:    string(tracker.Algorithm),
		},
		ThreatWeights: mot.DefaultThreatWeights(),
		Stream: StreamConfig{
			Enabled: true,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Prefix:  "fusion",
			Timeout: 2 * time.Second,
		},
	}
}

// Validate checks value ranges. Returned errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	if c.Fusion.IoUThreshold <= 0 || c.Fusion.IoUThreshold > 1 {
		problems = append(problems, "fusion.iou_threshold must be in (0, 1]")
	}
	if c.Fusion.MaxAge <= 0 {
		problems = append(problems, "fusion.max_age must be positive")
	}
	if c.Fusion.MinHits <= 0 {
		problems = append(problems, "fusion.min_hits must be positive")
	}
	if c.Fusion.PredictDt <= 0 {
		problems = append(problems, "fusion.predict_dt must be positive")
	}
	switch mot.EstimatorKind(c.Fusion.Estimator) {
	case mot.EstimatorBlend, mot.EstimatorKalman:
	default:
		problems = append(problems, fmt.Sprintf("unknown fusion.estimator %q", c.Fusion.Estimator))
	}
	if c.Tracker.IoUThreshold <= 0 || c.Tracker.IoUThreshold > 1 {
		problems = append(problems, "tracker.iou_threshold must be in (0, 1]")
	}
	if c.Tracker.MaxMisses <= 0 {
		problems = append(problems, "tracker.max_misses must be positive")
	}
	if c.Tracker.MinHits <= 0 {
		problems = append(problems, "tracker.min_hits must be positive")
	}
	if c.Tracker.PredictDt <= 0 {
		problems = append(problems, "tracker.predict_dt must be positive")
	}
	if _, err := mot.ParseMatchingAlgorithm(c.Tracker.Algorithm); err != nil {
		problems = append(problems, fmt.Sprintf("unknown tracker.algorithm %q", c.Tracker.Algorithm))
	}
	for class, weight := range c.ThreatWeights {
		if weight < 0 || weight > 1 {
			problems = append(problems, fmt.Sprintf("threat_weights.%s must be in [0, 1]", class))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr must not be empty when redis is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// FusionEngineConfig converts configuration into engine parameters.
func (c *Config) FusionEngineConfig() mot.FusionConfig {
	weights := make(map[string]float64, len(c.ThreatWeights))
	for class, weight := range c.ThreatWeights {
		weights[strings.ToLower(class)] = weight
	}
	return mot.FusionConfig{
		IoUThreshold:  c.Fusion.IoUThreshold,
		MaxAge:        c.Fusion.MaxAge,
		MinHits:       c.Fusion.MinHits,
		PredictDt:     c.Fusion.PredictDt,
		Estimator:     mot.EstimatorKind(c.Fusion.Estimator),
		ThreatWeights: weights,
	}
}

// TrackerEngineConfig converts configuration into tracker parameters.
func (c *Config) TrackerEngineConfig() mot.TrackerConfig {
	algorithm, err := mot.ParseMatchingAlgorithm(c.Tracker.Algorithm)
	if err != nil {
		algorithm = mot.MatchingAlgorithmGreedy
	}
	return mot.TrackerConfig{
		IoUThreshold: c.Tracker.IoUThreshold,
		MaxMisses:    c.Tracker.MaxMisses,
		MinHits:      c.Tracker.MinHits,
		PredictDt:    c.Tracker.PredictDt,
		Algorithm:    algorithm,
	}
}
