package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LdDl/mot-fusion/internal/config"
	"github.com/LdDl/mot-fusion/mot"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"FUSION_CONFIG",
	"FUSION_ADDR",
	"FUSION_LOG_LEVEL",
	"FUSION_FUSION__MAX_AGE",
	"FUSION_FUSION__ESTIMATOR",
	"FUSION_TRACKER__MAX_MISSES",
	"FUSION_TRACKER__ALGORITHM",
	"FUSION_THREAT_WEIGHTS__DRONE",
	"FUSION_REDIS__ENABLED",
	"FUSION_REDIS__ADDR",
}

func clearConfigEnvVars() {
	for _, name := range configEnvVars {
		_ = os.Unsetenv(name)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "fusion.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should carry default engine parameters", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8090")
				convey.So(cfg.Fusion.IoUThreshold, convey.ShouldEqual, 0.3)
				convey.So(cfg.Fusion.MaxAge, convey.ShouldEqual, 30)
				convey.So(cfg.Fusion.Estimator, convey.ShouldEqual, "blend")
				convey.So(cfg.Tracker.IoUThreshold, convey.ShouldEqual, 0.25)
				convey.So(cfg.Tracker.MaxMisses, convey.ShouldEqual, 10)
				convey.So(cfg.Tracker.Algorithm, convey.ShouldEqual, "greedy")
				convey.So(cfg.ThreatWeights["weapon"], convey.ShouldEqual, 0.9)
				convey.So(cfg.Redis.Enabled, convey.ShouldBeFalse)
				convey.So(cfg.ShutdownTimeout, convey.ShouldEqual, 10*time.Second)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FUSION_ADDR", ":9000")
			_ = os.Setenv("FUSION_FUSION__MAX_AGE", "45")
			_ = os.Setenv("FUSION_TRACKER__MAX_MISSES", "15")
			_ = os.Setenv("FUSION_TRACKER__ALGORITHM", "hungarian")
			_ = os.Setenv("FUSION_THREAT_WEIGHTS__DRONE", "0.4")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults including nested keys", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9000")
				convey.So(cfg.Fusion.MaxAge, convey.ShouldEqual, 45)
				convey.So(cfg.Tracker.MaxMisses, convey.ShouldEqual, 15)
				convey.So(cfg.Tracker.Algorithm, convey.ShouldEqual, "hungarian")
				convey.So(cfg.ThreatWeights["drone"], convey.ShouldEqual, 0.4)
				convey.So(cfg.ThreatWeights["person"], convey.ShouldEqual, 0.2)
			})
		})

		convey.Convey("When loading config with YAML file and env overrides", func() {
			path := createTempConfigFile(t, `
addr: ":9090"
log_level: debug
fusion:
  iou_threshold: 0.4
  estimator: kalman
tracker:
  min_hits: 5
redis:
  enabled: true
  addr: "redis:6379"
  prefix: scene
`)
			_ = os.Setenv("FUSION_CONFIG", path)
			_ = os.Setenv("FUSION_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Fusion.IoUThreshold, convey.ShouldEqual, 0.4)
				convey.So(cfg.Fusion.MaxAge, convey.ShouldEqual, 30)
				convey.So(cfg.Fusion.Estimator, convey.ShouldEqual, "kalman")
				convey.So(cfg.Tracker.MinHits, convey.ShouldEqual, 5)
				convey.So(cfg.Redis.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Redis.Addr, convey.ShouldEqual, "redis:6379")
				convey.So(cfg.Redis.Prefix, convey.ShouldEqual, "scene")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("FUSION_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load(ctx)

			convey.Convey("Then a load error should be returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When env sets an unknown estimator", func() {
			_ = os.Setenv("FUSION_FUSION__ESTIMATOR", "particle")

			_, err := config.Load(ctx)

			convey.Convey("Then validation should fail", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should be valid", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When thresholds are out of range", func() {
			cfg.Fusion.IoUThreshold = 1.5
			cfg.Tracker.MaxMisses = 0
			cfg.ThreatWeights["weapon"] = 2

			err := cfg.Validate()

			convey.Convey("Then every problem should be reported", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "fusion.iou_threshold")
				convey.So(err.Error(), convey.ShouldContainSubstring, "tracker.max_misses")
				convey.So(err.Error(), convey.ShouldContainSubstring, "threat_weights.weapon")
			})
		})

		convey.Convey("When redis is enabled without address", func() {
			cfg.Redis.Enabled = true
			cfg.Redis.Addr = ""

			convey.Convey("Then validation should fail", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestEngineConfigConversion(t *testing.T) {
	convey.Convey("Given config with custom engine settings", t, func() {
		cfg := config.New(context.Background())
		cfg.Fusion.Estimator = "kalman"
		cfg.Tracker.Algorithm = "hungarian"
		cfg.ThreatWeights = map[string]float64{"Drone": 0.4}

		convey.Convey("Then engine configs should carry them", func() {
			fusion := cfg.FusionEngineConfig()
			convey.So(fusion.Estimator, convey.ShouldEqual, mot.EstimatorKalman)
			convey.So(fusion.ThreatWeights["drone"], convey.ShouldEqual, 0.4)
			convey.So(fusion.MaxAge, convey.ShouldEqual, 30)

			tracker := cfg.TrackerEngineConfig()
			convey.So(tracker.Algorithm, convey.ShouldEqual, mot.MatchingAlgorithmHungarian)
			convey.So(tracker.MaxMisses, convey.ShouldEqual, 10)
		})
	})
}
