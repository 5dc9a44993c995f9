package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/conjunction/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MCSamples, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CONJ_ADDR", ":8080")
			_ = os.Setenv("CONJ_QUEUE_SIZE", "64")
			_ = os.Setenv("CONJ_MC_SAMPLES", "30")
			_ = os.Setenv("CONJ_REACTION_WINDOW", "12h")
			_ = os.Setenv("CONJ_HIGH_RISK_THRESHOLD", "-3.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.MCSamples, convey.ShouldEqual, 30)
				convey.So(cfg.ReactionWindow, convey.ShouldEqual, 12*time.Hour)
				convey.So(cfg.HighRiskThreshold, convey.ShouldEqual, -3.5)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
source_type: file
source_path: /data/cdm.json
sequence_length: 5
refresh_interval: 5m
worker_count: 2
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CONJ_CONFIG", tmpFile)
			_ = os.Setenv("CONJ_WORKER_COUNT", "3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.SourceType, convey.ShouldEqual, config.SourceFile)
				convey.So(cfg.SourcePath, convey.ShouldEqual, "/data/cdm.json")
				convey.So(cfg.SequenceLength, convey.ShouldEqual, 5)
				convey.So(cfg.RefreshInterval, convey.ShouldEqual, 5*time.Minute)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.MCSamples, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CONJ_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CONJ_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded values do not validate", func() {
			_ = os.Setenv("CONJ_SOURCE_TYPE", "http")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "source_url")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "conj-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	_ = f.Close()
	return f.Name()
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"CONJ_CONFIG", "CONJ_ADDR", "CONJ_QUEUE_SIZE", "CONJ_MC_SAMPLES",
		"CONJ_REACTION_WINDOW", "CONJ_HIGH_RISK_THRESHOLD", "CONJ_WORKER_COUNT",
		"CONJ_SOURCE_TYPE",
	} {
		_ = os.Unsetenv(k)
	}
}
