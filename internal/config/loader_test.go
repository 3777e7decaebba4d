package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meetscribe/captionflow/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func clearConfigEnvVars() {
	for _, key := range []string{
		"CFLOW_CONFIG",
		"CFLOW_LOG_LEVEL",
		"CFLOW_ADDR",
		"CFLOW_QUEUE_SIZE",
		"CFLOW_WORKER_COUNT",
		"CFLOW_SHARD_COUNT",
		"CFLOW_MAPPING_TTL",
		"CFLOW_DEDUPE_TTL",
		"CFLOW_DEDUPE_SWEEP_INTERVAL",
		"CFLOW_MAX_SEGMENT_LIMIT",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 65536)
				convey.So(cfg.MappingTTL, convey.ShouldEqual, 24*time.Hour)
				convey.So(cfg.DedupeTTL, convey.ShouldEqual, time.Hour)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnvVars()
			_ = os.Setenv("CFLOW_ADDR", ":9090")
			_ = os.Setenv("CFLOW_QUEUE_SIZE", "1024")
			_ = os.Setenv("CFLOW_WORKER_COUNT", "8")
			_ = os.Setenv("CFLOW_MAPPING_TTL", "12h")
			_ = os.Setenv("CFLOW_DEDUPE_TTL", "30m")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.MappingTTL, convey.ShouldEqual, 12*time.Hour)
				convey.So(cfg.DedupeTTL, convey.ShouldEqual, 30*time.Minute)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			clearConfigEnvVars()
			yamlContent := `
addr: ":7070"
queue_size: 2048
shard_count: 4
dedupe_sweep_interval: 1m
max_segment_limit: 50
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("CFLOW_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 2048)
				convey.So(cfg.ShardCount, convey.ShouldEqual, 4)
				convey.So(cfg.DedupeSweepInterval, convey.ShouldEqual, time.Minute)
				convey.So(cfg.MaxSegmentLimit, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When file and environment variables both set a key", func() {
			clearConfigEnvVars()
			tmpFile := createTempConfigFile(t, "addr: \":7070\"\n")
			_ = os.Setenv("CFLOW_CONFIG", tmpFile)
			_ = os.Setenv("CFLOW_ADDR", ":6060")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the environment wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("CFLOW_CONFIG", "/nonexistent/config.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When validation rejects a value", func() {
			clearConfigEnvVars()
			_ = os.Setenv("CFLOW_QUEUE_SIZE", "-5")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then an invalid config error is returned", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
