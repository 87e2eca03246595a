package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/okian/huddle/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.GroupSize, convey.ShouldEqual, 4)
				convey.So(cfg.DatabaseURL, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("HUDDLE_ADDR", ":8080")
			_ = os.Setenv("HUDDLE_GROUP_SIZE", "5")
			_ = os.Setenv("HUDDLE_STALE_GROUP_TIMEOUT_SEC", "600")
			_ = os.Setenv("HUDDLE_GUARD_HONORS_OVERRIDE", "false")
			_ = os.Setenv("HUDDLE_INTEREST_WEIGHT", "0.6")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.GroupSize, convey.ShouldEqual, 5)
				convey.So(cfg.StaleGroupTimeoutSec, convey.ShouldEqual, 600)
				convey.So(cfg.GuardHonorsOverride, convey.ShouldBeFalse)
				convey.So(cfg.InterestWeight, convey.ShouldEqual, 0.6)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
group_size: 6
checkin_window_before_min: 45
database_url: "postgres://localhost/huddle?sslmode=disable"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("HUDDLE_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.GroupSize, convey.ShouldEqual, 6)
				convey.So(cfg.CheckInWindowBeforeMin, convey.ShouldEqual, 45)
				convey.So(cfg.CheckInWindowAfterMin, convey.ShouldEqual, 60)
				convey.So(cfg.DatabaseURL, convey.ShouldStartWith, "postgres://")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
group_size: 6
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("HUDDLE_CONFIG", tmpFile)
			_ = os.Setenv("HUDDLE_GROUP_SIZE", "3")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.GroupSize, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("HUDDLE_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrLoadConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("HUDDLE_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("HUDDLE_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a group size of one", func() {
			_ = os.Setenv("HUDDLE_GROUP_SIZE", "1")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("HUDDLE_GROUP_SIZE", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.
func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if name := kv[:i]; len(name) >= len(config.EnvPrefix) && name[:len(config.EnvPrefix)] == config.EnvPrefix {
					_ = os.Unsetenv(name)
				}
				break
			}
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "huddle-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
