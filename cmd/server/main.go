package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tabsync/server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 9,
	}
	softDriftThreshold = configVar[float64]{
		envKey:       "SERVER_SOFT_DRIFT_THRESHOLD",
		flagKey:      "soft-drift-threshold",
		defaultValue: 0.3,
	}
	hardDriftThreshold = configVar[float64]{
		envKey:       "SERVER_HARD_DRIFT_THRESHOLD",
		flagKey:      "hard-drift-threshold",
		defaultValue: 1.0,
	}
	staleReportTimeout = configVar[int]{
		envKey:       "SERVER_STALE_REPORT_TIMEOUT",
		flagKey:      "stale-report-timeout",
		defaultValue: 5,
	}
	destroyGracePeriod = configVar[int]{
		envKey:       "SERVER_DESTROY_GRACE_PERIOD",
		flagKey:      "destroy-grace-period",
		defaultValue: 30,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Int(membersLimit.flagKey, membersLimit.defaultValue, "Maximum number of members in a session")
	pflag.Float64(softDriftThreshold.flagKey, softDriftThreshold.defaultValue, "Soft drift threshold in seconds")
	pflag.Float64(hardDriftThreshold.flagKey, hardDriftThreshold.defaultValue, "Hard drift threshold in seconds")
	pflag.Int(staleReportTimeout.flagKey, staleReportTimeout.defaultValue, "Seconds without a position report before a member is considered gone")
	pflag.Int(destroyGracePeriod.flagKey, destroyGracePeriod.defaultValue, "Seconds an empty session survives before teardown")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(membersLimit.flagKey, membersLimit.envKey)
	viper.BindEnv(softDriftThreshold.flagKey, softDriftThreshold.envKey)
	viper.BindEnv(hardDriftThreshold.flagKey, hardDriftThreshold.envKey)
	viper.BindEnv(staleReportTimeout.flagKey, staleReportTimeout.envKey)
	viper.BindEnv(destroyGracePeriod.flagKey, destroyGracePeriod.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)

	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(membersLimit.flagKey, membersLimit.defaultValue)
	viper.SetDefault(softDriftThreshold.flagKey, softDriftThreshold.defaultValue)
	viper.SetDefault(hardDriftThreshold.flagKey, hardDriftThreshold.defaultValue)
	viper.SetDefault(staleReportTimeout.flagKey, staleReportTimeout.defaultValue)
	viper.SetDefault(destroyGracePeriod.flagKey, destroyGracePeriod.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)

	config := &app.AppConfig{
		Host:               viper.GetString(host.flagKey),
		Port:               viper.GetInt(port.flagKey),
		LogLevel:           viper.GetString(logLevel.flagKey),
		MembersLimit:       viper.GetInt(membersLimit.flagKey),
		SoftDriftThreshold: viper.GetFloat64(softDriftThreshold.flagKey),
		HardDriftThreshold: viper.GetFloat64(hardDriftThreshold.flagKey),
		StaleReportTimeout: viper.GetInt(staleReportTimeout.flagKey),
		DestroyGracePeriod: viper.GetInt(destroyGracePeriod.flagKey),
		RedisPort:          viper.GetInt(redisPort.flagKey),
		RedisHost:          viper.GetString(redisHost.flagKey),
		RedisPassword:      viper.GetString(redisPassword.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
