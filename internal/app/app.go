package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tabsync/server/internal/bus"
	"github.com/tabsync/server/internal/controller"
	"github.com/tabsync/server/internal/repository/connection/inmemory"
	sessionredis "github.com/tabsync/server/internal/repository/session/redis"
	"github.com/tabsync/server/internal/service/session"
	"github.com/tabsync/server/pkg/ctxlogger"
	"github.com/tabsync/server/pkg/redisclient"
)

type AppConfig struct {
	Host               string  `json:"host"`
	Port               int     `json:"port"`
	MembersLimit       int     `json:"members_limit"`
	SoftDriftThreshold float64 `json:"soft_drift_threshold"`
	HardDriftThreshold float64 `json:"hard_drift_threshold"`
	StaleReportTimeout int     `json:"stale_report_timeout"` // seconds
	DestroyGracePeriod int     `json:"destroy_grace_period"` // seconds
	LogLevel           string  `json:"log_level"`
	RedisPort          int     `json:"redis_port"`
	RedisHost          string  `json:"redis_host"`
	RedisPassword      string  `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.SoftDriftThreshold > 0 && cfg.HardDriftThreshold > 0 &&
		cfg.SoftDriftThreshold >= cfg.HardDriftThreshold {
		return fmt.Errorf("soft drift threshold must be below the hard threshold")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	sessionRepo := sessionredis.NewRepo(rc, 24*time.Hour)
	connectionRepo := inmemory.NewRepo()
	eventBus := bus.New(sessionRepo, logger, bus.DefaultQueueSize)
	sessionService := session.NewService(
		sessionRepo,
		connectionRepo,
		eventBus,
		session.NopMetricsSource{},
		clockwork.NewRealClock(),
		logger,
		session.Config{
			MembersLimit:       cfg.MembersLimit,
			SoftDriftThreshold: cfg.SoftDriftThreshold,
			HardDriftThreshold: cfg.HardDriftThreshold,
			StaleReportTimeout: time.Duration(cfg.StaleReportTimeout) * time.Second,
			DestroyGracePeriod: time.Duration(cfg.DestroyGracePeriod) * time.Second,
		},
	)
	controller := controller.NewController(sessionService, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	slog.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
