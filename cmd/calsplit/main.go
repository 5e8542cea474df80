package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env"
	"github.com/robfig/cron/v3"
	"go.uber.org/automaxprocs/maxprocs"

	"calsplit/internal/aggregate"
	"calsplit/internal/auth"
	"calsplit/internal/config"
	"calsplit/internal/database"
	"calsplit/internal/logging"
	"calsplit/internal/server"
	"calsplit/internal/source"
	"calsplit/internal/store"
)

type environmentVariables struct {
	Port        string `env:"CALSPLIT_PORT" envDefault:"8080"`
	DBPath      string `env:"CALSPLIT_DB_PATH" envDefault:"calsplit.db"`
	ConfigPath  string `env:"CALSPLIT_CONFIG" envDefault:"calsplit.yml"`
	ClientID    string `env:"CALSPLIT_OAUTH_CLIENT_ID,required"`
	RedirectURL string `env:"CALSPLIT_OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`
	LogLevel    string `env:"CALSPLIT_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"CALSPLIT_LOG_FORMAT" envDefault:"text"`
}

func main() {
	envVars := environmentVariables{}
	if err := env.Parse(&envVars); err != nil {
		logging.Setup("info", "text").Error("parse environment", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(envVars.LogLevel, envVars.LogFormat)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug("maxprocs", "message", format, "args", args)
	})); err != nil {
		logger.Warn("set GOMAXPROCS", "error", err)
	}

	cfg, err := config.Load(envVars.ConfigPath)
	if err != nil {
		logger.Error("load config", "path", envVars.ConfigPath, "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("resolve timezone", "timezone", cfg.Display.Timezone, "error", err)
		os.Exit(1)
	}

	db, err := database.Open(envVars.DBPath)
	if err != nil {
		logger.Error("open database", "path", envVars.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	session := auth.NewManager(
		store.NewSessionStore(db),
		auth.NewFlow(envVars.ClientID, envVars.RedirectURL),
		logger.With("component", "auth"),
	)
	if err := session.Resume(); err != nil {
		logger.Warn("resume session", "error", err)
	}

	googleFactory := func(ctx context.Context, token string) (source.Client, error) {
		return source.NewGoogleClient(ctx, token, loc, logger.With("component", "google"))
	}
	icsClient := source.NewICSClient(loc, logger.With("component", "ics"))
	svc := aggregate.New(cfg, session, googleFactory, icsClient, loc, logger.With("component", "aggregate"))

	srv := server.New(cfg, svc, session, loc, logger)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RefreshCron, func() {
		if _, err := svc.Refresh(rootCtx); err != nil {
			logger.Error("scheduled refresh", "error", err)
		}
	}); err != nil {
		logger.Error("invalid refresh schedule", "schedule", cfg.RefreshCron, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Expired rate-limit windows accumulate per client IP on the public
	// auth routes; sweep them periodically.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-rootCtx.Done():
				return
			}
		}
	}()

	// First pass so the grid has data before the schedule first fires.
	go func() {
		if _, err := svc.Refresh(rootCtx); err != nil {
			logger.Error("initial refresh", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + envVars.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
