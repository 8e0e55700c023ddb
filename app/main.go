package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/match-watch/app/api"
	"github.com/lysyi3m/match-watch/app/cfg"
	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/match"
	"github.com/lysyi3m/match-watch/app/notify"
	"github.com/lysyi3m/match-watch/app/source"
	"github.com/lysyi3m/match-watch/app/tasks"
	"github.com/lysyi3m/match-watch/app/telemetry"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Match Watch", "version", appCfg.Version, "timezone", time.Local.String())

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	providerRepo := database.NewProviderRepository(db)
	matchRepo := database.NewMatchRepository(db)
	subscriberRepo := database.NewSubscriberRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configCache := source.NewConfigCache(appCfg.ProvidersDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load provider configurations: %w", err)
	}

	syncTask := tasks.NewSyncProvidersTask(configCache, providerRepo)
	syncTask.Start()
	if err := syncTask.Execute(ctx); err != nil {
		return err
	}

	meter, err := telemetry.NewProvider(ctx, appCfg.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meter.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics shutdown error", "error", err)
		}
	}()

	pollMetrics, err := telemetry.NewPollMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create poll metrics: %w", err)
	}
	notifyMetrics, err := telemetry.NewNotifyMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create notification metrics: %w", err)
	}

	vapidKeys, err := notify.LoadOrCreateVAPIDKeys(appCfg.VAPIDKeysFile)
	if err != nil {
		return err
	}

	sender := notify.NewWebPushSender(vapidKeys, appCfg.VAPIDSubject, appCfg.PushTTL, appCfg.DispatchTimeout)
	fanout := notify.NewFanout(subscriberRepo, providerRepo, sender, appCfg.FanoutConcurrency, notifyMetrics)

	fetcher := source.NewHTTPFetcher(&http.Client{}, appCfg.UserAgent, appCfg.FetchTimeout, time.Local)
	inspector := source.NewInspector(fetcher)
	reconciler := match.NewReconciler(matchRepo)

	policy := tasks.Policy{
		Ceiling:        appCfg.PollCeiling,
		AfterResult:    appCfg.AfterResult,
		KickoffBuffer:  appCfg.KickoffBuffer,
		Overdue:        appCfg.OverdueDelay,
		RetryDelay:     appCfg.RetryDelay,
		AbandonDelay:   appCfg.AbandonDelay,
		RetryThreshold: appCfg.RetryThreshold,
		StartupJitter:  appCfg.StartupJitter,
		Location:       time.Local,
	}

	scheduler := tasks.NewScheduler(providerRepo, fetcher, reconciler, fanout, policy, pollMetrics)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	sweeper := tasks.NewSweeper(subscriberRepo, providerRepo, scheduler, appCfg.SweepInterval, appCfg.SweepThreshold, notifyMetrics)
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.NewHandler(providerRepo, subscriberRepo, matchRepo, scheduler, inspector, fanout,
		vapidKeys.PublicKey, meter.Handler())
	server := api.NewServer(handler, appCfg.APIAccessKey, appCfg.Debug)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "api_key", appCfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	return runErr
}
