package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crosspost/app/api"
	"crosspost/app/botapi"
	"crosspost/app/cfg"
	"crosspost/app/collect"
	"crosspost/app/database"
	"crosspost/app/dispatch"
	"crosspost/app/images"
	"crosspost/app/registry"
	"crosspost/app/tasks"
	"crosspost/app/transform"
	"crosspost/app/translate"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Crosspost server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	pairRepo := database.NewPairRepository(db)
	sourceRepo := database.NewSourceRepository(db)
	postRepo := database.NewPostRepository(db)
	scheduledRepo := database.NewScheduledPostRepository(db)
	draftRepo := database.NewDraftRepository(db)
	activityRepo := database.NewActivityLogRepository(db)

	loader := registry.NewLoader(appCfg.RegistryDir)
	if err := loader.Sync(pairRepo, sourceRepo); err != nil {
		slog.Error("Failed to sync registry", "dir", appCfg.RegistryDir, "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	botClient := botapi.NewClient(appCfg.GatewayURL, appCfg.GatewayToken, appCfg.UserAgent)

	var translateClient *translate.Client
	if appCfg.TranslateURL != "" {
		translateClient = translate.NewClient(appCfg.TranslateURL, appCfg.TranslateTo, appCfg.UserAgent)
	} else {
		slog.Info("Translation disabled (TRANSLATE_URL not set)")
	}

	var imageProcessor transform.ImageProcessor
	if appCfg.ImageServerURL != "" {
		imageProcessor = images.NewClient(appCfg.ImageServerURL, appCfg.UserAgent)
	} else {
		slog.Info("Image processing disabled (IMAGE_SERVER_URL not set)")
	}

	var transformTranslator transform.Translator
	var intakeTranslator collect.Translator
	if translateClient != nil {
		transformTranslator = translateClient
		intakeTranslator = translateClient
	}

	transformer := transform.NewTransformer(transformTranslator, imageProcessor, activityRepo)
	dispatcher := dispatch.NewDispatcher(pairRepo, postRepo, scheduledRepo, draftRepo,
		activityRepo, transformer, botClient)
	intake := collect.NewIntake(postRepo, draftRepo, activityRepo, dispatcher, intakeTranslator)

	collectors := map[string]collect.Collector{}

	scheduler := tasks.NewScheduler(dispatcher, activityRepo)

	if appCfg.GatewayToken != "" {
		botCollector := collect.NewBotAPICollector(pairRepo, activityRepo, botClient, intake)
		collectors[botCollector.Name()] = botCollector
		scheduler.RegisterCollector(botCollector, time.Duration(appCfg.ChannelPollInterval)*time.Second, 0)
	} else {
		slog.Info("Bot-API collector disabled (GATEWAY_TOKEN not set)")
	}

	webChannelCollector := collect.NewWebChannelCollector(pairRepo, activityRepo, intake,
		httpClient, appCfg.PreviewBaseURL, appCfg.UserAgent)
	collectors[webChannelCollector.Name()] = webChannelCollector
	scheduler.RegisterCollector(webChannelCollector, time.Duration(appCfg.WebChannelPollInterval)*time.Second, 0)

	webFeedCollector := collect.NewWebFeedCollector(sourceRepo, activityRepo, intake,
		httpClient, appCfg.UserAgent)
	collectors[webFeedCollector.Name()] = webFeedCollector
	scheduler.RegisterCollector(webFeedCollector, time.Duration(appCfg.WebFeedPollInterval)*time.Second, 10*time.Second)

	slog.Info("Starting task scheduler", "workers", appCfg.WorkerCount, "collectors", len(collectors))
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(pairRepo, sourceRepo, postRepo, scheduledRepo, draftRepo,
		activityRepo, dispatcher, scheduler, collectors)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Crosspost server started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
