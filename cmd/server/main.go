package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"valora/server/config"
	"valora/server/internal/api"
	"valora/server/internal/artifacts"
	"valora/server/internal/database"
	"valora/server/internal/notify"
	"valora/server/internal/processor"
	"valora/server/internal/queue"
	"valora/server/internal/scheduler"
	"valora/server/internal/valuation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		logger.WithError(err).Fatal("Failed to create data directory")
	}

	// Initialize database
	logger.Infof("Using database at: %s", cfg.Storage.DatabasePath)
	db, err := database.NewDatabase(cfg.Storage.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Initialize artifact store and valuation pipeline
	store, err := artifacts.NewStore(cfg.Storage.ModelDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize artifact store")
	}
	registry := valuation.NewRegistry(store)
	trainer := valuation.NewTrainer(store, registry, logger, valuation.Options{
		Seed:                cfg.Training.Seed,
		MaxRounds:           cfg.Training.MaxRounds,
		EarlyStoppingRounds: cfg.Training.EarlyStoppingRounds,
		MinTrainingRows:     cfg.Training.MinRows,
		SearchWorkers:       cfg.Training.SearchWorkers,
		MaxCandidates:       cfg.Training.MaxCandidates,
		CVFolds:             cfg.Training.CVFolds,
	})
	predictor := valuation.NewPredictor(registry, logger)

	// Initialize ingest pipeline
	recordQueue := queue.NewRecordQueue(cfg.BatchProcessing.QueueSize, logger)
	batchProcessor := processor.NewBatchProcessor(db, recordQueue, cfg, logger)
	batchProcessor.Start()
	recordQueue.Start()

	// Initialize retraining scheduler
	notifier := notify.NewService(cfg.Notify.WebhookURL, logger)
	retraining := scheduler.NewScheduler(
		trainer, store, db, nil, notifier, logger,
		scheduler.Policy(cfg.Scheduler.Policy), cfg.Training.Tune,
		time.Duration(cfg.Scheduler.CheckIntervalMinutes)*time.Minute,
	)
	if cfg.Scheduler.Enabled {
		retraining.Start()
		defer retraining.Stop()
	}

	// Initialize router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := api.NewHandler(db, recordQueue, trainer, predictor, store, logger)
	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	recordQueue.Close()
	batchProcessor.Stop()
}
