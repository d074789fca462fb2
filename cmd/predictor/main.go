package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pasthortown/cripto/config"
	"github.com/pasthortown/cripto/internal/journal"
	"github.com/pasthortown/cripto/internal/logger"
	"github.com/pasthortown/cripto/internal/metrics"
	"github.com/pasthortown/cripto/internal/mlp"
	"github.com/pasthortown/cripto/internal/predictor"
	"github.com/pasthortown/cripto/internal/store/mongo"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[predictor] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	zlog := logger.New("cripto-predictor", cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Document store ----
	connectCtx, connectCancel := context.WithTimeout(ctx, 15*time.Second)
	store, err := mongo.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase, zlog)
	connectCancel()
	if err != nil {
		log.Fatalf("[predictor] mongo connect failed: %v", err)
	}
	defer store.Close(context.Background())

	health.SetMongoConnected(true)
	health.OnProbe = func(ok bool) {
		if ok {
			prom.StorageUp.Set(1)
		} else {
			prom.StorageUp.Set(0)
		}
	}
	health.StartLivenessChecker(ctx, store, 10*time.Second)

	// ---- Model artifacts ----
	lifecycle, err := predictor.NewLifecycle(cfg.ModelsDir, cfg.ModelCacheSize, zlog)
	if err != nil {
		log.Fatalf("[predictor] models dir init failed: %v", err)
	}
	log.Printf("[predictor] model artifacts in %s", cfg.ModelsDir)

	// ---- Training journal (optional) ----
	var jnl *journal.Journal
	if cfg.JournalPath != "" {
		jnl, err = journal.New(cfg.JournalPath)
		if err != nil {
			log.Fatalf("[predictor] journal init failed: %v", err)
		}
		defer jnl.Close()
		log.Printf("[predictor] training journal at %s", cfg.JournalPath)
	}

	// ---- Prediction service ----
	svc := predictor.New(predictor.Config{
		Candles:     store,
		Predictions: store,
		Lister:      store,
		Lifecycle:   lifecycle,
		Journal:     jnl,
		Train: mlp.Config{
			Epochs:          cfg.TrainEpochs,
			BatchSize:       cfg.TrainBatchSize,
			LearningRate:    cfg.TrainLearningRate,
			ValidationSplit: cfg.TrainValidationSplit,
		},
		Log: zlog,
	})
	svc.OnHourPredicted = func() { prom.HoursPredicted.Inc() }
	svc.OnTrained = func(dur time.Duration) {
		prom.Trainings.Inc()
		prom.TrainingDur.Observe(dur.Seconds())
	}
	svc.OnSkip = func(reason string) { prom.PredictorSkips.WithLabelValues(reason).Inc() }

	go svc.Run(ctx, cfg.Symbols, cfg.ValidationInterval)

	if len(cfg.Symbols) > 0 {
		log.Printf("[predictor] validating %v every %v", cfg.Symbols, cfg.ValidationInterval)
	} else {
		log.Printf("[predictor] validating all stored symbols every %v", cfg.ValidationInterval)
	}

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[predictor] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[predictor] shutdown complete.")
}
