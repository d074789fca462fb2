package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pasthortown/cripto/config"
	"github.com/pasthortown/cripto/internal/bus"
	"github.com/pasthortown/cripto/internal/ingest"
	"github.com/pasthortown/cripto/internal/logger"
	"github.com/pasthortown/cripto/internal/metrics"
	"github.com/pasthortown/cripto/internal/model"
	"github.com/pasthortown/cripto/internal/store/mongo"
	"github.com/pasthortown/cripto/internal/upstream/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ingestor] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	zlog := logger.New("cripto-ingestor", cfg.LogLevel, cfg.LogPretty)

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
		log.Fatalf("[ingestor] mongo connect failed: %v", err)
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

	// ---- Upstream klines client ----
	fetcher := binance.New(binance.Config{
		BaseURL:       cfg.BinanceBaseURL,
		Retries:       cfg.SyncRetries,
		RetryDelay:    cfg.SyncRetryDelay,
		RetryMaxDelay: cfg.SyncRetryMaxDelay,
		Log:           zlog,
	})
	fetcher.OnRequest = func() { prom.UpstreamRequests.Inc() }
	fetcher.OnRetry = func() { prom.UpstreamRetries.Inc() }

	// ---- Event bus (+ optional Redis mirror) ----
	events := bus.New(64)
	if cfg.RedisAddr != "" {
		bridge, err := bus.NewRedisBridge(ctx, cfg.RedisAddr, cfg.RedisPassword, zlog)
		if err != nil {
			log.Fatalf("[ingestor] redis bridge failed: %v", err)
		}
		defer bridge.Close()
		go bridge.Mirror(ctx, events.Subscribe())
		log.Printf("[ingestor] mirroring sync_complete to redis at %s", cfg.RedisAddr)
	}

	// ---- Sync engine ----
	svc := ingest.New(ingest.Config{
		Store:          store,
		Lister:         store,
		Fetcher:        fetcher,
		Bus:            events,
		BootstrapStart: cfg.BootstrapStart,
		Log:            zlog,
	})
	svc.OnSynced = func(res model.SyncResult, dur time.Duration) {
		prom.SyncRuns.Inc()
		prom.SyncDur.Observe(dur.Seconds())
		prom.CandlesUpserted.Add(float64(res.NewRecords))
		health.SetLastSyncAt(time.Now())
	}
	svc.OnError = func() { prom.SyncErrors.Inc() }

	go svc.Run(ctx, cfg.Symbols, cfg.SyncInterval)

	if len(cfg.Symbols) > 0 {
		log.Printf("[ingestor] syncing %v every %v (bootstrap from %s)",
			cfg.Symbols, cfg.SyncInterval, cfg.BootstrapStart.Format(time.RFC3339))
	} else {
		log.Printf("[ingestor] syncing all stored symbols every %v", cfg.SyncInterval)
	}

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[ingestor] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[ingestor] shutdown complete.")
}
