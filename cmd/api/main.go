package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pasthortown/cripto/config"
	"github.com/pasthortown/cripto/internal/bus"
	"github.com/pasthortown/cripto/internal/gateway"
	"github.com/pasthortown/cripto/internal/ingest"
	"github.com/pasthortown/cripto/internal/logger"
	"github.com/pasthortown/cripto/internal/metrics"
	"github.com/pasthortown/cripto/internal/model"
	"github.com/pasthortown/cripto/internal/store/mongo"
	"github.com/pasthortown/cripto/internal/upstream/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[api] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	zlog := logger.New("cripto-api", cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health (exposed on the API router itself) ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	// ---- Document store ----
	connectCtx, connectCancel := context.WithTimeout(ctx, 15*time.Second)
	store, err := mongo.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase, zlog)
	connectCancel()
	if err != nil {
		log.Fatalf("[api] mongo connect failed: %v", err)
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

	// ---- Upstream klines client (serves POST /api/sync) ----
	fetcher := binance.New(binance.Config{
		BaseURL:       cfg.BinanceBaseURL,
		Retries:       cfg.SyncRetries,
		RetryDelay:    cfg.SyncRetryDelay,
		RetryMaxDelay: cfg.SyncRetryMaxDelay,
		Log:           zlog,
	})
	fetcher.OnRequest = func() { prom.UpstreamRequests.Inc() }
	fetcher.OnRetry = func() { prom.UpstreamRetries.Inc() }

	// ---- Event bus feeding the WebSocket broker ----
	events := bus.New(cfg.WSSendBuffer)
	if cfg.RedisAddr != "" {
		bridge, err := bus.NewRedisBridge(ctx, cfg.RedisAddr, cfg.RedisPassword, zlog)
		if err != nil {
			log.Fatalf("[api] redis bridge failed: %v", err)
		}
		defer bridge.Close()
		go bridge.Consume(ctx, events)
		log.Printf("[api] consuming sync_complete from redis at %s", cfg.RedisAddr)
	}

	// ---- Sync engine for manual POST /api/sync ----
	syncSvc := ingest.New(ingest.Config{
		Store:          store,
		Lister:         store,
		Fetcher:        fetcher,
		Bus:            events,
		BootstrapStart: cfg.BootstrapStart,
		Log:            zlog,
	})
	syncSvc.OnSynced = func(res model.SyncResult, dur time.Duration) {
		prom.SyncRuns.Inc()
		prom.SyncDur.Observe(dur.Seconds())
		prom.CandlesUpserted.Add(float64(res.NewRecords))
		health.SetLastSyncAt(time.Now())
	}
	syncSvc.OnError = func() { prom.SyncErrors.Inc() }

	// ---- WebSocket hub + broadcaster ----
	hub := gateway.NewHub(cfg.WSSendBuffer, zlog)
	hub.OnClients = func(total int) { prom.WSConnections.Set(float64(total)) }
	hub.OnSubscriptions = func(total int) { prom.WSSubscriptions.Set(float64(total)) }
	hub.OnDrop = func() { prom.WSDroppedEvents.Inc() }

	broadcaster := gateway.NewBroadcaster(hub, zlog)
	go broadcaster.Run(ctx, events.Subscribe())

	// ---- HTTP surface ----
	api := &gateway.Server{
		Service:     "cripto-api",
		Candles:     store,
		Predictions: store,
		Lister:      store,
		Pinger:      store,
		Ingest:      syncSvc,
		Hub:         hub,
		Log:         zlog,
	}
	api.OnRequest = func(path string, code int, dur time.Duration) {
		prom.HTTPRequestDur.WithLabelValues(path, strconv.Itoa(code)).Observe(dur.Seconds())
	}

	srv := &http.Server{Addr: cfg.APIAddr, Handler: api.Router()}
	go func() {
		log.Printf("[api] serving at http://localhost%s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[api] server error: %v", err)
		}
	}()

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[api] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	hub.CloseAll()
	srv.Shutdown(shutdownCtx)

	log.Println("[api] shutdown complete.")
}
