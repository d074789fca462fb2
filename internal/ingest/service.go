// Package ingest implements the sync engine: keep each symbol's minute
// series gap-free and at most one minute behind the exchange. The same
// engine serves the ingestor's periodic loop and the API's one-shot
// POST /api/sync.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/bus"
	"github.com/pasthortown/cripto/internal/model"
)

// Fetcher streams minute candles from the upstream exchange in ascending
// batches.
type Fetcher interface {
	FetchRange(ctx context.Context, symbol string, start, end int64, fn func([]model.Candle) error) error
}

// Service performs sync passes against one candle store.
type Service struct {
	store          model.CandleStore
	lister         model.SymbolLister
	fetcher        Fetcher
	bus            *bus.Bus
	bootstrapStart time.Time
	log            zerolog.Logger
	now            func() time.Time

	// Metrics hooks
	OnSynced func(res model.SyncResult, dur time.Duration) // called after every successful pass (optional)
	OnError  func()                                        // called when a pass is abandoned (optional)
}

// Config wires a Service.
type Config struct {
	Store          model.CandleStore
	Lister         model.SymbolLister
	Fetcher        Fetcher
	Bus            *bus.Bus
	BootstrapStart time.Time
	Log            zerolog.Logger
	Now            func() time.Time // defaults to time.Now
}

// New creates a sync engine.
func New(cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:          cfg.Store,
		lister:         cfg.Lister,
		fetcher:        cfg.Fetcher,
		bus:            cfg.Bus,
		bootstrapStart: cfg.BootstrapStart,
		log:            cfg.Log,
		now:            cfg.Now,
	}
}

// SyncSymbol performs one sync pass for one symbol: fetch everything from
// the stored tail (or the bootstrap date) through the last complete
// minute, upsert batch by batch, and publish sync_complete when anything
// new arrived.
func (s *Service) SyncSymbol(ctx context.Context, symbol string) (model.SyncResult, error) {
	symbol = strings.ToUpper(symbol)
	started := s.now()

	last, err := s.store.LastCandle(ctx, symbol)
	if err != nil {
		s.fail()
		return model.SyncResult{}, err
	}

	start := s.bootstrapStart.UnixMilli()
	if last != nil {
		start = last.OpenTime + model.MinuteMs
	}
	end := lastCompleteMinuteEnd(s.now())

	var newRecords int64
	if start <= end {
		err = s.fetcher.FetchRange(ctx, symbol, start, end, func(batch []model.Candle) error {
			n, err := s.store.UpsertCandles(ctx, symbol, batch)
			newRecords += n
			return err
		})
		if err != nil {
			s.fail()
			return model.SyncResult{}, err
		}
	}

	stats, err := s.store.Stats(ctx, symbol)
	if err != nil {
		s.fail()
		return model.SyncResult{}, err
	}

	res := model.SyncResult{Symbol: symbol, NewRecords: newRecords, Stats: *stats}
	if newRecords > 0 && s.bus != nil {
		s.bus.Publish(res)
	}
	if s.OnSynced != nil {
		s.OnSynced(res, s.now().Sub(started))
	}

	s.log.Debug().
		Str("symbol", symbol).
		Int64("new_records", newRecords).
		Int64("total", stats.TotalRecords).
		Msg("sync pass complete")
	return res, nil
}

// SyncAll runs one pass over the given symbols sequentially. With an empty
// list the symbols known to storage are used. Per-symbol failures are
// logged and do not stop the pass.
func (s *Service) SyncAll(ctx context.Context, symbols []string) {
	if len(symbols) == 0 && s.lister != nil {
		var err error
		symbols, err = s.lister.Symbols(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("symbol enumeration failed, skipping pass")
			return
		}
	}

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.SyncSymbol(ctx, symbol); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("sync pass failed")
		}
	}
}

// Run executes sync passes on the interval, the first pass aligned to the
// next minute boundary so candles land right after the exchange closes
// them. Blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context, symbols []string, interval time.Duration) {
	now := s.now()
	first := now.Truncate(time.Minute).Add(time.Minute).Sub(now)
	s.log.Info().
		Dur("align", first).
		Dur("interval", interval).
		Int("symbols", len(symbols)).
		Msg("ingest loop starting")

	select {
	case <-ctx.Done():
		return
	case <-time.After(first):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.SyncAll(ctx, symbols)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncAll(ctx, symbols)
		}
	}
}

func (s *Service) fail() {
	if s.OnError != nil {
		s.OnError()
	}
}

// lastCompleteMinuteEnd returns the inclusive open_time upper bound that
// excludes the still-forming minute: the current minute start less 1 ms.
func lastCompleteMinuteEnd(now time.Time) int64 {
	return now.UTC().Truncate(time.Minute).UnixMilli() - 1
}
