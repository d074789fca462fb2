package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the ingest, gateway and predictor packages from
// the concrete document store so each can be tested against in-memory fakes.
// Range bounds are inclusive open_time values in epoch ms; a negative bound
// means unbounded. Limit 0 means no limit; when both bounds are unbounded a
// positive limit selects the NEWEST limit rows, returned in ascending order.

// CandleStore reads and writes the per-symbol real minute series.
type CandleStore interface {
	// UpsertCandles writes candles idempotently by open_time and returns
	// how many were newly inserted. Duplicates count as success.
	UpsertCandles(ctx context.Context, symbol string, candles []Candle) (int64, error)

	// LastCandle returns the newest stored candle, or nil when the symbol
	// has no data yet.
	LastCandle(ctx context.Context, symbol string) (*Candle, error)

	// CandlesRange returns candles ordered by open_time ascending.
	CandlesRange(ctx context.Context, symbol string, start, end, limit int64) ([]Candle, error)

	// RealDataCovers reports whether a real candle exists for every minute
	// of [hour:00, hour:60) on the given UTC day.
	RealDataCovers(ctx context.Context, symbol string, day time.Time, hour int) (bool, error)

	// Stats summarizes the stored series. ErrUnknownSymbol when empty.
	Stats(ctx context.Context, symbol string) (*SymbolStats, error)
}

// PredictionStore reads and writes predicted minute bars.
type PredictionStore interface {
	// UpsertPredictions writes predictions idempotently by open_time.
	UpsertPredictions(ctx context.Context, symbol string, preds []Prediction) (int64, error)

	// PredictionsRange returns predictions ordered by open_time ascending.
	PredictionsRange(ctx context.Context, symbol string, start, end, limit int64) ([]Prediction, error)

	// HourHasPrediction reports whether any prediction exists inside hour h
	// of the given UTC day.
	HourHasPrediction(ctx context.Context, symbol string, day time.Time, hour int) (bool, error)

	// LastPredictedHourToday returns the max hour-of-day with at least one
	// prediction on the given UTC day, or -1 when there is none.
	LastPredictedHourToday(ctx context.Context, symbol string, day time.Time) (int, error)
}

// SymbolLister enumerates the symbols known to storage, uppercased and
// sorted. Symbols with no stored candles are skipped.
type SymbolLister interface {
	Symbols(ctx context.Context) ([]string, error)
}

// Pinger reports storage connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
