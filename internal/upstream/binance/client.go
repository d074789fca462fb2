// Package binance wraps the exchange klines REST endpoint with window
// paging, request pacing, bounded retries and a circuit breaker.
package binance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pasthortown/cripto/internal/model"
)

// batchLimit is the exchange per-request cap for klines.
const batchLimit = 1000

// RequestError describes an upstream REST failure. Status is the closest
// HTTP status when known (0 for network-level failures); RetryAfter is the
// pause requested by the exchange, when it surfaced one.
type RequestError struct {
	Status     int
	RetryAfter time.Duration
	Retryable  bool
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("upstream request (status=%d retryable=%v): %v", e.Status, e.Retryable, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Config configures the klines client.
type Config struct {
	BaseURL       string // empty = SDK default
	Retries       int    // total attempts per window
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	Log           zerolog.Logger
}

// Client fetches 1-minute klines. Safe for concurrent use.
type Client struct {
	api           *binance.Client
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	retries       int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	log           zerolog.Logger

	// Metrics hooks
	OnRequest func() // called before each klines request (optional)
	OnRetry   func() // called before each retry sleep (optional)
}

// New creates a klines client. Requests are paced well under the exchange
// weight cap; the breaker opens after 5 consecutive failures and probes
// again after 30 s.
func New(cfg Config) *Client {
	api := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		api.BaseURL = cfg.BaseURL
	}

	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 60 * time.Second
	}

	st := gobreaker.Settings{Name: "binance-klines"}
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Client{
		api:           api,
		limiter:       rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		breaker:       gobreaker.NewCircuitBreaker(st),
		retries:       cfg.Retries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		log:           cfg.Log,
	}
}

// FetchRange streams 1m candles with open_time in [start, end] to fn in
// ascending batches of up to 1000, advancing the cursor to the last
// close_time + 1. An fn error aborts the walk.
func (c *Client) FetchRange(ctx context.Context, symbol string, start, end int64, fn func([]model.Candle) error) error {
	cursor := start
	for cursor <= end {
		klines, err := c.fetchBatch(ctx, symbol, cursor, end)
		if err != nil {
			return err
		}
		if len(klines) == 0 {
			return nil
		}

		candles, err := toCandles(klines)
		if err != nil {
			// Unparseable rows: drop the whole batch, next tick refetches.
			return &RequestError{Retryable: false, Err: fmt.Errorf("protocol: %w", err)}
		}
		if err := fn(candles); err != nil {
			return err
		}

		next := klines[len(klines)-1].CloseTime + 1
		if next <= cursor {
			return &RequestError{Retryable: false, Err: fmt.Errorf("protocol: cursor did not advance past %d", cursor)}
		}
		cursor = next
	}
	return nil
}

// fetchBatch performs one paced klines request with bounded backoff.
func (c *Client) fetchBatch(ctx context.Context, symbol string, start, end int64) ([]*binance.Kline, error) {
	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Retryable: false, Err: err}
		}
		if c.OnRequest != nil {
			c.OnRequest()
		}

		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.api.NewKlinesService().
				Symbol(symbol).
				Interval("1m").
				StartTime(start).
				EndTime(end).
				Limit(batchLimit).
				Do(ctx)
		})
		if err == nil {
			return res.([]*binance.Kline), nil
		}

		reqErr := classify(err)
		if !reqErr.Retryable || attempt >= c.retries {
			return nil, reqErr
		}

		sleep := withJitter(delay)
		if reqErr.RetryAfter > 0 {
			sleep = reqErr.RetryAfter
		}
		if c.OnRetry != nil {
			c.OnRetry()
		}
		c.log.Warn().
			Str("symbol", symbol).
			Int("attempt", attempt).
			Dur("sleep", sleep).
			Err(reqErr.Err).
			Msg("klines request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, &RequestError{Retryable: false, Err: ctx.Err()}
		case <-time.After(sleep):
		}
		delay = nextDelay(delay, c.retryMaxDelay)
	}
}

var bannedUntilRe = regexp.MustCompile(`banned until (\d+)`)

// classify maps SDK and transport errors onto RequestError kinds.
func classify(err error) *RequestError {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == -1003:
			// Rate limited. Ban messages embed the release timestamp.
			return &RequestError{Status: 429, RetryAfter: bannedUntil(apiErr.Message), Retryable: true, Err: err}
		case apiErr.Code <= -1100 && apiErr.Code > -1200:
			// Malformed request or unknown symbol; retrying cannot help.
			return &RequestError{Status: 400, Retryable: false, Err: err}
		default:
			return &RequestError{Status: 500, Retryable: true, Err: err}
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Breaker cooling down; give the symbol up for this tick.
		return &RequestError{Retryable: false, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &RequestError{Retryable: false, Err: err}
	}
	return &RequestError{Retryable: true, Err: err}
}

// bannedUntil extracts the wait from messages like
// "... IP banned until 1645021200000 ...". Zero when absent or elapsed.
func bannedUntil(msg string) time.Duration {
	m := bannedUntilRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	d := time.Until(time.UnixMilli(ms))
	if d < 0 {
		return 0
	}
	return d
}

// toCandles parses exchange kline rows. Any unparseable field fails the
// whole batch.
func toCandles(klines []*binance.Kline) ([]model.Candle, error) {
	out := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		c := model.Candle{OpenTime: k.OpenTime, CloseTime: k.CloseTime, Trades: k.TradeNum}
		var err error
		if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
			return nil, fmt.Errorf("open %q: %w", k.Open, err)
		}
		if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
			return nil, fmt.Errorf("high %q: %w", k.High, err)
		}
		if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
			return nil, fmt.Errorf("low %q: %w", k.Low, err)
		}
		if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
			return nil, fmt.Errorf("close %q: %w", k.Close, err)
		}
		if c.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
			return nil, fmt.Errorf("volume %q: %w", k.Volume, err)
		}
		if c.QuoteVolume, err = strconv.ParseFloat(k.QuoteAssetVolume, 64); err != nil {
			return nil, fmt.Errorf("quote volume %q: %w", k.QuoteAssetVolume, err)
		}
		if c.TakerBuyBase, err = strconv.ParseFloat(k.TakerBuyBaseAssetVolume, 64); err != nil {
			return nil, fmt.Errorf("taker buy base %q: %w", k.TakerBuyBaseAssetVolume, err)
		}
		if c.TakerBuyQuote, err = strconv.ParseFloat(k.TakerBuyQuoteAssetVolume, 64); err != nil {
			return nil, fmt.Errorf("taker buy quote %q: %w", k.TakerBuyQuoteAssetVolume, err)
		}
		out = append(out, c)
	}
	return out, nil
}
