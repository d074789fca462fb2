package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/sony/gobreaker"
)

func TestNextDelay_DoublesUpToCap(t *testing.T) {
	tests := []struct {
		name    string
		current time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{"doubles", 10 * time.Second, 60 * time.Second, 20 * time.Second},
		{"caps", 40 * time.Second, 60 * time.Second, 60 * time.Second},
		{"stays at cap", 60 * time.Second, 60 * time.Second, 60 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextDelay(tt.current, tt.max); got != tt.want {
				t.Errorf("nextDelay(%v, %v) = %v, want %v", tt.current, tt.max, got, tt.want)
			}
		})
	}
}

func TestWithJitter_StaysWithinBounds(t *testing.T) {
	base := 10 * time.Second
	lo := time.Duration(float64(base) * 0.8)
	hi := time.Duration(float64(base) * 1.2)
	for i := 0; i < 200; i++ {
		got := withJitter(base)
		if got < lo || got > hi {
			t.Fatalf("withJitter(%v) = %v, want within [%v, %v]", base, got, lo, hi)
		}
	}
	if got := withJitter(0); got != 0 {
		t.Errorf("withJitter(0) = %v, want 0", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantRetryable bool
	}{
		{"rate limit", &common.APIError{Code: -1003, Message: "Too many requests."}, 429, true},
		{"invalid symbol", &common.APIError{Code: -1121, Message: "Invalid symbol."}, 400, false},
		{"server side", &common.APIError{Code: -1000, Message: "An unknown error occurred."}, 500, true},
		{"breaker open", gobreaker.ErrOpenState, 0, false},
		{"context canceled", context.Canceled, 0, false},
		{"plain network error", errors.New("connection reset"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", got.Status, tt.wantStatus)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if !errors.Is(got, tt.err) && got.Err != tt.err {
				t.Errorf("classified error does not wrap the original")
			}
		})
	}
}

func TestBannedUntil(t *testing.T) {
	future := time.Now().Add(45 * time.Second).UnixMilli()
	msg := fmt.Sprintf("Way too much request weight used; IP banned until %d.", future)

	got := bannedUntil(msg)
	if got < 40*time.Second || got > 45*time.Second {
		t.Errorf("bannedUntil = %v, want about 45s", got)
	}

	if got := bannedUntil("Too many requests."); got != 0 {
		t.Errorf("bannedUntil without timestamp = %v, want 0", got)
	}

	past := strconv.FormatInt(time.Now().Add(-time.Minute).UnixMilli(), 10)
	if got := bannedUntil("IP banned until " + past + "."); got != 0 {
		t.Errorf("bannedUntil with elapsed timestamp = %v, want 0", got)
	}
}

func TestToCandles(t *testing.T) {
	k := &binance.Kline{
		OpenTime:                 1764579600000,
		Open:                     "42000.00",
		High:                     "42025.50",
		Low:                      "41985.25",
		Close:                    "42010.00",
		Volume:                   "100.5",
		CloseTime:                1764579659999,
		QuoteAssetVolume:         "4221005.0",
		TradeNum:                 321,
		TakerBuyBaseAssetVolume:  "60.25",
		TakerBuyQuoteAssetVolume: "2531530.5",
	}

	out, err := toCandles([]*binance.Kline{k})
	if err != nil {
		t.Fatalf("toCandles: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d candles, want 1", len(out))
	}
	c := out[0]
	if c.OpenTime != 1764579600000 || c.CloseTime != 1764579659999 {
		t.Errorf("times = (%d, %d), want (1764579600000, 1764579659999)", c.OpenTime, c.CloseTime)
	}
	if c.Open != 42000 || c.High != 42025.5 || c.Low != 41985.25 || c.Close != 42010 {
		t.Errorf("ohlc = (%v, %v, %v, %v)", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume != 100.5 || c.Trades != 321 {
		t.Errorf("volume = %v trades = %d", c.Volume, c.Trades)
	}
}

func TestToCandles_UnparseableRowFailsBatch(t *testing.T) {
	k := &binance.Kline{Open: "not-a-number", High: "1", Low: "1", Close: "1", Volume: "1",
		QuoteAssetVolume: "1", TakerBuyBaseAssetVolume: "1", TakerBuyQuoteAssetVolume: "1"}
	if _, err := toCandles([]*binance.Kline{k}); err == nil {
		t.Fatal("expected error for unparseable open, got nil")
	}
}
