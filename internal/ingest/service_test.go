package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/bus"
	"github.com/pasthortown/cripto/internal/model"
)

// memStore is a minimal in-memory CandleStore keyed by open_time.
type memStore struct {
	candles map[int64]model.Candle
}

func newMemStore() *memStore {
	return &memStore{candles: make(map[int64]model.Candle)}
}

func (m *memStore) UpsertCandles(_ context.Context, _ string, candles []model.Candle) (int64, error) {
	var n int64
	for _, c := range candles {
		if _, ok := m.candles[c.OpenTime]; !ok {
			n++
		}
		m.candles[c.OpenTime] = c
	}
	return n, nil
}

func (m *memStore) LastCandle(_ context.Context, _ string) (*model.Candle, error) {
	var last *model.Candle
	for t := range m.candles {
		if last == nil || t > last.OpenTime {
			c := m.candles[t]
			last = &c
		}
	}
	return last, nil
}

func (m *memStore) CandlesRange(_ context.Context, _ string, _, _, _ int64) ([]model.Candle, error) {
	return nil, nil
}

func (m *memStore) RealDataCovers(_ context.Context, _ string, _ time.Time, _ int) (bool, error) {
	return false, nil
}

func (m *memStore) Stats(_ context.Context, symbol string) (*model.SymbolStats, error) {
	if len(m.candles) == 0 {
		return nil, model.ErrUnknownSymbol
	}
	st := &model.SymbolStats{Symbol: symbol, TotalRecords: int64(len(m.candles))}
	for t, c := range m.candles {
		if st.FirstRecord == 0 || t < st.FirstRecord {
			st.FirstRecord = t
		}
		if t > st.LastRecord {
			st.LastRecord = t
			st.LastPrice = c.Close
		}
	}
	return st, nil
}

// memFetcher replays canned candles that fall inside the requested range
// and records the ranges it was asked for.
type memFetcher struct {
	candles []model.Candle
	ranges  [][2]int64
}

func (f *memFetcher) FetchRange(_ context.Context, _ string, start, end int64, fn func([]model.Candle) error) error {
	f.ranges = append(f.ranges, [2]int64{start, end})
	var batch []model.Candle
	for _, c := range f.candles {
		if c.OpenTime >= start && c.OpenTime <= end {
			batch = append(batch, c)
		}
	}
	if len(batch) == 0 {
		return nil
	}
	return fn(batch)
}

func minuteCandle(openTime int64, close float64) model.Candle {
	return model.Candle{
		OpenTime:  openTime,
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    10,
		CloseTime: openTime + model.MinuteMs - 1,
	}
}

func TestSyncSymbol_IncrementalFromTail(t *testing.T) {
	// Tail at 14:45, wall clock 14:47:30. The pass must request
	// [14:46:00, 14:47:00) and land exactly two new minutes.
	base := time.Date(2025, 7, 1, 14, 45, 0, 0, time.UTC).UnixMilli()
	now := time.Date(2025, 7, 1, 14, 47, 30, 0, time.UTC)

	store := newMemStore()
	store.candles[base] = minuteCandle(base, 100)

	fetcher := &memFetcher{candles: []model.Candle{
		minuteCandle(base+1*model.MinuteMs, 101),
		minuteCandle(base+2*model.MinuteMs, 102),
		minuteCandle(base+3*model.MinuteMs, 103), // still forming, out of range
	}}

	b := bus.New(4)
	defer b.Close()
	events := b.Subscribe()

	svc := New(Config{
		Store:          store,
		Fetcher:        fetcher,
		Bus:            b,
		BootstrapStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Log:            zerolog.Nop(),
		Now:            func() time.Time { return now },
	})

	res, err := svc.SyncSymbol(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("SyncSymbol: %v", err)
	}
	if res.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", res.Symbol)
	}
	if res.NewRecords != 2 {
		t.Errorf("new_records = %d, want 2", res.NewRecords)
	}
	if res.Stats.TotalRecords != 3 {
		t.Errorf("total_records = %d, want 3", res.Stats.TotalRecords)
	}
	if res.Stats.LastPrice != 102 {
		t.Errorf("last_price = %v, want 102", res.Stats.LastPrice)
	}

	wantStart := base + model.MinuteMs
	wantEnd := now.Truncate(time.Minute).UnixMilli() - 1
	if len(fetcher.ranges) != 1 || fetcher.ranges[0] != [2]int64{wantStart, wantEnd} {
		t.Errorf("fetch range = %v, want [[%d %d]]", fetcher.ranges, wantStart, wantEnd)
	}

	select {
	case ev := <-events:
		if ev.Symbol != "BTCUSDT" || ev.NewRecords != 2 {
			t.Errorf("event = %+v, want BTCUSDT/2", ev)
		}
	default:
		t.Error("expected sync_complete event on the bus")
	}
}

func TestSyncSymbol_BootstrapUsesConfiguredStart(t *testing.T) {
	bootstrap := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 0, 2, 10, 0, time.UTC)

	store := newMemStore()
	fetcher := &memFetcher{candles: []model.Candle{
		minuteCandle(bootstrap.UnixMilli(), 50),
		minuteCandle(bootstrap.UnixMilli()+model.MinuteMs, 51),
	}}

	svc := New(Config{
		Store:          store,
		Fetcher:        fetcher,
		BootstrapStart: bootstrap,
		Log:            zerolog.Nop(),
		Now:            func() time.Time { return now },
	})

	res, err := svc.SyncSymbol(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("SyncSymbol: %v", err)
	}
	if res.NewRecords != 2 {
		t.Errorf("new_records = %d, want 2", res.NewRecords)
	}
	if got := fetcher.ranges[0][0]; got != bootstrap.UnixMilli() {
		t.Errorf("fetch start = %d, want bootstrap %d", got, bootstrap.UnixMilli())
	}
}

func TestSyncSymbol_NoNewDataPublishesNothing(t *testing.T) {
	base := time.Date(2025, 7, 1, 14, 45, 0, 0, time.UTC).UnixMilli()
	now := time.Date(2025, 7, 1, 14, 45, 30, 0, time.UTC)

	store := newMemStore()
	store.candles[base] = minuteCandle(base, 100)

	b := bus.New(4)
	defer b.Close()
	events := b.Subscribe()

	svc := New(Config{
		Store:          store,
		Fetcher:        &memFetcher{},
		Bus:            b,
		BootstrapStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Log:            zerolog.Nop(),
		Now:            func() time.Time { return now },
	})

	// Tail is the last complete minute already: start > end, no fetch.
	res, err := svc.SyncSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("SyncSymbol: %v", err)
	}
	if res.NewRecords != 0 {
		t.Errorf("new_records = %d, want 0", res.NewRecords)
	}

	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestSyncSymbol_RerunIsIdempotent(t *testing.T) {
	bootstrap := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 0, 3, 5, 0, time.UTC)

	store := newMemStore()
	fetcher := &memFetcher{candles: []model.Candle{
		minuteCandle(bootstrap.UnixMilli(), 50),
		minuteCandle(bootstrap.UnixMilli()+model.MinuteMs, 51),
		minuteCandle(bootstrap.UnixMilli()+2*model.MinuteMs, 52),
	}}

	svc := New(Config{
		Store:          store,
		Fetcher:        fetcher,
		BootstrapStart: bootstrap,
		Log:            zerolog.Nop(),
		Now:            func() time.Time { return now },
	})

	first, err := svc.SyncSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if first.NewRecords != 3 {
		t.Errorf("first pass new_records = %d, want 3", first.NewRecords)
	}

	second, err := svc.SyncSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.NewRecords != 0 {
		t.Errorf("second pass new_records = %d, want 0", second.NewRecords)
	}
	if second.Stats.TotalRecords != 3 {
		t.Errorf("total_records = %d, want 3", second.Stats.TotalRecords)
	}
}

func TestLastCompleteMinuteEnd(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{
			name: "mid minute",
			now:  time.Date(2025, 7, 1, 14, 47, 30, 0, time.UTC),
			want: time.Date(2025, 7, 1, 14, 47, 0, 0, time.UTC).UnixMilli() - 1,
		},
		{
			name: "exact boundary",
			now:  time.Date(2025, 7, 1, 14, 47, 0, 0, time.UTC),
			want: time.Date(2025, 7, 1, 14, 47, 0, 0, time.UTC).UnixMilli() - 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastCompleteMinuteEnd(tt.now); got != tt.want {
				t.Errorf("lastCompleteMinuteEnd(%v) = %d, want %d", tt.now, got, tt.want)
			}
		})
	}
}
