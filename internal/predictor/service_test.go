package predictor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/mlp"
	"github.com/pasthortown/cripto/internal/model"
)

func TestTrainSeed(t *testing.T) {
	a := trainSeed("BTCUSDT", "20250630", 5)
	if b := trainSeed("BTCUSDT", "20250630", 5); b != a {
		t.Error("same inputs produced different seeds")
	}
	if b := trainSeed("BTCUSDT", "20250630", 6); b == a {
		t.Error("horizon does not influence the seed")
	}
	if b := trainSeed("ETHUSDT", "20250630", 5); b == a {
		t.Error("symbol does not influence the seed")
	}
	if b := trainSeed("BTCUSDT", "20250629", 5); b == a {
		t.Error("date does not influence the seed")
	}
}

func TestStep_TrainsWhenNoValidSetExists(t *testing.T) {
	lastOpen := time.Date(2025, 6, 30, 2, 29, 0, 0, time.UTC).UnixMilli()
	candles := &fakeCandleStore{
		last:    &model.Candle{OpenTime: lastOpen, Close: 42000},
		covers:  map[int]bool{0: true, 1: true},
		rangeFn: func(start, end, limit int64) []model.Candle { return trailingWindow(start, end) },
	}
	preds := newFakePredictionStore()

	lc, err := NewLifecycle(t.TempDir(), 4, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	trained := 0
	svc := New(Config{
		Candles:     candles,
		Predictions: preds,
		Lifecycle:   lc,
		Train:       mlp.Config{Epochs: 1, BatchSize: 2048, LearningRate: 0.001, ValidationSplit: 0.1},
		Log:         zerolog.Nop(),
		Now:         func() time.Time { return fixedNow },
	})
	svc.OnTrained = func(time.Duration) { trained++ }

	if err := svc.Step(context.Background(), "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	if trained != 1 {
		t.Fatalf("trained %d times, want 1", trained)
	}

	block, ok := preds.hours[0]
	if !ok {
		t.Fatal("hour 0 not predicted after training")
	}
	if len(block) != 60 {
		t.Fatalf("hour block has %d rows, want 60", len(block))
	}

	today := model.DayTag(fixedNow)
	if !lc.Valid("BTCUSDT", today) {
		t.Error("trained set not persisted")
	}

	// Metadata reflects the per-horizon tail windows, all ending at the
	// hour boundary below the newest candle.
	t0 := lastOpen - lastOpen%model.HourMs
	loaded, err := lc.Load("BTCUSDT", today)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Meta.Horizons) != len(Horizons) {
		t.Fatalf("metadata has %d horizons, want %d", len(loaded.Meta.Horizons), len(Horizons))
	}
	for _, h := range Horizons {
		meta := loaded.Meta.Horizons[h]
		if want := WindowMinutes(h) - HorizonInterval(h).End; meta.Samples != want {
			t.Errorf("horizon %d samples = %d, want %d", h, meta.Samples, want)
		}
		if meta.WindowEnd != t0 {
			t.Errorf("horizon %d window end = %d, want %d", h, meta.WindowEnd, t0)
		}
		if wantStart := t0 - int64(WindowMinutes(h))*model.MinuteMs; meta.WindowStart != wantStart {
			t.Errorf("horizon %d window start = %d, want %d", h, meta.WindowStart, wantStart)
		}
	}

	// The next step reuses the persisted set instead of retraining.
	if err := svc.Step(context.Background(), "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	if trained != 1 {
		t.Errorf("second step retrained, count %d", trained)
	}
}

func TestStep_InsufficientHistorySkipsTraining(t *testing.T) {
	lastOpen := time.Date(2025, 6, 30, 2, 29, 0, 0, time.UTC).UnixMilli()
	candles := &fakeCandleStore{
		last:   &model.Candle{OpenTime: lastOpen, Close: 42000},
		covers: map[int]bool{0: true},
		rangeFn: func(start, end, limit int64) []model.Candle {
			// A store with a short history answers with fewer minutes
			// than the span asks for.
			return trailingWindow(start, start+100*model.MinuteMs-1)
		},
	}
	preds := newFakePredictionStore()
	svc, skips := newStepServiceNoModels(t, candles, preds)

	if err := svc.Step(context.Background(), "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	if want := []string{SkipInsufficientData}; len(*skips) != 1 || (*skips)[0] != want[0] {
		t.Errorf("skips = %v, want %v", *skips, want)
	}
	if len(preds.hours) != 0 {
		t.Error("predictions written without a model set")
	}
	if svc.lifecycle.Valid("BTCUSDT", model.DayTag(fixedNow)) {
		t.Error("partial training left a valid set behind")
	}
}

func TestStep_NoRealDataSkipsTraining(t *testing.T) {
	candles := &fakeCandleStore{covers: map[int]bool{0: true}}
	preds := newFakePredictionStore()
	svc, skips := newStepServiceNoModels(t, candles, preds)

	if err := svc.Step(context.Background(), "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	if want := []string{SkipInsufficientData}; len(*skips) != 1 || (*skips)[0] != want[0] {
		t.Errorf("skips = %v, want %v", *skips, want)
	}
}

// newStepServiceNoModels wires a service over an empty models dir so
// Step has to go through the training path.
func newStepServiceNoModels(t *testing.T, candles *fakeCandleStore, preds *fakePredictionStore) (*Service, *[]string) {
	t.Helper()
	lc, err := NewLifecycle(t.TempDir(), 4, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	skips := &[]string{}
	svc := New(Config{
		Candles:     candles,
		Predictions: preds,
		Lifecycle:   lc,
		Train:       mlp.Config{Epochs: 1},
		Log:         zerolog.Nop(),
		Now:         func() time.Time { return fixedNow },
	})
	svc.OnSkip = func(reason string) { *skips = append(*skips, reason) }
	return svc, skips
}
