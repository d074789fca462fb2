package predictor

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/mlp"
)

// trainedSet fabricates a set with genuinely random weights so a disk
// round trip has something to disagree with.
func trainedSet(symbol, date string, seed int64) *ModelSet {
	set := &ModelSet{
		Symbol:  symbol,
		Date:    date,
		Models:  make(map[int]*mlp.Network, len(Horizons)),
		Scalers: make(map[int]*HorizonScalers, len(Horizons)),
		Meta: Metadata{
			Symbol:    symbol,
			Date:      date,
			TrainedAt: 1700000000000,
			Horizons:  make(map[int]HorizonMeta, len(Horizons)),
		},
	}
	for _, h := range Horizons {
		set.Models[h] = mlp.New(FeatureWidth, 3, 4, seed+int64(h))

		rows := make([][]float64, 2)
		for i := range rows {
			row := make([]float64, FeatureWidth)
			for j := range row {
				row[j] = float64((i + 1) * (j + 1 + h))
			}
			rows[i] = row
		}
		set.Scalers[h] = &HorizonScalers{
			Features: FitScaler(rows),
			Targets:  FitScaler([][]float64{{0, 0, -1, 0}, {float64(h), 2, 1, 300}}),
		}
		set.Meta.Horizons[h] = HorizonMeta{Horizon: h, Samples: 100 + h, Epochs: 50, TrainLoss: 0.01, ValLoss: 0.02}
	}
	return set
}

func probeRow() []float64 {
	row := make([]float64, FeatureWidth)
	for i := range row {
		row[i] = 0.01 * float64(i)
	}
	return row
}

func TestLifecycle_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lc, err := NewLifecycle(dir, 4, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	set := trainedSet("BTCUSDT", "20250629", 7)
	if lc.Valid("BTCUSDT", "20250629") {
		t.Fatal("Valid before save")
	}
	if err := lc.Save(set); err != nil {
		t.Fatal(err)
	}
	if !lc.Valid("BTCUSDT", "20250629") {
		t.Fatal("Valid false after save")
	}
	if lc.Valid("BTCUSDT", "20250630") {
		t.Error("Valid true for a different date")
	}
	if lc.Valid("ETHUSDT", "20250629") {
		t.Error("Valid true for a different symbol")
	}

	// A fresh lifecycle has a cold cache; everything comes off disk.
	lc2, err := NewLifecycle(dir, 4, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := lc2.Load("BTCUSDT", "20250629")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Symbol != "BTCUSDT" || loaded.Date != "20250629" {
		t.Errorf("loaded set tagged %s/%s", loaded.Symbol, loaded.Date)
	}
	if !reflect.DeepEqual(loaded.Scalers, set.Scalers) {
		t.Error("scalers changed across disk round trip")
	}
	if !reflect.DeepEqual(loaded.Meta, set.Meta) {
		t.Error("metadata changed across disk round trip")
	}
	in := probeRow()
	for _, h := range Horizons {
		want, err := set.Models[h].Predict(in)
		if err != nil {
			t.Fatal(err)
		}
		got, err := loaded.Models[h].Predict(in)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("horizon %d predicts differently after round trip: %v vs %v", h, got, want)
		}
	}
}

func TestLifecycle_LoadMissesCacheOnDateChange(t *testing.T) {
	dir := t.TempDir()
	lc, err := NewLifecycle(dir, 4, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := lc.Save(trainedSet("BTCUSDT", "20250629", 7)); err != nil {
		t.Fatal(err)
	}

	// Save cached the set under its symbol; asking for a newer date must
	// bypass that entry and fail on the absent files.
	if _, err := lc.Load("BTCUSDT", "20250630"); err == nil {
		t.Fatal("Load returned a set for a date that was never saved")
	}
}

func TestLifecycle_DeleteStaleKeepsOnlyCurrentDate(t *testing.T) {
	dir := t.TempDir()
	lc, err := NewLifecycle(dir, 4, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := lc.Save(trainedSet("BTCUSDT", "20250629", 7)); err != nil {
		t.Fatal(err)
	}
	if err := lc.Save(trainedSet("BTCUSDT", "20250630", 8)); err != nil {
		t.Fatal(err)
	}
	// Simulate a crashed write.
	leftover := filepath.Join(dir, "btcusdt", "model_btcusdt_horizon1_20250630.json.tmp")
	if err := os.WriteFile(leftover, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := lc.DeleteStale("BTCUSDT", "20250630"); err != nil {
		t.Fatal(err)
	}
	if lc.Valid("BTCUSDT", "20250629") {
		t.Error("stale date still valid after DeleteStale")
	}
	if !lc.Valid("BTCUSDT", "20250630") {
		t.Error("kept date invalidated by DeleteStale")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "btcusdt"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), "_20250630.json") {
			t.Errorf("unexpected survivor %s", e.Name())
		}
	}
	// 12 models + 12 scalers + metadata.
	if len(entries) != 25 {
		t.Errorf("%d files survive, want 25", len(entries))
	}
}

func TestLifecycle_DeleteStaleOnUnknownSymbol(t *testing.T) {
	lc, err := NewLifecycle(t.TempDir(), 4, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := lc.DeleteStale("NOPEUSDT", "20250630"); err != nil {
		t.Errorf("missing symbol dir: got %v, want nil", err)
	}
}
