package predictor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/mlp"
)

// HorizonScalers pairs the feature and target descriptors persisted
// next to each horizon's weights.
type HorizonScalers struct {
	Features *MinMaxScaler `json:"features"`
	Targets  *MinMaxScaler `json:"targets"`
}

// HorizonMeta records one horizon's training run.
type HorizonMeta struct {
	Horizon     int     `json:"horizon"`
	WindowStart int64   `json:"window_start"`
	WindowEnd   int64   `json:"window_end"`
	Samples     int     `json:"samples"`
	Epochs      int     `json:"epochs"`
	TrainLoss   float64 `json:"train_loss"`
	ValLoss     float64 `json:"val_loss"`
}

// Metadata is the per-set training descriptor.
type Metadata struct {
	Symbol    string              `json:"symbol"`
	Date      string              `json:"date"`
	TrainedAt int64               `json:"trained_at"`
	Horizons  map[int]HorizonMeta `json:"horizons"`
}

// ModelSet bundles everything needed to predict one symbol on one UTC
// date: twelve networks, their scalers and the training metadata.
type ModelSet struct {
	Symbol  string
	Date    string
	Models  map[int]*mlp.Network
	Scalers map[int]*HorizonScalers
	Meta    Metadata
}

// Lifecycle owns model artifacts on disk plus a bounded cache of loaded
// sets. A set is usable iff its date tag equals today and all twelve
// horizons are present; everything else is stale.
type Lifecycle struct {
	dir   string
	cache *lru.Cache
	log   zerolog.Logger
}

// NewLifecycle creates the artifact root and the loaded-set cache.
func NewLifecycle(dir string, cacheSize int, log zerolog.Logger) (*Lifecycle, error) {
	if cacheSize <= 0 {
		cacheSize = 8
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &Lifecycle{dir: dir, cache: cache, log: log}, nil
}

func (l *Lifecycle) symbolDir(symbol string) string {
	return filepath.Join(l.dir, strings.ToLower(symbol))
}

func modelFile(symbol string, h int, date string) string {
	return fmt.Sprintf("model_%s_horizon%d_%s.json", strings.ToLower(symbol), h, date)
}

func scalerFile(symbol string, h int, date string) string {
	return fmt.Sprintf("scaler_%s_horizon%d_%s.json", strings.ToLower(symbol), h, date)
}

func metadataFile(symbol, date string) string {
	return fmt.Sprintf("metadata_%s_%s.json", strings.ToLower(symbol), date)
}

// Valid reports whether a complete set tagged with date exists on disk.
func (l *Lifecycle) Valid(symbol, date string) bool {
	dir := l.symbolDir(symbol)
	for _, h := range Horizons {
		if !fileExists(filepath.Join(dir, modelFile(symbol, h, date))) {
			return false
		}
		if !fileExists(filepath.Join(dir, scalerFile(symbol, h, date))) {
			return false
		}
	}
	return fileExists(filepath.Join(dir, metadataFile(symbol, date)))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load returns the set for (symbol, date). Cached sets are reused only
// when their date still matches; anything else is read from disk.
func (l *Lifecycle) Load(symbol, date string) (*ModelSet, error) {
	key := strings.ToLower(symbol)
	if v, ok := l.cache.Get(key); ok {
		set := v.(*ModelSet)
		if set.Date == date {
			return set, nil
		}
		l.cache.Remove(key)
	}

	dir := l.symbolDir(symbol)
	set := &ModelSet{
		Symbol:  strings.ToUpper(symbol),
		Date:    date,
		Models:  make(map[int]*mlp.Network, len(Horizons)),
		Scalers: make(map[int]*HorizonScalers, len(Horizons)),
	}

	metaRaw, err := os.ReadFile(filepath.Join(dir, metadataFile(symbol, date)))
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	if err := json.Unmarshal(metaRaw, &set.Meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}

	for _, h := range Horizons {
		raw, err := os.ReadFile(filepath.Join(dir, modelFile(symbol, h, date)))
		if err != nil {
			return nil, fmt.Errorf("load model horizon %d: %w", h, err)
		}
		net := &mlp.Network{}
		if err := json.Unmarshal(raw, net); err != nil {
			return nil, fmt.Errorf("parse model horizon %d: %w", h, err)
		}
		set.Models[h] = net

		raw, err = os.ReadFile(filepath.Join(dir, scalerFile(symbol, h, date)))
		if err != nil {
			return nil, fmt.Errorf("load scaler horizon %d: %w", h, err)
		}
		sc := &HorizonScalers{}
		if err := json.Unmarshal(raw, sc); err != nil {
			return nil, fmt.Errorf("parse scaler horizon %d: %w", h, err)
		}
		if sc.Features == nil || sc.Targets == nil {
			return nil, fmt.Errorf("scaler horizon %d missing descriptors", h)
		}
		set.Scalers[h] = sc
	}

	l.cache.Add(key, set)
	return set, nil
}

// DeleteStale removes every artifact for the symbol that does not carry
// the kept date tag, including leftover temp files from crashed writes.
func (l *Lifecycle) DeleteStale(symbol, keep string) error {
	dir := l.symbolDir(symbol)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, "_"+keep+".json") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
		removed++
	}
	if removed > 0 {
		l.log.Info().
			Str("symbol", strings.ToUpper(symbol)).
			Str("keep", keep).
			Int("removed", removed).
			Msg("stale model artifacts deleted")
	}
	return nil
}

// Save persists the set and caches it. Each artifact is written to a
// temp path and renamed into place, so readers never see partial files.
func (l *Lifecycle) Save(set *ModelSet) error {
	dir := l.symbolDir(set.Symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create symbol dir: %w", err)
	}

	for _, h := range Horizons {
		net, ok := set.Models[h]
		if !ok {
			return fmt.Errorf("model set missing horizon %d", h)
		}
		raw, err := json.Marshal(net)
		if err != nil {
			return fmt.Errorf("marshal model horizon %d: %w", h, err)
		}
		if err := writeAtomic(filepath.Join(dir, modelFile(set.Symbol, h, set.Date)), raw); err != nil {
			return err
		}

		raw, err = json.Marshal(set.Scalers[h])
		if err != nil {
			return fmt.Errorf("marshal scaler horizon %d: %w", h, err)
		}
		if err := writeAtomic(filepath.Join(dir, scalerFile(set.Symbol, h, set.Date)), raw); err != nil {
			return err
		}
	}

	raw, err := json.MarshalIndent(set.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, metadataFile(set.Symbol, set.Date)), raw); err != nil {
		return err
	}

	l.cache.Add(strings.ToLower(set.Symbol), set)
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
