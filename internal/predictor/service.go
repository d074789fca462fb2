package predictor

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/journal"
	"github.com/pasthortown/cripto/internal/mlp"
	"github.com/pasthortown/cripto/internal/model"
)

const hiddenWidth = 64

// Service owns per-symbol prediction work: model acquisition, daily
// training and hour-block emission.
type Service struct {
	candles     model.CandleStore
	predictions model.PredictionStore
	lister      model.SymbolLister
	lifecycle   *Lifecycle
	journal     *journal.Journal
	train       mlp.Config
	log         zerolog.Logger
	now         func() time.Time

	// Metrics hooks
	OnHourPredicted func()
	OnTrained       func(dur time.Duration)
	OnSkip          func(reason string)
}

// Config wires a Service.
type Config struct {
	Candles     model.CandleStore
	Predictions model.PredictionStore
	Lister      model.SymbolLister
	Lifecycle   *Lifecycle
	Journal     *journal.Journal // nil disables the training journal
	Train       mlp.Config
	Log         zerolog.Logger
	Now         func() time.Time // defaults to time.Now
}

// New creates a prediction service.
func New(cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		candles:     cfg.Candles,
		predictions: cfg.Predictions,
		lister:      cfg.Lister,
		lifecycle:   cfg.Lifecycle,
		journal:     cfg.Journal,
		train:       cfg.Train,
		log:         cfg.Log,
		now:         cfg.Now,
	}
}

// modelSet returns a set valid for the date, loading from disk when one
// exists and training otherwise. Stale dates are deleted before
// training so the symbol directory only ever holds one date.
func (s *Service) modelSet(ctx context.Context, symbol, date string) (*ModelSet, error) {
	if s.lifecycle.Valid(symbol, date) {
		set, err := s.lifecycle.Load(symbol, date)
		if err == nil {
			return set, nil
		}
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("model set unreadable, retraining")
	}
	if err := s.lifecycle.DeleteStale(symbol, date); err != nil {
		return nil, err
	}
	return s.trainSet(ctx, symbol, date)
}

// trainSet trains all twelve horizons on windows ending at the most
// recent hour boundary at or before the latest real candle, then
// persists and caches the set.
func (s *Service) trainSet(ctx context.Context, symbol, date string) (*ModelSet, error) {
	last, err := s.candles.LastCandle(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, fmt.Errorf("%w: no real data for %s", model.ErrInsufficientData, symbol)
	}
	t0 := last.OpenTime - last.OpenTime%model.HourMs

	start := t0 - int64(MaxWindowMinutes)*model.MinuteMs
	window, err := s.candles.CandlesRange(ctx, symbol, start, t0-1, 0)
	if err != nil {
		return nil, err
	}
	if len(window) != MaxWindowMinutes {
		return nil, fmt.Errorf("%w: %d of %d training minutes before %s",
			model.ErrInsufficientData, len(window), MaxWindowMinutes,
			time.UnixMilli(t0).UTC().Format(time.RFC3339))
	}

	started := s.now()
	set := &ModelSet{
		Symbol:  strings.ToUpper(symbol),
		Date:    date,
		Models:  make(map[int]*mlp.Network, len(Horizons)),
		Scalers: make(map[int]*HorizonScalers, len(Horizons)),
		Meta: Metadata{
			Symbol:    strings.ToUpper(symbol),
			Date:      date,
			TrainedAt: started.UTC().UnixMilli(),
			Horizons:  make(map[int]HorizonMeta, len(Horizons)),
		},
	}

	s.log.Info().Str("symbol", set.Symbol).Str("date", date).Msg("training model set")
	for _, h := range Horizons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w := WindowMinutes(h)
		slice := window[len(window)-w:]
		features := BuildFeatures(slice)
		ds, err := BuildDataset(slice, features, h)
		if err != nil {
			return nil, err
		}

		net := mlp.New(FeatureWidth, hiddenWidth, 4, trainSeed(set.Symbol, date, h))
		trainStart := s.now()
		res, err := net.Train(ds.X, ds.Y, s.train)
		if err != nil {
			return nil, fmt.Errorf("train horizon %d: %w", h, err)
		}
		dur := s.now().Sub(trainStart)

		set.Models[h] = net
		set.Scalers[h] = &HorizonScalers{Features: ds.XScaler, Targets: ds.YScaler}
		set.Meta.Horizons[h] = HorizonMeta{
			Horizon:     h,
			WindowStart: slice[0].OpenTime,
			WindowEnd:   t0,
			Samples:     ds.Samples,
			Epochs:      res.Epochs,
			TrainLoss:   res.TrainLoss,
			ValLoss:     res.ValLoss,
		}

		if s.journal != nil {
			err := s.journal.Record(journal.Entry{
				Symbol:     set.Symbol,
				Date:       date,
				Horizon:    h,
				Samples:    ds.Samples,
				Epochs:     res.Epochs,
				TrainLoss:  res.TrainLoss,
				ValLoss:    res.ValLoss,
				DurationMs: dur.Milliseconds(),
			})
			if err != nil {
				s.log.Warn().Err(err).Int("horizon", h).Msg("journal write failed")
			}
		}

		s.log.Debug().
			Str("symbol", set.Symbol).
			Int("horizon", h).
			Int("samples", ds.Samples).
			Float64("train_loss", res.TrainLoss).
			Float64("val_loss", res.ValLoss).
			Dur("took", dur).
			Msg("horizon trained")
	}

	if err := s.lifecycle.Save(set); err != nil {
		return nil, err
	}
	total := s.now().Sub(started)
	if s.OnTrained != nil {
		s.OnTrained(total)
	}
	s.log.Info().
		Str("symbol", set.Symbol).
		Str("date", date).
		Dur("took", total).
		Msg("model set trained")
	return set, nil
}

// trainSeed fixes initialization per (symbol, date, horizon) so a rerun
// of the same training day reproduces the same weights.
func trainSeed(symbol, date string, h int) int64 {
	hash := fnv.New64a()
	hash.Write([]byte(symbol))
	hash.Write([]byte(date))
	return int64(hash.Sum64()&0x7fffffffffff) + int64(h)
}
