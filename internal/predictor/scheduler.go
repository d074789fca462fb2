package predictor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pasthortown/cripto/internal/model"
)

// Skip reasons reported through OnSkip.
const (
	SkipCaughtUp         = "caught_up"
	SkipAlreadyPredicted = "already_predicted"
	SkipAwaitingData     = "awaiting_data"
	SkipInsufficientData = "insufficient_data"
)

// Run executes detection ticks until ctx is cancelled. Symbols within a
// tick are processed sequentially to bound training memory; a tick that
// outlives the interval simply delays the next one.
func (s *Service) Run(ctx context.Context, symbols []string, interval time.Duration) {
	s.log.Info().
		Dur("interval", interval).
		Int("symbols", len(symbols)).
		Msg("predictor loop starting")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.tick(ctx, symbols)
		select {
		case <-ctx.Done():
			s.log.Info().Msg("predictor loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) tick(ctx context.Context, symbols []string) {
	if len(symbols) == 0 && s.lister != nil {
		var err error
		symbols, err = s.lister.Symbols(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("symbol discovery failed")
			return
		}
	}
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if err := s.Step(ctx, symbol); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("prediction step failed")
		}
	}
}

// Step advances one symbol by at most one hour block: it finds the
// earliest unpredicted hour of the current UTC day, and emits its 60
// predictions once the hour is fully backed by real data. Catch-up
// after downtime therefore proceeds one hour per tick, in order.
func (s *Service) Step(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(symbol)
	now := s.now().UTC()
	day := model.DayStart(now)

	lastHour, err := s.predictions.LastPredictedHourToday(ctx, symbol, day)
	if err != nil {
		return err
	}
	nextHour := lastHour + 1
	if nextHour > now.Hour() {
		s.skip(SkipCaughtUp)
		return nil
	}

	done, err := s.predictions.HourHasPrediction(ctx, symbol, day, nextHour)
	if err != nil {
		return err
	}
	if done {
		s.skip(SkipAlreadyPredicted)
		return nil
	}

	covered, err := s.candles.RealDataCovers(ctx, symbol, day, nextHour)
	if err != nil {
		return err
	}
	if !covered {
		s.log.Debug().
			Str("symbol", symbol).
			Int("hour", nextHour).
			Msg("real data incomplete, waiting")
		s.skip(SkipAwaitingData)
		return nil
	}

	set, err := s.modelSet(ctx, symbol, model.DayTag(now))
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("not enough history to train")
			s.skip(SkipInsufficientData)
			return nil
		}
		return err
	}

	hourStart := model.HourStartMs(day, nextHour)
	window, err := s.candles.CandlesRange(ctx, symbol, hourStart-model.HourMs, hourStart-1, 0)
	if err != nil {
		return err
	}
	preds, err := PredictHour(set, window, hourStart, s.now().UTC().UnixMilli())
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			s.log.Warn().Err(err).Str("symbol", symbol).Int("hour", nextHour).Msg("inference window incomplete")
			s.skip(SkipInsufficientData)
			return nil
		}
		return err
	}

	if _, err := s.predictions.UpsertPredictions(ctx, symbol, preds); err != nil {
		return err
	}
	if s.OnHourPredicted != nil {
		s.OnHourPredicted()
	}
	s.log.Info().
		Str("symbol", symbol).
		Int("hour", nextHour).
		Str("model_version", set.Date).
		Msg("hour block predicted")
	return nil
}

func (s *Service) skip(reason string) {
	if s.OnSkip != nil {
		s.OnSkip(reason)
	}
}
