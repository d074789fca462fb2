package predictor

import (
	"fmt"

	"github.com/pasthortown/cripto/internal/model"
)

// horizonDeltas is one horizon's inverse-scaled model output.
type horizonDeltas struct {
	close, high, low, volume float64
}

// PredictHour emits the 60 chained minute candles for the hour starting
// at hourStart. window is the trailing real hour [hourStart-60m,
// hourStart) in ascending order; its last close seeds the chain and its
// last feature row feeds every horizon's model. predictedAt stamps the
// rows; the set's date tag becomes their model version.
func PredictHour(set *ModelSet, window []model.Candle, hourStart, predictedAt int64) ([]model.Prediction, error) {
	if len(window) != 60 {
		return nil, fmt.Errorf("%w: inference window has %d minutes, want 60", model.ErrInsufficientData, len(window))
	}

	frame := BuildFeatures(window)
	featureRow := frame[len(frame)-1]

	deltas := make(map[int]horizonDeltas, len(Horizons))
	for _, h := range Horizons {
		net, ok := set.Models[h]
		if !ok {
			return nil, fmt.Errorf("model set missing horizon %d", h)
		}
		sc := set.Scalers[h]
		out, err := net.Predict(sc.Features.Transform(featureRow))
		if err != nil {
			return nil, fmt.Errorf("horizon %d inference: %w", h, err)
		}
		raw := sc.Targets.Inverse(out)
		deltas[h] = horizonDeltas{close: raw[0], high: raw[1], low: raw[2], volume: raw[3]}
	}

	prevClose := window[len(window)-1].Close
	predictions := make([]model.Prediction, 0, 60)
	for k := 0; k < 60; k++ {
		h := HorizonFor(k)
		d := deltas[h]

		open := prevClose
		close := prevClose + d.close
		high := max3(prevClose+d.high, open, close)
		low := min3(prevClose+d.low, open, close)
		volume := d.volume
		if volume < 0 {
			volume = 0
		}

		openTime := hourStart + int64(k)*model.MinuteMs
		predictions = append(predictions, model.Prediction{
			OpenTime:     openTime,
			Open:         open,
			High:         high,
			Low:          low,
			Close:        close,
			Volume:       volume,
			CloseTime:    openTime + model.MinuteMs - 1,
			PredictedAt:  predictedAt,
			ModelVersion: set.Date,
			MinutesAhead: h,
		})
		prevClose = close
	}
	return predictions, nil
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
