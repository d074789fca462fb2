package predictor

import (
	"fmt"

	"github.com/pasthortown/cripto/internal/model"
)

// Dataset is one horizon's supervised training set, already scaled, with
// the scalers that produced it.
type Dataset struct {
	X       [][]float64
	Y       [][]float64
	XScaler *MinMaxScaler
	YScaler *MinMaxScaler
	Samples int
}

// BuildDataset pairs each minute's feature row with the delta aggregate
// of its horizon's future block. Sample i targets candles
// [i+1+I(h).Start, i+1+I(h).End): the close delta to the block's last
// close, high/low deltas to the block's extremes, and the summed
// volume. Deltas are relative to close(i). The last I(h).End minutes
// have no complete future block and are not sampled.
func BuildDataset(candles []model.Candle, features [][]float64, h int) (*Dataset, error) {
	if len(candles) != len(features) {
		return nil, fmt.Errorf("predictor: %d candles vs %d feature rows", len(candles), len(features))
	}
	iv, ok := horizonIntervals[h]
	if !ok {
		return nil, fmt.Errorf("predictor: unknown horizon %d", h)
	}
	samples := len(candles) - iv.End
	if samples <= 0 {
		return nil, fmt.Errorf("%w: window of %d minutes cannot target horizon %d", model.ErrInsufficientData, len(candles), h)
	}

	rawX := features[:samples]
	rawY := make([][]float64, samples)
	for i := 0; i < samples; i++ {
		block := candles[i+1+iv.Start : i+1+iv.End]
		agg := aggregate(block)
		base := candles[i].Close
		rawY[i] = []float64{
			agg.close - base,
			agg.high - base,
			agg.low - base,
			agg.volume,
		}
	}

	xs := FitScaler(rawX)
	ys := FitScaler(rawY)
	return &Dataset{
		X:       xs.TransformAll(rawX),
		Y:       ys.TransformAll(rawY),
		XScaler: xs,
		YScaler: ys,
		Samples: samples,
	}, nil
}
