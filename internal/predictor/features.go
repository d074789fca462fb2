package predictor

import (
	"github.com/pasthortown/cripto/internal/model"
)

// resampleScales are the trailing bucket sizes stacked next to the base
// minute row. 5 base fields plus 11 scales of 5 fields each give the
// 60-wide frame.
var resampleScales = []int{2, 3, 4, 5, 6, 10, 12, 15, 20, 30, 60}

// FeatureWidth is the per-minute feature vector length.
const FeatureWidth = 60

// BuildFeatures converts a contiguous minute window into the feature
// frame. For every scale N the window is cut into aligned buckets of N
// rows; minute t carries the OHLCV aggregate of the last bucket that
// completed at or before t. Rows before the first complete bucket
// backfill from it. Callers pass hour-aligned windows so bucket
// boundaries coincide with wall-clock boundaries at every scale.
func BuildFeatures(candles []model.Candle) [][]float64 {
	frame := make([][]float64, len(candles))
	for t, c := range candles {
		row := make([]float64, 0, FeatureWidth)
		row = append(row, c.Open, c.High, c.Low, c.Close, c.Volume)
		frame[t] = row
	}
	for _, scale := range resampleScales {
		appendResample(frame, candles, scale)
	}
	return frame
}

type bucketAgg struct {
	open, high, low, close, volume float64
}

func appendResample(frame [][]float64, candles []model.Candle, scale int) {
	numBuckets := len(candles) / scale
	if numBuckets == 0 {
		// Window shorter than the scale: aggregate everything into one
		// pseudo-bucket so the frame stays rectangular.
		agg := aggregate(candles)
		for t := range frame {
			frame[t] = append(frame[t], agg.open, agg.high, agg.low, agg.close, agg.volume)
		}
		return
	}

	aggs := make([]bucketAgg, numBuckets)
	for b := 0; b < numBuckets; b++ {
		aggs[b] = aggregate(candles[b*scale : (b+1)*scale])
	}

	for t := range frame {
		// Bucket b completes at row (b+1)*scale-1. The last complete
		// bucket at row t is (t+1)/scale - 1; leading rows backfill.
		b := (t+1)/scale - 1
		if b < 0 {
			b = 0
		}
		if b >= numBuckets {
			b = numBuckets - 1
		}
		agg := aggs[b]
		frame[t] = append(frame[t], agg.open, agg.high, agg.low, agg.close, agg.volume)
	}
}

func aggregate(candles []model.Candle) bucketAgg {
	agg := bucketAgg{
		open:  candles[0].Open,
		high:  candles[0].High,
		low:   candles[0].Low,
		close: candles[len(candles)-1].Close,
	}
	for _, c := range candles {
		if c.High > agg.high {
			agg.high = c.High
		}
		if c.Low < agg.low {
			agg.low = c.Low
		}
		agg.volume += c.Volume
	}
	return agg
}
