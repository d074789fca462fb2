// Package predictor trains per-horizon models once per symbol per UTC
// day and emits one hour block of 60 chained minute predictions at a
// time. Work is detected on a short validation tick and gated on real
// minute coverage of the target hour.
package predictor

// Horizons lists the twelve model horizons in minutes. Each hour block
// stitches together all twelve: short horizons cover the near minutes,
// long horizons the far ones.
var Horizons = []int{1, 2, 3, 4, 5, 6, 10, 12, 15, 20, 30, 60}

// Interval is the half-open block of minute offsets a horizon covers
// inside the predicted hour.
type Interval struct {
	Start int
	End   int
}

// horizonIntervals partitions [0, 60): every minute offset belongs to
// exactly one horizon.
var horizonIntervals = map[int]Interval{
	1:  {0, 1},
	2:  {1, 2},
	3:  {2, 3},
	4:  {3, 4},
	5:  {4, 5},
	6:  {5, 6},
	10: {6, 10},
	12: {10, 12},
	15: {12, 15},
	20: {15, 20},
	30: {20, 30},
	60: {30, 60},
}

// HorizonInterval returns I(h).
func HorizonInterval(h int) Interval {
	return horizonIntervals[h]
}

// HorizonFor returns the horizon whose interval covers minute offset k.
func HorizonFor(k int) int {
	for _, h := range Horizons {
		iv := horizonIntervals[h]
		if k >= iv.Start && k < iv.End {
			return h
		}
	}
	return 0
}

// WindowMinutes returns W(h), the training window length in minutes.
// Longer horizons look further ahead and train on longer histories.
func WindowMinutes(h int) int {
	switch {
	case h <= 6:
		return 2880
	case h <= 15:
		return 4320
	case h <= 30:
		return 5760
	default:
		return 8640
	}
}

// MaxWindowMinutes is the longest W(h); training fetches one window of
// this size and slices per-horizon tails from it.
const MaxWindowMinutes = 8640
