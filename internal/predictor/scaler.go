package predictor

// MinMaxScaler maps each column to [0, 1] using bounds fitted on the
// training window. Columns with zero range transform to 0.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// FitScaler computes per-column bounds over the given rows.
func FitScaler(rows [][]float64) *MinMaxScaler {
	if len(rows) == 0 {
		return &MinMaxScaler{}
	}
	width := len(rows[0])
	s := &MinMaxScaler{
		Min: make([]float64, width),
		Max: make([]float64, width),
	}
	copy(s.Min, rows[0])
	copy(s.Max, rows[0])
	for _, row := range rows[1:] {
		for j, v := range row {
			if v < s.Min[j] {
				s.Min[j] = v
			}
			if v > s.Max[j] {
				s.Max[j] = v
			}
		}
	}
	return s
}

// Transform scales one row into [0, 1].
func (s *MinMaxScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		span := s.Max[j] - s.Min[j]
		if span == 0 {
			out[j] = 0
			continue
		}
		out[j] = (v - s.Min[j]) / span
	}
	return out
}

// TransformAll scales every row.
func (s *MinMaxScaler) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}

// Inverse maps a scaled row back to the original range. Zero-range
// columns return their fitted constant.
func (s *MinMaxScaler) Inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*(s.Max[j]-s.Min[j]) + s.Min[j]
	}
	return out
}
