package mlp

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
)

// toyData builds samples of an easy linear mapping on [0,1] inputs.
func toyData(n int, seed int64) (x, y [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		a, b := rng.Float64(), rng.Float64()
		x = append(x, []float64{a, b})
		y = append(y, []float64{0.3*a + 0.5*b})
	}
	return x, y
}

func TestTrain_ConvergesOnLinearMapping(t *testing.T) {
	x, y := toyData(256, 7)

	n := New(2, 16, 1, 42)
	before := n.loss(x, y, seqIndices(len(x)))

	res, err := n.Train(x, y, Config{
		Epochs:          200,
		BatchSize:       32,
		LearningRate:    0.01,
		ValidationSplit: 0.2,
	})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	if res.TrainSamples+res.ValSamples != 256 {
		t.Errorf("samples = %d+%d, want 256 total", res.TrainSamples, res.ValSamples)
	}
	if res.TrainLoss >= before {
		t.Errorf("train loss %v did not improve on initial %v", res.TrainLoss, before)
	}
	if res.ValLoss > 0.05 {
		t.Errorf("val loss = %v, want < 0.05 on a linear mapping", res.ValLoss)
	}

	out, err := n.Predict([]float64{0.5, 0.5})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if want := 0.4; math.Abs(out[0]-want) > 0.15 {
		t.Errorf("Predict(0.5,0.5) = %v, want near %v", out[0], want)
	}
}

func TestTrain_DeterministicWithSeed(t *testing.T) {
	x, y := toyData(64, 3)

	run := func() []float64 {
		n := New(2, 8, 1, 99)
		if _, err := n.Train(x, y, Config{Epochs: 20, BatchSize: 16, LearningRate: 0.01}); err != nil {
			t.Fatalf("Train: %v", err)
		}
		out, _ := n.Predict([]float64{0.25, 0.75})
		return out
	}

	first := run()
	second := run()
	if first[0] != second[0] {
		t.Errorf("same seed diverged: %v vs %v", first[0], second[0])
	}
}

func TestTrain_InputValidation(t *testing.T) {
	n := New(3, 4, 2, 1)

	tests := []struct {
		name string
		x    [][]float64
		y    [][]float64
	}{
		{name: "empty", x: nil, y: nil},
		{name: "length mismatch", x: [][]float64{{1, 2, 3}}, y: nil},
		{name: "input width", x: [][]float64{{1, 2}}, y: [][]float64{{1, 2}}},
		{name: "target width", x: [][]float64{{1, 2, 3}}, y: [][]float64{{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := n.Train(tt.x, tt.y, Config{Epochs: 1}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPredict_WidthCheck(t *testing.T) {
	n := New(60, 8, 4, 1)
	if _, err := n.Predict(make([]float64, 59)); err == nil {
		t.Error("expected width error, got nil")
	}
	out, err := n.Predict(make([]float64, 60))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(out) != 4 {
		t.Errorf("output width = %d, want 4", len(out))
	}
}

func TestJSONRoundTrip(t *testing.T) {
	x, y := toyData(64, 11)
	n := New(2, 8, 1, 5)
	if _, err := n.Train(x, y, Config{Epochs: 10, BatchSize: 16, LearningRate: 0.01}); err != nil {
		t.Fatalf("Train: %v", err)
	}

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored := &Network{}
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	in, hidden, out := restored.Dims()
	if in != 2 || hidden != 8 || out != 1 {
		t.Fatalf("Dims = %d/%d/%d, want 2/8/1", in, hidden, out)
	}

	probe := []float64{0.1, 0.9}
	want, _ := n.Predict(probe)
	got, err := restored.Predict(probe)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got[0] != want[0] {
		t.Errorf("restored prediction %v != original %v", got[0], want[0])
	}
}

func TestUnmarshal_RejectsCorruptWeights(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad dims", data: `{"in":0,"hidden":4,"out":2,"w1":[],"b1":[],"w2":[],"b2":[]}`},
		{name: "size mismatch", data: `{"in":2,"hidden":2,"out":1,"w1":[1,2,3],"b1":[0,0],"w2":[1,2],"b2":[0]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Network{}
			if err := json.Unmarshal([]byte(tt.data), n); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func seqIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
