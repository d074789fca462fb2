// Package mlp implements a small dense feed-forward regressor: one
// ReLU hidden layer, linear output, mini-batch gradient descent with
// Adam updates. Weights serialize to JSON so trained models survive
// process restarts.
package mlp

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// Config holds the training hyperparameters.
type Config struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	ValidationSplit float64
}

// Result reports a finished training run.
type Result struct {
	Epochs       int     `json:"epochs"`
	TrainSamples int     `json:"train_samples"`
	ValSamples   int     `json:"val_samples"`
	TrainLoss    float64 `json:"train_loss"`
	ValLoss      float64 `json:"val_loss"`
}

// Network is a dense in → hidden → out regressor. Weight layout:
// w1 is in×hidden, w2 is hidden×out, so a row-major batch matrix
// multiplies straight through.
type Network struct {
	in, hidden, out int

	w1 *mat.Dense
	b1 []float64
	w2 *mat.Dense
	b2 []float64

	rng *rand.Rand
}

// New creates a network with scaled uniform initial weights. The seed
// fixes initialization and batch shuffling, making training runs
// reproducible.
func New(in, hidden, out int, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	n := &Network{
		in:     in,
		hidden: hidden,
		out:    out,
		b1:     make([]float64, hidden),
		b2:     make([]float64, out),
		rng:    rng,
	}
	n.w1 = randomDense(rng, in, hidden)
	n.w2 = randomDense(rng, hidden, out)
	return n
}

// randomDense fills a matrix with uniform values in ±sqrt(6/(r+c)).
func randomDense(rng *rand.Rand, r, c int) *mat.Dense {
	limit := math.Sqrt(6.0 / float64(r+c))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(r, c, data)
}

// Dims returns the input, hidden and output widths.
func (n *Network) Dims() (in, hidden, out int) {
	return n.in, n.hidden, n.out
}

// Predict runs one feature vector through the network.
func (n *Network) Predict(x []float64) ([]float64, error) {
	if len(x) != n.in {
		return nil, fmt.Errorf("mlp: input width %d, want %d", len(x), n.in)
	}
	h := make([]float64, n.hidden)
	for j := 0; j < n.hidden; j++ {
		sum := n.b1[j]
		for i := 0; i < n.in; i++ {
			sum += x[i] * n.w1.At(i, j)
		}
		if sum > 0 {
			h[j] = sum
		}
	}
	out := make([]float64, n.out)
	for k := 0; k < n.out; k++ {
		sum := n.b2[k]
		for j := 0; j < n.hidden; j++ {
			sum += h[j] * n.w2.At(j, k)
		}
		out[k] = sum
	}
	return out, nil
}

// Train fits the network to the sample matrix. Rows of x and y pair up;
// the validation split is carved off the shuffled tail and never trained
// on. Returns the final epoch's mean training loss and the validation
// loss.
func (n *Network) Train(x, y [][]float64, cfg Config) (Result, error) {
	if len(x) == 0 {
		return Result{}, fmt.Errorf("mlp: empty training set")
	}
	if len(x) != len(y) {
		return Result{}, fmt.Errorf("mlp: %d inputs vs %d targets", len(x), len(y))
	}
	for i := range x {
		if len(x[i]) != n.in {
			return Result{}, fmt.Errorf("mlp: row %d input width %d, want %d", i, len(x[i]), n.in)
		}
		if len(y[i]) != n.out {
			return Result{}, fmt.Errorf("mlp: row %d target width %d, want %d", i, len(y[i]), n.out)
		}
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}

	// Shuffle once, then split train/validation.
	idx := n.rng.Perm(len(x))
	valN := int(float64(len(x)) * cfg.ValidationSplit)
	if valN >= len(x) {
		valN = len(x) - 1
	}
	trainIdx := idx[:len(x)-valN]
	valIdx := idx[len(x)-valN:]

	opt := newAdam(n)
	res := Result{
		Epochs:       cfg.Epochs,
		TrainSamples: len(trainIdx),
		ValSamples:   len(valIdx),
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		n.rng.Shuffle(len(trainIdx), func(i, j int) {
			trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i]
		})

		var epochLoss float64
		var batches int
		for start := 0; start < len(trainIdx); start += cfg.BatchSize {
			stop := start + cfg.BatchSize
			if stop > len(trainIdx) {
				stop = len(trainIdx)
			}
			batch := trainIdx[start:stop]
			epochLoss += n.step(x, y, batch, cfg.LearningRate, opt)
			batches++
		}
		res.TrainLoss = epochLoss / float64(batches)
	}

	if len(valIdx) > 0 {
		res.ValLoss = n.loss(x, y, valIdx)
	} else {
		res.ValLoss = res.TrainLoss
	}
	return res, nil
}

// step runs forward and backward over one mini-batch and applies the
// Adam update. Returns the batch MSE.
func (n *Network) step(x, y [][]float64, batch []int, lr float64, opt *adam) float64 {
	bs := len(batch)

	xb := mat.NewDense(bs, n.in, nil)
	yb := mat.NewDense(bs, n.out, nil)
	for r, i := range batch {
		xb.SetRow(r, x[i])
		yb.SetRow(r, y[i])
	}

	// Forward.
	var h mat.Dense
	h.Mul(xb, n.w1)
	h.Apply(func(_, j int, v float64) float64 {
		v += n.b1[j]
		if v < 0 {
			return 0
		}
		return v
	}, &h)

	var o mat.Dense
	o.Mul(&h, n.w2)
	o.Apply(func(_, k int, v float64) float64 { return v + n.b2[k] }, &o)

	// Output residual and loss.
	var diff mat.Dense
	diff.Sub(&o, yb)
	var sq float64
	diff.Apply(func(_, _ int, v float64) float64 {
		sq += v * v
		return v
	}, &diff)
	loss := sq / float64(bs*n.out)

	// Backward. Gradient of mean squared error w.r.t. the output.
	var dO mat.Dense
	dO.Scale(2/float64(bs*n.out), &diff)

	var dW2 mat.Dense
	dW2.Mul(h.T(), &dO)
	dB2 := colSums(&dO)

	var dH mat.Dense
	dH.Mul(&dO, n.w2.T())
	dH.Apply(func(r, j int, v float64) float64 {
		if h.At(r, j) <= 0 {
			return 0
		}
		return v
	}, &dH)

	var dW1 mat.Dense
	dW1.Mul(xb.T(), &dH)
	dB1 := colSums(&dH)

	opt.update(n, lr, &dW1, dB1, &dW2, dB2)
	return loss
}

// loss computes plain MSE over the given sample indices.
func (n *Network) loss(x, y [][]float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		out, _ := n.Predict(x[i])
		for k := range out {
			d := out[k] - y[i][k]
			sum += d * d
		}
	}
	return sum / float64(len(idx)*n.out)
}

func colSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[j] += m.At(i, j)
		}
	}
	return out
}

// ── Adam optimizer state ──

type adam struct {
	t int

	mW1, vW1 *mat.Dense
	mW2, vW2 *mat.Dense
	mB1, vB1 []float64
	mB2, vB2 []float64
}

func newAdam(n *Network) *adam {
	return &adam{
		mW1: mat.NewDense(n.in, n.hidden, nil),
		vW1: mat.NewDense(n.in, n.hidden, nil),
		mW2: mat.NewDense(n.hidden, n.out, nil),
		vW2: mat.NewDense(n.hidden, n.out, nil),
		mB1: make([]float64, n.hidden),
		vB1: make([]float64, n.hidden),
		mB2: make([]float64, n.out),
		vB2: make([]float64, n.out),
	}
}

func (a *adam) update(n *Network, lr float64, dW1 *mat.Dense, dB1 []float64, dW2 *mat.Dense, dB2 []float64) {
	a.t++
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))

	updateDense(n.w1, a.mW1, a.vW1, dW1, lr, c1, c2)
	updateDense(n.w2, a.mW2, a.vW2, dW2, lr, c1, c2)
	updateVec(n.b1, a.mB1, a.vB1, dB1, lr, c1, c2)
	updateVec(n.b2, a.mB2, a.vB2, dB2, lr, c1, c2)
}

func updateDense(w, m, v, g *mat.Dense, lr, c1, c2 float64) {
	r, c := w.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			grad := g.At(i, j)
			mi := adamBeta1*m.At(i, j) + (1-adamBeta1)*grad
			vi := adamBeta2*v.At(i, j) + (1-adamBeta2)*grad*grad
			m.Set(i, j, mi)
			v.Set(i, j, vi)
			w.Set(i, j, w.At(i, j)-lr*(mi/c1)/(math.Sqrt(vi/c2)+adamEpsilon))
		}
	}
}

func updateVec(w, m, v, g []float64, lr, c1, c2 float64) {
	for i := range w {
		mi := adamBeta1*m[i] + (1-adamBeta1)*g[i]
		vi := adamBeta2*v[i] + (1-adamBeta2)*g[i]*g[i]
		m[i] = mi
		v[i] = vi
		w[i] -= lr * (mi / c1) / (math.Sqrt(vi/c2) + adamEpsilon)
	}
}

// ── JSON serialization ──

type networkJSON struct {
	In     int       `json:"in"`
	Hidden int       `json:"hidden"`
	Out    int       `json:"out"`
	W1     []float64 `json:"w1"`
	B1     []float64 `json:"b1"`
	W2     []float64 `json:"w2"`
	B2     []float64 `json:"b2"`
}

// MarshalJSON serializes the weights row-major.
func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(networkJSON{
		In:     n.in,
		Hidden: n.hidden,
		Out:    n.out,
		W1:     append([]float64(nil), n.w1.RawMatrix().Data...),
		B1:     append([]float64(nil), n.b1...),
		W2:     append([]float64(nil), n.w2.RawMatrix().Data...),
		B2:     append([]float64(nil), n.b2...),
	})
}

// UnmarshalJSON restores a network from its serialized weights.
func (n *Network) UnmarshalJSON(data []byte) error {
	var nj networkJSON
	if err := json.Unmarshal(data, &nj); err != nil {
		return err
	}
	if nj.In <= 0 || nj.Hidden <= 0 || nj.Out <= 0 {
		return fmt.Errorf("mlp: invalid dimensions %d/%d/%d", nj.In, nj.Hidden, nj.Out)
	}
	if len(nj.W1) != nj.In*nj.Hidden || len(nj.W2) != nj.Hidden*nj.Out ||
		len(nj.B1) != nj.Hidden || len(nj.B2) != nj.Out {
		return fmt.Errorf("mlp: weight sizes do not match dimensions")
	}
	n.in, n.hidden, n.out = nj.In, nj.Hidden, nj.Out
	n.w1 = mat.NewDense(nj.In, nj.Hidden, nj.W1)
	n.b1 = nj.B1
	n.w2 = mat.NewDense(nj.Hidden, nj.Out, nj.W2)
	n.b2 = nj.B2
	n.rng = rand.New(rand.NewSource(1))
	return nil
}
