package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Mode selects forward-pass semantics. Dropout is active only in Training.
type Mode int

const (
	Training Mode = iota
	Evaluation
)

// ErrShapeMismatch reports a batch whose dimensions disagree with the
// network topology or label slice.
var ErrShapeMismatch = errors.New("nn: shape mismatch")

// ErrNonFinite reports a loss that is NaN or infinite.
var ErrNonFinite = errors.New("nn: loss is not finite")

// Config describes the network topology.
type Config struct {
	InputSize  int
	Hidden     []int
	NumClasses int
	Dropout    float64
	Seed       int64
}

func (c *Config) applyDefaults() {
	if c.InputSize <= 0 {
		c.InputSize = 784
	}
	if len(c.Hidden) == 0 {
		c.Hidden = []int{256, 128, 64}
	}
	if c.NumClasses <= 0 {
		c.NumClasses = 10
	}
	// Dropout of 1 would zero every activation and divide the
	// inverted-dropout scale by zero.
	if c.Dropout < 0 || c.Dropout >= 1 {
		c.Dropout = 0
	}
}

type layer struct {
	w     *mat.Dense // in x out
	b     []float64
	gradW *mat.Dense
	gradB []float64
}

// Network is a feed-forward classifier: dense layers with ReLU and
// inverted dropout between them, log-softmax on the output.
type Network struct {
	cfg    Config
	layers []*layer
	rng    *rand.Rand
}

// NewNetwork constructs the network with He-normal initialization.
func NewNetwork(cfg Config) *Network {
	cfg.applyDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))
	sizes := append([]int{cfg.InputSize}, cfg.Hidden...)
	sizes = append(sizes, cfg.NumClasses)

	layers := make([]*layer, len(sizes)-1)
	for i := range layers {
		in, out := sizes[i], sizes[i+1]
		scale := math.Sqrt(2.0 / float64(in))
		w := mat.NewDense(in, out, nil)
		for r := 0; r < in; r++ {
			for c := 0; c < out; c++ {
				w.Set(r, c, rng.NormFloat64()*scale)
			}
		}
		layers[i] = &layer{
			w:     w,
			b:     make([]float64, out),
			gradW: mat.NewDense(in, out, nil),
			gradB: make([]float64, out),
		}
	}
	return &Network{cfg: cfg, layers: layers, rng: rng}
}

// NumClasses returns the size of the output distribution.
func (n *Network) NumClasses() int { return n.cfg.NumClasses }

// InputSize returns the expected feature count per example.
func (n *Network) InputSize() int { return n.cfg.InputSize }

// Forward runs an inference-only pass and returns per-row
// log-probabilities. No gradient state is read or written; with
// mode == Evaluation the pass is fully deterministic.
func (n *Network) Forward(x *mat.Dense, mode Mode) (*mat.Dense, error) {
	out, _, err := n.forward(x, mode, false)
	return out, err
}

type forwardCache struct {
	acts  []*mat.Dense // acts[0] is the input batch
	zs    []*mat.Dense // pre-activation per layer
	masks []*mat.Dense // dropout mask per hidden layer (nil when inactive)
}

func (n *Network) forward(x *mat.Dense, mode Mode, keep bool) (*mat.Dense, *forwardCache, error) {
	rows, cols := x.Dims()
	if cols != n.cfg.InputSize {
		return nil, nil, fmt.Errorf("%w: input has %d columns, want %d", ErrShapeMismatch, cols, n.cfg.InputSize)
	}
	if rows == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}

	var cache *forwardCache
	if keep {
		cache = &forwardCache{
			acts:  make([]*mat.Dense, 0, len(n.layers)+1),
			zs:    make([]*mat.Dense, 0, len(n.layers)),
			masks: make([]*mat.Dense, len(n.layers)-1),
		}
		cache.acts = append(cache.acts, x)
	}

	a := x
	for i, l := range n.layers {
		z := &mat.Dense{}
		z.Mul(a, l.w)
		z.Apply(func(_, j int, v float64) float64 { return v + l.b[j] }, z)
		if keep {
			cache.zs = append(cache.zs, z)
		}

		if i == len(n.layers)-1 {
			a = logSoftmax(z)
			if keep {
				cache.acts = append(cache.acts, a)
			}
			break
		}

		act := &mat.Dense{}
		act.Apply(func(_, _ int, v float64) float64 {
			if v > 0 {
				return v
			}
			return 0
		}, z)

		if mode == Training && n.cfg.Dropout > 0 {
			mask := n.dropoutMask(act)
			act.MulElem(act, mask)
			if keep {
				cache.masks[i] = mask
			}
		}
		if keep {
			cache.acts = append(cache.acts, act)
		}
		a = act
	}
	return a, cache, nil
}

// dropoutMask draws an inverted-dropout mask: survivors are scaled by
// 1/(1-p) so the Evaluation pass needs no rescaling.
func (n *Network) dropoutMask(like *mat.Dense) *mat.Dense {
	rows, cols := like.Dims()
	keepProb := 1 - n.cfg.Dropout
	scale := 1 / keepProb
	mask := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if n.rng.Float64() < keepProb {
				mask.Set(r, c, scale)
			}
		}
	}
	return mask
}

func logSoftmax(z *mat.Dense) *mat.Dense {
	rows, cols := z.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		maxV := z.At(r, 0)
		for c := 1; c < cols; c++ {
			if v := z.At(r, c); v > maxV {
				maxV = v
			}
		}
		sum := 0.0
		for c := 0; c < cols; c++ {
			sum += math.Exp(z.At(r, c) - maxV)
		}
		logSum := maxV + math.Log(sum)
		for c := 0; c < cols; c++ {
			out.Set(r, c, z.At(r, c)-logSum)
		}
	}
	return out
}

// NLLLoss is the mean negative log-likelihood of the true labels under
// the given log-probabilities.
func NLLLoss(logProbs *mat.Dense, labels []int) (float64, error) {
	rows, cols := logProbs.Dims()
	if rows != len(labels) {
		return 0, fmt.Errorf("%w: %d rows of log-probabilities, %d labels", ErrShapeMismatch, rows, len(labels))
	}
	sum := 0.0
	for i, label := range labels {
		if label < 0 || label >= cols {
			return 0, fmt.Errorf("%w: label %d outside [0, %d)", ErrShapeMismatch, label, cols)
		}
		sum -= logProbs.At(i, label)
	}
	loss := sum / float64(rows)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, fmt.Errorf("%w: %v", ErrNonFinite, loss)
	}
	return loss, nil
}

// TrainStep runs one forward/backward pass in Training mode and
// accumulates gradients into the network's buffers. The caller owns the
// optimizer: clear gradients before and apply the update after.
func (n *Network) TrainStep(x *mat.Dense, labels []int) (float64, error) {
	logProbs, cache, err := n.forward(x, Training, true)
	if err != nil {
		return 0, err
	}
	loss, err := NLLLoss(logProbs, labels)
	if err != nil {
		return loss, err
	}
	n.backward(cache, labels)
	return loss, nil
}

func (n *Network) backward(cache *forwardCache, labels []int) {
	logProbs := cache.acts[len(cache.acts)-1]
	rows, cols := logProbs.Dims()
	invN := 1 / float64(rows)

	// Gradient of mean NLL w.r.t. the output-layer pre-activations:
	// (softmax - onehot) / batch.
	delta := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g := math.Exp(logProbs.At(r, c)) * invN
			if c == labels[r] {
				g -= invN
			}
			delta.Set(r, c, g)
		}
	}

	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]
		prev := cache.acts[i]

		gw := &mat.Dense{}
		gw.Mul(prev.T(), delta)
		l.gradW.Add(l.gradW, gw)

		dr, dc := delta.Dims()
		for c := 0; c < dc; c++ {
			s := 0.0
			for r := 0; r < dr; r++ {
				s += delta.At(r, c)
			}
			l.gradB[c] += s
		}

		if i == 0 {
			break
		}

		da := &mat.Dense{}
		da.Mul(delta, l.w.T())
		if mask := cache.masks[i-1]; mask != nil {
			da.MulElem(da, mask)
		}
		z := cache.zs[i-1]
		da.Apply(func(r, c int, v float64) float64 {
			if z.At(r, c) > 0 {
				return v
			}
			return 0
		}, da)
		delta = da
	}
}
