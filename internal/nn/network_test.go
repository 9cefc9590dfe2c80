package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func randomBatch(rows, cols int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x.Set(r, c, rng.NormFloat64())
		}
	}
	return x
}

func TestForwardProducesLogProbabilities(t *testing.T) {
	net := NewNetwork(Config{InputSize: 8, Hidden: []int{6, 5}, NumClasses: 4, Seed: 1})
	x := randomBatch(3, 8, 2)
	logProbs, err := net.Forward(x, Evaluation)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	rows, cols := logProbs.Dims()
	if rows != 3 || cols != 4 {
		t.Fatalf("unexpected output shape %dx%d", rows, cols)
	}
	for r := 0; r < rows; r++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			lp := logProbs.At(r, c)
			if lp > 0 {
				t.Fatalf("log-probability %f > 0 at (%d,%d)", lp, r, c)
			}
			sum += math.Exp(lp)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d probabilities sum to %f", r, sum)
		}
	}
}

func TestForwardRejectsWrongInputWidth(t *testing.T) {
	net := NewNetwork(Config{InputSize: 8, Hidden: []int{6}, NumClasses: 4, Seed: 1})
	_, err := net.Forward(randomBatch(2, 5, 1), Evaluation)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestEvaluationForwardIsDeterministic(t *testing.T) {
	net := NewNetwork(Config{InputSize: 8, Hidden: []int{6}, NumClasses: 4, Dropout: 0.5, Seed: 3})
	x := randomBatch(4, 8, 4)
	first, err := net.Forward(x, Evaluation)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	second, err := net.Forward(x, Evaluation)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if !mat.EqualApprox(first, second, 0) {
		t.Fatalf("evaluation forward is not deterministic")
	}
}

func TestDropoutMaskStatistics(t *testing.T) {
	net := NewNetwork(Config{InputSize: 4, Hidden: []int{4}, NumClasses: 2, Dropout: 0.2, Seed: 5})
	like := mat.NewDense(100, 100, nil)
	mask := net.dropoutMask(like)
	zeros := 0
	scale := 1 / 0.8
	for r := 0; r < 100; r++ {
		for c := 0; c < 100; c++ {
			v := mask.At(r, c)
			switch {
			case v == 0:
				zeros++
			case math.Abs(v-scale) > 1e-12:
				t.Fatalf("mask entry %f is neither 0 nor %f", v, scale)
			}
		}
	}
	frac := float64(zeros) / 10000
	if frac < 0.15 || frac > 0.25 {
		t.Fatalf("dropped fraction %f not near 0.2", frac)
	}
}

func TestInvalidDropoutIsDisabled(t *testing.T) {
	for _, p := range []float64{1, 1.5, -0.2} {
		net := NewNetwork(Config{InputSize: 4, Hidden: []int{4}, NumClasses: 2, Dropout: p, Seed: 1})
		if net.cfg.Dropout != 0 {
			t.Fatalf("dropout %f should be disabled, got %f", p, net.cfg.Dropout)
		}
		x := randomBatch(2, 4, 1)
		first, _, err := net.forward(x, Training, false)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		second, _, err := net.forward(x, Training, false)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		if !mat.EqualApprox(first, second, 0) {
			t.Fatalf("dropout %f still active in training mode", p)
		}
		rows, cols := first.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if v := first.At(r, c); math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("dropout %f produced non-finite output %f", p, v)
				}
			}
		}
	}
}

func TestTrainStepReducesLoss(t *testing.T) {
	net := NewNetwork(Config{InputSize: 4, Hidden: []int{8}, NumClasses: 3, Seed: 1})
	opt := NewSGD(net, 0.1)
	x := mat.NewDense(2, 4, []float64{
		0.1, 0.2, 0.3, 0.4,
		0.4, 0.3, 0.2, 0.1,
	})
	labels := []int{1, 2}

	opt.ZeroGrad()
	loss1, err := net.TrainStep(x, labels)
	if err != nil {
		t.Fatalf("train step: %v", err)
	}
	opt.Step()

	opt.ZeroGrad()
	loss2, err := net.TrainStep(x, labels)
	if err != nil {
		t.Fatalf("train step: %v", err)
	}
	if loss2 > loss1 {
		t.Fatalf("expected loss to decrease; loss1=%f loss2=%f", loss1, loss2)
	}
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	net := NewNetwork(Config{InputSize: 4, Hidden: []int{5}, NumClasses: 3, Seed: 7})
	opt := NewSGD(net, 0.1)
	x := randomBatch(3, 4, 8)
	labels := []int{0, 2, 1}

	opt.ZeroGrad()
	if _, err := net.TrainStep(x, labels); err != nil {
		t.Fatalf("train step: %v", err)
	}

	lossAt := func() float64 {
		logProbs, err := net.Forward(x, Evaluation)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		loss, err := NLLLoss(logProbs, labels)
		if err != nil {
			t.Fatalf("loss: %v", err)
		}
		return loss
	}

	const eps = 1e-5
	for li, l := range net.layers {
		rows, cols := l.w.Dims()
		for _, pos := range [][2]int{{0, 0}, {rows - 1, cols - 1}, {rows / 2, cols / 2}} {
			r, c := pos[0], pos[1]
			orig := l.w.At(r, c)
			l.w.Set(r, c, orig+eps)
			up := lossAt()
			l.w.Set(r, c, orig-eps)
			down := lossAt()
			l.w.Set(r, c, orig)

			numeric := (up - down) / (2 * eps)
			analytic := l.gradW.At(r, c)
			if math.Abs(numeric-analytic) > 1e-4*math.Max(1, math.Abs(numeric)) {
				t.Fatalf("layer %d weight (%d,%d): numeric %g vs analytic %g", li, r, c, numeric, analytic)
			}
		}
		orig := l.b[0]
		l.b[0] = orig + eps
		up := lossAt()
		l.b[0] = orig - eps
		down := lossAt()
		l.b[0] = orig
		numeric := (up - down) / (2 * eps)
		if math.Abs(numeric-l.gradB[0]) > 1e-4*math.Max(1, math.Abs(numeric)) {
			t.Fatalf("layer %d bias: numeric %g vs analytic %g", li, numeric, l.gradB[0])
		}
	}
}

func TestNLLLossRejectsBadLabels(t *testing.T) {
	logProbs := mat.NewDense(2, 3, []float64{
		-1, -1, -1,
		-1, -1, -1,
	})
	if _, err := NLLLoss(logProbs, []int{0}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for label count, got %v", err)
	}
	if _, err := NLLLoss(logProbs, []int{0, 5}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for label range, got %v", err)
	}
}

func TestNLLLossSurfacesNonFiniteLoss(t *testing.T) {
	logProbs := mat.NewDense(1, 2, []float64{math.Inf(-1), 0})
	_, err := NLLLoss(logProbs, []int{0})
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
}
