package trainer

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"stitchnet/internal/nn"
)

// Classify runs a single example through the network with evaluation
// semantics and returns the class-probability distribution plus the
// top-1 prediction.
func Classify(net *nn.Network, image []float64) ([]float64, int, error) {
	if len(image) != net.InputSize() {
		return nil, 0, fmt.Errorf("%w: example has %d features, want %d", nn.ErrShapeMismatch, len(image), net.InputSize())
	}
	x := mat.NewDense(1, len(image), append([]float64(nil), image...))
	logProbs, err := net.Forward(x, nn.Evaluation)
	if err != nil {
		return nil, 0, err
	}
	probs := exp(logProbs).RawRowView(0)
	return probs, floats.MaxIdx(probs), nil
}
