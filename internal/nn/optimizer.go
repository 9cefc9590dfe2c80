package nn

// SGD applies plain stochastic gradient descent to a network's
// accumulated gradients.
type SGD struct {
	net *Network
	lr  float64
}

// NewSGD binds an optimizer to the network's parameters.
func NewSGD(net *Network, lr float64) *SGD {
	if lr <= 0 {
		lr = 0.003
	}
	return &SGD{net: net, lr: lr}
}

// ZeroGrad clears every accumulated gradient.
func (s *SGD) ZeroGrad() {
	for _, l := range s.net.layers {
		l.gradW.Zero()
		for i := range l.gradB {
			l.gradB[i] = 0
		}
	}
}

// Step applies one update from the accumulated gradients.
func (s *SGD) Step() {
	for _, l := range s.net.layers {
		rows, cols := l.w.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				l.w.Set(r, c, l.w.At(r, c)-s.lr*l.gradW.At(r, c))
			}
		}
		for i := range l.b {
			l.b[i] -= s.lr * l.gradB[i]
		}
	}
}
