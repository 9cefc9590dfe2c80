package dataset

import (
	"errors"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Batch is one minibatch: a rows-by-features matrix plus a label per row.
type Batch struct {
	X      *mat.Dense
	Labels []int
}

// LoaderOptions configures a minibatch loader.
type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
}

// Loader yields minibatches from a split in a strictly sequential pass.
// Reset restarts the pass, reshuffling when shuffle is enabled.
type Loader struct {
	split  Split
	opts   LoaderOptions
	order  []int
	cursor int
	rng    *rand.Rand
}

// NewLoader builds a loader over the split.
func NewLoader(split Split, opts LoaderOptions) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.New("dataset: batch size must be > 0")
	}
	if len(split.Images) != len(split.Labels) {
		return nil, errors.New("dataset: image/label count mismatch")
	}
	l := &Loader{
		split: split,
		opts:  opts,
		order: make([]int, len(split.Images)),
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}
	for i := range l.order {
		l.order[i] = i
	}
	l.Reset()
	return l, nil
}

// Len reports the number of examples per pass.
func (l *Loader) Len() int { return len(l.order) }

// Batches reports the number of minibatches per pass. The short final
// batch counts.
func (l *Loader) Batches() int {
	return (len(l.order) + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Reset restarts the pass.
func (l *Loader) Reset() {
	l.cursor = 0
	if l.opts.Shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Next returns the next minibatch, or ok=false when the pass is done.
func (l *Loader) Next() (Batch, bool) {
	if l.cursor >= len(l.order) || len(l.split.Images) == 0 {
		return Batch{}, false
	}
	end := l.cursor + l.opts.BatchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	rows := end - l.cursor
	width := len(l.split.Images[0])

	x := mat.NewDense(rows, width, nil)
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		idx := l.order[l.cursor+i]
		x.SetRow(i, l.split.Images[idx])
		labels[i] = l.split.Labels[idx]
	}
	l.cursor = end
	return Batch{X: x, Labels: labels}, true
}
