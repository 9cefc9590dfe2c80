package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"stitchnet/internal/dataset"
	"stitchnet/internal/metrics"
	"stitchnet/internal/nn"
)

// ErrEmptyBatchSource reports a pass that yielded zero batches; mean
// metrics would otherwise divide by zero.
var ErrEmptyBatchSource = errors.New("trainer: batch source yielded no batches")

// ErrNumericInstability reports a non-finite loss during a pass.
var ErrNumericInstability = errors.New("trainer: non-finite loss")

// RunConfig captures the knobs required by the epoch driver.
type RunConfig struct {
	Epochs   int
	LogEvery int
}

// EpochStats is one epoch's report: mean training loss, mean validation
// loss and mean validation accuracy.
type EpochStats struct {
	Epoch       int
	TrainLoss   float64
	ValLoss     float64
	ValAccuracy float64
}

// Fit runs the train-then-validate epoch loop. Each epoch makes one
// pass over the training loader updating parameters, then one pass over
// the validation loader with evaluation semantics only.
func Fit(ctx context.Context, net *nn.Network, opt *nn.SGD, train, val *dataset.Loader, cfg RunConfig) ([]EpochStats, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 1
	}

	stats := make([]EpochStats, 0, cfg.Epochs)
	var tracker metrics.Tracker

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		train.Reset()
		batchNum := 0
		for {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			batch, ok := train.Next()
			if !ok {
				break
			}
			batchNum++
			opt.ZeroGrad()
			loss, err := net.TrainStep(batch.X, batch.Labels)
			if err != nil {
				if errors.Is(err, nn.ErrNonFinite) {
					return stats, fmt.Errorf("%w: epoch %d training batch %d: %v", ErrNumericInstability, epoch, batchNum, err)
				}
				return stats, fmt.Errorf("epoch %d training batch %d: %w", epoch, batchNum, err)
			}
			opt.Step()
			tracker.Record(loss, 0)
		}
		if tracker.Batches() == 0 {
			return stats, fmt.Errorf("%w: training pass, epoch %d", ErrEmptyBatchSource, epoch)
		}
		trainSnap := tracker.Snapshot()

		valSnap, err := Validate(ctx, net, val)
		if err != nil {
			return stats, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		es := EpochStats{
			Epoch:       epoch,
			TrainLoss:   trainSnap.MeanLoss,
			ValLoss:     valSnap.MeanLoss,
			ValAccuracy: valSnap.MeanAccuracy,
		}
		stats = append(stats, es)
		if epoch%cfg.LogEvery == 0 {
			log.Printf("epoch=%d train_loss=%.4f val_loss=%.4f val_accuracy=%.4f",
				es.Epoch, es.TrainLoss, es.ValLoss, es.ValAccuracy)
		}
	}
	return stats, nil
}

// Validate makes one evaluation-mode pass over the loader and returns
// the mean loss and mean per-batch accuracy. It never mutates the
// network: running it twice in a row yields identical results.
func Validate(ctx context.Context, net *nn.Network, val *dataset.Loader) (metrics.Snapshot, error) {
	val.Reset()
	var tracker metrics.Tracker
	batchNum := 0
	for {
		if err := ctx.Err(); err != nil {
			return metrics.Snapshot{}, err
		}
		batch, ok := val.Next()
		if !ok {
			break
		}
		batchNum++
		logProbs, err := net.Forward(batch.X, nn.Evaluation)
		if err != nil {
			return metrics.Snapshot{}, fmt.Errorf("validation batch %d: %w", batchNum, err)
		}
		loss, err := nn.NLLLoss(logProbs, batch.Labels)
		if err != nil {
			if errors.Is(err, nn.ErrNonFinite) {
				return metrics.Snapshot{}, fmt.Errorf("%w: validation batch %d: %v", ErrNumericInstability, batchNum, err)
			}
			return metrics.Snapshot{}, fmt.Errorf("validation batch %d: %w", batchNum, err)
		}

		preds := TopOne(exp(logProbs))
		matched := 0
		for i, p := range preds {
			if p == batch.Labels[i] {
				matched++
			}
		}
		tracker.Record(loss, float64(matched)/float64(len(preds)))
	}
	if tracker.Batches() == 0 {
		return metrics.Snapshot{}, fmt.Errorf("%w: validation pass", ErrEmptyBatchSource)
	}
	return tracker.Snapshot(), nil
}

// TopOne selects the highest-probability class per row, taking the
// first index when several attain the maximum.
func TopOne(probs *mat.Dense) []int {
	rows, _ := probs.Dims()
	preds := make([]int, rows)
	for r := 0; r < rows; r++ {
		preds[r] = floats.MaxIdx(probs.RawRowView(r))
	}
	return preds
}

func exp(logProbs *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) }, logProbs)
	return out
}
