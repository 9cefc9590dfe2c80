package metrics

// Tracker accumulates per-batch scalars across one pass over a batch
// source.
type Tracker struct {
	lossSum float64
	accSum  float64
	batches int
}

// Record adds one batch's loss and accuracy.
func (t *Tracker) Record(loss, accuracy float64) {
	t.lossSum += loss
	t.accSum += accuracy
	t.batches++
}

// Batches reports how many batches have been recorded since the last
// snapshot.
func (t *Tracker) Batches() int { return t.batches }

// Snapshot returns the per-batch means and resets the tracker. The
// caller must ensure at least one batch was recorded.
func (t *Tracker) Snapshot() Snapshot {
	snap := Snapshot{Batches: t.batches}
	if t.batches > 0 {
		snap.MeanLoss = t.lossSum / float64(t.batches)
		snap.MeanAccuracy = t.accSum / float64(t.batches)
	}
	t.lossSum = 0
	t.accSum = 0
	t.batches = 0
	return snap
}

// Snapshot represents one pass's aggregated metrics.
type Snapshot struct {
	MeanLoss     float64
	MeanAccuracy float64
	Batches      int
}
