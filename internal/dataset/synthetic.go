package dataset

import "math/rand"

// Synthetic generates a balanced, learnable toy split: each class gets a
// random centroid and examples are Gaussian noise around it. Useful for
// tests and for running the demo without the real dataset on disk.
func Synthetic(n, features, classes int, seed int64) Split {
	rng := rand.New(rand.NewSource(seed))

	centroids := make([][]float64, classes)
	for c := range centroids {
		centroids[c] = make([]float64, features)
		for j := range centroids[c] {
			centroids[c][j] = rng.Float64()*2 - 1
		}
	}

	images := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		label := i % classes
		row := make([]float64, features)
		for j := range row {
			row[j] = centroids[label][j] + rng.NormFloat64()*0.3
		}
		images[i] = row
		labels[i] = label
	}

	rng.Shuffle(n, func(i, j int) {
		images[i], images[j] = images[j], images[i]
		labels[i], labels[j] = labels[j], labels[i]
	})
	return Split{Images: images, Labels: labels}
}
