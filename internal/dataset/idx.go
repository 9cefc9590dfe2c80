package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// ClassNames are the Fashion-MNIST labels in index order.
var ClassNames = []string{
	"T-shirt/top", "Trouser", "Pullover", "Dress", "Coat",
	"Sandal", "Shirt", "Sneaker", "Bag", "Ankle boot",
}

const (
	trainImagesFile = "train-images-idx3-ubyte"
	trainLabelsFile = "train-labels-idx1-ubyte"
	testImagesFile  = "t10k-images-idx3-ubyte"
	testLabelsFile  = "t10k-labels-idx1-ubyte"
)

// Split is an in-memory dataset partition: one row of normalized pixel
// features per example, with a label each.
type Split struct {
	Images [][]float64
	Labels []int
}

// Load reads the standard train/t10k IDX file pairs beneath dir. Both
// plain and gzip-compressed files are accepted.
func Load(dir string) (train, test Split, err error) {
	train, err = loadPair(dir, trainImagesFile, trainLabelsFile)
	if err != nil {
		return Split{}, Split{}, fmt.Errorf("load training split: %w", err)
	}
	test, err = loadPair(dir, testImagesFile, testLabelsFile)
	if err != nil {
		return Split{}, Split{}, fmt.Errorf("load test split: %w", err)
	}
	return train, test, nil
}

func loadPair(dir, imagesName, labelsName string) (Split, error) {
	images, err := readFile(dir, imagesName, ReadImages)
	if err != nil {
		return Split{}, err
	}
	labels, err := readFile(dir, labelsName, ReadLabels)
	if err != nil {
		return Split{}, err
	}
	if len(images) != len(labels) {
		return Split{}, fmt.Errorf("%s: %d images but %d labels", imagesName, len(images), len(labels))
	}
	return Split{Images: images, Labels: labels}, nil
}

func readFile[T any](dir, name string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	path, err := resolve(dir, name)
	if err != nil {
		return zero, err
	}
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return zero, fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	out, err := parse(r)
	if err != nil {
		return zero, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func resolve(dir, name string) (string, error) {
	for _, candidate := range []string{name, name + ".gz"} {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("neither %s nor %s.gz found under %s", name, name, dir)
}

// ReadImages decodes an IDX3 image file into one feature row per image.
// Pixels are scaled to [0,1] and then normalized with mean 0.5, std 0.5.
func ReadImages(r io.Reader) ([][]float64, error) {
	var header [4]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, fmt.Errorf("image header: %w", err)
		}
	}
	if header[0] != imageMagic {
		return nil, fmt.Errorf("bad image magic 0x%08x", header[0])
	}
	count := int(header[1])
	pixels := int(header[2]) * int(header[3])

	buf := make([]byte, pixels)
	images := make([][]float64, count)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		row := make([]float64, pixels)
		for j, b := range buf {
			row[j] = (float64(b)/255 - 0.5) / 0.5
		}
		images[i] = row
	}
	return images, nil
}

// ReadLabels decodes an IDX1 label file.
func ReadLabels(r io.Reader) ([]int, error) {
	var header [2]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, fmt.Errorf("label header: %w", err)
		}
	}
	if header[0] != labelMagic {
		return nil, fmt.Errorf("bad label magic 0x%08x", header[0])
	}
	count := int(header[1])
	buf := make([]byte, count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	labels := make([]int, count)
	for i, b := range buf {
		labels[i] = int(b)
	}
	return labels, nil
}
