package viz

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SavePrediction writes two artifacts under dir: <name>.png with the
// class-probability bar chart and <name>_input.png with the input image
// rendered as grayscale. The image is assumed square with pixels
// normalized to [-1, 1].
func SavePrediction(dir, name string, img []float64, probs []float64, classNames []string) (chartPath, imagePath string, err error) {
	if len(probs) != len(classNames) {
		return "", "", fmt.Errorf("viz: %d probabilities for %d class names", len(probs), len(classNames))
	}
	if sum := floats.Sum(probs); math.Abs(sum-1) > 1e-6 {
		return "", "", fmt.Errorf("viz: probabilities sum to %f, want 1", sum)
	}
	side := int(math.Sqrt(float64(len(img))))
	if side*side != len(img) {
		return "", "", fmt.Errorf("viz: image with %d pixels is not square", len(img))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("viz: %w", err)
	}

	chartPath = filepath.Join(dir, name+".png")
	if err := saveChart(chartPath, probs, classNames); err != nil {
		return "", "", err
	}
	imagePath = filepath.Join(dir, name+"_input.png")
	if err := saveImage(imagePath, img, side); err != nil {
		return "", "", err
	}
	return chartPath, imagePath, nil
}

func saveChart(path string, probs []float64, classNames []string) error {
	p := plot.New()
	p.Title.Text = "class probabilities"
	p.Y.Label.Text = "probability"
	p.Y.Min, p.Y.Max = 0, 1

	bars, err := plotter.NewBarChart(plotter.Values(probs), vg.Points(18))
	if err != nil {
		return fmt.Errorf("viz: bar chart: %w", err)
	}
	p.Add(bars)
	p.NominalX(classNames...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = -1

	if err := p.Save(6*vg.Inch, 3*vg.Inch, path); err != nil {
		return fmt.Errorf("viz: save chart: %w", err)
	}
	return nil
}

func saveImage(path string, pixels []float64, side int) error {
	gray := image.NewGray(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			v := pixels[y*side+x]*0.5 + 0.5
			v = math.Max(0, math.Min(1, v))
			gray.SetGray(x, y, color.Gray{Y: uint8(v * 255)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("viz: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, gray); err != nil {
		return fmt.Errorf("viz: encode image: %w", err)
	}
	return nil
}
