package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"stitchnet/internal/config"
	"stitchnet/internal/dataset"
	"stitchnet/internal/nn"
	"stitchnet/internal/trainer"
	"stitchnet/internal/viz"
)

const (
	imageSize  = 28 * 28
	numClasses = 10
)

func main() {
	cfgPath := flag.String("config", "configs/demo.yaml", "Path to YAML config")
	dataDir := flag.String("data-dir", "", "Directory holding the IDX dataset files")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	learningRate := flag.Float64("learning-rate", 0, "SGD learning rate")
	dropout := flag.Float64("dropout", 0, "Dropout probability")
	hidden := flag.String("hidden", "", "Comma-separated hidden layer sizes")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N epochs")
	vizDir := flag.String("viz-dir", "", "Directory for prediction artifacts")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	hiddenSizes, err := parseHidden(*hidden)
	if err != nil {
		log.Fatalf("invalid -hidden: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:      *dataDir,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		LearningRate: *learningRate,
		Dropout:      *dropout,
		Hidden:       hiddenSizes,
		Seed:         *seed,
		LogEvery:     *logEvery,
		VizDir:       *vizDir,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	train, test, classNames := loadSplits(cfg)
	log.Printf("train_examples=%d test_examples=%d", len(train.Images), len(test.Images))

	trainLoader, err := dataset.NewLoader(train, dataset.LoaderOptions{
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		Seed:      cfg.Seed,
	})
	if err != nil {
		log.Fatalf("training loader: %v", err)
	}
	valLoader, err := dataset.NewLoader(test, dataset.LoaderOptions{BatchSize: cfg.BatchSize})
	if err != nil {
		log.Fatalf("validation loader: %v", err)
	}

	net := nn.NewNetwork(nn.Config{
		InputSize:  imageSize,
		Hidden:     cfg.Hidden,
		NumClasses: numClasses,
		Dropout:    cfg.Dropout,
		Seed:       cfg.Seed,
	})
	opt := nn.NewSGD(net, cfg.LearningRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := trainer.Fit(ctx, net, opt, trainLoader, valLoader, trainer.RunConfig{
		Epochs:   cfg.Epochs,
		LogEvery: cfg.LogEvery,
	})
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	final := stats[len(stats)-1]
	log.Printf("done epochs=%d val_accuracy=%.4f val_loss=%.4f", final.Epoch, final.ValAccuracy, final.ValLoss)

	example := test.Images[0]
	probs, pred, err := trainer.Classify(net, example)
	if err != nil {
		log.Fatalf("inference failed: %v", err)
	}
	log.Printf("example_label=%q predicted=%q probability=%.4f",
		classNames[test.Labels[0]], classNames[pred], probs[pred])

	chartPath, imagePath, err := viz.SavePrediction(cfg.VizDir, "prediction", example, probs, classNames)
	if err != nil {
		log.Fatalf("visualization failed: %v", err)
	}
	log.Printf("chart=%s input=%s", chartPath, imagePath)
}

// parseHidden parses a comma-separated list of layer sizes.
func parseHidden(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	sizes := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("layer size %q: %w", part, err)
		}
		sizes[i] = v
	}
	return sizes, nil
}

// loadSplits reads the configured IDX dataset, or generates a synthetic
// stand-in so the demo runs without data on disk.
func loadSplits(cfg *config.Config) (train, test dataset.Split, classNames []string) {
	if cfg.DataDir != "" {
		var err error
		train, test, err = dataset.Load(cfg.DataDir)
		if err != nil {
			log.Fatalf("load dataset: %v", err)
		}
		return train, test, dataset.ClassNames
	}

	log.Printf("no data_dir configured, using a synthetic dataset")
	train = dataset.Synthetic(4096, imageSize, numClasses, cfg.Seed)
	test = dataset.Synthetic(1024, imageSize, numClasses, cfg.Seed+1)
	classNames = make([]string, numClasses)
	for i := range classNames {
		classNames[i] = fmt.Sprintf("class %d", i)
	}
	return train, test, classNames
}
