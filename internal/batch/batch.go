package batch

// Package batch runs person detection and removal over many images at once.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

// ProcessBatch processes a batch of images with the given configuration.
// Individual file failures are recorded per item; the returned error covers
// discovery and pipeline construction only.
func ProcessBatch(ctx context.Context, imagePaths []string, config *Config) (*Result, error) {
	files, err := discoverImageFiles(imagePaths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}

	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	var progressCallback pipeline.ProgressCallback
	if config.ShowProgress && !config.Quiet {
		progressCallback = pipeline.NewConsoleProgressCallback(
			os.Stdout,
			"Processing: ",
		).WithUpdateInterval(config.ProgressInterval)
	}

	pl, err := buildPipeline(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing pipeline: %v\n", err)
		}
	}()

	startTime := time.Now()
	items := processImagesParallel(ctx, pl, files, config, progressCallback)
	duration := time.Since(startTime)

	return &Result{
		Items:       items,
		Duration:    duration,
		WorkerCount: effectiveWorkers(config.Workers, len(files)),
	}, nil
}
