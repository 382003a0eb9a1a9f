package batch

import (
	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

// buildPipeline creates an analysis pipeline from the batch configuration.
func buildPipeline(config *Config) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder().
		WithBackend(config.Backend).
		WithEndpoint(config.Endpoint).
		WithRegion(config.Region).
		WithAPIKey(config.APIKey).
		WithPersonLabel(config.PersonLabel)

	if config.ModelsDir != "" {
		b = b.WithModelsDir(config.ModelsDir)
	}
	if config.ModelPath != "" {
		b = b.WithModelPath(config.ModelPath)
	}
	if config.Threads > 0 {
		b = b.WithThreads(config.Threads)
	}
	if config.Timeout > 0 {
		b = b.WithTimeout(config.Timeout)
	}
	if config.JPEGQuality > 0 {
		b = b.WithJPEGQuality(config.JPEGQuality)
	}
	if config.Detector != nil {
		b = b.WithDetector(config.Detector)
	}

	return b.Build()
}

// detectOptions converts batch configuration into per-image analysis options.
func detectOptions(config *Config) pipeline.Options {
	opts := pipeline.DefaultOptions()
	if config.MaxLabels > 0 {
		opts.MaxLabels = config.MaxLabels
	}
	if config.MinConfidence > 0 {
		opts.MinConfidence = config.MinConfidence
	}
	opts.RemovePeople = config.RemovePeople
	return opts
}
