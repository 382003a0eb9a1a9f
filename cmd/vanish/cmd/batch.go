package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/MeKo-Tech/vanish/internal/batch"
	"github.com/MeKo-Tech/vanish/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd represents the batch command for parallel image processing.
var batchCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Analyze multiple images in parallel",
	Long: `Analyze multiple image files in parallel: detect labels, summarize
people and optionally remove them. This command is optimized for processing
large numbers of images efficiently using parallel workers.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP

Examples:
  vanish batch *.jpg *.png
  vanish batch images/ --recursive --workers 8
  vanish batch photos/ --remove-people --output-dir ./redacted
  vanish batch file1.jpg file2.png --format json --output results.json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps centralized configuration to batch.Config.
// CLI flags will override config file values through Viper's precedence system.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	batchConfig := &batch.Config{}

	// Detection settings - use centralized config with CLI flag overrides
	batchConfig.MaxLabels = cfg.Vision.MaxLabels
	if cmd.Flags().Changed("max-labels") {
		batchConfig.MaxLabels, _ = cmd.Flags().GetInt("max-labels")
	}

	batchConfig.MinConfidence = cfg.Vision.MinConfidence
	if cmd.Flags().Changed("confidence") {
		batchConfig.MinConfidence, _ = cmd.Flags().GetFloat64("confidence")
	}

	batchConfig.PersonLabel = cfg.Vision.PersonLabel
	if cmd.Flags().Changed("person-label") {
		batchConfig.PersonLabel, _ = cmd.Flags().GetString("person-label")
	}

	// Removal is per-invocation and has no config file equivalent
	batchConfig.RemovePeople, _ = cmd.Flags().GetBool("remove-people")

	// Detection backend settings
	batchConfig.ModelsDir = cfg.ModelsDir

	batchConfig.Backend = cfg.Vision.Backend
	if cmd.Flags().Changed("backend") {
		batchConfig.Backend, _ = cmd.Flags().GetString("backend")
	}

	batchConfig.Endpoint = cfg.Vision.Endpoint
	if cmd.Flags().Changed("endpoint") {
		batchConfig.Endpoint, _ = cmd.Flags().GetString("endpoint")
	}

	batchConfig.Region = cfg.Vision.Region
	if cmd.Flags().Changed("region") {
		batchConfig.Region, _ = cmd.Flags().GetString("region")
	}

	batchConfig.APIKey = cfg.Vision.APIKey
	if cmd.Flags().Changed("api-key") {
		batchConfig.APIKey, _ = cmd.Flags().GetString("api-key")
	}

	batchConfig.ModelPath = cfg.Vision.ModelPath
	if cmd.Flags().Changed("model-path") {
		batchConfig.ModelPath, _ = cmd.Flags().GetString("model-path")
	}

	batchConfig.Threads = cfg.Vision.NumThreads
	if cmd.Flags().Changed("threads") {
		batchConfig.Threads, _ = cmd.Flags().GetInt("threads")
	}

	detTimeout := cfg.Vision.TimeoutSec
	if cmd.Flags().Changed("detection-timeout") {
		detTimeout, _ = cmd.Flags().GetInt("detection-timeout")
	}
	if detTimeout > 0 {
		batchConfig.Timeout = time.Duration(detTimeout) * time.Second
	}

	// Output settings
	batchConfig.OutputDir = cfg.Batch.OutputDir
	if cmd.Flags().Changed("output-dir") {
		batchConfig.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}

	batchConfig.OverlayDir = cfg.Output.OverlayDir
	if cmd.Flags().Changed("overlay-dir") {
		batchConfig.OverlayDir, _ = cmd.Flags().GetString("overlay-dir")
	}

	batchConfig.OverlayColor = cfg.Output.OverlayBoxColor
	if cmd.Flags().Changed("overlay-box-color") {
		batchConfig.OverlayColor, _ = cmd.Flags().GetString("overlay-box-color")
	}

	batchConfig.Format = cfg.Output.Format
	if cmd.Flags().Changed("format") {
		batchConfig.Format, _ = cmd.Flags().GetString("format")
	}

	batchConfig.OutputFile = cfg.Output.File
	if cmd.Flags().Changed("output") {
		batchConfig.OutputFile, _ = cmd.Flags().GetString("output")
	}

	batchConfig.JPEGQuality = cfg.Output.JPEGQuality
	if cmd.Flags().Changed("jpeg-quality") {
		batchConfig.JPEGQuality, _ = cmd.Flags().GetInt("jpeg-quality")
	}

	// Parallel processing settings
	batchConfig.Workers = cfg.Batch.Workers
	if cmd.Flags().Changed("workers") {
		batchConfig.Workers, _ = cmd.Flags().GetInt("workers")
	}

	// File discovery settings - these are typically CLI-only
	batchConfig.Recursive, _ = cmd.Flags().GetBool("recursive")
	batchConfig.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	batchConfig.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")

	// Progress settings - these are typically CLI-only
	batchConfig.ShowProgress, _ = cmd.Flags().GetBool("progress")
	batchConfig.Quiet, _ = cmd.Flags().GetBool("quiet")
	batchConfig.ShowStats, _ = cmd.Flags().GetBool("stats")
	batchConfig.ProgressInterval, _ = cmd.Flags().GetDuration("progress-interval")

	return batchConfig
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	// Get configuration from centralized system (includes CLI flags, config file, env vars, and defaults)
	cfg := GetConfig()

	// Map to batch configuration
	batchConfig := configToBatchConfig(cfg, cmd)

	if !batchConfig.Quiet {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Processing %d files...\n", len(args))
	}

	// Process batch
	result, err := batch.ProcessBatch(cmd.Context(), args, batchConfig)
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	// Save results
	if err := result.SaveResults(batchConfig.Format, batchConfig.OutputFile, batchConfig.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	// Print stats
	result.PrintStats(batchConfig.Quiet)

	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Detection flags (shared with the analyze command)
	batchCmd.Flags().Int("max-labels", 0, "maximum number of labels to return (1-100)")
	batchCmd.Flags().Float64("confidence", 0.0, "minimum label confidence (0-100)")
	batchCmd.Flags().Bool("remove-people", false, "remove detected person regions from the images")
	batchCmd.Flags().String("person-label", "", "label name treated as a person")
	batchCmd.Flags().String("backend", "", "detection backend: remote or local")
	batchCmd.Flags().String("endpoint", "", "remote detection endpoint URL")
	batchCmd.Flags().String("region", "", "remote detection region (used when no endpoint is set)")
	batchCmd.Flags().String("api-key", "", "API key for the remote detection backend")
	batchCmd.Flags().String("model-path", "", "override person detection model path")
	batchCmd.Flags().Int("threads", 0, "ONNX inference threads (0 = runtime default)")
	batchCmd.Flags().Int("detection-timeout", 0, "detection timeout in seconds")

	// Output flags
	batchCmd.Flags().StringP("format", "f", "text", "output format: text, json, csv")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().String("output-dir", "", "directory to write regenerated images")
	batchCmd.Flags().String("overlay-dir", "", "directory to save overlay images")
	batchCmd.Flags().String("overlay-box-color", "", "overlay box color (hex)")
	batchCmd.Flags().Int("jpeg-quality", 0, "JPEG quality for regenerated images (1-100)")

	// Parallel processing flags
	batchCmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: %d)", runtime.NumCPU()))

	// File discovery flags
	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include", nil, "file patterns to include (default: all supported image types)")
	batchCmd.Flags().StringSlice("exclude", []string{}, "file patterns to exclude")

	// Progress and monitoring flags
	batchCmd.Flags().Bool("progress", false, "show progress bar")
	batchCmd.Flags().Bool("quiet", false, "suppress progress output")
	batchCmd.Flags().Bool("stats", false, "show processing statistics")
	batchCmd.Flags().Duration("progress-interval", 500*time.Millisecond, "progress update interval")
}
