package batch

import (
	"fmt"
	"os"
	"time"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Detection settings
	MaxLabels     int
	MinConfidence float64
	RemovePeople  bool
	PersonLabel   string

	// Detection backend settings
	Backend   string
	Endpoint  string
	Region    string
	APIKey    string
	ModelsDir string
	ModelPath string
	Threads   int
	Timeout   time.Duration

	// Detector overrides the configured backend when set. Used by tests.
	Detector vision.Detector

	// Output settings
	OutputDir    string
	OverlayDir   string
	OverlayColor string
	Format       string
	OutputFile   string
	JPEGQuality  int

	// Parallel processing settings
	Workers int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration
}

// Item is the outcome for a single image. Exactly one of Analysis and Err
// is meaningful; a failed file never aborts the rest of the batch.
type Item struct {
	Path        string
	Analysis    *pipeline.AnalysisResult
	OutputPath  string
	OverlayPath string
	Err         error
}

// Result holds the result of batch processing.
type Result struct {
	Items       []Item
	Duration    time.Duration
	WorkerCount int
}

// Failed returns the number of items that ended in an error.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// PeopleFound returns the number of items where a person was detected.
func (r *Result) PeopleFound() int {
	n := 0
	for _, it := range r.Items {
		if it.Analysis != nil && it.Analysis.PersonPresent {
			n++
		}
	}
	return n
}

// RegionsRemoved returns the total number of boxes overwritten across the
// batch.
func (r *Result) RegionsRemoved() int {
	n := 0
	for _, it := range r.Items {
		if it.Analysis != nil {
			n += it.Analysis.Edit.Applied
		}
	}
	return n
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Items, format)
}

// SaveResults saves the formatted results to a file or stdout.
func (r *Result) SaveResults(format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(os.Stdout, "Results written to %s\n", outputFile)
		}
	} else {
		_, _ = fmt.Fprint(os.Stdout, output)
	}

	return nil
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(quiet bool) {
	if quiet {
		return
	}
	processed := len(r.Items) - r.Failed()
	_, _ = fmt.Fprintf(os.Stdout, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(os.Stdout, "  Total images: %d\n", len(r.Items))
	_, _ = fmt.Fprintf(os.Stdout, "  Processed: %d\n", processed)
	_, _ = fmt.Fprintf(os.Stdout, "  Failed: %d\n", r.Failed())
	_, _ = fmt.Fprintf(os.Stdout, "  People found: %d\n", r.PeopleFound())
	_, _ = fmt.Fprintf(os.Stdout, "  Regions removed: %d\n", r.RegionsRemoved())
	_, _ = fmt.Fprintf(os.Stdout, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(os.Stdout, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if processed > 0 {
		avg := r.Duration / time.Duration(processed)
		_, _ = fmt.Fprintf(os.Stdout, "  Avg per image: %v\n", avg.Round(time.Millisecond))
		_, _ = fmt.Fprintf(os.Stdout, "  Throughput: %.1f images/sec\n",
			float64(processed)/r.Duration.Seconds())
	}
}
