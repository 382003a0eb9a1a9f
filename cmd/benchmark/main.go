package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MeKo-Tech/vanish/internal/benchmark"
	"github.com/MeKo-Tech/vanish/internal/testutil"
)

func main() {
	var (
		modelsDir  = flag.String("models", "models", "Directory containing ONNX models")
		iterations = flag.Int("iterations", 3, "Number of iterations per benchmark")
		outputFile = flag.String("output", "", "Output file for results (optional)")
		verbose    = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()

	fmt.Println("vanish Analyze vs Removal Performance Benchmark")
	fmt.Println("===============================================")

	// Check if models directory exists
	if _, err := os.Stat(*modelsDir); os.IsNotExist(err) {
		log.Fatalf("Models directory not found: %s", *modelsDir)
	}

	// Create benchmark
	removalBench := benchmark.NewRemovalBenchmark(*modelsDir)

	// Add a stress scene on top of the defaults
	extraScenes := []benchmark.SceneSpec{
		{
			Name:        "crowd",
			Description: "Six people, 4K frame",
			Width:       3840,
			Height:      2160,
			Figures: []testutil.Figure{
				{Left: 0.05, Top: 0.3, Width: 0.12, Height: 0.6},
				{Left: 0.2, Top: 0.25, Width: 0.13, Height: 0.65},
				{Left: 0.36, Top: 0.2, Width: 0.12, Height: 0.7},
				{Left: 0.52, Top: 0.28, Width: 0.12, Height: 0.62},
				{Left: 0.68, Top: 0.22, Width: 0.13, Height: 0.68},
				{Left: 0.84, Top: 0.3, Width: 0.12, Height: 0.6},
			},
		},
	}

	for _, scene := range extraScenes {
		removalBench.AddScene(scene)
		if *verbose {
			fmt.Printf("Added scene: %s (%dx%d)\n", scene.Name, scene.Width, scene.Height)
		}
	}

	// Run benchmarks
	fmt.Printf("Running benchmarks with %d iterations per test...\n\n", *iterations)

	results, err := removalBench.RunBenchmark(*iterations)
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}

	// Print detailed results
	removalBench.PrintDetailedResults()

	// Save results to file if requested
	if *outputFile != "" {
		if err := saveResultsToFile(*outputFile, results); err != nil {
			log.Printf("Failed to save results to file: %v", err)
		} else {
			fmt.Printf("Results saved to: %s\n", *outputFile)
		}
	}
}

func saveResultsToFile(filename string, results []benchmark.RemovalBenchmarkResult) error {
	file, err := os.Create(filename) //nolint:gosec // G304: output path comes from the CLI flag
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	// Write header
	_, _ = fmt.Fprintln(file, "vanish Analyze vs Removal Benchmark Results")
	_, _ = fmt.Fprintln(file, "===========================================")
	_, _ = fmt.Fprintln(file)

	// Write individual results
	for _, result := range results {
		_, _ = fmt.Fprintf(file, "%s\n", result.String())
	}

	_, _ = fmt.Fprintln(file)
	_, _ = fmt.Fprintln(file, "CSV Format:")
	_, _ = fmt.Fprintln(file, "Scene,Size,Analyze_Duration_ms,Removal_Duration_ms,Overhead,Memory_Diff_KB,Regions_Applied")

	for _, result := range results {
		analyzeMs := float64(result.AnalyzeResult.Duration.Nanoseconds()) / 1e6
		removalMs := float64(result.RemovalResult.Duration.Nanoseconds()) / 1e6

		_, _ = fmt.Fprintf(file, "%s,%s,%.2f,%.2f,%.2f,%d,%d\n",
			result.Scene,
			result.ImageSize,
			analyzeMs,
			removalMs,
			result.OverheadFactor,
			result.MemoryDiff,
			result.RegionsApplied,
		)
	}

	return nil
}
