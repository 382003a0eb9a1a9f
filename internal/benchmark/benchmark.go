package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/vanish/internal/common"
	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/testutil"
	"github.com/MeKo-Tech/vanish/internal/vision"
	"github.com/disintegration/imaging"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Total allocated bytes (cumulative)
	SysBytes        uint64  // Total bytes from system
	NumGC           uint32  // Number of GC runs
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// String returns a formatted string representation of memory stats.
func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024,
		m.TotalAllocBytes/1024,
		m.SysBytes/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}

// BenchmarkResult holds the result of a benchmark run.
type BenchmarkResult struct {
	Name         string
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Iterations   int
	Error        error
}

// String returns a formatted string representation of the benchmark result.
func (br BenchmarkResult) String() string {
	if br.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", br.Name, br.Error)
	}

	memDiff := allocDeltaKB(br)
	avgDuration := br.Duration / time.Duration(br.Iterations)

	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, mem: %+d KB",
		br.Name, br.Iterations, avgDuration, br.Duration, memDiff)
}

// allocDeltaKB returns the allocation delta of a run in KB. The delta can go
// negative when a GC cycle lands between the two samples.
func allocDeltaKB(br BenchmarkResult) int64 {
	after := br.MemoryAfter.AllocBytes
	before := br.MemoryBefore.AllocBytes
	if after < before {
		return -int64((before - after) / 1024) //nolint:gosec // G115: scaled down before conversion
	}
	return int64((after - before) / 1024) //nolint:gosec // G115: scaled down before conversion
}

// Benchmark represents a benchmark function.
type Benchmark struct {
	Name string
	Func func() error
}

// BenchmarkSuite manages multiple benchmarks.
type BenchmarkSuite struct {
	benchmarks []Benchmark
	results    []BenchmarkResult
	mu         sync.Mutex
}

// NewBenchmarkSuite creates a new benchmark suite.
func NewBenchmarkSuite() *BenchmarkSuite {
	return &BenchmarkSuite{
		benchmarks: make([]Benchmark, 0),
		results:    make([]BenchmarkResult, 0),
	}
}

// Add adds a benchmark to the suite.
func (bs *BenchmarkSuite) Add(name string, fn func() error) {
	bs.benchmarks = append(bs.benchmarks, Benchmark{
		Name: name,
		Func: fn,
	})
}

// Run runs a single benchmark with the specified number of iterations.
func (bs *BenchmarkSuite) Run(name string, iterations int) BenchmarkResult {
	var benchmark Benchmark
	found := false
	for _, b := range bs.benchmarks {
		if b.Name == name {
			benchmark = b
			found = true
			break
		}
	}

	if !found {
		return BenchmarkResult{
			Name:  name,
			Error: fmt.Errorf("benchmark '%s' not found", name),
		}
	}

	return bs.runBenchmark(benchmark, iterations)
}

// RunAll runs all benchmarks in the suite.
func (bs *BenchmarkSuite) RunAll(iterations int) []BenchmarkResult {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.results = make([]BenchmarkResult, 0, len(bs.benchmarks))

	for _, benchmark := range bs.benchmarks {
		result := bs.runBenchmark(benchmark, iterations)
		bs.results = append(bs.results, result)
	}

	return bs.results
}

// runBenchmark executes a single benchmark.
func (bs *BenchmarkSuite) runBenchmark(benchmark Benchmark, iterations int) BenchmarkResult {
	// Force garbage collection before measuring
	runtime.GC()
	memBefore := GetMemoryStats()

	timer := common.NewNamedTimer(benchmark.Name)
	var err error

	for i := 0; i < iterations; i++ {
		if e := benchmark.Func(); e != nil {
			err = e
			break
		}
	}

	duration := timer.Stop()
	memAfter := GetMemoryStats()

	return BenchmarkResult{
		Name:         benchmark.Name,
		Duration:     duration,
		MemoryBefore: memBefore,
		MemoryAfter:  memAfter,
		Iterations:   iterations,
		Error:        err,
	}
}

// Results returns the last run results.
func (bs *BenchmarkSuite) Results() []BenchmarkResult {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.results
}

// PrintResults prints formatted benchmark results.
func (bs *BenchmarkSuite) PrintResults() {
	results := bs.Results()
	fmt.Println("\nBenchmark Results:")
	fmt.Println("==================")
	for _, result := range results {
		fmt.Println(result.String())
	}
	fmt.Println()
}

// RemovalPipelineBenchmark provides specialized benchmarking for the
// analysis and removal stages.
type RemovalPipelineBenchmark struct {
	*BenchmarkSuite
}

// NewRemovalPipelineBenchmark creates a new stage-specific benchmark suite.
func NewRemovalPipelineBenchmark() *RemovalPipelineBenchmark {
	return &RemovalPipelineBenchmark{
		BenchmarkSuite: NewBenchmarkSuite(),
	}
}

// AddDecodeBenchmark adds an image decoding benchmark.
func (rb *RemovalPipelineBenchmark) AddDecodeBenchmark(name string, fn func() error) {
	rb.Add("Decode_"+name, fn)
}

// AddDetectionBenchmark adds a label detection benchmark.
func (rb *RemovalPipelineBenchmark) AddDetectionBenchmark(name string, fn func() error) {
	rb.Add("Detection_"+name, fn)
}

// AddEditBenchmark adds a region removal benchmark.
func (rb *RemovalPipelineBenchmark) AddEditBenchmark(name string, fn func() error) {
	rb.Add("Edit_"+name, fn)
}

// AddPipelineBenchmark adds an end-to-end pipeline benchmark.
func (rb *RemovalPipelineBenchmark) AddPipelineBenchmark(name string, fn func() error) {
	rb.Add("Pipeline_"+name, fn)
}

// SceneSpec describes one synthetic scene the removal benchmark renders.
type SceneSpec struct {
	Name        string
	Description string
	Width       int
	Height      int
	Figures     []testutil.Figure
}

// DefaultScenes returns the standard benchmark scenes, spanning image sizes
// and person counts.
func DefaultScenes() []SceneSpec {
	return []SceneSpec{
		{
			Name:        "portrait",
			Description: "Single person portrait",
			Width:       640,
			Height:      480,
			Figures:     []testutil.Figure{{Left: 0.35, Top: 0.2, Width: 0.3, Height: 0.7}},
		},
		{
			Name:        "group",
			Description: "Three people",
			Width:       1280,
			Height:      720,
			Figures: []testutil.Figure{
				{Left: 0.1, Top: 0.25, Width: 0.18, Height: 0.65},
				{Left: 0.42, Top: 0.2, Width: 0.2, Height: 0.7},
				{Left: 0.72, Top: 0.3, Width: 0.16, Height: 0.6},
			},
		},
		{
			Name:        "empty",
			Description: "Scenery without people",
			Width:       800,
			Height:      600,
		},
		{
			Name:        "large",
			Description: "Two people, full HD frame",
			Width:       1920,
			Height:      1080,
			Figures: []testutil.Figure{
				{Left: 0.3, Top: 0.15, Width: 0.18, Height: 0.75},
				{Left: 0.6, Top: 0.25, Width: 0.15, Height: 0.6},
			},
		},
	}
}

// RemovalBenchmarkResult holds comparison results between analysis-only and
// analysis-plus-removal processing of one scene.
type RemovalBenchmarkResult struct {
	Scene          string
	ImageSize      string
	AnalyzeResult  BenchmarkResult
	RemovalResult  BenchmarkResult
	OverheadFactor float64 // removal duration / analyze duration
	MemoryDiff     int64   // removal memory usage - analyze memory usage (KB)
	RegionsApplied int
}

// String returns a formatted representation of the comparison.
func (r RemovalBenchmarkResult) String() string {
	return fmt.Sprintf("%s (%s): analyze: %v, removal: %v (%.2fx), regions: %d, mem diff: %+d KB",
		r.Scene, r.ImageSize, r.AnalyzeResult.Duration, r.RemovalResult.Duration,
		r.OverheadFactor, r.RegionsApplied, r.MemoryDiff)
}

// RemovalBenchmark measures how much region removal adds on top of plain
// label analysis across a set of synthetic scenes.
type RemovalBenchmark struct {
	scenes  []SceneSpec
	results []RemovalBenchmarkResult
	build   func() (*pipeline.Pipeline, error)
}

// NewRemovalBenchmark creates a removal benchmark running against the local
// detection model under modelsDir.
func NewRemovalBenchmark(modelsDir string) *RemovalBenchmark {
	return &RemovalBenchmark{
		scenes: DefaultScenes(),
		build: func() (*pipeline.Pipeline, error) {
			return pipeline.NewBuilder().
				WithBackend(vision.BackendLocal).
				WithModelsDir(modelsDir).
				Build()
		},
	}
}

// NewRemovalBenchmarkWithDetector creates a removal benchmark running
// against an injected detector, so timings isolate the pipeline itself.
func NewRemovalBenchmarkWithDetector(detector vision.Detector) *RemovalBenchmark {
	return &RemovalBenchmark{
		scenes: DefaultScenes(),
		build: func() (*pipeline.Pipeline, error) {
			return pipeline.NewBuilder().WithDetector(detector).Build()
		},
	}
}

// AddScene adds a custom scene to the benchmark.
func (b *RemovalBenchmark) AddScene(spec SceneSpec) {
	b.scenes = append(b.scenes, spec)
}

// RunBenchmark executes the complete analyze vs removal benchmark.
func (b *RemovalBenchmark) RunBenchmark(iterations int) ([]RemovalBenchmarkResult, error) {
	b.results = make([]RemovalBenchmarkResult, 0, len(b.scenes))

	for _, spec := range b.scenes {
		fmt.Printf("Benchmarking: %s (%s)\n", spec.Name, spec.Description)

		result, err := b.benchmarkScene(spec, iterations)
		if err != nil {
			fmt.Printf("  Error: %v\n", err)
			continue
		}

		b.results = append(b.results, result)
		fmt.Printf("  %s\n", result.String())
	}

	return b.results, nil
}

// benchmarkScene runs analyze-only and removal benchmarks for one scene.
func (b *RemovalBenchmark) benchmarkScene(spec SceneSpec, iterations int) (RemovalBenchmarkResult, error) {
	result := RemovalBenchmarkResult{
		Scene:     spec.Name,
		ImageSize: formatSceneSize(spec.Width, spec.Height),
	}

	data, err := encodeSceneJPEG(testutil.GeneratePersonScene(spec.Width, spec.Height, spec.Figures))
	if err != nil {
		return result, fmt.Errorf("failed to encode scene: %w", err)
	}

	pl, err := b.build()
	if err != nil {
		return result, fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	analyzeOpts := pipeline.DefaultOptions()
	removalOpts := analyzeOpts
	removalOpts.RemovePeople = true

	// Warmup
	_, _ = pl.Analyze(data, analyzeOpts)

	var lastRemoval *pipeline.AnalysisResult

	suite := NewBenchmarkSuite()
	suite.Add("Analyze_"+spec.Name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_, err := pl.AnalyzeContext(ctx, data, analyzeOpts)
		return err
	})
	suite.Add("Removal_"+spec.Name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := pl.AnalyzeContext(ctx, data, removalOpts)
		if err == nil {
			lastRemoval = res
		}
		return err
	})

	result.AnalyzeResult = suite.Run("Analyze_"+spec.Name, iterations)
	if result.AnalyzeResult.Error != nil {
		return result, fmt.Errorf("analyze benchmark failed: %w", result.AnalyzeResult.Error)
	}

	result.RemovalResult = suite.Run("Removal_"+spec.Name, iterations)
	if result.RemovalResult.Error != nil {
		return result, fmt.Errorf("removal benchmark failed: %w", result.RemovalResult.Error)
	}

	result.OverheadFactor = float64(result.RemovalResult.Duration.Nanoseconds()) /
		float64(result.AnalyzeResult.Duration.Nanoseconds())
	result.MemoryDiff = allocDeltaKB(result.RemovalResult) - allocDeltaKB(result.AnalyzeResult)
	if lastRemoval != nil {
		result.RegionsApplied = lastRemoval.Edit.Applied
	}

	return result, nil
}

// encodeSceneJPEG renders scene pixels into the JPEG bytes the pipeline
// consumes.
func encodeSceneJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatSceneSize(width, height int) string {
	megapixels := float64(width*height) / 1000000.0
	return fmt.Sprintf("%dx%d (%.1fMP)", width, height, megapixels)
}

// PrintDetailedResults prints comprehensive benchmark results.
func (b *RemovalBenchmark) PrintDetailedResults() {
	if len(b.results) == 0 {
		fmt.Println("No benchmark results available")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("Analyze vs Removal Performance Benchmark Results")
	fmt.Println(strings.Repeat("=", 80))

	// System info
	fmt.Printf("System Information:\n")
	fmt.Printf("  GOOS: %s\n", runtime.GOOS)
	fmt.Printf("  GOARCH: %s\n", runtime.GOARCH)
	fmt.Printf("  NumCPU: %d\n", runtime.NumCPU())
	fmt.Printf("  Go Version: %s\n", runtime.Version())
	fmt.Println()

	// Individual results
	fmt.Println("Individual Scene Results:")
	fmt.Println(strings.Repeat("-", 50))
	for _, result := range b.results {
		fmt.Printf("• %s\n", result.String())
	}
	fmt.Println()

	b.printSummaryStatistics()
	b.printRecommendations()
}

// printSummaryStatistics calculates and prints summary stats.
func (b *RemovalBenchmark) printSummaryStatistics() {
	var analyzeTotal, removalTotal time.Duration
	var overheadSum float64
	regionsTotal := 0

	for _, result := range b.results {
		analyzeTotal += result.AnalyzeResult.Duration
		removalTotal += result.RemovalResult.Duration
		overheadSum += result.OverheadFactor
		regionsTotal += result.RegionsApplied
	}

	fmt.Println("Summary Statistics:")
	fmt.Println(strings.Repeat("-", 25))
	fmt.Printf("  Total Analyze Time: %v\n", analyzeTotal)
	fmt.Printf("  Total Removal Time: %v\n", removalTotal)
	if analyzeTotal > 0 {
		fmt.Printf("  Overall Overhead: %.2fx\n",
			float64(removalTotal.Nanoseconds())/float64(analyzeTotal.Nanoseconds()))
	}
	fmt.Printf("  Average Overhead: %.2fx\n", overheadSum/float64(len(b.results)))
	fmt.Printf("  Regions Applied: %d\n", regionsTotal)
	fmt.Println()
}

// printRecommendations provides usage recommendations based on results.
func (b *RemovalBenchmark) printRecommendations() {
	fmt.Println("Recommendations:")
	fmt.Println(strings.Repeat("-", 20))

	if len(b.results) == 0 {
		fmt.Println("  No results to analyze")
		return
	}

	avgOverhead := 0.0
	for _, result := range b.results {
		avgOverhead += result.OverheadFactor
	}
	avgOverhead /= float64(len(b.results))

	switch {
	case avgOverhead < 1.2:
		fmt.Println("  • Removal adds little on top of detection; enabling it per request is cheap")
	case avgOverhead < 2.0:
		fmt.Println("  • Removal roughly doubles request cost; consider batch processing for large jobs")
	default:
		fmt.Println("  • Removal dominates request cost; raise worker counts for batch workloads")
	}
	fmt.Println("  • Re-encode cost scales with image size; lower jpeg quality for thumbnails")
	fmt.Println()
}

// GetResults returns the benchmark results.
func (b *RemovalBenchmark) GetResults() []RemovalBenchmarkResult {
	return b.results
}
