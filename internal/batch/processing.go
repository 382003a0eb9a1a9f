package batch

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/MeKo-Tech/vanish/internal/editor"
	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/utils"
)

const overlayThickness = 3

var defaultOverlayColor = color.RGBA{255, 0, 0, 255}

type fileJob struct {
	index int
	path  string
}

// effectiveWorkers resolves the configured worker count against the number
// of jobs, defaulting to the CPU count.
func effectiveWorkers(configured, jobCount int) int {
	workers := configured
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > jobCount {
		workers = jobCount
	}
	return workers
}

type fileResult struct {
	index int
	item  Item
}

// processImagesParallel runs every file through the pipeline using a worker
// pool. Per-file failures are recorded on the item; the batch keeps going.
func processImagesParallel(ctx context.Context, pl *pipeline.Pipeline, paths []string,
	config *Config, progress pipeline.ProgressCallback,
) []Item {
	if progress == nil {
		progress = pipeline.NoOpProgressCallback{}
	}

	workers := effectiveWorkers(config.Workers, len(paths))

	progress.OnStart(len(paths))

	items := make([]Item, len(paths))
	if workers <= 1 {
		for i, path := range paths {
			items[i] = processSingleFile(ctx, pl, path, config)
			if items[i].Err != nil {
				progress.OnError(i+1, items[i].Err)
			}
			progress.OnProgress(i+1, len(paths))
		}
		progress.OnComplete()
		return items
	}

	jobs := make(chan fileJob, len(paths))
	results := make(chan fileResult, len(paths))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- fileResult{
					index: job.index,
					item:  processSingleFile(ctx, pl, job.path, config),
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, path := range paths {
			select {
			case jobs <- fileJob{index: i, path: path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		items[res.index] = res.item
		completed++
		if res.item.Err != nil {
			progress.OnError(completed, res.item.Err)
		}
		progress.OnProgress(completed, len(paths))
	}

	// Files never dispatched because of cancellation still get an error.
	for i := range items {
		if items[i].Path == "" {
			items[i] = Item{Path: paths[i], Err: ctx.Err()}
		}
	}

	progress.OnComplete()
	return items
}

// processSingleFile analyzes one image and writes the requested outputs.
func processSingleFile(ctx context.Context, pl *pipeline.Pipeline, path string, config *Config) Item {
	item := Item{Path: path}

	if !utils.IsSupportedImage(path) {
		item.Err = fmt.Errorf("unsupported image format: %s", path)
		return item
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from CLI arguments
	if err != nil {
		item.Err = fmt.Errorf("failed to read %s: %w", path, err)
		return item
	}

	res, err := pl.AnalyzeContext(ctx, data, detectOptions(config))
	if err != nil {
		item.Err = fmt.Errorf("analysis failed for %s: %w", path, err)
		return item
	}
	item.Analysis = res

	if config.OutputDir != "" && res.EditedJPEG != nil {
		out, err := saveEditedImage(res.EditedJPEG, path, config.OutputDir)
		if err != nil {
			item.Err = err
			return item
		}
		item.OutputPath = out
	}

	if config.OverlayDir != "" && len(res.PersonBoxes) > 0 {
		out, err := saveOverlay(data, res, path, config)
		if err != nil {
			slog.Warn("overlay generation failed", "file", path, "error", err)
		} else {
			item.OverlayPath = out
		}
	}

	return item
}

// saveEditedImage writes the regenerated JPEG next to the original base name.
func saveEditedImage(jpegData []byte, srcPath, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := filepath.Base(srcPath)
	outPath := filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base))+"_redacted.jpg")
	if err := os.WriteFile(outPath, jpegData, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return outPath, nil
}

// saveOverlay draws the detected person boxes on the original image and
// saves the result as a PNG.
func saveOverlay(data []byte, res *pipeline.AnalysisResult, srcPath string, config *Config) (string, error) {
	img, _, err := utils.DecodeImageBytes(data)
	if err != nil {
		return "", err
	}

	rects := personRects(res)
	if len(rects) == 0 {
		return "", nil
	}

	col := color.Color(defaultOverlayColor)
	if parsed := utils.ParseHexColor(config.OverlayColor); parsed != nil {
		col = parsed
	}

	ov := utils.RenderBoxOverlay(img, rects, col, overlayThickness)
	if ov == nil {
		return "", nil
	}

	base := filepath.Base(srcPath)
	outPath := filepath.Join(config.OverlayDir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
	if err := utils.SaveImage(ov, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// personRects converts the detected fractional boxes to pixel rectangles,
// dropping boxes that collapse to nothing.
func personRects(res *pipeline.AnalysisResult) []image.Rectangle {
	rects := make([]image.Rectangle, 0, len(res.PersonBoxes))
	for _, b := range res.PersonBoxes {
		nb := editor.NormalizedBox{Left: b.Left, Top: b.Top, Width: b.Width, Height: b.Height}
		if r, ok := editor.BoxRect(nb, res.Width, res.Height); ok {
			rects = append(rects, r)
		}
	}
	return rects
}
