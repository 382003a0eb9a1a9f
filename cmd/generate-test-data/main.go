package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/vanish/internal/testutil"
)

func main() {
	// Set up structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateImages   = flag.Bool("images", true, "Generate synthetic test images")
		generateFixtures = flag.Bool("fixtures", true, "Generate test fixtures")
		verbose          = flag.Bool("v", false, "Verbose output")
		help             = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate test data for vanish testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                 # Generate all test data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -images         # Generate only images\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -fixtures       # Generate only fixtures\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	slog.Info("Starting test data generation...")

	if *verbose {
		slog.Info("Options", "images", *generateImages, "fixtures", *generateFixtures)
	}

	// Get project root to ensure we're in the right place
	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}

	if *verbose {
		slog.Info("Project root", "path", root)
	}

	// Change to project root
	if err := os.Chdir(root); err != nil {
		slog.Error("Failed to change to project root", "error", err)
		os.Exit(1)
	}

	if *generateImages {
		slog.Info("Generating synthetic scene images...")

		if err := generateSceneImages(); err != nil {
			slog.Error("Failed to generate scene images", "error", err)
			os.Exit(1)
		}

		slog.Info("✓ Generated synthetic scene images")
	}

	if *generateFixtures {
		slog.Info("Generating detection fixtures...")

		if err := generateSceneFixtures(); err != nil {
			slog.Error("Failed to generate detection fixtures", "error", err)
			os.Exit(1)
		}

		slog.Info("✓ Generated detection fixtures")
	}

	slog.Info("Test data generation completed successfully!")
}

// sceneDef ties one synthetic scene to the file it is written to and the
// detections it should produce.
type sceneDef struct {
	name        string
	description string
	file        string
	width       int
	height      int
	figures     []testutil.Figure
}

// sceneDefs lists every generated scene. Images and fixtures are derived
// from the same table so they cannot drift apart.
func sceneDefs() []sceneDef {
	return []sceneDef{
		{
			name:        "portrait",
			description: "Single person portrait",
			file:        "images/people/portrait.jpg",
			width:       640,
			height:      480,
			figures:     []testutil.Figure{{Left: 0.35, Top: 0.2, Width: 0.3, Height: 0.7}},
		},
		{
			name:        "pair",
			description: "Two people side by side",
			file:        "images/people/pair.jpg",
			width:       800,
			height:      600,
			figures: []testutil.Figure{
				{Left: 0.15, Top: 0.25, Width: 0.25, Height: 0.65},
				{Left: 0.55, Top: 0.2, Width: 0.25, Height: 0.7},
			},
		},
		{
			name:        "group",
			description: "Three people across the frame",
			file:        "images/people/group.png",
			width:       1280,
			height:      720,
			figures: []testutil.Figure{
				{Left: 0.1, Top: 0.25, Width: 0.18, Height: 0.65},
				{Left: 0.42, Top: 0.2, Width: 0.2, Height: 0.7},
				{Left: 0.72, Top: 0.3, Width: 0.16, Height: 0.6},
			},
		},
		{
			name:        "edge_of_frame",
			description: "Person touching the left image edge",
			file:        "images/people/edge_of_frame.jpg",
			width:       640,
			height:      480,
			figures:     []testutil.Figure{{Left: 0.0, Top: 0.3, Width: 0.2, Height: 0.6}},
		},
		{
			name:        "landscape",
			description: "Scenery without people",
			file:        "images/empty/landscape.jpg",
			width:       800,
			height:      600,
		},
		{
			name:        "tiny",
			description: "Smallest scene worth decoding",
			file:        "images/edge/tiny.png",
			width:       8,
			height:      8,
		},
		{
			name:        "wide",
			description: "Extreme aspect ratio with one person",
			file:        "images/edge/wide.jpg",
			width:       1600,
			height:      200,
			figures:     []testutil.Figure{{Left: 0.45, Top: 0.1, Width: 0.1, Height: 0.8}},
		},
	}
}

// generateSceneImages renders every scene definition into testdata/.
func generateSceneImages() error {
	for _, def := range sceneDefs() {
		img := testutil.GeneratePersonScene(def.width, def.height, def.figures)

		path := filepath.Join("testdata", def.file)
		if err := testutil.WriteSceneFile(path, img); err != nil {
			return fmt.Errorf("failed to save image for scene '%s': %w", def.name, err)
		}
	}
	return nil
}

// generateSceneFixtures writes the expected detections for every scene.
func generateSceneFixtures() error {
	fixturesDir := filepath.Join("testdata", "fixtures")
	if err := testutil.EnsureDir(fixturesDir); err != nil {
		return fmt.Errorf("failed to create fixtures directory: %w", err)
	}

	for _, def := range sceneDefs() {
		fixture := testutil.SceneFixture{
			Name:        def.name,
			Description: def.description,
			InputFile:   def.file,
			Expected: testutil.SceneExpectedResult{
				PersonCount: len(def.figures),
				PersonBoxes: def.figures,
			},
		}

		if err := saveFixture(fixture, fixturesDir); err != nil {
			return fmt.Errorf("failed to save fixture '%s': %w", fixture.Name, err)
		}
	}

	return nil
}

func saveFixture(fixture testutil.SceneFixture, dir string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}

	filename := filepath.Join(dir, fixture.Name+".json")
	return os.WriteFile(filename, data, 0o600)
}
