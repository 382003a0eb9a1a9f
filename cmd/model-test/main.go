package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/yalue/onnxruntime_go"

	"github.com/MeKo-Tech/vanish/internal/models"
	"github.com/MeKo-Tech/vanish/internal/onnx"
)

// model-test inspects the ONNX models used by the local detection backend
// and reports their input/output signatures. Point it at a custom model
// with a positional path argument to check compatibility before wiring it
// in via --model-path.
func main() {
	modelsDir := flag.String("models-dir", "", "models directory (default: resolved models/ dir)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := onnx.EnsureEnvironment(); err != nil {
		slog.Error("Failed to initialize ONNX Runtime", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := onnxruntime_go.DestroyEnvironment(); err != nil {
			slog.Error("Failed to destroy ONNX Runtime environment", "error", err)
		}
	}()

	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{models.PersonDetectorPath(*modelsDir)}
	}

	fmt.Println("Checking ONNX model compatibility...")
	fmt.Println("====================================")

	failures := 0
	for _, modelPath := range paths {
		if !inspectModel(modelPath) {
			failures++
		}
	}

	if failures > 0 {
		fmt.Printf("%d of %d model(s) failed the compatibility check\n", failures, len(paths))
		os.Exit(1)
	}
	fmt.Println("All models are compatible with the local backend.")
}

// inspectModel prints the tensor signature and metadata of a single model.
func inspectModel(modelPath string) bool {
	if err := models.ValidateModelPath(modelPath); err != nil {
		fmt.Printf("❌ %s: %v\n", modelPath, err)
		return false
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		fmt.Printf("❌ %s: Failed to get model info - %v\n", modelPath, err)
		return false
	}

	fmt.Printf("✅ %s: Compatible with ONNX Runtime\n", modelPath)
	fmt.Printf("   - Inputs: %d\n", len(inputs))
	for i, input := range inputs {
		fmt.Printf("     [%d] %s: %v (type: %s)\n", i, input.Name, input.Dimensions, input.DataType)
	}
	fmt.Printf("   - Outputs: %d\n", len(outputs))
	for i, output := range outputs {
		fmt.Printf("     [%d] %s: %v (type: %s)\n", i, output.Name, output.Dimensions, output.DataType)
	}

	metadata, err := onnxruntime_go.GetModelMetadata(modelPath)
	if err == nil {
		if producer, err := metadata.GetProducerName(); err == nil && producer != "" {
			fmt.Printf("   - Producer: %s\n", producer)
		}
		if version, err := metadata.GetVersion(); err == nil {
			fmt.Printf("   - Version: %d\n", version)
		}
		if description, err := metadata.GetDescription(); err == nil && description != "" {
			fmt.Printf("   - Description: %s\n", description)
		}
		if err := metadata.Destroy(); err != nil {
			slog.Error("Failed to destroy model metadata", "error", err)
		}
	}

	fmt.Println()
	return true
}
