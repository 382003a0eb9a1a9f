// Package models resolves on-disk locations of the bundled detection
// models.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model filename constants to avoid typos and ensure consistency.
const (
	// PersonDetector is the SSD person detection model used by the local
	// backend.
	PersonDetector = "ssd_mobilenet_v2.onnx"
)

// DefaultModelsDir is the models directory relative to the project root.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "VANISH_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory path.
// Priority: explicit modelsDir parameter, environment variable, project
// root + default directory, bare default as a last resort.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}

	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}

	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}

	return DefaultModelsDir
}

// PersonDetectorPath returns the full path of the person detection model
// inside the given models directory ("" for the resolved default).
func PersonDetectorPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), PersonDetector)
}

// ValidateModelPath checks that a model file exists and is a regular file.
func ValidateModelPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model file not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory: %s", path)
	}
	return nil
}
