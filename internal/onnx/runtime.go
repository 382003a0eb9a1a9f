// Package onnx handles ONNX Runtime environment setup and input tensor
// preparation for the local detection backend.
package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"
)

// EnvLibraryPath overrides the ONNX Runtime shared library location.
const EnvLibraryPath = "VANISH_ONNX_LIB"

// getSystemLibraryPaths returns system library locations to try, in order.
func getSystemLibraryPaths() []string {
	return []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
	}
}

// findProjectRoot finds the project root directory by looking for go.mod.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	projectRoot := cwd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			return projectRoot, nil
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", errors.New("could not find project root")
		}
		projectRoot = parent
	}
}

// getLibraryName returns the library filename for the current OS.
func getLibraryName() (string, error) {
	switch runtime.GOOS {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// trySetLibraryPath points the runtime at path if the file exists.
func trySetLibraryPath(path string) bool {
	if _, err := os.Stat(path); err == nil {
		onnxruntime_go.SetSharedLibraryPath(path)
		return true
	}
	return false
}

// SetLibraryPath locates the ONNX Runtime shared library. The environment
// override wins, then system locations, then a project-relative
// onnxruntime/lib directory.
func SetLibraryPath() error {
	if envPath := os.Getenv(EnvLibraryPath); envPath != "" {
		if trySetLibraryPath(envPath) {
			return nil
		}
		return fmt.Errorf("ONNX Runtime library not found at %s (from %s)", envPath, EnvLibraryPath)
	}

	for _, path := range getSystemLibraryPaths() {
		if trySetLibraryPath(path) {
			return nil
		}
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return err
	}

	libName, err := getLibraryName()
	if err != nil {
		return err
	}

	libPath := filepath.Join(projectRoot, "onnxruntime", "lib", libName)
	if !trySetLibraryPath(libPath) {
		return fmt.Errorf("ONNX Runtime library not found at %s", libPath)
	}

	return nil
}

// EnsureEnvironment prepares the shared library path and initializes the
// runtime once. Safe to call repeatedly.
func EnsureEnvironment() error {
	if onnxruntime_go.IsInitialized() {
		return nil
	}

	if err := SetLibraryPath(); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}

	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}
