package pipeline

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoOpProgressCallback(t *testing.T) {
	// Should not panic or cause issues
	callback := NoOpProgressCallback{}
	callback.OnStart(10)
	callback.OnProgress(5, 10)
	callback.OnComplete()
	callback.OnError(3, assert.AnError)
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	callback := NewConsoleProgressCallback(&buf, "Test: ")

	callback.OnStart(10)
	output := buf.String()
	assert.Contains(t, output, "Test: 0/10 (0.0%)")

	buf.Reset()
	callback.OnProgress(5, 10)
	output = buf.String()
	assert.Contains(t, output, "Test: ")
	assert.Contains(t, output, "5/10")
	assert.Contains(t, output, "50.0%")

	buf.Reset()
	callback.OnComplete()
	output = buf.String()
	assert.Contains(t, output, "Test: Completed")

	buf.Reset()
	callback.OnError(3, assert.AnError)
	output = buf.String()
	assert.Contains(t, output, "Test: Error at item 3")
}

func TestConsoleProgressCallback_UpdateThrottling(t *testing.T) {
	var buf bytes.Buffer
	callback := NewConsoleProgressCallback(&buf, "Test: ").
		WithUpdateInterval(100 * time.Millisecond)

	callback.OnStart(10)
	buf.Reset()

	// Multiple rapid updates should be throttled
	callback.OnProgress(1, 10)
	firstOutput := buf.String()

	buf.Reset()
	callback.OnProgress(2, 10) // Should be throttled
	secondOutput := buf.String()

	assert.NotEmpty(t, firstOutput)
	assert.Empty(t, secondOutput)

	// But final update should always go through
	buf.Reset()
	callback.OnProgress(10, 10)
	finalOutput := buf.String()
	assert.NotEmpty(t, finalOutput)
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	callback := NewLogProgressCallback(logger, slog.LevelInfo, "Test: ").
		WithInterval(2)

	callback.OnStart(10)
	output := buf.String()
	assert.Contains(t, output, "Test: Starting processing")
	assert.Contains(t, output, "total=10")

	// Below the interval, nothing is logged
	buf.Reset()
	callback.OnProgress(1, 10)
	assert.Empty(t, buf.String())

	buf.Reset()
	callback.OnProgress(2, 10)
	output = buf.String()
	assert.Contains(t, output, "Test: Progress update")
	assert.Contains(t, output, "current=2")
	assert.Contains(t, output, "total=10")

	buf.Reset()
	callback.OnComplete()
	output = buf.String()
	assert.Contains(t, output, "Test: Processing completed")

	buf.Reset()
	callback.OnError(5, assert.AnError)
	output = buf.String()
	assert.Contains(t, output, "Test: Processing error")
	assert.Contains(t, output, "current=5")
}
