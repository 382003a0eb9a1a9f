package mempool

import (
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{
			name:     "small size gets minimum",
			input:    1,
			expected: 1024,
		},
		{
			name:     "exactly 1024",
			input:    1024,
			expected: 1024,
		},
		{
			name:     "just over 1024",
			input:    1025,
			expected: 2048,
		},
		{
			name:     "exact multiple of 1024",
			input:    2048,
			expected: 2048,
		},
		{
			name:     "odd number",
			input:    1500,
			expected: 2048,
		},
		{
			name:     "detector input tensor",
			input:    320 * 320 * 3,
			expected: 307200,
		},
		{
			name:     "zero size",
			input:    0,
			expected: 1024,
		},
		{
			name:     "negative size",
			input:    -1,
			expected: 1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sizeClass(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetUint8_BasicFunctionality(t *testing.T) {
	tests := []struct {
		name        string
		requestSize int
	}{
		{
			name:        "small buffer",
			requestSize: 100,
		},
		{
			name:        "exactly 1024",
			requestSize: 1024,
		},
		{
			name:        "input tensor size",
			requestSize: 320 * 320 * 3,
		},
		{
			name:        "zero size",
			requestSize: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GetUint8(tt.requestSize)

			assert.Len(t, buf, tt.requestSize)
			assert.GreaterOrEqual(t, cap(buf), tt.requestSize)

			// Verify we can write to the buffer
			if len(buf) > 0 {
				buf[0] = 42
				assert.Equal(t, uint8(42), buf[0])
			}
		})
	}
}

func TestPutUint8_BasicFunctionality(t *testing.T) {
	t.Run("put valid buffer", func(t *testing.T) {
		buf := GetUint8(1000)
		require.NotNil(t, buf)

		// This should not panic
		PutUint8(buf)
	})

	t.Run("put nil buffer", func(t *testing.T) {
		// This should not panic
		PutUint8(nil)
	})

	t.Run("put empty buffer", func(t *testing.T) {
		buf := make([]uint8, 0)
		// This should not panic
		PutUint8(buf)
	})
}

func TestGetFloat32_BasicFunctionality(t *testing.T) {
	tests := []struct {
		name        string
		requestSize int
	}{
		{
			name:        "detection boxes",
			requestSize: 400,
		},
		{
			name:        "detection scores",
			requestSize: 100,
		},
		{
			name:        "large buffer",
			requestSize: 5000,
		},
		{
			name:        "zero size",
			requestSize: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GetFloat32(tt.requestSize)

			assert.Len(t, buf, tt.requestSize)
			assert.GreaterOrEqual(t, cap(buf), tt.requestSize)

			if len(buf) > 0 {
				buf[0] = 42.0
				assert.InDelta(t, float32(42.0), buf[0], 0.0001)
			}
		})
	}
}

func TestPutFloat32_BasicFunctionality(t *testing.T) {
	t.Run("put valid buffer", func(t *testing.T) {
		buf := GetFloat32(1000)
		require.NotNil(t, buf)

		PutFloat32(buf)
	})

	t.Run("put nil buffer", func(t *testing.T) {
		PutFloat32(nil)
	})
}

func TestMemoryPoolReuse(t *testing.T) {
	// Test that buffers are actually reused
	size := 320 * 320 * 3

	// Get a buffer and modify it
	buf1 := GetUint8(size)
	require.Len(t, buf1, size)

	// Fill with a pattern
	for i := range buf1 {
		buf1[i] = uint8(i % 256)
	}

	// Put it back
	PutUint8(buf1)

	// Get another buffer of the same size
	buf2 := GetUint8(size)
	require.Len(t, buf2, size)

	// The buffers might be the same (reused) or different (new allocation)
	// Both are valid behaviors for a pool
	assert.GreaterOrEqual(t, cap(buf2), size)
}

func TestConcurrentAccess(t *testing.T) {
	const numGoroutines = 100
	const numIterations = 100
	const bufferSize = 1500

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	// Test concurrent gets and puts
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()

			for i := 0; i < numIterations; i++ {
				// Get a buffer
				buf := GetUint8(bufferSize)
				assert.Len(t, buf, bufferSize)
				assert.GreaterOrEqual(t, cap(buf), bufferSize)

				// Use the buffer
				for k := 0; k < len(buf); k++ {
					buf[k] = uint8(k % 256)
				}

				// Put it back
				PutUint8(buf)
			}
		}()
	}

	wg.Wait()
}

func TestGetFloat32Multiple(t *testing.T) {
	t.Run("matching sizes", func(t *testing.T) {
		// The three output buffers of one detection call.
		sizes := []int{400, 100, 100}
		bufs := GetFloat32Multiple(sizes)
		require.Len(t, bufs, len(sizes))

		for i, size := range sizes {
			assert.Len(t, bufs[i], size)
		}

		PutFloat32Multiple(bufs)
	})

	t.Run("empty sizes", func(t *testing.T) {
		assert.Nil(t, GetFloat32Multiple(nil))
		assert.Nil(t, GetFloat32Multiple([]int{}))
	})

	t.Run("put with nil entries", func(t *testing.T) {
		// This should not panic
		PutFloat32Multiple([][]float32{nil, GetFloat32(100), nil})
	})
}

func TestDifferentSizeClasses(t *testing.T) {
	// Test that different size classes don't interfere
	sizes := []int{100, 1500, 3000, 10000}
	buffers := make([][]uint8, len(sizes))

	// Get buffers of different sizes
	for i, size := range sizes {
		buffers[i] = GetUint8(size)
		assert.Len(t, buffers[i], size)

		// Fill with unique pattern
		for j := range buffers[i] {
			buffers[i][j] = uint8((i*31 + j) % 256)
		}
	}

	// Put them all back
	for _, buf := range buffers {
		PutUint8(buf)
	}

	// Get them again and verify independence
	for _, size := range sizes {
		newBuf := GetUint8(size)
		assert.Len(t, newBuf, size)
		// The pool doesn't guarantee clearing, so we don't check contents
	}
}

func TestSizeClassBoundaries(t *testing.T) {
	// Test behavior around size class boundaries
	testCases := []struct {
		size          int
		expectedClass int
	}{
		{1023, 1024},
		{1024, 1024},
		{1025, 2048},
		{2047, 2048},
		{2048, 2048},
		{2049, 3072},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("size_%d", tc.size), func(t *testing.T) {
			buf := GetFloat32(tc.size)
			assert.Len(t, buf, tc.size)
			// Capacity should be at least the size class
			expectedCap := sizeClass(tc.size)
			assert.GreaterOrEqual(t, cap(buf), expectedCap)
			PutFloat32(buf)
		})
	}
}

func TestMemoryBehavior(t *testing.T) {
	// Test that using the pool doesn't cause obvious memory leaks
	const iterations = 1000
	const bufferSize = 320 * 320 * 3

	// Force GC before starting
	runtime.GC()
	var m1 runtime.MemStats
	runtime.ReadMemStats(&m1)

	// Perform many allocations through the pool
	for i := 0; i < iterations; i++ {
		buf := GetUint8(bufferSize)

		// Use the buffer
		for j := 0; j < len(buf); j += 1024 {
			buf[j] = uint8(j % 256)
		}

		PutUint8(buf)
	}

	// Force GC after operations
	runtime.GC()
	var m2 runtime.MemStats
	runtime.ReadMemStats(&m2)

	// We can't make strong assertions about memory usage since pools
	// may retain some buffers, but this test helps detect obvious leaks
	t.Logf("Memory before: %d bytes, after: %d bytes", m1.Alloc, m2.Alloc)
}

// Benchmark tests.
func BenchmarkGetUint8_TensorSize(b *testing.B) {
	const size = 320 * 320 * 3
	for i := 0; i < b.N; i++ {
		buf := GetUint8(size)
		PutUint8(buf)
	}
}

func BenchmarkDirectAllocation_TensorSize(b *testing.B) {
	// Compare with direct allocation
	const size = 320 * 320 * 3
	for i := 0; i < b.N; i++ {
		_ = make([]uint8, size)
	}
}

func BenchmarkGetFloat32_Outputs(b *testing.B) {
	sizes := []int{400, 100, 100}
	for i := 0; i < b.N; i++ {
		bufs := GetFloat32Multiple(sizes)
		PutFloat32Multiple(bufs)
	}
}

func BenchmarkConcurrentAccess(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := GetUint8(1500)
			// Simulate some work
			for i := range buf {
				buf[i] = uint8(i % 256)
			}
			PutUint8(buf)
		}
	})
}

func BenchmarkSizeClass(b *testing.B) {
	sizes := []int{100, 1024, 1500, 5000, 307200}

	for i := 0; i < b.N; i++ {
		for _, size := range sizes {
			_ = sizeClass(size)
		}
	}
}
