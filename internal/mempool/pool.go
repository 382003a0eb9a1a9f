package mempool

import (
	"sync"
)

// Sized pools for the buffers the detection hot path churns through: []uint8
// NHWC input tensors and []float32 copies of the model outputs.

var (
	uint8Pools   sync.Map // key: size class (int), value: *sync.Pool
	float32Pools sync.Map // key: size class (int), value: *sync.Pool
)

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

// GetUint8 retrieves a []uint8 buffer of at least n elements from the pool.
// The returned slice has length n but may have larger capacity.
// The caller must return it via PutUint8 when done.
func GetUint8(n int) []uint8 {
	cls := sizeClass(n)
	pAny, _ := uint8Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]uint8, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		// Fallback
		buf := make([]uint8, cls)
		return buf[:n]
	}
	bufAny := p.Get()
	buf, ok := bufAny.([]uint8)
	if !ok {
		buf = make([]uint8, cls)
	}
	// Ensure buffer has adequate capacity and reset length to full capacity
	if cap(buf) < cls {
		buf = make([]uint8, cls)
	} else {
		buf = buf[:cap(buf)]
	}
	return buf[:n]
}

// PutUint8 returns a buffer to the pool. It is safe to pass a nil slice.
func PutUint8(buf []uint8) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	pAny, _ := uint8Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]uint8, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return // skip
	}
	// Reset length to full cap to avoid keeping len from caller; contents need not be zeroed.
	p.Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat32 retrieves a []float32 buffer of at least n elements from the pool.
// The returned slice has length n but may have larger capacity.
// The caller must return it via PutFloat32 when done.
func GetFloat32(n int) []float32 {
	cls := sizeClass(n)
	pAny, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float32, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		// Fallback
		buf := make([]float32, cls)
		return buf[:n]
	}
	bufAny := p.Get()
	buf, ok := bufAny.([]float32)
	if !ok {
		buf = make([]float32, cls)
	}
	// Ensure buffer has adequate capacity and reset length to full capacity
	if cap(buf) < cls {
		buf = make([]float32, cls)
	} else {
		buf = buf[:cap(buf)]
	}
	return buf[:n]
}

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	pAny, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float32, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return // skip
	}
	// Reset length to full cap to avoid keeping len from caller
	p.Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat32Multiple retrieves multiple float32 buffers with the specified sizes.
// This is more efficient than calling GetFloat32 multiple times.
func GetFloat32Multiple(sizes []int) [][]float32 {
	if len(sizes) == 0 {
		return nil
	}
	buffers := make([][]float32, len(sizes))
	for i, size := range sizes {
		buffers[i] = GetFloat32(size)
	}
	return buffers
}

// PutFloat32Multiple returns multiple buffers to the pool.
// It is safe to pass nil slices in the array.
func PutFloat32Multiple(bufs [][]float32) {
	for _, buf := range bufs {
		PutFloat32(buf)
	}
}
