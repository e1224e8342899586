package fsbroker

import (
	"sync"
)

// ============================================================================
// Payload Buffer Pool
// ============================================================================
//
// Request payloads are read into pooled buffers. Most broker requests are
// path operations of a few hundred bytes; APPEND payloads carry file data
// and land in the larger classes. A buffer is returned to the pool as soon
// as its dispatch unit finishes decoding, since decoded values never alias it.

const (
	// smallBufferSize fits path operations (MKDIRS, EXISTS, RENAME, ...)
	// and the fixed-width descriptor operations.
	smallBufferSize = 4 << 10 // 4KB

	// mediumBufferSize fits typical APPEND batches.
	mediumBufferSize = 64 << 10 // 64KB

	// largeBufferSize fits large APPENDs. Bigger payloads are allocated
	// directly and left to the GC.
	largeBufferSize = 1 << 20 // 1MB
)

type bufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

func newSizedPool(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

var globalBufferPool = &bufferPool{
	small:  newSizedPool(smallBufferSize),
	medium: newSizedPool(mediumBufferSize),
	large:  newSizedPool(largeBufferSize),
}

// Get returns a slice of length size, backed by a pooled buffer when one
// of the size classes fits.
func (p *bufferPool) Get(size uint32) []byte {
	var bufPtr *[]byte

	switch {
	case size <= smallBufferSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= mediumBufferSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= largeBufferSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	return (*bufPtr)[:size]
}

// Put returns buf to the class matching its capacity. Buffers of any
// other capacity are dropped.
func (p *bufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case smallBufferSize:
		p.small.Put(&full)
	case mediumBufferSize:
		p.medium.Put(&full)
	case largeBufferSize:
		p.large.Put(&full)
	}
}

// GetBuffer acquires a payload buffer from the global pool.
//
//	buf := GetBuffer(size)
//	defer PutBuffer(buf)
func GetBuffer(size uint32) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer releases a buffer obtained from GetBuffer.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
