package accumulate

import (
	"github.com/valyala/bytebufferpool"

	"github.com/tinwell/asyncfetch/internal/fetch"
)

// PooledBuffers hands out buffers from the process-wide bytebufferpool,
// the preferred allocation source for buffered accumulation.
type PooledBuffers struct{}

// Get returns a pooled buffer.
func (PooledBuffers) Get() *bytebufferpool.ByteBuffer { return bytebufferpool.Get() }

// Put returns the buffer to the pool.
func (PooledBuffers) Put(buf *bytebufferpool.ByteBuffer) { bytebufferpool.Put(buf) }

// HeapBuffers allocates plain buffers and never recycles them; the safe
// fallback when pooling is disabled.
type HeapBuffers struct{}

// Get returns a fresh buffer.
func (HeapBuffers) Get() *bytebufferpool.ByteBuffer { return &bytebufferpool.ByteBuffer{} }

// Put discards the buffer.
func (HeapBuffers) Put(*bytebufferpool.ByteBuffer) {}

// Source selects a buffer source per the pooling preference.
func Source(preferPooled bool) fetch.BufferSource {
	if preferPooled {
		return PooledBuffers{}
	}
	return HeapBuffers{}
}
