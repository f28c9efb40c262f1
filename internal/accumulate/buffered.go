package accumulate

import (
	"github.com/valyala/bytebufferpool"

	"github.com/tinwell/asyncfetch/internal/fetch"
)

// initialReserve bounds the up-front buffer reservation so early heap
// churn is avoided without pre-allocating unboundedly.
const initialReserve = 1024

// Buffered accumulates the response body and headers up to the configured
// limits. Overrun never aborts the request: excess bytes and headers are
// dropped and the matching truncation flag is set permanently.
type Buffered struct {
	bodyLimit   int64
	headerLimit int64

	source fetch.BufferSource
	buf    *bytebufferpool.ByteBuffer

	headers     []fetch.Header
	headerBytes int64

	bodyTruncated    bool
	headersTruncated bool
}

// NewBuffered creates a buffered accumulator. Limits use fetch.Unlimited
// as the "no limit" sentinel; the caller resolves them before this point.
func NewBuffered(bodyLimit, headerLimit int64, source fetch.BufferSource) *Buffered {
	buf := source.Get()
	buf.Reset()
	reserve := int64(initialReserve)
	if bodyLimit < reserve {
		reserve = bodyLimit
	}
	if int64(cap(buf.B)) < reserve {
		buf.B = make([]byte, 0, reserve)
	}
	return &Buffered{
		bodyLimit:   bodyLimit,
		headerLimit: headerLimit,
		source:      source,
		buf:         buf,
	}
}

// OnData appends up to the remaining body budget and drops the rest.
func (b *Buffered) OnData(chunk []byte) error {
	available := int64(0)
	if int64(b.buf.Len()) < b.bodyLimit {
		available = b.bodyLimit - int64(b.buf.Len())
	}
	copyLen := int64(len(chunk))
	if copyLen > available {
		copyLen = available
	}
	if copyLen > 0 {
		_, _ = b.buf.Write(chunk[:copyLen])
	}
	if copyLen < int64(len(chunk)) {
		b.bodyTruncated = true
	}
	return nil
}

// OnHeader captures the pair if the total header byte cost still fits,
// otherwise drops it and marks headers truncated. Duplicate names keep
// every entry.
func (b *Buffered) OnHeader(name, value string) {
	projected := b.headerBytes + int64(len(name)) + int64(len(value))
	if projected <= b.headerLimit {
		b.headers = append(b.headers, fetch.Header{Name: name, Value: value})
		b.headerBytes = projected
		return
	}
	b.headersTruncated = true
}

// Body returns the accumulated bytes as a string.
func (b *Buffered) Body() string {
	return b.buf.String()
}

// Headers returns the captured pairs in arrival order.
func (b *Buffered) Headers() []fetch.Header {
	return b.headers
}

// BodyTruncated reports whether any body bytes were dropped.
func (b *Buffered) BodyTruncated() bool {
	return b.bodyTruncated
}

// HeadersTruncated reports whether any header was dropped.
func (b *Buffered) HeadersTruncated() bool {
	return b.headersTruncated
}

// Close releases the body buffer back to its source. The accumulator must
// not be used afterwards.
func (b *Buffered) Close() {
	if b.buf != nil {
		b.source.Put(b.buf)
		b.buf = nil
	}
}
