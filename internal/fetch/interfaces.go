package fetch

import (
	"context"
	"time"

	"github.com/valyala/bytebufferpool"
)

// EventSink receives push-style events from the transport while a request
// is in flight. Both accumulator variants implement it. OnData and OnHeader
// may each be called zero or many times in any interleaving the transport
// produces. A non-nil error from OnData tells the transport to abort the
// transfer.
type EventSink interface {
	OnData(chunk []byte) error
	OnHeader(name, value string)
}

// Request is the fully merged wire-level request handed to the transport.
type Request struct {
	URL                    string
	Method                 string
	Body                   []byte
	Headers                []Header
	Timeout                time.Duration
	AllowRedirects         bool
	SkipTLSCommonNameCheck bool
}

// Outcome is the transport-level result of a request. StatusCode is only
// meaningful when Code is CodeOK.
type Outcome struct {
	Code       ErrorCode
	StatusCode int
}

// Transport performs the actual HTTP(S) exchange, driving the event sink
// as headers and body bytes arrive.
type Transport interface {
	Do(ctx context.Context, req Request, events EventSink) Outcome
}

// BufferSource supplies byte buffers for response accumulation, optionally
// preferring a pooled region.
type BufferSource interface {
	Get() *bytebufferpool.ByteBuffer
	Put(buf *bytebufferpool.ByteBuffer)
}

// SpawnFunc creates one execution context per admitted job. The default
// implementation starts a goroutine and ignores the hints; a failing spawn
// must not have run the job.
type SpawnFunc func(hints SpawnHints, run func()) error
