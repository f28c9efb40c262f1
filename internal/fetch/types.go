package fetch

import (
	"math"
	"time"
)

// Unlimited is the sentinel for a limit that has been resolved to "no limit".
const Unlimited int64 = math.MaxInt64

// Mode selects how a job's response body is delivered.
type Mode string

// Delivery modes.
const (
	// ModeBuffered accumulates body and headers into a structured Result.
	ModeBuffered Mode = "buffered"
	// ModeStreaming forwards body bytes to a chunk sink without retention.
	ModeStreaming Mode = "streaming"
)

// Header is a single request or response header pair. Order is preserved
// and duplicate names are kept as separate entries.
type Header struct {
	Name  string
	Value string
}

// RequestOptions carries per-call overrides. The zero value defers every
// knob to the engine config. A limit of 0 means "use default"; a config
// default of 0 resolves to unlimited.
type RequestOptions struct {
	Timeout                time.Duration
	MaxBodyBytes           int64
	MaxHeaderBytes         int64
	SkipTLSCommonNameCheck bool
	AllowRedirects         bool
	// AllowRedirectsProvided distinguishes an explicit false from the
	// zero value; when unset, redirects follow the config default.
	AllowRedirectsProvided bool
	Headers                []Header
	ContentType            string
}

// Config is the process-wide engine configuration, set once at Init and
// read-only thereafter.
type Config struct {
	// MaxConcurrentRequests is the admission capacity; must be > 0.
	MaxConcurrentRequests int
	// ExecutionStackSize, Priority and CoreAffinity are opaque scheduling
	// hints forwarded to the spawn collaborator.
	ExecutionStackSize int
	Priority           int
	CoreAffinity       int
	DefaultTimeout     time.Duration
	// MaxBodyBytes and MaxHeaderBytes are default limits; 0 = unlimited.
	MaxBodyBytes   int64
	MaxHeaderBytes int64
	// SlotAcquireWait bounds the wait for a free admission slot.
	// Zero fails fast; negative waits forever.
	SlotAcquireWait        time.Duration
	SkipTLSCommonNameCheck bool
	FollowRedirects        bool
	UserAgent              string
	DefaultContentType     string
	// PreferPooledBuffers selects the pooled buffer source for buffered
	// accumulation; plain heap allocation is the fallback.
	PreferPooledBuffers bool
}

// SpawnHints are the scheduling hints passed through to the spawn
// collaborator; the default goroutine spawner ignores them.
type SpawnHints struct {
	StackSize    int
	Priority     int
	CoreAffinity int
}

// Result is the structured document delivered for buffered-mode jobs.
type Result struct {
	URL              string            `json:"url"`
	Method           string            `json:"method"`
	Status           int               `json:"status"`
	OK               bool              `json:"ok"`
	DurationMS       int64             `json:"duration_ms"`
	Body             string            `json:"body"`
	BodyTruncated    bool              `json:"body_truncated"`
	HeadersTruncated bool              `json:"headers_truncated"`
	Headers          map[string]string `json:"headers"`
	Err              *ResultError      `json:"error"`
}

// ResultError is the error object embedded in a Result on transport failure.
type ResultError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StreamResult summarizes a streaming-mode job. Body and headers are
// intentionally absent.
type StreamResult struct {
	Code          ErrorCode
	StatusCode    int
	ReceivedBytes int64
}

// Callback receives the final Result of a buffered-mode job. It is invoked
// exactly once, on the job's execution goroutine.
type Callback func(Result)

// ChunkFunc receives streaming body bytes as they arrive. The slice is only
// valid for the duration of the call.
type ChunkFunc func(chunk []byte)

// StreamDoneFunc receives the completion summary of a streaming job.
type StreamDoneFunc func(StreamResult)
