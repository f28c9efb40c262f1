package accumulate

import "github.com/tinwell/asyncfetch/internal/fetch"

// Streaming forwards body bytes to a chunk sink without retention. Unlike
// the buffered variant, exceeding the body limit is a hard failure: the
// clipped tail is never delivered and the transport is told to abort.
// A truncated artifact is worse than an explicit failure for the file and
// firmware transfers this mode serves.
type Streaming struct {
	bodyLimit   int64
	headerLimit int64
	sink        fetch.ChunkFunc

	received int64
	exceeded bool

	headers          []fetch.Header
	headerBytes      int64
	headersTruncated bool
}

// NewStreaming creates a streaming accumulator around the chunk sink.
func NewStreaming(bodyLimit, headerLimit int64, sink fetch.ChunkFunc) *Streaming {
	return &Streaming{
		bodyLimit:   bodyLimit,
		headerLimit: headerLimit,
		sink:        sink,
	}
}

// OnData forwards up to the remaining body budget to the sink. If the
// chunk had to be clipped, or the limit was already reached, the job is
// marked size-exceeded and the returned error aborts the transfer.
func (s *Streaming) OnData(chunk []byte) error {
	if s.bodyLimit != fetch.Unlimited && s.received >= s.bodyLimit {
		s.exceeded = true
		return fetch.ErrSizeExceeded
	}
	toSend := int64(len(chunk))
	if s.bodyLimit != fetch.Unlimited {
		if remaining := s.bodyLimit - s.received; toSend > remaining {
			toSend = remaining
		}
	}
	if toSend > 0 && s.sink != nil {
		s.sink(chunk[:toSend])
		s.received += toSend
	}
	if toSend < int64(len(chunk)) {
		s.exceeded = true
		return fetch.ErrSizeExceeded
	}
	return nil
}

// OnHeader applies the same byte-limit policy as the buffered variant;
// headers are still captured for completion metadata.
func (s *Streaming) OnHeader(name, value string) {
	projected := s.headerBytes + int64(len(name)) + int64(len(value))
	if projected <= s.headerLimit {
		s.headers = append(s.headers, fetch.Header{Name: name, Value: value})
		s.headerBytes = projected
		return
	}
	s.headersTruncated = true
}

// ReceivedBytes returns the total bytes delivered to the sink.
func (s *Streaming) ReceivedBytes() int64 {
	return s.received
}

// Exceeded reports whether the body limit aborted the transfer.
func (s *Streaming) Exceeded() bool {
	return s.exceeded
}

// HeadersTruncated reports whether any header was dropped.
func (s *Streaming) HeadersTruncated() bool {
	return s.headersTruncated
}
