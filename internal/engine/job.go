package engine

import (
	"strings"
	"time"

	"github.com/tinwell/asyncfetch/internal/accumulate"
	"github.com/tinwell/asyncfetch/internal/fetch"
)

// job is one in-flight request. It is owned exclusively by its execution
// goroutine from spawn until delivery, and is in exactly one mode for its
// whole lifetime.
type job struct {
	id     string
	url    string
	method string
	body   []byte
	opts   fetch.RequestOptions
	mode   fetch.Mode

	// Effective settings, merged from opts over the engine config.
	timeout        time.Duration
	bodyLimit      int64
	headerLimit    int64
	allowRedirects bool
	skipTLSCheck   bool
	headers        []fetch.Header

	// Exactly one accumulator, selected by mode.
	buffered  *accumulate.Buffered
	streaming *accumulate.Streaming

	// Delivery target: at most one of callback/sync for buffered mode,
	// onDone for streaming mode.
	callback fetch.Callback
	sync     *syncHandle
	onChunk  fetch.ChunkFunc
	onDone   fetch.StreamDoneFunc
}

// resolveLimit merges a per-call byte limit onto the config default:
// an explicit per-call value wins, 0 defers to config, and a config
// value of 0 means unlimited.
func resolveLimit(perCall, configDefault int64) int64 {
	if perCall > 0 {
		return perCall
	}
	if configDefault > 0 {
		return configDefault
	}
	return fetch.Unlimited
}

// build resolves the job's effective settings against the engine config
// and constructs its accumulator.
func (j *job) build(cfg fetch.Config, buffers fetch.BufferSource) {
	j.timeout = j.opts.Timeout
	if j.timeout <= 0 {
		j.timeout = cfg.DefaultTimeout
	}

	if j.mode == fetch.ModeStreaming {
		// Streaming defaults to unlimited unless the caller set a limit;
		// the config body default is sized for buffered JSON results.
		j.bodyLimit = fetch.Unlimited
		if j.opts.MaxBodyBytes > 0 {
			j.bodyLimit = j.opts.MaxBodyBytes
		}
	} else {
		j.bodyLimit = resolveLimit(j.opts.MaxBodyBytes, cfg.MaxBodyBytes)
	}
	j.headerLimit = resolveLimit(j.opts.MaxHeaderBytes, cfg.MaxHeaderBytes)

	j.skipTLSCheck = j.opts.SkipTLSCommonNameCheck || cfg.SkipTLSCommonNameCheck
	j.allowRedirects = cfg.FollowRedirects
	if j.opts.AllowRedirectsProvided {
		j.allowRedirects = j.opts.AllowRedirects && cfg.FollowRedirects
	}

	j.headers = append([]fetch.Header(nil), j.opts.Headers...)
	if cfg.UserAgent != "" && !hasHeader(j.headers, "User-Agent") {
		j.headers = append(j.headers, fetch.Header{Name: "User-Agent", Value: cfg.UserAgent})
	}
	if j.mode == fetch.ModeBuffered && j.method == "POST" && len(j.body) > 0 {
		contentType := j.opts.ContentType
		if contentType == "" {
			contentType = cfg.DefaultContentType
		}
		if contentType != "" && !hasHeader(j.headers, "Content-Type") {
			j.headers = append(j.headers, fetch.Header{Name: "Content-Type", Value: contentType})
		}
	}

	if j.mode == fetch.ModeStreaming {
		j.streaming = accumulate.NewStreaming(j.bodyLimit, j.headerLimit, j.onChunk)
	} else {
		j.buffered = accumulate.NewBuffered(j.bodyLimit, j.headerLimit, buffers)
	}
}

// sink returns the job's accumulator behind the event contract.
func (j *job) sink() fetch.EventSink {
	if j.mode == fetch.ModeStreaming {
		return j.streaming
	}
	return j.buffered
}

func (j *job) request() fetch.Request {
	return fetch.Request{
		URL:                    j.url,
		Method:                 j.method,
		Body:                   j.body,
		Headers:                j.headers,
		Timeout:                j.timeout,
		AllowRedirects:         j.allowRedirects,
		SkipTLSCommonNameCheck: j.skipTLSCheck,
	}
}

func hasHeader(headers []fetch.Header, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}
