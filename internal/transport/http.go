// Package transport implements the default Transport collaborator over
// net/http, driving the accumulator event contract as headers and body
// bytes arrive.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tinwell/asyncfetch/internal/fetch"
)

// readChunkSize is the body read granularity; each full or partial read
// becomes one OnData event.
const readChunkSize = 4096

// HTTP performs requests with a shared, tuned http.Transport. Per-request
// TLS relaxation clones the base transport rather than mutating it.
type HTTP struct {
	base   *http.Transport
	logger *zap.Logger
}

// New builds an HTTP transport.
func New(logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{
		base:   newHTTPTransport(),
		logger: logger,
	}
}

// Do executes the exchange and pushes header and body events into the
// sink. StatusCode in the outcome is only set when the exchange succeeded.
func (t *HTTP) Do(ctx context.Context, req fetch.Request, events fetch.EventSink) fetch.Outcome {
	rt := http.RoundTripper(t.base)
	if req.SkipTLSCommonNameCheck {
		clone := t.base.Clone()
		clone.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit per-request opt-in
		rt = clone
	}

	client := &http.Client{
		Transport: rt,
		Timeout:   req.Timeout,
	}
	if !req.AllowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		t.logger.Debug("build request failed", zap.String("url", req.URL), zap.Error(err))
		return fetch.Outcome{Code: fetch.CodeInvalidURL}
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		code := classify(err)
		t.logger.Debug("exchange failed",
			zap.String("url", req.URL),
			zap.String("code", code.String()),
			zap.Error(err),
		)
		return fetch.Outcome{Code: code}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	for name, values := range resp.Header {
		for _, v := range values {
			events.OnHeader(name, v)
		}
	}

	buf := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if sinkErr := events.OnData(buf[:n]); sinkErr != nil {
				if errors.Is(sinkErr, fetch.ErrSizeExceeded) {
					return fetch.Outcome{Code: fetch.CodeSizeExceeded}
				}
				return fetch.Outcome{Code: fetch.CodeTransportFailed}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fetch.Outcome{Code: classify(readErr)}
		}
	}

	return fetch.Outcome{Code: fetch.CodeOK, StatusCode: resp.StatusCode}
}

// classify maps wire errors onto the stable code taxonomy. http.Client
// wraps everything in *url.Error, which errors.As unwraps.
func classify(err error) fetch.ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return fetch.CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fetch.CodeTimeout
	}
	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) {
		return fetch.CodeTLSFailed
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return fetch.CodeConnectionFailed
	}
	return fetch.CodeTransportFailed
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
