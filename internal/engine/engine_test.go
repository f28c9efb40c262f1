package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tinwell/asyncfetch/internal/fetch"
	"github.com/tinwell/asyncfetch/internal/transport"
)

// fakeTransport drives the event sink from canned data and can block to
// hold admission slots open.
type fakeTransport struct {
	mu      sync.Mutex
	calls   int
	lastReq fetch.Request
	block   chan struct{}
	started chan struct{}
	body    []byte
	headers []fetch.Header
	outcome fetch.Outcome
}

func (f *fakeTransport) Do(_ context.Context, req fetch.Request, events fetch.EventSink) fetch.Outcome {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	for _, h := range f.headers {
		events.OnHeader(h.Name, h.Value)
	}
	if len(f.body) > 0 {
		if err := events.OnData(f.body); err != nil {
			if errors.Is(err, fetch.ErrSizeExceeded) {
				return fetch.Outcome{Code: fetch.CodeSizeExceeded}
			}
			return fetch.Outcome{Code: fetch.CodeTransportFailed}
		}
	}
	return f.outcome
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) request() fetch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func newTestEngine(t *testing.T, ft *fakeTransport, cfg fetch.Config) *Engine {
	t.Helper()
	e := New(Deps{Transport: ft})
	if err := e.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func baseConfig() fetch.Config {
	return fetch.Config{
		MaxConcurrentRequests: 2,
		DefaultTimeout:        time.Second,
		MaxBodyBytes:          4096,
		MaxHeaderBytes:        1024,
		FollowRedirects:       true,
	}
}

func TestInitRejectsZeroConcurrency(t *testing.T) {
	t.Parallel()

	e := New(Deps{Transport: &fakeTransport{}})
	if err := e.Init(fetch.Config{MaxConcurrentRequests: 0}); err == nil {
		t.Fatal("Init with zero concurrency should fail")
	}
	if e.Initialized() {
		t.Fatal("engine should remain uninitialized")
	}
}

func TestSubmitOnUninitializedEngineFails(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	e := New(Deps{Transport: ft})

	if e.Get("https://example.com", nil, fetch.RequestOptions{}) {
		t.Fatal("submission on uninitialized engine should fail")
	}
	if ft.callCount() != 0 {
		t.Fatal("transport must not be touched")
	}

	result := e.GetSync("https://example.com", time.Second, fetch.RequestOptions{})
	if result.Err == nil || result.Err.Message != "ERR_SUBMIT_REJECTED" {
		t.Fatalf("sync submission should return error result, got %+v", result)
	}
}

func TestGetDeliversCallbackResult(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{
		body:    []byte("response body"),
		headers: []fetch.Header{{Name: "Content-Type", Value: "text/plain"}},
		outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200},
	}
	e := newTestEngine(t, ft, baseConfig())

	results := make(chan fetch.Result, 1)
	if !e.Get("https:/example.com/data", func(r fetch.Result) { results <- r }, fetch.RequestOptions{}) {
		t.Fatal("submission should be admitted")
	}

	select {
	case r := <-results:
		if r.URL != "https://example.com/data" {
			t.Fatalf("url not normalized: %q", r.URL)
		}
		if !r.OK || r.Status != 200 || r.Body != "response body" {
			t.Fatalf("result = %+v", r)
		}
		if r.Headers["Content-Type"] != "text/plain" {
			t.Fatalf("headers = %+v", r.Headers)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestCapacityEnforcedWithZeroWait(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{
		block:   make(chan struct{}),
		started: make(chan struct{}, 8),
		outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200},
	}
	cfg := baseConfig() // capacity 2, zero-wait slot policy
	e := newTestEngine(t, ft, cfg)

	var callbacks atomic.Int64
	cb := func(fetch.Result) { callbacks.Add(1) }

	if !e.Get("https://example.com/1", cb, fetch.RequestOptions{}) {
		t.Fatal("first submission should be admitted")
	}
	if !e.Get("https://example.com/2", cb, fetch.RequestOptions{}) {
		t.Fatal("second submission should be admitted")
	}
	<-ft.started
	<-ft.started

	if e.Get("https://example.com/3", cb, fetch.RequestOptions{}) {
		t.Fatal("third submission should fail fast at capacity")
	}
	if got := callbacks.Load(); got != 0 {
		t.Fatalf("no callback should have fired yet, got %d", got)
	}

	close(ft.block)
	deadline := time.Now().Add(time.Second)
	for callbacks.Load() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := callbacks.Load(); got != 2 {
		t.Fatalf("callbacks = %d, want 2 (rejected submission must not fire)", got)
	}
}

func TestPostSerializesPayloadAndSync(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{
		body:    []byte(`{"accepted":true}`),
		outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 201},
	}
	e := newTestEngine(t, ft, baseConfig())

	payload := map[string]any{"device": "sensor-1", "value": 42}
	result := e.PostSync("https://example.com/ingest", payload, time.Second, fetch.RequestOptions{})

	if !result.OK || result.Status != 201 {
		t.Fatalf("result = %+v", result)
	}
	if result.Method != "POST" {
		t.Fatalf("method = %q", result.Method)
	}

	req := ft.request()
	var sent map[string]any
	if err := json.Unmarshal(req.Body, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent["device"] != "sensor-1" {
		t.Fatalf("payload = %+v", sent)
	}
	if !hasHeader(req.Headers, "Content-Type") {
		t.Fatal("POST should carry a Content-Type")
	}
}

func TestGetSyncWaitTimeoutDoesNotCancelJob(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
		outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200},
	}
	e := newTestEngine(t, ft, baseConfig())

	done := make(chan fetch.Result, 1)
	go func() {
		done <- e.GetSync("https://example.com", 20*time.Millisecond, fetch.RequestOptions{})
	}()
	<-ft.started

	result := <-done
	if result.Err == nil || result.Err.Message != "ERR_WAIT_TIMEOUT" {
		t.Fatalf("expected synthesized wait timeout, got %+v", result)
	}

	// The job keeps running to completion after the waiter gave up.
	close(ft.block)
}

func TestSpawnFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200}}
	var fail atomic.Bool
	fail.Store(true)

	e := New(Deps{
		Transport: ft,
		Spawn: func(_ fetch.SpawnHints, run func()) error {
			if fail.Load() {
				return errors.New("no execution contexts")
			}
			go run()
			return nil
		},
	})
	cfg := baseConfig()
	cfg.MaxConcurrentRequests = 1
	if err := e.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(e.Close)

	if e.Get("https://example.com", nil, fetch.RequestOptions{}) {
		t.Fatal("submission should fail when spawn fails")
	}

	// The single slot must have been released on the failure path.
	fail.Store(false)
	results := make(chan fetch.Result, 1)
	if !e.Get("https://example.com", func(r fetch.Result) { results <- r }, fetch.RequestOptions{}) {
		t.Fatal("submission should succeed once spawn recovers")
	}
	select {
	case <-results:
	case <-time.After(time.Second):
		t.Fatal("recovered submission never completed")
	}
}

func TestStreamDeliversChunksAndSummary(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{
		body:    []byte("0123456789"),
		outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200},
	}
	e := newTestEngine(t, ft, baseConfig())

	var received atomic.Int64
	done := make(chan fetch.StreamResult, 1)
	admitted := e.GetStream("https://example.com/blob",
		func(chunk []byte) { received.Add(int64(len(chunk))) },
		func(r fetch.StreamResult) { done <- r },
		fetch.RequestOptions{},
	)
	if !admitted {
		t.Fatal("stream submission should be admitted")
	}

	select {
	case r := <-done:
		if r.Code != fetch.CodeOK || r.StatusCode != 200 {
			t.Fatalf("stream result = %+v", r)
		}
		if r.ReceivedBytes != 10 || received.Load() != 10 {
			t.Fatalf("received = %d/%d, want 10", r.ReceivedBytes, received.Load())
		}
	case <-time.After(time.Second):
		t.Fatal("stream completion never delivered")
	}
}

func TestStreamLimitAbortsWithSizeExceeded(t *testing.T) {
	t.Parallel()

	const limit = 4
	ft := &fakeTransport{
		body:    []byte("0123456789"),
		outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200},
	}
	e := newTestEngine(t, ft, baseConfig())

	var received atomic.Int64
	done := make(chan fetch.StreamResult, 1)
	e.GetStream("https://example.com/blob",
		func(chunk []byte) { received.Add(int64(len(chunk))) },
		func(r fetch.StreamResult) { done <- r },
		fetch.RequestOptions{MaxBodyBytes: limit},
	)

	select {
	case r := <-done:
		if r.Code != fetch.CodeSizeExceeded {
			t.Fatalf("code = %v, want CodeSizeExceeded", r.Code)
		}
		if r.ReceivedBytes != limit || received.Load() != limit {
			t.Fatalf("received = %d/%d, want %d", r.ReceivedBytes, received.Load(), limit)
		}
	case <-time.After(time.Second):
		t.Fatal("stream completion never delivered")
	}
}

func TestStreamRequiresChunkCallback(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	e := newTestEngine(t, ft, baseConfig())

	if e.GetStream("https://example.com", nil, nil, fetch.RequestOptions{}) {
		t.Fatal("stream without chunk callback should be rejected")
	}
	if ft.callCount() != 0 {
		t.Fatal("transport must not be touched")
	}
}

func TestCloseDrainsRunningJobs(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
		outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200},
	}
	e := New(Deps{Transport: ft})
	if err := e.Init(baseConfig()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if !e.Get("https://example.com", nil, fetch.RequestOptions{}) {
		t.Fatal("submission should be admitted")
	}
	<-ft.started

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(ft.block)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after jobs drained")
	}

	if e.Initialized() {
		t.Fatal("engine should report uninitialized after Close")
	}
	if e.Get("https://example.com", nil, fetch.RequestOptions{}) {
		t.Fatal("submission after Close should fail")
	}
}

func TestReinitTearsDownPreviousState(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{outcome: fetch.Outcome{Code: fetch.CodeOK, StatusCode: 200}}
	e := New(Deps{Transport: ft})
	if err := e.Init(baseConfig()); err != nil {
		t.Fatalf("first Init() error = %v", err)
	}

	cfg := baseConfig()
	cfg.MaxConcurrentRequests = 5
	if err := e.Init(cfg); err != nil {
		t.Fatalf("re-Init() error = %v", err)
	}
	t.Cleanup(e.Close)

	if got := e.Snapshot().Capacity; got != 5 {
		t.Fatalf("capacity after re-init = %d, want 5", got)
	}
}

func TestEmptyURLFailsWithoutTouchingAdmission(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	e := newTestEngine(t, ft, baseConfig())

	if e.Get("", nil, fetch.RequestOptions{}) {
		t.Fatal("empty URL should fail")
	}
	result := e.GetSync("", time.Second, fetch.RequestOptions{})
	if result.Err == nil || result.Err.Message != "ERR_INVALID_URL" {
		t.Fatalf("expected invalid-url result, got %+v", result)
	}
	if ft.callCount() != 0 {
		t.Fatal("transport must not be touched")
	}
}

// Guard against the default transport drifting away from the Transport
// contract consumed here.
var _ fetch.Transport = (*transport.HTTP)(nil)
