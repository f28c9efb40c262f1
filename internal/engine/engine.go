// Package engine implements the bounded-concurrency fetch engine: the
// lifecycle façade, job dispatch onto per-request goroutines, result
// building and delivery.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinwell/asyncfetch/internal/accumulate"
	"github.com/tinwell/asyncfetch/internal/admission"
	"github.com/tinwell/asyncfetch/internal/fetch"
	"github.com/tinwell/asyncfetch/internal/politeness"
	"github.com/tinwell/asyncfetch/internal/telemetry"
)

// Deps are the collaborators injected into an Engine. Zero fields get
// safe defaults except Transport, which is required.
type Deps struct {
	Logger    *zap.Logger
	Transport fetch.Transport
	Limiter   *politeness.Limiter
	Spawn     fetch.SpawnFunc
}

// Engine owns the configuration, the admission controller, and the job
// lifecycle. Init and Close must not be called concurrently with each
// other or with submissions; that discipline is the caller's, matching
// the cooperative model this engine targets.
type Engine struct {
	logger    *zap.Logger
	transport fetch.Transport
	limiter   *politeness.Limiter
	spawn     fetch.SpawnFunc

	initialized atomic.Bool
	cfg         fetch.Config
	slots       *admission.Controller
	buffers     fetch.BufferSource

	wg        sync.WaitGroup
	active    atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
}

// Stats is a point-in-time snapshot for the ops endpoint.
type Stats struct {
	Initialized       bool  `json:"initialized"`
	Capacity          int   `json:"capacity"`
	ActiveJobs        int64 `json:"active_jobs"`
	CompletedJobs     int64 `json:"completed_jobs"`
	FailedSubmissions int64 `json:"failed_submissions"`
}

// New constructs an Engine around its collaborators. The Engine starts
// uninitialized; call Init before submitting.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	spawn := deps.Spawn
	if spawn == nil {
		spawn = goSpawn
	}
	return &Engine{
		logger:    logger,
		transport: deps.Transport,
		limiter:   deps.Limiter,
		spawn:     spawn,
	}
}

// goSpawn is the default execution-context factory: one goroutine per
// job. The scheduling hints have no goroutine equivalent and are ignored.
func goSpawn(_ fetch.SpawnHints, run func()) error {
	go run()
	return nil
}

// Init validates the configuration and arms the engine. Initializing an
// already-initialized engine tears the previous state down first.
func (e *Engine) Init(cfg fetch.Config) error {
	if e.initialized.Load() {
		e.Close()
	}

	if cfg.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("init: maxConcurrentRequests must be > 0")
	}
	if cfg.ExecutionStackSize < 0 {
		return fmt.Errorf("init: executionStackSize must be >= 0")
	}
	if e.transport == nil {
		return fmt.Errorf("init: transport is required")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}

	e.cfg = cfg
	e.slots = admission.New(cfg.MaxConcurrentRequests)
	e.buffers = accumulate.Source(cfg.PreferPooledBuffers)
	e.initialized.Store(true)

	e.logger.Info("engine initialized",
		zap.Int("max_concurrent_requests", cfg.MaxConcurrentRequests),
		zap.Duration("default_timeout", cfg.DefaultTimeout),
		zap.Int64("max_body_bytes", cfg.MaxBodyBytes),
		zap.Int64("max_header_bytes", cfg.MaxHeaderBytes),
	)
	return nil
}

// Close stops accepting submissions and drains: it does not return while
// any job's goroutine is still active. Running jobs are never terminated.
func (e *Engine) Close() {
	e.initialized.Store(false)
	e.wg.Wait()
	e.logger.Info("engine closed")
}

// Initialized reports whether the engine accepts submissions.
func (e *Engine) Initialized() bool {
	return e.initialized.Load()
}

// Snapshot returns current engine statistics.
func (e *Engine) Snapshot() Stats {
	capacity := 0
	if e.slots != nil {
		capacity = e.slots.Capacity()
	}
	return Stats{
		Initialized:       e.initialized.Load(),
		Capacity:          capacity,
		ActiveJobs:        e.active.Load(),
		CompletedJobs:     e.completed.Load(),
		FailedSubmissions: e.rejected.Load(),
	}
}

// Get submits an asynchronous GET whose result is delivered to callback.
// It reports whether the job was admitted.
func (e *Engine) Get(url string, callback fetch.Callback, opts fetch.RequestOptions) bool {
	return e.submit(&job{
		url:      url,
		method:   http.MethodGet,
		mode:     fetch.ModeBuffered,
		opts:     opts,
		callback: callback,
	})
}

// GetSync submits a GET and blocks up to wait (negative = forever) for
// its result. Failures return a result-shaped error.
func (e *Engine) GetSync(url string, wait time.Duration, opts fetch.RequestOptions) fetch.Result {
	if url == "" {
		return errorResult(url, http.MethodGet, fetch.CodeInvalidURL)
	}
	handle := newSyncHandle()
	admitted := e.submit(&job{
		url:    url,
		method: http.MethodGet,
		mode:   fetch.ModeBuffered,
		opts:   opts,
		sync:   handle,
	})
	if !admitted {
		return errorResult(url, http.MethodGet, fetch.CodeSubmitRejected)
	}
	return handle.wait(wait, url, http.MethodGet)
}

// Post serializes payload to JSON and submits an asynchronous POST.
func (e *Engine) Post(url string, payload any, callback fetch.Callback, opts fetch.RequestOptions) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("encode post payload failed", zap.String("url", url), zap.Error(err))
		return false
	}
	return e.submit(&job{
		url:      url,
		method:   http.MethodPost,
		mode:     fetch.ModeBuffered,
		body:     body,
		opts:     opts,
		callback: callback,
	})
}

// PostSync submits a POST and blocks up to wait for its result.
func (e *Engine) PostSync(url string, payload any, wait time.Duration, opts fetch.RequestOptions) fetch.Result {
	if url == "" {
		return errorResult(url, http.MethodPost, fetch.CodeInvalidURL)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("encode post payload failed", zap.String("url", url), zap.Error(err))
		return errorResult(url, http.MethodPost, fetch.CodeSubmitRejected)
	}
	handle := newSyncHandle()
	admitted := e.submit(&job{
		url:    url,
		method: http.MethodPost,
		mode:   fetch.ModeBuffered,
		body:   body,
		opts:   opts,
		sync:   handle,
	})
	if !admitted {
		return errorResult(url, http.MethodPost, fetch.CodeSubmitRejected)
	}
	return handle.wait(wait, url, http.MethodPost)
}

// GetStream submits a streaming GET: body bytes go to onChunk as they
// arrive and onDone (optional) receives the completion summary. onChunk
// is required.
func (e *Engine) GetStream(url string, onChunk fetch.ChunkFunc, onDone fetch.StreamDoneFunc, opts fetch.RequestOptions) bool {
	if onChunk == nil {
		e.logger.Error("stream request requires a chunk callback", zap.String("url", url))
		return false
	}
	return e.submit(&job{
		url:     url,
		method:  http.MethodGet,
		mode:    fetch.ModeStreaming,
		opts:    opts,
		onChunk: onChunk,
		onDone:  onDone,
	})
}

// submit runs the admission pipeline: precondition checks, URL
// normalization, politeness, slot acquisition, job build, spawn. A false
// return means no job was started and no slot is held.
func (e *Engine) submit(j *job) bool {
	if !e.initialized.Load() {
		e.logger.Error("engine not initialized")
		return false
	}
	if j.url == "" {
		e.logger.Error("submission without url")
		return false
	}
	j.url = fetch.NormalizeURL(j.url)

	if !e.limiter.Admit(j.url) {
		e.rejected.Add(1)
		telemetry.ObserveJob(telemetry.OutcomeRejected)
		e.logger.Warn("submission rejected by rate limiter", zap.String("url", j.url))
		return false
	}

	waitStart := time.Now()
	if !e.slots.Acquire(e.cfg.SlotAcquireWait) {
		e.rejected.Add(1)
		telemetry.ObserveJob(telemetry.OutcomeNoSlot)
		e.logger.Warn("no available fetch slots", zap.String("url", j.url))
		return false
	}
	telemetry.ObserveSlotWait(time.Since(waitStart))

	j.id = uuid.NewString()
	j.build(e.cfg, e.buffers)

	e.wg.Add(1)
	e.active.Add(1)
	telemetry.IncActiveJobs()

	hints := fetch.SpawnHints{
		StackSize:    e.cfg.ExecutionStackSize,
		Priority:     e.cfg.Priority,
		CoreAffinity: e.cfg.CoreAffinity,
	}
	if err := e.spawn(hints, func() { e.runJob(j) }); err != nil {
		e.wg.Done()
		e.active.Add(-1)
		telemetry.DecActiveJobs()
		if j.buffered != nil {
			j.buffered.Close()
		}
		e.slots.Release()
		e.rejected.Add(1)
		telemetry.ObserveJob(telemetry.OutcomeSpawnFailed)
		e.logger.Error("spawn execution context failed", zap.String("job_id", j.id), zap.Error(err))
		return false
	}

	e.logger.Debug("job admitted",
		zap.String("job_id", j.id),
		zap.String("url", j.url),
		zap.String("method", j.method),
		zap.String("mode", string(j.mode)),
	)
	return true
}

// runJob is the entire lifetime of a job's execution goroutine: one
// transport exchange, result delivery, slot release.
func (e *Engine) runJob(j *job) {
	defer e.wg.Done()

	start := time.Now()
	out := e.transport.Do(context.Background(), j.request(), j.sink())
	duration := time.Since(start)
	telemetry.ObserveFetch(j.method, duration)

	if j.mode == fetch.ModeStreaming {
		e.finishStreaming(j, out, duration)
	} else {
		e.finishBuffered(j, out, duration)
	}

	e.active.Add(-1)
	telemetry.DecActiveJobs()
	e.slots.Release()
}

func (e *Engine) finishBuffered(j *job, out fetch.Outcome, duration time.Duration) {
	result := buildResult(j, out, duration)
	j.buffered.Close()

	telemetry.AddBytes(string(fetch.ModeBuffered), int64(len(result.Body)))
	if result.BodyTruncated {
		telemetry.ObserveTruncation("body")
	}
	if result.HeadersTruncated {
		telemetry.ObserveTruncation("headers")
	}
	if out.Code == fetch.CodeOK {
		e.completed.Add(1)
		telemetry.ObserveJob(telemetry.OutcomeCompleted)
	} else {
		telemetry.ObserveJob(telemetry.OutcomeFailed)
	}

	e.logger.Debug("job finished",
		zap.String("job_id", j.id),
		zap.String("url", j.url),
		zap.Int("status", result.Status),
		zap.Bool("ok", result.OK),
		zap.Int64("duration_ms", result.DurationMS),
	)

	if j.callback != nil {
		j.callback(result)
	}
	if j.sync != nil {
		j.sync.complete(result)
	}
}

func (e *Engine) finishStreaming(j *job, out fetch.Outcome, duration time.Duration) {
	code := out.Code
	if j.streaming.Exceeded() {
		code = fetch.CodeSizeExceeded
	}
	result := fetch.StreamResult{
		Code:          code,
		StatusCode:    out.StatusCode,
		ReceivedBytes: j.streaming.ReceivedBytes(),
	}

	telemetry.AddBytes(string(fetch.ModeStreaming), result.ReceivedBytes)
	if j.streaming.HeadersTruncated() {
		telemetry.ObserveTruncation("headers")
	}
	if code == fetch.CodeOK {
		e.completed.Add(1)
		telemetry.ObserveJob(telemetry.OutcomeCompleted)
	} else {
		telemetry.ObserveJob(telemetry.OutcomeFailed)
	}

	e.logger.Debug("stream finished",
		zap.String("job_id", j.id),
		zap.String("url", j.url),
		zap.String("code", code.String()),
		zap.Int64("received_bytes", result.ReceivedBytes),
		zap.Duration("duration", duration),
	)

	if j.onDone != nil {
		j.onDone(result)
	}
}
