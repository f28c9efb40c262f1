package engine

import (
	"sync/atomic"
	"time"

	"github.com/tinwell/asyncfetch/internal/fetch"
)

// syncHandle bridges a job's execution goroutine and a caller blocked on
// the result. The execution side writes the result at most once; after
// ready is set it is permanently true and the stored result is immutable.
// The happens-before edge is the channel close plus the atomic flag, so no
// lock is needed.
type syncHandle struct {
	done   chan struct{}
	ready  atomic.Bool
	result fetch.Result
}

func newSyncHandle() *syncHandle {
	return &syncHandle{done: make(chan struct{})}
}

// complete stores the result and raises the one-shot signal. Extra calls
// are ignored.
func (h *syncHandle) complete(result fetch.Result) {
	if h.ready.Load() {
		return
	}
	h.result = result
	h.ready.Store(true)
	close(h.done)
}

// wait blocks up to timeout (negative = forever) for the result. If the
// signal races with the timeout, the ready flag is checked regardless of
// the wait outcome so a delivered result is never dropped.
func (h *syncHandle) wait(timeout time.Duration, url, method string) fetch.Result {
	if timeout < 0 {
		<-h.done
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.done:
		case <-timer.C:
		}
	}
	if h.ready.Load() {
		return h.result
	}
	return errorResult(url, method, fetch.CodeWaitTimeout)
}
