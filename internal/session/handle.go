package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/telemetry"
	"github.com/Aman-CERP/treewatch/internal/watcher"
)

// Handle controls a running session.
type Handle struct {
	session   *Session
	watcher   *watcher.HybridWatcher
	debouncer *watcher.Debouncer
	queue     *queue
	limiter   *rate.Limiter
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	rescanReq chan struct{}

	once     sync.Once
	stopCtx  func() bool
	stopMu   sync.Mutex
	errMu    sync.Mutex
	errs     chan error
	closed   bool
	terminal error
	aborted  bool
}

func newHandle(s *Session, w *watcher.HybridWatcher) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		session:   s,
		watcher:   w,
		queue:     newQueue(),
		limiter:   rate.NewLimiter(s.limit, 1),
		logger:    s.logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		rescanReq: make(chan struct{}, 1),
		errs:      make(chan error, errorBufferSize),
	}
	h.debouncer = watcher.NewDebouncer(s.opts.DebounceWindow, h.settle)
	return h
}

// start launches the delivery and rescan goroutines.
func (h *Handle) start(fn ReactFunc) {
	h.wg.Add(2)
	go h.deliver(fn)
	go h.rescanLoop()
}

// stopOnDone cancels the session when ctx is done.
func (h *Handle) stopOnDone(ctx context.Context) {
	stop := context.AfterFunc(ctx, h.Cancel)
	h.stopMu.Lock()
	h.stopCtx = stop
	h.stopMu.Unlock()
}

// Cancel ends the session. The watcher is stopped, pending and queued
// changes are discarded and no ReactFunc call starts after Cancel returns.
// A call already running sees its context cancelled. Safe to call more than
// once and from within the ReactFunc.
func (h *Handle) Cancel() {
	h.shutdown(nil)
}

// Done is closed once every session goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error that ended the session, or nil if the
// session is running or was cancelled.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.terminal
}

// Errors delivers runtime errors: overflows and reaction failures. A
// terminal error is delivered last, then the channel is closed. Errors are
// dropped when the buffer is full.
func (h *Handle) Errors() <-chan error {
	return h.errs
}

// Stats returns a snapshot of the session counters.
func (h *Handle) Stats() telemetry.Snapshot {
	return h.session.stats.Snapshot()
}

// Backend returns the watcher mechanism in use.
func (h *Handle) Backend() string {
	return h.watcher.Backend()
}

// Roots returns the watched roots.
func (h *Handle) Roots() []string {
	return h.session.Roots()
}

// Rescan walks the roots again and reports anything the watcher missed.
func (h *Handle) Rescan(ctx context.Context) error {
	if err := h.watcher.Rescan(ctx); err != nil {
		return err
	}
	h.session.stats.RecordRescan()
	return nil
}

// abort tears down a handle whose watcher never started. err was already
// returned to the caller, so it is not sent on Errors.
func (h *Handle) abort(err error) {
	h.aborted = true
	h.logger.Warn("watch failed to start", twerrors.LogAttrs(err)...)
	h.shutdown(nil)
}

func (h *Handle) shutdown(cause error) {
	h.once.Do(func() {
		h.stopMu.Lock()
		if h.stopCtx != nil {
			h.stopCtx()
		}
		h.stopMu.Unlock()

		if err := h.watcher.Stop(); err != nil {
			h.logger.Debug("watcher stop", slog.String("error", err.Error()))
		}
		discarded := h.debouncer.Stop()
		discarded += h.queue.close()
		h.cancel()
		h.session.stats.RecordDiscarded(discarded)

		h.errMu.Lock()
		if cause != nil {
			h.terminal = cause
			h.errs <- cause
		}
		h.closed = true
		close(h.errs)
		h.errMu.Unlock()

		if cause != nil {
			h.logger.Error("watch ended", twerrors.LogAttrs(cause)...)
		} else if !h.aborted {
			h.logger.Info("watch cancelled", slog.Int("discarded", discarded))
		}

		go func() {
			h.wg.Wait()
			close(h.done)
		}()
	})
}

// report sends a runtime error, keeping one slot free for the terminal
// error.
func (h *Handle) report(err error) {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	if h.closed || len(h.errs) >= cap(h.errs)-1 {
		return
	}
	h.errs <- err
}

// settle receives debouncer batches, filters them and queues the rest.
func (h *Handle) settle(batch []watcher.PendingChange) {
	h.session.stats.RecordSettled(len(batch))
	for _, pc := range batch {
		rel, ok := h.session.relative(pc.Path)
		if !ok || h.session.matcher.Test(rel) {
			h.session.stats.RecordIgnored()
			continue
		}
		h.queue.push(pc.Path)
	}
}

// deliver calls fn for every queued path, one at a time.
func (h *Handle) deliver(fn ReactFunc) {
	defer h.wg.Done()
	for {
		path, ok := h.queue.pop(h.ctx)
		if !ok {
			return
		}
		h.invoke(fn, path)
	}
}

func (h *Handle) invoke(fn ReactFunc, path string) {
	defer func() {
		if r := recover(); r != nil {
			h.reactFailed(path, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(h.ctx, path); err != nil {
		h.reactFailed(path, err)
		return
	}
	h.session.stats.RecordDelivered()
}

func (h *Handle) reactFailed(path string, cause error) {
	err := twerrors.ReactFailed(path, cause)
	h.session.stats.RecordReactError(err)
	h.logger.Warn("reaction failed", twerrors.LogAttrs(err)...)
	h.report(err)
}

// rescanLoop runs rescans requested by overflows, at most one per interval.
func (h *Handle) rescanLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.rescanReq:
		}

		if err := h.limiter.Wait(h.ctx); err != nil {
			return
		}
		if err := h.Rescan(h.ctx); err != nil {
			if h.ctx.Err() != nil {
				return
			}
			h.logger.Warn("rescan failed", slog.String("error", err.Error()))
		}
	}
}

func (h *Handle) requestRescan() {
	select {
	case h.rescanReq <- struct{}{}:
	default:
	}
}

// watcherSink adapts a Handle to watcher.Sink.
type watcherSink Handle

func (s *watcherSink) Observe(ev watcher.RawEvent) {
	h := (*Handle)(s)
	h.session.stats.RecordRaw()
	h.debouncer.Observe(ev.Path, ev.Timestamp)
}

// Fail runs under the watcher's lock, so a fatal error is handed to another
// goroutine to stop the watcher.
func (s *watcherSink) Fail(err error) {
	h := (*Handle)(s)
	switch {
	case twerrors.IsFatal(err):
		go h.shutdown(err)
	case twerrors.IsRetryable(err):
		h.session.stats.RecordOverflow()
		h.logger.Warn("watcher overflow, rescanning", twerrors.LogAttrs(err)...)
		h.report(err)
		h.requestRescan()
	default:
		h.logger.Warn("watcher error", twerrors.LogAttrs(err)...)
		h.report(err)
	}
}
