package watcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/internal/metrics"
	"github.com/nvimrt/mqloop/internal/mlog"
	"github.com/nvimrt/mqloop/loop"
	"github.com/nvimrt/mqloop/runtime"
)

// KillTimeoutMS is the grace period a process gets to exit cleanly after
// Stop before Process escalates to SIGKILL, grounded on the reference's
// KILL_TIMEOUT_MS in event/proc.c.
const KillTimeoutMS = 2000

// ExitCallback runs once, when the supervised process has exited and all
// of its stream watchers have delivered EOF.
type ExitCallback func(status runtime.ExitStatus, userInterrupted bool)

// Process supervises a child process's stdout/stderr as Stream watchers
// plus an exit notification, per spec.md §4.5. It owns a child MultiQueue
// of its caller's queue; stdout, stderr, and the eventual exit event are
// all pushed onto that one queue, mirroring the reference implementation
// sharing a single Stream.events pointer across a process's streams.
type Process struct {
	backend runtime.Backend
	loop    *loop.Loop
	events  *event.MultiQueue
	onExit  ExitCallback

	// id correlates this watcher's log lines across its lifecycle,
	// independent of the OS pid (which isn't known until Spawn succeeds).
	id string

	stdout *Stream
	stderr *Stream

	stoppedTime atomic.Int64 // unix nano; 0 until Stop is called
	sigtermSent atomic.Bool
	exited      atomic.Bool
	stdoutDone  atomic.Bool
	stderrDone  atomic.Bool
	interrupted atomic.Bool
	killTimer   *Timer
	killTimeout time.Duration
	status      runtime.ExitStatus
	waitErr     error
}

// SetKillTimeout overrides the default KillTimeoutMS grace period. It must
// be called before Stop.
func (p *Process) SetKillTimeout(d time.Duration) {
	p.killTimeout = d
}

// NewProcess creates a Process whose events go onto a new child of parent.
// Spawn later wires backend's stdout/stderr into Stream watchers on that
// child queue and registers them with l.
func NewProcess(l *loop.Loop, parent *event.MultiQueue, backend runtime.Backend, onExit ExitCallback) *Process {
	p := &Process{
		backend:     backend,
		loop:        l,
		events:      event.NewChild(parent),
		onExit:      onExit,
		id:          uuid.NewString(),
		killTimeout: KillTimeoutMS * time.Millisecond,
	}
	return p
}

// ID returns the watcher's correlation id.
func (p *Process) ID() string { return p.id }

// Spawn starts the backend process and arms its stream watchers. On
// failure the backend is responsible for having closed its own handles.
func (p *Process) Spawn(ctx context.Context) error {
	if err := p.backend.Start(ctx); err != nil {
		return err
	}
	mlog.WithWatcher("process", p.id).Debug().Int("pid", p.backend.Pid()).Msg("process spawned")

	p.stdout = NewStream(p.loop, p.backend.Stdout(), p.events, 32*1024, func(data []byte, eof bool) {
		if eof {
			p.stdoutDone.Store(true)
			p.maybeScheduleClose()
			return
		}
		// Data delivery is the caller's concern; Process only tracks
		// EOF for exit bookkeeping. Callers that need the bytes should
		// wrap the backend's Stdout themselves before handing the
		// backend to NewProcess.
	})
	p.stderr = NewStream(p.loop, p.backend.Stderr(), p.events, 32*1024, func(data []byte, eof bool) {
		if eof {
			p.stderrDone.Store(true)
			p.maybeScheduleClose()
		}
	})

	p.loop.Register(p.stdout)
	p.loop.Register(p.stderr)
	p.stdout.Start()
	p.stderr.Start()

	go p.waitForExit()

	return nil
}

func (p *Process) waitForExit() {
	status, err := p.backend.Wait()
	p.status = status
	p.waitErr = err
	p.exited.Store(true)
	// Scheduling the close as an event (rather than acting inline from
	// this goroutine) lets any already-mailboxed stdout/stderr chunks
	// drain through Process.events before the exit notification fires,
	// exactly as the reference implementation's on_proc_exit does by
	// queuing proc_close_handles instead of closing synchronously.
	p.events.PutEvent(event.New(func(argv [event.Argc]any) {
		p.maybeScheduleClose()
	}))
}

// maybeScheduleClose fires the exit callback once stdout, stderr, and the
// OS exit have all been observed — the "process refcount hit 1" condition
// from spec.md §4.5.
func (p *Process) maybeScheduleClose() {
	if p.exited.Load() && p.stdoutDone.Load() && p.stderrDone.Load() {
		if p.killTimer != nil {
			p.killTimer.Stop()
		}
		if p.onExit != nil {
			onExit := p.onExit
			p.onExit = nil
			onExit(p.status, p.interrupted.Load())
		}
	}
}

// done reports whether the process has fully torn down: exited and both
// stream watchers have delivered EOF.
func (p *Process) done() bool {
	return p.exited.Load() && p.stdoutDone.Load() && p.stderrDone.Load()
}

// Stop issues a graceful SIGTERM and arms a KillTimeoutMS escalation
// timer. Calling it more than once, or after the process has exited, is a
// no-op.
func (p *Process) Stop() {
	if p.exited.Load() {
		return
	}
	if !p.stoppedTime.CompareAndSwap(0, time.Now().UnixNano()) {
		return
	}
	mlog.WithWatcher("process", p.id).Debug().Int("pid", p.backend.Pid()).Msg("process stop requested")
	_ = p.backend.Terminate()
	p.sigtermSent.Store(true)

	p.killTimer = NewTimer(p.loop, p.events, p.killTimeout, false, func() {
		if !p.done() {
			metrics.ProcessKillEscalationsTotal.Inc()
			_ = p.backend.Kill()
		}
	})
	p.loop.Register(p.killTimer)
	p.killTimer.Start()
}

// Wait drives loop until the process has fully exited, a Ctrl-C flag
// fires stop-then-wait escalation, or timeoutMs elapses. It returns -2 for
// user interrupt, -1 for timeout with the process still running, and the
// exit code otherwise.
func (p *Process) Wait(timeoutMs int, interruptFlag *atomic.Bool) int {
	if p.done() {
		return p.status.Code
	}

	cond := func() bool {
		if interruptFlag != nil && interruptFlag.Load() && !p.sigtermSent.Load() {
			p.interrupted.Store(true)
			p.Stop()
		}
		return p.done()
	}

	p.loop.ProcessEventsUntil(p.events, timeoutMs, cond)

	switch {
	case p.interrupted.Load():
		return -2
	case !p.done():
		return -1
	default:
		return p.status.Code
	}
}

// Events exposes the process's own queue, e.g. for a caller that wants to
// ProcessEventsUntil against a narrower condition than Wait provides.
func (p *Process) Events() *event.MultiQueue {
	return p.events
}

// Close releases the process's queue once Wait has returned a terminal
// status. Calling it before the process has exited is a programming
// error: the exit event is pushed later onto the already-freed queue, and
// PutEvent panics on a freed MultiQueue.
func (p *Process) Close() {
	if p.stdout != nil {
		_ = p.stdout.Close()
	}
	if p.stderr != nil {
		_ = p.stderr.Close()
	}
	p.events.PurgeEvents()
	p.events.Free()
}
