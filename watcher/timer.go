package watcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/internal/metrics"
	"github.com/nvimrt/mqloop/internal/mlog"
	"github.com/nvimrt/mqloop/loop"
)

// TimerCallback runs when a Timer fires.
type TimerCallback func()

// Timer delivers one-shot or repeating ticks as Events on a bound queue,
// grounded on the teacher's ticker-driven reconciler/scheduler/health
// monitor loops (time.NewTicker + select), but expressed as a source that
// pushes onto a MultiQueue instead of inlining the select.
type Timer struct {
	q        *event.MultiQueue
	l        *loop.Loop
	cb       TimerCallback
	interval time.Duration
	repeat   bool

	// id correlates this watcher's log lines across its lifecycle.
	id string

	t       *time.Timer
	tk      *time.Ticker
	mailbox chan struct{}
	stopCh  chan struct{}
	mu      sync.Mutex
	state   int32
}

// NewTimer builds a Timer bound to q. If repeat is false it fires once
// after interval; otherwise it fires every interval until Stop.
func NewTimer(l *loop.Loop, q *event.MultiQueue, interval time.Duration, repeat bool, cb TimerCallback) *Timer {
	return &Timer{
		q:        q,
		l:        l,
		cb:       cb,
		interval: interval,
		repeat:   repeat,
		id:       uuid.NewString(),
		mailbox:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// ID returns the watcher's correlation id.
func (tm *Timer) ID() string { return tm.id }

// Start arms the timer and begins forwarding ticks.
func (tm *Timer) Start() {
	atomic.StoreInt32(&tm.state, int32(Active))
	metrics.WatchersActive.WithLabelValues("timer").Inc()
	mlog.WithWatcher("timer", tm.id).Debug().Msg("watcher started")
	if tm.repeat {
		tm.tk = time.NewTicker(tm.interval)
		go tm.forwardTicker()
	} else {
		tm.t = time.NewTimer(tm.interval)
		go tm.forwardOnce()
	}
}

func (tm *Timer) forwardOnce() {
	select {
	case <-tm.t.C:
		select {
		case tm.mailbox <- struct{}{}:
			tm.l.Wake()
		default:
		}
	case <-tm.stopCh:
	}
}

func (tm *Timer) forwardTicker() {
	for {
		select {
		case <-tm.tk.C:
			select {
			case tm.mailbox <- struct{}{}:
				tm.l.Wake()
			default:
			}
		case <-tm.stopCh:
			return
		}
	}
}

// Drain implements loop.Pump.
func (tm *Timer) Drain() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	select {
	case <-tm.mailbox:
		cb := tm.cb
		tm.q.PutEvent(event.New(func(argv [event.Argc]any) { cb() }))
	default:
	}
}

// Stop deregisters the timer; an in-flight tick already mailboxed is still
// delivered on the next Drain.
func (tm *Timer) Stop() {
	if atomic.CompareAndSwapInt32(&tm.state, int32(Active), int32(Stopping)) {
		close(tm.stopCh)
		if tm.t != nil {
			tm.t.Stop()
		}
		if tm.tk != nil {
			tm.tk.Stop()
		}
	}
}

// Close completes teardown. Must follow Stop.
func (tm *Timer) Close() {
	if State(atomic.LoadInt32(&tm.state)) != Closed {
		metrics.WatchersActive.WithLabelValues("timer").Dec()
	}
	atomic.StoreInt32(&tm.state, int32(Closed))
	mlog.WithWatcher("timer", tm.id).Debug().Msg("watcher closed")
}

// State reports the watcher's current lifecycle position.
func (tm *Timer) State() State {
	return State(atomic.LoadInt32(&tm.state))
}
