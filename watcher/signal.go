package watcher

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/internal/metrics"
	"github.com/nvimrt/mqloop/internal/mlog"
	"github.com/nvimrt/mqloop/loop"
)

// SignalCallback receives an OS signal delivered to the process.
type SignalCallback func(sig os.Signal)

// Signal watches os/signal.Notify and delivers each received signal as an
// Event on a bound queue, the way spec.md §4.3/§9's "Ctrl-C" cancellation
// flag is meant to be wired up: a SIGINT handler sets Interrupted and a
// cond closure reads it. Grounded on the teacher's process supervision
// using syscall.SIGTERM/SIGKILL against a live child (test/framework's
// Process.Stop/Kill), here applied to signals this process itself
// receives rather than ones it sends.
type Signal struct {
	q    *event.MultiQueue
	l    *loop.Loop
	cb   SignalCallback
	sigs []os.Signal

	// id correlates this watcher's log lines across its lifecycle.
	id string

	ch        chan os.Signal
	mailbox   chan os.Signal
	mu        sync.Mutex
	state     int32
	closeOnce sync.Once

	// Interrupted latches true the first time os.Interrupt is observed.
	// cond closures passed to loop.ProcessEventsUntil read this to
	// implement cooperative cancellation (spec.md §5).
	Interrupted atomic.Bool
}

// NewSignal builds a Signal watcher for the given signals, bound to q.
func NewSignal(l *loop.Loop, q *event.MultiQueue, cb SignalCallback, sigs ...os.Signal) *Signal {
	return &Signal{
		q:       q,
		l:       l,
		cb:      cb,
		sigs:    sigs,
		id:      uuid.NewString(),
		ch:      make(chan os.Signal, 1),
		mailbox: make(chan os.Signal, 8),
	}
}

// ID returns the watcher's correlation id.
func (s *Signal) ID() string { return s.id }

// Start registers with os/signal.Notify and begins forwarding signals.
func (s *Signal) Start() {
	atomic.StoreInt32(&s.state, int32(Active))
	metrics.WatchersActive.WithLabelValues("signal").Inc()
	mlog.WithWatcher("signal", s.id).Debug().Msg("watcher started")
	signal.Notify(s.ch, s.sigs...)
	go s.forwardLoop()
}

func (s *Signal) forwardLoop() {
	for sig := range s.ch {
		if sig == os.Interrupt {
			s.Interrupted.Store(true)
		}
		s.mailbox <- sig
		s.l.Wake()
	}
}

// Drain implements loop.Pump.
func (s *Signal) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case sig := <-s.mailbox:
			cb := s.cb
			s.q.PutEvent(event.New(func(argv [event.Argc]any) {
				cb(sig)
			}))
		default:
			return
		}
	}
}

// Stop deregisters the watcher from further OS signals. signal.Stop
// guarantees no further deliveries reach s.ch; closing it afterward is
// what lets forwardLoop's range loop return instead of parking forever.
func (s *Signal) Stop() {
	atomic.CompareAndSwapInt32(&s.state, int32(Active), int32(Stopping))
	signal.Stop(s.ch)
	s.closeOnce.Do(func() { close(s.ch) })
	mlog.WithWatcher("signal", s.id).Debug().Msg("watcher stopped")
}

// Close finishes teardown. Must follow Stop, per the two-phase contract.
func (s *Signal) Close() {
	if State(atomic.LoadInt32(&s.state)) != Closed {
		metrics.WatchersActive.WithLabelValues("signal").Dec()
	}
	atomic.StoreInt32(&s.state, int32(Closed))
	mlog.WithWatcher("signal", s.id).Debug().Msg("watcher closed")
}

// State reports the watcher's current lifecycle position.
func (s *Signal) State() State {
	return State(atomic.LoadInt32(&s.state))
}
