package watcher

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/internal/metrics"
	"github.com/nvimrt/mqloop/internal/mlog"
	"github.com/nvimrt/mqloop/loop"
)

// ReadCallback receives a chunk read from a Stream. eof is true exactly
// once, on the final call, and data is always empty on that call: bytes
// returned together with io.EOF arrive in the call before it.
type ReadCallback func(data []byte, eof bool)

// chunk is one outstanding read, mailboxed from the reader goroutine to
// the reactor goroutine.
type chunk struct {
	data []byte
	eof  bool
}

// Stream watches an io.ReadCloser and delivers its bytes as Events on a
// bound MultiQueue, one read at a time — the "ring buffer sized so at
// most one outstanding read is in flight" from spec.md §4.4. The mailbox
// channel's capacity of one *is* that ring buffer: at most one chunk waits
// undrained, and the reader goroutine blocks handing over its next chunk
// until the reactor has drained the current one.
type Stream struct {
	r   io.ReadCloser
	q   *event.MultiQueue
	l   *loop.Loop
	cb  ReadCallback
	buf int

	// id correlates this watcher's log lines across its lifecycle.
	id string

	state   int32 // State, accessed via atomic load/store
	mailbox chan chunk
	eofSent bool
	mu      sync.Mutex
}

// NewStream builds a Stream bound to q. bufSize is the maximum chunk size
// read at a time. The stream starts Inactive; call Start to register it.
// l is woken every time a chunk is mailboxed, so a Poll blocked on I/O
// notices new data even though the Stream never calls q.PutEvent itself.
func NewStream(l *loop.Loop, r io.ReadCloser, q *event.MultiQueue, bufSize int, cb ReadCallback) *Stream {
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}
	return &Stream{
		r:       r,
		q:       q,
		l:       l,
		cb:      cb,
		buf:     bufSize,
		id:      uuid.NewString(),
		mailbox: make(chan chunk, 1),
	}
}

// ID returns the watcher's correlation id.
func (s *Stream) ID() string { return s.id }

// Start registers the stream and begins reading on a background
// goroutine. Call loop.(*Loop).Register(s) beforehand so Drain is pumped.
func (s *Stream) Start() {
	atomic.StoreInt32(&s.state, int32(Active))
	metrics.WatchersActive.WithLabelValues("stream").Inc()
	mlog.WithWatcher("stream", s.id).Debug().Msg("watcher started")
	go s.readLoop()
}

func (s *Stream) readLoop() {
	b := make([]byte, s.buf)
	for {
		n, err := s.r.Read(b)
		if n > 0 {
			data := make([]byte, n)
			copy(data, b[:n])
			s.mailbox <- chunk{data: data}
			s.l.Wake()
		}
		if err != nil {
			s.mailbox <- chunk{eof: true}
			s.l.Wake()
			return
		}
	}
}

// Drain implements loop.Pump: it flushes any mailboxed chunks onto the
// bound queue as Events, from whichever goroutine calls it (expected to
// be the reactor goroutine driving the owning loop.Loop).
func (s *Stream) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eofSent {
		return
	}
	for {
		select {
		case c := <-s.mailbox:
			if c.eof {
				s.eofSent = true
				atomic.StoreInt32(&s.state, int32(Stopping))
				s.pushEvent(nil, true)
				return
			}
			s.pushEvent(c.data, false)
		default:
			return
		}
	}
}

func (s *Stream) pushEvent(data []byte, eof bool) {
	cb := s.cb
	s.q.PutEvent(event.New(func(argv [event.Argc]any) {
		cb(data, eof)
	}))
}

// Stop deregisters the stream. It is safe to call even if the reader
// goroutine is blocked in Read; the underlying reader should be closed by
// the caller (via Close) to unblock it.
func (s *Stream) Stop() {
	atomic.CompareAndSwapInt32(&s.state, int32(Active), int32(Stopping))
}

// Close requests the reactor close the underlying handle. Per spec.md
// §4.4's two-phase teardown, this must only be called after Stop, and the
// watcher must not be reused afterward.
func (s *Stream) Close() error {
	if State(atomic.LoadInt32(&s.state)) != Closed {
		metrics.WatchersActive.WithLabelValues("stream").Dec()
	}
	atomic.StoreInt32(&s.state, int32(Closed))
	mlog.WithWatcher("stream", s.id).Debug().Msg("watcher closed")
	return s.r.Close()
}

// State reports the watcher's current lifecycle position.
func (s *Stream) State() State {
	return State(atomic.LoadInt32(&s.state))
}
