package watcher

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalDeliversReceivedSignalAsEvent(t *testing.T) {
	l := loop.New()
	q := event.NewParent(l.WakeupCallback(), nil)
	defer q.Free()

	var got os.Signal
	s := NewSignal(l, q, func(sig os.Signal) { got = sig }, syscall.SIGUSR1)
	l.Register(s)
	s.Start()
	defer func() {
		s.Stop()
		s.Close()
	}()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	deadline := time.Now().Add(2 * time.Second)
	for got == nil && time.Now().Before(deadline) {
		l.ProcessEvents(q, 50)
	}

	assert.Equal(t, syscall.SIGUSR1, got)
}

func TestSignalInterruptedFlagLatchesOnInterrupt(t *testing.T) {
	l := loop.New()
	q := event.NewParent(l.WakeupCallback(), nil)
	defer q.Free()

	s := NewSignal(l, q, func(sig os.Signal) {}, os.Interrupt)
	l.Register(s)
	s.Start()
	defer func() {
		s.Stop()
		s.Close()
	}()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	deadline := time.Now().Add(2 * time.Second)
	for !s.Interrupted.Load() && time.Now().Before(deadline) {
		l.ProcessEvents(q, 50)
	}

	assert.True(t, s.Interrupted.Load())
}

func TestSignalStopClosesForwardingGoroutineCleanly(t *testing.T) {
	l := loop.New()
	q := event.NewParent(l.WakeupCallback(), nil)
	defer q.Free()

	s := NewSignal(l, q, func(sig os.Signal) {}, syscall.SIGUSR2)
	l.Register(s)
	s.Start()

	s.Stop()
	s.Close()

	assert.Equal(t, Closed, s.State())
}
