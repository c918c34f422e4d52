package watcher

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/loop"
	"github.com/nvimrt/mqloop/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProcessExitsCleanly covers the happy path of spec.md §4.5: a
// process that exits on its own is observed exactly once, after its
// streams have drained.
func TestProcessExitsCleanly(t *testing.T) {
	l := loop.New()
	root := event.NewParent(l.WakeupCallback(), nil)
	defer root.Free()

	backend := runtime.NewExecBackend("sh", "-c", "echo hi; exit 0")
	var status runtime.ExitStatus
	done := false
	p := NewProcess(l, root, backend, func(st runtime.ExitStatus, interrupted bool) {
		status = st
		done = true
	})

	require.NoError(t, p.Spawn(context.Background()))

	code := p.Wait(5000, nil)

	assert.Equal(t, 0, code)
	assert.True(t, done)
	assert.Equal(t, 0, status.Code)

	p.Close()
}

// TestProcessStopEscalatesToSigkill covers P7/S6: a process that ignores
// SIGTERM is killed via SIGKILL once KillTimeoutMS has elapsed, and Wait
// returns within KillTimeoutMS plus a small margin of the Stop call.
func TestProcessStopEscalatesToSigkill(t *testing.T) {
	l := loop.New()
	root := event.NewParent(l.WakeupCallback(), nil)
	defer root.Free()

	backend := runtime.NewExecBackend("sh", "-c", "trap '' TERM; sleep 30")
	p := NewProcess(l, root, backend, nil)
	require.NoError(t, p.Spawn(context.Background()))

	// Give the shell a moment to install its trap before signaling it.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	p.Stop()
	code := p.Wait(10000, nil)
	elapsed := time.Since(start)

	assert.Equal(t, 128+int(syscall.SIGKILL), code, "killed process should report 128+signal, not time out as -1")
	assert.Less(t, elapsed, (KillTimeoutMS+2000)*time.Millisecond)

	p.Close()
}

// TestProcessWaitHonorsInterruptFlag covers the Ctrl-C path: a live
// process under an interrupt flag is stopped and Wait reports -2.
func TestProcessWaitHonorsInterruptFlag(t *testing.T) {
	l := loop.New()
	root := event.NewParent(l.WakeupCallback(), nil)
	defer root.Free()

	backend := runtime.NewExecBackend("sh", "-c", "sleep 30")
	p := NewProcess(l, root, backend, nil)
	require.NoError(t, p.Spawn(context.Background()))

	var interrupted atomic.Bool
	go func() {
		time.Sleep(50 * time.Millisecond)
		interrupted.Store(true)
		l.Wake()
	}()

	code := p.Wait(10000, &interrupted)

	assert.Equal(t, -2, code)

	p.Close()
}
