package watcher

import (
	"testing"
	"time"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/loop"
	"github.com/stretchr/testify/assert"
)

func TestTimerOneShotFiresOnce(t *testing.T) {
	l := loop.New()
	q := event.NewParent(l.WakeupCallback(), nil)
	defer q.Free()

	fires := 0
	tm := NewTimer(l, q, 20*time.Millisecond, false, func() { fires++ })
	l.Register(tm)
	tm.Start()

	l.ProcessEventsUntil(q, 500, func() bool { return fires > 0 })
	// A further short wait should not produce a second fire.
	l.ProcessEventsUntil(q, 100, func() bool { return false })

	assert.Equal(t, 1, fires)
}

func TestTimerRepeatingFiresMultipleTimes(t *testing.T) {
	l := loop.New()
	q := event.NewParent(l.WakeupCallback(), nil)
	defer q.Free()

	fires := 0
	tm := NewTimer(l, q, 15*time.Millisecond, true, func() { fires++ })
	l.Register(tm)
	tm.Start()

	l.ProcessEventsUntil(q, 2000, func() bool { return fires >= 3 })
	tm.Stop()

	assert.GreaterOrEqual(t, fires, 3)
}
