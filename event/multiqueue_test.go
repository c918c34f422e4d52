package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingHandler(out *[]int, v int) Handler {
	return func(argv [Argc]any) {
		*out = append(*out, v)
	}
}

// TestMultiQueueFIFO covers S1: events pushed onto a plain queue are
// dispatched in push order, and the queue is empty afterward.
func TestMultiQueueFIFO(t *testing.T) {
	q := NewParent(nil, nil)
	defer q.Free()

	var got []int
	q.PutEvent(New(recordingHandler(&got, 1)))
	q.PutEvent(New(recordingHandler(&got, 2)))
	q.PutEvent(New(recordingHandler(&got, 3)))

	q.ProcessEvents()

	assert.Equal(t, []int{1, 2, 3}, got)
	assert.True(t, q.Empty())
}

// TestNewChildReservesParentSize covers S1's size assertion: creating a
// child reserves exactly one slot in the parent's size counter, before any
// event has been pushed.
func TestNewChildReservesParentSize(t *testing.T) {
	p := NewParent(nil, nil)
	c := NewChild(p)

	assert.Equal(t, int64(0), c.Size())
	assert.Equal(t, int64(1), p.Size())

	got := 0
	c.PutEvent(New(func(argv [Argc]any) { got++ }))
	c.PutEvent(New(func(argv [Argc]any) { got++ }))
	c.PutEvent(New(func(argv [Argc]any) { got++ }))
	c.ProcessEvents()

	assert.Equal(t, 3, got)
	assert.True(t, c.Empty())
	assert.Equal(t, int64(0), c.Size())
	// p's reservation from NewChild is untouched by c's own traffic.
	assert.Equal(t, int64(1), p.Size())

	c.Free()
}

// TestParentDrainsChildInOrder covers S2: draining the parent consumes
// events pushed onto its child, in push order, and leaves no link records
// behind in the parent once the child is empty.
func TestParentDrainsChildInOrder(t *testing.T) {
	p := NewParent(nil, nil)
	c := NewChild(p)

	var got []int
	c.PutEvent(New(recordingHandler(&got, 1)))
	c.PutEvent(New(recordingHandler(&got, 2)))
	c.PutEvent(New(recordingHandler(&got, 3)))

	require.False(t, p.Empty())

	Dispatch(p.Get())
	Dispatch(p.Get())
	Dispatch(p.Get())

	assert.Equal(t, []int{1, 2, 3}, got)
	assert.True(t, c.Empty())
	assert.True(t, p.Empty())

	c.Free()
}

// TestPutCallbackFiresOnChildPush verifies a parent's PutCallback is
// invoked whenever a child (or the parent itself) receives a push — the
// hook loop.Loop relies on to wake a blocked poll.
func TestPutCallbackFiresOnChildPush(t *testing.T) {
	wakes := 0
	p := NewParent(func(q *MultiQueue, data any) { wakes++ }, nil)
	c := NewChild(p)

	c.PutEvent(New(func(argv [Argc]any) {}))
	c.PutEvent(New(func(argv [Argc]any) {}))

	assert.Equal(t, 2, wakes)

	p.PurgeEvents()
	c.Free()
}

// TestProcessEventsIsReentrant covers P5: a handler that pushes a new
// event onto the queue being drained sees that event processed before
// ProcessEvents returns.
func TestProcessEventsIsReentrant(t *testing.T) {
	q := NewParent(nil, nil)
	defer q.Free()

	var got []int
	var second Handler = func(argv [Argc]any) {
		got = append(got, 2)
	}
	var first Handler
	first = func(argv [Argc]any) {
		got = append(got, 1)
		q.PutEvent(New(second))
	}
	q.PutEvent(New(first))

	q.ProcessEvents()

	assert.Equal(t, []int{1, 2}, got)
}

// TestPurgeEventsSkipsHandlers drains without dispatching.
func TestPurgeEventsSkipsHandlers(t *testing.T) {
	q := NewParent(nil, nil)
	defer q.Free()

	fired := false
	q.PutEvent(New(func(argv [Argc]any) { fired = true }))

	q.PurgeEvents()

	assert.False(t, fired)
	assert.True(t, q.Empty())
}

// TestGetOnEmptyQueueReturnsNil covers the empty-queue Get contract.
func TestGetOnEmptyQueueReturnsNil(t *testing.T) {
	q := NewParent(nil, nil)
	defer q.Free()

	ev := q.Get()
	assert.True(t, ev.IsNil())
}

// TestFreeNonEmptyChildPanics covers the safe-free rule chosen for the
// "free a non-empty child" Open Question: callers must drain first.
func TestFreeNonEmptyChildPanics(t *testing.T) {
	p := NewParent(nil, nil)
	c := NewChild(p)
	c.PutEvent(New(func(argv [Argc]any) {}))

	assert.Panics(t, func() { c.Free() })

	c.PurgeEvents()
	c.Free()
}

// TestFreeParentWithLiveChildrenPanics covers the "free a parent with
// registered children" invariant from the data model.
func TestFreeParentWithLiveChildrenPanics(t *testing.T) {
	p := NewParent(nil, nil)
	c := NewChild(p)

	assert.Panics(t, func() { p.Free() })

	c.Free()
	p.Free()
}

// TestNewChildRejectsGrandchild covers the "a child's parent must be a
// root queue" invariant — no chaining children of children.
func TestNewChildRejectsGrandchild(t *testing.T) {
	p := NewParent(nil, nil)
	c := NewChild(p)

	assert.Panics(t, func() { NewChild(c) })

	c.Free()
	p.Free()
}

// TestReplaceParentRequiresEmpty covers ReplaceParent's precondition.
func TestReplaceParentRequiresEmpty(t *testing.T) {
	p1 := NewParent(nil, nil)
	c := NewChild(p1)
	c.PutEvent(New(func(argv [Argc]any) {}))

	assert.Panics(t, func() { c.ReplaceParent(nil) })

	c.PurgeEvents()

	p2 := NewParent(nil, nil)
	c.ReplaceParent(p2)

	assert.Equal(t, 0, p1.children)
	assert.Equal(t, 1, p2.children)

	c.Free()
	p1.Free()
	p2.Free()
}

// TestMultipleChildrenInterleaveByPushOrder covers P2: several children of
// the same parent interleave in the parent in the order their leaves were
// pushed, regardless of which child they came from.
func TestMultipleChildrenInterleaveByPushOrder(t *testing.T) {
	p := NewParent(nil, nil)
	c1 := NewChild(p)
	c2 := NewChild(p)

	var got []int
	c1.PutEvent(New(recordingHandler(&got, 1)))
	c2.PutEvent(New(recordingHandler(&got, 2)))
	c1.PutEvent(New(recordingHandler(&got, 3)))

	p.ProcessEvents()

	assert.Equal(t, []int{1, 2, 3}, got)
	assert.True(t, c1.Empty())
	assert.True(t, c2.Empty())

	c1.Free()
	c2.Free()
}
