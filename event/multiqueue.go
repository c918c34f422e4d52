package event

import (
	"container/list"

	"github.com/google/uuid"

	"github.com/nvimrt/mqloop/internal/metrics"
)

// PutCallback is invoked on a parent queue after any descendant push. It
// must be cheap: the reference implementation uses it to wake a blocked
// reactor, and mqloop's loop package does the same (see loop.Loop).
type PutCallback func(q *MultiQueue, data any)

type nodeKind int

const (
	leafNode nodeKind = iota
	linkNode
)

// node is the internal MultiQueueItem: either a leaf carrying an Event, or
// a link pointing at the child queue whose head is the "real" event. A
// child queue never holds link nodes; only a queue acting as someone's
// parent does.
type node struct {
	kind nodeKind

	// leaf fields
	ev         Event
	parentElem *list.Element // this leaf's paired link node in the parent's list, or nil

	// link fields
	child *MultiQueue
}

// MultiQueue is an ordered FIFO of events with an optional parent link, as
// described in spec.md §4.1. It is not safe for concurrent use; the whole
// core is single-threaded by contract (spec.md §5).
type MultiQueue struct {
	parent *MultiQueue
	items  *list.List

	putCB PutCallback
	data  any

	// size is NOT a count of events reachable from this queue. It mirrors
	// the reference implementation's quirky multiqueue->size field: it is
	// incremented only by NewChild's one-time reservation and by pushes
	// performed directly on this queue, and decremented only by removes
	// performed directly on this queue (removing via a parent's link does
	// not touch the child's size, and vice versa). See DESIGN.md for the
	// resolution of spec.md §9's first Open Question — this behavior is
	// preserved deliberately, not fixed.
	size int64

	children int // number of currently-registered child queues (root only)
	freed    bool

	// name, if set via SetName, labels this queue's depth in
	// metrics.QueueDepth. Queues with no name are not sampled.
	name string

	// id identifies this queue across log lines, independent of name:
	// name is operator-chosen and reused across runs (e.g. "serve.root"),
	// while id disambiguates a specific queue instance within one process
	// lifetime. It is never attached to a metric label — doing so would
	// make metrics.QueueDepth's cardinality grow without bound.
	id string
}

// ID returns q's correlation id, for log lines that need to tie a queue's
// lifecycle together without relying on its (optional, reused) name.
func (q *MultiQueue) ID() string {
	return q.id
}

// SetName labels q for metrics.QueueDepth reporting. It has no effect on
// queue semantics.
func (q *MultiQueue) SetName(name string) {
	q.name = name
	q.reportDepth()
}

func (q *MultiQueue) reportDepth() {
	if q.name != "" {
		metrics.QueueDepth.WithLabelValues(q.name).Set(float64(q.size))
	}
}

// NewParent creates an empty root queue. putCB, if non-nil, is invoked
// after any push reaches this queue, directly or through a child.
func NewParent(putCB PutCallback, data any) *MultiQueue {
	return &MultiQueue{items: list.New(), putCB: putCB, data: data, id: uuid.NewString()}
}

// NewChild creates an empty queue linked to parent. parent must itself be
// a root queue (it is a programming error to chain children of children).
// Creating a child reserves one slot in the parent's size counter; see the
// size field's doc comment.
func NewChild(parent *MultiQueue) *MultiQueue {
	if parent == nil {
		panic("event: NewChild requires a non-nil parent")
	}
	if parent.parent != nil {
		panic("event: NewChild parent must be a root queue")
	}
	parent.size++
	parent.children++
	return &MultiQueue{parent: parent, items: list.New(), id: uuid.NewString()}
}

// Free releases q. It is a programming error to free a root queue while
// children are still registered against it, or to free a non-empty child
// queue — callers must Purge or drain a child before freeing it (the safe
// rule chosen for spec.md §9's third Open Question).
func (q *MultiQueue) Free() {
	if q.freed {
		panic("event: double free of MultiQueue")
	}
	if q.parent == nil {
		if q.children > 0 {
			panic("event: free of parent MultiQueue with live children")
		}
	} else if q.items.Len() > 0 {
		panic("event: free of non-empty child MultiQueue")
	}
	if q.parent != nil {
		q.parent.children--
	}
	q.freed = true
}

// PutEvent pushes ev at the tail of q. For a child queue this also pushes
// a paired link record onto the parent, and invokes the parent's put
// callback. For a root queue with no parent, it invokes its own callback.
func (q *MultiQueue) PutEvent(ev Event) {
	if q.freed {
		panic("event: PutEvent on freed MultiQueue")
	}
	leaf := &node{kind: leafNode, ev: ev}
	q.items.PushBack(leaf)
	q.size++
	q.reportDepth()

	if q.parent != nil {
		link := &node{kind: linkNode, child: q}
		leaf.parentElem = q.parent.items.PushBack(link)
		if q.parent.putCB != nil {
			q.parent.putCB(q.parent, q.parent.data)
		}
	} else if q.putCB != nil {
		q.putCB(q, q.data)
	}
}

// Get removes and returns the head event, or Nil if q is empty.
func (q *MultiQueue) Get() Event {
	if q.items.Len() == 0 {
		return Nil
	}
	return q.remove()
}

// remove pops the front node of q and returns its Event, maintaining the
// leaf/link cross-reference invariants described on MultiQueue.size.
func (q *MultiQueue) remove() Event {
	front := q.items.Front()
	n := front.Value.(*node)

	var ev Event
	if n.kind == linkNode {
		// Only a queue acting as a parent holds link nodes.
		child := n.child
		childFront := child.items.Front()
		childLeaf := childFront.Value.(*node)
		ev = childLeaf.ev
		child.items.Remove(childFront)
	} else {
		if n.parentElem != nil {
			q.parent.items.Remove(n.parentElem)
		}
		ev = n.ev
	}

	q.items.Remove(front)
	q.size--
	q.reportDepth()
	return ev
}

// Empty reports whether q currently holds no items. O(1).
func (q *MultiQueue) Empty() bool {
	return q.items.Len() == 0
}

// Size returns q's internal size counter. It is not a count of reachable
// events when q has children; see the size field's doc comment.
func (q *MultiQueue) Size() int64 {
	return q.size
}

// ProcessEvents drains q, synchronously dispatching each event's handler.
// Handlers may push more events onto any queue, including q itself:
// events pushed onto q during this call are processed before it returns
// (drain semantics, spec.md §8 P5).
func (q *MultiQueue) ProcessEvents() {
	for !q.Empty() {
		Dispatch(q.Get())
	}
}

// PurgeEvents drains q like ProcessEvents but without invoking handlers.
func (q *MultiQueue) PurgeEvents() {
	for !q.Empty() {
		q.Get()
	}
}

// ReplaceParent rebinds q to a new parent. q must currently be empty; this
// is a programming error otherwise.
func (q *MultiQueue) ReplaceParent(newParent *MultiQueue) {
	if !q.Empty() {
		panic("event: ReplaceParent on non-empty MultiQueue")
	}
	if q.parent != nil {
		q.parent.children--
	}
	q.parent = newParent
	if newParent != nil {
		newParent.children++
	}
}
