package event

// onceEnvelope is the payload pushed onto every queue a one-shot event was
// multicast to. At most one of the copies fires its inner event: the first
// one dispatched. Copies dispatched after it observe fired==true and become
// no-ops; purged copies are dropped without running the dispatcher, so
// refcount only counts down on dispatch. Grounded on the reference
// implementation's MulticastEvent (event/multiqueue.c).
type onceEnvelope struct {
	inner    Event
	fired    bool
	refcount int
}

// CreateOneshot wraps inner in an event that may be pushed onto n distinct
// queues but whose handler runs at most once, whichever copy is dispatched
// first. There is no manual refcounted free: once the last copy has been
// dispatched or purged, nothing references the envelope and Go's garbage
// collector reclaims it.
func CreateOneshot(inner Event, n int) Event {
	if n < 1 {
		panic("event: CreateOneshot requires n >= 1")
	}
	env := &onceEnvelope{inner: inner, refcount: n}
	return New(dispatchOneshot, env)
}

func dispatchOneshot(argv [Argc]any) {
	env := argv[0].(*onceEnvelope)
	if !env.fired {
		env.fired = true
		Dispatch(env.inner)
	}
	env.refcount--
}
