// Package wait implements the suspension primitive described in spec §4.1:
// a wait holds a usage count and a callback, and fires that callback exactly
// once all of the queues it has been placed on release it.
package wait

// Wait is a single suspended operation. Data is typically a saved request
// message the callback uses to resume the operation; wait itself never
// inspects it.
type Wait struct {
	count int
	cb    func(data interface{})
	data  interface{}
	fired bool
}

// Create returns a new wait with usage count 1.
func Create(cb func(data interface{}), data interface{}) *Wait {
	return &Wait{count: 1, cb: cb, data: data}
}

// Data returns the user data the wait was created with.
func (w *Wait) Data() interface{} { return w.data }

// Increment bumps the usage count; call once per additional queue the wait
// is placed on beyond the first.
func (w *Wait) Increment() { w.count++ }

// Decrement drops the usage count by one, firing the callback exactly once
// when it reaches zero.
func (w *Wait) Decrement() {
	if w.fired {
		return
	}
	w.count--
	if w.count <= 0 {
		w.fired = true
		w.cb(w.data)
	}
}

// Fired reports whether the wait's callback has already run.
func (w *Wait) Fired() bool { return w.fired }

// Queue is an ordered list of waits. A wait may sit on more than one queue
// simultaneously; each queue holds a non-owning reference and releases it
// independently via RunQueue.
type Queue struct {
	waits []*Wait
}

// Len returns the number of waits currently queued.
func (q *Queue) Len() int { return len(q.waits) }

// AddQueue appends w to the queue without changing its usage count; the
// caller is responsible for calling Increment beforehand if w is already
// queued elsewhere.
func (q *Queue) AddQueue(w *Wait) {
	q.waits = append(q.waits, w)
}

// RunQueue decrements every queued wait (firing callbacks that reach zero)
// and empties the queue.
func (q *Queue) RunQueue() {
	waits := q.waits
	q.waits = nil
	for _, w := range waits {
		w.Decrement()
	}
}

// DestroyMsg removes every wait whose saved data matches predicate and
// marks it fired, so its callback never runs. Used by disconnect/unwatch to
// purge waiters belonging to a departing client (spec §4.1, §7).
func (q *Queue) DestroyMsg(predicate func(data interface{}) bool) int {
	kept := q.waits[:0:0]
	removed := 0
	for _, w := range q.waits {
		if predicate(w.data) {
			w.fired = true // suppress any future callback firing
			removed++
			continue
		}
		kept = append(kept, w)
	}
	q.waits = kept
	return removed
}

// Each iterates the currently queued waits without removing them.
func (q *Queue) Each(fn func(w *Wait)) {
	for _, w := range q.waits {
		fn(w)
	}
}
