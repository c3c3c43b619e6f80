// Package cache implements the content cache described in spec §3 (Cache
// entry) and §4.2: a map from blob reference (or, for newly dirty entries
// whose content hash has not been computed yet, a temporary placeholder
// key) to a cache entry carrying a value, validity/dirty flags, wait
// queues, and a last-use epoch.
package cache

import "github.com/cerc-io/kvs/internal/wait"

// Entry is one cached object. The zero value is an "incomplete" entry:
// not yet valid, with nothing queued.
type Entry struct {
	value   interface{}
	size    int
	valid   bool
	dirty   bool
	csReq   bool // content-store-requested
	lastUse int64

	waitValid    wait.Queue
	waitNotDirty wait.Queue
}

// NewIncomplete returns an entry with no value yet, awaiting a content
// load (spec §3: "valid ⇒ value is present").
func NewIncomplete() *Entry {
	return &Entry{}
}

// NewValid returns an entry that already holds value, size bytes of
// canonical encoding.
func NewValid(value interface{}, size int) *Entry {
	return &Entry{value: value, size: size, valid: true}
}

// NewDirty returns a valid, dirty entry: the "newly created" case from
// spec §3, used before the entry's final blob reference is known.
func NewDirty(value interface{}, size int) *Entry {
	return &Entry{value: value, size: size, valid: true, dirty: true}
}

// Value returns the cached value. Only meaningful when Valid() is true.
func (e *Entry) Value() interface{} { return e.value }

// Size returns the canonical-encoding size recorded for this entry.
func (e *Entry) Size() int { return e.size }

// Valid reports whether the entry holds a usable value.
func (e *Entry) Valid() bool { return e.valid }

// Dirty reports whether the entry has been modified since it was last
// flushed (spec invariant: dirty ⇒ valid).
func (e *Entry) Dirty() bool { return e.dirty }

// ContentStoreRequested reports whether a content.load/store has already
// been issued for this entry, so callers don't issue it twice while a
// request is in flight.
func (e *Entry) ContentStoreRequested() bool { return e.csReq }

// SetContentStoreRequested records that a content-store call is in flight.
func (e *Entry) SetContentStoreRequested(v bool) { e.csReq = v }

// LastUse returns the epoch at which this entry was last touched.
func (e *Entry) LastUse() int64 { return e.lastUse }

// Touch records epoch as the entry's last-use time (called by Cache.Lookup
// on a hit).
func (e *Entry) Touch(epoch int64) { e.lastUse = epoch }

// SetValue transitions an incomplete entry to valid, releasing anything
// waiting on WaitValid. size is the byte length of the entry's canonical
// encoding, used for cache size statistics.
func (e *Entry) SetValue(value interface{}, size int) {
	e.value = value
	e.size = size
	e.valid = true
	e.waitValid.RunQueue()
}

// SetDirty transitions the dirty flag. Setting it true requires the entry
// already be valid (spec invariant: dirty ⇒ valid). Setting it false
// releases anything waiting on WaitNotDirty.
func (e *Entry) SetDirty(dirty bool) error {
	if dirty && !e.valid {
		return errNotValid
	}
	e.dirty = dirty
	if !dirty {
		e.waitNotDirty.RunQueue()
	}
	return nil
}

// WaitValid queues w to be released once the entry becomes valid. If the
// entry is already valid, w is queued and released on the next RunQueue
// drain point the caller arranges; callers that need an immediate
// synchronous check should test Valid() first.
func (e *Entry) WaitValid(w *wait.Wait) {
	e.waitValid.AddQueue(w)
}

// WaitNotDirty queues w to be released once the entry becomes clean.
func (e *Entry) WaitNotDirty(w *wait.Wait) {
	e.waitNotDirty.AddQueue(w)
}

// Fail releases everything parked on WaitValid without marking the entry
// valid, used when an async content load for this entry's ref comes back
// with an error. Also clears ContentStoreRequested so a later Load
// attempt for the same ref isn't deduplicated against a load that never
// actually completed.
func (e *Entry) Fail() {
	e.csReq = false
	e.waitValid.RunQueue()
}

// FailStore releases everything parked on WaitNotDirty without clearing
// the dirty flag, used when an async content store for this entry's ref
// comes back with an error; the entry stays dirty so the write isn't
// silently lost.
func (e *Entry) FailStore() {
	e.waitNotDirty.RunQueue()
}

// Evictable reports whether the entry may be dropped from the cache (spec
// §3: not while !valid, dirty, or either wait-queue is non-empty).
func (e *Entry) Evictable() bool {
	return e.valid && !e.dirty && e.waitValid.Len() == 0 && e.waitNotDirty.Len() == 0
}

// destroyMsg purges waiters matching predicate from both of the entry's
// queues, returning the number removed.
func (e *Entry) destroyMsg(predicate func(data interface{}) bool) int {
	return e.waitValid.DestroyMsg(predicate) + e.waitNotDirty.DestroyMsg(predicate)
}
