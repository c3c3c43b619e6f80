// Package loader wires the cache's wait-queue suspension primitive (spec
// §4.1, §4.2: cache.Entry.WaitValid/WaitNotDirty) to a content.Store, so a
// stalled lookup or commit can suspend a content load or store instead of
// blocking the reactor thread on it. Load/Store hand the actual I/O to a
// caller-supplied async runner (broker.Reactor.Async in production, a
// direct call in tests) and guarantee the cache is only ever mutated back
// on the reactor thread, preserving spec §5's single-owner invariant even
// though the I/O itself runs concurrently.
package loader

import (
	"context"

	"github.com/cerc-io/kvs/content"
	"github.com/cerc-io/kvs/internal/cache"
	"github.com/cerc-io/kvs/internal/wait"
	"github.com/cerc-io/kvs/kvstree"
)

// Kind says how to decode a loaded blob.
type Kind int

const (
	KindDirectory Kind = iota
	KindValue
)

// Loader issues content loads/stores without blocking its caller.
type Loader struct {
	cache *cache.Cache
	store content.Store
	async func(work func() func())
}

// New returns a Loader. async must run work on its own goroutine and
// arrange for the continuation it returns to run back on the reactor
// thread (broker.Reactor.Async); tests that have no concurrent reactor
// thread to protect may pass a direct func(work func() func()) { work()() }.
func New(c *cache.Cache, store content.Store, async func(work func() func())) *Loader {
	return &Loader{cache: c, store: store, async: async}
}

// outcome is a mutable cell shared by every wait registered against one
// in-flight load or store, since wait.Wait's callback only carries the
// data it was created with, not a result computed later.
type outcome struct{ err error }

// Load arranges for ref to become a valid cache entry, invoking done once
// it is (on the reactor thread) or with a non-nil error if the content
// store couldn't supply it. Concurrent Load calls for the same ref
// dedupe onto a single content.Store.Load via the entry's own
// content-store-requested flag and WaitValid queue.
func (l *Loader) Load(ctx context.Context, ref kvstree.Ref, kind Kind, epoch int64, done func(error)) {
	e, hit := l.cache.Lookup(string(ref), epoch)
	if hit && e.Valid() {
		done(nil)
		return
	}
	if !hit {
		e = cache.NewIncomplete()
		_ = l.cache.Insert(string(ref), e)
	}

	out := &outcome{}
	e.WaitValid(wait.Create(func(interface{}) { done(out.err) }, nil))
	if e.ContentStoreRequested() {
		return
	}
	e.SetContentStoreRequested(true)

	l.async(func() func() {
		data, loadErr := l.store.Load(ctx, ref)
		return func() {
			if loadErr != nil {
				out.err = loadErr
				e.Fail()
				return
			}
			decoded, decodeErr := decode(kind, data)
			if decodeErr != nil {
				out.err = decodeErr
				e.Fail()
				return
			}
			e.SetValue(decoded, len(data))
		}
	})
}

func decode(kind Kind, data []byte) (interface{}, error) {
	if kind == KindDirectory {
		return kvstree.DecodeDirectory(data)
	}
	return kvstree.DecodeValue(data)
}

// Store arranges for data to be written to the content store and, if a
// cache entry already exists at ref, for it to be marked clean once the
// store completes; done runs on the reactor thread either way. Concurrent
// Store calls for an already-dirty ref share completion via the entry's
// WaitNotDirty queue (each still issues its own content.Store.Store call,
// since Store is expected to be idempotent for identical content-addressed
// data — this trades a little redundant I/O for not needing a second
// dedup flag alongside finalize's own use of content-store-requested).
func (l *Loader) Store(ctx context.Context, epoch int64, ref kvstree.Ref, data []byte, done func(error)) {
	e, hit := l.cache.Lookup(string(ref), epoch)
	if hit && !e.Dirty() {
		done(nil)
		return
	}

	out := &outcome{}
	if hit {
		e.WaitNotDirty(wait.Create(func(interface{}) { done(out.err) }, nil))
	}

	l.async(func() func() {
		_, storeErr := l.store.Store(ctx, data)
		return func() {
			if storeErr != nil {
				out.err = storeErr
				if hit {
					e.FailStore()
				} else {
					done(storeErr)
				}
				return
			}
			if hit {
				_ = e.SetDirty(false)
				return
			}
			done(nil)
		}
	})
}
