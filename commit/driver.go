package commit

import (
	"context"

	"github.com/cerc-io/kvs/internal/loader"
	"github.com/cerc-io/kvs/kvstree"
)

// fanIn calls done once every one of n outstanding async calls has
// completed, passing the first error seen (nil if none failed). Safe without a
// mutex: every completion callback it produces only ever runs on the
// reactor thread (ld's contract), so there is no concurrent access to
// fanIn's own state even though the underlying I/O runs on other
// goroutines.
type fanIn struct {
	remaining int
	err       error
	done      func(error)
	fired     bool
}

func newFanIn(n int, done func(error)) *fanIn {
	f := &fanIn{remaining: n, done: done}
	if n == 0 {
		f.fire()
	}
	return f
}

func (f *fanIn) fire() {
	if f.fired {
		return
	}
	f.fired = true
	f.done(f.err)
}

func (f *fanIn) complete(err error) {
	if f.fired {
		return
	}
	if err != nil && f.err == nil {
		f.err = err
	}
	f.remaining--
	if f.remaining <= 0 {
		f.fire()
	}
}

// Run drives co to StatusFinished or StatusError without blocking:
// Process only ever touches the cache, so it's safe to call straight
// through, but a StatusLoadMissingRefs or StatusDirtyCacheEntries result
// hands its whole batch of refs/flush items to ld and returns immediately
// without calling done. Once every item in the batch has landed back on
// the reactor thread (ld's contract, spec §5), Run re-enters Process —
// the reentrant load/flush/re-entry protocol spec §4.5 describes, not a
// loop that blocks the caller for the whole round.
func Run(ctx context.Context, co *Commit, ld *loader.Loader, epoch int64, rootRef kvstree.Ref, done func(Status, error)) {
	switch status := co.Process(epoch, rootRef); status {
	case StatusLoadMissingRefs:
		var refs []kvstree.Ref
		co.IterMissingRefs(func(ref kvstree.Ref) { refs = append(refs, ref) })
		f := newFanIn(len(refs), func(err error) {
			if err != nil {
				done(StatusError, err)
				return
			}
			Run(ctx, co, ld, epoch, rootRef, done)
		})
		for _, ref := range refs {
			ld.Load(ctx, ref, loader.KindDirectory, epoch, f.complete)
		}

	case StatusDirtyCacheEntries:
		var items []FlushItem
		co.IterDirtyCacheEntries(func(item FlushItem) { items = append(items, item) })
		f := newFanIn(len(items), func(err error) {
			if err != nil {
				done(StatusError, err)
				return
			}
			Run(ctx, co, ld, epoch, rootRef, done)
		})
		for _, item := range items {
			ld.Store(ctx, epoch, item.Ref, item.Data, f.complete)
		}

	default:
		done(status, nil)
	}
}
