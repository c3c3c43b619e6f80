package lookup

import (
	"context"
	"sync/atomic"

	"github.com/cerc-io/kvs/internal/loader"
)

// stallCount and resumeCount back the lookup stall/resume counters
// service/stats.go reports (SPEC_FULL §12 stats.get payload shape); spec.md
// itself leaves the exact stats wire shape unspecified.
var stallCount, resumeCount int64

// Stats returns the cumulative number of times Run has suspended on a
// missing reference, and the number of times it has resumed after loading
// one.
func Stats() (stalls, resumes int64) {
	return atomic.LoadInt64(&stallCount), atomic.LoadInt64(&resumeCount)
}

// Run drives h to a non-Stall result without blocking: h.Resolve only
// ever touches the cache, so it's safe to call straight through, but a
// Stall result hands the missing reference to ld and returns immediately
// without calling done. ld's completion callback is guaranteed to land on
// the reactor thread (spec §5); it refreshes h's epoch and re-enters Run,
// which is the reentrant continuation protocol spec §4.3/§9 describe —
// not a loop that blocks the caller until every reference is loaded.
func Run(ctx context.Context, h *Handle, ld *loader.Loader, epoch int64, done func(Result, error)) {
	res := h.Resolve()
	if res.Kind != Stall {
		done(res, nil)
		return
	}
	atomic.AddInt64(&stallCount, 1)

	kind := loader.KindDirectory
	if res.Missingk == KindValue {
		kind = loader.KindValue
	}
	ld.Load(ctx, res.Missing, kind, epoch, func(err error) {
		if err != nil {
			done(Result{}, err)
			return
		}
		atomic.AddInt64(&resumeCount, 1)
		h.SetEpoch(epoch)
		Run(ctx, h, ld, epoch, done)
	})
}
