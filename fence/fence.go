// Package fence implements the fence aggregator / commit manager described
// in spec §4.4: collecting the N expected participant submissions of a
// named fence into a single ready-to-commit record.
package fence

import "github.com/cerc-io/kvs/kvsapi"

// Info is the bookkeeping the Table keeps for a fence from its first
// arrival until the corresponding setroot/error event is observed and it
// is removed (spec §3 "Fence" lifecycle).
type Info struct {
	Name     string
	Expected int
	Observed int
	NoMerge  bool
	enqueued bool

	ops        []kvsapi.Operation
	requesters []interface{}
}

// ReadyFence is the record handed to the commit engine once a fence's
// expected participant count is reached (spec §4.4 "move to the ready
// list"). A merged commit (see Table.MergeReadyCommits) carries more than
// one name.
type ReadyFence struct {
	Names      []string
	Ops        []kvsapi.Operation
	Requesters []interface{}
	NoMerge    bool
}

// Table is the per-rank fence table plus ready-commit list (root only
// processes fences to readiness; replicas just forward via relayfence).
type Table struct {
	fences      map[string]*Info
	ready       []*ReadyFence
	commitMerge bool
	noopStores  int64
}

// NewTable returns an empty fence table. commitMerge controls whether
// MergeReadyCommits is permitted to combine ready commits (module option
// commit-merge, spec §6).
func NewTable(commitMerge bool) *Table {
	return &Table{fences: make(map[string]*Info), commitMerge: commitMerge}
}

// LookupFence returns the bookkeeping record for name, if any.
func (t *Table) LookupFence(name string) (*Info, bool) {
	info, ok := t.fences[name]
	return info, ok
}

// RemoveFence drops the bookkeeping record for name. Called once the
// corresponding setroot or error event has been observed and all
// requesters have been responded to (spec §3, §4.6).
func (t *Table) RemoveFence(name string) {
	delete(t.fences, name)
}

// Submit aggregates one arrival of the named fence: nprocs is the expected
// participant count (must agree with any previous arrival), ops is this
// arrival's operation list, requester is an opaque saved request (nil for
// relayfence, which does not copy a requester, spec §4.6), and noMerge
// marks the fence as excluded from MergeReadyCommits.
//
// Submit is idempotent once the fence has become ready: a late or
// duplicate arrival for an already-ready fence is observed (to keep
// Observed/requester bookkeeping consistent for stats) but does not
// enqueue a second ready commit.
func (t *Table) Submit(name string, nprocs int, ops []kvsapi.Operation, requester interface{}, noMerge bool) (ready *ReadyFence, becameReady bool, err error) {
	info, ok := t.fences[name]
	if !ok {
		info = &Info{Name: name, Expected: nprocs}
		t.fences[name] = info
	} else if info.Expected != nprocs {
		return nil, false, errMismatchedNprocs
	}
	info.Observed++
	info.NoMerge = info.NoMerge || noMerge

	if info.enqueued {
		return nil, false, nil
	}
	info.ops = append(info.ops, ops...)
	if requester != nil {
		info.requesters = append(info.requesters, requester)
	}
	if info.Observed < info.Expected {
		return nil, false, nil
	}

	rf := &ReadyFence{Names: []string{name}, NoMerge: info.NoMerge, Ops: info.ops, Requesters: info.requesters}
	info.enqueued = true
	t.ready = append(t.ready, rf)
	return rf, true, nil
}

// CommitsReady reports whether at least one ready commit is queued.
func (t *Table) CommitsReady() bool { return len(t.ready) > 0 }

// GetReadyCommit pops one ready commit (FIFO), if any.
func (t *Table) GetReadyCommit() (*ReadyFence, bool) {
	if len(t.ready) == 0 {
		return nil, false
	}
	rf := t.ready[0]
	t.ready = t.ready[1:]
	return rf, true
}

// MergeReadyCommits combines every currently queued mergeable ready commit
// (NoMerge == false) into a single commit, preserving relative queue order
// in the concatenated operation list (spec §5: merging must not reorder
// operations within a fence), provided commit-merge is enabled and there
// are at least two mergeable commits to combine. It is always optional:
// callers that never invoke it still get correct (just less batched)
// behavior.
func (t *Table) MergeReadyCommits() {
	if !t.commitMerge || len(t.ready) < 2 {
		return
	}
	var mergeable, excluded []*ReadyFence
	for _, rf := range t.ready {
		if rf.NoMerge {
			excluded = append(excluded, rf)
		} else {
			mergeable = append(mergeable, rf)
		}
	}
	if len(mergeable) < 2 {
		return
	}
	merged := &ReadyFence{}
	for _, rf := range mergeable {
		merged.Names = append(merged.Names, rf.Names...)
		merged.Ops = append(merged.Ops, rf.Ops...)
		merged.Requesters = append(merged.Requesters, rf.Requesters...)
	}
	t.ready = append([]*ReadyFence{merged}, excluded...)
}

// AddNoopStores accumulates the noop_stores statistic (spec §4.4): commits
// produced by the commit engine that elided a content.store because the
// produced blob was already a valid cache entry.
func (t *Table) AddNoopStores(n int64) { t.noopStores += n }

// NoopStores returns the running noop_stores count.
func (t *Table) NoopStores() int64 { return t.noopStores }

// ResetNoopStores zeroes the noop_stores counter (service stats.clear,
// SPEC_FULL §12).
func (t *Table) ResetNoopStores() { t.noopStores = 0 }
