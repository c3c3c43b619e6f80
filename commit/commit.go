// Package commit implements the commit engine from spec §4.5: applying a
// ready fence's accumulated operation list against a cached directory tree,
// rehashing the touched subtree bottom-up, and driving the resulting cache
// entries through the content store.
package commit

import (
	"fmt"

	"github.com/cerc-io/kvs/fence"
	"github.com/cerc-io/kvs/internal/cache"
	"github.com/cerc-io/kvs/internal/kvserr"
	"github.com/cerc-io/kvs/kvsapi"
	"github.com/cerc-io/kvs/kvstree"
)

// Status is the result of one Process call (spec §4.5).
type Status int

const (
	// StatusError means Process cannot continue; Errno explains why.
	StatusError Status = iota
	// StatusLoadMissingRefs means the caller must load every reference
	// reported by IterMissingRefs into the cache, then call Process again.
	StatusLoadMissingRefs
	// StatusDirtyCacheEntries means Process produced newly dirty cache
	// entries; the caller must content.store each one reported by
	// IterDirtyCacheEntries and, once the store completes, clear the
	// entry's dirty flag, then call Process again.
	StatusDirtyCacheEntries
	// StatusFinished means the commit is fully applied; NewRootRef is the
	// new root directory reference.
	StatusFinished
)

// FlushItem is one cache entry Process needs flushed to the content store.
type FlushItem struct {
	Ref  kvstree.Ref
	Data []byte
}

// node is one directory level rewritten during a commit, kept only for the
// duration of a single Process call.
type node struct {
	content  kvstree.Directory
	children map[string]*node
	finalRef kvstree.Ref
}

func newNode(content kvstree.Directory) *node {
	return &node{content: content, children: make(map[string]*node)}
}

// Commit is a single ready fence being driven to completion. Process may be
// called repeatedly (spec §4.5: "idempotent; may be re-entered after loads
// or flushes complete"); it always recomputes from the original operation
// list and whatever the cache holds right now, so repeated calls with
// unchanged cache state yield identical results (spec §8 property 6).
type Commit struct {
	names      []string
	ops        []kvsapi.Operation
	requesters []interface{}

	cache *cache.Cache

	newRootRef kvstree.Ref
	errno      kvserr.Errno
	missing    []kvstree.Ref
	toFlush    []FlushItem
	noopStores int64
	tmpSeq     int
	flushed    map[kvstree.Ref]bool // refs this commit has sent to the content store
}

// New binds a fence.ReadyFence to the cache it will be processed against.
func New(rf *fence.ReadyFence, c *cache.Cache) *Commit {
	return &Commit{names: rf.Names, ops: rf.Ops, requesters: rf.Requesters, cache: c}
}

// Names returns the fence name(s) this commit originated from (more than
// one if fence.Table.MergeReadyCommits combined several).
func (co *Commit) Names() []string { return co.names }

// Requesters returns the opaque saved requests to respond to once the
// commit reaches StatusFinished or StatusError.
func (co *Commit) Requesters() []interface{} { return co.requesters }

// NewRootRef returns the committed root reference. Only meaningful after
// Process has returned StatusFinished.
func (co *Commit) NewRootRef() kvstree.Ref { return co.newRootRef }

// Errno explains a StatusError result.
func (co *Commit) Errno() kvserr.Errno { return co.errno }

// NoopStores returns how many of this commit's finalized directories were
// already present as valid cache entries, eliding a content.store (spec
// §4.4 "noop_stores" statistic). Accumulate this into fence.Table via
// AddNoopStores once the commit reaches StatusFinished.
func (co *Commit) NoopStores() int64 { return co.noopStores }

// IterMissingRefs calls cb once per reference Process needs loaded before
// it can make further progress. Only meaningful after StatusLoadMissingRefs.
func (co *Commit) IterMissingRefs(cb func(kvstree.Ref)) {
	for _, ref := range co.missing {
		cb(ref)
	}
}

// IterDirtyCacheEntries calls cb once per cache entry Process needs flushed
// to the content store. Only meaningful after StatusDirtyCacheEntries.
func (co *Commit) IterDirtyCacheEntries(cb func(FlushItem)) {
	for _, item := range co.toFlush {
		cb(item)
	}
}

// Process runs one round of commit processing against rootRef, the root
// directory reference in effect before this commit.
func (co *Commit) Process(epoch int64, rootRef kvstree.Ref) Status {
	co.missing = nil
	co.toFlush = nil
	co.noopStores = 0
	co.errno = kvserr.ENone

	rootEntry, hit := co.cache.Lookup(string(rootRef), epoch)
	if !hit || !rootEntry.Valid() {
		co.missing = append(co.missing, rootRef)
		return StatusLoadMissingRefs
	}
	rootDir, ok := rootEntry.Value().(kvstree.Directory)
	if !ok {
		co.errno = kvserr.EInvalid
		return StatusError
	}

	root := newNode(rootDir)

	for _, op := range co.ops {
		comps := kvstree.SplitKey(op.Key)
		if len(comps) == 0 {
			co.errno = kvserr.EInvalid
			return StatusError
		}
		create := op.Dirent != nil
		parent, ok, skip := co.walkPath(root, comps[:len(comps)-1], epoch, create)
		if skip {
			continue
		}
		if !ok {
			if co.errno != kvserr.ENone {
				return StatusError
			}
			// Blocked on a missing reference; keep walking the remaining
			// operations to collect as many missing refs as possible in
			// one LOAD_MISSING_REFS round.
			continue
		}

		last := comps[len(comps)-1]
		var newContent kvstree.Directory
		var err error
		if op.Dirent == nil {
			if _, exists := parent.content.Get(last); !exists {
				continue // delete of an already-absent key silently succeeds
			}
			newContent, err = parent.content.Delete(last)
		} else {
			newContent, err = parent.content.Set(last, *op.Dirent)
		}
		if err != nil {
			co.errno = kvserr.EInvalid
			return StatusError
		}
		parent.content = newContent
	}

	if len(co.missing) > 0 {
		return StatusLoadMissingRefs
	}

	co.finalize(root)
	if co.errno != kvserr.ENone {
		return StatusError
	}
	co.newRootRef = root.finalRef
	if len(co.toFlush) > 0 {
		return StatusDirtyCacheEntries
	}
	return StatusFinished
}

// walkPath descends comps from root, materializing (copying into a mutable
// node) each directory level an operation touches. create controls whether
// a missing intermediate directory is auto-vivified (true for a write) or
// treated as "nothing to do" (false for a delete, since deleting under a
// path that doesn't exist is always a no-op, spec §4.5).
//
// ok=false with Errno still ENone means the walk stalled on an uncached
// DIRREF (already recorded in co.missing); ok=false with Errno set means a
// hard failure (e.g. writing through a non-directory); skip=true means the
// operation is a no-op delete.
func (co *Commit) walkPath(root *node, comps []string, epoch int64, create bool) (parent *node, ok bool, skip bool) {
	cur := root
	for _, name := range comps {
		if child, exists := cur.children[name]; exists {
			cur = child
			continue
		}

		entry, exists := cur.content.Get(name)
		switch {
		case !exists:
			if !create {
				return nil, false, true
			}
			child := newNode(kvstree.Directory{})
			cur.children[name] = child
			cur = child

		case entry.Tag == kvstree.DirVal:
			child := newNode(entry.Dir)
			cur.children[name] = child
			cur = child

		case entry.Tag == kvstree.DirRef:
			e, hit := co.cache.Lookup(string(entry.Ref), epoch)
			if !hit || !e.Valid() {
				co.missing = append(co.missing, entry.Ref)
				return nil, false, false
			}
			dir, ok := e.Value().(kvstree.Directory)
			if !ok {
				co.errno = kvserr.EInvalid
				return nil, false, false
			}
			child := newNode(dir)
			cur.children[name] = child
			cur = child

		default:
			// FILEVAL / FILEREF / LINKVAL: not a directory.
			if !create {
				return nil, false, true
			}
			co.errno = kvserr.ENotDir
			return nil, false, false
		}
	}
	return cur, true, false
}

// finalize rehashes n's subtree bottom-up, rekeying each touched node's
// cache entry from its in-progress placeholder key to its final blob
// reference (spec §9 "Cache keying transition").
func (co *Commit) finalize(n *node) {
	for name, child := range n.children {
		co.finalize(child)
		if co.errno != kvserr.ENone {
			return
		}
		content, err := n.content.Set(name, kvstree.NewDirRef(child.finalRef))
		if err != nil {
			co.errno = kvserr.EInvalid
			return
		}
		n.content = content
	}

	ref, encoded, err := kvstree.HashDirectory(n.content)
	if err != nil {
		co.errno = kvserr.EInvalid
		return
	}
	n.finalRef = ref

	co.tmpSeq++
	placeholder := fmt.Sprintf("commit-tmp:%p:%d", co, co.tmpSeq)
	if err := co.cache.Insert(placeholder, cache.NewDirty(n.content, len(encoded))); err != nil {
		co.errno = kvserr.EInvalid
		return
	}

	canonical, alreadyPresent := co.cache.Rekey(placeholder, string(ref))
	switch {
	case alreadyPresent && canonical.Valid() && !canonical.Dirty():
		if !co.flushed[ref] {
			co.noopStores++
		}
	case alreadyPresent:
		// Another branch of this commit (or an earlier round) already
		// produced this exact content and it's mid-flush; ride along.
	default:
		if !canonical.ContentStoreRequested() {
			canonical.SetContentStoreRequested(true)
			if co.flushed == nil {
				co.flushed = make(map[kvstree.Ref]bool)
			}
			co.flushed[ref] = true
			co.toFlush = append(co.toFlush, FlushItem{Ref: ref, Data: encoded})
		}
	}
}
