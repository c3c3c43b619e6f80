// Package lookup implements the lookup engine from spec §4.3: resolving a
// hierarchical key against a cached, content-addressed directory tree,
// suspending (stalling) when a required blob is not yet cached and
// resuming from saved position when the caller re-invokes Resolve after
// loading it.
package lookup

import (
	"github.com/cerc-io/kvs/internal/cache"
	"github.com/cerc-io/kvs/internal/kvserr"
	"github.com/cerc-io/kvs/kvsapi"
	"github.com/cerc-io/kvs/kvstree"
)

// DefaultLinkFollowLimit is the recommended symlink follow limit (spec §6).
const DefaultLinkFollowLimit = 8

// Kind says what sort of blob a stalled Handle is waiting on, so the
// caller knows how to decode the bytes content.Load eventually returns.
type Kind int

const (
	// KindDirectory means the missing blob decodes via kvstree.DecodeDirectory.
	KindDirectory Kind = iota
	// KindValue means the missing blob decodes via kvstree.DecodeValue.
	KindValue
)

// ResultKind identifies which of the four §4.3 result states Resolve
// returned.
type ResultKind int

const (
	Found ResultKind = iota
	NotFound
	ErrorResult
	Stall
)

// Result is the outcome of a (possibly resumed) Resolve call.
type Result struct {
	Kind     ResultKind
	Value    interface{}    // Found
	RootUsed kvstree.Dirent // the root dirent actually used to resolve
	Errno    kvserr.Errno   // ErrorResult
	Missing  kvstree.Ref    // Stall
	Missingk Kind           // Stall: how to decode the loaded blob
}

// Handle is a re-entrant lookup in progress. Create one with New, call
// Resolve; on a Stall result, arrange for the missing reference to be
// loaded into the cache, refresh the epoch with SetEpoch, and call Resolve
// again — the walk resumes from its saved position (spec §4.3, §9
// "Reentrant continuations").
type Handle struct {
	cache   *cache.Cache
	epoch   int64
	flags   kvsapi.Flags
	maxLink int

	rootDirent kvstree.Dirent // where a symlink restart returns to
	rootUsed   kvstree.Dirent // echoed back to the caller on Found/NotFound

	cur      kvstree.Dirent // directory dirent currently being resolved
	walkPath []string
	pos      int
	follows  int

	missing  kvstree.Ref
	missingk Kind
}

// New creates a lookup handle. rootRef is the authoritative root directory
// reference; override, if non-nil, replaces it as the starting point (a
// client-pinned root-dirent, spec §4.6 get/watch decode).
func New(c *cache.Cache, epoch int64, rootRef kvstree.Ref, override *kvstree.Dirent, key string, flags kvsapi.Flags) *Handle {
	start := kvstree.NewDirRef(rootRef)
	if override != nil {
		start = *override
	}
	return &Handle{
		cache:      c,
		epoch:      epoch,
		flags:      flags,
		maxLink:    DefaultLinkFollowLimit,
		rootDirent: start,
		rootUsed:   start,
		cur:        start,
		walkPath:   kvstree.SplitKey(key),
	}
}

// SetMaxLinkFollow overrides DefaultLinkFollowLimit (spec §6, recommended 8).
func (h *Handle) SetMaxLinkFollow(n int) { h.maxLink = n }

// SetEpoch refreshes the handle's epoch before a resumed Resolve call
// (spec §4.3: "Re-entries must refresh the engine's current epoch").
func (h *Handle) SetEpoch(epoch int64) { h.epoch = epoch }

// Missing returns the blob reference a Stall result is waiting on.
func (h *Handle) Missing() kvstree.Ref { return h.missing }

// MissingKind returns how to decode the blob Missing refers to.
func (h *Handle) MissingKind() Kind { return h.missingk }

// Resolve runs (or resumes) the walk until it finds a terminal value,
// determines the key doesn't exist, hits an error, or stalls on a missing
// reference.
func (h *Handle) Resolve() Result {
	for {
		dir, ok := h.resolveDirectory(h.cur)
		if !ok {
			return Result{Kind: Stall, Missing: h.missing, Missingk: h.missingk}
		}

		if h.pos >= len(h.walkPath) {
			return h.finalizeDirectory(dir)
		}

		name := h.walkPath[h.pos]
		entry, exists := dir.Get(name)
		if !exists {
			return Result{Kind: NotFound, RootUsed: h.rootUsed}
		}

		last := h.pos == len(h.walkPath)-1

		switch entry.Tag {
		case kvstree.DirVal, kvstree.DirRef:
			h.cur = entry
			h.pos++

		case kvstree.LinkVal:
			if last && h.flags.Has(kvsapi.ReadLink) {
				return Result{Kind: Found, Value: entry.Link, RootUsed: h.rootUsed}
			}
			h.follows++
			if h.follows > h.maxLink {
				return Result{Kind: ErrorResult, Errno: kvserr.ELoop, RootUsed: h.rootUsed}
			}
			h.walkPath = kvstree.SplitKey(entry.Link)
			h.pos = 0
			h.cur = h.rootDirent

		case kvstree.FileVal, kvstree.FileRef:
			if !last {
				return Result{Kind: ErrorResult, Errno: kvserr.ENotDir, RootUsed: h.rootUsed}
			}
			return h.finalizeFile(entry)

		default:
			return Result{Kind: ErrorResult, Errno: kvserr.EInvalid, RootUsed: h.rootUsed}
		}
	}
}

// resolveDirectory resolves d to its Directory content, consulting the
// cache for DIRREF entries and recording a stall if the blob isn't cached
// yet.
func (h *Handle) resolveDirectory(d kvstree.Dirent) (kvstree.Directory, bool) {
	switch d.Tag {
	case kvstree.DirVal:
		return d.Dir, true
	case kvstree.DirRef:
		e, hit := h.cache.Lookup(string(d.Ref), h.epoch)
		if !hit || !e.Valid() {
			h.missing = d.Ref
			h.missingk = KindDirectory
			return nil, false
		}
		dir, ok := e.Value().(kvstree.Directory)
		if !ok {
			// A value cached under this ref isn't a directory: resolve it
			// as an empty directory rather than panicking on a malformed
			// cache entry (no ENOTDIR is reported for this case).
			return kvstree.Directory{}, true
		}
		return dir, true
	default:
		return kvstree.Directory{}, true
	}
}

func (h *Handle) finalizeDirectory(dir kvstree.Directory) Result {
	if h.flags.Has(kvsapi.ReadLink) {
		return Result{Kind: ErrorResult, Errno: kvserr.EInvalid, RootUsed: h.rootUsed}
	}
	// READDIR and the unflagged default both yield the directory; the
	// default case represents it as a generic JSON-like object value
	// (spec §3: an "object" is a valid Value kind).
	return Result{Kind: Found, Value: directoryAsValue(dir), RootUsed: h.rootUsed}
}

func (h *Handle) finalizeFile(entry kvstree.Dirent) Result {
	if h.flags.Has(kvsapi.ReadLink) {
		return Result{Kind: ErrorResult, Errno: kvserr.EInvalid, RootUsed: h.rootUsed}
	}
	if h.flags.Has(kvsapi.ReadDir) {
		return Result{Kind: ErrorResult, Errno: kvserr.ENotDir, RootUsed: h.rootUsed}
	}
	switch entry.Tag {
	case kvstree.FileVal:
		return Result{Kind: Found, Value: entry.Val, RootUsed: h.rootUsed}
	case kvstree.FileRef:
		e, hit := h.cache.Lookup(string(entry.Ref), h.epoch)
		if !hit || !e.Valid() {
			h.missing = entry.Ref
			h.missingk = KindValue
			return Result{Kind: Stall, Missing: entry.Ref, Missingk: KindValue}
		}
		return Result{Kind: Found, Value: e.Value(), RootUsed: h.rootUsed}
	default:
		return Result{Kind: ErrorResult, Errno: kvserr.EInvalid, RootUsed: h.rootUsed}
	}
}

// directoryAsValue renders a Directory as a generic map value, recursing
// through inline directories; DIRREF/FILEREF children are represented by
// their reference string since following them is a separate lookup, not
// part of rendering this directory's own immediate value.
func directoryAsValue(dir kvstree.Directory) map[string]interface{} {
	out := make(map[string]interface{}, len(dir))
	for name, entry := range dir {
		switch entry.Tag {
		case kvstree.FileVal:
			out[name] = entry.Val
		case kvstree.FileRef:
			out[name] = map[string]interface{}{"FILEREF": string(entry.Ref)}
		case kvstree.DirVal:
			out[name] = directoryAsValue(entry.Dir)
		case kvstree.DirRef:
			out[name] = map[string]interface{}{"DIRREF": string(entry.Ref)}
		case kvstree.LinkVal:
			out[name] = map[string]interface{}{"LINKVAL": entry.Link}
		}
	}
	return out
}
