// Package kvsapi defines the request/response vocabulary shared by the
// lookup, fence, commit, and service packages: flags (spec §6) and the
// Operation record (spec §3).
package kvsapi

import "github.com/cerc-io/kvs/kvstree"

// Flags is the bit set carried on get/watch requests (spec §6).
type Flags uint32

const (
	// First forces an initial watch response even if the value is
	// unchanged from the caller-supplied previous value.
	First Flags = 1 << iota
	// Once disables watch re-registration after the first notification.
	Once
	// ReadDir requires the resolved terminal entry to be a directory and
	// returns it as such.
	ReadDir
	// ReadLink returns a symlink's target string without following it.
	ReadLink
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Operation is a single "set key to dirent" record within a fence's
// accumulated operation list (spec §3 "Operation"). Dirent is a pointer so
// a wire-level JSON null (delete key, spec §3 "a null dirent deletes") is
// distinguishable from a populated Dirent whose own inline value happens
// to be JSON null (Tag FILEVAL, Val nil) — the two decode to different Go
// values instead of colliding on the same zero representation.
type Operation struct {
	Key    string
	Dirent *kvstree.Dirent
}

// NewSetOp builds an Operation that writes dirent at key.
func NewSetOp(key string, dirent kvstree.Dirent) Operation {
	return Operation{Key: key, Dirent: &dirent}
}

// NewDeleteOp builds an Operation that deletes key.
func NewDeleteOp(key string) Operation {
	return Operation{Key: key}
}
