// Package content defines the content-store collaborator (spec §3
// "content-store service", explicitly out of scope to implement as a
// standalone service, but the KVS core's load/store call surface and at
// least one concrete backend belong here per the ambient/domain stack
// expansion).
package content

import (
	"context"

	"github.com/cerc-io/kvs/kvstree"
)

// Store is the content-addressed blob store the commit and lookup drivers
// call out to. Store computes and returns the canonical reference for the
// bytes given it; callers that pre-compute the same reference via
// kvstree.HashBytes may rely on the two agreeing, since both use the same
// hash algorithm by convention (spec §3 "Blob reference").
type Store interface {
	Load(ctx context.Context, ref kvstree.Ref) ([]byte, error)
	Store(ctx context.Context, data []byte) (kvstree.Ref, error)
}

// ErrNotFound is returned by Load when ref is not present in the store.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "content: blob not found" }
