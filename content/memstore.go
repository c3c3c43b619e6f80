package content

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cerc-io/kvs/kvstree"
)

// MemStore is an in-memory content store backed by a bounded LRU, useful
// for tests and for a single-process deployment that doesn't need the
// durability a Postgres-backed store (see content/pgstore) provides.
type MemStore struct {
	cache *lru.Cache
}

// NewMemStore returns a MemStore holding at most capacity blobs.
func NewMemStore(capacity int) *MemStore {
	c, err := lru.New(capacity)
	if err != nil {
		// Only occurs for capacity <= 0; callers always pass a positive
		// size, but fall back to a reasonable default rather than panic.
		c, _ = lru.New(1024)
	}
	return &MemStore{cache: c}
}

// Load implements Store.
func (m *MemStore) Load(_ context.Context, ref kvstree.Ref) ([]byte, error) {
	v, ok := m.cache.Get(ref)
	if !ok {
		return nil, ErrNotFound
	}
	return v.([]byte), nil
}

// Store implements Store, computing ref as the blob's content hash.
func (m *MemStore) Store(_ context.Context, data []byte) (kvstree.Ref, error) {
	ref, err := kvstree.HashBytes(data)
	if err != nil {
		return "", err
	}
	m.cache.Add(ref, data)
	return ref, nil
}
