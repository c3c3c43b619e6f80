package pgstore

import (
	"context"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/cerc-io/kvs/content"
	"github.com/cerc-io/kvs/kvstree"
)

// DefaultCacheBytes sizes the read-through cache fronting Postgres (spec
// §11 domain stack: "a fastcache read-through layer").
const DefaultCacheBytes = 64 * 1024 * 1024

// Store is a content.Store backed by Postgres through Driver, fronted by an
// in-memory fastcache so repeatedly-read blobs (a hot directory near the
// root, say) don't round-trip to the database every lookup.
type Store struct {
	driver Driver
	cache  *fastcache.Cache
}

var _ content.Store = (*Store)(nil)

// NewStore wraps driver with a read-through cache of cacheBytes capacity.
func NewStore(driver Driver, cacheBytes int) *Store {
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}
	return &Store{driver: driver, cache: fastcache.New(cacheBytes)}
}

// Load implements content.Store.
func (s *Store) Load(ctx context.Context, ref kvstree.Ref) ([]byte, error) {
	if data := s.cache.Get(nil, []byte(ref)); len(data) > 0 {
		return data, nil
	}

	var data []byte
	if err := s.driver.QueryRow(ctx, loadBlobStmt, string(ref)).Scan(&data); err != nil {
		if s.driver.NoRows(err) {
			return nil, content.ErrNotFound
		}
		return nil, err
	}
	s.cache.Set([]byte(ref), data)
	return data, nil
}

// Store implements content.Store: it computes ref from data and upserts the
// blob, tolerating a concurrent writer that already stored the same ref
// (ON CONFLICT DO NOTHING — the content is content-addressed, so any
// existing row for ref already holds identical bytes).
func (s *Store) Store(ctx context.Context, data []byte) (kvstree.Ref, error) {
	ref, err := kvstree.HashBytes(data)
	if err != nil {
		return "", err
	}
	if _, err := s.driver.Exec(ctx, storeBlobStmt, string(ref), data); err != nil {
		return "", err
	}
	s.cache.Set([]byte(ref), data)
	return ref, nil
}
