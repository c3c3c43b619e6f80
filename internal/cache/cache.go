package cache

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// errNotValid is returned by Entry.SetDirty(true) when the entry has no
// value yet (spec invariant: dirty ⇒ valid).
var errNotValid = errors.New("cache: entry is not valid")

// Stats is the observability payload for §4.2 get_stats / the service
// loop's stats.get handler (SPEC_FULL §12).
type Stats struct {
	Count      int
	Dirty      int
	Incomplete int
	// SizeBuckets holds the count of valid entries by encoded-size bucket:
	// bucket 0 is <1KiB, bucket i (1..6) covers [2^(i+9), 2^(i+10)) bytes,
	// and bucket 7 holds everything from 64KiB up.
	SizeBuckets [8]int
}

// Cache is the per-rank singleton content cache (spec §3, §4.2). It is not
// safe for concurrent use: the whole KVS core runs on a single reactor
// thread (spec §5).
type Cache struct {
	entries map[string]*Entry
	log     logrus.FieldLogger
}

// New returns an empty cache. log may be nil, in which case a discard
// logger is used.
func New(log logrus.FieldLogger) *Cache {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Cache{entries: make(map[string]*Entry), log: log}
}

// Lookup returns the entry keyed by key, touching its last-use epoch on a
// hit.
func (c *Cache) Lookup(key string, epoch int64) (*Entry, bool) {
	e, ok := c.entries[key]
	if ok {
		e.Touch(epoch)
		c.log.WithField("key", key).Debug("cache hit")
	} else {
		c.log.WithField("key", key).Debug("cache miss")
	}
	return e, ok
}

// Insert places e under key. It is an error for key to already be present.
func (c *Cache) Insert(key string, e *Entry) error {
	if _, ok := c.entries[key]; ok {
		return errors.New("cache: key already present: " + key)
	}
	c.entries[key] = e
	return nil
}

// Rekey moves the entry at oldKey to newKey, used when a dirty entry's
// placeholder identity is replaced by its computed blob reference on
// commit finalize (spec §9 "Cache keying transition"). It is a no-op
// returning the existing entry if oldKey == newKey. If an entry already
// exists at newKey (the content happened to already be cached, i.e. a
// noop-store case), the caller's new entry is dropped in favor of the
// existing one; Rekey reports which entry is now canonical.
func (c *Cache) Rekey(oldKey, newKey string) (canonical *Entry, alreadyPresent bool) {
	e, ok := c.entries[oldKey]
	if !ok {
		return nil, false
	}
	if oldKey == newKey {
		return e, false
	}
	if existing, ok := c.entries[newKey]; ok {
		delete(c.entries, oldKey)
		return existing, true
	}
	delete(c.entries, oldKey)
	c.entries[newKey] = e
	return e, false
}

// Delete removes the entry at key, if any.
func (c *Cache) Delete(key string) {
	delete(c.entries, key)
}

// CountEntries returns the total number of cached entries.
func (c *Cache) CountEntries() int { return len(c.entries) }

// ExpireEntries drops every entry satisfying spec §4.2's expire_entries
// predicate (valid, clean, no waiters, and stale by at least maxAge
// epochs), returning the number evicted.
func (c *Cache) ExpireEntries(epoch, maxAge int64) int {
	evicted := 0
	for key, e := range c.entries {
		if e.Evictable() && epoch-e.lastUse >= maxAge {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		c.log.WithFields(logrus.Fields{"evicted": evicted, "epoch": epoch}).Debug("expired cache entries")
	}
	return evicted
}

// GetStats computes the observability snapshot for §4.2.
func (c *Cache) GetStats() Stats {
	var s Stats
	s.Count = len(c.entries)
	for _, e := range c.entries {
		if e.dirty {
			s.Dirty++
		}
		if !e.valid {
			s.Incomplete++
			continue
		}
		bucket := sizeBucket(e.size)
		s.SizeBuckets[bucket]++
	}
	return s
}

func sizeBucket(size int) int {
	b := 0
	threshold := 1024
	for size >= threshold && b < len(Stats{}.SizeBuckets)-1 {
		threshold *= 2
		b++
	}
	return b
}

// WaitDestroyMsg purges waiters matching predicate across every entry's
// wait queues (spec §4.2 wait_destroy_msg), returning the total removed.
func (c *Cache) WaitDestroyMsg(predicate func(data interface{}) bool) int {
	total := 0
	for _, e := range c.entries {
		total += e.destroyMsg(predicate)
	}
	return total
}
