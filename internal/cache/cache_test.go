package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/kvs/internal/wait"
)

func TestInsertLookup(t *testing.T) {
	c := New(nil)
	e := NewValid("v", 3)
	require.NoError(t, c.Insert("ref1", e))
	got, ok := c.Lookup("ref1", 1)
	require.True(t, ok, "expected to find the inserted entry")
	require.Same(t, e, got)
	require.EqualValues(t, 1, got.LastUse())
}

func TestInsertDuplicateFails(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Insert("ref1", NewIncomplete()))
	require.Error(t, c.Insert("ref1", NewIncomplete()), "expected duplicate Insert to fail")
}

func TestDirtyRequiresValid(t *testing.T) {
	e := NewIncomplete()
	require.Error(t, e.SetDirty(true), "expected SetDirty(true) on incomplete entry to fail")
	e.SetValue("v", 1)
	require.NoError(t, e.SetDirty(true))
	require.True(t, e.Dirty())
}

func TestEvictionRespectsInvariants(t *testing.T) {
	c := New(nil)
	incomplete := NewIncomplete()
	c.Insert("incomplete", incomplete)

	dirty := NewDirty("v", 1)
	c.Insert("dirty", dirty)

	clean := NewValid("v", 1)
	c.Insert("clean", clean)

	waiting := NewValid("v", 1)
	waiting.WaitValid(wait.Create(func(interface{}) {}, nil))
	c.Insert("waiting", waiting)

	evicted := c.ExpireEntries(100, 0)
	require.Equal(t, 1, evicted, "expected only the clean unwaited entry to be evictable")
	_, ok := c.Lookup("clean", 100)
	require.False(t, ok, "clean entry should have been evicted")
	for _, key := range []string{"incomplete", "dirty", "waiting"} {
		_, ok := c.Lookup(key, 100)
		require.True(t, ok, "%s should not have been evicted", key)
	}
}

func TestExpireEntriesRespectsAge(t *testing.T) {
	c := New(nil)
	c.Insert("clean", NewValid("v", 1))
	require.Equal(t, 0, c.ExpireEntries(3, 5), "expected nothing evictable before max age elapses")
	require.Equal(t, 1, c.ExpireEntries(5, 5), "expected entry to become evictable once epoch-lastuse >= maxAge")
}

func TestRekeyMovesEntry(t *testing.T) {
	c := New(nil)
	e := NewDirty("v", 1)
	c.Insert("tmp-1", e)

	got, already := c.Rekey("tmp-1", "ref-final")
	require.False(t, already, "did not expect an existing entry at the new key")
	require.Same(t, e, got)
	_, ok := c.Lookup("tmp-1", 0)
	require.False(t, ok, "old key should no longer resolve")
	_, ok = c.Lookup("ref-final", 0)
	require.True(t, ok, "new key should resolve")
}

func TestRekeyNoopStoreReusesExisting(t *testing.T) {
	c := New(nil)
	existing := NewValid("v", 1)
	c.Insert("ref-final", existing)

	fresh := NewDirty("v", 1)
	c.Insert("tmp-1", fresh)

	got, already := c.Rekey("tmp-1", "ref-final")
	require.True(t, already, "expected Rekey to report an existing entry")
	require.Same(t, existing, got)
}

func TestGetStats(t *testing.T) {
	c := New(nil)
	c.Insert("a", NewValid("v", 10))
	c.Insert("b", NewDirty("v", 10))
	c.Insert("c", NewIncomplete())

	stats := c.GetStats()
	require.Equal(t, 3, stats.Count)
	require.Equal(t, 1, stats.Dirty)
	require.Equal(t, 1, stats.Incomplete)
}

func TestWaitDestroyMsgPurgesAcrossEntries(t *testing.T) {
	c := New(nil)
	e1 := NewIncomplete()
	e1.WaitValid(wait.Create(func(interface{}) {}, "client-1"))
	c.Insert("a", e1)

	e2 := NewValid("v", 1)
	e2.SetDirty(true)
	e2.WaitNotDirty(wait.Create(func(interface{}) {}, "client-1"))
	c.Insert("b", e2)

	removed := c.WaitDestroyMsg(func(data interface{}) bool { return data == "client-1" })
	require.Equal(t, 2, removed)
}
