package fence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/kvs/kvsapi"
	"github.com/cerc-io/kvs/kvstree"
)

func op(key string) kvsapi.Operation {
	return kvsapi.NewSetOp(key, kvstree.NewFileVal(float64(1)))
}

func TestSubmitBecomesReadyAtExpectedCount(t *testing.T) {
	tbl := NewTable(false)

	rf, ready, err := tbl.Submit("f1", 2, []kvsapi.Operation{op("a")}, "req-1", false)
	require.NoError(t, err)
	require.False(t, ready, "expected not ready after 1/2 arrivals")
	require.Nil(t, rf, "expected nil ready fence before threshold")

	rf, ready, err = tbl.Submit("f1", 2, []kvsapi.Operation{op("b")}, "req-2", false)
	require.NoError(t, err)
	require.True(t, ready, "expected ready after 2/2 arrivals")
	require.Len(t, rf.Ops, 2)
	require.Len(t, rf.Requesters, 2)
	require.True(t, tbl.CommitsReady(), "expected a ready commit queued")
}

func TestSubmitIdempotentAfterReady(t *testing.T) {
	tbl := NewTable(false)
	tbl.Submit("f1", 1, []kvsapi.Operation{op("a")}, "req-1", false)

	rf, ready, err := tbl.Submit("f1", 1, []kvsapi.Operation{op("a")}, "req-1", false)
	require.NoError(t, err)
	require.False(t, ready, "expected re-arrival on an already-ready fence to be a no-op")
	require.Nil(t, rf)
	_, ok := tbl.GetReadyCommit()
	require.True(t, ok, "expected exactly one ready commit queued")
	require.False(t, tbl.CommitsReady(), "expected no second ready commit from the duplicate arrival")
}

func TestMergeReadyCommitsRespectsNoMerge(t *testing.T) {
	tbl := NewTable(true)
	tbl.Submit("f1", 1, []kvsapi.Operation{op("a")}, "req-1", false)
	tbl.Submit("f2", 1, []kvsapi.Operation{op("b")}, "req-2", false)
	tbl.Submit("f3", 1, []kvsapi.Operation{op("c")}, "req-3", true)

	tbl.MergeReadyCommits()

	var got []*ReadyFence
	for tbl.CommitsReady() {
		rf, _ := tbl.GetReadyCommit()
		got = append(got, rf)
	}
	require.Len(t, got, 2, "expected merged + excluded = 2 ready commits")
	merged := got[0]
	require.Len(t, merged.Names, 2)
	require.Len(t, merged.Ops, 2)
	excluded := got[1]
	require.Len(t, excluded.Names, 1)
	require.Equal(t, "f3", excluded.Names[0], "expected f3 to stay separate due to NoMerge")
}

func TestRemoveFence(t *testing.T) {
	tbl := NewTable(false)
	tbl.Submit("f1", 1, nil, nil, false)
	_, ok := tbl.LookupFence("f1")
	require.True(t, ok, "expected fence to be registered")
	tbl.RemoveFence("f1")
	_, ok = tbl.LookupFence("f1")
	require.False(t, ok, "expected fence to be removed")
}

func TestNoopStoresCounter(t *testing.T) {
	tbl := NewTable(false)
	tbl.AddNoopStores(3)
	tbl.AddNoopStores(2)
	require.Equal(t, int64(5), tbl.NoopStores())
}
