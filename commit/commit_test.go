package commit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/kvs/content"
	"github.com/cerc-io/kvs/fence"
	"github.com/cerc-io/kvs/internal/cache"
	"github.com/cerc-io/kvs/internal/loader"
	"github.com/cerc-io/kvs/kvsapi"
	"github.com/cerc-io/kvs/kvstree"
)

// syncAsync runs work inline, so a test's Run call observes the final
// status immediately rather than needing a reactor to drain a continuation.
func syncAsync(work func() func()) { work()() }

// runSync drives Run to completion against a synchronous loader, returning
// the terminal status and error the way the old blocking Run used to.
func runSync(co *Commit, c *cache.Cache, store content.Store, epoch int64, rootRef kvstree.Ref) (Status, error) {
	ld := loader.New(c, store, syncAsync)
	var status Status
	var err error
	Run(context.Background(), co, ld, epoch, rootRef, func(s Status, e error) {
		status, err = s, e
	})
	return status, err
}

func seedRoot(t *testing.T, c *cache.Cache, dir kvstree.Directory) kvstree.Ref {
	t.Helper()
	ref, enc, err := kvstree.HashDirectory(dir)
	require.NoError(t, err)
	require.NoError(t, c.Insert(string(ref), cache.NewValid(dir, len(enc))))
	return ref
}

func TestCommitSimpleWrite(t *testing.T) {
	c := cache.New(nil)
	store := content.NewMemStore(64)
	rootRef := seedRoot(t, c, kvstree.Directory{})

	rf := &fence.ReadyFence{Ops: []kvsapi.Operation{kvsapi.NewSetOp("a", kvstree.NewFileVal(float64(1)))}}
	co := New(rf, c)

	status, err := runSync(co, c, store, 1, rootRef)
	require.NoError(t, err)
	require.Equalf(t, StatusFinished, status, "errno=%v", co.Errno())

	e, hit := c.Lookup(string(co.NewRootRef()), 1)
	require.True(t, hit)
	require.True(t, e.Valid())
	dir := e.Value().(kvstree.Directory)
	got, ok := dir.Get("a")
	require.True(t, ok)
	require.Equal(t, kvstree.FileVal, got.Tag)
	require.Equal(t, float64(1), got.Val)
}

func TestCommitDeleteOfNonexistentKeyIsNoop(t *testing.T) {
	c := cache.New(nil)
	store := content.NewMemStore(64)
	rootRef := seedRoot(t, c, kvstree.Directory{"a": kvstree.NewFileVal(float64(1))})

	rf := &fence.ReadyFence{Ops: []kvsapi.Operation{kvsapi.NewDeleteOp("x.y.z")}}
	co := New(rf, c)

	status, err := runSync(co, c, store, 1, rootRef)
	require.NoError(t, err)
	require.Equalf(t, StatusFinished, status, "errno=%v", co.Errno())
	require.Equal(t, rootRef, co.NewRootRef(), "expected root unchanged by a no-op delete")
}

func TestCommitLaterOpWins(t *testing.T) {
	c := cache.New(nil)
	store := content.NewMemStore(64)
	rootRef := seedRoot(t, c, kvstree.Directory{})

	rf := &fence.ReadyFence{Ops: []kvsapi.Operation{
		kvsapi.NewSetOp("a", kvstree.NewFileVal(float64(1))),
		kvsapi.NewSetOp("a", kvstree.NewFileVal(float64(2))),
	}}
	co := New(rf, c)

	status, err := runSync(co, c, store, 1, rootRef)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, status)
	e, _ := c.Lookup(string(co.NewRootRef()), 1)
	dir := e.Value().(kvstree.Directory)
	got, _ := dir.Get("a")
	require.Equal(t, float64(2), got.Val, "expected later op to win")
}

func TestCommitSymlinkWriteReplacesWithoutFollowing(t *testing.T) {
	c := cache.New(nil)
	store := content.NewMemStore(64)
	rootRef := seedRoot(t, c, kvstree.Directory{"link": kvstree.NewLinkVal("elsewhere")})

	rf := &fence.ReadyFence{Ops: []kvsapi.Operation{kvsapi.NewSetOp("link", kvstree.NewFileVal(float64(9)))}}
	co := New(rf, c)

	status, err := runSync(co, c, store, 1, rootRef)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, status)
	e, _ := c.Lookup(string(co.NewRootRef()), 1)
	dir := e.Value().(kvstree.Directory)
	got, _ := dir.Get("link")
	require.Equal(t, kvstree.FileVal, got.Tag)
	require.Equal(t, float64(9), got.Val)
}

func TestCommitWriteThroughFileErrors(t *testing.T) {
	c := cache.New(nil)
	store := content.NewMemStore(64)
	rootRef := seedRoot(t, c, kvstree.Directory{"a": kvstree.NewFileVal(float64(1))})

	rf := &fence.ReadyFence{Ops: []kvsapi.Operation{kvsapi.NewSetOp("a.b", kvstree.NewFileVal(float64(2)))}}
	co := New(rf, c)

	status, err := runSync(co, c, store, 1, rootRef)
	require.NoError(t, err)
	require.Equal(t, StatusError, status)
}

func TestCommitLoadsMissingRootRef(t *testing.T) {
	c := cache.New(nil)
	store := content.NewMemStore(64)
	dir := kvstree.Directory{}
	ref, enc, _ := kvstree.HashDirectory(dir)
	_, err := store.Store(context.Background(), enc)
	require.NoError(t, err)

	rf := &fence.ReadyFence{Ops: []kvsapi.Operation{kvsapi.NewSetOp("a", kvstree.NewFileVal(float64(1)))}}
	co := New(rf, c)

	status, err := runSync(co, c, store, 1, ref)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, status)
}

func TestCommitIdenticalContentNoopStore(t *testing.T) {
	c := cache.New(nil)
	store := content.NewMemStore(64)
	rootRef := seedRoot(t, c, kvstree.Directory{"a": kvstree.NewFileVal(float64(1))})

	// Writing the exact same value produces the exact same root hash, so
	// the commit engine should elide the content.store as a noop.
	rf := &fence.ReadyFence{Ops: []kvsapi.Operation{kvsapi.NewSetOp("a", kvstree.NewFileVal(float64(1)))}}
	co := New(rf, c)

	status := co.Process(1, rootRef)
	require.Equalf(t, StatusFinished, status, "expected immediate StatusFinished (noop store), errno=%v", co.Errno())
	require.Equal(t, rootRef, co.NewRootRef())
	require.Equal(t, int64(1), co.NoopStores())
}
