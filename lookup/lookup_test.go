package lookup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/kvs/internal/cache"
	"github.com/cerc-io/kvs/kvsapi"
	"github.com/cerc-io/kvs/kvstree"
)

func mustRef(t *testing.T, d kvstree.Directory) (kvstree.Ref, []byte) {
	t.Helper()
	ref, enc, err := kvstree.HashDirectory(d)
	require.NoError(t, err)
	return ref, enc
}

func TestFoundSimpleKey(t *testing.T) {
	c := cache.New(nil)
	root := kvstree.Directory{"a": kvstree.NewFileVal(float64(42))}
	rootRef, enc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(enc)))

	h := New(c, 0, rootRef, nil, "a", 0)
	res := h.Resolve()
	require.Equal(t, Found, res.Kind)
	require.Equal(t, float64(42), res.Value)
}

func TestNotFound(t *testing.T) {
	c := cache.New(nil)
	root := kvstree.Directory{}
	rootRef, enc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(enc)))

	h := New(c, 0, rootRef, nil, "missing", 0)
	res := h.Resolve()
	require.Equal(t, NotFound, res.Kind)
}

func TestStallThenResume(t *testing.T) {
	c := cache.New(nil)
	child := kvstree.Directory{"b": kvstree.NewFileVal(float64(7))}
	childRef, childEnc := mustRef(t, child)

	root := kvstree.Directory{"a": kvstree.NewDirRef(childRef)}
	rootRef, rootEnc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(rootEnc)))

	h := New(c, 0, rootRef, nil, "a.b", 0)
	res := h.Resolve()
	require.Equal(t, Stall, res.Kind, "expected Stall waiting on child dir")
	require.Equal(t, childRef, res.Missing)
	require.Equal(t, KindDirectory, res.Missingk)

	// Simulate content.load completing: insert the now-available directory.
	c.Insert(string(childRef), cache.NewValid(child, len(childEnc)))
	h.SetEpoch(1)
	res = h.Resolve()
	require.Equal(t, Found, res.Kind)
	require.Equal(t, float64(7), res.Value)
}

func TestReaddir(t *testing.T) {
	c := cache.New(nil)
	sub := kvstree.Directory{"b": kvstree.NewFileVal(float64(42))}
	root := kvstree.Directory{"a": kvstree.NewDirVal(sub)}
	rootRef, enc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(enc)))

	h := New(c, 0, rootRef, nil, "a", kvsapi.ReadDir)
	res := h.Resolve()
	require.Equal(t, Found, res.Kind)
	m, ok := res.Value.(map[string]interface{})
	require.True(t, ok, "expected directory value, got %T", res.Value)
	require.Equal(t, float64(42), m["b"])
}

func TestSymlinkFollow(t *testing.T) {
	c := cache.New(nil)
	root := kvstree.Directory{
		"a":    kvstree.NewDirVal(kvstree.Directory{"b": kvstree.NewFileVal(float64(7))}),
		"link": kvstree.NewLinkVal("a.b"),
	}
	rootRef, enc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(enc)))

	h := New(c, 0, rootRef, nil, "link", 0)
	res := h.Resolve()
	require.Equal(t, Found, res.Kind)
	require.Equal(t, float64(7), res.Value)
}

func TestSymlinkLoop(t *testing.T) {
	c := cache.New(nil)
	root := kvstree.Directory{"loop": kvstree.NewLinkVal("loop")}
	rootRef, enc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(enc)))

	h := New(c, 0, rootRef, nil, "loop", 0)
	h.SetMaxLinkFollow(4)
	res := h.Resolve()
	require.Equal(t, ErrorResult, res.Kind)
	require.Equal(t, "loop", res.Errno.String())
}

func TestReadlinkReturnsTargetWithoutFollowing(t *testing.T) {
	c := cache.New(nil)
	root := kvstree.Directory{"link": kvstree.NewLinkVal("a.b")}
	rootRef, enc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(enc)))

	h := New(c, 0, rootRef, nil, "link", kvsapi.ReadLink)
	res := h.Resolve()
	require.Equal(t, Found, res.Kind)
	require.Equal(t, "a.b", res.Value)
}

func TestFileTerminalWithMoreComponentsIsNotDir(t *testing.T) {
	c := cache.New(nil)
	root := kvstree.Directory{"a": kvstree.NewFileVal(float64(1))}
	rootRef, enc := mustRef(t, root)
	c.Insert(string(rootRef), cache.NewValid(root, len(enc)))

	h := New(c, 0, rootRef, nil, "a.b", 0)
	res := h.Resolve()
	require.Equal(t, ErrorResult, res.Kind)
	require.Equal(t, "not-directory", res.Errno.String())
}
