package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreRoundTrip(t *testing.T) {
	m := NewMemStore(8)
	ref, err := m.Store(context.Background(), []byte("hello"))
	require.NoError(t, err)
	got, err := m.Load(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestMemStoreStoreIsDeterministic(t *testing.T) {
	m := NewMemStore(8)
	ref1, _ := m.Store(context.Background(), []byte("same"))
	ref2, _ := m.Store(context.Background(), []byte("same"))
	require.Equal(t, ref1, ref2, "expected identical content to hash to the same ref")
}

func TestMemStoreLoadMissing(t *testing.T) {
	m := NewMemStore(8)
	_, err := m.Load(context.Background(), "nonexistent")
	require.True(t, errors.Is(err, ErrNotFound))
}
