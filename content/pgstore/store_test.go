package pgstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/kvs/content"
)

// fakeDriver is a minimal in-memory Driver stand-in for exercising Store's
// read-through caching and not-found handling without a real database.
type fakeDriver struct {
	rows map[string][]byte
}

func newFakeDriver() *fakeDriver { return &fakeDriver{rows: make(map[string][]byte)} }

type fakeRow struct {
	data []byte
	ok   bool
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if !r.ok {
		return errFakeNoRows
	}
	ptr := dest[0].(*[]byte)
	*ptr = r.data
	return nil
}

var errFakeNoRows = errors.New("fake: no rows")

func (d *fakeDriver) QueryRow(_ context.Context, _ string, args ...interface{}) ScannableRow {
	ref := args[0].(string)
	data, ok := d.rows[ref]
	return fakeRow{data: data, ok: ok}
}

func (d *fakeDriver) Exec(_ context.Context, _ string, args ...interface{}) (Result, error) {
	ref := args[0].(string)
	data := args[1].([]byte)
	d.rows[ref] = data
	return fakeResult(1), nil
}

func (d *fakeDriver) NoRows(err error) bool { return errors.Is(err, errFakeNoRows) }

type fakeResult int64

func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(newFakeDriver(), 1024)
	ref, err := s.Store(context.Background(), []byte("payload"))
	require.NoError(t, err)
	got, err := s.Load(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestStoreLoadMissingIsNotFound(t *testing.T) {
	s := NewStore(newFakeDriver(), 1024)
	_, err := s.Load(context.Background(), "nonexistent")
	require.True(t, errors.Is(err, content.ErrNotFound))
}

func TestStoreReadThroughCacheAvoidsDriver(t *testing.T) {
	driver := newFakeDriver()
	s := NewStore(driver, 1024)
	ref, _ := s.Store(context.Background(), []byte("cached"))

	delete(driver.rows, string(ref)) // simulate the row vanishing underneath
	got, err := s.Load(context.Background(), ref)
	require.NoError(t, err, "expected the read-through cache to serve without hitting the driver")
	require.Equal(t, "cached", string(got))
}
