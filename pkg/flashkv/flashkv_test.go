package flashkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashkv/flashkv/pkg/options"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(),
		options.WithDirPath(t.TempDir()),
		options.WithMmapAtStartup(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDBPutGetDelete(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, db.Delete([]byte("k")))
	_, err = db.Get([]byte("k"))
	assert.Error(t, err)
}

func TestDBWriteBatchAndIterator(t *testing.T) {
	db := openTestDB(t)

	wb, err := db.NewWriteBatch(options.NewDefaultWriteBatchOptions())
	require.NoError(t, err)
	require.NoError(t, wb.Put([]byte("a"), []byte("1")))
	require.NoError(t, wb.Put([]byte("b"), []byte("2")))
	require.NoError(t, wb.Commit())

	assert.Len(t, db.ListKeys(), 2)

	it := db.Iterator(options.IteratorOptions{})
	var seen []string
	for it.Rewind(); it.Valid(); it.Next() {
		seen = append(seen, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestDBStatAndSync(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Sync())

	stat, err := db.Stat()
	require.NoError(t, err)
	assert.Equal(t, 1, stat.KeyCount)
}
