package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/options"
)

func TestPutGetDeleteOverwrite(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	_, existed := idx.Put([]byte("a"), record.Position{FileID: 1, Offset: 0, Size: 10})
	assert.False(t, existed)

	pos, ok := idx.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, uint32(1), pos.FileID)

	old, existed := idx.Put([]byte("a"), record.Position{FileID: 2, Offset: 5, Size: 20})
	require.True(t, existed)
	assert.Equal(t, uint32(1), old.FileID)

	old, existed = idx.Delete([]byte("a"))
	require.True(t, existed)
	assert.Equal(t, uint32(2), old.FileID)

	_, ok = idx.Get([]byte("a"))
	assert.False(t, ok)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(dir)
	require.NoError(t, err)
	idx.Put([]byte("durable"), record.Position{FileID: 9, Offset: 1, Size: 2})
	require.NoError(t, idx.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	pos, ok := reopened.Get([]byte("durable"))
	require.True(t, ok)
	assert.Equal(t, uint32(9), pos.FileID)
}

func TestIteratorAndListKeys(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	for i, k := range []string{"a1", "a2", "b1"} {
		idx.Put([]byte(k), record.Position{Offset: uint64(i)})
	}

	keys := idx.ListKeys()
	assert.Len(t, keys, 3)

	it := idx.Iterator(options.IteratorOptions{Prefix: []byte("a")})
	var got []string
	for it.Rewind(); it.Valid(); it.Next() {
		got = append(got, string(it.Key()))
	}
	assert.Equal(t, []string{"a1", "a2"}, got)
}
