package skiplist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/options"
)

func TestPutGetDeleteOverwrite(t *testing.T) {
	idx := New()

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

func TestListKeysOrdering(t *testing.T) {
	idx := New()
	for _, k := range []string{"banana", "apple", "cherry"} {
		idx.Put([]byte(k), record.Position{})
	}

	keys := idx.ListKeys()
	require.Len(t, keys, 3)
	assert.Equal(t, "apple", string(keys[0]))
	assert.Equal(t, "banana", string(keys[1]))
	assert.Equal(t, "cherry", string(keys[2]))
}

func TestIteratorForwardReverseAndPrefix(t *testing.T) {
	idx := New()
	for i, k := range []string{"a1", "a2", "b1", "b2"} {
		idx.Put([]byte(k), record.Position{Offset: uint64(i)})
	}

	it := idx.Iterator(options.IteratorOptions{})
	var forward []string
	for it.Rewind(); it.Valid(); it.Next() {
		forward = append(forward, string(it.Key()))
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "b2"}, forward)

	it = idx.Iterator(options.IteratorOptions{Reverse: true})
	var backward []string
	for it.Rewind(); it.Valid(); it.Next() {
		backward = append(backward, string(it.Key()))
	}
	assert.Equal(t, []string{"b2", "b1", "a2", "a1"}, backward)

	it = idx.Iterator(options.IteratorOptions{Prefix: []byte("b")})
	var prefixed []string
	for it.Rewind(); it.Valid(); it.Next() {
		prefixed = append(prefixed, string(it.Key()))
	}
	assert.Equal(t, []string{"b1", "b2"}, prefixed)
}
