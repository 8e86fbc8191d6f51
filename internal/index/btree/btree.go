// Package btree implements an ordered in-memory Index backed by
// github.com/google/btree, giving Put/Get/Delete plus prefix and
// reverse iteration over the full key space. It is rebuilt from the
// data files (or a hint file) on every engine open.
package btree

import (
	"bytes"
	"sync"

	gbtree "github.com/google/btree"

	"github.com/flashkv/flashkv/internal/index/iface"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/options"
)

const degree = 32

// item is the btree.Item stored in the tree: a key and its current
// position.
type item struct {
	key []byte
	pos record.Position
}

func (a item) Less(than gbtree.Item) bool {
	return bytes.Compare(a.key, than.(item).key) < 0
}

// Index is an ordered in-memory key index.
type Index struct {
	mu   sync.RWMutex
	tree *gbtree.BTree
}

// New constructs an empty Index.
func New() *Index {
	return &Index{tree: gbtree.New(degree)}
}

func (idx *Index) Put(key []byte, pos record.Position) (record.Position, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old := idx.tree.ReplaceOrInsert(item{key: key, pos: pos})
	if old == nil {
		return record.Position{}, false
	}
	return old.(item).pos, true
}

func (idx *Index) Get(key []byte) (record.Position, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	found := idx.tree.Get(item{key: key})
	if found == nil {
		return record.Position{}, false
	}
	return found.(item).pos, true
}

func (idx *Index) Delete(key []byte) (record.Position, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old := idx.tree.Delete(item{key: key})
	if old == nil {
		return record.Position{}, false
	}
	return old.(item).pos, true
}

func (idx *Index) ListKeys() [][]byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([][]byte, 0, idx.tree.Len())
	idx.tree.Ascend(func(i gbtree.Item) bool {
		keys = append(keys, i.(item).key)
		return true
	})
	return keys
}

func (idx *Index) Iterator(opts options.IteratorOptions) iface.Iterator {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	items := make([]item, 0, idx.tree.Len())
	idx.tree.Ascend(func(i gbtree.Item) bool {
		items = append(items, i.(item))
		return true
	})

	return newIterator(items, opts.Prefix, opts.Reverse)
}

func (idx *Index) Close() error {
	return nil
}

var _ iface.Index = (*Index)(nil)
