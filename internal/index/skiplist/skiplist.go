// Package skiplist implements an ordered in-memory Index backed by
// github.com/huandu/skiplist. Functionally equivalent to the btree
// variant; offered as an alternative with different concurrency and
// memory-locality characteristics, matching the original engine's
// choice of a probabilistic ordered structure as a second index
// backend.
package skiplist

import (
	"bytes"
	"sort"
	"sync"

	hlist "github.com/huandu/skiplist"

	"github.com/flashkv/flashkv/internal/index/iface"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/options"
)

type byteKey []byte

func compareByteKeys(lhs, rhs any) int {
	return bytes.Compare(lhs.(byteKey), rhs.(byteKey))
}

// Index is an ordered in-memory key index backed by a skip list.
type Index struct {
	mu   sync.RWMutex
	list *hlist.SkipList
}

// New constructs an empty Index.
func New() *Index {
	return &Index{list: hlist.New(hlist.GreaterThanFunc(compareByteKeys))}
}

func (idx *Index) Put(key []byte, pos record.Position) (record.Position, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	k := byteKey(append([]byte(nil), key...))
	if el := idx.list.Get(k); el != nil {
		old := el.Value.(record.Position)
		el.Value = pos
		return old, true
	}
	idx.list.Set(k, pos)
	return record.Position{}, false
}

func (idx *Index) Get(key []byte) (record.Position, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	el := idx.list.Get(byteKey(key))
	if el == nil {
		return record.Position{}, false
	}
	return el.Value.(record.Position), true
}

func (idx *Index) Delete(key []byte) (record.Position, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	el := idx.list.Remove(byteKey(key))
	if el == nil {
		return record.Position{}, false
	}
	return el.Value.(record.Position), true
}

func (idx *Index) ListKeys() [][]byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([][]byte, 0, idx.list.Len())
	for el := idx.list.Front(); el != nil; el = el.Next() {
		keys = append(keys, []byte(el.Key().(byteKey)))
	}
	return keys
}

func (idx *Index) Iterator(opts options.IteratorOptions) iface.Iterator {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	items := make([]kv, 0, idx.list.Len())
	for el := idx.list.Front(); el != nil; el = el.Next() {
		items = append(items, kv{key: []byte(el.Key().(byteKey)), pos: el.Value.(record.Position)})
	}

	return newIterator(items, opts.Prefix, opts.Reverse)
}

func (idx *Index) Close() error {
	return nil
}

var _ iface.Index = (*Index)(nil)

type kv struct {
	key []byte
	pos record.Position
}

type iterator struct {
	items   []kv
	prefix  []byte
	reverse bool
	pos     int
}

func newIterator(items []kv, prefix []byte, reverse bool) *iterator {
	it := &iterator{items: items, prefix: prefix, reverse: reverse}
	it.Rewind()
	return it
}

func (it *iterator) Rewind() {
	if it.reverse {
		it.pos = len(it.items) - 1
	} else {
		it.pos = 0
	}
	it.skipToMatch()
}

func (it *iterator) Seek(key []byte) {
	idx := sort.Search(len(it.items), func(i int) bool {
		return bytes.Compare(it.items[i].key, key) >= 0
	})
	if it.reverse {
		if idx == len(it.items) || bytes.Compare(it.items[idx].key, key) > 0 {
			idx--
		}
	}
	it.pos = idx
	it.skipToMatch()
}

func (it *iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.items)
}

func (it *iterator) Next() {
	if it.reverse {
		it.pos--
	} else {
		it.pos++
	}
	it.skipToMatch()
}

func (it *iterator) Key() []byte {
	return it.items[it.pos].key
}

func (it *iterator) Position() record.Position {
	return it.items[it.pos].pos
}

func (it *iterator) skipToMatch() {
	for it.Valid() && len(it.prefix) > 0 && !bytes.HasPrefix(it.items[it.pos].key, it.prefix) {
		if it.reverse {
			it.pos--
		} else {
			it.pos++
		}
	}
}
