package btree

import (
	"bytes"
	"sort"

	"github.com/flashkv/flashkv/internal/record"
)

// indexIterator walks a pre-sorted (ascending) snapshot of items taken
// under the index's read lock at construction time. Reverse traversal
// walks the same ascending snapshot back to front rather than
// physically reversing it, so Seek's binary search stays valid.
type indexIterator struct {
	items   []item
	prefix  []byte
	reverse bool
	pos     int
}

func newIterator(items []item, prefix []byte, reverse bool) *indexIterator {
	it := &indexIterator{items: items, prefix: prefix, reverse: reverse}
	it.Rewind()
	return it
}

func (it *indexIterator) Rewind() {
	if it.reverse {
		it.pos = len(it.items) - 1
	} else {
		it.pos = 0
	}
	it.skipToMatch()
}

func (it *indexIterator) Seek(key []byte) {
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

func (it *indexIterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.items)
}

func (it *indexIterator) Next() {
	if it.reverse {
		it.pos--
	} else {
		it.pos++
	}
	it.skipToMatch()
}

func (it *indexIterator) Key() []byte {
	return it.items[it.pos].key
}

func (it *indexIterator) Position() record.Position {
	return it.items[it.pos].pos
}

func (it *indexIterator) skipToMatch() {
	for it.Valid() && len(it.prefix) > 0 && !bytes.HasPrefix(it.items[it.pos].key, it.prefix) {
		if it.reverse {
			it.pos--
		} else {
			it.pos++
		}
	}
}
