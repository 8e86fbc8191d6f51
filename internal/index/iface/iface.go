// Package iface defines the Index and Iterator contracts implemented
// by each concrete index backend (btree, skiplist, bptree). It exists
// so those backend packages can satisfy the contract without importing
// the index facade package that selects among them, avoiding an import
// cycle.
package iface

import (
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/options"
)

// Index maps keys to their most recent Position. Put returns the
// position it replaced, if any, so the caller can track reclaimable
// bytes; Delete likewise returns the position it removed.
type Index interface {
	Put(key []byte, pos record.Position) (record.Position, bool)
	Get(key []byte) (record.Position, bool)
	Delete(key []byte) (record.Position, bool)
	ListKeys() [][]byte
	Iterator(opts options.IteratorOptions) Iterator
	Close() error
}

// Iterator walks an Index's keys in ascending order, or descending
// when constructed with Reverse set.
type Iterator interface {
	Rewind()
	Seek(key []byte)
	Valid() bool
	Next()
	Key() []byte
	Position() record.Position
}
