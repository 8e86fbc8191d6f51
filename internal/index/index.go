// Package index defines the pluggable key-to-position index the
// engine keeps in memory (or, for the B+ tree variant, on disk) to
// serve reads without scanning segment files. Three implementations
// are provided, selected by options.IndexType: an ordered in-memory
// tree, a skip list, and a self-durable on-disk B+ tree.
package index

import (
	"github.com/flashkv/flashkv/internal/index/bptree"
	"github.com/flashkv/flashkv/internal/index/btree"
	"github.com/flashkv/flashkv/internal/index/iface"
	"github.com/flashkv/flashkv/internal/index/skiplist"
	"github.com/flashkv/flashkv/pkg/options"
)

// Index and Iterator are re-exported from iface so callers only need
// to import this facade package.
type (
	Index    = iface.Index
	Iterator = iface.Iterator
)

// New constructs the index backend named by typ. dirPath is only used
// by the on-disk B+ tree variant.
func New(typ options.IndexType, dirPath string) (Index, error) {
	switch typ {
	case options.IndexSkipList:
		return skiplist.New(), nil
	case options.IndexBPlusTree:
		return bptree.Open(dirPath)
	default:
		return btree.New(), nil
	}
}
