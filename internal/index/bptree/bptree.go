// Package bptree implements a self-durable on-disk Index backed by
// go.etcd.io/bbolt. Unlike the btree and skiplist variants, this index
// is never rebuilt from the data files: bbolt fsyncs its own B+ tree
// pages, so the engine skips log replay entirely when this backend is
// selected (see internal/engine's recovery path).
package bptree

import (
	"bytes"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/flashkv/flashkv/internal/index/iface"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/flasherrors"
	"github.com/flashkv/flashkv/pkg/options"
)

// FileName is the fixed name of the bbolt database file within an
// engine's data directory.
const FileName = "flash-kv-index.bptree"

var bucketName = []byte("flashkv-index")

// Index is an on-disk key index backed by a single-bucket bbolt
// database.
type Index struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the B+ tree index file within dir.
func Open(dir string) (*Index, error) {
	db, err := bbolt.Open(filepath.Join(dir, FileName), 0644, bbolt.DefaultOptions)
	if err != nil {
		return nil, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to open bptree index file").
			WithPath(dir)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, flasherrors.NewIndexError(err, flasherrors.ErrorCodeIndexCorrupted, "failed to initialize bptree bucket").
			WithOperation("Open")
	}

	return &Index{db: db}, nil
}

func (idx *Index) Put(key []byte, pos record.Position) (record.Position, bool) {
	var old record.Position
	var found bool

	idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if existing := b.Get(key); existing != nil {
			if p, err := record.DecodePosition(existing); err == nil {
				old, found = p, true
			}
		}
		return b.Put(key, record.EncodePosition(pos))
	})

	return old, found
}

func (idx *Index) Get(key []byte) (record.Position, bool) {
	var pos record.Position
	var found bool

	idx.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if raw := b.Get(key); raw != nil {
			if p, err := record.DecodePosition(raw); err == nil {
				pos, found = p, true
			}
		}
		return nil
	})

	return pos, found
}

func (idx *Index) Delete(key []byte) (record.Position, bool) {
	var old record.Position
	var found bool

	idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if existing := b.Get(key); existing != nil {
			if p, err := record.DecodePosition(existing); err == nil {
				old, found = p, true
			}
		}
		return b.Delete(key)
	})

	return old, found
}

func (idx *Index) ListKeys() [][]byte {
	var keys [][]byte

	idx.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
	})

	return keys
}

func (idx *Index) Iterator(opts options.IteratorOptions) iface.Iterator {
	tx, err := idx.db.Begin(false)
	if err != nil {
		return &iterator{}
	}

	return newIterator(tx, tx.Bucket(bucketName).Cursor(), opts.Prefix, opts.Reverse)
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

var _ iface.Index = (*Index)(nil)

// iterator walks a bbolt cursor within its own read-only transaction,
// which is rolled back once iteration is exhausted; after that the
// iterator yields no keys, even after Rewind or Seek. An iterator
// abandoned before exhaustion keeps its transaction open.
type iterator struct {
	tx      *bbolt.Tx
	cursor  *bbolt.Cursor
	prefix  []byte
	reverse bool
	key     []byte
	value   []byte
}

func newIterator(tx *bbolt.Tx, c *bbolt.Cursor, prefix []byte, reverse bool) *iterator {
	it := &iterator{tx: tx, cursor: c, prefix: prefix, reverse: reverse}
	it.Rewind()
	return it
}

func (it *iterator) Rewind() {
	if it.cursor == nil {
		return
	}
	if it.reverse {
		it.key, it.value = it.cursor.Last()
	} else {
		it.key, it.value = it.cursor.First()
	}
	it.skipToMatch()
}

func (it *iterator) Seek(key []byte) {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Seek(key)
	if it.reverse && (it.key == nil || !bytes.Equal(it.key, key)) {
		it.key, it.value = it.cursor.Prev()
	}
	it.skipToMatch()
}

func (it *iterator) Valid() bool {
	return it.key != nil
}

func (it *iterator) Next() {
	if it.cursor == nil {
		return
	}
	if it.reverse {
		it.key, it.value = it.cursor.Prev()
	} else {
		it.key, it.value = it.cursor.Next()
	}
	it.skipToMatch()
}

func (it *iterator) Key() []byte {
	return it.key
}

func (it *iterator) Position() record.Position {
	p, _ := record.DecodePosition(it.value)
	return p
}

func (it *iterator) skipToMatch() {
	for it.Valid() && len(it.prefix) > 0 && !bytes.HasPrefix(it.key, it.prefix) {
		it.Next()
	}
	if !it.Valid() && it.tx != nil {
		it.tx.Rollback()
		it.tx, it.cursor = nil, nil
	}
}
