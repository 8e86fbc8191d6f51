// Package flashkv provides a high-performance embedded key/value store
// designed for fast read and write operations, inspired by Bitcask. It
// combines an in-memory index with an append-only log structure on
// disk to achieve high throughput, aiming to provide a simple,
// efficient, and reliable solution for embedded storage in Go
// applications.
package flashkv

import (
	"context"

	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/batch"
	"github.com/flashkv/flashkv/internal/engine"
	"github.com/flashkv/flashkv/internal/index"
	"github.com/flashkv/flashkv/pkg/options"
)

// DB is an open Flash-KV database instance. It encapsulates the core
// engine responsible for data handling and the configuration options
// this instance was opened with. DB is safe for concurrent use by
// multiple goroutines.
type DB struct {
	engine  *engine.Engine
	options *options.Options
}

// Open creates and initializes a Flash-KV database at the configured
// directory, replaying its data files to rebuild the in-memory index
// before returning. Only one process may hold a given directory open
// at a time; a second Open call against the same directory fails with
// ErrDatabaseIsUsing.
func Open(ctx context.Context, opts ...options.OptionFunc) (*DB, error) {
	log, _ := zap.NewProduction()

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.New(ctx, &engine.Config{Logger: log.Sugar(), Options: &defaultOpts})
	if err != nil {
		return nil, err
	}

	return &DB{engine: eng, options: &defaultOpts}, nil
}

// Put stores a key-value pair in the database as a single,
// immediately-visible record. If the key already exists, its value is
// overwritten. The operation is durable once written to the
// append-only log, subject to the configured sync policy.
func (db *DB) Put(key, value []byte) error {
	return db.engine.Put(key, value)
}

// Get retrieves the value associated with the given key.
func (db *DB) Get(key []byte) ([]byte, error) {
	return db.engine.Get(key)
}

// Delete removes a key-value pair from the database by appending a
// tombstone record; the stale record is reclaimed by a later Merge.
// Deleting a key that does not currently exist is a no-op.
func (db *DB) Delete(key []byte) error {
	return db.engine.Delete(key)
}

// ListKeys returns every key currently live in the database.
func (db *DB) ListKeys() [][]byte {
	return db.engine.ListKeys()
}

// Iterator returns an iterator walking the database's live keys
// according to opts.
func (db *DB) Iterator(opts options.IteratorOptions) index.Iterator {
	return db.engine.Iterator(opts)
}

// Sync flushes the active data file to stable storage.
func (db *DB) Sync() error {
	return db.engine.Sync()
}

// Stat reports the database's current key count, data-file count,
// reclaimable bytes, and on-disk size.
func (db *DB) Stat() (engine.Stat, error) {
	return db.engine.GetStat()
}

// Backup copies the database directory to dest, excluding the
// advisory lock file, so the copy can be opened independently of this
// instance.
func (db *DB) Backup(dest string) error {
	return db.engine.Backup(dest)
}

// Merge runs compaction, rewriting every live record into a fresh set
// of data files so space held by overwritten and deleted keys can be
// reclaimed. The rewritten files only take effect the next time the
// database is opened.
func (db *DB) Merge() error {
	return db.engine.Merge()
}

// NewWriteBatch constructs a WriteBatch bound to this database. Every
// Put and Delete staged on the batch becomes visible atomically, and
// only, when Commit succeeds.
func (db *DB) NewWriteBatch(opts options.WriteBatchOptions) (*batch.WriteBatch, error) {
	return db.engine.NewWriteBatch(opts)
}

// Close gracefully shuts down the database, flushing any pending
// writes, closing the index and every open data file, and releasing
// the directory lock.
func (db *DB) Close() error {
	return db.engine.Close()
}
