// Package batch implements WriteBatch, a group of Put/Delete
// operations applied to the engine atomically: every record in a
// batch is written under a single sequence number and only becomes
// visible to readers once a closing TxnFinished record has been
// durably appended and the index has been updated for every pending
// write.
package batch

import (
	"sync"

	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/flasherrors"
	"github.com/flashkv/flashkv/pkg/options"
)

// Engine is the subset of *engine.Engine a WriteBatch needs. Declaring
// it here (rather than importing internal/engine directly) avoids a
// cycle, since the engine package is what constructs WriteBatch
// instances.
type Engine interface {
	AppendRecord(rec record.Record) (record.Position, error)
	NextSeqNo() uint64
	IndexPut(key []byte, pos record.Position) (record.Position, bool)
	IndexGet(key []byte) (record.Position, bool)
	IndexDelete(key []byte) (record.Position, bool)
	AddReclaimable(size uint32)
	CommitLock() *sync.Mutex
	Sync() error
}

// WriteBatch accumulates pending writes and applies them to its
// owning engine as a single atomic unit on Commit. It holds a
// non-owning reference to that engine: a WriteBatch never outlives a
// single call site and is never stored past the call that created it.
type WriteBatch struct {
	mu      sync.Mutex
	pending map[string]record.Record
	engine  Engine
	opts    options.WriteBatchOptions
}

// New constructs a WriteBatch bound to engine.
func New(engine Engine, opts options.WriteBatchOptions) *WriteBatch {
	return &WriteBatch{pending: make(map[string]record.Record), engine: engine, opts: opts}
}

// Put stages a key/value write. Staged writes are not visible to
// readers, nor durable, until Commit succeeds.
func (wb *WriteBatch) Put(key, value []byte) error {
	if len(key) == 0 {
		return flasherrors.ErrKeyIsEmpty
	}

	wb.mu.Lock()
	defer wb.mu.Unlock()
	wb.pending[string(key)] = record.Record{Type: record.TypeNormal, Key: key, Value: value}
	return nil
}

// Delete stages a key removal. If the key has no existing index entry
// and isn't itself a pending write, Delete is a no-op: there's nothing
// to remove and no tombstone needs to be staged for recovery to see.
func (wb *WriteBatch) Delete(key []byte) error {
	if len(key) == 0 {
		return flasherrors.ErrKeyIsEmpty
	}

	wb.mu.Lock()
	defer wb.mu.Unlock()

	if _, ok := wb.engine.IndexGet(key); !ok {
		delete(wb.pending, string(key))
		return nil
	}

	wb.pending[string(key)] = record.Record{Type: record.TypeDeleted, Key: key}
	return nil
}

// Commit writes every staged record under a freshly allocated
// sequence number, followed by a TxnFinished marker, then applies the
// staged mutations to the index. An empty batch commits as a no-op.
func (wb *WriteBatch) Commit() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if len(wb.pending) == 0 {
		return nil
	}
	if uint(len(wb.pending)) > wb.opts.MaxBatchNum {
		return flasherrors.ErrExceedMaxBatchNum
	}

	lock := wb.engine.CommitLock()
	lock.Lock()
	defer lock.Unlock()

	seqNo := wb.engine.NextSeqNo()

	positions := make(map[string]record.Position, len(wb.pending))
	for k, rec := range wb.pending {
		keyed := record.Record{
			Type:  rec.Type,
			Key:   record.EncodeKeyWithSeqNo(rec.Key, seqNo),
			Value: rec.Value,
		}
		pos, err := wb.engine.AppendRecord(keyed)
		if err != nil {
			return err
		}
		positions[k] = pos
	}

	finish := record.Record{Type: record.TypeTxnFinished, Key: record.EncodeKeyWithSeqNo(record.TxnFinishedKey, seqNo)}
	if _, err := wb.engine.AppendRecord(finish); err != nil {
		return err
	}

	if wb.opts.SyncWrites {
		if err := wb.engine.Sync(); err != nil {
			return err
		}
	}

	for k, rec := range wb.pending {
		pos := positions[k]
		switch rec.Type {
		case record.TypeNormal:
			if old, existed := wb.engine.IndexPut(rec.Key, pos); existed {
				wb.engine.AddReclaimable(old.Size)
			}
		case record.TypeDeleted:
			if old, existed := wb.engine.IndexDelete(rec.Key); existed {
				wb.engine.AddReclaimable(old.Size)
			}
		}
	}

	wb.pending = make(map[string]record.Record)
	return nil
}
