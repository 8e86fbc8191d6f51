package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/batch"
	"github.com/flashkv/flashkv/internal/fio"
	"github.com/flashkv/flashkv/internal/index"
	"github.com/flashkv/flashkv/internal/merge"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/internal/segment"
	"github.com/flashkv/flashkv/pkg/flasherrors"
	"github.com/flashkv/flashkv/pkg/filesys"
	"github.com/flashkv/flashkv/pkg/options"
)

// New opens (creating if necessary) the database rooted at
// config.Options.DirPath, replaying its data files to rebuild the
// in-memory index before returning.
func New(ctx context.Context, config *Config) (*Engine, error) {
	if err := checkOptions(config.Options); err != nil {
		return nil, err
	}

	log := config.Logger
	if log == nil {
		z, _ := zap.NewProduction()
		log = z.Sugar()
	}

	isInitial, err := ensureDir(config.Options.DirPath, log)
	if err != nil {
		return nil, err
	}

	dirLock := flock.New(filepath.Join(config.Options.DirPath, options.LockFileName))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to acquire database directory lock").
			WithPath(config.Options.DirPath)
	}
	if !locked {
		return nil, flasherrors.ErrDatabaseIsUsing
	}

	e := &Engine{
		opts:        config.Options,
		log:         log,
		oldSegments: make(map[uint32]*segment.Segment),
		mergingCh:   make(chan struct{}, 1),
		dirLock:     dirLock,
		isInitial:   isInitial,
	}

	if err := merge.LoadMergeFiles(config.Options.DirPath, log); err != nil {
		dirLock.Unlock()
		return nil, err
	}

	ioKind := fio.KindFile
	if config.Options.MmapAtStartup {
		ioKind = fio.KindMmap
	}

	fileIDs, err := loadSegmentIDs(config.Options.DirPath)
	if err != nil {
		dirLock.Unlock()
		return nil, err
	}

	idx, err := index.New(config.Options.IndexType, config.Options.DirPath)
	if err != nil {
		dirLock.Unlock()
		return nil, err
	}
	e.idx = idx

	if err := e.loadSegments(fileIDs, ioKind); err != nil {
		dirLock.Unlock()
		return nil, err
	}

	// The hint file, if a prior merge promoted one, is loaded first and
	// for every index variant: it repoints any key merge rewrote into a
	// new, low-numbered file at its new position, which matters even for
	// the self-durable B+tree index, since merge never updates that
	// index directly (see internal/merge.Run) and the files its stale
	// entries pointed at are deleted by LoadMergeFiles.
	if err := e.loadIndexFromHintFile(); err != nil {
		dirLock.Unlock()
		return nil, err
	}

	if config.Options.IndexType != options.IndexBPlusTree {
		seqNo, err := e.loadIndexFromDataFiles(fileIDs)
		if err != nil {
			dirLock.Unlock()
			return nil, err
		}
		e.seqNo.Store(seqNo)
	} else {
		seqNo, exists, err := e.loadSeqNoFile()
		if err != nil {
			dirLock.Unlock()
			return nil, err
		}
		e.seqFileExists = exists
		e.seqNo.Store(seqNo)
	}

	if config.Options.MmapAtStartup {
		if err := e.resetIOType(); err != nil {
			dirLock.Unlock()
			return nil, err
		}
	}

	// The seq-no file is only ever consulted at open. Removing it here,
	// after every other part of open has already succeeded, means a
	// crash partway through open leaves it in place for the next
	// attempt to read instead of silently losing the counter.
	if e.seqFileExists {
		seqNoPath := filepath.Join(config.Options.DirPath, options.SeqNoFileName)
		if err := os.Remove(seqNoPath); err != nil && !os.IsNotExist(err) {
			log.Warnw("failed to remove stale seq-no file", "error", err)
		}
	}

	log.Infow("engine opened", "dir", config.Options.DirPath, "index", config.Options.IndexType.String())
	return e, nil
}

func checkOptions(o *options.Options) error {
	if o == nil || o.DirPath == "" {
		return flasherrors.NewRequiredFieldError("DirPath")
	}
	if o.DataFileSize <= 0 {
		return flasherrors.NewFieldRangeError("DataFileSize", o.DataFileSize, 1, nil)
	}
	if o.FileMergeThreshold < 0 || o.FileMergeThreshold > 1 {
		return flasherrors.NewFieldRangeError("FileMergeThreshold", o.FileMergeThreshold, 0, 1)
	}
	if o.IndexType > options.IndexBPlusTree {
		return flasherrors.NewConfigurationValidationError("IndexType", "unrecognized index type")
	}
	return nil
}

func ensureDir(dir string, log *zap.SugaredLogger) (isInitial bool, err error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
			return false, flasherrors.ClassifyDirectoryCreationError(mkErr, dir)
		}
		log.Infow("created database directory", "dir", dir)
		return true, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to read database directory").WithPath(dir)
	}
	return len(entries) == 0, nil
}

// loadSegmentIDs lists every numbered data file in dir, in ascending
// order. A malformed entry means the directory was tampered with
// outside the engine and recovery cannot proceed.
func loadSegmentIDs(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, flasherrors.ErrFailedToReadDir
	}

	var ids []uint32
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != options.DataFileSuffix {
			continue
		}

		idStr := name[:len(name)-len(options.DataFileSuffix)]
		id, err := parseSegmentID(idStr)
		if err != nil {
			return nil, flasherrors.ErrDatabaseDirCorrupted
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseSegmentID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func (e *Engine) loadSegments(ids []uint32, kind fio.Kind) error {
	if len(ids) == 0 {
		seg, err := segment.Open(e.opts.DirPath, 0, fio.KindFile, e.log)
		if err != nil {
			return err
		}
		e.activeSegment = seg
		return nil
	}

	for i, id := range ids {
		k := kind
		if i == len(ids)-1 {
			// the active (last, highest-id) segment is always opened
			// for writes so Put/Delete can append to it immediately.
			k = fio.KindFile
		}

		seg, err := segment.Open(e.opts.DirPath, id, k, e.log)
		if err != nil {
			return err
		}

		if i == len(ids)-1 {
			e.activeSegment = seg
		} else {
			e.oldSegments[id] = seg
		}
	}

	return nil
}

// resetIOType swaps every mmap-backed old segment back to a buffered
// file backend once the recovery scan has finished, so subsequent
// reads and the merge path can rely on a single backend kind.
func (e *Engine) resetIOType() error {
	if !e.opts.MmapAtStartup {
		return nil
	}

	e.oldMu.Lock()
	defer e.oldMu.Unlock()
	for _, seg := range e.oldSegments {
		if err := seg.SwapBackend(fio.KindFile); err != nil {
			return err
		}
	}
	return nil
}

// rotateIfNeeded retires the active segment into oldSegments and opens
// a fresh one when appending encodedLen more bytes would grow the
// active segment past DataFileSize — checked before the write lands,
// not after, so a segment only exceeds the configured size when a
// single record is itself larger than DataFileSize.
func (e *Engine) rotateIfNeeded(encodedLen int64) error {
	if e.activeSegment.WriteOff()+encodedLen <= e.opts.DataFileSize {
		return nil
	}

	if err := e.activeSegment.Sync(); err != nil {
		return err
	}

	e.oldMu.Lock()
	e.oldSegments[e.activeSegment.ID] = e.activeSegment
	e.oldMu.Unlock()

	next, err := segment.Open(e.opts.DirPath, e.activeSegment.ID+1, fio.KindFile, e.log)
	if err != nil {
		return err
	}
	e.activeSegment = next
	return nil
}

// AppendRecord serializes rec and appends it to the active segment,
// rotating to a new segment first if the active one is full.
// Satisfies batch.Engine.
func (e *Engine) AppendRecord(rec record.Record) (record.Position, error) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	buf := record.Encode(rec)
	if err := e.rotateIfNeeded(int64(len(buf))); err != nil {
		return record.Position{}, err
	}

	pos, err := e.activeSegment.Write(buf)
	if err != nil {
		return record.Position{}, err
	}

	written := e.bytesWrite.Add(uint64(len(buf)))
	needSync := e.opts.SyncWrites
	if !needSync && e.opts.BytesPerSync > 0 && written >= e.opts.BytesPerSync {
		needSync = true
	}
	if needSync {
		if err := e.activeSegment.Sync(); err != nil {
			return record.Position{}, err
		}
		e.bytesWrite.Store(0)
	}

	return pos, nil
}

// NextSeqNo allocates the next write-batch sequence number. Satisfies
// batch.Engine.
func (e *Engine) NextSeqNo() uint64 {
	return e.seqNo.Add(1)
}

// IndexPut satisfies batch.Engine.
func (e *Engine) IndexPut(key []byte, pos record.Position) (record.Position, bool) {
	return e.idx.Put(key, pos)
}

// IndexGet satisfies batch.Engine.
func (e *Engine) IndexGet(key []byte) (record.Position, bool) {
	return e.idx.Get(key)
}

// IndexDelete satisfies batch.Engine.
func (e *Engine) IndexDelete(key []byte) (record.Position, bool) {
	return e.idx.Delete(key)
}

// AddReclaimable accumulates bytes made dead by an overwrite or
// delete, used to decide when Merge is worth running. Satisfies
// batch.Engine.
func (e *Engine) AddReclaimable(size uint32) {
	e.reclaimSize.Add(uint64(size))
}

// CommitLock returns the mutex write-batch commits serialize on.
// Satisfies batch.Engine.
func (e *Engine) CommitLock() *sync.Mutex {
	return &e.batchCommitMu
}

// Put writes key/value as a single, immediately-visible record.
func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return flasherrors.ErrKeyIsEmpty
	}

	rec := record.Record{
		Type:  record.TypeNormal,
		Key:   record.EncodeKeyWithSeqNo(key, record.NonTxnSeqNo),
		Value: value,
	}

	pos, err := e.AppendRecord(rec)
	if err != nil {
		return err
	}

	if old, existed := e.idx.Put(key, pos); existed {
		e.reclaimSize.Add(uint64(old.Size))
	}
	return nil
}

// Get looks up key's current value.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, flasherrors.ErrKeyIsEmpty
	}

	pos, ok := e.idx.Get(key)
	if !ok {
		return nil, flasherrors.ErrKeyNotFound
	}

	rec, err := e.readRecordAt(pos)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

func (e *Engine) readRecordAt(pos record.Position) (record.Record, error) {
	seg := e.segmentByID(pos.FileID)
	if seg == nil {
		return record.Record{}, flasherrors.ErrDataFileNotFound
	}

	rec, _, err := seg.ReadRecordAt(int64(pos.Offset))
	if err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

func (e *Engine) segmentByID(id uint32) *segment.Segment {
	e.activeMu.RLock()
	if e.activeSegment != nil && e.activeSegment.ID == id {
		s := e.activeSegment
		e.activeMu.RUnlock()
		return s
	}
	e.activeMu.RUnlock()

	e.oldMu.RLock()
	defer e.oldMu.RUnlock()
	return e.oldSegments[id]
}

// Delete removes key by appending a tombstone record. If the key does
// not currently exist, Delete is a no-op and nothing is appended.
func (e *Engine) Delete(key []byte) error {
	if len(key) == 0 {
		return flasherrors.ErrKeyIsEmpty
	}

	if _, ok := e.idx.Get(key); !ok {
		return nil
	}

	rec := record.Record{Type: record.TypeDeleted, Key: record.EncodeKeyWithSeqNo(key, record.NonTxnSeqNo)}
	if _, err := e.AppendRecord(rec); err != nil {
		return err
	}

	if old, existed := e.idx.Delete(key); existed {
		e.reclaimSize.Add(uint64(old.Size))
	}
	return nil
}

// ListKeys returns every live key.
func (e *Engine) ListKeys() [][]byte {
	return e.idx.ListKeys()
}

// Iterator returns an iterator over live keys per opts.
func (e *Engine) Iterator(opts options.IteratorOptions) index.Iterator {
	return e.idx.Iterator(opts)
}

// Sync flushes the active segment to stable storage.
func (e *Engine) Sync() error {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()
	return e.activeSegment.Sync()
}

// GetStat reports the engine's current key count, data-file count,
// reclaimable bytes, and on-disk size.
func (e *Engine) GetStat() (Stat, error) {
	e.oldMu.RLock()
	fileCount := len(e.oldSegments) + 1
	e.oldMu.RUnlock()

	size, err := filesys.DirSize(e.opts.DirPath)
	if err != nil {
		return Stat{}, err
	}

	return Stat{
		KeyCount:    len(e.idx.ListKeys()),
		DataFileNum: fileCount,
		ReclaimSize: int64(e.reclaimSize.Load()),
		DiskSize:    size,
	}, nil
}

// Backup copies the database directory to dest, excluding the
// advisory lock file so the copy can be opened independently.
func (e *Engine) Backup(dest string) error {
	return filesys.CopyDirExcluding(e.opts.DirPath, dest, []string{options.LockFileName})
}

// Merge runs compaction, see internal/merge.
func (e *Engine) Merge() error {
	return merge.Run(merge.Params{
		Options:   e.opts,
		Index:     e.idx,
		ActiveMu:  &e.activeMu,
		GetActive: func() *segment.Segment { return e.activeSegment },
		SetActive: func(s *segment.Segment) { e.activeSegment = s },
		OldMu:     &e.oldMu,
		ListOldIDs: func() []uint32 {
			ids := make([]uint32, 0, len(e.oldSegments))
			for id := range e.oldSegments {
				ids = append(ids, id)
			}
			return ids
		},
		GetOldSeg: func(id uint32) *segment.Segment { return e.oldSegments[id] },
		AddOldSeg: func(id uint32, seg *segment.Segment) { e.oldSegments[id] = seg },
		MergingCh:   e.mergingCh,
		ReclaimSize: &e.reclaimSize,
		Log:         e.log,
	})
}

// Close persists the allocated sequence number (when the selected
// index is self-durable and thus skips log replay on the next open),
// flushes and closes every open segment, closes the index, and
// releases the directory lock.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs error

	if e.opts.IndexType == options.IndexBPlusTree {
		if err := e.persistSeqNo(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	e.activeMu.Lock()
	if e.activeSegment != nil {
		errs = multierr.Append(errs, e.activeSegment.Sync())
		errs = multierr.Append(errs, e.activeSegment.Close())
	}
	e.activeMu.Unlock()

	e.oldMu.Lock()
	for _, seg := range e.oldSegments {
		errs = multierr.Append(errs, seg.Close())
	}
	e.oldMu.Unlock()

	if e.idx != nil {
		errs = multierr.Append(errs, e.idx.Close())
	}

	errs = multierr.Append(errs, e.dirLock.Unlock())

	e.log.Infow("engine closed", "dir", e.opts.DirPath)
	return errs
}

// NewWriteBatch constructs a WriteBatch bound to this engine. The
// B+ tree index variant requires either a fresh (never-before-opened)
// database or a seq-no file from a prior clean close; otherwise it
// has no reliable way to continue the sequence-number count, since it
// never replays the data files to recover one.
func (e *Engine) NewWriteBatch(opts options.WriteBatchOptions) (*batch.WriteBatch, error) {
	if e.opts.IndexType == options.IndexBPlusTree && !e.seqFileExists && !e.isInitial {
		return nil, flasherrors.ErrUnableToUseWriteBatch
	}
	return batch.New(e, opts), nil
}

var _ batch.Engine = (*Engine)(nil)
