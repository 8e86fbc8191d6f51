// Package options provides the configuration surface for the Flash-KV
// storage engine. It defines the parameters that control durability,
// segment rotation, index backend selection and merge behavior, along
// with the batch and iterator option structs used by the engine's
// write-batch and iteration APIs.
package options

import (
	"os"
	"path/filepath"
	"strings"
)

// IndexType selects which in-memory or on-disk index backend the engine
// uses to map keys to their record positions.
type IndexType uint8

const (
	// IndexBTree is an ordered in-memory tree index. Rebuilt from the
	// data files (or a hint file) on every open.
	IndexBTree IndexType = iota

	// IndexSkipList is a probabilistic ordered in-memory index. Rebuilt
	// from the data files (or a hint file) on every open.
	IndexSkipList

	// IndexBPlusTree is a self-durable on-disk index. It is never
	// rebuilt from the data files; recovery skips log replay entirely
	// when this variant is selected.
	IndexBPlusTree
)

func (t IndexType) String() string {
	switch t {
	case IndexBTree:
		return "btree"
	case IndexSkipList:
		return "skiplist"
	case IndexBPlusTree:
		return "bptree"
	default:
		return "unknown"
	}
}

// Options defines the configuration parameters for a Flash-KV engine
// instance. It controls where data lives on disk, how segments rotate,
// which index backend is active and how aggressively data is synced.
type Options struct {
	// DirPath is the directory the engine stores its segment, hint,
	// merge-finished, seq-no and lock files in.
	//
	// Default: {temp_dir}/flash-kv
	DirPath string `json:"dirPath"`

	// DataFileSize is the maximum size, in bytes, a segment may grow to
	// before the engine rotates to a new active segment.
	//
	// Default: 256 MiB
	DataFileSize int64 `json:"dataFileSize"`

	// SyncWrites, when true, fsyncs the active segment after every
	// write. When false, durability is bounded by BytesPerSync and the
	// operating system's own page-cache flush policy.
	//
	// Default: false
	SyncWrites bool `json:"syncWrites"`

	// BytesPerSync fsyncs the active segment once this many bytes have
	// been written to it since the last sync. Zero disables
	// threshold-based syncing.
	//
	// Default: 0
	BytesPerSync uint64 `json:"bytesPerSync"`

	// IndexType selects the index backend.
	//
	// Default: IndexBTree
	IndexType IndexType `json:"indexType"`

	// MmapAtStartup, when true, uses a read-only memory-mapped I/O
	// backend while scanning data files during recovery, then swaps
	// every segment back to a buffered file backend before accepting
	// writes.
	//
	// Default: true
	MmapAtStartup bool `json:"mmapAtStartup"`

	// FileMergeThreshold is the minimum ratio of reclaimable bytes to
	// total data-file bytes required before Merge will proceed. Must
	// be in [0, 1].
	//
	// Default: 0.6
	FileMergeThreshold float64 `json:"fileMergeThreshold"`
}

// WriteBatchOptions configures an individual write-batch's commit
// behavior.
type WriteBatchOptions struct {
	// MaxBatchNum caps how many pending writes a single batch may
	// accumulate before Commit rejects it.
	//
	// Default: 1000
	MaxBatchNum uint `json:"maxBatchNum"`

	// SyncWrites, when true, fsyncs the active segment once a batch's
	// records (including its TxnFinished marker) have all been
	// written.
	//
	// Default: true
	SyncWrites bool `json:"syncWrites"`
}

// IteratorOptions configures key traversal order and filtering.
type IteratorOptions struct {
	// Prefix restricts iteration to keys beginning with this byte
	// sequence. An empty prefix visits every key.
	Prefix []byte `json:"prefix"`

	// Reverse, when true, iterates keys in descending order.
	//
	// Default: false
	Reverse bool `json:"reverse"`
}

// OptionFunc mutates an Options value. Functional options are applied,
// in order, on top of NewDefaultOptions.
type OptionFunc func(*Options)

// WithDefaultOptions resets every field to its default value.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// WithDirPath sets the engine's data directory.
func WithDirPath(dir string) OptionFunc {
	return func(o *Options) {
		dir = strings.TrimSpace(dir)
		if dir != "" {
			o.DirPath = dir
		}
	}
}

// WithDataFileSize sets the maximum size of a segment before rotation.
func WithDataFileSize(size int64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.DataFileSize = size
		}
	}
}

// WithSyncWrites toggles fsync-after-every-write behavior.
func WithSyncWrites(sync bool) OptionFunc {
	return func(o *Options) {
		o.SyncWrites = sync
	}
}

// WithBytesPerSync sets the threshold-based sync interval, in bytes.
func WithBytesPerSync(bytes uint64) OptionFunc {
	return func(o *Options) {
		o.BytesPerSync = bytes
	}
}

// WithIndexType selects the index backend.
func WithIndexType(t IndexType) OptionFunc {
	return func(o *Options) {
		o.IndexType = t
	}
}

// WithMmapAtStartup toggles the mmap-backed recovery scan.
func WithMmapAtStartup(enabled bool) OptionFunc {
	return func(o *Options) {
		o.MmapAtStartup = enabled
	}
}

// WithFileMergeThreshold sets the reclaimable-ratio threshold required
// to run Merge. Values outside [0, 1] are ignored.
func WithFileMergeThreshold(ratio float64) OptionFunc {
	return func(o *Options) {
		if ratio >= 0 && ratio <= 1 {
			o.FileMergeThreshold = ratio
		}
	}
}

// NewDefaultOptions returns the baseline configuration every engine
// starts from before functional options are applied.
func NewDefaultOptions() Options {
	return Options{
		DirPath:            filepath.Join(os.TempDir(), "flash-kv"),
		DataFileSize:       DefaultDataFileSize,
		SyncWrites:         false,
		BytesPerSync:       0,
		IndexType:          IndexBTree,
		MmapAtStartup:      true,
		FileMergeThreshold: DefaultFileMergeThreshold,
	}
}

// NewDefaultWriteBatchOptions returns the baseline write-batch
// configuration.
func NewDefaultWriteBatchOptions() WriteBatchOptions {
	return WriteBatchOptions{MaxBatchNum: DefaultMaxBatchNum, SyncWrites: true}
}
