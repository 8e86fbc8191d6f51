// Package engine implements the Flash-KV storage engine: the public
// operations (Put, Get, Delete, ListKeys, Iterator, Sync, Close, Stat,
// Backup, Merge, NewWriteBatch) plus the append-path rotation and
// crash-recovery logic that keep the in-memory index consistent with
// what is durably on disk.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/index"
	"github.com/flashkv/flashkv/internal/segment"
	"github.com/flashkv/flashkv/pkg/options"
)

// Config bundles the dependencies a new Engine is constructed from,
// following the Options+Logger constructor pattern used throughout
// this module.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// Engine is a single open Flash-KV database.
type Engine struct {
	opts *options.Options
	log  *zap.SugaredLogger

	closed atomic.Bool

	idx index.Index

	activeMu      sync.RWMutex
	activeSegment *segment.Segment

	oldMu       sync.RWMutex
	oldSegments map[uint32]*segment.Segment

	seqNo       atomic.Uint64
	bytesWrite  atomic.Uint64
	reclaimSize atomic.Uint64

	batchCommitMu sync.Mutex
	mergingCh     chan struct{}

	dirLock *flock.Flock

	seqFileExists bool
	isInitial     bool
}

// Stat summarizes the engine's current on-disk footprint, used to
// decide whether Merge is worth running and to report operational
// health.
type Stat struct {
	KeyCount     int
	DataFileNum  int
	ReclaimSize  int64
	DiskSize     int64
}
