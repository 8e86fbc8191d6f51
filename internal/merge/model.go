// Package merge implements compaction: rewriting every live record
// across a database's segment files into a fresh, contiguous set of
// files so dead space from overwrites and deletes can be reclaimed.
// The rewrite happens in a staging directory; promotion into the live
// directory is deferred to the next engine Open so a crash mid-merge
// never corrupts the live dataset.
package merge

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/index"
	"github.com/flashkv/flashkv/internal/segment"
	"github.com/flashkv/flashkv/pkg/options"
)

// Params bundles the live engine state Run needs: enough to retire
// the active segment into an immutable source file, read every source
// segment's records, and check whether each one is still the live
// version the index points at.
type Params struct {
	Options *options.Options
	Index   index.Index

	ActiveMu  *sync.RWMutex
	GetActive func() *segment.Segment
	SetActive func(*segment.Segment)

	OldMu      *sync.RWMutex
	ListOldIDs func() []uint32
	GetOldSeg  func(id uint32) *segment.Segment
	AddOldSeg  func(id uint32, seg *segment.Segment)

	// MergingCh is a capacity-1 channel used as a non-blocking mutex:
	// Run tries to send on it to acquire the merge lock and receives
	// from it to release, so a concurrent Merge call fails fast with
	// ErrMergeInProgress instead of blocking.
	MergingCh chan struct{}

	ReclaimSize *atomic.Uint64

	Log *zap.SugaredLogger
}
