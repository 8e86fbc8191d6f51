package merge

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/fio"
	"github.com/flashkv/flashkv/internal/index/btree"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/internal/segment"
	"github.com/flashkv/flashkv/pkg/options"
)

type harness struct {
	dir         string
	idx         *btree.Index
	active      *segment.Segment
	activeMu    sync.RWMutex
	old         map[uint32]*segment.Segment
	oldMu       sync.RWMutex
	reclaimSize atomic.Uint64
	log         *zap.SugaredLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)

	h := &harness{
		dir: t.TempDir(),
		idx: btree.New(),
		old: make(map[uint32]*segment.Segment),
		log: l.Sugar(),
	}

	active, err := segment.Open(h.dir, 1, fio.KindFile, h.log)
	require.NoError(t, err)
	h.active = active
	return h
}

// writeLive writes key/value into seg, replacing the index
// entry (and accounting the old position as reclaimable, matching what
// the real engine does on overwrite).
func (h *harness) writeLive(t *testing.T, seg *segment.Segment, key, value []byte) {
	t.Helper()
	rec := record.Record{Type: record.TypeNormal, Key: record.EncodeKeyWithSeqNo(key, 0), Value: value}
	pos, err := seg.Write(record.Encode(rec))
	require.NoError(t, err)
	if old, existed := h.idx.Put(key, pos); existed {
		h.reclaimSize.Add(uint64(old.Size))
	}
}

func (h *harness) params() Params {
	return Params{
		Options: &options.Options{DirPath: h.dir, DataFileSize: 1 << 20, FileMergeThreshold: 0.1},
		Index:   h.idx,
		ActiveMu: &h.activeMu,
		GetActive: func() *segment.Segment { return h.active },
		SetActive: func(s *segment.Segment) { h.active = s },
		OldMu: &h.oldMu,
		ListOldIDs: func() []uint32 {
			ids := make([]uint32, 0, len(h.old))
			for id := range h.old {
				ids = append(ids, id)
			}
			return ids
		},
		GetOldSeg: func(id uint32) *segment.Segment { return h.old[id] },
		AddOldSeg: func(id uint32, seg *segment.Segment) { h.old[id] = seg },
		MergingCh:   make(chan struct{}, 1),
		ReclaimSize: &h.reclaimSize,
		Log:         h.log,
	}
}

func TestMergeNoopOnEmptyIndex(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, Run(h.params()))

	_, err := os.Stat(stagingDir(h.dir))
	assert.True(t, os.IsNotExist(err))
}

func TestMergeBelowThresholdReturnsError(t *testing.T) {
	h := newHarness(t)
	h.writeLive(t, h.active, []byte("k"), []byte("v"))

	p := h.params()
	p.Options.FileMergeThreshold = 0.99
	err := Run(p)
	assert.Error(t, err)
}

func TestMergeRewritesLiveRecordsAndPromotes(t *testing.T) {
	h := newHarness(t)

	// Two writes of "a" (only the second is live) plus one live key
	// "b", all in the active segment that Run retires as its only
	// merge source.
	h.writeLive(t, h.active, []byte("a"), []byte("v1"))
	h.writeLive(t, h.active, []byte("b"), []byte("v2"))
	h.writeLive(t, h.active, []byte("a"), []byte("v1-updated"))

	require.NoError(t, Run(h.params()))

	// A fresh engine-style open promotes the merge output.
	require.NoError(t, LoadMergeFiles(h.dir, h.log))

	_, err := os.Stat(stagingDir(h.dir))
	assert.True(t, os.IsNotExist(err), "staging directory should be removed after promotion")

	// Replay the promoted files and confirm only live data survives.
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)

	var dataFiles []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == options.DataFileSuffix {
			dataFiles = append(dataFiles, e.Name())
		}
	}
	require.NotEmpty(t, dataFiles)

	found := map[string]string{}
	for _, name := range dataFiles {
		idStr := name[:len(name)-len(options.DataFileSuffix)]
		var id uint32
		for _, c := range idStr {
			id = id*10 + uint32(c-'0')
		}
		seg, err := segment.Open(h.dir, id, fio.KindFile, h.log)
		require.NoError(t, err)

		var offset int64
		for {
			rec, size, err := seg.ReadRecordAt(offset)
			if err != nil {
				break
			}
			if rec.Type == record.TypeNormal {
				key, _ := record.DecodeKeyWithSeqNo(rec.Key)
				found[string(key)] = string(rec.Value)
			}
			offset += size
		}
		seg.Close()
	}

	assert.Equal(t, "v1-updated", found["a"])
	assert.Equal(t, "v2", found["b"])
}

func TestMergeInProgressRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	h.writeLive(t, h.active, []byte("k"), []byte("v"))

	p := h.params()
	p.MergingCh <- struct{}{}

	err := Run(p)
	assert.Error(t, err)
}
