package merge

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/flashkv/flashkv/internal/fio"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/internal/segment"
	"github.com/flashkv/flashkv/pkg/flasherrors"
	"github.com/flashkv/flashkv/pkg/filesys"
	"github.com/flashkv/flashkv/pkg/options"
)

// stagingDir derives the merge staging directory from the live data
// directory: a sibling directory named after it with a fixed suffix.
func stagingDir(dataDir string) string {
	return filepath.Join(filepath.Dir(dataDir), filepath.Base(dataDir)+options.MergeDirSuffix)
}

// Run performs one compaction pass: it retires the active segment,
// rewrites every live record from the now-immutable source segments
// into a fresh staging directory alongside a hint file, then marks the
// staging directory complete. The running engine keeps serving reads
// and writes from its existing (pre-merge) files throughout; the
// compacted files only take effect the next time the engine is
// opened, see LoadMergeFiles.
func Run(p Params) error {
	select {
	case p.MergingCh <- struct{}{}:
		defer func() { <-p.MergingCh }()
	default:
		return flasherrors.ErrMergeInProgress
	}

	if len(p.Index.ListKeys()) == 0 {
		return nil
	}

	totalSize, err := filesys.DirSize(p.Options.DirPath)
	if err != nil {
		return err
	}
	reclaimable := p.ReclaimSize.Load()
	if totalSize > 0 && float64(reclaimable)/float64(totalSize) < p.Options.FileMergeThreshold {
		return flasherrors.ErrMergeThresholdUnreach
	}

	liveSize := totalSize - int64(reclaimable)
	if free, err := availableDiskSpace(p.Options.DirPath); err == nil && free < uint64(liveSize) {
		return flasherrors.ErrMergeNoEnoughSpace
	}

	sourceIDs, boundary, err := rotateActiveSegment(p)
	if err != nil {
		return err
	}
	if len(sourceIDs) == 0 {
		return nil
	}

	dir := stagingDir(p.Options.DirPath)
	if err := os.RemoveAll(dir); err != nil {
		return flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to clear merge staging directory").WithPath(dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return flasherrors.ClassifyDirectoryCreationError(err, dir)
	}

	hint, err := segment.OpenHintFile(dir, p.Log)
	if err != nil {
		return err
	}

	writer := newStagingWriter(dir, p.Options.DataFileSize, p.Log)

	for _, id := range sourceIDs {
		p.OldMu.RLock()
		src := p.GetOldSeg(id)
		p.OldMu.RUnlock()
		if src == nil {
			continue
		}

		var offset int64
		for {
			rec, size, err := src.ReadRecordAt(offset)
			if err != nil {
				if errors.Is(err, flasherrors.ErrReadDataFileEOF) {
					break
				}
				return err
			}

			realKey, _ := record.DecodeKeyWithSeqNo(rec.Key)
			thisPos := record.Position{FileID: id, Offset: uint64(offset), Size: uint32(size)}

			if rec.Type != record.TypeTxnFinished {
				if livePos, ok := p.Index.Get(realKey); ok && livePos == thisPos {
					flatKey := record.EncodeKeyWithSeqNo(realKey, record.NonTxnSeqNo)
					newPos, err := writer.write(record.Record{Type: rec.Type, Key: flatKey, Value: rec.Value})
					if err != nil {
						return err
					}
					if err := hint.WriteHintRecord(realKey, newPos); err != nil {
						return err
					}
				}
			}

			offset += size
		}
	}

	if err := writer.close(); err != nil {
		return err
	}
	if err := hint.Sync(); err != nil {
		return err
	}
	if err := hint.Close(); err != nil {
		return err
	}

	finished, err := segment.OpenMergeFinishedFile(dir, p.Log)
	if err != nil {
		return err
	}
	marker := record.Record{Type: record.TypeNormal, Key: []byte("merge-finished"), Value: encodeBoundary(boundary)}
	if _, err := finished.Write(record.Encode(marker)); err != nil {
		return err
	}
	if err := finished.Sync(); err != nil {
		return err
	}
	return finished.Close()
}

// rotateActiveSegment retires the current active segment so it joins
// the set of immutable merge sources, then opens a fresh active
// segment at the next id. It returns every source segment id in
// ascending order and the id boundary (the new active segment's id)
// below which every live-directory file is a merge source.
func rotateActiveSegment(p Params) ([]uint32, uint32, error) {
	p.ActiveMu.Lock()
	defer p.ActiveMu.Unlock()
	p.OldMu.Lock()
	defer p.OldMu.Unlock()

	active := p.GetActive()
	if size, err := active.Size(); err != nil {
		return nil, 0, err
	} else if size == 0 && len(p.ListOldIDs()) == 0 {
		return nil, active.ID, nil
	}

	if err := active.Sync(); err != nil {
		return nil, 0, err
	}
	p.AddOldSeg(active.ID, active)

	boundary := active.ID + 1
	next, err := segment.Open(p.Options.DirPath, boundary, fio.KindFile, p.Log)
	if err != nil {
		return nil, 0, err
	}
	p.SetActive(next)

	ids := append([]uint32{}, p.ListOldIDs()...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, boundary, nil
}

// encodeBoundary renders id as its ASCII decimal representation, the
// value format spec.md §3 mandates for both the merge-finished file
// and the seq-no file.
func encodeBoundary(id uint32) []byte {
	return []byte(strconv.FormatUint(uint64(id), 10))
}

func decodeBoundary(buf []byte) (uint32, error) {
	n, err := strconv.ParseUint(string(buf), 10, 32)
	if err != nil {
		return 0, flasherrors.NewStorageError(err, flasherrors.ErrorCodeSegmentCorrupted, "malformed merge-finished boundary").
			WithPath(options.MergeFinishedFileName)
	}
	return uint32(n), nil
}
