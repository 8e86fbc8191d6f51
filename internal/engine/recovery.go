package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/internal/segment"
	"github.com/flashkv/flashkv/pkg/flasherrors"
	"github.com/flashkv/flashkv/pkg/options"
)

type pendingTxnRecord struct {
	key  []byte
	typ  record.Type
	pos  record.Position
}

// loadIndexFromDataFiles scans every segment from its first byte to
// its current write offset, rebuilding the index. Records carrying a
// non-zero sequence number are buffered per transaction and only
// applied once that sequence number's TxnFinished marker is seen;
// sequence numbers that never see a finishing marker are silently
// discarded, matching an ordinary write-ahead log's recovery
// semantics. It returns the highest sequence number observed, so the
// next batch commit continues the count rather than restarting it.
func (e *Engine) loadIndexFromDataFiles(ids []uint32) (uint64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	boundary, hasMerged, err := loadMergeBoundary(e.opts.DirPath, e.log)
	if err != nil {
		return 0, err
	}

	pending := make(map[uint64][]pendingTxnRecord)
	var maxSeqNo uint64

	apply := func(key []byte, typ record.Type, pos record.Position) {
		switch typ {
		case record.TypeNormal:
			if old, existed := e.idx.Put(key, pos); existed {
				e.reclaimSize.Add(uint64(old.Size))
			}
		case record.TypeDeleted:
			if old, existed := e.idx.Delete(key); existed {
				e.reclaimSize.Add(uint64(old.Size))
			}
		}
	}

	for _, id := range ids {
		// Files below the merge boundary were already folded into the
		// hint file the last successful merge produced; replaying them
		// again would be redundant (every record in them is live) and
		// is exactly the full-scan cost the hint file exists to avoid.
		if hasMerged && id < boundary {
			continue
		}

		seg := e.segmentByID(id)
		if seg == nil {
			return 0, flasherrors.ErrDataFileNotFound
		}

		var offset int64
		for {
			rec, size, err := seg.ReadRecordAt(offset)
			if err != nil {
				if errors.Is(err, flasherrors.ErrReadDataFileEOF) {
					break
				}
				return 0, err
			}

			pos := record.Position{FileID: id, Offset: uint64(offset), Size: uint32(size)}
			realKey, seqNo := record.DecodeKeyWithSeqNo(rec.Key)
			if seqNo > maxSeqNo {
				maxSeqNo = seqNo
			}

			switch {
			case seqNo == record.NonTxnSeqNo:
				apply(realKey, rec.Type, pos)
			case rec.Type == record.TypeTxnFinished:
				for _, p := range pending[seqNo] {
					apply(p.key, p.typ, p.pos)
				}
				delete(pending, seqNo)
			default:
				pending[seqNo] = append(pending[seqNo], pendingTxnRecord{key: realKey, typ: rec.Type, pos: pos})
			}

			offset += size
		}

		if id == e.activeSegment.ID {
			e.activeSegment.SetWriteOff(offset)
		}
	}

	return maxSeqNo, nil
}

// loadSeqNoFile reads the persisted sequence number written by a
// clean Close when the self-durable B+ tree index is selected (log
// replay is skipped for that backend, so the counter must be
// persisted explicitly instead of recovered from the data files).
func (e *Engine) loadSeqNoFile() (uint64, bool, error) {
	path := filepath.Join(e.opts.DirPath, options.SeqNoFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, false, nil
	}

	seqSeg, err := segment.OpenSeqNoFile(e.opts.DirPath, e.log)
	if err != nil {
		return 0, false, err
	}
	defer seqSeg.Close()

	rec, _, err := seqSeg.ReadRecordAt(0)
	if err != nil {
		return 0, false, err
	}

	seqNo, err := strconv.ParseUint(string(rec.Value), 10, 64)
	if err != nil {
		return 0, false, flasherrors.NewStorageError(err, flasherrors.ErrorCodeSegmentCorrupted, "malformed seq-no file").
			WithPath(path)
	}
	return seqNo, true, nil
}

// persistSeqNo writes the current sequence number to the fixed
// seq-no file, invoked only during a clean Close so that a crash never
// leaves a stale counter behind: the next successful open reads the
// file and then removes it, and the next clean Close writes it afresh,
// so a reader only ever finds a seq-no file that corresponds to the
// most recent close. The
// value is the ASCII decimal representation of the counter.
func (e *Engine) persistSeqNo() error {
	seqSeg, err := segment.OpenSeqNoFile(e.opts.DirPath, e.log)
	if err != nil {
		return err
	}
	defer seqSeg.Close()

	rec := record.Record{Type: record.TypeNormal, Value: []byte(strconv.FormatUint(e.seqNo.Load(), 10))}
	buf := record.Encode(rec)
	if _, err := seqSeg.Write(buf); err != nil {
		return err
	}
	return seqSeg.Sync()
}

// loadMergeBoundary reads the merge-finished marker from the live data
// directory, if a prior merge promoted one there. Its value is the
// smallest file id a merge did not rewrite; files below it were folded
// into the hint file and should not be replayed again.
func loadMergeBoundary(dirPath string, log *zap.SugaredLogger) (uint32, bool, error) {
	path := filepath.Join(dirPath, options.MergeFinishedFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, false, nil
	}

	seg, err := segment.OpenMergeFinishedFile(dirPath, log)
	if err != nil {
		return 0, false, err
	}
	defer seg.Close()

	rec, _, err := seg.ReadRecordAt(0)
	if err != nil {
		return 0, false, err
	}

	boundary, err := strconv.ParseUint(string(rec.Value), 10, 32)
	if err != nil {
		return 0, false, flasherrors.NewStorageError(err, flasherrors.ErrorCodeSegmentCorrupted, "malformed merge-finished boundary").
			WithPath(path)
	}
	return uint32(boundary), true, nil
}

// loadIndexFromHintFile applies every (key, position) pair recorded in
// the hint file a prior merge promoted into the live directory, if one
// is present. It runs before log replay and for every index variant,
// including the self-durable B+ tree: merge rewrites live records into
// new files but only records their new positions in the hint file, so
// a B+ tree index entry that still points at a now-deleted pre-merge
// file is repointed here.
func (e *Engine) loadIndexFromHintFile() error {
	path := filepath.Join(e.opts.DirPath, options.HintFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	hint, err := segment.OpenHintFile(e.opts.DirPath, e.log)
	if err != nil {
		return err
	}
	defer hint.Close()

	var offset int64
	for {
		rec, size, err := hint.ReadRecordAt(offset)
		if err != nil {
			if errors.Is(err, flasherrors.ErrReadDataFileEOF) {
				break
			}
			return err
		}

		pos, err := record.DecodePosition(rec.Value)
		if err != nil {
			return err
		}
		e.idx.Put(rec.Key, pos)

		offset += size
	}

	return nil
}
