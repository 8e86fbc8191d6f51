// Package segment implements the append-only data-file abstraction
// records are written into and read back from. A Segment also backs
// the engine's hint file, merge-finished marker and seq-no file, which
// share the same record codec but always live under a fixed,
// well-known name rather than a numbered file-id.
package segment

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/fio"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/pkg/flasherrors"
	"github.com/flashkv/flashkv/pkg/options"
)

// Segment is a single on-disk file the engine appends encoded records
// to and reads them back from by byte offset.
type Segment struct {
	ID       uint32
	path     string
	backend  fio.Backend
	writeOff atomic.Int64
	log      *zap.SugaredLogger
}

// FileName returns the canonical on-disk name for the numbered data
// file with the given id: a 9-digit zero-padded id plus the fixed
// ".data" suffix.
func FileName(id uint32) string {
	return fmt.Sprintf("%09d%s", id, options.DataFileSuffix)
}

// Open opens (creating if necessary) the numbered segment file id
// within dir, using the requested I/O backend kind.
func Open(dir string, id uint32, kind fio.Kind, log *zap.SugaredLogger) (*Segment, error) {
	return open(filepath.Join(dir, FileName(id)), id, kind, log)
}

// OpenHintFile opens the merge hint file within dir.
func OpenHintFile(dir string, log *zap.SugaredLogger) (*Segment, error) {
	return open(filepath.Join(dir, options.HintFileName), 0, fio.KindFile, log)
}

// OpenMergeFinishedFile opens the merge-finished marker file within dir.
func OpenMergeFinishedFile(dir string, log *zap.SugaredLogger) (*Segment, error) {
	return open(filepath.Join(dir, options.MergeFinishedFileName), 0, fio.KindFile, log)
}

// OpenSeqNoFile opens the seq-no persistence file within dir.
func OpenSeqNoFile(dir string, log *zap.SugaredLogger) (*Segment, error) {
	return open(filepath.Join(dir, options.SeqNoFileName), 0, fio.KindFile, log)
}

func open(path string, id uint32, kind fio.Kind, log *zap.SugaredLogger) (*Segment, error) {
	backend, err := fio.Open(path, kind)
	if err != nil {
		return nil, err
	}

	size, err := backend.Size()
	if err != nil {
		backend.Close()
		return nil, err
	}

	s := &Segment{ID: id, path: path, backend: backend, log: log}
	s.writeOff.Store(size)
	return s, nil
}

// WriteOff is the byte offset the next appended record will land at.
func (s *Segment) WriteOff() int64 {
	return s.writeOff.Load()
}

// SetWriteOff forces the write cursor, used at the end of the recovery
// scan to place the active segment's cursor at the last offset read.
func (s *Segment) SetWriteOff(off int64) {
	s.writeOff.Store(off)
}

// Write appends a pre-encoded record buffer and returns the position
// it was written at.
func (s *Segment) Write(buf []byte) (record.Position, error) {
	off := s.writeOff.Load()
	n, err := s.backend.Write(buf)
	if err != nil {
		return record.Position{}, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to append record").
			WithSegmentID(int(s.ID)).
			WithOffset(int(off))
	}
	s.writeOff.Add(int64(n))
	return record.Position{FileID: s.ID, Offset: uint64(off), Size: uint32(n)}, nil
}

// WriteHintRecord appends a Normal record whose value is the encoded
// Position pos, the format merge's hint file stores one entry per key
// in.
func (s *Segment) WriteHintRecord(key []byte, pos record.Position) error {
	buf := record.Encode(record.Record{
		Type:  record.TypeNormal,
		Key:   key,
		Value: record.EncodePosition(pos),
	})
	_, err := s.Write(buf)
	return err
}

// ReadRecordAt decodes the record starting at offset, returning the
// record and its total on-disk size.
func (s *Segment) ReadRecordAt(offset int64) (record.Record, int64, error) {
	header := make([]byte, record.MaxHeaderSize)
	n, err := s.backend.ReadAt(header, offset)
	if err != nil && n == 0 {
		if errors.Is(err, io.EOF) {
			return record.Record{}, 0, flasherrors.ErrReadDataFileEOF
		}
		return record.Record{}, 0, err
	}
	header = header[:n]

	h, err := record.DecodeHeader(header)
	if err != nil {
		return record.Record{}, 0, err
	}

	bodyLen := int(h.KeyLen) + int(h.ValueLen) + 4
	body := make([]byte, bodyLen)
	if _, err := s.backend.ReadAt(body, offset+int64(h.HeaderSize)); err != nil {
		return record.Record{}, 0, err
	}

	rec, err := record.DecodeBody(h, header[:h.HeaderSize], body)
	if err != nil {
		return record.Record{}, 0, err
	}

	return rec, h.TotalSize(), nil
}

// Sync flushes the segment's buffered writes to stable storage.
func (s *Segment) Sync() error {
	if err := s.backend.Sync(); err != nil {
		return err
	}
	return nil
}

// Size reports the segment's current on-disk length.
func (s *Segment) Size() (int64, error) {
	return s.backend.Size()
}

// Close releases the segment's backend resources.
func (s *Segment) Close() error {
	return s.backend.Close()
}

// SwapBackend reopens the segment file using a different I/O backend
// kind, used to move an mmap-opened segment back to a writable file
// backend once the startup recovery scan completes.
func (s *Segment) SwapBackend(kind fio.Kind) error {
	off := s.writeOff.Load()
	if err := s.backend.Close(); err != nil {
		return err
	}

	backend, err := fio.Open(s.path, kind)
	if err != nil {
		return err
	}
	s.backend = backend
	s.writeOff.Store(off)
	return nil
}
