package fio

import (
	"os"

	mmapgo "github.com/edsrzf/mmap-go"

	"github.com/flashkv/flashkv/pkg/flasherrors"
)

// mmapBackend is a read-only Backend mapped directly into the
// process's address space. It is used exclusively for the recovery
// scan at startup when MmapAtStartup is enabled; the engine swaps
// every segment back to a fileBackend before accepting writes.
type mmapBackend struct {
	file *os.File
	data mmapgo.MMap
}

func openMMap(path string) (Backend, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, DataFilePerm)
	if err != nil {
		return nil, flasherrors.ClassifyFileOpenError(err, path, path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to stat data file").WithPath(path)
	}

	// mmap-go refuses to map a zero-length file; an empty segment is
	// valid (one retired before anything was written to it), so fall
	// back to an empty in-memory view rather than failing the whole open.
	if info.Size() == 0 {
		return &mmapBackend{file: f, data: mmapgo.MMap{}}, nil
	}

	m, err := mmapgo.Map(f, mmapgo.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to mmap data file").WithPath(path)
	}

	return &mmapBackend{file: f, data: m}, nil
}

func (b *mmapBackend) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 || offset >= int64(len(b.data)) {
		return 0, flasherrors.ErrReadDataFileEOF
	}
	n := copy(buf, b.data[offset:])
	return n, nil
}

func (b *mmapBackend) Write(buf []byte) (int, error) {
	return 0, errUnsupported
}

func (b *mmapBackend) Sync() error {
	return errUnsupported
}

func (b *mmapBackend) Size() (int64, error) {
	return int64(len(b.data)), nil
}

func (b *mmapBackend) Close() error {
	if len(b.data) > 0 {
		if err := b.data.Unmap(); err != nil {
			return err
		}
	}
	return b.file.Close()
}
