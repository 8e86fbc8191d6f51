package fio

import (
	"os"

	"github.com/flashkv/flashkv/pkg/flasherrors"
)

// DataFilePerm is the permission mode every segment, hint, seq-no and
// merge-finished file is created with.
const DataFilePerm = 0644

// fileBackend is the default Backend, a buffered append-mode file.
type fileBackend struct {
	file *os.File
}

func openFile(path string) (Backend, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, DataFilePerm)
	if err != nil {
		return nil, flasherrors.ClassifyFileOpenError(err, path, path)
	}
	return &fileBackend{file: f}, nil
}

func (b *fileBackend) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := b.file.ReadAt(buf, offset)
	if err != nil {
		return n, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to read from data file").
			WithOffset(int(offset))
	}
	return n, nil
}

func (b *fileBackend) Write(buf []byte) (int, error) {
	n, err := b.file.Write(buf)
	if err != nil {
		return n, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to write to data file")
	}
	return n, nil
}

func (b *fileBackend) Sync() error {
	if err := b.file.Sync(); err != nil {
		return flasherrors.ClassifySyncError(err, b.file.Name(), b.file.Name(), 0)
	}
	return nil
}

func (b *fileBackend) Size() (int64, error) {
	info, err := b.file.Stat()
	if err != nil {
		return 0, flasherrors.NewStorageError(err, flasherrors.ErrorCodeIO, "failed to stat data file").
			WithFileName(b.file.Name())
	}
	return info.Size(), nil
}

func (b *fileBackend) Close() error {
	return b.file.Close()
}
