// Package fio provides the pluggable I/O backends a segment reads and
// writes through: a buffered file backend used for all writes and for
// reads once the engine is fully open, and a read-only memory-mapped
// backend used to accelerate the startup recovery scan.
package fio

import "github.com/flashkv/flashkv/pkg/flasherrors"

// Kind selects which Backend implementation Open constructs.
type Kind uint8

const (
	// KindFile is a buffered, append-friendly backend suitable for
	// both reads and writes.
	KindFile Kind = iota
	// KindMmap is a read-only backend mapped directly into the
	// process's address space.
	KindMmap
)

// Backend is the minimal file-like surface a segment needs.
type Backend interface {
	// ReadAt reads len(buf) bytes starting at offset, mirroring
	// io.ReaderAt.
	ReadAt(buf []byte, offset int64) (int, error)

	// Write appends buf, returning the number of bytes written.
	Write(buf []byte) (int, error)

	// Sync flushes any buffered writes to stable storage.
	Sync() error

	// Size reports the backend's current length in bytes.
	Size() (int64, error)

	// Close releases the backend's underlying resources.
	Close() error
}

// Open constructs a Backend of the requested kind rooted at path.
func Open(path string, kind Kind) (Backend, error) {
	switch kind {
	case KindMmap:
		return openMMap(path)
	default:
		return openFile(path)
	}
}

// errUnsupported is returned by mmap backends for the write-side
// operations they cannot implement.
var errUnsupported = flasherrors.ErrInvalidOperation
