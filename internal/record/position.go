package record

import (
	"encoding/binary"
	"errors"
)

var errShortPositionBuffer = errors.New("record: truncated position buffer")

// Position locates a record within the segment files: which segment it
// lives in, its byte offset within that segment, and its total encoded
// size (used to track reclaimable bytes once the record is
// overwritten or deleted).
type Position struct {
	FileID uint32
	Offset uint64
	Size   uint32
}

// EncodePosition packs a Position as three successive uvarints, the
// format written into hint-file record values.
func EncodePosition(p Position) []byte {
	buf := make([]byte, binary.MaxVarintLen32*2+binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, uint64(p.FileID))
	n += binary.PutUvarint(buf[n:], p.Offset)
	n += binary.PutUvarint(buf[n:], uint64(p.Size))
	return buf[:n]
}

// DecodePosition is the inverse of EncodePosition.
func DecodePosition(buf []byte) (Position, error) {
	fileID, n1 := binary.Uvarint(buf)
	offset, n2 := binary.Uvarint(buf[n1:])
	size, n3 := binary.Uvarint(buf[n1+n2:])
	if n1 <= 0 || n2 <= 0 || n3 <= 0 {
		return Position{}, errShortPositionBuffer
	}
	return Position{FileID: uint32(fileID), Offset: offset, Size: uint32(size)}, nil
}
