// Package record defines the on-disk wire format for a single Flash-KV
// log entry: a type byte, two varint-encoded length fields, the raw key
// and value bytes, and a trailing CRC32 checksum covering everything
// that precedes it. The same encoding is reused for hint-file entries,
// whose "value" is an encoded Position rather than user data.
package record

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/flashkv/flashkv/pkg/flasherrors"
)

// Type identifies what a Record represents.
type Type uint8

const (
	// TypeNormal is an ordinary put.
	TypeNormal Type = 1
	// TypeDeleted is a tombstone marking a key as removed.
	TypeDeleted Type = 2
	// TypeTxnFinished marks the end of an atomically-committed batch;
	// its key is the batch's sequence number plus TxnFinishedKey, and
	// its value is empty.
	TypeTxnFinished Type = 3
)

// crcSize is the width, in bytes, of the trailing checksum.
const crcSize = 4

// MaxHeaderSize bounds the type byte plus the two length varints, used
// by callers that need to read a fixed-size header before they know
// the record's total length.
const MaxHeaderSize = 1 + 2*binary.MaxVarintLen32

// Record is a decoded log entry.
type Record struct {
	Type  Type
	Key   []byte
	Value []byte
}

// Encode serializes r into the on-disk format:
//
//	[type:1][keyLen:varint][valueLen:varint][key][value][crc32:4]
//
// The checksum is computed over every byte preceding it.
func Encode(r Record) []byte {
	header := make([]byte, MaxHeaderSize)
	header[0] = byte(r.Type)
	n := 1
	n += binary.PutUvarint(header[n:], uint64(len(r.Key)))
	n += binary.PutUvarint(header[n:], uint64(len(r.Value)))

	buf := make([]byte, n+len(r.Key)+len(r.Value)+crcSize)
	copy(buf, header[:n])
	copy(buf[n:], r.Key)
	copy(buf[n+len(r.Key):], r.Value)

	crc := crc32.ChecksumIEEE(buf[:n+len(r.Key)+len(r.Value)])
	binary.BigEndian.PutUint32(buf[n+len(r.Key)+len(r.Value):], crc)
	return buf
}

// HeaderFields is the decoded fixed-layout prefix of a record, before
// the key/value/crc payload is known to be available.
type HeaderFields struct {
	Type       Type
	KeyLen     uint64
	ValueLen   uint64
	HeaderSize int
}

// DecodeHeader parses the type byte and the two length varints from
// the front of buf. buf must be at least MaxHeaderSize bytes, or must
// be the remaining tail of a short segment (in which case a header
// composed entirely of zero bytes signals EOF to the caller).
func DecodeHeader(buf []byte) (HeaderFields, error) {
	if len(buf) < 1 {
		return HeaderFields{}, flasherrors.ErrReadDataFileEOF
	}

	typ := Type(buf[0])
	keyLen, n1 := binary.Uvarint(buf[1:])
	if n1 <= 0 {
		return HeaderFields{}, flasherrors.ErrReadDataFileEOF
	}
	valueLen, n2 := binary.Uvarint(buf[1+n1:])
	if n2 <= 0 {
		return HeaderFields{}, flasherrors.ErrReadDataFileEOF
	}

	if typ == 0 && keyLen == 0 && valueLen == 0 {
		return HeaderFields{}, flasherrors.ErrReadDataFileEOF
	}

	return HeaderFields{
		Type:       typ,
		KeyLen:     keyLen,
		ValueLen:   valueLen,
		HeaderSize: 1 + n1 + n2,
	}, nil
}

// DecodeBody reconstructs a Record given its decoded header and the
// key+value+crc bytes that follow it in the segment, verifying the
// checksum against the header+key+value prefix supplied in full.
func DecodeBody(h HeaderFields, headerBytes, body []byte) (Record, error) {
	kl, vl := int(h.KeyLen), int(h.ValueLen)
	if len(body) < kl+vl+crcSize {
		return Record{}, flasherrors.ErrReadDataFileEOF
	}

	key := body[:kl]
	value := body[kl : kl+vl]
	wantCRC := binary.BigEndian.Uint32(body[kl+vl : kl+vl+crcSize])

	sum := crc32.NewIEEE()
	sum.Write(headerBytes)
	sum.Write(key)
	sum.Write(value)
	if sum.Sum32() != wantCRC {
		return Record{}, flasherrors.ErrInvalidLogRecordCrc
	}

	return Record{Type: h.Type, Key: key, Value: value}, nil
}

// TotalSize returns the full encoded length of a record given its
// decoded header.
func (h HeaderFields) TotalSize() int64 {
	return int64(h.HeaderSize) + int64(h.KeyLen) + int64(h.ValueLen) + crcSize
}
