package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashkv/flashkv/pkg/flasherrors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Record{
		{Type: TypeNormal, Key: []byte("hello"), Value: []byte("world")},
		{Type: TypeDeleted, Key: []byte("gone")},
		{Type: TypeNormal, Key: []byte(""), Value: []byte("")},
		{Type: TypeNormal, Key: []byte("k"), Value: make([]byte, 4096)},
	}

	for _, rec := range cases {
		buf := Encode(rec)

		h, err := DecodeHeader(buf)
		require.NoError(t, err)
		assert.Equal(t, rec.Type, h.Type)
		assert.Equal(t, uint64(len(rec.Key)), h.KeyLen)
		assert.Equal(t, uint64(len(rec.Value)), h.ValueLen)

		got, err := DecodeBody(h, buf[:h.HeaderSize], buf[h.HeaderSize:])
		require.NoError(t, err)
		assert.Equal(t, rec.Type, got.Type)
		assert.Equal(t, rec.Key, got.Key)
		assert.Equal(t, rec.Value, got.Value)
		assert.Equal(t, int64(len(buf)), h.TotalSize())
	}
}

func TestDecodeBodyDetectsCorruption(t *testing.T) {
	rec := Record{Type: TypeNormal, Key: []byte("key"), Value: []byte("value")}
	buf := Encode(rec)
	buf[len(buf)-1] ^= 0xFF

	h, err := DecodeHeader(buf)
	require.NoError(t, err)

	_, err = DecodeBody(h, buf[:h.HeaderSize], buf[h.HeaderSize:])
	assert.ErrorIs(t, err, flasherrors.ErrInvalidLogRecordCrc)
}

func TestDecodeHeaderShortBufferIsEOF(t *testing.T) {
	_, err := DecodeHeader(nil)
	assert.ErrorIs(t, err, flasherrors.ErrReadDataFileEOF)

	_, err = DecodeHeader([]byte{0, 0, 0})
	assert.ErrorIs(t, err, flasherrors.ErrReadDataFileEOF)
}

func TestPositionRoundTrip(t *testing.T) {
	pos := Position{FileID: 7, Offset: 123456, Size: 999}
	buf := EncodePosition(pos)
	got, err := DecodePosition(buf)
	require.NoError(t, err)
	assert.Equal(t, pos, got)
}

func TestKeyWithSeqNoRoundTrip(t *testing.T) {
	key := []byte("some-key")
	encoded := EncodeKeyWithSeqNo(key, 42)
	gotKey, gotSeq := DecodeKeyWithSeqNo(encoded)
	assert.Equal(t, key, gotKey)
	assert.Equal(t, uint64(42), gotSeq)

	nonTxn := EncodeKeyWithSeqNo(key, NonTxnSeqNo)
	gotKey, gotSeq = DecodeKeyWithSeqNo(nonTxn)
	assert.Equal(t, key, gotKey)
	assert.Equal(t, uint64(0), gotSeq)
}
