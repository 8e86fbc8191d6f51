package fio

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.data")

	b, err := Open(path, KindFile)
	require.NoError(t, err)
	defer b.Close()

	n, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	require.NoError(t, b.Sync())

	size, err := b.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	buf := make([]byte, 5)
	n, err = b.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestFileBackendReadAtEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.data")
	b, err := Open(path, KindFile)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Write([]byte("ab"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = b.ReadAt(buf, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestMmapBackendReadsWhatFileBackendWrote(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.data")

	fb, err := Open(path, KindFile)
	require.NoError(t, err)
	_, err = fb.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, fb.Sync())
	require.NoError(t, fb.Close())

	mb, err := Open(path, KindMmap)
	require.NoError(t, err)
	defer mb.Close()

	size, err := mb.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	buf := make([]byte, 7)
	n, err := mb.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))

	_, err = mb.Write([]byte("x"))
	assert.Error(t, err)
}

func TestMmapBackendEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.data")

	mb, err := Open(path, KindMmap)
	require.NoError(t, err)
	defer mb.Close()

	size, err := mb.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}
