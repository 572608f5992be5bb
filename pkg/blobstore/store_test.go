package blobstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)

	data := []byte("Hello work")
	digest := Digest(data)

	require.NoError(t, s.Write(digest, data))
	got, err := s.Read(digest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)

	data := []byte("payload")
	digest := Digest(data)

	require.NoError(t, s.Write(digest, data))
	used := s.UsedBytes()
	require.NoError(t, s.Write(digest, data))
	assert.Equal(t, used, s.UsedBytes(), "second write of identical digest must not double-count bytes")
}

func TestReadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)

	data := []byte("original content")
	digest := Digest(data)
	require.NoError(t, s.Write(digest, data))

	// Flip a byte directly on disk.
	path := s.path(digest)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = s.Read(digest)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.Corruption)
}

func TestWriteRefusesOverCapacity(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 10)
	require.NoError(t, err)

	data := []byte("this payload is definitely over ten bytes")
	err = s.Write(Digest(data), data)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.InsufficientSpace)
}

func TestOpenRemovesTruncatedTmp(t *testing.T) {
	dir := t.TempDir()
	objDir := filepath.Join(dir, "objects", "ab")
	require.NoError(t, os.MkdirAll(objDir, 0o755))
	tmpPath := filepath.Join(objDir, "abcd"+tmpSuffix)
	require.NoError(t, os.WriteFile(tmpPath, []byte("partial"), 0o644))

	s, err := Open(dir, 0)
	require.NoError(t, err)
	_, statErr := os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, int64(0), s.UsedBytes())
}

func TestDeleteUnreferencedBlob(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)

	data := []byte("v1")
	digest := Digest(data)
	require.NoError(t, s.Write(digest, data))
	require.True(t, s.Exists(digest))

	require.NoError(t, s.Delete(digest))
	assert.False(t, s.Exists(digest))
	assert.Equal(t, int64(0), s.UsedBytes())
}
