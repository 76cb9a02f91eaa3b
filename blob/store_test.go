package blob

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"

	"github.com/ips6/pkgrepo/internal/errcode"
)

func TestInsertOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	content := []byte("hello pkgrepo")
	d, err := s.Insert(bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, digest.SHA256, d.Algorithm())

	require.True(t, s.Exists(d))

	r, err := s.Open(d)
	require.NoError(t, err)
	defer r.Close()

	got := make([]byte, len(content))
	_, err = r.Read(got)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestInsertDeduplicatesIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	content := []byte("duplicate content")
	d1, err := s.Insert(bytes.NewReader(content))
	require.NoError(t, err)
	d2, err := s.Insert(bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	entries, err := os.ReadDir(filepath.Join(dir, d1.Encoded()[0:2], d1.Encoded()[2:4]))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestOpenMissingBlob(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	_, err = s.Open(digest.FromString("not present"))
	require.Error(t, err)
	require.True(t, errcode.Is(err, errcode.ErrorCodeBlobMissing))
}

func TestVerifySucceedsForIntactBlob(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	d, err := s.Insert(bytes.NewReader([]byte("intact")))
	require.NoError(t, err)
	require.NoError(t, s.Verify(d))
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	d, err := s.Insert(bytes.NewReader([]byte("original content")))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.shardPath(d), []byte("tampered"), 0o644))

	err = s.Verify(d)
	require.Error(t, err)
	require.True(t, errcode.Is(err, errcode.ErrorCodeBlobDigestMismatch))
}

func TestInsertLeavesNoTempArtifactOnSuccess(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	_, err = s.Insert(bytes.NewReader([]byte("clean insert")))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
