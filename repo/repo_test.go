package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/internal/errcode"
)

func sampleManifest(t *testing.T, fullFmri string) action.Manifest {
	t.Helper()
	src := `set name=pkg.fmri value="` + fullFmri + `"
set name=pkg.summary value="an example package"
file usr/bin/example path=usr/bin/example mode=0755 owner=root group=root
`
	m, err := action.Parse([]byte(src), "example.p5m")
	require.NoError(t, err)
	return m
}

func TestCreateRegistersDefaultPublisher(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	require.True(t, r.HasPublisher("test"))

	pubs, err := r.Publishers()
	require.NoError(t, err)
	require.Equal(t, []string{"test"}, pubs)
}

func TestAddAndRemovePublisher(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	require.NoError(t, r.AddPublisher("other"))
	require.True(t, r.HasPublisher("other"))

	require.NoError(t, r.RemovePublisher("other"))
	require.False(t, r.HasPublisher("other"))
}

func TestRemoveUnknownPublisher(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	err = r.RemovePublisher("nope")
	require.True(t, errcode.Is(err, errcode.ErrorCodeRepoPublisherUnknown))
}

func TestPublishTransactionCommit(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	payloadDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(payloadDir, "usr/bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(payloadDir, "usr/bin/example"), []byte("#!/bin/sh\n"), 0o755))

	txn, err := r.Begin("test")
	require.NoError(t, err)
	require.NoError(t, txn.AddPayloadDir(payloadDir))

	m := sampleManifest(t, "pkg://test/example@1.0")
	// the sample manifest's file action has no payload digest, letting
	// AddManifest resolve it from the ingested payload directory.
	m.Actions[2].Payload = ""
	require.NoError(t, txn.AddManifest(m))
	require.NoError(t, txn.Commit())

	dest := manifestPath(root, "test", "example", "1.0")
	require.FileExists(t, dest)

	hits, err := r.SearchIndex().Search([]string{"example"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestPublishDuplicateFmriRejected(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	payloadDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(payloadDir, "usr/bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(payloadDir, "usr/bin/example"), []byte("data"), 0o644))

	publishOnce := func() error {
		txn, err := r.Begin("test")
		require.NoError(t, err)
		require.NoError(t, txn.AddPayloadDir(payloadDir))
		m := sampleManifest(t, "pkg://test/example@1.0")
		m.Actions[2].Payload = ""
		require.NoError(t, txn.AddManifest(m))
		return txn.Commit()
	}

	require.NoError(t, publishOnce())
	err = publishOnce()
	require.True(t, errcode.Is(err, errcode.ErrorCodeRepoDuplicateFmri))
}

func TestPublishMissingPayloadRejected(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	txn, err := r.Begin("test")
	require.NoError(t, err)

	m := sampleManifest(t, "pkg://test/example@1.0")
	m.Actions[2].Payload = ""
	err = txn.AddManifest(m)
	require.True(t, errcode.Is(err, errcode.ErrorCodeRepoPayloadMissing))
}

func TestObsoleteAndRestoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	payloadDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(payloadDir, "usr/bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(payloadDir, "usr/bin/example"), []byte("data"), 0o644))

	txn, err := r.Begin("test")
	require.NoError(t, err)
	require.NoError(t, txn.AddPayloadDir(payloadDir))
	m := sampleManifest(t, "pkg://test/example@1.0")
	m.Actions[2].Payload = ""
	require.NoError(t, txn.AddManifest(m))
	require.NoError(t, txn.Commit())

	require.NoError(t, r.ObsoletePackage("test", "pkg://test/example@1.0", "superseded", ""))
	require.NoFileExists(t, manifestPath(root, "test", "example", "1.0"))

	_, err = r.SearchIndex().Search([]string{"example"}, 10)
	require.True(t, errcode.Is(err, errcode.ErrorCodeSearchNoMatch))

	metas, err := r.ListObsoleted("test")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "pkg://test/example@1.0", metas[0].Fmri)

	require.NoError(t, r.RestoreObsoleted("test", "pkg://test/example@1.0"))
	require.FileExists(t, manifestPath(root, "test", "example", "1.0"))

	hits, err := r.SearchIndex().Search([]string{"example"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}
