package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func publishExample(t *testing.T, r *Repository, publisher, fullFmri string) {
	t.Helper()
	payloadDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(payloadDir, "usr/bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(payloadDir, "usr/bin/example"), []byte("#!/bin/sh\n"), 0o755))

	txn, err := r.Begin(publisher)
	require.NoError(t, err)
	require.NoError(t, txn.AddPayloadDir(payloadDir))
	m := sampleManifest(t, fullFmri)
	m.Actions[2].Payload = ""
	require.NoError(t, txn.AddManifest(m))
	require.NoError(t, txn.Commit())
}

func TestVerifyCleanRepositoryReportsNothing(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	publishExample(t, r, "test", "pkg://test/example@1.0")

	report, err := r.Verify()
	require.NoError(t, err)
	require.Equal(t, 1, report.PackagesChecked)
	require.Empty(t, report.MissingBlobs)
	require.Empty(t, report.CorruptBlobs)
	require.Empty(t, report.OrphanedBlobs)
}

func TestVerifyReportsMissingBlob(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	publishExample(t, r, "test", "pkg://test/example@1.0")

	m, err := r.ReadManifest("test", "example", "1.0")
	require.NoError(t, err)
	d, err := m.Actions[2].Digest()
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "file", d.Encoded()[:2], d.Encoded()[2:4], d.Encoded())))

	report, err := r.Verify()
	require.NoError(t, err)
	require.Len(t, report.MissingBlobs, 1)
	require.Equal(t, "pkg://test/example@1.0", report.MissingBlobs[0].Fmri)
}

func TestVerifyReportsOrphanedBlob(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	_, err = r.Blobs().Insert(strings.NewReader("orphan data"))
	require.NoError(t, err)

	report, err := r.Verify()
	require.NoError(t, err)
	require.Len(t, report.OrphanedBlobs, 1)
}

func TestRebuildCatalogRestoresStemsFromManifests(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	publishExample(t, r, "test", "pkg://test/example@1.0")

	catDir := filepath.Join(r.publisherDir("test"), "catalog")
	require.NoError(t, os.RemoveAll(catDir))

	require.NoError(t, r.RebuildCatalog("test"))

	cat, err := r.Catalog("test")
	require.NoError(t, err)
	require.Equal(t, []string{"example"}, cat.Stems())
	require.Equal(t, []string{"1.0"}, cat.Versions("example"))
}

func TestRebuildCatalogUnknownPublisher(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	require.Error(t, r.RebuildCatalog("nope"))
}

func TestAllManifestsCollectsAcrossPublishers(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	require.NoError(t, r.AddPublisher("other"))

	publishExample(t, r, "test", "pkg://test/example@1.0")
	publishExample(t, r, "other", "pkg://other/example@2.0")

	source, err := r.AllManifests()
	require.NoError(t, err)
	require.Len(t, source, 2)
	require.Contains(t, source, "pkg://test/example@1.0")
	require.Contains(t, source, "pkg://other/example@2.0")
}

func TestRebuildIndexMakesPublishedPackagesSearchableAgain(t *testing.T) {
	root := t.TempDir()
	r, err := Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	publishExample(t, r, "test", "pkg://test/example@1.0")

	require.NoError(t, r.RebuildIndex())

	hits, err := r.SearchIndex().Search([]string{"example"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}
