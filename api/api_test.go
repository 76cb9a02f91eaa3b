package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/repo"
)

func publishSample(t *testing.T, r *repo.Repository, publisher, fullFmri, summary string) {
	t.Helper()
	payloadDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(payloadDir, "usr/bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(payloadDir, "usr/bin/example"), []byte("data"), 0o644))

	src := `set name=pkg.fmri value="` + fullFmri + `"
set name=pkg.summary value="` + summary + `"
file usr/bin/example path=usr/bin/example mode=0755 owner=root group=root
`
	m, err := action.Parse([]byte(src), "example.p5m")
	require.NoError(t, err)
	m.Actions[2].Payload = ""

	txn, err := r.Begin(publisher)
	require.NoError(t, err)
	require.NoError(t, txn.AddPayloadDir(payloadDir))
	require.NoError(t, txn.AddManifest(m))
	require.NoError(t, txn.Commit())
}

func openRepo(t *testing.T) *repo.Repository {
	t.Helper()
	root := t.TempDir()
	r, err := repo.Create(root, "test")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestListReturnsPublishedPackagesSorted(t *testing.T) {
	r := openRepo(t)
	publishSample(t, r, "test", "pkg://test/bravo@1.0", "bravo package")
	publishSample(t, r, "test", "pkg://test/alpha@1.0", "alpha package")

	reader := New(r)
	entries, err := reader.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Contains(t, entries[0].Fmri, "alpha")
	require.Contains(t, entries[1].Fmri, "bravo")
}

func TestListFiltersByStemPattern(t *testing.T) {
	r := openRepo(t)
	publishSample(t, r, "test", "pkg://test/library/zlib@1.0", "zlib")
	publishSample(t, r, "test", "pkg://test/runtime/python@3.0", "python")

	reader := New(r)
	entries, err := reader.List(ListOptions{StemPattern: "library/*"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Fmri, "library/zlib")
}

func TestListIncludesObsoleteOnlyWhenRequested(t *testing.T) {
	r := openRepo(t)
	publishSample(t, r, "test", "pkg://test/example@1.0", "an example")
	require.NoError(t, r.ObsoletePackage("test", "pkg://test/example@1.0", "superseded", ""))

	reader := New(r)

	withoutObsolete, err := reader.List(ListOptions{})
	require.NoError(t, err)
	require.Empty(t, withoutObsolete)

	withObsolete, err := reader.List(ListOptions{IncludeObsolete: true})
	require.NoError(t, err)
	require.Len(t, withObsolete, 1)
	require.True(t, withObsolete[0].Obsolete)
}

func TestListPaginates(t *testing.T) {
	r := openRepo(t)
	publishSample(t, r, "test", "pkg://test/alpha@1.0", "a")
	publishSample(t, r, "test", "pkg://test/bravo@1.0", "b")
	publishSample(t, r, "test", "pkg://test/charlie@1.0", "c")

	reader := New(r)
	page1, err := reader.List(ListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := reader.List(ListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
}

func TestContentsReturnsFullActionSet(t *testing.T) {
	r := openRepo(t)
	publishSample(t, r, "test", "pkg://test/example@1.0", "an example")

	reader := New(r)
	actions, err := reader.Contents("test", "pkg://test/example@1.0", "")
	require.NoError(t, err)
	require.Len(t, actions, 3)

	fileActions, err := reader.Contents("test", "pkg://test/example@1.0", action.KindFile)
	require.NoError(t, err)
	require.Len(t, fileActions, 1)
	require.Equal(t, "usr/bin/example", fileActions[0].Path())
}

func TestSearchFiltersByPublisher(t *testing.T) {
	r := openRepo(t)
	require.NoError(t, r.AddPublisher("other"))
	publishSample(t, r, "test", "pkg://test/example@1.0", "a fast tool")
	publishSample(t, r, "other", "pkg://other/example@1.0", "another fast tool")

	reader := New(r)
	hits, err := reader.Search([]string{"fast"}, 10, "test")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "pkg://test/example@1.0", hits[0].Fmri)
}

func TestSearchNoMatchPropagatesErrorCode(t *testing.T) {
	r := openRepo(t)
	reader := New(r)
	_, err := reader.Search([]string{"nonexistent"}, 10, "")
	require.True(t, errcode.Is(err, errcode.ErrorCodeSearchNoMatch))
}

func TestPublishersListsRegisteredNames(t *testing.T) {
	r := openRepo(t)
	require.NoError(t, r.AddPublisher("other"))

	reader := New(r)
	pubs, err := reader.Publishers()
	require.NoError(t, err)
	require.Len(t, pubs, 2)
}

func TestInfoCountsPackagesAndVersions(t *testing.T) {
	r := openRepo(t)
	publishSample(t, r, "test", "pkg://test/example@1.0", "a")
	publishSample(t, r, "test", "pkg://test/example@2.0", "b")
	publishSample(t, r, "test", "pkg://test/other@1.0", "c")

	reader := New(r)
	info, err := reader.Info()
	require.NoError(t, err)
	require.Equal(t, 1, info.Publishers)
	require.Equal(t, 2, info.PackageCount)
	require.Equal(t, 3, info.VersionCount)
	// no full index rebuild has run yet; fast-add alone never sets the hash.
	require.Empty(t, info.FmriCatalogHash)
}
