package search

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/internal/errcode"
)

func manifestFor(t *testing.T, fullFmri, summary string) action.Manifest {
	t.Helper()
	src := `set name=pkg.fmri value="` + fullFmri + `"
set name=pkg.summary value="` + summary + `"
file abcd path=usr/bin/example
depend type=require fmri=pkg:/library/zlib
`
	m, err := action.Parse([]byte(src), "t.p5m")
	require.NoError(t, err)
	return m
}

func openIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestExtractTokensCoversEveryActionKind(t *testing.T) {
	m := manifestFor(t, "pkg://test/example@1.0", "a fast zip tool")
	tokens := ExtractTokens(m)

	var sawSummaryWord, sawPath, sawDependStem bool
	for _, tok := range tokens {
		if tok.Subtype == "value" && tok.Token == "fast" && tok.FullValue == "a fast zip tool" {
			sawSummaryWord = true
		}
		if tok.Subtype == "path" && tok.FullValue == "usr/bin/example" {
			sawPath = true
		}
		if tok.Subtype == "fmri_stem" && tok.FullValue == "library/zlib" {
			sawDependStem = true
		}
	}
	require.True(t, sawSummaryWord)
	require.True(t, sawPath)
	require.True(t, sawDependStem)
}

func TestRebuildThenSearchFindsExactToken(t *testing.T) {
	idx := openIndex(t)

	source := ManifestSource{
		"pkg://test/example@1.0": manifestFor(t, "pkg://test/example@1.0", "a fast zip tool"),
		"pkg://test/other@2.0":   manifestFor(t, "pkg://test/other@2.0", "an unrelated package"),
	}
	require.NoError(t, idx.Rebuild(source))

	hits, err := idx.Search([]string{"fast"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "pkg://test/example@1.0", hits[0].Fmri)
}

func TestSearchNoMatchReturnsErrorCode(t *testing.T) {
	idx := openIndex(t)
	require.NoError(t, idx.Rebuild(ManifestSource{}))

	_, err := idx.Search([]string{"nonexistent"}, 10)
	require.True(t, errcode.Is(err, errcode.ErrorCodeSearchNoMatch))
}

func TestFastAddMakesNewPackageSearchableBeforeRebuild(t *testing.T) {
	idx := openIndex(t)
	require.NoError(t, idx.Rebuild(ManifestSource{}))

	m := manifestFor(t, "pkg://test/fresh@1.0", "a freshly published tool")
	require.NoError(t, idx.FastAdd("pkg://test/fresh@1.0", ExtractTokens(m)))

	hits, err := idx.Search([]string{"freshly"}, 10)
	require.NoError(t, err)
	require.Equal(t, "pkg://test/fresh@1.0", hits[0].Fmri)
}

func TestFastRemoveHidesPackageFromSearch(t *testing.T) {
	idx := openIndex(t)

	source := ManifestSource{
		"pkg://test/example@1.0": manifestFor(t, "pkg://test/example@1.0", "a fast zip tool"),
	}
	require.NoError(t, idx.Rebuild(source))
	require.NoError(t, idx.FastRemove("pkg://test/example@1.0"))

	_, err := idx.Search([]string{"fast"}, 10)
	require.True(t, errcode.Is(err, errcode.ErrorCodeSearchNoMatch))
}

func TestFastAddClearsPriorFastRemoveMark(t *testing.T) {
	idx := openIndex(t)
	source := ManifestSource{
		"pkg://test/example@1.0": manifestFor(t, "pkg://test/example@1.0", "a fast zip tool"),
	}
	require.NoError(t, idx.Rebuild(source))
	require.NoError(t, idx.FastRemove("pkg://test/example@1.0"))

	m := source["pkg://test/example@1.0"]
	require.NoError(t, idx.FastAdd("pkg://test/example@1.0", ExtractTokens(m)))

	hits, err := idx.Search([]string{"fast"}, 10)
	require.NoError(t, err)
	require.Equal(t, "pkg://test/example@1.0", hits[0].Fmri)
}

func TestNeedsRebuildThreshold(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	require.NoError(t, idx.Rebuild(ManifestSource{}))

	for i := 0; i < 3; i++ {
		fullFmri := "pkg://test/p" + string(rune('a'+i)) + "@1.0"
		m := manifestFor(t, fullFmri, "padding")
		require.NoError(t, idx.FastAdd(fullFmri, ExtractTokens(m)))
	}

	needs, err := idx.NeedsRebuild()
	require.NoError(t, err)
	require.True(t, needs)
}

func TestFmriCatalogHashChangesAcrossRebuilds(t *testing.T) {
	idx := openIndex(t)
	require.NoError(t, idx.Rebuild(ManifestSource{
		"pkg://test/a@1.0": manifestFor(t, "pkg://test/a@1.0", "first"),
	}))
	h1, err := idx.FmriCatalogHash()
	require.NoError(t, err)

	require.NoError(t, idx.Rebuild(ManifestSource{
		"pkg://test/a@1.0": manifestFor(t, "pkg://test/a@1.0", "first"),
		"pkg://test/b@1.0": manifestFor(t, "pkg://test/b@1.0", "second"),
	}))
	h2, err := idx.FmriCatalogHash()
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
}
