package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ips6/pkgrepo/action"
)

func sampleManifest(value string) action.Manifest {
	return action.Manifest{Actions: []action.Action{
		{Kind: action.KindSet, Props: []action.Property{{Key: "name", Value: "pkg.fmri"}, {Key: "value", Value: value}}},
		{Kind: action.KindSet, Props: []action.Property{{Key: "name", Value: "pkg.summary"}, {Key: "value", Value: "an example"}}},
		{Kind: action.KindDepend, Props: []action.Property{{Key: "type", Value: action.DependRequire}, {Key: "fmri", Value: "pkg:/library/zlib"}}},
		{Kind: action.KindFile, Payload: "abcd", Props: []action.Property{{Key: "path", Value: "usr/bin/example"}}},
	}}
}

func TestInitThenOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	require.NoError(t, Init(dir))

	c, err := Open(dir)
	require.NoError(t, err)
	require.Empty(t, c.Stems())
}

func TestAddPackageUpdatesAllDocuments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	require.NoError(t, Init(dir))
	c, err := Open(dir)
	require.NoError(t, err)

	m := sampleManifest("pkg://test/example@1.0")
	require.NoError(t, c.AddPackage("example", "1.0", m))

	require.Equal(t, []string{"example"}, c.Stems())
	require.Equal(t, []string{"1.0"}, c.Versions("example"))

	summary, ok := c.Summary("example", "1.0")
	require.True(t, ok)
	require.Equal(t, "an example", summary.Summary)

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"example"}, reopened.Stems())
	require.Equal(t, 1, reopened.attrs.PackageCount)
	require.Equal(t, 1, reopened.attrs.PackageVersionCount)
}

func TestRemovePackage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	require.NoError(t, Init(dir))
	c, err := Open(dir)
	require.NoError(t, err)

	m := sampleManifest("pkg://test/example@1.0")
	require.NoError(t, c.AddPackage("example", "1.0", m))
	require.NoError(t, c.RemovePackage("example", "1.0", "pkg://test/example@1.0"))

	require.Empty(t, c.Stems())
	require.Equal(t, 0, c.attrs.PackageCount)
}

func TestSignatureStableAcrossPropertyOrderOfUnrelatedActions(t *testing.T) {
	m1 := sampleManifest("pkg://test/example@1.0")
	m2 := sampleManifest("pkg://test/example@1.0")
	// Reorder the Depend action's properties; Signature covers Set actions only.
	m2.Actions[2].Props = []action.Property{{Key: "fmri", Value: "pkg:/library/zlib"}, {Key: "type", Value: action.DependRequire}}
	require.Equal(t, Signature(m1), Signature(m2))
}

func TestReconstructReturnsSetAndDependActions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	require.NoError(t, Init(dir))
	c, err := Open(dir)
	require.NoError(t, err)

	m := sampleManifest("pkg://test/example@1.0")
	require.NoError(t, c.AddPackage("example", "1.0", m))

	reconstructed, found := c.Reconstruct("example", "1.0")
	require.True(t, found)
	for _, a := range reconstructed.Actions {
		require.NotEqual(t, action.KindFile, a.Kind)
	}
	fmriVal, ok := reconstructed.Fmri()
	require.True(t, ok)
	require.Equal(t, "pkg://test/example@1.0", fmriVal)
}
