package action

import (
	"testing"

	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/stretchr/testify/require"
)

func TestParseSerializeRoundTrip(t *testing.T) {
	src := `set name=pkg.fmri value="pkg://test/example@1.0,5.11-0:20250101T000000Z"
set name=description value="an example package"
dir path=usr mode=0755 owner=root group=root
file abcd1234 path=usr/bin/example mode=0755 owner=root group=root
license example.copyright license="Example License 1.0"
depend type=require fmri=pkg:/library/zlib
`
	m, err := Parse([]byte(src), "example.p5m")
	require.NoError(t, err)
	require.Len(t, m.Actions, 6)

	fmriVal, ok := m.Fmri()
	require.True(t, ok)
	require.Equal(t, "pkg://test/example@1.0,5.11-0:20250101T000000Z", fmriVal)

	again, err := Parse(Serialize(m), "roundtrip.p5m")
	require.NoError(t, err)
	require.Equal(t, m, again)
}

func TestParseRepeatedPropertyPreservesOrder(t *testing.T) {
	src := `set name=variant.arch value=i386 value=sparc value=x86_64
`
	m, err := Parse([]byte(src), "variants.p5m")
	require.NoError(t, err)
	require.Len(t, m.Actions, 1)
	require.Equal(t, []string{"i386", "sparc", "x86_64"}, m.Actions[0].Values("value"))
}

func TestParseQuotedValueWithSpaces(t *testing.T) {
	src := `set name=pkg.summary value="A package with spaces in its summary"
`
	m, err := Parse([]byte(src), "summary.p5m")
	require.NoError(t, err)
	v, ok := m.Actions[0].Value("value")
	require.True(t, ok)
	require.Equal(t, "A package with spaces in its summary", v)
}

func TestParseLineContinuation(t *testing.T) {
	src := "set name=pkg.description \\\n    value=\"a long description\"\n"
	m, err := Parse([]byte(src), "cont.p5m")
	require.NoError(t, err)
	require.Len(t, m.Actions, 1)
	v, ok := m.Actions[0].Value("value")
	require.True(t, ok)
	require.Equal(t, "a long description", v)
}

func TestParseRejectsUnknownAction(t *testing.T) {
	_, err := Parse([]byte("bogus path=usr/bin/x\n"), "bad.p5m")
	require.Error(t, err)
	require.True(t, errcode.Is(err, errcode.ErrorCodeActionUnknown))
}

func TestParseRejectsMissingRequiredProperty(t *testing.T) {
	_, err := Parse([]byte("file abcd1234 mode=0755\n"), "bad.p5m")
	require.Error(t, err)
	require.True(t, errcode.Is(err, errcode.ErrorCodeActionMissingProperty))
}

func TestParseRejectsUnterminatedQuote(t *testing.T) {
	_, err := Parse([]byte(`set name=broken value="unterminated`+"\n"), "bad.p5m")
	require.Error(t, err)
}

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	src := "\n# a comment\nset name=pkg.fmri value=\"pkg://test/x@1.0\"\n\n"
	m, err := Parse([]byte(src), "comments.p5m")
	require.NoError(t, err)
	require.Len(t, m.Actions, 1)
}

func TestActionPathAndDigest(t *testing.T) {
	const sum = "sha256:deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	a := Action{Kind: KindFile, Payload: sum, Props: []Property{{Key: "path", Value: "usr/bin/x"}}}
	require.Equal(t, "usr/bin/x", a.Path())
	d, err := a.Digest()
	require.NoError(t, err)
	require.Equal(t, sum, d.String())
}

func TestDiffManifestsAddedRemovedChanged(t *testing.T) {
	oldM := Manifest{Actions: []Action{
		{Kind: KindFile, Payload: "aaa", Props: []Property{{Key: "path", Value: "usr/bin/a"}, {Key: "mode", Value: "0755"}}},
		{Kind: KindFile, Payload: "bbb", Props: []Property{{Key: "path", Value: "usr/bin/b"}}},
	}}
	newM := Manifest{Actions: []Action{
		{Kind: KindFile, Payload: "aaa", Props: []Property{{Key: "path", Value: "usr/bin/a"}, {Key: "mode", Value: "0644"}}},
		{Kind: KindFile, Payload: "ccc", Props: []Property{{Key: "path", Value: "usr/bin/c"}}},
	}}

	d := DiffManifests(oldM, newM)
	require.Len(t, d.Added, 1)
	require.Equal(t, "usr/bin/c", d.Added[0].Path())
	require.Len(t, d.Removed, 1)
	require.Equal(t, "usr/bin/b", d.Removed[0].Path())
	require.Len(t, d.Changed, 1)
	require.Equal(t, "usr/bin/a", d.Changed[0].Old.Path())
}

func TestPrimaryKeyByKind(t *testing.T) {
	depend := Action{Kind: KindDepend, Props: []Property{{Key: "type", Value: DependRequire}, {Key: "fmri", Value: "pkg:/library/zlib"}}}
	require.Equal(t, "require:pkg:/library/zlib", depend.PrimaryKey())

	user := Action{Kind: KindUser, Props: []Property{{Key: "name", Value: "webservd"}}}
	require.Equal(t, "webservd", user.PrimaryKey())
}
