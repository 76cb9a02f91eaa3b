// Package fmri implements the Fault Management Resource Identifier used to
// name every package version in a pkgrepo repository, along with the
// version algebra used to order and match them.
//
// Grammar
//
//	fmri       := "pkg:" "//" [ publisher "/" ] stem [ "@" version ]
//	publisher  := component [ "." component ]*
//	stem       := component [ "/" component ]*
//	version    := release [ "," build-release ] [ "-" branch ] [ ":" timestamp ]
//	release    := digit+ [ "." digit+ ]*
//	timestamp  := YYYYMMDD "T" HHMMSS "Z"
package fmri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ips6/pkgrepo/internal/errcode"
)

// Fmri is a fully qualified package identifier. Publisher is optional when
// an Fmri is first parsed from user input (e.g. on the CLI) but is
// required once the package is catalogued.
type Fmri struct {
	Publisher string
	Stem      string
	Version   Version
}

// Version is the dotted-decimal release of a package, with its optional
// build/branch/timestamp qualifiers.
type Version struct {
	Release   []uint64
	Build     []uint64
	Branch    string
	Timestamp string // "" if unset; otherwise YYYYMMDDThhmmssZ

	// hasVersion records whether any version information was present on
	// the original input, distinguishing a bare stem from "@" with an
	// entirely empty release.
	hasVersion bool
}

// HasVersion reports whether the Fmri carried a version component.
func (v Version) HasVersion() bool { return v.hasVersion }

// Parse parses s into an Fmri. The publisher portion ("pkg://publisher/")
// is optional; a stem-only reference omits both the authority and the
// leading slash it would otherwise introduce.
func Parse(s string) (Fmri, error) {
	rest, ok := strings.CutPrefix(s, "pkg:")
	if !ok {
		return Fmri{}, invalidFormat(s)
	}
	rest = strings.TrimPrefix(rest, "//")

	var publisher, stemVer string
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		publisher = rest[:idx]
		stemVer = rest[idx+1:]
	} else {
		stemVer = rest
	}

	stem := stemVer
	var versionPart string
	hasVersion := false
	if idx := strings.IndexByte(stemVer, '@'); idx >= 0 {
		stem = stemVer[:idx]
		versionPart = stemVer[idx+1:]
		hasVersion = true
	}

	if stem == "" {
		return Fmri{}, invalidFormat(s)
	}
	for _, comp := range strings.Split(stem, "/") {
		if comp == "" {
			return Fmri{}, invalidFormat(s)
		}
	}

	f := Fmri{Publisher: publisher, Stem: stem}
	if hasVersion {
		v, err := parseVersion(versionPart)
		if err != nil {
			return Fmri{}, err
		}
		v.hasVersion = true
		f.Version = v
	}

	return f, nil
}

func invalidFormat(s string) error {
	return errcode.ErrorCodeFmriInvalidFormat.WithArgs(s)
}

func invalidVersionFormat(s string) error {
	return errcode.ErrorCodeFmriInvalidVersionFormat.WithArgs(s)
}

// parseVersion parses "release[,build][-branch][:timestamp]". Reserved
// characters (",", ":") may only appear as the documented separators;
// any other occurrence is rejected rather than guessed at, per the
// strict-quoting decision recorded in DESIGN.md.
func parseVersion(s string) (Version, error) {
	var v Version

	rest := s
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		v.Timestamp = rest[idx+1:]
		rest = rest[:idx]
		if !isValidTimestamp(v.Timestamp) {
			return Version{}, invalidVersionFormat(s)
		}
	}

	if idx := strings.IndexByte(rest, '-'); idx >= 0 {
		v.Branch = rest[idx+1:]
		rest = rest[:idx]
		if v.Branch == "" || strings.ContainsAny(v.Branch, ",:") {
			return Version{}, invalidVersionFormat(s)
		}
	}

	if idx := strings.IndexByte(rest, ','); idx >= 0 {
		buildPart := rest[idx+1:]
		rest = rest[:idx]
		build, err := parseDottedDecimal(buildPart)
		if err != nil {
			return Version{}, invalidVersionFormat(s)
		}
		v.Build = build
	}

	release, err := parseDottedDecimal(rest)
	if err != nil {
		return Version{}, invalidVersionFormat(s)
	}
	v.Release = release

	return v, nil
}

func parseDottedDecimal(s string) ([]uint64, error) {
	if s == "" {
		return nil, fmt.Errorf("empty dotted-decimal component")
	}
	parts := strings.Split(s, ".")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func isValidTimestamp(s string) bool {
	if len(s) != 16 {
		return false
	}
	if s[8] != 'T' || s[15] != 'Z' {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 15 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// String renders the canonical serialization: pkg://P/S@R,B-Br:T, with
// each optional segment omitted when absent.
func (f Fmri) String() string {
	var b strings.Builder
	b.WriteString("pkg://")
	b.WriteString(f.Publisher)
	b.WriteByte('/')
	b.WriteString(f.Stem)
	if f.Version.hasVersion {
		b.WriteByte('@')
		b.WriteString(f.Version.String())
	}
	return b.String()
}

// String renders a Version as "release[,build][-branch][:timestamp]".
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(joinDottedDecimal(v.Release))
	if len(v.Build) > 0 {
		b.WriteByte(',')
		b.WriteString(joinDottedDecimal(v.Build))
	}
	if v.Branch != "" {
		b.WriteByte('-')
		b.WriteString(v.Branch)
	}
	if v.Timestamp != "" {
		b.WriteByte(':')
		b.WriteString(v.Timestamp)
	}
	return b.String()
}

func joinDottedDecimal(nums []uint64) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether f and g name the exact same package version,
// including timestamp.
func (f Fmri) Equal(g Fmri) bool {
	return f.Compare(g) == 0 && f.Version.Timestamp == g.Version.Timestamp
}

// Compare orders FMRIs lexicographically on (stem, publisher), then by
// version-tuple, then by timestamp. It returns a negative number, zero,
// or a positive number as f is less than, equal to, or greater than g.
func (f Fmri) Compare(g Fmri) int {
	if f.Stem != g.Stem {
		return strings.Compare(f.Stem, g.Stem)
	}
	if f.Publisher != g.Publisher {
		return strings.Compare(f.Publisher, g.Publisher)
	}
	if c := compareVersions(f.Version, g.Version); c != 0 {
		return c
	}
	return strings.Compare(f.Version.Timestamp, g.Version.Timestamp)
}

func compareVersions(a, b Version) int {
	if c := compareDottedDecimal(a.Release, b.Release); c != 0 {
		return c
	}
	if c := compareDottedDecimal(a.Build, b.Build); c != 0 {
		return c
	}
	return strings.Compare(a.Branch, b.Branch)
}

func compareDottedDecimal(a, b []uint64) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var av, bv uint64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// StemMatch reports whether f and g share the same stem, ignoring
// version and publisher entirely.
func StemMatch(f, g Fmri) bool {
	return f.Stem == g.Stem
}

// VersionMatch reports whether the version pattern matches the target
// release using leftmost-dotted-prefix semantics: "1.2" matches "1.2.3"
// and "1.2.0" but not "1.3" or "1".
func VersionMatch(pattern, target Version) bool {
	if len(pattern.Release) > len(target.Release) {
		return false
	}
	for i, p := range pattern.Release {
		if target.Release[i] != p {
			return false
		}
	}
	return true
}
