// Package action implements the typed Action vocabulary that a pkgrepo
// manifest is built from, together with the textual manifest grammar
// parser and serializer.
package action

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Kind identifies an action's variant.
type Kind string

// The action kinds this repository understands.
const (
	KindSet      Kind = "set"
	KindFile     Kind = "file"
	KindDir      Kind = "dir"
	KindLink     Kind = "link"
	KindHardlink Kind = "hardlink"
	KindLicense  Kind = "license"
	KindDepend   Kind = "depend"
	KindUser     Kind = "user"
	KindGroup    Kind = "group"
	KindDriver   Kind = "driver"
	KindLegacy   Kind = "legacy"
)

var knownKinds = map[Kind]bool{
	KindSet: true, KindFile: true, KindDir: true, KindLink: true,
	KindHardlink: true, KindLicense: true, KindDepend: true,
	KindUser: true, KindGroup: true, KindDriver: true, KindLegacy: true,
}

// Dependency types recognized by Depend actions.
const (
	DependRequire    = "require"
	DependOptional   = "optional"
	DependIncorporate = "incorporate"
	DependExclude    = "exclude"
	DependGroup      = "group"
	DependConditional = "conditional"
	DependOrigin     = "origin"
	DependParent     = "parent"
	DependRequireAny = "require-any"
)

// Property is a single "key=value" pair as it appeared on the action
// line. Properties may repeat; Manifest parsing preserves every
// occurrence in original order so that repeated "value=" properties on
// set actions form an ordered list.
type Property struct {
	Key   string
	Value string
}

// Action is a single typed directive from a manifest. Rather than one Go
// type per kind, Action is a tagged record: Kind selects the variant and
// Props carries its attributes, mirroring the flat key=value grammar the
// action is parsed from. Callers use Value/Values to read canonical
// attributes (path, digest, mode, and so on) by name.
type Action struct {
	Kind Kind

	// Payload is the single unnamed token following the action name, if
	// the line had one (for example the content digest on a file
	// action). Empty if the line had no bare payload token.
	Payload string

	Props []Property
}

// Value returns the first value associated with key, and whether it was
// present at all.
func (a Action) Value(key string) (string, bool) {
	for _, p := range a.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Values returns every value associated with key, in the order they
// appeared on the action line.
func (a Action) Values(key string) []string {
	var out []string
	for _, p := range a.Props {
		if p.Key == key {
			out = append(out, p.Value)
		}
	}
	return out
}

// Path returns the filesystem path an action is addressed by (file, dir,
// link, hardlink). License actions carry no "path" property at all; their
// addressing token is the bare payload preceding "license=" (the license
// file's own name, e.g. "example.copyright"), so License is special-cased
// to read that instead.
func (a Action) Path() string {
	if a.Kind == KindLicense {
		return a.Payload
	}
	p, _ := a.Value("path")
	return p
}

// Digest returns the parsed content digest of a File action. The digest
// is taken from the action's bare payload token if present, falling back
// to an explicit "hash" property.
func (a Action) Digest() (digest.Digest, error) {
	raw := a.Payload
	if raw == "" {
		raw, _ = a.Value("hash")
	}
	if raw == "" {
		return "", fmt.Errorf("file action %q has no digest", a.Path())
	}
	d := digest.Digest(raw)
	return d, d.Validate()
}

// PrimaryKey returns the diff identity of the action: the attribute pair
// that Manifest.Diff groups actions by. It is "path" for file-like
// actions, "name" for user/group/driver/set, and "type:fmri" for
// dependencies.
func (a Action) PrimaryKey() string {
	switch a.Kind {
	case KindFile, KindDir, KindLink, KindHardlink, KindLicense:
		return a.Path()
	case KindUser, KindGroup, KindDriver:
		name, _ := a.Value("name")
		if name == "" {
			name, _ = a.Value("username")
		}
		if name == "" {
			name, _ = a.Value("groupname")
		}
		return name
	case KindSet:
		name, _ := a.Value("name")
		return name
	case KindDepend:
		depType, _ := a.Value("type")
		depFmri, _ := a.Value("fmri")
		return depType + ":" + depFmri
	default:
		return a.Payload
	}
}

// Manifest is an ordered sequence of Actions describing one package
// version. It is immutable once published.
type Manifest struct {
	Actions []Action
}

// Fmri returns the value of the mandatory "pkg.fmri" Set action, if
// present.
func (m Manifest) Fmri() (string, bool) {
	for _, a := range m.Actions {
		if a.Kind == KindSet {
			if name, _ := a.Value("name"); name == "pkg.fmri" {
				if v, ok := a.Value("value"); ok {
					return v, true
				}
			}
		}
	}
	return "", false
}

// Diff describes the actions added and removed between two manifest
// revisions, keyed by (kind, PrimaryKey()).
type Diff struct {
	Added   []Action
	Removed []Action
	// Changed holds pairs whose primary key matches but whose properties
	// differ between old and new.
	Changed []ActionPair
}

// ActionPair is a before/after pair of actions sharing a primary key.
type ActionPair struct {
	Old, New Action
}

func diffKey(a Action) string {
	return string(a.Kind) + "\x00" + a.PrimaryKey()
}

// DiffManifests computes an action-keyed diff between an old and a new
// manifest revision.
func DiffManifests(oldM, newM Manifest) Diff {
	oldByKey := make(map[string]Action, len(oldM.Actions))
	for _, a := range oldM.Actions {
		oldByKey[diffKey(a)] = a
	}
	newByKey := make(map[string]Action, len(newM.Actions))
	for _, a := range newM.Actions {
		newByKey[diffKey(a)] = a
	}

	var d Diff
	for k, na := range newByKey {
		oa, existed := oldByKey[k]
		if !existed {
			d.Added = append(d.Added, na)
			continue
		}
		if !actionsEqual(oa, na) {
			d.Changed = append(d.Changed, ActionPair{Old: oa, New: na})
		}
	}
	for k, oa := range oldByKey {
		if _, stillPresent := newByKey[k]; !stillPresent {
			d.Removed = append(d.Removed, oa)
		}
	}
	return d
}

func actionsEqual(a, b Action) bool {
	if a.Kind != b.Kind || a.Payload != b.Payload || len(a.Props) != len(b.Props) {
		return false
	}
	for i := range a.Props {
		if a.Props[i] != b.Props[i] {
			return false
		}
	}
	return true
}

// Serialize renders the manifest back into the textual grammar, one
// action per line, properties in their original order. Serialize followed
// by Parse reproduces an equivalent Manifest.
func Serialize(m Manifest) []byte {
	var b strings.Builder
	for _, a := range m.Actions {
		b.WriteString(string(a.Kind))
		if a.Payload != "" {
			b.WriteByte(' ')
			b.WriteString(a.Payload)
		}
		for _, p := range a.Props {
			b.WriteByte(' ')
			b.WriteString(p.Key)
			b.WriteByte('=')
			b.WriteString(quoteIfNeeded(p.Value))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func quoteIfNeeded(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

// sortedPrimaryKeys returns the primary keys of every action of the given
// kind in sorted order (duplicates are kept), used by callers building
// deterministic listings.
func (m Manifest) sortedPrimaryKeys(kind Kind) []string {
	var keys []string
	for _, a := range m.Actions {
		if a.Kind == kind {
			keys = append(keys, a.PrimaryKey())
		}
	}
	sort.Strings(keys)
	return keys
}
