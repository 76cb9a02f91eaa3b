// Package search implements the repository's full-text token index: a
// badger-backed store of postings (built by full rebuilds) plus a small
// "mini delta" of fast-update tables that let publish and obsolete react
// immediately without re-indexing every manifest.
package search

import (
	"strings"
	"sync"
	"unicode"

	"github.com/dgraph-io/badger/v3"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/internal/errcode"
)

// DefaultMaxFastIndexed is the number of combined fast_add/fast_remove
// entries a writer tolerates before a publish triggers a full rebuild.
const DefaultMaxFastIndexed = 100

// Key prefixes for the badger tables described in the package doc.
const (
	prefixMeta         = "meta:"
	prefixFmriCatalog  = "fmri_catalog:"
	prefixPostings     = "postings:"
	prefixMiniDelta    = "mini_delta:"
	prefixFastAdd      = "fast_add:"
	prefixFastRemove   = "fast_remove:"
	keyFmriCatalogHash = "meta:fmri_catalog_hash"
)

// Index is an open handle on a repository's search index.
type Index struct {
	db             *badger.DB
	maxFastIndexed int

	mu sync.Mutex // serializes writers; readers never block, per spec
}

// Open opens (creating if necessary) the badger-backed index at dir.
func Open(dir string, maxFastIndexed int) (*Index, error) {
	if maxFastIndexed <= 0 {
		maxFastIndexed = DefaultMaxFastIndexed
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errcode.ErrorCodeSearchIndexOpenFailed.WithArgs(err.Error())
	}
	return &Index{db: db, maxFastIndexed: maxFastIndexed}, nil
}

// Close releases the index's underlying badger handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Token is a single extracted (action_type, subtype) occurrence: Token is
// the case-folded, split indexing form used as the postings/mini_delta
// table key, while FullValue preserves the original, unsplit property
// value it was derived from (original case, untouched by splitTokens).
type Token struct {
	ActionType string
	Subtype    string
	Token      string
	FullValue  string
	Offset     int
}

// ExtractTokens derives the full token set for a manifest, per the
// extraction rules: Set actions contribute their name and every value;
// File/Dir/Link/Hardlink/License contribute path components and the
// whole path; Depend contributes the target stem.
func ExtractTokens(m action.Manifest) []Token {
	var tokens []Token
	offset := 0

	emit := func(actionType, subtype, tok, fullValue string) {
		tokens = append(tokens, Token{
			ActionType: actionType,
			Subtype:    subtype,
			Token:      tok,
			FullValue:  fullValue,
			Offset:     offset,
		})
		offset += len(tok) + 1
	}

	for _, a := range m.Actions {
		switch a.Kind {
		case action.KindSet:
			name, _ := a.Value("name")
			for _, tok := range splitTokens(name) {
				emit(string(a.Kind), "name", tok, name)
			}
			for _, v := range a.Values("value") {
				for _, tok := range splitTokens(v) {
					emit(string(a.Kind), "value", tok, v)
				}
			}
		case action.KindFile, action.KindDir, action.KindLink, action.KindHardlink, action.KindLicense:
			path := a.Path()
			lowerPath := strings.ToLower(path)
			emit(string(a.Kind), "path", lowerPath, path)
			for _, comp := range strings.Split(lowerPath, "/") {
				if comp != "" {
					emit(string(a.Kind), "path_component", comp, path)
				}
			}
		case action.KindDepend:
			target, _ := a.Value("fmri")
			stem := stemOf(target)
			emit(string(a.Kind), "fmri_stem", strings.ToLower(stem), stem)
		}
	}

	return tokens
}

// splitTokens case-folds s and splits it on whitespace and punctuation
// boundaries, the indexing form; callers retain the original FullValue
// separately wherever exact-match semantics matter.
func splitTokens(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	if len(out) == 0 {
		return []string{strings.ToLower(s)}
	}
	return out
}

func stemOf(fullFmri string) string {
	rest := strings.TrimPrefix(fullFmri, "pkg:")
	rest = strings.TrimPrefix(rest, "//")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[idx+1:]
	}
	if idx := strings.IndexByte(rest, '@'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// positions is the offsets:[u32] sub-record of a posting pair.
type positions struct {
	Offsets []uint32 `cbor:"offsets"`
}

// pairID is one (fmri_id, positions) entry within a full_values group.
type pairID struct {
	FmriID    uint32    `cbor:"fmri_id"`
	Positions positions `cbor:"positions"`
}

// pairStr is the mini_delta equivalent, keyed by fmri string rather than
// dense id.
type pairStr struct {
	FmriStr   string    `cbor:"fmri_str"`
	Positions positions `cbor:"positions"`
}

// fullValueGroupID / fullValueGroupStr carry every posting for one original,
// unsplit property value (full_value) that produced the enclosing token.
type fullValueGroupID struct {
	FullValue string   `cbor:"full_value"`
	Pairs     []pairID `cbor:"pairs"`
}

type fullValueGroupStr struct {
	FullValue string    `cbor:"full_value"`
	Pairs     []pairStr `cbor:"pairs"`
}

// subtypeGroupID / subtypeGroupStr group full_values under the subtype
// (name, value, path, path_component, fmri_stem) they were extracted as.
type subtypeGroupID struct {
	Subtype    string             `cbor:"subtype"`
	FullValues []fullValueGroupID `cbor:"full_values"`
}

type subtypeGroupStr struct {
	Subtype    string              `cbor:"subtype"`
	FullValues []fullValueGroupStr `cbor:"full_values"`
}

// actionTypeGroupID / actionTypeGroupStr group subtypes under the action
// kind (set, file, dir, ...) that produced them.
type actionTypeGroupID struct {
	ActionType string           `cbor:"action_type"`
	Subtypes   []subtypeGroupID `cbor:"subtypes"`
}

type actionTypeGroupStr struct {
	ActionType string            `cbor:"action_type"`
	Subtypes   []subtypeGroupStr `cbor:"subtypes"`
}

// postingsValueID is the value stored at postings:<token>; postingsValueStr
// is the mini_delta equivalent, stored at mini_delta:<token>.
type postingsValueID struct {
	Groups []actionTypeGroupID `cbor:"groups"`
}

type postingsValueStr struct {
	Groups []actionTypeGroupStr `cbor:"groups"`
}

// tokenKey is the badger key for a postings/mini_delta entry: the table
// prefix followed by the bare indexing token, with no action_type/subtype/
// full_value encoded into the key itself (those live in the nested value).
func tokenKey(prefix, token string) []byte {
	return []byte(prefix + token)
}

// findOrCreateActionType returns the *actionTypeGroupID within groups whose
// ActionType matches, appending a new one if none does.
func findOrCreateActionTypeID(groups []actionTypeGroupID, actionType string) ([]actionTypeGroupID, *actionTypeGroupID) {
	for i := range groups {
		if groups[i].ActionType == actionType {
			return groups, &groups[i]
		}
	}
	groups = append(groups, actionTypeGroupID{ActionType: actionType})
	return groups, &groups[len(groups)-1]
}

func findOrCreateSubtypeID(subtypes []subtypeGroupID, subtype string) ([]subtypeGroupID, *subtypeGroupID) {
	for i := range subtypes {
		if subtypes[i].Subtype == subtype {
			return subtypes, &subtypes[i]
		}
	}
	subtypes = append(subtypes, subtypeGroupID{Subtype: subtype})
	return subtypes, &subtypes[len(subtypes)-1]
}

func findOrCreateFullValueID(fullValues []fullValueGroupID, fullValue string) ([]fullValueGroupID, *fullValueGroupID) {
	for i := range fullValues {
		if fullValues[i].FullValue == fullValue {
			return fullValues, &fullValues[i]
		}
	}
	fullValues = append(fullValues, fullValueGroupID{FullValue: fullValue})
	return fullValues, &fullValues[len(fullValues)-1]
}

func findOrCreateActionTypeStr(groups []actionTypeGroupStr, actionType string) ([]actionTypeGroupStr, *actionTypeGroupStr) {
	for i := range groups {
		if groups[i].ActionType == actionType {
			return groups, &groups[i]
		}
	}
	groups = append(groups, actionTypeGroupStr{ActionType: actionType})
	return groups, &groups[len(groups)-1]
}

func findOrCreateSubtypeStr(subtypes []subtypeGroupStr, subtype string) ([]subtypeGroupStr, *subtypeGroupStr) {
	for i := range subtypes {
		if subtypes[i].Subtype == subtype {
			return subtypes, &subtypes[i]
		}
	}
	subtypes = append(subtypes, subtypeGroupStr{Subtype: subtype})
	return subtypes, &subtypes[len(subtypes)-1]
}

func findOrCreateFullValueStr(fullValues []fullValueGroupStr, fullValue string) ([]fullValueGroupStr, *fullValueGroupStr) {
	for i := range fullValues {
		if fullValues[i].FullValue == fullValue {
			return fullValues, &fullValues[i]
		}
	}
	fullValues = append(fullValues, fullValueGroupStr{FullValue: fullValue})
	return fullValues, &fullValues[len(fullValues)-1]
}

// upsertPostingsID inserts t's (fmri_id, offset) pair into val, creating
// whatever action_type/subtype/full_value groups are needed.
func upsertPostingsID(val *postingsValueID, t Token, fmriID uint32) {
	var atg *actionTypeGroupID
	val.Groups, atg = findOrCreateActionTypeID(val.Groups, t.ActionType)
	var stg *subtypeGroupID
	atg.Subtypes, stg = findOrCreateSubtypeID(atg.Subtypes, t.Subtype)
	var fvg *fullValueGroupID
	stg.FullValues, fvg = findOrCreateFullValueID(stg.FullValues, t.FullValue)
	fvg.Pairs = appendOrReplacePairID(fvg.Pairs, fmriID, uint32(t.Offset))
}

// upsertPostingsStr is upsertPostingsID's mini_delta counterpart, keyed by
// fmri string.
func upsertPostingsStr(val *postingsValueStr, t Token, fullFmri string, offset uint32) {
	var atg *actionTypeGroupStr
	val.Groups, atg = findOrCreateActionTypeStr(val.Groups, t.ActionType)
	var stg *subtypeGroupStr
	atg.Subtypes, stg = findOrCreateSubtypeStr(atg.Subtypes, t.Subtype)
	var fvg *fullValueGroupStr
	stg.FullValues, fvg = findOrCreateFullValueStr(stg.FullValues, t.FullValue)
	fvg.Pairs = appendOrReplacePairStr(fvg.Pairs, fullFmri, offset)
}
