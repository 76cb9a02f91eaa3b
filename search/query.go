package search

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/ips6/pkgrepo/internal/errcode"
)

// Hit is a single matched (fmri, token) pairing returned by Search.
type Hit struct {
	Fmri       string
	ActionType string
	Subtype    string
	FullValue  string
	Offsets    []uint32
}

// Search looks up every token in tokens against the merged postings+
// mini_delta view, dropping any fmri present in fast_remove, and returns
// at most limit hits ranked by (exact-token match, then path/fmri_stem
// match, then token frequency ascending). The whole call runs against one badger read transaction,
// giving callers a single consistent snapshot even under concurrent
// publish.
func (idx *Index) Search(tokens []string, limit int) ([]Hit, error) {
	var hits []Hit

	err := idx.db.View(func(txn *badger.Txn) error {
		removed, err := loadFastRemoveSet(txn)
		if err != nil {
			return err
		}
		idToFmri, err := loadFmriCatalog(txn)
		if err != nil {
			return err
		}

		for _, token := range tokens {
			lowered := strings.ToLower(token)

			postingsVal, found, err := getPostingsID(txn, prefixPostings, lowered)
			if err != nil {
				return err
			}
			if found {
				for _, atg := range postingsVal.Groups {
					for _, stg := range atg.Subtypes {
						for _, fvg := range stg.FullValues {
							for _, p := range fvg.Pairs {
								fmriStr, ok := idToFmri[p.FmriID]
								if !ok || removed[fmriStr] {
									continue
								}
								hits = append(hits, Hit{
									Fmri: fmriStr, ActionType: atg.ActionType, Subtype: stg.Subtype,
									FullValue: fvg.FullValue, Offsets: p.Positions.Offsets,
								})
							}
						}
					}
				}
			}

			deltaVal, found, err := getPostingsStr(txn, prefixMiniDelta, lowered)
			if err != nil {
				return err
			}
			if found {
				for _, atg := range deltaVal.Groups {
					for _, stg := range atg.Subtypes {
						for _, fvg := range stg.FullValues {
							for _, p := range fvg.Pairs {
								if removed[p.FmriStr] {
									continue
								}
								hits = append(hits, Hit{
									Fmri: p.FmriStr, ActionType: atg.ActionType, Subtype: stg.Subtype,
									FullValue: fvg.FullValue, Offsets: p.Positions.Offsets,
								})
							}
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errcode.ErrorCodeSearchIndexOpenFailed.WithArgs(err.Error())
	}

	hits = dedupeHits(hits)
	rankHits(hits, tokens)

	if len(hits) == 0 {
		return nil, errcode.ErrorCodeSearchNoMatch.WithArgs(strings.Join(tokens, ","))
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func dedupeHits(hits []Hit) []Hit {
	seen := map[string]bool{}
	out := hits[:0]
	for _, h := range hits {
		key := h.Fmri + "\x00" + h.ActionType + "\x00" + h.Subtype + "\x00" + h.FullValue
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

// rankHits orders by exact-token match first, then stem match, then
// ascending token frequency (rarer matches surface first).
func rankHits(hits []Hit, tokens []string) {
	exact := map[string]bool{}
	for _, t := range tokens {
		exact[strings.ToLower(t)] = true
	}
	freq := map[string]int{}
	for _, h := range hits {
		freq[h.FullValue]++
	}

	sort.SliceStable(hits, func(i, j int) bool {
		ei, ej := exact[strings.ToLower(hits[i].FullValue)], exact[strings.ToLower(hits[j].FullValue)]
		if ei != ej {
			return ei
		}
		si, sj := hits[i].Subtype == "path" || hits[i].Subtype == "fmri_stem", hits[j].Subtype == "path" || hits[j].Subtype == "fmri_stem"
		if si != sj {
			return si
		}
		return freq[hits[i].FullValue] < freq[hits[j].FullValue]
	})
}

// getPostingsID performs a direct keyed lookup of a single token against
// tablePrefix, returning found=false rather than an error when the token
// has no entry.
func getPostingsID(txn *badger.Txn, tablePrefix, token string) (postingsValueID, bool, error) {
	var val postingsValueID
	item, err := txn.Get(tokenKey(tablePrefix, token))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return val, false, nil
		}
		return val, false, err
	}
	if err := item.Value(func(raw []byte) error {
		return cbor.Unmarshal(raw, &val)
	}); err != nil {
		return val, false, err
	}
	return val, true, nil
}

func getPostingsStr(txn *badger.Txn, tablePrefix, token string) (postingsValueStr, bool, error) {
	var val postingsValueStr
	item, err := txn.Get(tokenKey(tablePrefix, token))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return val, false, nil
		}
		return val, false, err
	}
	if err := item.Value(func(raw []byte) error {
		return cbor.Unmarshal(raw, &val)
	}); err != nil {
		return val, false, err
	}
	return val, true, nil
}

func loadFastRemoveSet(txn *badger.Txn) (map[string]bool, error) {
	out := map[string]bool{}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(prefixFastRemove)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		fmriStr := strings.TrimPrefix(string(it.Item().Key()), prefixFastRemove)
		out[fmriStr] = true
	}
	return out, nil
}

func loadFmriCatalog(txn *badger.Txn) (map[uint32]string, error) {
	out := map[uint32]string{}
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(prefixFmriCatalog)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		keyStr := strings.TrimPrefix(string(item.Key()), prefixFmriCatalog)
		n, err := strconv.ParseUint(keyStr, 10, 32)
		if err != nil {
			continue
		}
		id := uint32(n)
		if err := item.Value(func(val []byte) error {
			out[id] = string(val)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
