package search

import (
	"crypto/sha1" //nolint:gosec // fmri_catalog_hash is a change-detection fingerprint, not a security boundary
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/internal/dcontext"
	"github.com/ips6/pkgrepo/internal/errcode"
)

var log = dcontext.GetLogger(dcontext.Background())

// ManifestSource supplies the full set of currently catalogued manifests
// a rebuild re-indexes from, keyed by their full FMRI string.
type ManifestSource map[string]action.Manifest

// Rebuild performs a full reindex: it reassigns dense fmri ids, re-encodes
// postings from every manifest in source, recomputes fmri_catalog_hash,
// and clears mini_delta/fast_add/fast_remove. It runs as a single badger
// write transaction; if the process crashes before commit, the prior
// index state is left intact.
func (idx *Index) Rebuild(source ManifestSource) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	fmris := make([]string, 0, len(source))
	for f := range source {
		fmris = append(fmris, f)
	}
	sort.Strings(fmris)

	idToFmri := make(map[uint32]string, len(fmris))
	fmriToID := make(map[string]uint32, len(fmris))
	for i, f := range fmris {
		id := uint32(i)
		idToFmri[id] = f
		fmriToID[f] = id
	}

	postings := map[string]*postingsValueID{}
	for _, f := range fmris {
		for _, t := range ExtractTokens(source[f]) {
			key := string(tokenKey(prefixPostings, t.Token))
			val, ok := postings[key]
			if !ok {
				val = &postingsValueID{}
				postings[key] = val
			}
			upsertPostingsID(val, t, fmriToID[f])
		}
	}

	hash := fmriCatalogHash(fmris)

	err := idx.db.Update(func(txn *badger.Txn) error {
		if err := clearPrefix(txn, prefixPostings); err != nil {
			return err
		}
		if err := clearPrefix(txn, prefixFmriCatalog); err != nil {
			return err
		}
		if err := clearPrefix(txn, prefixMiniDelta); err != nil {
			return err
		}
		if err := clearPrefix(txn, prefixFastAdd); err != nil {
			return err
		}
		if err := clearPrefix(txn, prefixFastRemove); err != nil {
			return err
		}

		for id, f := range idToFmri {
			if err := txn.Set(fmriCatalogKey(id), []byte(f)); err != nil {
				return err
			}
		}
		for key, fvg := range postings {
			data, err := cbor.Marshal(fvg)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return txn.Set([]byte(keyFmriCatalogHash), []byte(hash))
	})
	if err != nil {
		log.WithError(err).Error("search index rebuild failed")
		return err
	}
	log.Infof("rebuilt search index: %d package(s), %d posting token(s)", len(fmris), len(postings))
	return nil
}

func appendOrReplacePairID(pairs []pairID, fmriID uint32, offset uint32) []pairID {
	for i, p := range pairs {
		if p.FmriID == fmriID {
			pairs[i].Positions.Offsets = append(pairs[i].Positions.Offsets, offset)
			return pairs
		}
	}
	return append(pairs, pairID{FmriID: fmriID, Positions: positions{Offsets: []uint32{offset}}})
}

func fmriCatalogKey(id uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", prefixFmriCatalog, id))
}

// fmriCatalogHash is the lowercase hex SHA-1 of the newline-joined,
// sorted fmri strings, used by clients to cheaply detect that a
// rebuild has occurred.
func fmriCatalogHash(sortedFmris []string) string {
	h := sha1.New() //nolint:gosec
	for _, f := range sortedFmris {
		fmt.Fprintf(h, "%s\n", f)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func clearPrefix(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		k := it.Item().KeyCopy(nil)
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// FmriCatalogHash returns the hash recorded by the most recent Rebuild.
func (idx *Index) FmriCatalogHash() (string, error) {
	var hash string
	err := idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyFmriCatalogHash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			hash = string(val)
			return nil
		})
	})
	if err != nil {
		return "", errcode.ErrorCodeSearchIndexOpenFailed.WithArgs(err.Error())
	}
	return hash, nil
}
