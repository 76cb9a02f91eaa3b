package search

import (
	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/ips6/pkgrepo/internal/errcode"
)

// FastAdd records the tokens of a newly published manifest into
// mini_delta, marks fmri as fast_add, and clears any stale fast_remove
// mark for it. It runs as a single badger write transaction; a concurrent
// writer holding idx's lock fails fast rather than blocking, matching the
// spec's "single logical writer" rule.
func (idx *Index) FastAdd(fullFmri string, tokens []Token) error {
	if !idx.mu.TryLock() {
		return errcode.ErrorCodeRepoTransactionBusy.WithArgs()
	}
	defer idx.mu.Unlock()

	err := idx.db.Update(func(txn *badger.Txn) error {
		grouped := map[string][]Token{}
		for _, t := range tokens {
			k := string(tokenKey(prefixMiniDelta, t.Token))
			grouped[k] = append(grouped[k], t)
		}

		for key, group := range grouped {
			var val postingsValueStr
			if item, err := txn.Get([]byte(key)); err == nil {
				if err := item.Value(func(raw []byte) error {
					return cbor.Unmarshal(raw, &val)
				}); err != nil {
					return err
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			for _, t := range group {
				upsertPostingsStr(&val, t, fullFmri, uint32(t.Offset))
			}

			data, err := cbor.Marshal(val)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}

		if err := txn.Set([]byte(prefixFastAdd+fullFmri), []byte{1}); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixFastRemove + fullFmri))
	})
	if err != nil {
		return errcode.ErrorCodeSearchIndexOpenFailed.WithArgs(err.Error())
	}
	return nil
}

// FastRemove marks fullFmri as removed: future reads exclude it even
// though its mini_delta/postings entries may still be present until the
// next rebuild.
func (idx *Index) FastRemove(fullFmri string) error {
	if !idx.mu.TryLock() {
		return errcode.ErrorCodeRepoTransactionBusy.WithArgs()
	}
	defer idx.mu.Unlock()

	err := idx.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixFastRemove+fullFmri), []byte{1}); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixFastAdd + fullFmri))
	})
	if err != nil {
		return errcode.ErrorCodeSearchIndexOpenFailed.WithArgs(err.Error())
	}
	return nil
}

func appendOrReplacePairStr(pairs []pairStr, fmriStr string, offset uint32) []pairStr {
	for i, p := range pairs {
		if p.FmriStr == fmriStr {
			pairs[i].Positions.Offsets = append(pairs[i].Positions.Offsets, offset)
			return pairs
		}
	}
	return append(pairs, pairStr{FmriStr: fmriStr, Positions: positions{Offsets: []uint32{offset}}})
}

// FastTableSize reports the combined count of fast_add and fast_remove
// entries, used to decide whether a rebuild is due.
func (idx *Index) FastTableSize() (int, error) {
	count := 0
	err := idx.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		for _, prefix := range []string{prefixFastAdd, prefixFastRemove} {
			it := txn.NewIterator(opts)
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				count++
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return 0, errcode.ErrorCodeSearchIndexOpenFailed.WithArgs(err.Error())
	}
	return count, nil
}

// NeedsRebuild reports whether the fast tables have grown past
// idx.maxFastIndexed, the threshold past which Txn.Commit and the
// restore-obsoleted command run a full rebuild before returning.
func (idx *Index) NeedsRebuild() (bool, error) {
	n, err := idx.FastTableSize()
	if err != nil {
		return false, err
	}
	return n > idx.maxFastIndexed, nil
}
