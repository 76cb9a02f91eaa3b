// Package api implements the repository's read-only query surface: the
// list/contents/search/publishers/info operations consumed by the CLI and
// by any future transport. Every operation here reads from catalog and
// search-index state already committed by repo.Txn; none of it mutates
// the repository.
package api

import (
	"sort"

	"github.com/gobwas/glob"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/fmri"
	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/repo"
	"github.com/ips6/pkgrepo/search"
)

// Reader is a handle for running read operations against an open
// repository.
type Reader struct {
	repo *repo.Repository
}

// New wraps r for read operations.
func New(r *repo.Repository) *Reader { return &Reader{repo: r} }

// ListEntry is one row of a list() result.
type ListEntry struct {
	Fmri     string
	Summary  string
	Obsolete bool
}

// ListOptions controls list()'s filtering and pagination.
type ListOptions struct {
	Publisher       string // "" means every registered publisher
	StemPattern     string // shell-style glob, "" matches everything
	IncludeObsolete bool
	Page            int // 1-based; 0 or negative means "no pagination"
	PageSize        int
}

// List streams {fmri, summary, obsolete?} rows matching opts, sorted by
// fmri for deterministic pagination.
func (r *Reader) List(opts ListOptions) ([]ListEntry, error) {
	publishers, err := r.resolvePublishers(opts.Publisher)
	if err != nil {
		return nil, err
	}

	var matcher glob.Glob
	if opts.StemPattern != "" {
		matcher, err = glob.Compile(opts.StemPattern, '/')
		if err != nil {
			return nil, errcode.ErrorCodeFmriInvalidFormat.WithArgs(opts.StemPattern)
		}
	}

	var out []ListEntry
	for _, pub := range publishers {
		cat, err := r.repo.Catalog(pub)
		if err != nil {
			return nil, err
		}
		for _, stem := range cat.Stems() {
			if matcher != nil && !matcher.Match(stem) {
				continue
			}
			for _, version := range cat.Versions(stem) {
				summary, _ := cat.Summary(stem, version)
				entryFmri := (fmri.Fmri{Publisher: pub, Stem: stem}).String() + "@" + version
				out = append(out, ListEntry{Fmri: entryFmri, Summary: summary.Summary})
			}
		}

		if opts.IncludeObsolete {
			metas, err := r.repo.ListObsoleted(pub)
			if err != nil {
				return nil, err
			}
			for _, meta := range metas {
				if matcher != nil {
					f, err := fmri.Parse(meta.Fmri)
					if err == nil && !matcher.Match(f.Stem) {
						continue
					}
				}
				out = append(out, ListEntry{Fmri: meta.Fmri, Obsolete: true})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Fmri < out[j].Fmri })
	return paginate(out, opts.Page, opts.PageSize), nil
}

func paginate(entries []ListEntry, page, pageSize int) []ListEntry {
	if page <= 0 || pageSize <= 0 {
		return entries
	}
	start := (page - 1) * pageSize
	if start >= len(entries) {
		return nil
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

func (r *Reader) resolvePublishers(publisher string) ([]string, error) {
	if publisher != "" {
		if !r.repo.HasPublisher(publisher) {
			return nil, errcode.ErrorCodeRepoPublisherUnknown.WithArgs(publisher)
		}
		return []string{publisher}, nil
	}
	return r.repo.Publishers()
}

// Contents returns fullFmri's actions, optionally filtered to one action
// kind. The catalog alone only retains Set/Depend actions, so Contents
// always reads the manifest file on disk for the complete action set.
func (r *Reader) Contents(publisher, fullFmri string, actionTypeFilter action.Kind) ([]action.Action, error) {
	f, err := fmri.Parse(fullFmri)
	if err != nil {
		return nil, err
	}
	m, err := r.repo.ReadManifest(publisher, f.Stem, f.Version.String())
	if err != nil {
		return nil, err
	}

	if actionTypeFilter == "" {
		return m.Actions, nil
	}
	var out []action.Action
	for _, a := range m.Actions {
		if a.Kind == actionTypeFilter {
			out = append(out, a)
		}
	}
	return out, nil
}

// Search runs tokens against the repository's search index, optionally
// restricted to one publisher's packages.
func (r *Reader) Search(tokens []string, limit int, publisher string) ([]search.Hit, error) {
	hits, err := r.repo.SearchIndex().Search(tokens, 0)
	if err != nil {
		return nil, err
	}
	if publisher == "" && limit <= 0 {
		return hits, nil
	}

	var filtered []search.Hit
	for _, h := range hits {
		if publisher != "" {
			f, err := fmri.Parse(h.Fmri)
			if err != nil || f.Publisher != publisher {
				continue
			}
		}
		filtered = append(filtered, h)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered, nil
}

// PublisherInfo is one row of publishers().
type PublisherInfo struct {
	Name    string
	Aliases []string
	Origins []string
	Default bool
}

// Publishers lists every registered publisher.
func (r *Reader) Publishers() ([]PublisherInfo, error) {
	names, err := r.repo.Publishers()
	if err != nil {
		return nil, err
	}
	out := make([]PublisherInfo, len(names))
	for i, n := range names {
		out[i] = PublisherInfo{Name: n}
	}
	return out, nil
}

// Info is the summary counts and catalog hash returned by info().
type Info struct {
	Publishers      int
	PackageCount    int
	VersionCount    int
	FmriCatalogHash string
}

// Info aggregates package/version counts across every publisher's catalog
// plus the search index's current fmri_catalog_hash.
func (r *Reader) Info() (Info, error) {
	var info Info
	names, err := r.repo.Publishers()
	if err != nil {
		return info, err
	}
	info.Publishers = len(names)

	for _, pub := range names {
		cat, err := r.repo.Catalog(pub)
		if err != nil {
			return info, err
		}
		for _, stem := range cat.Stems() {
			info.PackageCount++
			info.VersionCount += len(cat.Versions(stem))
		}
	}

	hash, err := r.repo.SearchIndex().FmriCatalogHash()
	if err != nil {
		return info, err
	}
	info.FmriCatalogHash = hash
	return info, nil
}
