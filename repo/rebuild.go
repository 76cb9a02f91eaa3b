package repo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/catalog"
	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/search"
)

// RebuildCatalog rewrites publisher's catalog from scratch by walking its
// pkg/ manifest tree and re-deriving base/dependency/summary entries for
// every manifest found, the same recovery path a corrupted catalog.attrs
// would require.
func (r *Repository) RebuildCatalog(publisher string) error {
	if !r.HasPublisher(publisher) {
		return errcode.ErrorCodeRepoPublisherUnknown.WithArgs(publisher)
	}
	catDir := filepath.Join(r.publisherDir(publisher), "catalog")
	if err := catalog.Init(catDir); err != nil {
		return err
	}
	cat, err := catalog.Open(catDir)
	if err != nil {
		return err
	}

	pkgDir := filepath.Join(r.publisherDir(publisher), "pkg")
	err = filepath.Walk(pkgDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
		}
		if info.IsDir() || !strings.HasSuffix(p, ".manifest") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
		}
		m, err := action.Parse(data, p)
		if err != nil {
			return err
		}
		fullFmri, ok := m.Fmri()
		if !ok {
			return errcode.ErrorCodeActionMissingProperty.WithArgs("pkg.fmri")
		}
		ident, err := parseFmriIdentity(fullFmri)
		if err != nil {
			return err
		}
		return cat.AddPackage(ident.stem, ident.version, m)
	})
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// AllManifests collects every currently catalogued manifest across every
// registered publisher, keyed by full FMRI, for use as a search.Rebuild
// source.
func (r *Repository) AllManifests() (search.ManifestSource, error) {
	source := search.ManifestSource{}

	publishers, err := r.Publishers()
	if err != nil {
		return nil, err
	}
	for _, pub := range publishers {
		cat, err := r.Catalog(pub)
		if err != nil {
			return nil, err
		}
		for _, stem := range cat.Stems() {
			for _, version := range cat.Versions(stem) {
				m, err := r.ReadManifest(pub, stem, version)
				if err != nil {
					return nil, err
				}
				fullFmri, ok := m.Fmri()
				if !ok {
					continue
				}
				source[fullFmri] = m
			}
		}
	}
	return source, nil
}

// RebuildIndex performs a full search index rebuild from every manifest
// currently catalogued across every publisher.
func (r *Repository) RebuildIndex() error {
	source, err := r.AllManifests()
	if err != nil {
		return err
	}
	return r.index.Rebuild(source)
}
