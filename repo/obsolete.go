package repo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/catalog"
	"github.com/ips6/pkgrepo/fmri"
	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/search"
)

// obsoleteMetadataVersion is the schema version stamped into every
// ObsoleteMetadata record's MetadataVersion field.
const obsoleteMetadataVersion = 1

// ObsoleteMetadata is the JSON sidecar written alongside an obsoleted
// package's manifest.
type ObsoleteMetadata struct {
	Fmri               string   `json:"fmri"`
	Status             string   `json:"status"`
	ObsolescenceDate   string   `json:"obsolescence_date"`
	DeprecationMessage string   `json:"deprecation_message,omitempty"`
	ObsoletedBy        []string `json:"obsoleted_by,omitempty"`
	MetadataVersion    int      `json:"metadata_version"`
	ContentHash        string   `json:"content_hash"`
}

// ObsoletedRecord pairs a package's obsolete metadata with its manifest,
// the unit import_obsoleted/export_obsoleted exchange.
type ObsoletedRecord struct {
	Metadata ObsoleteMetadata `json:"metadata"`
	Manifest action.Manifest  `json:"manifest"`
}

func (r *Repository) obsoletedDir(publisher, stem string) string {
	return filepath.Join(r.root, "obsoleted", publisher, stem)
}

// ObsoletePackage moves fullFmri's manifest from its publisher's pkg/
// directory into obsoleted/, synthesizes its metadata record, removes the
// version from the publisher's catalog, and queues a search index
// fast-remove for it.
func (r *Repository) ObsoletePackage(publisher, fullFmri, message, replacedBy string) error {
	if !r.HasPublisher(publisher) {
		return errcode.ErrorCodeRepoPublisherUnknown.WithArgs(publisher)
	}
	f, err := fmri.Parse(fullFmri)
	if err != nil {
		return err
	}
	version := f.Version.String()

	src := manifestPath(r.root, publisher, f.Stem, version)
	data, err := os.ReadFile(src)
	if err != nil {
		log.WithError(err).Errorf("obsolete-package: manifest for %q not found", fullFmri)
		return errcode.ErrorCodeCatalogPackageUnknown.WithArgs(fullFmri)
	}
	m, err := action.Parse(data, src)
	if err != nil {
		return err
	}

	destDir := r.obsoletedDir(publisher, f.Stem)
	quoted := quoteVersion(version)
	if err := writeFileAtomic(filepath.Join(destDir, quoted+".manifest"), data); err != nil {
		return err
	}

	var obsoletedBy []string
	if replacedBy != "" {
		obsoletedBy = []string{replacedBy}
	}
	meta := ObsoleteMetadata{
		Fmri:               fullFmri,
		Status:             "obsolete",
		ObsolescenceDate:   nowStamp(),
		DeprecationMessage: message,
		ObsoletedBy:        obsoletedBy,
		MetadataVersion:    obsoleteMetadataVersion,
		ContentHash:        catalog.Signature(m),
	}
	if err := writeJSONAtomic(filepath.Join(destDir, quoted+".json"), meta); err != nil {
		return err
	}

	if err := os.Remove(src); err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}

	catDir := filepath.Join(r.publisherDir(publisher), "catalog")
	cat, err := catalog.Open(catDir)
	if err != nil {
		return err
	}
	if err := cat.RemovePackage(f.Stem, version, fullFmri); err != nil {
		return err
	}
	if err := r.index.FastRemove(fullFmri); err != nil {
		log.WithError(err).Errorf("obsolete-package: fast-remove failed for %q", fullFmri)
		return err
	}
	log.Infof("obsoleted %q", fullFmri)
	return nil
}

// RestoreObsoleted is the inverse of ObsoletePackage: it moves the
// manifest back into the publisher's pkg/ tree, re-adds it to the
// catalog, removes the obsoleted sidecar files, and queues a search index
// fast-add for it.
func (r *Repository) RestoreObsoleted(publisher, fullFmri string) error {
	f, err := fmri.Parse(fullFmri)
	if err != nil {
		return err
	}
	version := f.Version.String()
	quoted := quoteVersion(version)
	destDir := r.obsoletedDir(publisher, f.Stem)

	manifestFile := filepath.Join(destDir, quoted+".manifest")
	data, err := os.ReadFile(manifestFile)
	if err != nil {
		return errcode.ErrorCodeCatalogPackageUnknown.WithArgs(fullFmri)
	}
	m, err := action.Parse(data, manifestFile)
	if err != nil {
		return err
	}

	dest := manifestPath(r.root, publisher, f.Stem, version)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	if err := os.Rename(manifestFile, dest); err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	os.Remove(filepath.Join(destDir, quoted+".json"))

	catDir := filepath.Join(r.publisherDir(publisher), "catalog")
	cat, err := catalog.Open(catDir)
	if err != nil {
		return err
	}
	if err := cat.AddPackage(f.Stem, version, m); err != nil {
		return err
	}
	return r.index.FastAdd(fullFmri, search.ExtractTokens(m))
}

// ListObsoleted enumerates every obsoleted package's metadata for
// publisher.
func (r *Repository) ListObsoleted(publisher string) ([]ObsoleteMetadata, error) {
	root := filepath.Join(r.root, "obsoleted", publisher)
	var out []ObsoleteMetadata
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() || filepath.Ext(p) != ".json" {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		var meta ObsoleteMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return errcode.ErrorCodeCatalogSignatureMismatch.WithArgs(err.Error())
		}
		out = append(out, meta)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// ExportObsoleted gathers every obsoleted package's metadata+manifest pair
// for publisher into a single document.
func (r *Repository) ExportObsoleted(publisher string) ([]ObsoletedRecord, error) {
	metas, err := r.ListObsoleted(publisher)
	if err != nil {
		return nil, err
	}

	out := make([]ObsoletedRecord, 0, len(metas))
	for _, meta := range metas {
		f, err := fmri.Parse(meta.Fmri)
		if err != nil {
			return nil, err
		}
		quoted := quoteVersion(f.Version.String())
		manifestFile := filepath.Join(r.obsoletedDir(publisher, f.Stem), quoted+".manifest")
		data, err := os.ReadFile(manifestFile)
		if err != nil {
			return nil, errcode.ErrorCodeCatalogPackageUnknown.WithArgs(meta.Fmri)
		}
		m, err := action.Parse(data, manifestFile)
		if err != nil {
			return nil, err
		}
		out = append(out, ObsoletedRecord{Metadata: meta, Manifest: m})
	}
	return out, nil
}

// ImportObsoleted writes a previously exported set of obsoleted records
// directly into obsoleted/, without touching the live catalog (the
// packages it describes are assumed to already be absent from it).
func (r *Repository) ImportObsoleted(publisher string, records []ObsoletedRecord) error {
	for _, rec := range records {
		f, err := fmri.Parse(rec.Metadata.Fmri)
		if err != nil {
			return err
		}
		destDir := r.obsoletedDir(publisher, f.Stem)
		quoted := quoteVersion(f.Version.String())

		if err := writeFileAtomic(filepath.Join(destDir, quoted+".manifest"), action.Serialize(rec.Manifest)); err != nil {
			return err
		}
		if err := writeJSONAtomic(filepath.Join(destDir, quoted+".json"), rec.Metadata); err != nil {
			return err
		}
	}
	return nil
}

// quoteVersion URL-quotes a version's reserved "," and ":" characters for
// use as a filename component, matching manifestPath's convention.
func quoteVersion(version string) string {
	return strings.NewReplacer(",", "%2C", ":", "%3A").Replace(version)
}
