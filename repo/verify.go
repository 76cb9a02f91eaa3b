package repo

import (
	"github.com/opencontainers/go-digest"

	"github.com/ips6/pkgrepo/action"
)

// MissingBlob names a File action whose digest has no corresponding blob
// in the store.
type MissingBlob struct {
	Fmri   string
	Path   string
	Digest string
}

// VerifyReport is the result of a read-only consistency audit. It never
// deletes anything: the blob lifecycle stays immutable until a separate,
// explicit decision removes a blob.
type VerifyReport struct {
	PackagesChecked int
	MissingBlobs    []MissingBlob
	OrphanedBlobs   []string
	CorruptBlobs    []string
}

// Verify runs a mark-and-sweep style audit over the repository: the mark
// phase walks every publisher's catalog, checking each File action's
// digest is present in the blob store; the sweep phase enumerates the
// blob store and reports blobs no manifest references. Orphaned blobs are
// reported, not removed - republishing the same payload reuses them at no
// extra cost, and an explicit prune is left to a separate operation.
func (r *Repository) Verify() (VerifyReport, error) {
	var report VerifyReport
	marked := map[digest.Digest]bool{}

	publishers, err := r.Publishers()
	if err != nil {
		return report, err
	}

	for _, pub := range publishers {
		cat, err := r.Catalog(pub)
		if err != nil {
			return report, err
		}
		for _, stem := range cat.Stems() {
			for _, version := range cat.Versions(stem) {
				report.PackagesChecked++
				m, err := r.ReadManifest(pub, stem, version)
				if err != nil {
					return report, err
				}
				fullFmri, _ := m.Fmri()
				if err := r.verifyManifestBlobs(m, fullFmri, marked, &report); err != nil {
					return report, err
				}
			}
		}
	}

	err = r.blobs.Enumerate(func(d digest.Digest) error {
		if !marked[d] {
			report.OrphanedBlobs = append(report.OrphanedBlobs, d.String())
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	return report, nil
}

func (r *Repository) verifyManifestBlobs(m action.Manifest, fullFmri string, marked map[digest.Digest]bool, report *VerifyReport) error {
	for _, a := range m.Actions {
		if a.Kind != action.KindFile {
			continue
		}
		d, err := a.Digest()
		if err != nil {
			report.MissingBlobs = append(report.MissingBlobs, MissingBlob{
				Fmri: fullFmri, Path: a.Path(), Digest: a.Payload,
			})
			continue
		}
		if !r.blobs.Exists(d) {
			report.MissingBlobs = append(report.MissingBlobs, MissingBlob{
				Fmri: fullFmri, Path: a.Path(), Digest: d.String(),
			})
			continue
		}
		marked[d] = true
		if err := r.blobs.Verify(d); err != nil {
			report.CorruptBlobs = append(report.CorruptBlobs, d.String())
		}
	}
	return nil
}
