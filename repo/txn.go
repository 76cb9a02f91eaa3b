package repo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sys/unix"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/catalog"
	"github.com/ips6/pkgrepo/fmri"
	"github.com/ips6/pkgrepo/internal/dcontext"
	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/internal/uuid"
	"github.com/ips6/pkgrepo/search"
)

var log = dcontext.GetLogger(dcontext.Background())

// Txn is an in-progress publish transaction against a single publisher.
// A Txn stages payloads and manifests; nothing is visible to readers
// until Commit succeeds.
type Txn struct {
	repo      *Repository
	publisher string
	id        string
	stageDir  string

	payloadDigests map[string]digest.Digest // staged relative path -> digest
	manifests      []stagedManifest
	manifestIdents []fmriIdentity

	lockFile *os.File
}

type stagedManifest struct {
	manifest action.Manifest
	path     string
}

// fmriIdentity holds the stem/version pair a staged manifest will be
// catalogued under, parsed once up front rather than re-derived at commit
// time.
type fmriIdentity struct {
	stem    string
	version string
	full    string
}

// Begin starts a new publish transaction for publisher, which must already
// be registered. It takes the repository's process-wide advisory lock for
// the lifetime of the transaction's Commit call only; staging does not
// require the lock.
func (r *Repository) Begin(publisher string) (*Txn, error) {
	if !r.HasPublisher(publisher) {
		return nil, errcode.ErrorCodeRepoPublisherUnknown.WithArgs(publisher)
	}

	id := uuid.NewString()
	stageDir := filepath.Join(r.root, "trans", id)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}

	return &Txn{
		repo:           r,
		publisher:      publisher,
		id:             id,
		stageDir:       stageDir,
		payloadDigests: map[string]digest.Digest{},
	}, nil
}

// AddPayloadDir ingests every regular file under dir into the blob store,
// recording the relative path -> digest mapping for later resolution by
// AddManifest.
func (t *Txn) AddPayloadDir(dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
		}
		d, err := t.repo.blobs.InsertFile(p)
		if err != nil {
			return err
		}
		t.payloadDigests[filepath.ToSlash(rel)] = d
		return nil
	})
}

// AddManifest resolves any File action whose digest is empty against the
// paths ingested by AddPayloadDir, verifies every File action's digest is
// present in the blob store, and stages the manifest for commit.
func (t *Txn) AddManifest(m action.Manifest) error {
	fullFmri, ok := m.Fmri()
	if !ok {
		return errcode.ErrorCodeActionMissingProperty.WithArgs("pkg.fmri")
	}

	resolved := m
	resolved.Actions = make([]action.Action, len(m.Actions))
	copy(resolved.Actions, m.Actions)

	for i, a := range resolved.Actions {
		if a.Kind != action.KindFile {
			continue
		}
		if a.Payload == "" {
			if d, ok := t.payloadDigests[a.Path()]; ok {
				a.Payload = d.String()
				resolved.Actions[i] = a
			}
		}
		if a.Payload == "" {
			return errcode.ErrorCodeRepoPayloadMissing.WithArgs(a.Path())
		}
		d, err := a.Digest()
		if err != nil {
			return errcode.ErrorCodeRepoPayloadMissing.WithArgs(a.Path())
		}
		if !t.repo.blobs.Exists(d) {
			return errcode.ErrorCodeRepoPayloadMissing.WithArgs(d.String())
		}
	}

	stagePath := filepath.Join(t.stageDir, sanitizeFmri(fullFmri)+".manifest")
	if err := writeFileAtomic(stagePath, action.Serialize(resolved)); err != nil {
		return err
	}

	ident, err := parseFmriIdentity(fullFmri)
	if err != nil {
		return err
	}

	t.manifests = append(t.manifests, stagedManifest{manifest: resolved, path: stagePath})
	t.manifestIdents = append(t.manifestIdents, ident)
	return nil
}

func sanitizeFmri(s string) string {
	return strings.NewReplacer("/", "_", ":", "_", "@", "_").Replace(s)
}

// Commit lands every staged manifest: moves it into its final publisher
// location, appends catalog entries, enqueues search index fast-add
// entries, and advances the repository's updated-at timestamp. Commit
// takes the repository-wide advisory lock for its duration so that
// concurrent commits serialize.
//
// Every staged manifest is validated against the existing catalog and
// against its batch-mates before any of them is landed, so a duplicate
// FMRI anywhere in the batch fails the whole Commit without moving,
// cataloguing, or fast-adding any manifest. If a later manifest still
// fails during the landing pass (an I/O error renaming or cataloguing
// it), the manifests already landed earlier in the same call are rolled
// back: their catalog entries and fast-add marks are undone and their
// manifest files are moved back into the stage directory.
func (t *Txn) Commit() error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	catDir := filepath.Join(t.repo.publisherDir(t.publisher), "catalog")
	cat, err := catalog.Open(catDir)
	if err != nil {
		return err
	}

	seenInBatch := map[string]bool{}
	for _, ident := range t.manifestIdents {
		key := ident.stem + "@" + ident.version
		if seenInBatch[key] {
			return errcode.ErrorCodeRepoDuplicateFmri.WithArgs(ident.full)
		}
		seenInBatch[key] = true

		for _, v := range cat.Versions(ident.stem) {
			if v == ident.version {
				return errcode.ErrorCodeRepoDuplicateFmri.WithArgs(ident.full)
			}
		}
	}

	landed := make([]struct {
		dest  string
		stage string
		ident fmriIdentity
	}, 0, len(t.manifests))

	rollback := func() {
		log.Warnf("rolling back %d already-landed manifest(s) for publisher %q", len(landed), t.publisher)
		for _, l := range landed {
			t.repo.index.FastRemove(l.ident.full)
			cat.RemovePackage(l.ident.stem, l.ident.version, l.ident.full)
			os.Rename(l.dest, l.stage)
		}
	}

	for i, sm := range t.manifests {
		ident := t.manifestIdents[i]

		dest := manifestPath(t.repo.root, t.publisher, ident.stem, ident.version)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			log.WithError(err).Errorf("commit failed making manifest directory for %q", ident.full)
			rollback()
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
		}
		if err := os.Rename(sm.path, dest); err != nil {
			log.WithError(err).Errorf("commit failed landing manifest for %q", ident.full)
			rollback()
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
		}

		if err := cat.AddPackage(ident.stem, ident.version, sm.manifest); err != nil {
			log.WithError(err).Errorf("commit failed cataloguing %q", ident.full)
			os.Rename(dest, sm.path)
			rollback()
			return err
		}

		if err := t.repo.index.FastAdd(ident.full, search.ExtractTokens(sm.manifest)); err != nil {
			log.WithError(err).Errorf("commit failed fast-adding %q to the search index", ident.full)
			cat.RemovePackage(ident.stem, ident.version, ident.full)
			os.Rename(dest, sm.path)
			rollback()
			return err
		}

		landed = append(landed, struct {
			dest  string
			stage string
			ident fmriIdentity
		}{dest: dest, stage: sm.path, ident: ident})
	}

	mk, err := t.repo.marker()
	if err != nil {
		return err
	}
	mk.UpdatedAt = nowStamp()
	if err := t.repo.writeMarker(mk); err != nil {
		return err
	}

	if needs, err := t.repo.index.NeedsRebuild(); err == nil && needs {
		if err := t.repo.RebuildIndex(); err != nil {
			log.WithError(err).Error("commit: search index rebuild failed")
		}
	}

	log.Infof("committed %d manifest(s) for publisher %q", len(landed), t.publisher)
	return os.RemoveAll(t.stageDir)
}

// Abort discards every staged manifest. Ingested payload blobs are left
// in the content-addressed store; being content-addressed, they may be
// reused by a future transaction at no extra cost.
func (t *Txn) Abort() error {
	return os.RemoveAll(t.stageDir)
}

func (t *Txn) lock() error {
	path := filepath.Join(t.repo.root, "repo.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return errcode.ErrorCodeRepoTransactionBusy.WithArgs(err.Error())
	}
	t.lockFile = f
	return nil
}

func (t *Txn) unlock() {
	if t.lockFile == nil {
		return
	}
	unix.Flock(int(t.lockFile.Fd()), unix.LOCK_UN)
	t.lockFile.Close()
	t.lockFile = nil
}

func parseFmriIdentity(full string) (fmriIdentity, error) {
	f, err := fmri.Parse(full)
	if err != nil {
		return fmriIdentity{}, err
	}
	return fmriIdentity{stem: f.Stem, version: f.Version.String(), full: full}, nil
}
