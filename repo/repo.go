// Package repo implements the on-disk repository backend: the directory
// layout a pkgrepo repository uses, publisher registration, and the
// publish transaction that lands new package versions.
package repo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/blob"
	"github.com/ips6/pkgrepo/catalog"
	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/search"
)

const markerFileName = "pkg6.image.json"

// imageMarker is the repository-root marker written as pkg6.image.json.
type imageMarker struct {
	Version          int      `json:"version"`
	CreatedAt        string   `json:"created-at"`
	UpdatedAt        string   `json:"updated-at"`
	Publishers       []string `json:"publishers"`
	DefaultPublisher string   `json:"default-publisher,omitempty"`
}

// Repository is an open handle on a repository root directory.
type Repository struct {
	root  string
	blobs *blob.Store
	index *search.Index
}

// Create initializes a new, empty repository at root with the given
// default publisher already registered.
func Create(root, defaultPublisher string) (*Repository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}

	markerPath := filepath.Join(root, markerFileName)
	if _, err := os.Stat(markerPath); err == nil {
		return nil, errcode.ErrorCodeRepoCorruptLayout.WithArgs("repository already initialized at " + root)
	}

	now := nowStamp()
	marker := imageMarker{
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		DefaultPublisher: defaultPublisher,
	}
	if err := writeJSONAtomic(markerPath, marker); err != nil {
		return nil, err
	}

	store, err := blob.New(filepath.Join(root, "file"))
	if err != nil {
		return nil, err
	}
	idx, err := search.Open(filepath.Join(root, "search"), search.DefaultMaxFastIndexed)
	if err != nil {
		return nil, err
	}
	r := &Repository{root: root, blobs: store, index: idx}

	if defaultPublisher != "" {
		if err := r.AddPublisher(defaultPublisher); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Open opens an existing repository at root.
func Open(root string) (*Repository, error) {
	markerPath := filepath.Join(root, markerFileName)
	if _, err := os.Stat(markerPath); err != nil {
		return nil, errcode.ErrorCodeRepoCorruptLayout.WithArgs("no repository found at " + root)
	}
	store, err := blob.New(filepath.Join(root, "file"))
	if err != nil {
		return nil, err
	}
	idx, err := search.Open(filepath.Join(root, "search"), search.DefaultMaxFastIndexed)
	if err != nil {
		return nil, err
	}
	return &Repository{root: root, blobs: store, index: idx}, nil
}

// Close releases the repository's open handles, currently just its search
// index.
func (r *Repository) Close() error {
	return r.index.Close()
}

// Root returns the repository's root directory.
func (r *Repository) Root() string { return r.root }

// Blobs returns the repository's backing content-addressed store.
func (r *Repository) Blobs() *blob.Store { return r.blobs }

// SearchIndex returns the repository's backing search index.
func (r *Repository) SearchIndex() *search.Index { return r.index }

// Catalog opens publisher's catalog for reading.
func (r *Repository) Catalog(publisher string) (*catalog.Catalog, error) {
	if !r.HasPublisher(publisher) {
		return nil, errcode.ErrorCodeRepoPublisherUnknown.WithArgs(publisher)
	}
	return catalog.Open(filepath.Join(r.publisherDir(publisher), "catalog"))
}

// ReadManifest reads and parses the on-disk manifest for stem@version
// under publisher, the full manifest including File/Dir/Link actions the
// catalog does not retain.
func (r *Repository) ReadManifest(publisher, stem, version string) (action.Manifest, error) {
	path := manifestPath(r.root, publisher, stem, version)
	data, err := os.ReadFile(path)
	if err != nil {
		return action.Manifest{}, errcode.ErrorCodeCatalogPackageUnknown.WithArgs(stem + "@" + version)
	}
	return action.Parse(data, path)
}

func (r *Repository) marker() (imageMarker, error) {
	var m imageMarker
	data, err := os.ReadFile(filepath.Join(r.root, markerFileName))
	if err != nil {
		return m, errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	return m, nil
}

func (r *Repository) writeMarker(m imageMarker) error {
	return writeJSONAtomic(filepath.Join(r.root, markerFileName), m)
}

// publisherDir returns "<root>/publisher/<pub>".
func (r *Repository) publisherDir(publisher string) string {
	return filepath.Join(r.root, "publisher", publisher)
}

// Publishers returns the names of every registered publisher.
func (r *Repository) Publishers() ([]string, error) {
	m, err := r.marker()
	if err != nil {
		return nil, err
	}
	return m.Publishers, nil
}

// HasPublisher reports whether publisher is registered.
func (r *Repository) HasPublisher(publisher string) bool {
	m, err := r.marker()
	if err != nil {
		return false
	}
	for _, p := range m.Publishers {
		if p == publisher {
			return true
		}
	}
	return false
}

// AddPublisher registers a new publisher, creating its directory layout
// and an empty pub.p5i document.
func (r *Repository) AddPublisher(publisher string) error {
	m, err := r.marker()
	if err != nil {
		return err
	}
	for _, p := range m.Publishers {
		if p == publisher {
			return nil
		}
	}

	dir := r.publisherDir(publisher)
	for _, sub := range []string{"catalog", "pkg"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
		}
	}

	if err := catalog.Init(filepath.Join(dir, "catalog")); err != nil {
		return err
	}

	p5i := pubP5I{
		Packages: []string{},
		Publishers: []p5iPublisher{
			{Name: publisher, Packages: []string{}, Repositories: []string{}},
		},
		Version: 1,
	}
	if err := writeJSONAtomic(filepath.Join(dir, "pub.p5i"), p5i); err != nil {
		return err
	}

	m.Publishers = append(m.Publishers, publisher)
	m.UpdatedAt = nowStamp()
	return r.writeMarker(m)
}

// RemovePublisher deregisters publisher and removes its directory tree.
func (r *Repository) RemovePublisher(publisher string) error {
	m, err := r.marker()
	if err != nil {
		return err
	}

	idx := -1
	for i, p := range m.Publishers {
		if p == publisher {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errcode.ErrorCodeRepoPublisherUnknown.WithArgs(publisher)
	}

	if err := os.RemoveAll(r.publisherDir(publisher)); err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}

	m.Publishers = append(m.Publishers[:idx], m.Publishers[idx+1:]...)
	m.UpdatedAt = nowStamp()
	return r.writeMarker(m)
}

type pubP5I struct {
	Packages   []string       `json:"packages"`
	Publishers []p5iPublisher `json:"publishers"`
	Version    int            `json:"version"`
}

type p5iPublisher struct {
	Name         string   `json:"name"`
	Alias        *string  `json:"alias"`
	Packages     []string `json:"packages"`
	Repositories []string `json:"repositories"`
}

// manifestPath returns the on-disk location of a committed manifest,
// URL-quoting the version's reserved "," and ":" characters.
func manifestPath(repoRoot, publisher, stem, version string) string {
	quoted := strings.NewReplacer(",", "%2C", ":", "%3A").Replace(version)
	return filepath.Join(repoRoot, "publisher", publisher, "pkg", stem, quoted+".manifest")
}

func nowStamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errcode.ErrorCodeRepoCorruptLayout.WithArgs(err.Error())
	}
	return nil
}
