// Package catalog implements the per-publisher incremental catalog: the
// set of small, mergeable JSON documents a repository maintains so that
// clients can list and search packages without reading every manifest.
package catalog

import (
	"crypto/sha1" //nolint:gosec // signature is a content-equivalence fingerprint, not a security boundary
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/internal/dcontext"
	"github.com/ips6/pkgrepo/internal/errcode"
)

var log = dcontext.GetLogger(dcontext.Background())

const (
	attrsFile      = "catalog.attrs"
	baseFile       = "catalog.base.C"
	dependencyFile = "catalog.dependency.C"
	summaryFile    = "catalog.summary.C"
	updateLogFile  = "catalog.updatelog"
)

// Attrs is catalog.attrs: summary metadata about the catalog as a whole.
type Attrs struct {
	Created             string `json:"created"`
	LastModified        string `json:"last-modified"`
	PackageCount        int    `json:"package-count"`
	PackageVersionCount int    `json:"package-version-count"`
	Version             int    `json:"version"`
}

// BaseEntry is one version's worth of the base part: its Set actions and
// the signature used to detect manifest equivalence across rebuilds.
type BaseEntry struct {
	Version   string          `json:"version"`
	Signature string          `json:"signature-sha1"`
	Actions   []action.Action `json:"actions"`
}

// DependencyEntry is one version's Depend actions.
type DependencyEntry struct {
	Version string          `json:"version"`
	Actions []action.Action `json:"actions"`
}

// SummaryEntry is one version's human-facing summary fields, lifted out
// of its Set actions for fast listing without re-parsing every manifest.
type SummaryEntry struct {
	Version        string `json:"version"`
	Summary        string `json:"summary,omitempty"`
	Description    string `json:"description,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// LogOp is the operation recorded in an updatelog entry.
type LogOp string

const (
	LogOpAdd    LogOp = "add"
	LogOpRemove LogOp = "remove"
)

// LogEntry is one line of catalog.updatelog.
type LogEntry struct {
	Op        LogOp  `json:"op"`
	Fmri      string `json:"fmri"`
	Timestamp string `json:"timestamp"`
}

// Catalog is an in-memory view of a publisher's four catalog documents,
// backed by a directory on disk.
type Catalog struct {
	dir string

	attrs      Attrs
	base       map[string][]BaseEntry
	dependency map[string][]DependencyEntry
	summary    map[string][]SummaryEntry
	updateLog  []LogEntry
}

// Init creates an empty catalog directory (all four documents present,
// zeroed) at dir.
func Init(dir string) error {
	now := nowStamp()
	c := &Catalog{
		dir:        dir,
		attrs:      Attrs{Created: now, LastModified: now, Version: 1},
		base:       map[string][]BaseEntry{},
		dependency: map[string][]DependencyEntry{},
		summary:    map[string][]SummaryEntry{},
	}
	return c.flush()
}

// Open loads a catalog directory previously created by Init.
func Open(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir}

	if err := readJSON(filepath.Join(dir, attrsFile), &c.attrs); err != nil {
		return nil, err
	}
	c.base = map[string][]BaseEntry{}
	if err := readJSON(filepath.Join(dir, baseFile), &c.base); err != nil {
		return nil, err
	}
	c.dependency = map[string][]DependencyEntry{}
	if err := readJSON(filepath.Join(dir, dependencyFile), &c.dependency); err != nil {
		return nil, err
	}
	c.summary = map[string][]SummaryEntry{}
	if err := readJSON(filepath.Join(dir, summaryFile), &c.summary); err != nil {
		return nil, err
	}

	logData, err := os.ReadFile(filepath.Join(dir, updateLogFile))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errcode.ErrorCodeCatalogWriteFailed.WithArgs(err.Error())
		}
	} else {
		for _, line := range splitLines(logData) {
			var e LogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, errcode.ErrorCodeCatalogSignatureMismatch.WithArgs(err.Error())
			}
			c.updateLog = append(c.updateLog, e)
		}
	}

	return c, nil
}

// Signature computes the stable SHA-1 fingerprint of a manifest's Set
// actions, sorted by name then value, used to detect that two manifests
// are catalog-equivalent even if their action text differs cosmetically.
func Signature(m action.Manifest) string {
	var sets []action.Action
	for _, a := range m.Actions {
		if a.Kind == action.KindSet {
			sets = append(sets, a)
		}
	}
	sort.Slice(sets, func(i, j int) bool {
		ki, kj := sets[i].PrimaryKey(), sets[j].PrimaryKey()
		if ki != kj {
			return ki < kj
		}
		vi, _ := sets[i].Value("value")
		vj, _ := sets[j].Value("value")
		return vi < vj
	})

	h := sha1.New() //nolint:gosec
	for _, a := range sets {
		fmt.Fprintf(h, "%s\n", action.Serialize(action.Manifest{Actions: []action.Action{a}}))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// AddPackage derives the base/dependency/summary subsets of m and appends
// them under stem/version, updating attrs and the update log.
func (c *Catalog) AddPackage(stem, version string, m action.Manifest) error {
	var baseActions, depActions []action.Action
	var summary SummaryEntry
	summary.Version = version

	for _, a := range m.Actions {
		switch a.Kind {
		case action.KindSet:
			baseActions = append(baseActions, a)
			if name, _ := a.Value("name"); name != "" {
				v, _ := a.Value("value")
				switch name {
				case "pkg.summary":
					summary.Summary = v
				case "pkg.description":
					summary.Description = v
				case "info.classification":
					summary.Classification = v
				}
			}
		case action.KindDepend:
			depActions = append(depActions, a)
		}
	}

	sig := Signature(m)

	c.base[stem] = append(c.base[stem], BaseEntry{Version: version, Signature: sig, Actions: baseActions})
	c.dependency[stem] = append(c.dependency[stem], DependencyEntry{Version: version, Actions: depActions})
	c.summary[stem] = append(c.summary[stem], summary)

	fullFmri, _ := m.Fmri()
	c.updateLog = append(c.updateLog, LogEntry{Op: LogOpAdd, Fmri: fullFmri, Timestamp: nowStamp()})

	c.attrs.PackageVersionCount++
	if len(c.base[stem]) == 1 {
		c.attrs.PackageCount++
	}
	c.attrs.LastModified = nowStamp()

	if err := c.flush(); err != nil {
		log.WithError(err).Errorf("catalog flush failed adding %s@%s", stem, version)
		return err
	}
	return nil
}

// RemovePackage removes the version's entries from all four documents.
func (c *Catalog) RemovePackage(stem, version, fullFmri string) error {
	removed := false

	c.base[stem], removed = removeBaseEntry(c.base[stem], version)
	c.dependency[stem] = removeDependencyEntry(c.dependency[stem], version)
	c.summary[stem] = removeSummaryEntry(c.summary[stem], version)

	if len(c.base[stem]) == 0 {
		delete(c.base, stem)
		delete(c.dependency, stem)
		delete(c.summary, stem)
		if removed {
			c.attrs.PackageCount--
		}
	}
	if removed {
		c.attrs.PackageVersionCount--
	}

	c.updateLog = append(c.updateLog, LogEntry{Op: LogOpRemove, Fmri: fullFmri, Timestamp: nowStamp()})
	c.attrs.LastModified = nowStamp()

	return c.flush()
}

func removeBaseEntry(entries []BaseEntry, version string) ([]BaseEntry, bool) {
	out := entries[:0]
	removed := false
	for _, e := range entries {
		if e.Version == version {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

func removeDependencyEntry(entries []DependencyEntry, version string) []DependencyEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Version != version {
			out = append(out, e)
		}
	}
	return out
}

func removeSummaryEntry(entries []SummaryEntry, version string) []SummaryEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Version != version {
			out = append(out, e)
		}
	}
	return out
}

// Stems returns every package stem with at least one catalogued version.
func (c *Catalog) Stems() []string {
	stems := make([]string, 0, len(c.base))
	for stem := range c.base {
		stems = append(stems, stem)
	}
	sort.Strings(stems)
	return stems
}

// Versions returns the catalogued versions of stem.
func (c *Catalog) Versions(stem string) []string {
	entries := c.base[stem]
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		versions = append(versions, e.Version)
	}
	sort.Strings(versions)
	return versions
}

// Summary returns the summary entry for stem@version, if catalogued.
func (c *Catalog) Summary(stem, version string) (SummaryEntry, bool) {
	for _, e := range c.summary[stem] {
		if e.Version == version {
			return e, true
		}
	}
	return SummaryEntry{}, false
}

// Reconstruct rebuilds the portion of a manifest recoverable from the
// catalog alone (its Set and Depend actions). File/Dir/Link/Hardlink
// actions are not present in the catalog and must be read from the
// manifest file on disk by the caller.
func (c *Catalog) Reconstruct(stem, version string) (action.Manifest, bool) {
	var m action.Manifest
	found := false
	for _, e := range c.base[stem] {
		if e.Version == version {
			m.Actions = append(m.Actions, e.Actions...)
			found = true
		}
	}
	for _, e := range c.dependency[stem] {
		if e.Version == version {
			m.Actions = append(m.Actions, e.Actions...)
		}
	}
	return m, found
}

func (c *Catalog) flush() error {
	if err := writeJSONAtomic(filepath.Join(c.dir, attrsFile), c.attrs); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(c.dir, baseFile), c.base); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(c.dir, dependencyFile), c.dependency); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(c.dir, summaryFile), c.summary); err != nil {
		return err
	}
	return c.flushUpdateLog()
}

// flushUpdateLog rewrites the append-only update log in full; callers
// append in memory and this is called after every mutation, same as the
// other catalog documents.
func (c *Catalog) flushUpdateLog() error {
	var data []byte
	for _, e := range c.updateLog {
		line, err := json.Marshal(e)
		if err != nil {
			return errcode.ErrorCodeCatalogWriteFailed.WithArgs(err.Error())
		}
		data = append(data, line...)
		data = append(data, '\n')
	}
	return writeFileAtomic(filepath.Join(c.dir, updateLogFile), data)
}

func nowStamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errcode.ErrorCodeCatalogWriteFailed.WithArgs(err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errcode.ErrorCodeCatalogSignatureMismatch.WithArgs(err.Error())
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errcode.ErrorCodeCatalogWriteFailed.WithArgs(err.Error())
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errcode.ErrorCodeCatalogWriteFailed.WithArgs(err.Error())
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errcode.ErrorCodeCatalogWriteFailed.WithArgs(err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errcode.ErrorCodeCatalogWriteFailed.WithArgs(err.Error())
	}
	return nil
}
