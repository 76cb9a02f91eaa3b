package errcode

import (
	"fmt"
	"sort"
	"sync"
)

var (
	errorCodeToDescriptors = map[ErrorCode]ErrorDescriptor{}
	idToDescriptors        = map[string]ErrorDescriptor{}
	groupToDescriptors     = map[string][]ErrorDescriptor{}
)

// ErrorCodeUnknown is a generic error that can be used as a last resort
// if there is no situation-specific error available.
var ErrorCodeUnknown = register("errcode", ErrorDescriptor{
	Value:    "errcode::unknown_error",
	Message:  "unknown error",
	ExitCode: 1,
	Description: `Generic error returned when the error does not have a
	more specific classification.`,
})

const (
	groupFmri    = "fmri"
	groupAction  = "action"
	groupBlob    = "blob"
	groupRepo    = "repo"
	groupCatalog = "catalog"
	groupSearch  = "search"
)

// fmri errors.
var (
	// ErrorCodeFmriInvalidFormat is returned when an FMRI string does not
	// match the pkg://publisher/stem@release,build-branch:timestamp grammar.
	ErrorCodeFmriInvalidFormat = register(groupFmri, ErrorDescriptor{
		Value:    "fmri::validation_error::invalid_format",
		Message:  "invalid FMRI: %s",
		ExitCode: 1,
		Description: `The provided package FMRI could not be parsed. It must
		match pkg://publisher/stem@release,build-branch:timestamp, with the
		version and its sub-components optional.`,
	})

	// ErrorCodeFmriInvalidVersionFormat is returned when the version part of
	// an FMRI fails the release,build-branch:timestamp grammar.
	ErrorCodeFmriInvalidVersionFormat = register(groupFmri, ErrorDescriptor{
		Value:    "fmri::validation_error::invalid_version_format",
		Message:  "invalid FMRI version: %s",
		ExitCode: 1,
		Description: `The version component of an FMRI must be a dotted
		sequence of non-negative integers, optionally followed by a
		",build-branch" and/or ":timestamp".`,
	})
)

// action/manifest parser errors.
var (
	// ErrorCodeActionUnknown is returned for an action name not in the
	// recognized action vocabulary (set, file, dir, link, hardlink,
	// license, depend, user, group, driver, legacy).
	ErrorCodeActionUnknown = register(groupAction, ErrorDescriptor{
		Value:    "action::validation_error::unknown_action",
		Message:  "unknown action %q",
		ExitCode: 1,
		Description: `The manifest contained a line whose action name is not
		one of the actions this repository understands.`,
	})

	// ErrorCodeActionMissingProperty is returned when a required attribute
	// is absent from an action (e.g. a file action with no path).
	ErrorCodeActionMissingProperty = register(groupAction, ErrorDescriptor{
		Value:    "action::validation_error::missing_property",
		Message:  "action missing required property %q",
		ExitCode: 1,
		Description: `An action is missing one of the properties required
		for its kind.`,
	})

	// ErrorCodeActionMalformedProperty is returned for a property that is
	// present but cannot be parsed (bad quoting, unterminated value, bad
	// continuation).
	ErrorCodeActionMalformedProperty = register(groupAction, ErrorDescriptor{
		Value:    "action::validation_error::malformed_property",
		Message:  "malformed property: %s",
		ExitCode: 1,
		Description: `A property token could not be parsed: an unterminated
		quoted string, a dangling line continuation, or a key without a
		value.`,
	})
)

// blob store errors.
var (
	// ErrorCodeBlobMissing is returned when a referenced digest has no
	// corresponding entry in the blob store.
	ErrorCodeBlobMissing = register(groupBlob, ErrorDescriptor{
		Value:    "blob::not_found_error::missing",
		Message:  "blob %s not found",
		ExitCode: 5,
		Description: `The requested content digest is not present in the
		repository's blob store.`,
	})

	// ErrorCodeBlobDigestMismatch is returned when the bytes written to the
	// blob store do not hash to the digest under which they were staged.
	ErrorCodeBlobDigestMismatch = register(groupBlob, ErrorDescriptor{
		Value:    "blob::integrity_error::digest_mismatch",
		Message:  "content does not match digest %s",
		ExitCode: 3,
		Description: `The computed digest of the staged payload did not
		match the digest recorded by the manifest's file action.`,
	})

	// ErrorCodeBlobWriteFailed wraps an I/O failure while staging or
	// committing a blob.
	ErrorCodeBlobWriteFailed = register(groupBlob, ErrorDescriptor{
		Value:    "blob::io_error::write_failed",
		Message:  "writing blob failed: %s",
		ExitCode: 2,
		Description: `A filesystem operation (create, write, fsync, or
		rename) failed while staging a blob into the content-addressed
		store.`,
	})
)

// repository backend errors.
var (
	// ErrorCodeRepoDuplicateFmri is returned when a publish transaction
	// tries to add a manifest whose exact FMRI is already catalogued.
	ErrorCodeRepoDuplicateFmri = register(groupRepo, ErrorDescriptor{
		Value:    "repo::conflict_error::duplicate_fmri",
		Message:  "package %s is already present in the repository",
		ExitCode: 4,
		Description: `The repository already contains a package version with
		this exact FMRI; publish transactions may not overwrite an existing
		version.`,
	})

	// ErrorCodeRepoPublisherUnknown is returned when an operation names a
	// publisher the repository has not registered.
	ErrorCodeRepoPublisherUnknown = register(groupRepo, ErrorDescriptor{
		Value:    "repo::not_found_error::publisher_unknown",
		Message:  "publisher %q is not known to this repository",
		ExitCode: 5,
		Description: `The named publisher has not been added to the
		repository with add-publisher.`,
	})

	// ErrorCodeRepoPayloadMissing is returned when a transaction's
	// AddManifest is given a file action whose payload is neither resolved
	// from the transaction's payload directories nor present in the blob
	// store.
	ErrorCodeRepoPayloadMissing = register(groupRepo, ErrorDescriptor{
		Value:    "repo::validation_error::payload_missing",
		Message:  "no payload staged for action %s",
		ExitCode: 1,
		Description: `A file action in the added manifest has no payload
		found via add-payload-dir and no matching blob in the repository's
		blob store.`,
	})

	// ErrorCodeRepoTransactionBusy is returned when the repository's
	// advisory lock cannot be taken (Commit otherwise waits for another
	// writer to release it), and when a search index fast update finds
	// another index writer active.
	ErrorCodeRepoTransactionBusy = register(groupRepo, ErrorDescriptor{
		Value:    "repo::conflict_error::transaction_busy",
		Message:  "repository is locked by another writer",
		ExitCode: 4,
		Description: `The repository's writer lock could not be taken, or
		another writer was updating the search index at the same time.`,
	})

	// ErrorCodeRepoCorruptLayout is returned when the on-disk repository
	// does not match the expected pkg6.image.json/VERSION layout.
	ErrorCodeRepoCorruptLayout = register(groupRepo, ErrorDescriptor{
		Value:    "repo::integrity_error::corrupt_layout",
		Message:  "repository layout is inconsistent: %s",
		ExitCode: 3,
		Description: `A structural check of the repository root (version
		marker, publisher directories, staging area) failed.`,
	})
)

// catalog manager errors.
var (
	// ErrorCodeCatalogPackageUnknown is returned when a catalog lookup
	// cannot find the requested stem or version.
	ErrorCodeCatalogPackageUnknown = register(groupCatalog, ErrorDescriptor{
		Value:    "catalog::not_found_error::package_unknown",
		Message:  "package %s not found in catalog",
		ExitCode: 5,
		Description: `The catalog has no entry for the requested package
		stem, or no entry matching the requested version.`,
	})

	// ErrorCodeCatalogSignatureMismatch is returned when a manifest's
	// recomputed signature does not match the one recorded in the catalog.
	ErrorCodeCatalogSignatureMismatch = register(groupCatalog, ErrorDescriptor{
		Value:    "catalog::integrity_error::signature_mismatch",
		Message:  "manifest signature mismatch for %s",
		ExitCode: 3,
		Description: `The SHA-1 signature recomputed from the manifest on
		disk does not match the signature recorded for it in
		catalog.attrs.`,
	})

	// ErrorCodeCatalogWriteFailed wraps an I/O failure while writing one of
	// the catalog.* documents.
	ErrorCodeCatalogWriteFailed = register(groupCatalog, ErrorDescriptor{
		Value:    "catalog::io_error::write_failed",
		Message:  "writing catalog failed: %s",
		ExitCode: 2,
		Description: `A filesystem operation failed while rewriting one of
		the catalog part files or the update log.`,
	})
)

// search index errors.
var (
	// ErrorCodeSearchNoMatch is returned when a query matches no postings.
	ErrorCodeSearchNoMatch = register(groupSearch, ErrorDescriptor{
		Value:    "search::not_found_error::no_match",
		Message:  "no packages matched query %q",
		ExitCode: 5,
		Description: `The search index has no postings for the given
		token.`,
	})

	// ErrorCodeSearchFastTablesOverlap describes the fast_add and
	// fast_remove delta tables sharing a key, violating the index's
	// disjointness invariant. No function in this module checks for that
	// overlap or returns this code.
	ErrorCodeSearchFastTablesOverlap = register(groupSearch, ErrorDescriptor{
		Value:    "search::integrity_error::fast_tables_overlap",
		Message:  "fast_add and fast_remove overlap on key %s",
		ExitCode: 3,
		Description: `A key was present in both the fast_add and
		fast_remove delta tables at once; this should never happen and
		indicates the index needs a full rebuild.`,
	})

	// ErrorCodeSearchIndexOpenFailed wraps a failure opening the embedded
	// key-value store backing the search index.
	ErrorCodeSearchIndexOpenFailed = register(groupSearch, ErrorDescriptor{
		Value:    "search::io_error::index_open_failed",
		Message:  "opening search index failed: %s",
		ExitCode: 2,
		Description: `The embedded key-value database backing the search
		index could not be opened, likely due to a lock held by another
		process or on-disk corruption.`,
	})
)

var (
	nextCode     = 1000
	registerLock sync.Mutex
)

// Register will make the passed-in error known to the environment and
// return a new ErrorCode. Panics if the descriptor's Value has already
// been registered, since that indicates a programming error.
func Register(group string, descriptor ErrorDescriptor) ErrorCode {
	return register(group, descriptor)
}

func register(group string, descriptor ErrorDescriptor) ErrorCode {
	registerLock.Lock()
	defer registerLock.Unlock()

	descriptor.Code = ErrorCode(nextCode)

	if _, ok := idToDescriptors[descriptor.Value]; ok {
		panic(fmt.Sprintf("error value %q is already registered", descriptor.Value))
	}
	if _, ok := errorCodeToDescriptors[descriptor.Code]; ok {
		panic(fmt.Sprintf("error code %v is already registered", descriptor.Code))
	}

	groupToDescriptors[group] = append(groupToDescriptors[group], descriptor)
	errorCodeToDescriptors[descriptor.Code] = descriptor
	idToDescriptors[descriptor.Value] = descriptor

	nextCode++
	return descriptor.Code
}

type byValue []ErrorDescriptor

func (a byValue) Len() int           { return len(a) }
func (a byValue) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byValue) Less(i, j int) bool { return a[i].Value < a[j].Value }

// GetGroupNames returns the list of error group names that are registered.
func GetGroupNames() []string {
	keys := []string{}

	for k := range groupToDescriptors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetErrorCodeGroup returns the named group of error descriptors.
func GetErrorCodeGroup(name string) []ErrorDescriptor {
	desc := groupToDescriptors[name]
	sort.Sort(byValue(desc))
	return desc
}

// GetErrorAllDescriptors returns a slice of all ErrorDescriptors that are
// registered, irrespective of what group they're in.
func GetErrorAllDescriptors() []ErrorDescriptor {
	result := []ErrorDescriptor{}

	for _, group := range GetGroupNames() {
		result = append(result, GetErrorCodeGroup(group)...)
	}
	sort.Sort(byValue(result))
	return result
}
