package konkord

import (
	"errors"

	"github.com/beritholmen/konkord/annotate"
	"github.com/beritholmen/konkord/backup"
	"github.com/beritholmen/konkord/concordance"
	"github.com/beritholmen/konkord/segment"
)

var (
	// ErrBuildInProgress is returned when a concordance rebuild is
	// requested while another rebuild is still running.
	ErrBuildInProgress = errors.New("concordance rebuild already in progress")

	// ErrNoAnnotator is returned by Ingest when the project was opened
	// without an annotator.
	ErrNoAnnotator = errors.New("no annotator configured")

	// ErrClosed is returned by operations on a closed project.
	ErrClosed = errors.New("project is closed")

	// ErrSegmentNotFound indicates an unknown segment id.
	ErrSegmentNotFound = segment.ErrSegmentNotFound

	// ErrNoSnapshots indicates the backup directory holds no snapshots.
	ErrNoSnapshots = backup.ErrNoSnapshots
)

// CorruptStoreError indicates the persisted translation memory could not
// be decoded. It carries the file path; the underlying cause is
// available via errors.Unwrap. RestoreLatestBackup (or OpenWithRecovery)
// is the way out.
type CorruptStoreError = segment.CorruptStoreError

// AnnotationUnavailableError indicates the language annotator could not
// produce a result. Nothing was committed to the store.
type AnnotationUnavailableError = annotate.UnavailableError

// NotIndexedError indicates a lemma no concordance build has ever seen.
// Distinct from a lemma whose every occurrence is suppressed, which
// yields an empty entry.
type NotIndexedError = concordance.NotIndexedError
