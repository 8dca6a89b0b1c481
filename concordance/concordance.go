// Package concordance implements the inverted lemma index: for every
// lemma in the corpus, the ordered list of (segment, token position)
// occurrences, plus a reverse wordform lookup.
//
// The index is derived state, rebuilt from the segment store and the
// suppression filter. Building is deterministic: identical input yields a
// byte-identical file. Reading is lazy: opening a project maps the file
// and loads only the table of contents; a lemma's occurrence payload is
// decoded on first lookup and memoized for the life of the process.
package concordance

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Occurrence is one position of a lemma in the corpus.
type Occurrence struct {
	// Segment is the sequence id of the containing segment.
	Segment int `json:"segment"`
	// Position is the token position within the segment.
	Position int `json:"position"`
}

// Entry is the materialized concordance of one lemma.
//
// An entry with zero occurrences is meaningful: the lemma exists in the
// corpus but every occurrence was suppressed at build time. That is
// distinct from a lemma the index has never seen, which yields a
// *NotIndexedError on lookup.
type Entry struct {
	Lemma       string       `json:"lemma"`
	Occurrences []Occurrence `json:"occurrences"`
	// Wordforms are the distinct lowercased surface forms of the lemma.
	Wordforms []string `json:"wordforms"`

	segments *roaring.Bitmap
}

// Count returns the number of non-suppressed occurrences.
func (e *Entry) Count() int { return len(e.Occurrences) }

// SegmentSet returns the set of segment ids containing the lemma as a
// bitmap, without walking the occurrence list.
func (e *Entry) SegmentSet() *roaring.Bitmap { return e.segments }

// NotIndexedError is returned when a lemma is queried that no build has
// ever seen.
type NotIndexedError struct {
	Lemma string
}

func (e *NotIndexedError) Error() string {
	return fmt.Sprintf("lemma %q not indexed", e.Lemma)
}
