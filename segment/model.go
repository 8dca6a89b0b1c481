// Package segment implements the translation-memory store: the single
// authoritative record of ordered source/target segment pairs and their
// token annotations for one project.
package segment

import "time"

// Token is one annotated token inside a segment.
//
// Tokens are immutable once stored: re-ingestion of a file replaces the
// whole token set for that file's segments, never individual tokens.
type Token struct {
	// Surface is the wordform exactly as it appears in the source text.
	Surface string `json:"surface"`
	// Lemma is the normalized lowercase dictionary form.
	Lemma string `json:"lemma"`
	// POS is the part-of-speech tag assigned by the annotator.
	POS string `json:"pos"`
	// Position is the token's index within its segment, starting at 0.
	Position int `json:"position"`
}

// Segment is one sentence-level translation unit.
type Segment struct {
	// ID is the stable sequence index, unique and contiguous across the
	// project. Segments are never reordered after creation.
	ID int `json:"id"`
	// FileID names the source file this segment originated from.
	FileID string `json:"file_id"`

	Source string `json:"source"`
	Target string `json:"target"`

	// ParagraphEnd marks the last sentence of a source paragraph.
	ParagraphEnd bool `json:"paragraph_end,omitempty"`

	Tokens []Token `json:"tokens,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
