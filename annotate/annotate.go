// Package annotate defines the external annotator boundary and the
// ingestion pipeline that turns raw source text into stored, annotated
// segments.
//
// The annotator itself is a black box (an external NLP engine); adapters
// live in subpackages. Whatever shape the engine's native output has, it
// is normalized into the strict internal token schema here, at the
// boundary, so nothing downstream depends on the engine's representation.
package annotate

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/beritholmen/konkord/segment"
)

// Token is a raw annotator token before normalization.
type Token struct {
	Surface string
	Lemma   string
	POS     string
}

// Sentence is one annotated sentence as returned by an annotator.
type Sentence struct {
	Text   string
	Tokens []Token
}

// Annotator maps raw paragraph text to annotated sentences.
//
// Implementations are external engines; failures must surface as errors
// rather than partial output.
type Annotator interface {
	// Annotate splits text into sentences and annotates each token with
	// lemma and POS tag.
	Annotate(ctx context.Context, text string) ([]Sentence, error)
	// Language returns the identifier of the supported language (BCP 47).
	Language() string
}

// UnavailableError indicates the external annotator was unreachable or
// failed. Ingestion aborts without committing partial segments.
//
// The underlying cause can be accessed via errors.Unwrap.
type UnavailableError struct {
	Language string
	cause    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("annotator unavailable (lang %s): %v", e.Language, e.cause)
}

func (e *UnavailableError) Unwrap() error { return e.cause }

// NormalizeTokens converts raw annotator tokens into the internal schema:
// NFC-normalized surface, lowercase NFC lemma, sequential positions.
// Tokens with an empty surface form are dropped. A token without a lemma
// falls back to its lowercased surface so every stored token is indexable.
func NormalizeTokens(raw []Token) []segment.Token {
	out := make([]segment.Token, 0, len(raw))
	for _, t := range raw {
		surface := norm.NFC.String(strings.TrimSpace(t.Surface))
		if surface == "" {
			continue
		}
		lemma := norm.NFC.String(strings.ToLower(strings.TrimSpace(t.Lemma)))
		if lemma == "" {
			lemma = strings.ToLower(surface)
		}
		out = append(out, segment.Token{
			Surface:  surface,
			Lemma:    lemma,
			POS:      t.POS,
			Position: len(out),
		})
	}
	return out
}

// HasLetter reports whether s contains at least one letter. The
// concordance builder uses this to keep punctuation and numbers out of
// the lemma index while they remain stored on the segment.
func HasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// SplitParagraphs splits raw text into paragraphs on blank lines, the
// project's paragraph-boundary convention. Windows line endings are
// tolerated; empty paragraphs are dropped.
func SplitParagraphs(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(raw, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
