package concordance

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/beritholmen/konkord/annotate"
	"github.com/beritholmen/konkord/codec"
	"github.com/beritholmen/konkord/compress"
	"github.com/beritholmen/konkord/internal/fs"
	"github.com/beritholmen/konkord/segment"
	"github.com/beritholmen/konkord/suppress"
)

// BuildOptions configures an index build.
type BuildOptions struct {
	// Codec encodes TOC and payload blocks. Defaults to codec.Default.
	Codec codec.Codec
	// Compressor compresses payload blocks. Defaults to compress.Default.
	Compressor compress.Compressor
}

func (o *BuildOptions) setDefaults() {
	if o.Codec == nil {
		o.Codec = codec.Default
	}
	if o.Compressor == nil {
		o.Compressor = compress.Default
	}
}

// Write builds the index from segments under the given suppression
// filter and writes it to w.
//
// Every lemma observed in the corpus gets an entry, even when all of its
// occurrences are suppressed (the entry is then empty but present).
// Tokens whose lemma contains no letters stay out of the index entirely.
// Output is byte-identical across builds with unchanged input.
func Write(w io.Writer, segments []segment.Segment, filter *suppress.Set, opts BuildOptions) error {
	opts.setDefaults()

	type accum struct {
		occurrences []Occurrence
		wordforms   map[string]struct{}
		segments    *roaring.Bitmap
	}

	byLemma := make(map[string]*accum)
	for _, seg := range segments {
		for _, tok := range seg.Tokens {
			if tok.Lemma == "" || !annotate.HasLetter(tok.Lemma) {
				continue
			}
			a, ok := byLemma[tok.Lemma]
			if !ok {
				a = &accum{wordforms: make(map[string]struct{}), segments: roaring.New()}
				byLemma[tok.Lemma] = a
			}
			a.wordforms[strings.ToLower(tok.Surface)] = struct{}{}
			if filter != nil && filter.IsSuppressed(tok) {
				continue
			}
			a.occurrences = append(a.occurrences, Occurrence{Segment: seg.ID, Position: tok.Position})
			a.segments.Add(uint32(seg.ID))
		}
	}

	lemmas := make([]string, 0, len(byLemma))
	for lemma := range byLemma {
		lemmas = append(lemmas, lemma)
	}
	sort.Strings(lemmas)

	var fingerprint uint64
	if filter != nil {
		fingerprint = filter.Fingerprint()
	}

	h := &header{
		version:     indexVersion,
		fingerprint: fingerprint,
		codecName:   opts.Codec.Name(),
		compName:    opts.Compressor.Name(),
		entryCount:  uint32(len(lemmas)),
	}
	headerSize := uint64(h.size())

	var blocks bytes.Buffer
	t := toc{Entries: make([]tocEntry, 0, len(lemmas))}

	for _, lemma := range lemmas {
		a := byLemma[lemma]

		// Occurrences accumulate in segment order already; positions are
		// ascending within a segment by construction. Sort anyway so the
		// format never depends on caller ordering.
		sort.Slice(a.occurrences, func(i, j int) bool {
			if a.occurrences[i].Segment != a.occurrences[j].Segment {
				return a.occurrences[i].Segment < a.occurrences[j].Segment
			}
			return a.occurrences[i].Position < a.occurrences[j].Position
		})

		payload := entryPayload{
			Occurrences: a.occurrences,
			Wordforms:   sortedSet(a.wordforms),
		}
		if !a.segments.IsEmpty() {
			bm, err := a.segments.ToBytes()
			if err != nil {
				return err
			}
			payload.Segments = bm
		}

		raw, err := opts.Codec.Marshal(payload)
		if err != nil {
			return err
		}
		compressed, err := opts.Compressor.Compress(raw)
		if err != nil {
			return err
		}

		t.Entries = append(t.Entries, tocEntry{
			Lemma:  lemma,
			Offset: headerSize + uint64(blocks.Len()),
			CLen:   uint64(len(compressed)),
			ULen:   uint64(len(raw)),
			Count:  uint32(len(a.occurrences)),
		})
		blocks.Write(compressed)
	}

	// Invert lemma->wordforms into the sorted wordform->lemmas table used
	// by Search.
	byForm := make(map[string][]string)
	for _, lemma := range lemmas {
		for form := range byLemma[lemma].wordforms {
			byForm[form] = append(byForm[form], lemma)
		}
	}
	forms := make([]string, 0, len(byForm))
	for form := range byForm {
		forms = append(forms, form)
	}
	sort.Strings(forms)
	for _, form := range forms {
		lemmasOf := byForm[form]
		sort.Strings(lemmasOf)
		t.Wordforms = append(t.Wordforms, wordformEntry{Form: form, Lemmas: lemmasOf})
	}

	tocBytes, err := opts.Codec.Marshal(t)
	if err != nil {
		return err
	}

	h.tocOffset = headerSize + uint64(blocks.Len())
	h.tocLen = uint64(len(tocBytes))
	h.tocCRC = checksum(tocBytes)

	if err := h.encode(w); err != nil {
		return err
	}
	if _, err := w.Write(blocks.Bytes()); err != nil {
		return err
	}
	_, err = w.Write(tocBytes)
	return err
}

// BuildFile builds the index and writes it durably to path.
func BuildFile(fsys fs.FileSystem, path string, segments []segment.Segment, filter *suppress.Set, opts BuildOptions) error {
	var buf bytes.Buffer
	if err := Write(&buf, segments, filter, opts); err != nil {
		return err
	}
	if fsys == nil {
		fsys = fs.Default
	}
	return fs.WriteFileAtomic(fsys, path, buf.Bytes(), 0o644)
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
