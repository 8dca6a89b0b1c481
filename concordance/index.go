package concordance

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/beritholmen/konkord/codec"
	"github.com/beritholmen/konkord/compress"
	"github.com/beritholmen/konkord/internal/mmap"
)

// Index is a read handle over a built index file.
//
// The file is memory-mapped; only the header, TOC and wordform table are
// decoded on open. Lookup materializes one lemma's entry at a time and
// caches it for the lifetime of the process — the distinct-lemma
// footprint is small next to the full token corpus, so there is no
// eviction. All methods are safe for concurrent use.
type Index struct {
	m    *mmap.File
	c    codec.Codec
	comp compress.Compressor

	fingerprint uint64
	entries     map[string]tocEntry
	wordforms   map[string][]string
	lemmas      []string

	mu    sync.RWMutex
	cache map[string]*Entry
	group singleflight.Group
}

// Open opens the index file at path.
func Open(path string) (*Index, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	ix, err := newIndex(m)
	if err != nil {
		m.Close()
		return nil, err
	}
	return ix, nil
}

func newIndex(m *mmap.File) (*Index, error) {
	data := m.Bytes()

	h, err := decodeHeader(data)
	if err != nil {
		return nil, fmt.Errorf("concordance: %w", err)
	}

	c, ok := codec.ByName(h.codecName)
	if !ok {
		return nil, fmt.Errorf("concordance: unknown codec %q", h.codecName)
	}
	comp, ok := compress.ByName(h.compName)
	if !ok {
		return nil, fmt.Errorf("concordance: unknown compressor %q", h.compName)
	}

	if h.tocOffset+h.tocLen > uint64(len(data)) {
		return nil, fmt.Errorf("concordance: truncated index: TOC extends beyond file")
	}
	tocBytes := data[h.tocOffset : h.tocOffset+h.tocLen]
	if got := checksum(tocBytes); got != h.tocCRC {
		return nil, fmt.Errorf("concordance: TOC checksum mismatch: expected 0x%08x, got 0x%08x", h.tocCRC, got)
	}

	var t toc
	if err := c.Unmarshal(tocBytes, &t); err != nil {
		return nil, fmt.Errorf("concordance: decoding TOC: %w", err)
	}
	if uint32(len(t.Entries)) != h.entryCount {
		return nil, fmt.Errorf("concordance: entry count mismatch: header %d, TOC %d", h.entryCount, len(t.Entries))
	}

	ix := &Index{
		m:           m,
		c:           c,
		comp:        comp,
		fingerprint: h.fingerprint,
		entries:     make(map[string]tocEntry, len(t.Entries)),
		wordforms:   make(map[string][]string, len(t.Wordforms)),
		lemmas:      make([]string, 0, len(t.Entries)),
		cache:       make(map[string]*Entry),
	}
	for _, e := range t.Entries {
		ix.entries[e.Lemma] = e
		ix.lemmas = append(ix.lemmas, e.Lemma)
	}
	for _, wf := range t.Wordforms {
		ix.wordforms[wf.Form] = wf.Lemmas
	}
	sort.Strings(ix.lemmas)
	return ix, nil
}

// SuppressionFingerprint returns the fingerprint of the suppression set
// the index was built against.
func (ix *Index) SuppressionFingerprint() uint64 { return ix.fingerprint }

// Stale reports whether the index predates the given suppression state.
// A stale index keeps answering lookups; the caller surfaces the warning.
func (ix *Index) Stale(current uint64) bool { return ix.fingerprint != current }

// Len returns the number of indexed lemmas.
func (ix *Index) Len() int { return len(ix.entries) }

// Lemmas returns all indexed lemmas, sorted.
func (ix *Index) Lemmas() []string {
	out := make([]string, len(ix.lemmas))
	copy(out, ix.lemmas)
	return out
}

// Count returns a lemma's non-suppressed occurrence count straight from
// the TOC, without materializing the entry.
func (ix *Index) Count(lemma string) (int, error) {
	e, ok := ix.entries[lemma]
	if !ok {
		return 0, &NotIndexedError{Lemma: lemma}
	}
	return int(e.Count), nil
}

// Lookup returns the concordance entry for lemma, materializing it on
// first request. Concurrent lookups of the same lemma decode it once.
func (ix *Index) Lookup(ctx context.Context, lemma string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	if e, ok := ix.cache[lemma]; ok {
		ix.mu.RUnlock()
		return e, nil
	}
	ix.mu.RUnlock()

	te, ok := ix.entries[lemma]
	if !ok {
		return nil, &NotIndexedError{Lemma: lemma}
	}

	v, err, _ := ix.group.Do(lemma, func() (any, error) {
		e, err := ix.materialize(lemma, te)
		if err != nil {
			return nil, err
		}
		ix.mu.Lock()
		ix.cache[lemma] = e
		ix.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (ix *Index) materialize(lemma string, te tocEntry) (*Entry, error) {
	data := ix.m.Bytes()
	if te.Offset+te.CLen > uint64(len(data)) {
		return nil, fmt.Errorf("concordance: entry %q extends beyond file", lemma)
	}

	raw, err := ix.comp.Decompress(data[te.Offset:te.Offset+te.CLen], int(te.ULen))
	if err != nil {
		return nil, fmt.Errorf("concordance: decompressing entry %q: %w", lemma, err)
	}

	var p entryPayload
	if err := ix.c.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("concordance: decoding entry %q: %w", lemma, err)
	}

	e := &Entry{
		Lemma:       lemma,
		Occurrences: p.Occurrences,
		Wordforms:   p.Wordforms,
		segments:    roaring.New(),
	}
	if len(p.Segments) > 0 {
		if _, err := e.segments.ReadFrom(bytes.NewReader(p.Segments)); err != nil {
			return nil, fmt.Errorf("concordance: decoding segment set of %q: %w", lemma, err)
		}
	}
	return e, nil
}

// Search returns the lemmas sharing the given surface form, or nil when
// the wordform does not occur in the corpus. The query is lowercased and
// NFC-normalized to match the stored wordform table, so surface forms as
// they appear in the text ("Huset") resolve too.
func (ix *Index) Search(wordform string) []string {
	lemmas, ok := ix.wordforms[norm.NFC.String(strings.ToLower(wordform))]
	if !ok {
		return nil
	}
	out := make([]string, len(lemmas))
	copy(out, lemmas)
	return out
}

// Close unmaps the index file. Entries already materialized stay valid;
// further lookups of uncached lemmas will fail.
func (ix *Index) Close() error {
	return ix.m.Close()
}
