// Package freq computes lemma frequency statistics over the full corpus.
//
// Frequencies are deliberately suppression-independent: the table shows a
// translator which function words dominate, which is exactly what drives
// suppression decisions in the first place. The table is derived state,
// rebuilt wholesale from the segment store, never patched incrementally.
package freq

import (
	"os"
	"sort"

	"github.com/beritholmen/konkord/codec"
	"github.com/beritholmen/konkord/internal/fs"
	"github.com/beritholmen/konkord/segment"
)

// Table maps lemma to its occurrence count across the whole corpus.
type Table map[string]int

// Compute builds the frequency table from all segments. Pure and
// deterministic; an empty corpus yields an empty table.
func Compute(segments []segment.Segment) Table {
	t := make(Table)
	for _, seg := range segments {
		for _, tok := range seg.Tokens {
			if tok.Lemma == "" {
				continue
			}
			t[tok.Lemma]++
		}
	}
	return t
}

// Entry is one lemma/count pair in a sorted view.
type Entry struct {
	Lemma string `json:"lemma"`
	Count int    `json:"count"`
}

// Top returns the n most frequent lemmas, ties broken alphabetically.
// n <= 0 returns all entries.
func (t Table) Top(n int) []Entry {
	entries := make([]Entry, 0, len(t))
	for lemma, count := range t {
		entries = append(entries, Entry{Lemma: lemma, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Lemma < entries[j].Lemma
	})
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

// Save persists the table to path.
func (t Table) Save(fsys fs.FileSystem, path string, c codec.Codec) error {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	data, err := c.Marshal(t)
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(fsys, path, data, 0o644)
}

// Load reads a table from path. A missing file yields an empty table.
func Load(fsys fs.FileSystem, path string, c codec.Codec) (Table, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	data, err := fs.ReadFile(fsys, path)
	if os.IsNotExist(err) {
		return make(Table), nil
	}
	if err != nil {
		return nil, err
	}

	t := make(Table)
	if err := c.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}
