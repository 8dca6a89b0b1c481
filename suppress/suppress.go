// Package suppress implements the user-controlled exclusion set of POS
// tags and lemmas that should not surface in the concordance view.
//
// Suppression is a view filter: it never touches the segment store. The
// concordance builder consults it at build time, and the deterministic
// fingerprint recorded in the index header detects when an index predates
// the current suppression state.
package suppress

import (
	"hash/fnv"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/beritholmen/konkord/codec"
	"github.com/beritholmen/konkord/internal/fs"
	"github.com/beritholmen/konkord/segment"
)

// Set is a mutable suppression set. Safe for concurrent use.
type Set struct {
	mu     sync.RWMutex
	pos    map[string]struct{}
	lemmas map[string]struct{}
}

// NewSet returns an empty suppression set.
func NewSet() *Set {
	return &Set{
		pos:    make(map[string]struct{}),
		lemmas: make(map[string]struct{}),
	}
}

// SuppressPOS excludes a POS tag. Reports whether the set changed.
func (s *Set) SuppressPOS(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pos[tag]; ok {
		return false
	}
	s.pos[tag] = struct{}{}
	return true
}

// UnsuppressPOS re-includes a POS tag. Reports whether the set changed.
func (s *Set) UnsuppressPOS(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pos[tag]; !ok {
		return false
	}
	delete(s.pos, tag)
	return true
}

// SuppressLemma excludes a specific lemma. Reports whether the set changed.
func (s *Set) SuppressLemma(lemma string) bool {
	lemma = strings.ToLower(lemma)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lemmas[lemma]; ok {
		return false
	}
	s.lemmas[lemma] = struct{}{}
	return true
}

// UnsuppressLemma re-includes a lemma. Reports whether the set changed.
func (s *Set) UnsuppressLemma(lemma string) bool {
	lemma = strings.ToLower(lemma)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lemmas[lemma]; !ok {
		return false
	}
	delete(s.lemmas, lemma)
	return true
}

// IsSuppressed reports whether tok is excluded by POS tag or lemma.
func (s *Set) IsSuppressed(tok segment.Token) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.pos[tok.POS]; ok {
		return true
	}
	_, ok := s.lemmas[tok.Lemma]
	return ok
}

// POS returns the suppressed POS tags, sorted.
func (s *Set) POS() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.pos)
}

// Lemmas returns the suppressed lemmas, sorted.
func (s *Set) Lemmas() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.lemmas)
}

// Fingerprint returns a deterministic hash of the set contents. Two sets
// with the same members always produce the same fingerprint, regardless
// of insertion order.
func (s *Set) Fingerprint() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := fnv.New64a()
	for _, tag := range sortedKeys(s.pos) {
		h.Write([]byte("pos:"))
		h.Write([]byte(tag))
		h.Write([]byte{0})
	}
	for _, lemma := range sortedKeys(s.lemmas) {
		h.Write([]byte("lemma:"))
		h.Write([]byte(lemma))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

type persisted struct {
	POS    []string `json:"pos"`
	Lemmas []string `json:"lemmas"`
}

// Save persists the set to path.
func (s *Set) Save(fsys fs.FileSystem, path string, c codec.Codec) error {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	data, err := c.Marshal(persisted{POS: s.POS(), Lemmas: s.Lemmas()})
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(fsys, path, data, 0o644)
}

// Load reads a set from path. A missing file yields an empty set.
func Load(fsys fs.FileSystem, path string, c codec.Codec) (*Set, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	s := NewSet()

	data, err := fs.ReadFile(fsys, path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var p persisted
	if err := c.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	for _, tag := range p.POS {
		s.pos[tag] = struct{}{}
	}
	for _, lemma := range p.Lemmas {
		s.lemmas[strings.ToLower(lemma)] = struct{}{}
	}
	return s, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
