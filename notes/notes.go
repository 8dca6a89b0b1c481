// Package notes stores per-lemma translator annotations: a free-text
// meaning and an optional dictionary-link override. Entries are keyed by
// lemma and part-of-speech tag, so "hus" the noun and a homographic verb
// carry independent notes.
package notes

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/beritholmen/konkord/codec"
	"github.com/beritholmen/konkord/internal/fs"
)

// Note is one lemma's annotations.
type Note struct {
	Meaning string `json:"meaning,omitempty"`
	// DictLink overrides the default dictionary URL for the lemma.
	DictLink string `json:"dict_link,omitempty"`
}

// Book is the set of notes for one project.
type Book struct {
	mu      sync.RWMutex
	entries map[string]Note
}

// NewBook creates an empty note book.
func NewBook() *Book {
	return &Book{entries: make(map[string]Note)}
}

// Key builds the storage key for a lemma and POS tag.
func Key(lemma, pos string) string {
	return strings.ToLower(lemma) + "|" + pos
}

// SetMeaning records the meaning for a lemma. An empty meaning clears it.
func (b *Book) SetMeaning(lemma, pos, meaning string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(Key(lemma, pos), func(n *Note) { n.Meaning = meaning })
}

// Meaning returns the recorded meaning, or "" when none exists.
func (b *Book) Meaning(lemma, pos string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[Key(lemma, pos)].Meaning
}

// SetDictLink records a dictionary-link override. The URL is normalized
// to an absolute https form; a bare host or path gets the scheme
// prepended. An empty link clears the override.
func (b *Book) SetDictLink(lemma, pos, link string) error {
	normalized, err := NormalizeLink(link)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(Key(lemma, pos), func(n *Note) { n.DictLink = normalized })
	return nil
}

// DictLink returns the override, or "" when the default applies.
func (b *Book) DictLink(lemma, pos string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[Key(lemma, pos)].DictLink
}

// Note returns the full note for a lemma and whether one exists.
func (b *Book) Note(lemma, pos string) (Note, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.entries[Key(lemma, pos)]
	return n, ok
}

// Keys returns all keys with a non-empty note, sorted.
func (b *Book) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of notes.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// update applies fn to the note at key, dropping the entry when it ends
// up empty. Callers hold the write lock.
func (b *Book) update(key string, fn func(*Note)) {
	n := b.entries[key]
	fn(&n)
	if n == (Note{}) {
		delete(b.entries, key)
		return
	}
	b.entries[key] = n
}

// NormalizeLink validates a dictionary link and returns its absolute
// https form. "" is returned unchanged (it clears an override).
func NormalizeLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", nil
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("notes: invalid dictionary link: %w", err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("notes: unsupported dictionary link scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("notes: dictionary link %q has no host", link)
	}
	return u.String(), nil
}

// Save persists the book to path via the given codec.
func (b *Book) Save(fsys fs.FileSystem, path string, c codec.Codec) error {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	b.mu.RLock()
	data, err := c.Marshal(b.entries)
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("notes: encoding: %w", err)
	}
	return fs.WriteFileAtomic(fsys, path, data, 0o644)
}

// Load reads a book from path. A missing file yields an empty book.
func Load(fsys fs.FileSystem, path string, c codec.Codec) (*Book, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return NewBook(), nil
		}
		return nil, err
	}

	entries := make(map[string]Note)
	if err := c.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("notes: decoding %s: %w", path, err)
	}
	return &Book{entries: entries}, nil
}
