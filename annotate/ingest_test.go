package annotate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beritholmen/konkord/segment"
)

// fakeAnnotator splits on ". " and emits one token per whitespace word,
// lemma = lowercased surface, POS = X.
type fakeAnnotator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeAnnotator) Annotate(_ context.Context, text string) ([]Sentence, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var out []Sentence
	for _, raw := range strings.Split(text, ". ") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		s := Sentence{Text: raw}
		for _, w := range strings.Fields(strings.TrimSuffix(raw, ".")) {
			s.Tokens = append(s.Tokens, Token{Surface: w, Lemma: strings.ToLower(w), POS: "X"})
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAnnotator) Language() string { return "nb" }

func newTestStore(t *testing.T) *segment.Store {
	t.Helper()
	s, err := segment.Open(nil, filepath.Join(t.TempDir(), "memory.tmk"), nil)
	require.NoError(t, err)
	return s
}

func TestIngest(t *testing.T) {
	store := newTestStore(t)
	ann := &fakeAnnotator{}
	ing := NewIngestor(ann, nil)

	var progressCalls int
	var mu sync.Mutex
	ing.Progress = func(done, total int) {
		mu.Lock()
		progressCalls++
		mu.Unlock()
		require.Equal(t, 2, total)
	}

	raw := "Huset er gammelt. Det regner.\n\nHagen er stor."
	segs, err := ing.Ingest(context.Background(), store, "ch1.txt", raw, false)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	require.Equal(t, "Huset er gammelt", segs[0].Source)
	require.False(t, segs[0].ParagraphEnd)
	require.True(t, segs[1].ParagraphEnd)
	require.True(t, segs[2].ParagraphEnd)

	// Token normalization: sequential positions, lowercase lemma.
	require.Equal(t, segment.Token{Surface: "Huset", Lemma: "huset", POS: "X", Position: 0}, segs[0].Tokens[0])

	mu.Lock()
	require.Equal(t, 2, progressCalls)
	mu.Unlock()
}

func TestIngestIdempotent(t *testing.T) {
	store := newTestStore(t)
	ann := &fakeAnnotator{}
	ing := NewIngestor(ann, nil)

	_, err := ing.Ingest(context.Background(), store, "ch1.txt", "En setning.", false)
	require.NoError(t, err)
	callsAfterFirst := ann.calls

	// Second ingest without force must not call the annotator.
	segs, err := ing.Ingest(context.Background(), store, "ch1.txt", "En setning.", false)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, callsAfterFirst, ann.calls)

	// Forced re-ingestion does.
	_, err = ing.Ingest(context.Background(), store, "ch1.txt", "En annen setning.", true)
	require.NoError(t, err)
	require.Greater(t, ann.calls, callsAfterFirst)
	require.Equal(t, "En annen setning", store.Segments()[0].Source)
}

func TestIngestAnnotatorFailure(t *testing.T) {
	store := newTestStore(t)
	ann := &fakeAnnotator{err: errors.New("connection refused")}
	ing := NewIngestor(ann, nil)

	_, err := ing.Ingest(context.Background(), store, "ch1.txt", "En setning.\n\nTo setninger.", false)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, "nb", unavailable.Language)

	// No partial commit.
	require.Zero(t, store.Len())
	require.False(t, store.HasFile("ch1.txt"))
}

func TestSplitParagraphs(t *testing.T) {
	got := SplitParagraphs("Første avsnitt.\r\n\r\nAndre avsnitt.\n\n\n\nTredje.")
	require.Equal(t, []string{"Første avsnitt.", "Andre avsnitt.", "Tredje."}, got)

	require.Nil(t, SplitParagraphs("  \n\n \n"))
}

func TestNormalizeTokens(t *testing.T) {
	toks := NormalizeTokens([]Token{
		{Surface: " Huset ", Lemma: "HUS", POS: "NOUN"},
		{Surface: "", Lemma: "x", POS: "X"}, // dropped
		{Surface: "og", POS: "CCONJ"},      // lemma falls back to surface
	})

	require.Len(t, toks, 2)
	require.Equal(t, segment.Token{Surface: "Huset", Lemma: "hus", POS: "NOUN", Position: 0}, toks[0])
	require.Equal(t, segment.Token{Surface: "og", Lemma: "og", POS: "CCONJ", Position: 1}, toks[1])
}

func TestHasLetter(t *testing.T) {
	require.True(t, HasLetter("hus"))
	require.True(t, HasLetter("été"))
	require.False(t, HasLetter("1870"))
	require.False(t, HasLetter("..."))
}
