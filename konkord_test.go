package konkord_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	konkord "github.com/beritholmen/konkord"
	"github.com/beritholmen/konkord/annotate"
)

// lexiconAnnotator is a deterministic in-memory annotator. It splits
// sentences on ". ", words on spaces, and resolves lemma and POS from a
// fixed lexicon.
type lexiconAnnotator struct {
	lexicon map[string][2]string // surface (lowercased) -> lemma, POS
}

func (a *lexiconAnnotator) Language() string { return "sv" }

func (a *lexiconAnnotator) Annotate(_ context.Context, text string) ([]annotate.Sentence, error) {
	var sentences []annotate.Sentence
	for _, st := range strings.Split(text, ". ") {
		st = strings.TrimSuffix(strings.TrimSpace(st), ".")
		if st == "" {
			continue
		}
		s := annotate.Sentence{Text: st}
		for _, word := range strings.Fields(st) {
			key := strings.ToLower(word)
			entry, ok := a.lexicon[key]
			if !ok {
				entry = [2]string{key, "NOUN"}
			}
			s.Tokens = append(s.Tokens, annotate.Token{Surface: word, Lemma: entry[0], POS: entry[1]})
		}
		sentences = append(sentences, s)
	}
	return sentences, nil
}

func testAnnotator() *lexiconAnnotator {
	return &lexiconAnnotator{lexicon: map[string][2]string{
		"huset":   {"hus", "NOUN"},
		"hus":     {"hus", "NOUN"},
		"var":     {"vara", "VERB"},
		"gammalt": {"gammal", "ADJ"},
		"ett":     {"en", "DET"},
		"vid":     {"vid", "ADP"},
		"sjön":    {"sjö", "NOUN"},
		"den":     {"den", "DET"},
		"tom":     {"tom", "ADJ"},
		"nytt":    {"ny", "ADJ"},
	}}
}

const chapterOne = "Huset var gammalt. Ett hus vid sjön. Den var tom. Ett nytt hus."

func openTestProject(t *testing.T, dir string) *konkord.Project {
	t.Helper()
	p, err := konkord.Open(dir,
		konkord.WithAnnotator(testAnnotator()),
		konkord.WithAutoBackup(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := openTestProject(t, dir)

	segs, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.Len(t, segs, 4)
	require.Equal(t, []string{"kapitel-1.txt"}, p.Files())

	// Frequency counts the whole corpus regardless of suppression.
	freqs := p.Frequencies()
	require.Equal(t, 3, freqs["hus"])
	require.Equal(t, 2, freqs["en"])

	require.NoError(t, p.SuppressPOS("DET"))

	// First lookup builds the index on demand.
	e, err := p.Lookup(ctx, "hus")
	require.NoError(t, err)
	require.Equal(t, 3, e.Count())
	require.Equal(t, []string{"hus", "huset"}, e.Wordforms)

	// Suppressed lemma: empty entry, present.
	e, err = p.Lookup(ctx, "en")
	require.NoError(t, err)
	require.Zero(t, e.Count())

	// Unknown lemma: typed error.
	_, err = p.Lookup(ctx, "katt")
	var nie *konkord.NotIndexedError
	require.ErrorAs(t, err, &nie)

	lemmas, err := p.Search(ctx, "huset")
	require.NoError(t, err)
	require.Equal(t, []string{"hus"}, lemmas)

	// Translating a segment persists durably and survives reopen.
	require.NoError(t, p.SaveSegment(segs[0].ID, "The house was old."))
	require.NoError(t, p.Close())

	p2 := openTestProject(t, dir)
	seg, err := p2.Segment(segs[0].ID)
	require.NoError(t, err)
	require.Equal(t, "The house was old.", seg.Target)
	require.Equal(t, []string{"DET"}, p2.SuppressedPOS())
}

func TestIngestRequiresAnnotator(t *testing.T) {
	p, err := konkord.Open(t.TempDir(), konkord.WithAutoBackup(false))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Ingest(context.Background(), "f.txt", "text", false)
	require.ErrorIs(t, err, konkord.ErrNoAnnotator)
}

func TestIngestIdempotent(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	first, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)

	// Same file again without force: segments unchanged.
	again, err := p.Ingest(ctx, "kapitel-1.txt", "Helt annan text.", false)
	require.NoError(t, err)
	require.Equal(t, first, again)

	// Forced: replaced.
	forced, err := p.Ingest(ctx, "kapitel-1.txt", "Ett hus.", true)
	require.NoError(t, err)
	require.Len(t, forced, 1)
}

func TestRebuildIsDeterministic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := openTestProject(t, dir)

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.SuppressPOS("DET"))

	indexPath := filepath.Join(dir, "cache", "concordance.kcx")

	require.NoError(t, p.RebuildIndex(ctx))
	first, err := os.ReadFile(indexPath)
	require.NoError(t, err)

	require.NoError(t, p.RebuildIndex(ctx))
	second, err := os.ReadFile(indexPath)
	require.NoError(t, err)

	require.Equal(t, first, second, "identical corpus and filter rebuild byte-identically")
}

func TestStoredFrequencies(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)

	// Nothing persisted before the first rebuild.
	stored, err := p.StoredFrequencies()
	require.NoError(t, err)
	require.Empty(t, stored)

	require.NoError(t, p.RebuildIndex(ctx))
	stored, err = p.StoredFrequencies()
	require.NoError(t, err)
	require.Equal(t, p.Frequencies(), stored)
}

func TestSuppressionFlagsStaleIndex(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.RebuildIndex(ctx))
	require.False(t, p.IndexStale())

	require.NoError(t, p.SuppressPOS("DET"))
	require.True(t, p.IndexStale())

	// Stale index still answers, including the now-suppressed lemma.
	e, err := p.Lookup(ctx, "en")
	require.NoError(t, err)
	require.Equal(t, 2, e.Count())

	require.NoError(t, p.RebuildIndex(ctx))
	require.False(t, p.IndexStale())

	e, err = p.Lookup(ctx, "en")
	require.NoError(t, err)
	require.Zero(t, e.Count())
}

func TestIngestFlagsStaleIndex(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.RebuildIndex(ctx))
	require.False(t, p.IndexStale())

	_, err = p.Ingest(ctx, "kapitel-2.txt", "Ett hus till.", false)
	require.NoError(t, err)
	require.True(t, p.IndexStale())
}

func TestBackupAndRecovery(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := openTestProject(t, dir)

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.BackupNow(ctx))

	snaps, err := p.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.NoError(t, p.Close())

	// Corrupt the record, then recover from the snapshot.
	memPath := filepath.Join(dir, "memory.tmk")
	require.NoError(t, os.WriteFile(memPath, []byte("garbage"), 0o644))

	_, err = konkord.Open(dir, konkord.WithAutoBackup(false))
	var cse *konkord.CorruptStoreError
	require.ErrorAs(t, err, &cse)

	p2, err := konkord.OpenWithRecovery(dir,
		konkord.WithAnnotator(testAnnotator()),
		konkord.WithAutoBackup(false),
	)
	require.NoError(t, err)
	defer p2.Close()
	require.Len(t, p2.Segments(), 4)
}

func TestBackupAfterRestore(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	segs, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.BackupNow(ctx))

	snaps, err := p.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	// After a restore the rotator must keep tracking the live store:
	// a save still marks it dirty and the next backup is not skipped.
	_, err = p.RestoreLatestBackup()
	require.NoError(t, err)

	require.NoError(t, p.SaveSegment(segs[0].ID, "The house was old."))
	require.NoError(t, p.BackupNow(ctx))

	snaps, err = p.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2, "a save after restore must produce a new snapshot")
}

func TestLookupDuringRebuild(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.RebuildIndex(ctx))

	// Entries from the pre-rebuild index must stay readable while
	// rebuilds swap the index underneath.
	before, err := p.Lookup(ctx, "hus")
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				e, err := p.Lookup(ctx, "hus")
				require.NoError(t, err)
				require.Equal(t, 3, e.Count())
			}
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, p.RebuildIndex(ctx))
	}
	close(done)
	wg.Wait()

	require.Equal(t, 3, before.Count())
	require.ElementsMatch(t, []uint32{1, 2, 4}, before.SegmentSet().ToArray())
}

func TestConcurrentFirstLookupSharesBuild(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)

	// No index exists yet: every concurrent lookup must get the shared
	// first build, never ErrBuildInProgress.
	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := p.Lookup(ctx, "hus")
			require.NoError(t, err)
			require.Equal(t, 3, e.Count())
		}()
	}
	wg.Wait()
}

func TestConcurrentRebuildRejected(t *testing.T) {
	// The guard is a compare-and-swap; simulate an in-flight rebuild by
	// racing a slow one is flaky, so exercise the sequential contract:
	// a rebuild finishing releases the guard for the next one.
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.RebuildIndex(ctx))
	require.NoError(t, p.RebuildIndex(ctx))
}

func TestNotesSurface(t *testing.T) {
	dir := t.TempDir()
	p := openTestProject(t, dir)

	require.NoError(t, p.SetMeaning("hus", "NOUN", "house; home"))
	require.NoError(t, p.SetDictionaryLink("hus", "NOUN", "naob.no/ordbok/hus_1"))
	require.NoError(t, p.Close())

	p2 := openTestProject(t, dir)
	require.Equal(t, "house; home", p2.Meaning("hus", "NOUN"))
	require.Equal(t, "https://naob.no/ordbok/hus_1", p2.DictionaryLink("hus", "NOUN"))
}

func TestExportTMX(t *testing.T) {
	ctx := context.Background()
	p := openTestProject(t, t.TempDir())

	segs, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.SaveSegment(segs[0].ID, "The house was old."))

	var buf bytes.Buffer
	require.NoError(t, p.ExportTMX(&buf))
	out := buf.String()
	require.Contains(t, out, "<tmx version=\"1.4\">")
	require.Contains(t, out, "Huset var gammalt.")
	require.Contains(t, out, "The house was old.")
}

func TestOpenWithRecoveryNoSnapshots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memory.tmk"), []byte("garbage"), 0o644))

	_, err := konkord.OpenWithRecovery(dir, konkord.WithAutoBackup(false))
	require.Error(t, err)
	require.ErrorIs(t, err, konkord.ErrNoSnapshots)
}

func TestClosedProject(t *testing.T) {
	p := openTestProject(t, t.TempDir())
	require.NoError(t, p.Close())

	require.ErrorIs(t, p.SaveSegment(1, "x"), konkord.ErrClosed)
	_, err := p.Ingest(context.Background(), "f", "x", false)
	require.ErrorIs(t, err, konkord.ErrClosed)
	require.ErrorIs(t, p.RebuildIndex(context.Background()), konkord.ErrClosed)
	_, err = p.Lookup(context.Background(), "hus")
	require.ErrorIs(t, err, konkord.ErrClosed)
}

func TestPersistedIndexReopened(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := openTestProject(t, dir)

	_, err := p.Ingest(ctx, "kapitel-1.txt", chapterOne, false)
	require.NoError(t, err)
	require.NoError(t, p.RebuildIndex(ctx))
	require.NoError(t, p.Close())

	// Reopen: the stored index serves lookups without a rebuild.
	p2 := openTestProject(t, dir)
	e, err := p2.Lookup(ctx, "hus")
	require.NoError(t, err)
	require.Equal(t, 3, e.Count())
}
