// Package konkord is an embedded concordance and translation-memory
// engine for literary translation projects. A project directory holds
// the durable translation memory (aligned source/target segments with
// token annotations), a suppression filter, translator notes, rotated
// backups, and a derived concordance index that is rebuilt on demand and
// read lazily.
//
// Open one Project per directory per process; all state hangs off the
// Project value.
package konkord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/beritholmen/konkord/annotate"
	"github.com/beritholmen/konkord/backup"
	"github.com/beritholmen/konkord/concordance"
	"github.com/beritholmen/konkord/freq"
	"github.com/beritholmen/konkord/notes"
	"github.com/beritholmen/konkord/segment"
	"github.com/beritholmen/konkord/suppress"
)

// Project directory layout.
const (
	memoryFile   = "memory.tmk"
	suppressFile = "suppress.json"
	notesFile    = "notes.json"
	cacheDir     = "cache"
	indexFile    = "concordance.kcx"
	freqFile     = "frequencies.json"
	backupsDir   = "backups"
)

// Project is the handle to one translation project directory.
type Project struct {
	dir    string
	opts   options
	logger *Logger

	storeMu sync.RWMutex
	store   *segment.Store

	notes *notes.Book

	filterMu sync.RWMutex
	filter   *suppress.Set

	indexMu  sync.RWMutex
	index    *concordance.Index
	outdated bool // corpus changed since the index was built

	building  atomic.Bool
	firstLoad singleflight.Group

	rotator    *backup.Rotator
	rotatorCtx context.CancelFunc
	rotatorWG  sync.WaitGroup

	closed atomic.Bool
}

// Open opens (or creates) the project at dir.
//
// A corrupt translation memory surfaces as *CorruptStoreError; use
// OpenWithRecovery to fall back to the newest readable backup instead.
func Open(dir string, optFns ...Option) (*Project, error) {
	o := applyOptions(optFns)

	if err := o.fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("konkord: creating project dir: %w", err)
	}

	store, err := segment.Open(o.fsys, filepath.Join(dir, memoryFile), o.codec)
	if err != nil {
		return nil, err
	}

	filter, err := suppress.Load(o.fsys, filepath.Join(dir, suppressFile), o.codec)
	if err != nil {
		return nil, err
	}

	book, err := notes.Load(o.fsys, filepath.Join(dir, notesFile), o.codec)
	if err != nil {
		return nil, err
	}

	p := &Project{
		dir:    dir,
		opts:   o,
		logger: o.logger,
		store:  store,
		filter: filter,
		notes:  book,
	}

	// A previously built index is reopened; an unreadable one is simply
	// rebuilt on demand.
	if ix, err := concordance.Open(p.indexPath()); err == nil {
		p.index = ix
	} else if !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("stored concordance unreadable, will rebuild", "path", p.indexPath(), "error", err)
	}

	// The rotator watches the project, not a store value: a restore swaps
	// the store, and dirty-detection must follow the current one.
	p.rotator = backup.NewRotator(
		store.Path(),
		filepath.Join(dir, backupsDir),
		storeSource{p},
		p.logger.Logger,
		backup.WithFileSystem(o.fsys),
		backup.WithInterval(o.backupInterval),
		backup.WithRetention(o.backupRetention),
	)
	if o.autoBackup {
		ctx, cancel := context.WithCancel(context.Background())
		p.rotatorCtx = cancel
		p.rotatorWG.Add(1)
		go func() {
			defer p.rotatorWG.Done()
			p.rotator.Run(ctx)
		}()
	}

	p.logger.Info("project opened",
		"dir", dir,
		"segments", store.Len(),
		"files", len(store.Files()),
	)
	return p, nil
}

// OpenWithRecovery opens the project, falling back to the newest
// readable backup snapshot when the translation memory is corrupt.
func OpenWithRecovery(dir string, optFns ...Option) (*Project, error) {
	p, err := Open(dir, optFns...)
	if err == nil {
		return p, nil
	}
	var cse *CorruptStoreError
	if !errors.As(err, &cse) {
		return nil, err
	}

	o := applyOptions(optFns)
	logger := o.logger
	logger.Warn("translation memory corrupt, restoring from backup", "path", cse.Path)

	r := backup.NewRotator(
		filepath.Join(dir, memoryFile),
		filepath.Join(dir, backupsDir),
		nil,
		logger.Logger,
		backup.WithFileSystem(o.fsys),
	)
	snap, rerr := r.Restore()
	if rerr != nil {
		return nil, fmt.Errorf("konkord: recovery failed: %w (store: %w)", rerr, err)
	}
	logger.Info("recovered translation memory", "snapshot", snap.Path)

	return Open(dir, optFns...)
}

func (p *Project) indexPath() string {
	return filepath.Join(p.dir, cacheDir, indexFile)
}

// currentStore returns the live store; RestoreLatestBackup may have
// swapped it since Open.
func (p *Project) currentStore() *segment.Store {
	p.storeMu.RLock()
	defer p.storeMu.RUnlock()
	return p.store
}

// storeSource adapts the project's current store as the rotator's
// dirty-detection source.
type storeSource struct{ p *Project }

func (s storeSource) Dirty() bool { return s.p.currentStore().Dirty() }
func (s storeSource) ClearDirty() { s.p.currentStore().ClearDirty() }

// Dir returns the project directory.
func (p *Project) Dir() string { return p.dir }

// Segments returns all stored segments in corpus order.
func (p *Project) Segments() []segment.Segment {
	return p.currentStore().Segments()
}

// Segment returns one segment by id.
func (p *Project) Segment(id int) (segment.Segment, error) {
	return p.currentStore().Segment(id)
}

// Files returns the ingested source files.
func (p *Project) Files() []string {
	return p.currentStore().Files()
}

// SaveSegment updates a segment's target text and persists the store
// durably before returning.
func (p *Project) SaveSegment(id int, target string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.currentStore().SaveSegment(id, target)
}

// Ingest annotates rawText and commits it as fileID's segment range. A
// file already in the store is skipped unless force is set. Requires an
// annotator (WithAnnotator); ingestion of a new or forced file leaves
// the concordance outdated until the next rebuild.
func (p *Project) Ingest(ctx context.Context, fileID, rawText string, force bool) ([]segment.Segment, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if p.opts.annotator == nil {
		return nil, ErrNoAnnotator
	}

	hadFile := p.currentStore().HasFile(fileID)

	ing := annotate.NewIngestor(p.opts.annotator, p.logger.Logger)
	if p.opts.parallelism > 0 {
		ing.Parallelism = p.opts.parallelism
	}
	ing.Progress = p.opts.progress

	segs, err := ing.Ingest(ctx, p.currentStore(), fileID, rawText, force)
	p.logger.LogIngest(ctx, fileID, len(segs), err)
	if err != nil {
		return nil, err
	}

	if !hadFile || force {
		p.markOutdated()
	}
	return segs, nil
}

// Frequencies computes the corpus-wide lemma frequency table. Frequency
// is independent of suppression; filtering is presentation policy. The
// table is rebuilt wholesale from the corpus, never patched.
func (p *Project) Frequencies() freq.Table {
	return freq.Compute(p.currentStore().Segments())
}

// StoredFrequencies returns the frequency table persisted by the last
// rebuild, without touching the corpus. Empty when none was written yet.
func (p *Project) StoredFrequencies() (freq.Table, error) {
	return freq.Load(p.opts.fsys, filepath.Join(p.dir, cacheDir, freqFile), p.opts.codec)
}

// TopFrequencies returns the n most frequent lemmas, most frequent
// first, ties broken alphabetically.
func (p *Project) TopFrequencies(n int) []freq.Entry {
	return p.Frequencies().Top(n)
}

// RebuildIndex rebuilds the concordance from the current corpus and
// suppression filter, atomically replacing the stored index. Concurrent
// rebuilds are rejected with ErrBuildInProgress; lookups against the old
// index continue until the swap.
func (p *Project) RebuildIndex(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.building.CompareAndSwap(false, true) {
		return ErrBuildInProgress
	}
	defer p.building.Store(false)

	if err := ctx.Err(); err != nil {
		return err
	}

	p.filterMu.RLock()
	filter := p.filter
	p.filterMu.RUnlock()

	if err := p.opts.fsys.MkdirAll(filepath.Join(p.dir, cacheDir), 0o755); err != nil {
		return err
	}
	err := concordance.BuildFile(p.opts.fsys, p.indexPath(), p.currentStore().Segments(), filter, concordance.BuildOptions{
		Codec:      p.opts.codec,
		Compressor: p.opts.compressor,
	})
	if err != nil {
		p.logger.LogRebuild(ctx, 0, err)
		return err
	}

	ix, err := concordance.Open(p.indexPath())
	if err != nil {
		p.logger.LogRebuild(ctx, 0, err)
		return err
	}

	// The frequency table is derived the same way; refresh it alongside
	// the index so both caches describe the same corpus.
	table := freq.Compute(p.currentStore().Segments())
	if err := table.Save(p.opts.fsys, filepath.Join(p.dir, cacheDir, freqFile), p.opts.codec); err != nil {
		p.logger.Warn("persisting frequency table failed", "error", err)
	}

	// The old index is not closed here: a concurrent Lookup may still be
	// reading its mapping. Rebuilds are rare operator actions, so the
	// superseded mapping simply stays alive until process exit, in line
	// with the no-eviction cache policy.
	p.indexMu.Lock()
	p.index = ix
	p.outdated = false
	p.indexMu.Unlock()

	p.logger.LogRebuild(ctx, ix.Len(), nil)
	return nil
}

// ensureIndex returns the open index, building it first when none
// exists yet. Concurrent first lookups share a single build instead of
// one of them bouncing off ErrBuildInProgress; that error is reserved
// for explicit operator rebuilds.
func (p *Project) ensureIndex(ctx context.Context) (*concordance.Index, error) {
	p.indexMu.RLock()
	ix := p.index
	p.indexMu.RUnlock()
	if ix != nil {
		return ix, nil
	}

	_, err, _ := p.firstLoad.Do("build", func() (any, error) {
		p.indexMu.RLock()
		built := p.index != nil
		p.indexMu.RUnlock()
		if built {
			return nil, nil
		}
		return nil, p.RebuildIndex(ctx)
	})
	if err != nil {
		return nil, err
	}

	p.indexMu.RLock()
	defer p.indexMu.RUnlock()
	return p.index, nil
}

// Lookup returns the concordance entry for lemma, building the index on
// first use. A stale index still answers; staleness is logged and
// visible via IndexStale.
func (p *Project) Lookup(ctx context.Context, lemma string) (*concordance.Entry, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	ix, err := p.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	if p.IndexStale() {
		p.logger.Warn("concordance is stale, results may omit recent changes", "lemma", lemma)
	}

	e, err := ix.Lookup(ctx, lemma)
	p.logger.LogLookup(ctx, lemma, entryCount(e), err)
	return e, err
}

func entryCount(e *concordance.Entry) int {
	if e == nil {
		return 0
	}
	return e.Count()
}

// Search returns the lemmas sharing the given wordform.
func (p *Project) Search(ctx context.Context, wordform string) ([]string, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	ix, err := p.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	return ix.Search(wordform), nil
}

// IndexStale reports whether the stored concordance predates the current
// suppression filter or corpus. Stale lookups still work.
func (p *Project) IndexStale() bool {
	p.indexMu.RLock()
	ix, outdated := p.index, p.outdated
	p.indexMu.RUnlock()
	if ix == nil {
		return false
	}
	if outdated {
		return true
	}
	p.filterMu.RLock()
	defer p.filterMu.RUnlock()
	return ix.Stale(p.filter.Fingerprint())
}

func (p *Project) markOutdated() {
	p.indexMu.Lock()
	if p.index != nil {
		p.outdated = true
	}
	p.indexMu.Unlock()
}

// SuppressPOS adds a POS tag to the suppression filter.
func (p *Project) SuppressPOS(tag string) error {
	return p.changeFilter(func(s *suppress.Set) bool { return s.SuppressPOS(tag) })
}

// UnsuppressPOS removes a POS tag from the suppression filter.
func (p *Project) UnsuppressPOS(tag string) error {
	return p.changeFilter(func(s *suppress.Set) bool { return s.UnsuppressPOS(tag) })
}

// SuppressLemma adds a lemma to the suppression filter.
func (p *Project) SuppressLemma(lemma string) error {
	return p.changeFilter(func(s *suppress.Set) bool { return s.SuppressLemma(lemma) })
}

// UnsuppressLemma removes a lemma from the suppression filter.
func (p *Project) UnsuppressLemma(lemma string) error {
	return p.changeFilter(func(s *suppress.Set) bool { return s.UnsuppressLemma(lemma) })
}

// SuppressedPOS returns the suppressed POS tags, sorted.
func (p *Project) SuppressedPOS() []string {
	p.filterMu.RLock()
	defer p.filterMu.RUnlock()
	return p.filter.POS()
}

// SuppressedLemmas returns the suppressed lemmas, sorted.
func (p *Project) SuppressedLemmas() []string {
	p.filterMu.RLock()
	defer p.filterMu.RUnlock()
	return p.filter.Lemmas()
}

// changeFilter applies a mutation to the suppression filter and persists
// it. A change that actually alters the set leaves the index stale until
// the next rebuild.
func (p *Project) changeFilter(mutate func(*suppress.Set) bool) error {
	if p.closed.Load() {
		return ErrClosed
	}

	p.filterMu.Lock()
	changed := mutate(p.filter)
	var err error
	if changed {
		err = p.filter.Save(p.opts.fsys, filepath.Join(p.dir, suppressFile), p.opts.codec)
	}
	p.filterMu.Unlock()
	if err != nil {
		return err
	}

	if changed && p.IndexStale() {
		p.logger.Warn("suppression changed, concordance is stale until rebuilt")
	}
	return nil
}

// BackupNow takes a backup snapshot immediately. Skipped when the store
// has not changed since the last snapshot.
func (p *Project) BackupNow(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	err := p.rotator.SnapshotNow()
	p.logger.LogBackup(ctx, err)
	return err
}

// Snapshots lists backup snapshots, newest first.
func (p *Project) Snapshots() ([]backup.Snapshot, error) {
	return p.rotator.Snapshots()
}

// RestoreLatestBackup replaces the translation memory with the newest
// readable snapshot and reloads the store. Unsaved in-memory state from
// after the snapshot is lost.
func (p *Project) RestoreLatestBackup() (backup.Snapshot, error) {
	if p.closed.Load() {
		return backup.Snapshot{}, ErrClosed
	}

	snap, err := p.rotator.Restore()
	if err != nil {
		return backup.Snapshot{}, err
	}

	store, err := segment.Open(p.opts.fsys, filepath.Join(p.dir, memoryFile), p.opts.codec)
	if err != nil {
		return backup.Snapshot{}, err
	}
	p.storeMu.Lock()
	p.store = store
	p.storeMu.Unlock()
	p.markOutdated()
	return snap, nil
}

// SetMeaning records a free-text meaning for a lemma and POS tag.
func (p *Project) SetMeaning(lemma, pos, meaning string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.notes.SetMeaning(lemma, pos, meaning)
	return p.notes.Save(p.opts.fsys, filepath.Join(p.dir, notesFile), p.opts.codec)
}

// Meaning returns the recorded meaning, or "".
func (p *Project) Meaning(lemma, pos string) string {
	return p.notes.Meaning(lemma, pos)
}

// SetDictionaryLink records a dictionary-link override for a lemma and
// POS tag. The URL is normalized to absolute https.
func (p *Project) SetDictionaryLink(lemma, pos, link string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.notes.SetDictLink(lemma, pos, link); err != nil {
		return err
	}
	return p.notes.Save(p.opts.fsys, filepath.Join(p.dir, notesFile), p.opts.codec)
}

// DictionaryLink returns the override, or "" when the default applies.
func (p *Project) DictionaryLink(lemma, pos string) string {
	return p.notes.DictLink(lemma, pos)
}

// ExportTMX writes the translation memory to w as TMX 1.4.
func (p *Project) ExportTMX(w io.Writer) error {
	return segment.WriteTMX(w, p.currentStore().Segments())
}

// Close stops the backup loop and releases the concordance mapping.
// Further operations return ErrClosed.
func (p *Project) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	if p.rotatorCtx != nil {
		p.rotatorCtx()
	}
	p.rotator.Close()
	p.rotatorWG.Wait()

	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	if p.index != nil {
		err := p.index.Close()
		p.index = nil
		return err
	}
	return nil
}
