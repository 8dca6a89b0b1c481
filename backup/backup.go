// Package backup rotates timestamped copies of the translation memory
// record. The rotator runs alongside the project, snapshots only when
// the store changed since the last snapshot, and keeps a bounded number
// of copies with the oldest deleted first. A failed snapshot is logged
// and retried on the next tick; it never disturbs the live store.
package backup

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beritholmen/konkord/internal/fs"
)

const (
	// DefaultInterval is the time between automatic snapshot checks.
	DefaultInterval = 30 * time.Minute
	// DefaultRetention is the number of snapshots kept.
	DefaultRetention = 3

	snapshotPrefix = "memory-"
	snapshotExt    = ".tmk"
	// timestampLayout orders lexically the same as chronologically.
	timestampLayout = "20060102T150405.000000000Z"
)

// ErrNoSnapshots is returned by Latest and Restore when the backup
// directory holds no snapshots.
var ErrNoSnapshots = errors.New("no snapshots available")

// Source is the store being backed up.
type Source interface {
	// Dirty reports whether the store changed since the last ClearDirty.
	Dirty() bool
	// ClearDirty resets the change marker after a successful snapshot.
	ClearDirty()
}

// Snapshot describes one stored backup copy.
type Snapshot struct {
	Path string
	Time time.Time
}

// Rotator periodically copies the record at srcPath into dir.
type Rotator struct {
	fsys      fs.FileSystem
	srcPath   string
	dir       string
	source    Source
	interval  time.Duration
	retention int
	logger    *slog.Logger

	// now is swappable so tests can force distinct snapshot names.
	now func() time.Time

	mu      sync.Mutex
	trigger chan struct{}
	done    chan struct{}
	closed  bool
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithInterval sets the automatic snapshot interval.
func WithInterval(d time.Duration) Option {
	return func(r *Rotator) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRetention sets how many snapshots are kept.
func WithRetention(n int) Option {
	return func(r *Rotator) {
		if n > 0 {
			r.retention = n
		}
	}
}

// WithFileSystem sets the filesystem used for copies.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(r *Rotator) {
		if fsys != nil {
			r.fsys = fsys
		}
	}
}

// WithClock sets the time source used for snapshot names.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRotator creates a rotator copying srcPath into dir whenever source
// is dirty.
func NewRotator(srcPath, dir string, source Source, logger *slog.Logger, opts ...Option) *Rotator {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rotator{
		fsys:      fs.Default,
		srcPath:   srcPath,
		dir:       dir,
		source:    source,
		interval:  DefaultInterval,
		retention: DefaultRetention,
		logger:    logger,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives the rotation loop until ctx is cancelled or Close is
// called. It blocks; callers run it in a goroutine.
func (r *Rotator) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
		case <-r.trigger:
		}
		if err := r.snapshot(); err != nil {
			r.logger.Warn("backup snapshot failed, will retry", "source", r.srcPath, "error", err)
		}
	}
}

// TriggerNow requests a snapshot outside the regular schedule. The
// request coalesces with a pending one.
func (r *Rotator) TriggerNow() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// SnapshotNow takes a snapshot synchronously, regardless of the running
// loop. Used for explicit backup requests that need a result.
func (r *Rotator) SnapshotNow() error {
	return r.snapshot()
}

// Close stops the rotation loop.
func (r *Rotator) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
}

func (r *Rotator) snapshot() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.source != nil && !r.source.Dirty() {
		r.logger.Debug("store unchanged, skipping backup", "source", r.srcPath)
		return nil
	}

	data, err := fs.ReadFile(r.fsys, r.srcPath)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			// Nothing persisted yet.
			return nil
		}
		return fmt.Errorf("backup: reading source: %w", err)
	}

	if err := r.fsys.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	name := snapshotPrefix + r.now().UTC().Format(timestampLayout) + snapshotExt
	dst := filepath.Join(r.dir, name)
	if err := fs.WriteFileAtomic(r.fsys, dst, data, 0o644); err != nil {
		return fmt.Errorf("backup: writing snapshot: %w", err)
	}

	if r.source != nil {
		r.source.ClearDirty()
	}
	r.logger.Info("backup snapshot written", "snapshot", dst, "bytes", len(data))

	r.prune()
	return nil
}

// prune deletes the oldest snapshots beyond the retention limit.
// Deletion failures are logged; retention is best effort.
func (r *Rotator) prune() {
	snaps, err := r.list()
	if err != nil {
		r.logger.Warn("listing snapshots failed", "dir", r.dir, "error", err)
		return
	}
	for i := r.retention; i < len(snaps); i++ {
		if err := r.fsys.Remove(snaps[i].Path); err != nil {
			r.logger.Warn("pruning snapshot failed", "snapshot", snaps[i].Path, "error", err)
			continue
		}
		r.logger.Debug("pruned snapshot", "snapshot", snaps[i].Path)
	}
}

// Snapshots lists stored snapshots, newest first.
func (r *Rotator) Snapshots() ([]Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list()
}

func (r *Rotator) list() ([]Snapshot, error) {
	entries, err := r.fsys.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var snaps []Snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseSnapshotName(entry.Name())
		if !ok {
			continue
		}
		snaps = append(snaps, Snapshot{Path: filepath.Join(r.dir, entry.Name()), Time: ts})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Time.After(snaps[j].Time) })
	return snaps, nil
}

// Latest returns the newest snapshot.
func (r *Rotator) Latest() (Snapshot, error) {
	snaps, err := r.Snapshots()
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, ErrNoSnapshots
	}
	return snaps[0], nil
}

// Restore copies the newest snapshot back over the source path and
// returns the snapshot used. The copy is atomic; a half-written restore
// never replaces the record.
func (r *Rotator) Restore() (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snaps, err := r.list()
	if err != nil {
		return Snapshot{}, err
	}
	for _, snap := range snaps {
		data, err := fs.ReadFile(r.fsys, snap.Path)
		if err != nil {
			r.logger.Warn("snapshot unreadable, trying older", "snapshot", snap.Path, "error", err)
			continue
		}
		if err := fs.WriteFileAtomic(r.fsys, r.srcPath, data, 0o644); err != nil {
			return Snapshot{}, fmt.Errorf("backup: restoring %s: %w", snap.Path, err)
		}
		r.logger.Info("restored from snapshot", "snapshot", snap.Path)
		return snap, nil
	}
	return Snapshot{}, ErrNoSnapshots
}

func parseSnapshotName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotExt)
	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
