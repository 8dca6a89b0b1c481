package konkord

import (
	"log/slog"
	"time"

	"github.com/beritholmen/konkord/annotate"
	"github.com/beritholmen/konkord/codec"
	"github.com/beritholmen/konkord/compress"
	"github.com/beritholmen/konkord/internal/fs"
)

type options struct {
	codec           codec.Codec
	compressor      compress.Compressor
	logger          *Logger
	fsys            fs.FileSystem
	annotator       annotate.Annotator
	parallelism     int
	progress        func(done, total int)
	backupInterval  time.Duration
	backupRetention int
	autoBackup      bool
}

// Option configures Open behavior.
type Option func(*options)

// WithCodec configures the codec used for persisted records.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompressor configures the compressor for concordance payload
// blocks. If nil is passed, compress.Default is used.
func WithCompressor(c compress.Compressor) Option {
	return func(o *options) {
		if c == nil {
			c = compress.Default
		}
		o.compressor = c
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFileSystem configures the filesystem used for all persisted files.
// Mainly for tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// WithAnnotator configures the language annotator used by Ingest.
// Without one, Ingest returns ErrNoAnnotator; everything else works.
func WithAnnotator(a annotate.Annotator) Option {
	return func(o *options) {
		o.annotator = a
	}
}

// WithParallelism bounds concurrent paragraph annotation during Ingest.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithProgress installs a progress callback for long operations
// (ingestion paragraphs, rebuild segments).
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithBackupInterval sets the automatic backup interval.
func WithBackupInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.backupInterval = d
		}
	}
}

// WithBackupRetention sets how many backup snapshots are kept.
func WithBackupRetention(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.backupRetention = n
		}
	}
}

// WithAutoBackup enables or disables the background backup loop.
// Explicit BackupNow works either way.
func WithAutoBackup(enabled bool) Option {
	return func(o *options) {
		o.autoBackup = enabled
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:           codec.Default,
		compressor:      compress.Default,
		logger:          NoopLogger(),
		fsys:            fs.Default,
		parallelism:     0,
		backupInterval:  0,
		backupRetention: 0,
		autoBackup:      true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
