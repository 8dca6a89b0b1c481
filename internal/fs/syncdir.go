package fs

import (
	"os"
	"path/filepath"
)

// syncDir fsyncs the parent directory of name, best-effort.
// Directory sync only matters on the real filesystem, so this goes
// straight to os rather than through a FileSystem.
func syncDir(name string) {
	if d, err := os.Open(filepath.Dir(name)); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}
