package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.bin")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("v1"), 0o644))

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), data)

	// Overwrite replaces the whole file.
	require.NoError(t, WriteFileAtomic(Default, path, []byte("v2 longer"), 0o644))

	data, err = ReadFile(Default, path)
	require.NoError(t, err)
	require.Equal(t, []byte("v2 longer"), data)

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileAtomicFailureLeavesTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.bin")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("stable"), 0o644))

	ffs := NewFaultyFS(nil)
	ffs.AddRule("record.bin", Fault{FailOnWrite: true})

	err := WriteFileAtomic(ffs, path, []byte("doomed"), 0o644)
	require.ErrorIs(t, err, ErrInjected)

	// The previous contents survive a failed write.
	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	require.Equal(t, []byte("stable"), data)
}

func TestFaultyFSSync(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("snapshot", Fault{FailOnSync: true})

	f, err := ffs.OpenFile(filepath.Join(dir, "snapshot-001"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	require.ErrorIs(t, f.Sync(), ErrInjected)

	// Unmatched files are untouched.
	g, err := ffs.OpenFile(filepath.Join(dir, "other"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer g.Close()
	require.NoError(t, g.Sync())
}

func TestFaultyFSOpen(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("locked", Fault{FailOnOpen: true})

	_, err := ffs.OpenFile(filepath.Join(t.TempDir(), "locked.bin"), os.O_RDONLY, 0)
	require.ErrorIs(t, err, ErrInjected)
}
