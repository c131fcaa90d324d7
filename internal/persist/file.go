package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/VoolFI71/go-rdb/internal/storage"
)

// ErrOpen reports a snapshot file that could not be opened or created.
var ErrOpen = errors.New("persist: cannot open snapshot file")

// DumpFile writes a consistent snapshot of st to path. The data goes to a
// temporary file in the same directory which then replaces path, so readers
// never observe a half written dump. It reports how many entries were written
// and how many were left out because the format cannot hold them.
func DumpFile(st *storage.Storage, path string) (written, skipped int, err error) {
	entries := st.Snapshot()

	dir := filepath.Dir(path)
	file, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	tempPath := file.Name()
	defer os.Remove(tempPath)

	w := bufio.NewWriterSize(file, 64*1024)
	skipped, err = Encode(w, entries)
	if err != nil {
		file.Close()
		return 0, 0, fmt.Errorf("persist: write: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return 0, 0, fmt.Errorf("persist: flush: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return 0, 0, fmt.Errorf("persist: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, 0, fmt.Errorf("persist: close: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return 0, 0, fmt.Errorf("persist: rename: %w", err)
	}
	return len(entries) - skipped, skipped, nil
}

// LoadFile replaces the content of st with the records in path. The file is
// parsed completely before the store is touched; a file that cannot be
// opened leaves st unchanged.
func LoadFile(st *storage.Storage, path string) (loaded, skipped int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer file.Close()

	entries, skipped, err := Decode(file)
	if err != nil {
		return 0, skipped, fmt.Errorf("persist: read %s: %w", path, err)
	}
	st.Restore(entries)
	return len(entries), skipped, nil
}

// LoadOrEmpty is LoadFile that treats a missing file as an empty snapshot
// and leaves the store as it is.
func LoadOrEmpty(st *storage.Storage, path string) (loaded, skipped int, err error) {
	loaded, skipped, err = LoadFile(st, path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	return loaded, skipped, err
}
