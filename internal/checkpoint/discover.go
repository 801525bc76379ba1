package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Entry is a periodic checkpoint found on disk.
type Entry struct {
	Epoch int
	Path  string
}

// Periodic returns the epoch-suffixed checkpoints written next to the
// canonical path, ordered by epoch.
func Periodic(path string) ([]Entry, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `_` + periodicPrefix + `([0-9]+)` + regexp.QuoteMeta(ext) + `$`)

	entries := make([]Entry, 0)
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discover checkpoints: %w", err)
	}
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(d.Name())
		if m == nil {
			continue
		}
		epoch, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Epoch: epoch, Path: filepath.Join(dir, d.Name())})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Epoch < entries[j].Epoch })
	return entries, nil
}

// Latest returns the newest periodic checkpoint, if any.
func Latest(path string) (Entry, bool, error) {
	entries, err := Periodic(path)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}
