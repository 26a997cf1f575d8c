package reportfile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ctxdump/internal/config"
)

// Store manages the report files in one directory.
type Store struct {
	Dir string
}

// NewStore creates a store over dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// FileSummary describes one report file.
type FileSummary struct {
	Path    string
	ModTime time.Time
	Records int
	Failed  int
}

func (s *Store) isReport(entry os.DirEntry) bool {
	name := entry.Name()
	return !entry.IsDir() && strings.HasPrefix(name, config.ReportName) && strings.HasSuffix(name, ".txt")
}

// List returns a summary per report file, oldest first.
func (s *Store) List() ([]FileSummary, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileSummary{}, nil
		}
		return nil, err
	}

	summaries := []FileSummary{}
	for _, entry := range entries {
		if !s.isReport(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(s.Dir, entry.Name())
		records, err := ReadFile(path)
		if err != nil {
			continue // skip unreadable files
		}
		summary := FileSummary{Path: path, ModTime: info.ModTime(), Records: len(records)}
		for _, r := range records {
			if r.Failed() {
				summary.Failed++
			}
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ModTime.Before(summaries[j].ModTime)
	})
	return summaries, nil
}

// Prune removes report files last written before olderThan ago.
// Returns the number of files deleted.
func (s *Store) Prune(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for _, entry := range entries {
		if !s.isReport(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.Dir, entry.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// Delete removes one report file by name.
func (s *Store) Delete(name string) error {
	err := os.Remove(filepath.Join(s.Dir, filepath.Base(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
