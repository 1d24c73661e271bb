package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const fileTimeLayout = "20060102-150405.000000000"

// FileStorage implements Storage using one JSON file per run
type FileStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(baseDir string) *FileStorage {
	return &FileStorage{
		baseDir: baseDir,
	}
}

// DefaultStorageDir returns the default storage directory
func DefaultStorageDir() string {
	if dir := os.Getenv("DBROTATE_HISTORY_DIR"); dir != "" {
		return dir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "dbrotate", "history")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "dbrotate", "history")
	}

	return filepath.Join(os.TempDir(), "dbrotate", "history")
}

// Dir returns the directory runs are written to
func (fs *FileStorage) Dir() string {
	return fs.baseDir
}

// SaveRun writes run as <started_at>.json
func (fs *FileStorage) SaveRun(run *RunRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	if run.ID == "" {
		run.ID = run.StartedAt.UTC().Format(fileTimeLayout)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	filename := filepath.Join(fs.baseDir, sanitizeFilename(run.ID)+".json")
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// ListRuns returns stored runs, newest first
func (fs *FileStorage) ListRuns(limit int) ([]RunRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	files, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	runs := []RunRecord{}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.baseDir, file.Name()))
		if err != nil {
			continue // Skip files that can't be read
		}
		var run RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			continue // Skip invalid JSON files
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// CleanupOldEntries removes runs that started before now - olderThan
func (fs *FileStorage) CleanupOldEntries(olderThan time.Duration) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	files, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	var errs []string
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		startedAt, err := time.Parse(fileTimeLayout, strings.TrimSuffix(name, ".json"))
		if err != nil || !startedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fs.baseDir, name)); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to remove old history files: %s", strings.Join(errs, "; "))
	}
	return nil
}

// sanitizeFilename replaces characters that might be problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}
