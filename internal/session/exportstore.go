package session

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/HarborC/kalibrlib/internal/export"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/labstack/gommon/log"
)

// tmpSuffix marks an export that is still being written.
const tmpSuffix = ".tmp"

// ExportStore keeps DuckDB exports of IMU channels, one database per
// stored container and channel, so a channel is exported only once.
// Exports are written under a temporary name and only renamed into place
// by MarkComplete, so a failed export never looks finished.
type ExportStore struct {
	dir    string
	opts   export.StoreOptions
	mu     sync.RWMutex
	cache  map[string]string // key -> db path
	logger *log.Logger
}

// NewExportStore creates the store and scans dir for earlier exports.
func NewExportStore(dir string, opts export.StoreOptions) (*ExportStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	s := &ExportStore{
		dir:    dir,
		opts:   opts,
		cache:  make(map[string]string),
		logger: logging.New("exports"),
	}
	s.scanExisting()
	return s, nil
}

// exportKey joins a file id and an escaped channel into a file-name-safe
// key. Escaping keeps distinct channels distinct.
func exportKey(fileID, channel string) string {
	return fileID + "__" + url.PathEscape(channel)
}

func (s *ExportStore) scanExisting() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warnf("failed to scan export directory: %v", err)
		return
	}
	stale := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, ".duckdb"+tmpSuffix) {
			os.RemoveAll(filepath.Join(s.dir, name))
			stale++
			continue
		}
		if entry.IsDir() || filepath.Ext(name) != ".duckdb" || !strings.Contains(name, "__") {
			continue
		}
		s.cache[strings.TrimSuffix(name, ".duckdb")] = filepath.Join(s.dir, name)
	}
	if stale > 0 {
		s.logger.Warnf("removed %d unfinished export files", stale)
	}
	s.logger.Infof("scanned %d existing exports", len(s.cache))
}

// DBPath returns where the export of fileID/channel lives.
func (s *ExportStore) DBPath(fileID, channel string) string {
	return filepath.Join(s.dir, exportKey(fileID, channel)+".duckdb")
}

// Has reports whether a finished export exists.
func (s *ExportStore) Has(fileID, channel string) bool {
	s.mu.RLock()
	path, ok := s.cache[exportKey(fileID, channel)]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		s.mu.Lock()
		delete(s.cache, exportKey(fileID, channel))
		s.mu.Unlock()
		return false
	}
	return true
}

// Create starts a new export under a temporary name. The earlier export,
// if any, stops being served until MarkComplete replaces it.
func (s *ExportStore) Create(fileID, channel string) (*export.ImuStore, error) {
	s.mu.Lock()
	delete(s.cache, exportKey(fileID, channel))
	s.mu.Unlock()
	return export.NewImuStore(s.DBPath(fileID, channel)+tmpSuffix, s.opts)
}

// MarkComplete publishes an export created by Create. The store returned
// by Create must be closed first.
func (s *ExportStore) MarkComplete(fileID, channel string) error {
	final := s.DBPath(fileID, channel)
	if err := os.Rename(final+tmpSuffix, final); err != nil {
		return fmt.Errorf("publishing export: %w", err)
	}
	if _, err := os.Stat(final + tmpSuffix + ".wal"); err == nil {
		if err := os.Rename(final+tmpSuffix+".wal", final+".wal"); err != nil {
			return fmt.Errorf("publishing export log: %w", err)
		}
	}
	s.mu.Lock()
	s.cache[exportKey(fileID, channel)] = final
	s.mu.Unlock()
	return nil
}

// Discard removes the files of an export that did not finish.
func (s *ExportStore) Discard(fileID, channel string) {
	tmp := s.DBPath(fileID, channel) + tmpSuffix
	os.Remove(tmp)
	os.Remove(tmp + ".wal")
}

// Open opens a finished export read-only. It returns nil, nil when there
// is none.
func (s *ExportStore) Open(fileID, channel string) (*export.ImuStore, error) {
	if !s.Has(fileID, channel) {
		return nil, nil
	}
	return export.OpenImuStoreReadOnly(s.DBPath(fileID, channel))
}

// DeleteFile removes every export of fileID.
func (s *ExportStore) DeleteFile(fileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, path := range s.cache {
		if strings.HasPrefix(key, fileID+"__") {
			os.Remove(path)
			delete(s.cache, key)
			removed++
		}
	}
	return removed
}

// List returns the keys of all finished exports.
func (s *ExportStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.cache))
	for key := range s.cache {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CleanupOrphaned removes exports whose container is no longer stored.
func (s *ExportStore) CleanupOrphaned(fileIDs []string) int {
	valid := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		valid[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, path := range s.cache {
		fileID, _, _ := strings.Cut(key, "__")
		if !valid[fileID] {
			os.Remove(path)
			delete(s.cache, key)
			removed++
			s.logger.Infof("cleaned up orphaned export %s", key)
		}
	}
	return removed
}
