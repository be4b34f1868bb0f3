package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/google/uuid"
)

// Errors returned by Store implementations.
var (
	ErrNotFound     = errors.New("file not found")
	ErrNotContainer = errors.New("not a container file")
)

// File status values.
const (
	StatusIndexed = "indexed"
)

// Store defines the interface for container file storage.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	SaveFile(name, path string) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
}

// LocalStore implements Store using the local filesystem. Every stored
// file is checked to be a readable container before it is accepted.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a store rooted at uploadDir, creating it if needed.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}, nil
}

// Save stores a container read from r.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating container file: %w", err)
	}
	size, err := io.Copy(f, r)
	f.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing container: %w", err)
	}

	return s.register(id, name, path, size)
}

// SaveFile moves the container at path into the store. When the file
// cannot be renamed across devices it is copied and the source removed.
func (s *LocalStore) SaveFile(name, path string) (*models.FileInfo, error) {
	id := uuid.New().String()
	dst := filepath.Join(s.uploadDir, id)
	if err := os.Rename(path, dst); err == nil {
		fi, err := os.Stat(dst)
		if err != nil {
			return nil, fmt.Errorf("stat stored file: %w", err)
		}
		return s.register(id, name, dst, fi.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := s.Save(name, f)
	f.Close()
	if err == nil {
		os.Remove(path)
	}
	return info, err
}

// register validates the file at path and records it.
func (s *LocalStore) register(id, name, path string, size int64) (*models.FileInfo, error) {
	c, err := container.Open(path, nil)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	containerID := c.ID().String()
	c.Close()

	info := &models.FileInfo{
		ID:          id,
		Name:        name,
		Size:        size,
		UploadedAt:  time.Now(),
		ContainerID: containerID,
		Status:      StatusIndexed,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get returns the metadata of a stored container.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// List returns up to limit containers, newest first.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a container and its metadata.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting container: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Rename changes the display name; the stored file keeps its id.
func (s *LocalStore) Rename(id string, newName string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info.Name = newName
	return info, nil
}

// GetFilePath returns the path of a stored container.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return filepath.Join(s.uploadDir, id), nil
}

// SaveChunk stores one part of a chunked upload under chunks/<uploadID>.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	if _, err := uuid.Parse(uploadID); err != nil {
		return fmt.Errorf("invalid upload id %q", uploadID)
	}
	chunkDir := filepath.Join(s.uploadDir, "chunks", uploadID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return nil
}

// CompleteChunkedUpload assembles all chunks into a container file.
func (s *LocalStore) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, fmt.Errorf("invalid upload id %q", uploadID)
	}
	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)
	chunkDir := filepath.Join(s.uploadDir, "chunks", uploadID)
	defer os.RemoveAll(chunkDir)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("assembling chunked upload: %w", err)
	}

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		n, err := appendChunk(out, filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i)))
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		totalSize += n
	}
	if err := out.Close(); err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("closing final file: %w", err)
	}

	return s.register(id, name, finalPath, totalSize)
}

func appendChunk(out io.Writer, path string) (int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return io.Copy(out, in)
}
