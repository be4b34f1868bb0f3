// manager_test.go - Tests for storage layer
package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

// containerBytes returns a small valid container and its id.
func containerBytes(t *testing.T) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w, err := container.NewWriter(&buf, container.WriterOptions{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	c, err := w.AddConnection("/imu", models.MessageTypeImu)
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if err := w.Write(c, 1, &models.ImuMsg{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes(), w.ID().String()
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves container from reader", func(t *testing.T) {
		store := createTestStore(t)
		data, containerID := containerBytes(t)

		info, err := store.Save("run1.kbag", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "run1.kbag" {
			t.Errorf("Expected name 'run1.kbag', got %v", info.Name)
		}
		if info.Size != int64(len(data)) {
			t.Errorf("Expected size %d, got %d", len(data), info.Size)
		}
		if info.ContainerID != containerID {
			t.Errorf("Expected container id %s, got %s", containerID, info.ContainerID)
		}
		if info.Status != StatusIndexed {
			t.Errorf("Expected status %q, got %q", StatusIndexed, info.Status)
		}

		path, err := store.GetFilePath(info.ID)
		if err != nil {
			t.Fatalf("GetFilePath: %v", err)
		}
		saved, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if !bytes.Equal(saved, data) {
			t.Error("Saved content differs from upload")
		}
	})

	t.Run("rejects non-container data", func(t *testing.T) {
		store := createTestStore(t)

		_, err := store.Save("notes.txt", strings.NewReader("Hello, World!"))
		if !errors.Is(err, ErrNotContainer) {
			t.Fatalf("Expected ErrNotContainer, got %v", err)
		}

		entries, _ := os.ReadDir(store.uploadDir)
		if len(entries) != 0 {
			t.Errorf("Expected rejected upload to be removed, found %d files", len(entries))
		}
		list, _ := store.List(10)
		if len(list) != 0 {
			t.Errorf("Expected no files listed, got %d", len(list))
		}
	})
}

func TestLocalStore_GetAndDelete(t *testing.T) {
	store := createTestStore(t)
	data, _ := containerBytes(t)

	info, err := store.Save("a.kbag", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(info.ID)
	if err != nil || got.ID != info.ID {
		t.Fatalf("Get returned %v, %v", got, err)
	}

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.GetFilePath(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for path, got %v", err)
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	data, _ := containerBytes(t)

	for _, name := range []string{"first", "second", "third"} {
		if _, err := store.Save(name, bytes.NewReader(data)); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(list))
	}
	if list[0].Name != "third" || list[1].Name != "second" {
		t.Errorf("Expected newest first, got %s, %s", list[0].Name, list[1].Name)
	}

	all, _ := store.List(0)
	if len(all) != 3 {
		t.Errorf("Expected 3 files with no limit, got %d", len(all))
	}
}

func TestLocalStore_Rename(t *testing.T) {
	store := createTestStore(t)
	data, _ := containerBytes(t)
	info, _ := store.Save("old", bytes.NewReader(data))

	renamed, err := store.Rename(info.ID, "new")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Name != "new" {
		t.Errorf("Expected name 'new', got %s", renamed.Name)
	}
	if _, err := store.Rename("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_ChunkedUpload(t *testing.T) {
	store := createTestStore(t)
	data, containerID := containerBytes(t)
	uploadID := "0b6f5d5e-8a55-4a3c-9f0e-1c2d3e4f5a6b"

	half := len(data) / 2
	if err := store.SaveChunk(uploadID, 0, bytes.NewReader(data[:half])); err != nil {
		t.Fatalf("SaveChunk 0: %v", err)
	}
	if err := store.SaveChunk(uploadID, 1, bytes.NewReader(data[half:])); err != nil {
		t.Fatalf("SaveChunk 1: %v", err)
	}

	info, err := store.CompleteChunkedUpload(uploadID, "chunked.kbag", 2)
	if err != nil {
		t.Fatalf("CompleteChunkedUpload: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.Size)
	}
	if info.ContainerID != containerID {
		t.Errorf("Expected container id %s, got %s", containerID, info.ContainerID)
	}
	if _, err := os.Stat(filepath.Join(store.uploadDir, "chunks", uploadID)); !os.IsNotExist(err) {
		t.Error("Expected chunk directory to be removed")
	}

	t.Run("missing chunk fails", func(t *testing.T) {
		if err := store.SaveChunk(uploadID, 0, bytes.NewReader(data)); err != nil {
			t.Fatalf("SaveChunk: %v", err)
		}
		if _, err := store.CompleteChunkedUpload(uploadID, "broken", 3); err == nil {
			t.Error("Expected error for missing chunks")
		}
	})

	t.Run("rejects path-like upload ids", func(t *testing.T) {
		if err := store.SaveChunk("../escape", 0, strings.NewReader("x")); err == nil {
			t.Error("Expected error for invalid upload id")
		}
	})
}

func TestLocalStore_SaveFile(t *testing.T) {
	store := createTestStore(t)
	data, containerID := containerBytes(t)

	src := filepath.Join(t.TempDir(), "built.kbag")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	info, err := store.SaveFile("built.kbag", src)
	if err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if info.ContainerID != containerID {
		t.Errorf("ContainerID = %s, want %s", info.ContainerID, containerID)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", info.Size, len(data))
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source file should be moved, stat err = %v", err)
	}
	path, _ := store.GetFilePath(info.ID)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	if _, err := store.SaveFile("gone", src); err == nil {
		t.Error("expected error for missing source")
	}
}
