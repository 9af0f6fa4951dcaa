package storage

import (
	"os"
	"testing"
)

func TestDefaultEngineOptions(t *testing.T) {
	opts := DefaultEngineOptions()
	if opts.HashMB != 64 {
		t.Errorf("Expected default HashMB 64, got %d", opts.HashMB)
	}
	if opts.Debug {
		t.Errorf("Expected debug disabled by default")
	}
}

func TestStorageSaveLoad(t *testing.T) {
	dataDir, err := os.MkdirTemp("", "barbel-storage-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dataDir)

	t.Setenv("XDG_DATA_HOME", dataDir)

	s, err := NewStorage()
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer s.Close()

	opts := &EngineOptions{HashMB: 256, Debug: true}
	if err := s.SaveOptions(opts); err != nil {
		t.Fatalf("SaveOptions failed: %v", err)
	}

	loaded, err := s.LoadOptions()
	if err != nil {
		t.Fatalf("LoadOptions failed: %v", err)
	}
	if loaded.HashMB != 256 || !loaded.Debug {
		t.Errorf("LoadOptions returned %+v, want HashMB=256 Debug=true", loaded)
	}
}

func TestStorageLoadDefaultsWhenEmpty(t *testing.T) {
	dataDir, err := os.MkdirTemp("", "barbel-storage-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dataDir)

	t.Setenv("XDG_DATA_HOME", dataDir)

	s, err := NewStorage()
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer s.Close()

	opts, err := s.LoadOptions()
	if err != nil {
		t.Fatalf("LoadOptions failed: %v", err)
	}
	if opts.HashMB != 64 || opts.Debug {
		t.Errorf("LoadOptions on empty store returned %+v, want defaults", opts)
	}
}

func TestDataPaths(t *testing.T) {
	dataDir, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir failed: %v", err)
	}
	if dataDir == "" {
		t.Error("GetDataDir returned empty path")
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("Data directory was not created: %s", dataDir)
	}
}
