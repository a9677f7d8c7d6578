package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/skilltree/backend/internal/models"
)

const snapshotVersion = 1

// snapshot is the on-disk layout of a JSON-persisted profiles collection.
type snapshot struct {
	Version  int               `json:"version"`
	Profiles []*models.Profile `json:"profiles"`
}

// JSONStore persists a snapshot of the profiles collection to a single JSON file.
type JSONStore struct {
	mu       sync.Mutex
	filePath string
}

func NewJSONStore(dataDir, filename string) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &JSONStore{
		filePath: filepath.Join(dataDir, filename),
	}, nil
}

// Load returns the persisted profiles. A missing file is an empty collection.
func (s *JSONStore) Load() ([]*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var snap snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.filePath, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("decode %s: unsupported snapshot version %d", s.filePath, snap.Version)
	}
	return snap.Profiles, nil
}

// Save replaces the file contents. Writes go to a temp file first, then rename.
func (s *JSONStore) Save(profiles []*models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tempFile := s.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snapshot{Version: snapshotVersion, Profiles: profiles}); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}
	return os.Rename(tempFile, s.filePath)
}

func (s *JSONStore) Path() string {
	return s.filePath
}
