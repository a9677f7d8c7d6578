package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/skilltree/backend/internal/models"
)

// MemoryStore keeps profiles in process memory. The identifier index is checked and
// updated under the same lock as the insert, which makes Insert an atomic
// create-if-absent. When a JSONStore is attached every mutation is flushed to disk.
type MemoryStore struct {
	mu           sync.RWMutex
	profiles     map[string]*models.Profile // id -> profile
	byIdentifier map[string]string          // short identifier -> id
	persist      *JSONStore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:     make(map[string]*models.Profile),
		byIdentifier: make(map[string]string),
	}
}

// NewFileStore returns a MemoryStore loaded from and persisted to dataDir/profiles.json.
func NewFileStore(dataDir string) (*MemoryStore, error) {
	js, err := NewJSONStore(dataDir, ProfilesCollection+".json")
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	s.persist = js
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory state with the snapshot on disk. Another process may be
// writing the same file, so readers that need its changes (the asset sweeper) reload
// before each pass. A store without a snapshot is left unchanged.
func (s *MemoryStore) Reload() error {
	if s.persist == nil {
		return nil
	}
	existing, err := s.persist.Load()
	if err != nil {
		return err
	}

	profiles := make(map[string]*models.Profile, len(existing))
	byIdentifier := make(map[string]string, len(existing))
	for _, p := range existing {
		if _, taken := byIdentifier[p.ShortIdentifier]; taken {
			return fmt.Errorf("load %s: %w: %q", s.persist.Path(), ErrDuplicate, p.ShortIdentifier)
		}
		profiles[p.ID] = p
		byIdentifier[p.ShortIdentifier] = p.ID
	}

	s.mu.Lock()
	s.profiles = profiles
	s.byIdentifier = byIdentifier
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, p *models.Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byIdentifier[p.ShortIdentifier]; taken {
		return "", ErrDuplicate
	}

	rec := cloneProfile(p)
	rec.ID = uuid.New().String()
	s.profiles[rec.ID] = rec
	s.byIdentifier[rec.ShortIdentifier] = rec.ID

	if err := s.flushLocked(); err != nil {
		delete(s.profiles, rec.ID)
		delete(s.byIdentifier, rec.ShortIdentifier)
		return "", err
	}
	return rec.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *MemoryStore) FindEqual(ctx context.Context, field Field, value string) ([]*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := field.validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Profile, 0)
	for _, p := range s.profiles {
		if fieldValue(p, field) == value {
			out = append(out, cloneProfile(p))
		}
	}
	sortProfiles(out)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.profiles, id)
	delete(s.byIdentifier, p.ShortIdentifier)

	if err := s.flushLocked(); err != nil {
		s.profiles[id] = p
		s.byIdentifier[p.ShortIdentifier] = id
		return err
	}
	return nil
}

func (s *MemoryStore) flushLocked() error {
	if s.persist == nil {
		return nil
	}
	all := make([]*models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		all = append(all, p)
	}
	sortProfiles(all)
	if err := s.persist.Save(all); err != nil {
		return fmt.Errorf("persist profiles: %w", err)
	}
	return nil
}
