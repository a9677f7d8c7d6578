package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skilltree/backend/internal/models"
	"github.com/skilltree/backend/internal/storage"
)

var errBackendDown = errors.New("backend down")

// blindStore hides existing records from availability reads, so every caller passes the
// guard and only the store's insert decides the race.
type blindStore struct {
	*storage.MemoryStore
}

func (s blindStore) FindEqual(ctx context.Context, field storage.Field, value string) ([]*models.Profile, error) {
	if field == storage.FieldShortIdentifier {
		return []*models.Profile{}, nil
	}
	return s.MemoryStore.FindEqual(ctx, field, value)
}

// blockingStore never answers before the caller's deadline.
type blockingStore struct{}

func (blockingStore) Insert(ctx context.Context, _ *models.Profile) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingStore) Get(ctx context.Context, _ string) (*models.Profile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) FindEqual(ctx context.Context, _ storage.Field, _ string) ([]*models.Profile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) Delete(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

// faultyStore wraps a MemoryStore and fails selected operations.
type faultyStore struct {
	*storage.MemoryStore
	insertErr error
	findErr   error
	getErr    error
	deleteErr error
}

func (s *faultyStore) Insert(ctx context.Context, p *models.Profile) (string, error) {
	if s.insertErr != nil {
		return "", s.insertErr
	}
	return s.MemoryStore.Insert(ctx, p)
}

func (s *faultyStore) FindEqual(ctx context.Context, field storage.Field, value string) ([]*models.Profile, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryStore.FindEqual(ctx, field, value)
}

func (s *faultyStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *faultyStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, id)
}

// fixedMatchesStore returns the same records for every identifier lookup.
type fixedMatchesStore struct {
	*storage.MemoryStore
	matches []*models.Profile
}

func (s fixedMatchesStore) FindEqual(ctx context.Context, field storage.Field, value string) ([]*models.Profile, error) {
	if field == storage.FieldShortIdentifier {
		return s.matches, nil
	}
	return s.MemoryStore.FindEqual(ctx, field, value)
}

type uploadCall struct {
	Path        string
	ContentType string
	Size        int
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []uploadCall
	err   error
	block bool
}

func (u *fakeUploader) Upload(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	u.mu.Lock()
	u.calls = append(u.calls, uploadCall{Path: path, ContentType: contentType, Size: len(data)})
	u.mu.Unlock()

	if u.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if u.err != nil {
		return "", u.err
	}
	return "https://assets.example.com/" + path, nil
}

func (u *fakeUploader) Calls() []uploadCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]uploadCall(nil), u.calls...)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
