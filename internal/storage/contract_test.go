package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilltree/backend/internal/models"
)

type profileStore interface {
	Insert(ctx context.Context, p *models.Profile) (string, error)
	Get(ctx context.Context, id string) (*models.Profile, error)
	FindEqual(ctx context.Context, field Field, value string) ([]*models.Profile, error)
	Delete(ctx context.Context, id string) error
}

func newProfile(owner, identifier string, createdAt time.Time) *models.Profile {
	return &models.Profile{
		OwnerID:         owner,
		ShortIdentifier: identifier,
		DisplayName:     "Name " + identifier,
		Bio:             "Bio for " + identifier,
		CreatedAt:       createdAt.UTC().Truncate(time.Millisecond),
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, open func(t *testing.T) profileStore) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("insert then get", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		in := newProfile("u1", "alice", base)
		in.ImageURL = "https://cdn.example.com/profiles/u1/1_a.png"

		id, err := s.Insert(ctx, in)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "u1", got.OwnerID)
		assert.Equal(t, "alice", got.ShortIdentifier)
		assert.Equal(t, in.DisplayName, got.DisplayName)
		assert.Equal(t, in.Bio, got.Bio)
		assert.Equal(t, in.ImageURL, got.ImageURL)
		assert.True(t, in.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, in.CreatedAt)
	})

	t.Run("duplicate identifier rejected", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		_, err := s.Insert(ctx, newProfile("u1", "dup", base))
		require.NoError(t, err)

		_, err = s.Insert(ctx, newProfile("u2", "dup", base.Add(time.Second)))
		assert.ErrorIs(t, err, ErrDuplicate)

		matches, err := s.FindEqual(ctx, FieldShortIdentifier, "dup")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "u1", matches[0].OwnerID)
	})

	t.Run("identifiers are case sensitive", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		_, err := s.Insert(ctx, newProfile("u1", "Bob", base))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newProfile("u1", "bob", base))
		require.NoError(t, err)
	})

	t.Run("find by owner ordered by creation", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		_, err := s.Insert(ctx, newProfile("u1", "second", base.Add(time.Minute)))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newProfile("u1", "first", base))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newProfile("u2", "other", base))
		require.NoError(t, err)

		got, err := s.FindEqual(ctx, FieldOwnerID, "u1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "first", got[0].ShortIdentifier)
		assert.Equal(t, "second", got[1].ShortIdentifier)

		none, err := s.FindEqual(ctx, FieldOwnerID, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("unsupported field", func(t *testing.T) {
		s := open(t)
		_, err := s.FindEqual(context.Background(), Field("display_name"), "x")
		assert.ErrorIs(t, err, ErrUnsupportedField)
	})

	t.Run("delete frees identifier", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		id, err := s.Insert(ctx, newProfile("u1", "reuse", base))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, id))
		_, err = s.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)

		_, err = s.Insert(ctx, newProfile("u2", "reuse", base))
		assert.NoError(t, err)
	})

	t.Run("get missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(context.Background(), "does-not-exist")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent inserts admit one winner", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		const n = 8

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Insert(ctx, newProfile("racer", "contested", base))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrDuplicate)
		}
		assert.Equal(t, 1, wins)

		matches, err := s.FindEqual(ctx, FieldShortIdentifier, "contested")
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := open(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Insert(ctx, newProfile("u1", "late", base))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
