package services

import (
	"context"
	"time"

	"github.com/skilltree/backend/internal/models"
	"github.com/skilltree/backend/internal/storage"
)

// ProfileStore is the record store contract the registry depends on. Insert must fail
// with storage.ErrDuplicate when the short identifier is already held.
type ProfileStore interface {
	Insert(ctx context.Context, p *models.Profile) (string, error)
	Get(ctx context.Context, id string) (*models.Profile, error)
	FindEqual(ctx context.Context, field storage.Field, value string) ([]*models.Profile, error)
	Delete(ctx context.Context, id string) error
}

// IdentifierGuard answers whether a short identifier is currently unclaimed. It is a
// point-in-time read, not a reservation; the store's insert is what enforces uniqueness.
type IdentifierGuard struct {
	store   ProfileStore
	timeout time.Duration
}

func NewIdentifierGuard(store ProfileStore, timeout time.Duration) *IdentifierGuard {
	return &IdentifierGuard{store: store, timeout: timeout}
}

// IsAvailable reports true iff no profile holds candidate. A failed read is returned as
// an error, never as "available".
func (g *IdentifierGuard) IsAvailable(ctx context.Context, candidate string) (bool, error) {
	callCtx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	matches, err := g.store.FindEqual(callCtx, storage.FieldShortIdentifier, candidate)
	if err != nil {
		return false, storeError(callCtx, "check identifier", err)
	}
	return len(matches) == 0, nil
}
