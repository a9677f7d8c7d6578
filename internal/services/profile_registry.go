package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/skilltree/backend/internal/models"
	"github.com/skilltree/backend/internal/storage"
)

// AssetUploader stores raw bytes under a caller-chosen path and returns a public URL.
type AssetUploader interface {
	Upload(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// AssetPrefix is the root under which every profile image is stored.
const AssetPrefix = "profiles/"

type RegistryConfig struct {
	// RequireBio rejects empty bios with ErrInvalidInput.
	RequireBio    bool
	StoreTimeout  time.Duration
	UploadTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type CreateProfileInput struct {
	ShortIdentifier string
	DisplayName     string
	Bio             string
	Image           *models.ImageUpload
}

// ProfileRegistry creates, lists, deletes and resolves profiles. The caller's account id
// is always passed in explicitly; an empty id means an anonymous caller.
type ProfileRegistry struct {
	store  ProfileStore
	guard  *IdentifierGuard
	assets AssetUploader
	cfg    RegistryConfig
}

// NewProfileRegistry builds a registry. assets may be nil, in which case create requests
// that carry an image fail with ErrAssetUploadFailed.
func NewProfileRegistry(store ProfileStore, assets AssetUploader, cfg RegistryConfig) *ProfileRegistry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ProfileRegistry{
		store:  store,
		guard:  NewIdentifierGuard(store, cfg.StoreTimeout),
		assets: assets,
		cfg:    cfg,
	}
}

// Create claims in.ShortIdentifier for ownerID. Validation failures happen before any
// write. If the image upload succeeds but the record write fails, the asset is left in
// place and logged for the sweeper.
func (r *ProfileRegistry) Create(ctx context.Context, ownerID string, in CreateProfileInput) (*models.Profile, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateCreateInput(in, r.cfg.RequireBio); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(in.ShortIdentifier); err != nil {
		return nil, err
	}

	available, err := r.guard.IsAvailable(ctx, in.ShortIdentifier)
	if err != nil {
		log.Printf("[Registry] availability check failed owner=%s identifier=%s err=%v", ownerID, in.ShortIdentifier, err)
		return nil, err
	}
	if !available {
		return nil, ErrIdentifierTaken
	}

	now := r.cfg.Now().UTC().Truncate(time.Millisecond)

	var imageURL, imagePath string
	if in.Image != nil && len(in.Image.Data) > 0 {
		imagePath = assetPath(ownerID, now, in.Image.Filename)
		imageURL, err = r.upload(ctx, imagePath, in.Image)
		if err != nil {
			log.Printf("[Registry] image upload failed owner=%s path=%s err=%v", ownerID, imagePath, err)
			return nil, err
		}
	}

	prof := &models.Profile{
		OwnerID:         ownerID,
		ShortIdentifier: in.ShortIdentifier,
		DisplayName:     strings.TrimSpace(in.DisplayName),
		Bio:             strings.TrimSpace(in.Bio),
		ImageURL:        imageURL,
		CreatedAt:       now,
	}

	callCtx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	id, err := r.store.Insert(callCtx, prof)
	if err != nil {
		err = storeError(callCtx, "create profile", err)
		if imagePath != "" {
			log.Printf("[Registry] orphaned asset owner=%s path=%s url=%s err=%v", ownerID, imagePath, imageURL, err)
		}
		if errors.Is(err, ErrIdentifierTaken) {
			log.Printf("[Registry] identifier claimed concurrently owner=%s identifier=%s", ownerID, in.ShortIdentifier)
		}
		return nil, err
	}
	prof.ID = id

	log.Printf("[Registry] profile created id=%s owner=%s identifier=%s", id, ownerID, prof.ShortIdentifier)
	return prof, nil
}

func (r *ProfileRegistry) upload(ctx context.Context, assetPath string, img *models.ImageUpload) (string, error) {
	if r.assets == nil {
		return "", fmt.Errorf("%w: no asset backend configured", ErrAssetUploadFailed)
	}
	callCtx, cancel := withTimeout(ctx, r.cfg.UploadTimeout)
	defer cancel()

	u, err := r.assets.Upload(callCtx, assetPath, img.ContentType, img.Data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("upload image: %w: %w", ErrTimeout, err)
		}
		return "", fmt.Errorf("upload image: %w: %w", ErrAssetUploadFailed, err)
	}
	return u, nil
}

// ListByOwner returns every profile owned by ownerID, possibly none.
func (r *ProfileRegistry) ListByOwner(ctx context.Context, ownerID string) ([]*models.Profile, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthenticated
	}
	callCtx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	profiles, err := r.store.FindEqual(callCtx, storage.FieldOwnerID, ownerID)
	if err != nil {
		return nil, storeError(callCtx, "list profiles", err)
	}
	return profiles, nil
}

// Delete removes profileID after confirming ownerID owns it. The profile's image, if
// any, is not removed.
func (r *ProfileRegistry) Delete(ctx context.Context, ownerID, profileID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrUnauthenticated
	}
	if strings.TrimSpace(profileID) == "" {
		return fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}

	getCtx, cancelGet := withTimeout(ctx, r.cfg.StoreTimeout)
	prof, err := r.store.Get(getCtx, profileID)
	if err != nil {
		err = storeError(getCtx, "load profile", err)
		cancelGet()
		return err
	}
	cancelGet()

	if prof.OwnerID != ownerID {
		log.Printf("[Registry] delete refused id=%s owner=%s caller=%s", profileID, prof.OwnerID, ownerID)
		return ErrNotOwner
	}

	delCtx, cancelDel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancelDel()
	if err := r.store.Delete(delCtx, profileID); err != nil {
		return storeError(delCtx, "delete profile", err)
	}

	log.Printf("[Registry] profile deleted id=%s owner=%s identifier=%s", profileID, ownerID, prof.ShortIdentifier)
	return nil
}

// ResolveByIdentifier looks up a profile for anonymous viewing. If storage-level
// uniqueness was ever bypassed and several records match, the earliest one wins.
func (r *ProfileRegistry) ResolveByIdentifier(ctx context.Context, identifier string) (*models.Profile, error) {
	if ValidateIdentifier(identifier) != nil {
		return nil, ErrNotFound
	}
	callCtx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	matches, err := r.store.FindEqual(callCtx, storage.FieldShortIdentifier, identifier)
	if err != nil {
		return nil, storeError(callCtx, "resolve profile", err)
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	first := matches[0]
	if len(matches) > 1 {
		for _, m := range matches[1:] {
			if m.CreatedAt.Before(first.CreatedAt) || (m.CreatedAt.Equal(first.CreatedAt) && m.ID < first.ID) {
				first = m
			}
		}
		log.Printf("[Registry] uniqueness violation identifier=%s matches=%d chosen=%s", identifier, len(matches), first.ID)
	}
	return first, nil
}

// CheckAvailability validates candidate and reports whether it is currently unclaimed.
// The answer is advisory; Create can still fail with ErrIdentifierTaken.
func (r *ProfileRegistry) CheckAvailability(ctx context.Context, candidate string) (bool, error) {
	if err := ValidateIdentifier(candidate); err != nil {
		return false, err
	}
	return r.guard.IsAvailable(ctx, candidate)
}

// assetPath namespaces uploads as profiles/{ownerId}/{millis}_{name}. The owner segment is
// path-escaped so the sweeper can recover it.
func assetPath(ownerID string, at time.Time, filename string) string {
	return fmt.Sprintf("%s%s/%d_%s", AssetPrefix, url.PathEscape(ownerID), at.UnixMilli(), sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '.', ch == '-', ch == '_':
			b.WriteRune(ch)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "image"
	}
	return out
}

// ownerFromAssetPath is the inverse of assetPath for the owner segment.
func ownerFromAssetPath(p string) (string, bool) {
	rest, ok := strings.CutPrefix(p, AssetPrefix)
	if !ok {
		return "", false
	}
	seg, _, ok := strings.Cut(rest, "/")
	if !ok || seg == "" {
		return "", false
	}
	owner, err := url.PathUnescape(seg)
	if err != nil {
		return "", false
	}
	return owner, true
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeError translates a record store failure into a registry error kind.
func storeError(callCtx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, storage.ErrDuplicate):
		return fmt.Errorf("%s: %w", op, ErrIdentifierTaken)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}
