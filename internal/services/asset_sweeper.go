package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/skilltree/backend/internal/storage"
)

// AssetObject is one stored upload as seen by the sweeper.
type AssetObject struct {
	Path string
	// URLs are every public URL the object can be referenced by.
	URLs    []string
	Created time.Time
}

// AssetLister is implemented by asset backends that support reconciliation.
type AssetLister interface {
	List(ctx context.Context, prefix string) ([]AssetObject, error)
	Delete(ctx context.Context, path string) error
}

// Reloader is implemented by stores that cache state another process writes, such as the
// file-backed MemoryStore. The sweeper reloads them before every pass.
type Reloader interface {
	Reload() error
}

type SweeperConfig struct {
	// GracePeriod protects uploads whose profile write may still be in flight.
	GracePeriod  time.Duration
	DryRun       bool
	StoreTimeout time.Duration
	Now          func() time.Time
}

type SweepResult struct {
	Scanned    int      `json:"scanned"`
	Referenced int      `json:"referenced"`
	TooRecent  int      `json:"too_recent"`
	Skipped    int      `json:"skipped"`
	Deleted    int      `json:"deleted"`
	Failed     int      `json:"failed"`
	Orphans    []string `json:"orphans"`
}

// AssetSweeper deletes profile images that no profile references anymore: leftovers
// from deleted profiles and from creates whose record write failed after the upload.
type AssetSweeper struct {
	store  ProfileStore
	assets AssetLister
	cfg    SweeperConfig
}

func NewAssetSweeper(store ProfileStore, assets AssetLister, cfg SweeperConfig) *AssetSweeper {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AssetSweeper{store: store, assets: assets, cfg: cfg}
}

// Sweep runs one reconciliation pass. A store failure aborts the pass before anything
// else is deleted, since an unreadable owner cannot prove an asset is unreferenced.
func (s *AssetSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	if r, ok := s.store.(Reloader); ok {
		if err := r.Reload(); err != nil {
			return nil, fmt.Errorf("sweep: reload store: %w", err)
		}
	}

	objects, err := s.assets.List(ctx, AssetPrefix)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	res := &SweepResult{Orphans: []string{}}
	cutoff := s.cfg.Now().Add(-s.cfg.GracePeriod)
	referencedByOwner := map[string]map[string]bool{}

	for _, obj := range objects {
		res.Scanned++
		if obj.Created.After(cutoff) {
			res.TooRecent++
			continue
		}
		owner, ok := ownerFromAssetPath(obj.Path)
		if !ok {
			log.Printf("[sweeper] skipping unrecognized path=%s", obj.Path)
			res.Skipped++
			continue
		}

		refs, ok := referencedByOwner[owner]
		if !ok {
			refs, err = s.ownerImageURLs(ctx, owner)
			if err != nil {
				return res, err
			}
			referencedByOwner[owner] = refs
		}
		if isReferenced(obj, refs) {
			res.Referenced++
			continue
		}

		res.Orphans = append(res.Orphans, obj.Path)
		if s.cfg.DryRun {
			log.Printf("[sweeper] orphan (dry run) path=%s owner=%s", obj.Path, owner)
			continue
		}
		if err := s.assets.Delete(ctx, obj.Path); err != nil {
			log.Printf("[sweeper] delete failed path=%s err=%v", obj.Path, err)
			res.Failed++
			continue
		}
		log.Printf("[sweeper] deleted orphan path=%s owner=%s", obj.Path, owner)
		res.Deleted++
	}

	log.Printf("[sweeper] done scanned=%d referenced=%d too_recent=%d orphans=%d deleted=%d failed=%d dry_run=%v",
		res.Scanned, res.Referenced, res.TooRecent, len(res.Orphans), res.Deleted, res.Failed, s.cfg.DryRun)
	return res, nil
}

func (s *AssetSweeper) ownerImageURLs(ctx context.Context, owner string) (map[string]bool, error) {
	callCtx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	profiles, err := s.store.FindEqual(callCtx, storage.FieldOwnerID, owner)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", storeError(callCtx, "list owner profiles", err))
	}
	refs := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.ImageURL != "" {
			refs[p.ImageURL] = true
		}
	}
	return refs, nil
}

func isReferenced(obj AssetObject, refs map[string]bool) bool {
	for _, u := range obj.URLs {
		if refs[u] {
			return true
		}
	}
	return false
}
