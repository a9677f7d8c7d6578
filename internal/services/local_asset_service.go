package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidAssetPath = errors.New("invalid asset path")

// LocalAssetService writes uploads under uploadDir; cmd/server serves that directory at
// /uploads/.
type LocalAssetService struct {
	uploadDir string
	baseURL   string
}

// NewLocalAssetService creates uploadDir if needed. publicBaseURL is the externally
// reachable server origin, e.g. "http://localhost:8080".
func NewLocalAssetService(uploadDir, publicBaseURL string) (*LocalAssetService, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalAssetService{
		uploadDir: uploadDir,
		baseURL:   strings.TrimRight(publicBaseURL, "/") + "/uploads/",
	}, nil
}

func (s *LocalAssetService) Upload(ctx context.Context, assetPath string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := s.resolve(assetPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return s.URLFor(assetPath), nil
}

// URLFor returns the public URL an upload at assetPath is served from.
func (s *LocalAssetService) URLFor(assetPath string) string {
	return s.baseURL + strings.TrimPrefix((&url.URL{Path: assetPath}).EscapedPath(), "/")
}

func (s *LocalAssetService) List(ctx context.Context, prefix string) ([]AssetObject, error) {
	root, err := s.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, err
	}
	out := make([]AssetObject, 0)
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.uploadDir, p)
		if err != nil {
			return err
		}
		assetPath := filepath.ToSlash(rel)
		out = append(out, AssetObject{
			Path:    assetPath,
			URLs:    []string{s.URLFor(assetPath)},
			Created: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return out, nil
}

func (s *LocalAssetService) Delete(ctx context.Context, assetPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(assetPath)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalAssetService) resolve(assetPath string) (string, error) {
	clean := path.Clean("/" + assetPath)[1:]
	if clean == "" || clean != assetPath || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetPath, assetPath)
	}
	return filepath.Join(s.uploadDir, filepath.FromSlash(clean)), nil
}
