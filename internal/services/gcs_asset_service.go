package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const downloadTokenKey = "firebaseStorageDownloadTokens"

// GCSAssetService uploads profile images to a Firebase Storage (GCS) bucket and returns
// Firebase download URLs. With a moderator attached, bytes land under pending/ first and
// are only promoted to their final path once SafeSearch clears them.
type GCSAssetService struct {
	gcs       *storage.Client
	bucket    string
	moderator *ModerationService
}

func NewGCSAssetService(ctx context.Context, bucket string, moderate bool) (*GCSAssetService, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("assets: storage client: %w", err)
	}
	svc := &GCSAssetService{gcs: client, bucket: bucket}
	if moderate {
		detect, err := NewVisionDetector(ctx)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("assets: %w", err)
		}
		svc.moderator = NewModerationService(client, bucket, detect)
	}
	return svc, nil
}

func (s *GCSAssetService) Close() error {
	return s.gcs.Close()
}

func (s *GCSAssetService) Upload(ctx context.Context, assetPath string, contentType string, data []byte) (string, error) {
	name := assetPath
	if s.moderator != nil {
		name = pendingPrefix + assetPath
	}
	token := newToken()

	w := s.gcs.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		downloadTokenKey: token,
		"type":           "profile_image",
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", name, err)
	}

	if s.moderator == nil {
		return firebaseDownloadURL(s.bucket, assetPath, token), nil
	}
	res, err := s.moderator.ModerateAndPromote(ctx, name)
	if err != nil {
		return "", err
	}
	return res.ApprovedURL, nil
}

func (s *GCSAssetService) List(ctx context.Context, prefix string) ([]AssetObject, error) {
	it := s.gcs.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := make([]AssetObject, 0)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		obj := AssetObject{Path: attrs.Name, Created: attrs.Created}
		for _, tok := range strings.Split(attrs.Metadata[downloadTokenKey], ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				obj.URLs = append(obj.URLs, firebaseDownloadURL(s.bucket, attrs.Name, tok))
			}
		}
		out = append(out, obj)
	}
	return out, nil
}

func (s *GCSAssetService) Delete(ctx context.Context, assetPath string) error {
	err := s.gcs.Bucket(s.bucket).Object(assetPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		log.Printf("[assets] delete failed path=%s err=%v", assetPath, err)
		return err
	}
	return nil
}

func newToken() string {
	return uuid.NewString()
}
