package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const pendingPrefix = "pending/"

// ModerationResult holds the outcome of a successful moderation pass.
type ModerationResult struct {
	ApprovedURL string
}

// SafeSearchDetector classifies the image at a gs:// URI.
type SafeSearchDetector func(ctx context.Context, gcsURI string) (*SafeSearchResult, error)

// ModerationService runs SafeSearch on freshly uploaded images and promotes safe ones
// from pending/ to their final path inline.
type ModerationService struct {
	gcs    *storage.Client
	bucket string
	detect SafeSearchDetector
}

func NewModerationService(client *storage.Client, bucket string, detect SafeSearchDetector) *ModerationService {
	return &ModerationService{
		gcs:    client,
		bucket: bucket,
		detect: detect,
	}
}

// ModerateAndPromote runs SafeSearch on a pending/ object. Safe images are copied to the
// final path with a fresh download token and the pending copy removed. Unsafe images are
// deleted and ErrImageRejected is returned.
func (m *ModerationService) ModerateAndPromote(ctx context.Context, pendingPath string) (*ModerationResult, error) {
	if !strings.HasPrefix(pendingPath, pendingPrefix) {
		return nil, fmt.Errorf("moderation: %q is not a pending object", pendingPath)
	}

	gcsURI := fmt.Sprintf("gs://%s/%s", m.bucket, pendingPath)
	ss, err := m.detect(ctx, gcsURI)
	if err != nil {
		log.Printf("[moderation] SafeSearch error path=%s err=%v", pendingPath, err)
		m.discardPending(ctx, pendingPath)
		return nil, fmt.Errorf("moderation: safesearch: %w", err)
	}

	if ss.IsUnsafe() {
		log.Printf("[moderation] image UNSAFE path=%s reasons=%v", pendingPath, ss.Reasons())
		m.discardPending(ctx, pendingPath)
		return nil, ErrImageRejected
	}

	finalName := strings.TrimPrefix(pendingPath, pendingPrefix)
	token := newToken()
	if err := m.promoteObject(ctx, pendingPath, finalName, token); err != nil {
		m.discardPending(ctx, pendingPath)
		return nil, fmt.Errorf("moderation: promote: %w", err)
	}
	log.Printf("[moderation] image approved %s -> %s", pendingPath, finalName)
	return &ModerationResult{ApprovedURL: firebaseDownloadURL(m.bucket, finalName, token)}, nil
}

// discardPending removes a pending/ object that will never be promoted. The sweeper only
// scans final paths, so anything left here would leak. Runs even if ctx was cancelled.
func (m *ModerationService) discardPending(ctx context.Context, pendingPath string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := m.gcs.Bucket(m.bucket).Object(pendingPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		log.Printf("[moderation] delete failed path=%s err=%v", pendingPath, err)
	}
}

func (m *ModerationService) promoteObject(ctx context.Context, from, to, token string) error {
	b := m.gcs.Bucket(m.bucket)
	src := b.Object(from)
	dst := b.Object(to)

	// Freshly written objects are occasionally not readable yet.
	var attrs *storage.ObjectAttrs
	var err error
	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		attrs, err = src.Attrs(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrObjectNotExist) && attempt < maxRetries-1 {
			backoff := time.Duration(attempt+1) * 500 * time.Millisecond
			log.Printf("[moderation] object not found yet, retrying in %v (attempt %d/%d): %s", backoff, attempt+1, maxRetries, from)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return fmt.Errorf("source attrs: %w", err)
	}

	md := map[string]string{}
	for k, v := range attrs.Metadata {
		md[k] = v
	}
	md["moderation"] = "approved"
	md[downloadTokenKey] = token

	copier := dst.CopierFrom(src)
	copier.ContentType = attrs.ContentType
	copier.Metadata = md
	if _, err := copier.Run(ctx); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return src.Delete(ctx)
}

func firebaseDownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket,
		url.PathEscape(objectName),
		url.QueryEscape(token),
	)
}
