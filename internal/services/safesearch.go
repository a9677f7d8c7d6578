package services

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// SafeSearchResult holds Vision likelihood ratings, e.g. "VERY_UNLIKELY" or "LIKELY".
type SafeSearchResult struct {
	Adult    string
	Violence string
	Racy     string
	Spoof    string
	Medical  string
}

// NewVisionDetector builds one Vision client (Application Default Credentials) and returns a
// detector that reuses it for every image.
func NewVisionDetector(ctx context.Context) (SafeSearchDetector, error) {
	svc, err := vision.NewService(ctx, option.WithScopes(vision.CloudPlatformScope))
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return func(ctx context.Context, gcsURI string) (*SafeSearchResult, error) {
		return annotateSafeSearch(ctx, svc, gcsURI)
	}, nil
}

func annotateSafeSearch(ctx context.Context, svc *vision.Service, gcsURI string) (*SafeSearchResult, error) {
	batch := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Source: &vision.ImageSource{GcsImageUri: gcsURI}},
			Features: []*vision.Feature{{Type: "SAFE_SEARCH_DETECTION"}},
		}},
	}
	resp, err := svc.Images.Annotate(batch).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 {
		return &SafeSearchResult{}, nil
	}
	if e := resp.Responses[0].Error; e != nil {
		return nil, fmt.Errorf("annotate %s: %s (code %d)", gcsURI, e.Message, e.Code)
	}
	ann := resp.Responses[0].SafeSearchAnnotation
	if ann == nil {
		return &SafeSearchResult{}, nil
	}
	return &SafeSearchResult{
		Adult:    ann.Adult,
		Violence: ann.Violence,
		Racy:     ann.Racy,
		Spoof:    ann.Spoof,
		Medical:  ann.Medical,
	}, nil
}

func likelyOrWorse(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

// IsUnsafe rejects adult, violent or racy content rated LIKELY or above. Spoof and medical
// ratings are informational.
func (r *SafeSearchResult) IsUnsafe() bool {
	return len(r.Reasons()) > 0
}

// Reasons lists the categories that made the image unsafe.
func (r *SafeSearchResult) Reasons() []string {
	var out []string
	for _, c := range []struct {
		name   string
		rating string
	}{
		{"adult", r.Adult},
		{"violence", r.Violence},
		{"racy", r.Racy},
	} {
		if likelyOrWorse(c.rating) {
			out = append(out, c.name)
		}
	}
	return out
}
