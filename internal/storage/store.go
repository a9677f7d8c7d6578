// Package storage holds the record store adapters for the profiles collection.
package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/skilltree/backend/internal/models"
)

// ProfilesCollection is the collection (table) name used by every backend.
const ProfilesCollection = "profiles"

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by Insert when another record already holds the short identifier.
	ErrDuplicate        = errors.New("short identifier already exists")
	ErrUnsupportedField = errors.New("unsupported query field")
)

// Field names a profile attribute that supports equality queries.
type Field string

const (
	FieldOwnerID         Field = "owner_id"
	FieldShortIdentifier Field = "short_identifier"
)

func (f Field) validate() error {
	switch f {
	case FieldOwnerID, FieldShortIdentifier:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedField, string(f))
}

func fieldValue(p *models.Profile, f Field) string {
	switch f {
	case FieldOwnerID:
		return p.OwnerID
	case FieldShortIdentifier:
		return p.ShortIdentifier
	}
	return ""
}

// sortProfiles orders by creation time, then id, so repeated queries are stable.
func sortProfiles(out []*models.Profile) {
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func cloneProfile(p *models.Profile) *models.Profile {
	c := *p
	return &c
}
