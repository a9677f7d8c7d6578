package models

import "time"

// Profile is a public profile bound to a unique short identifier. Records are created once
// and never updated; ID is assigned by the record store.
type Profile struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	ShortIdentifier string    `json:"short_identifier"`
	DisplayName     string    `json:"display_name"`
	Bio             string    `json:"bio"`
	ImageURL        string    `json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// PublicProfile is what anonymous viewers get when resolving an identifier (no owner id).
type PublicProfile struct {
	ShortIdentifier string    `json:"short_identifier"`
	DisplayName     string    `json:"display_name"`
	Bio             string    `json:"bio"`
	ImageURL        string    `json:"image_url,omitempty"`
	PublicURL       string    `json:"public_url"`
	MemberSince     time.Time `json:"member_since"`
}

// OwnedProfile is returned to the owner after create/list.
type OwnedProfile struct {
	Profile
	PublicURL string `json:"public_url"`
}

func (p *Profile) Public(publicURL string) PublicProfile {
	return PublicProfile{
		ShortIdentifier: p.ShortIdentifier,
		DisplayName:     p.DisplayName,
		Bio:             p.Bio,
		ImageURL:        p.ImageURL,
		PublicURL:       publicURL,
		MemberSince:     p.CreatedAt,
	}
}

// ImageUpload carries raw image bytes submitted with a create request.
type ImageUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type CreateProfileRequest struct {
	ShortIdentifier string       `json:"short_identifier"`
	DisplayName     string       `json:"display_name"`
	Bio             string       `json:"bio"`
	Image           *ImageUpload `json:"image,omitempty"`
}

type AvailabilityResponse struct {
	ShortIdentifier string `json:"short_identifier"`
	Available       bool   `json:"available"`
}
