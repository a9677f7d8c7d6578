package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/skilltree/backend/internal/models"
)

// IdentifierClaimsCollection holds one document per claimed short identifier.
const IdentifierClaimsCollection = "profile_identifiers"

// FirestoreStore keeps profiles in Firestore. Firestore has no secondary unique
// constraints, so each insert also creates a claim document whose id is derived from the
// short identifier. Both writes share a transaction; Create fails with AlreadyExists when
// the claim is held, which makes the pair an atomic create-if-absent.
type FirestoreStore struct {
	client   *firestore.Client
	profiles *firestore.CollectionRef
	claims   *firestore.CollectionRef
}

type firestoreProfileDoc struct {
	OwnerID         string    `firestore:"owner_id"`
	ShortIdentifier string    `firestore:"short_identifier"`
	DisplayName     string    `firestore:"display_name"`
	Bio             string    `firestore:"bio"`
	ImageURL        string    `firestore:"image_url"`
	CreatedAt       time.Time `firestore:"created_at"`
}

type firestoreClaimDoc struct {
	ProfileID string    `firestore:"profile_id"`
	OwnerID   string    `firestore:"owner_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:   client,
		profiles: client.Collection(ProfilesCollection),
		claims:   client.Collection(IdentifierClaimsCollection),
	}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// claimID avoids Firestore's reserved "__name__" document ids.
func claimID(shortIdentifier string) string {
	return "sid_" + shortIdentifier
}

func (s *FirestoreStore) Insert(ctx context.Context, p *models.Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := s.profiles.NewDoc()
	claim := s.claims.Doc(claimID(p.ShortIdentifier))

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(claim, firestoreClaimDoc{
			ProfileID: ref.ID,
			OwnerID:   p.OwnerID,
			CreatedAt: p.CreatedAt,
		}); err != nil {
			return err
		}
		return tx.Create(ref, firestoreProfileDoc{
			OwnerID:         p.OwnerID,
			ShortIdentifier: p.ShortIdentifier,
			DisplayName:     p.DisplayName,
			Bio:             p.Bio,
			ImageURL:        p.ImageURL,
			CreatedAt:       p.CreatedAt,
		})
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("create profile: %w", err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	snap, err := s.profiles.Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return snapshotToProfile(snap)
}

func (s *FirestoreStore) FindEqual(ctx context.Context, field Field, value string) ([]*models.Profile, error) {
	if err := field.validate(); err != nil {
		return nil, err
	}

	iter := s.profiles.Where(string(field), "==", value).Documents(ctx)
	defer iter.Stop()

	out := make([]*models.Profile, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query profiles: %w", err)
		}
		p, err := snapshotToProfile(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	// Ordering in the query would need a composite index per field.
	sortProfiles(out)
	return out, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	ref := s.profiles.Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc firestoreProfileDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		return tx.Delete(s.claims.Doc(claimID(doc.ShortIdentifier)))
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func snapshotToProfile(snap *firestore.DocumentSnapshot) (*models.Profile, error) {
	var doc firestoreProfileDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", snap.Ref.ID, err)
	}
	return &models.Profile{
		ID:              snap.Ref.ID,
		OwnerID:         doc.OwnerID,
		ShortIdentifier: doc.ShortIdentifier,
		DisplayName:     doc.DisplayName,
		Bio:             doc.Bio,
		ImageURL:        doc.ImageURL,
		CreatedAt:       doc.CreatedAt.UTC(),
	}, nil
}
