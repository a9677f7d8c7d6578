package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/skilltree/backend/internal/models"
)

// MongoStore keeps profiles in a MongoDB collection. A unique index on short_identifier
// turns concurrent claims of the same identifier into a duplicate-key error.
type MongoStore struct {
	client      *mongo.Client
	profilesCol *mongo.Collection
}

type mongoProfileDoc struct {
	ID              string    `bson:"_id"`
	OwnerID         string    `bson:"owner_id"`
	ShortIdentifier string    `bson:"short_identifier"`
	DisplayName     string    `bson:"display_name"`
	Bio             string    `bson:"bio"`
	ImageURL        string    `bson:"image_url,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
}

type MongoConfig struct {
	URI      string
	Database string
	// ForceTLS12 pins TLS 1.2; some Atlas deployments fail negotiation otherwise.
	ForceTLS12 bool
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("mongo uri and database are required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ForceTLS12 {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s := NewMongoStoreFromCollection(client.Database(cfg.Database).Collection(ProfilesCollection))
	s.client = client

	// Unlike other indexes, the unique identifier index is load-bearing: refuse to start without it.
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Printf("MongoDB connected (profiles): db=%s", cfg.Database)
	return s, nil
}

// NewMongoStoreFromCollection wraps an existing collection handle. Close is a no-op.
func NewMongoStoreFromCollection(col *mongo.Collection) *MongoStore {
	return &MongoStore{profilesCol: col}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.profilesCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "short_identifier", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_short_identifier"),
	}); err != nil {
		return fmt.Errorf("create short_identifier index: %w", err)
	}

	// Best-effort. Listing by owner still works without it, only slower.
	if _, err := s.profilesCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		log.Printf("[mongo] owner index: %v", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Insert(ctx context.Context, p *models.Profile) (string, error) {
	doc := mongoProfileDoc{
		ID:              uuid.New().String(),
		OwnerID:         p.OwnerID,
		ShortIdentifier: p.ShortIdentifier,
		DisplayName:     p.DisplayName,
		Bio:             p.Bio,
		ImageURL:        p.ImageURL,
		CreatedAt:       p.CreatedAt,
	}
	if _, err := s.profilesCol.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	return doc.ID, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	var doc mongoProfileDoc
	if err := s.profilesCol.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return profileDocToModel(doc), nil
}

func (s *MongoStore) FindEqual(ctx context.Context, field Field, value string) ([]*models.Profile, error) {
	if err := field.validate(); err != nil {
		return nil, err
	}

	cur, err := s.profilesCol.Find(
		ctx,
		bson.M{string(field): value},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*models.Profile, 0)
	for cur.Next(ctx) {
		var doc mongoProfileDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, profileDocToModel(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.profilesCol.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func profileDocToModel(d mongoProfileDoc) *models.Profile {
	return &models.Profile{
		ID:              d.ID,
		OwnerID:         d.OwnerID,
		ShortIdentifier: d.ShortIdentifier,
		DisplayName:     d.DisplayName,
		Bio:             d.Bio,
		ImageURL:        d.ImageURL,
		CreatedAt:       d.CreatedAt.UTC(),
	}
}
