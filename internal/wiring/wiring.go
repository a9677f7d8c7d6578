// Package wiring builds the backends selected by config for the server and sweeper binaries.
package wiring

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/skilltree/backend/internal/config"
	"github.com/skilltree/backend/internal/middleware"
	"github.com/skilltree/backend/internal/services"
	"github.com/skilltree/backend/internal/storage"
)

// Assets is an asset backend that can both upload and be swept.
type Assets interface {
	services.AssetUploader
	services.AssetLister
}

// NewFirebaseApp initializes the Firebase Admin SDK. Explicit credentials JSON wins over
// application default credentials.
func NewFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(cfg.FirebaseCredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	}
	var fbCfg *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	return app, nil
}

// OpenStore opens the configured record store. The returned closer is never nil.
func OpenStore(ctx context.Context, cfg *config.Config, app *firebase.App) (services.ProfileStore, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Printf("[wiring] store=memory (records are lost on restart)")
		return storage.NewMemoryStore(), noop, nil

	case config.StoreFile:
		s, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, noop, err
		}
		log.Printf("[wiring] store=file dir=%s", cfg.DataDir)
		return s, noop, nil

	case config.StoreSQLite:
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		log.Printf("[wiring] store=sqlite path=%s", cfg.SQLitePath)
		return s, func() { _ = s.Close() }, nil

	case config.StoreMongo:
		s, err := storage.NewMongoStore(ctx, storage.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDB,
			ForceTLS12: cfg.MongoForceTLS12,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("mongo store: %w", err)
		}
		return s, func() { _ = s.Close(context.Background()) }, nil

	case config.StoreFirestore:
		if app == nil {
			return nil, noop, fmt.Errorf("firestore store requires a firebase app")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("firestore client: %w", err)
		}
		s := storage.NewFirestoreStore(client)
		log.Printf("[wiring] store=firestore project=%s", cfg.FirebaseProjectID)
		return s, func() { _ = s.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// OpenAssets opens the configured asset backend.
func OpenAssets(ctx context.Context, cfg *config.Config) (Assets, func(), error) {
	noop := func() {}
	switch cfg.AssetBackend {
	case config.AssetsLocal:
		a, err := services.NewLocalAssetService(cfg.UploadDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, noop, err
		}
		log.Printf("[wiring] assets=local dir=%s", cfg.UploadDir)
		return a, noop, nil

	case config.AssetsGCS:
		a, err := services.NewGCSAssetService(ctx, cfg.StorageBucket, cfg.ModerateImages)
		if err != nil {
			return nil, noop, err
		}
		log.Printf("[wiring] assets=gcs bucket=%s moderate=%v", cfg.StorageBucket, cfg.ModerateImages)
		return a, func() { _ = a.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown asset backend %q", cfg.AssetBackend)
}

// Authenticator returns the request authenticator for cfg.AuthMode. A Firebase client
// that fails to initialize yields a middleware that answers 503 instead of a startup
// failure, so public routes keep working.
func Authenticator(ctx context.Context, cfg *config.Config, app *firebase.App) middleware.Authenticator {
	if cfg.AuthMode == config.AuthModeJWT {
		return middleware.JWTAuth(cfg.JWTSecret)
	}
	if app == nil {
		log.Printf("Warning: firebase auth selected but no firebase app is available")
		return middleware.FirebaseAuth(nil)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		log.Printf("Warning: failed to initialize Firebase Auth client: %v", err)
		return middleware.FirebaseAuth(nil)
	}
	return middleware.FirebaseAuth(client)
}
