package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	AuthModeJWT      = "jwt"
	AuthModeFirebase = "firebase"

	StoreMemory    = "memory"
	StoreFile      = "file"
	StoreSQLite    = "sqlite"
	StoreMongo     = "mongo"
	StoreFirestore = "firestore"

	AssetsLocal = "local"
	AssetsGCS   = "gcs"
)

type Config struct {
	ServerAddress      string   `env:"SERVER_ADDRESS" envDefault:":8080"`
	PublicBaseURL      string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	AuthMode                string `env:"AUTH_MODE" envDefault:"jwt"`
	JWTSecret               string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsJSON string `env:"FIREBASE_CREDENTIALS_JSON"`

	StoreBackend    string `env:"STORE_BACKEND" envDefault:"memory"`
	DataDir         string `env:"DATA_DIR" envDefault:"./data"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"./data/profiles.db"`
	MongoURI        string `env:"MONGO_URI"`
	MongoDB         string `env:"MONGO_DB" envDefault:"skilltree"`
	MongoForceTLS12 bool   `env:"MONGO_FORCE_TLS12" envDefault:"false"`

	AssetBackend    string `env:"ASSET_BACKEND" envDefault:"local"`
	UploadDir       string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	StorageBucket   string `env:"STORAGE_BUCKET"`
	ModerateImages  bool   `env:"MODERATE_IMAGES" envDefault:"false"`
	MaxUploadSizeMB int64  `env:"MAX_UPLOAD_SIZE_MB" envDefault:"10"`

	RequireBio    bool          `env:"REQUIRE_BIO" envDefault:"true"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
	UploadTimeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`

	SweepGracePeriod time.Duration `env:"SWEEP_GRACE_PERIOD" envDefault:"24h"`
	SweepDryRun      bool          `env:"SWEEP_DRY_RUN" envDefault:"false"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required when AUTH_MODE=jwt"))
		}
	case AuthModeFirebase:
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}

	switch c.StoreBackend {
	case StoreMemory, StoreFile, StoreSQLite, StoreFirestore:
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORE_BACKEND=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.AssetBackend {
	case AssetsLocal:
		if c.ModerateImages {
			errs = append(errs, errors.New("MODERATE_IMAGES requires ASSET_BACKEND=gcs"))
		}
	case AssetsGCS:
		if c.StorageBucket == "" {
			errs = append(errs, errors.New("STORAGE_BUCKET is required when ASSET_BACKEND=gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ASSET_BACKEND %q", c.AssetBackend))
	}

	if c.MaxUploadSizeMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE_MB must be positive"))
	}
	if c.StoreTimeout <= 0 || c.UploadTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT and UPLOAD_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateSweeper rejects store backends the asset sweeper cannot read from another
// process. An in-memory store would look empty and every upload would seem orphaned.
func (c *Config) ValidateSweeper() error {
	if c.StoreBackend == StoreMemory {
		return errors.New("asset sweeper needs a shared store; STORE_BACKEND=memory is process-local")
	}
	return nil
}

// UsesFirebase reports whether a Firebase app must be initialized.
func (c *Config) UsesFirebase() bool {
	return c.AuthMode == AuthModeFirebase || c.StoreBackend == StoreFirestore
}
