package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skilltree/backend/internal/config"
	"github.com/skilltree/backend/internal/handlers"
	"github.com/skilltree/backend/internal/services"
	"github.com/skilltree/backend/internal/wiring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app *firebase.App
	if cfg.UsesFirebase() {
		app, err = wiring.NewFirebaseApp(ctx, cfg)
		if err != nil {
			log.Printf("Warning: failed to initialize Firebase: %v", err)
		}
	}

	store, closeStore, err := wiring.OpenStore(ctx, cfg, app)
	if err != nil {
		log.Fatalf("Failed to open profile store: %v", err)
	}
	defer closeStore()

	assets, closeAssets, err := wiring.OpenAssets(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open asset backend: %v", err)
	}
	defer closeAssets()

	registry := services.NewProfileRegistry(store, assets, services.RegistryConfig{
		RequireBio:    cfg.RequireBio,
		StoreTimeout:  cfg.StoreTimeout,
		UploadTimeout: cfg.UploadTimeout,
	})
	profileHandler := handlers.NewProfileHandler(registry, cfg.MaxUploadSizeMB, cfg.PublicBaseURL)
	requireAuth := wiring.Authenticator(ctx, cfg, app)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		handlers.RegisterProfileRoutes(r, profileHandler, requireAuth)
	})

	if cfg.AssetBackend == config.AssetsLocal {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("SkillTree API server starting on %s (store=%s assets=%s auth=%s)",
		cfg.ServerAddress, cfg.StoreBackend, cfg.AssetBackend, cfg.AuthMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Printf("Server stopped")
}
