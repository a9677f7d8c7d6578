// Command asset-sweeper removes uploaded profile images that no profile references. It
// runs one pass and exits, or with -listen serves POST /sweep for a scheduler to trigger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/skilltree/backend/internal/config"
	"github.com/skilltree/backend/internal/services"
	"github.com/skilltree/backend/internal/wiring"
)

func main() {
	listen := flag.String("listen", "", "serve POST /sweep on this address instead of running once")
	dryRun := flag.Bool("dry-run", false, "report orphans without deleting them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[sweeper] invalid configuration: %v", err)
	}
	if err := cfg.ValidateSweeper(); err != nil {
		log.Fatalf("[sweeper] %v", err)
	}
	if *dryRun {
		cfg.SweepDryRun = true
	}

	ctx := context.Background()

	var app *firebase.App
	if cfg.UsesFirebase() {
		app, err = wiring.NewFirebaseApp(ctx, cfg)
		if err != nil {
			log.Fatalf("[sweeper] firebase init failed: %v", err)
		}
	}

	store, closeStore, err := wiring.OpenStore(ctx, cfg, app)
	if err != nil {
		log.Fatalf("[sweeper] open store: %v", err)
	}
	defer closeStore()

	assets, closeAssets, err := wiring.OpenAssets(ctx, cfg)
	if err != nil {
		log.Fatalf("[sweeper] open assets: %v", err)
	}
	defer closeAssets()

	sweeper := services.NewAssetSweeper(store, assets, services.SweeperConfig{
		GracePeriod:  cfg.SweepGracePeriod,
		DryRun:       cfg.SweepDryRun,
		StoreTimeout: cfg.StoreTimeout,
	})

	if *listen == "" {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if _, err := sweeper.Sweep(runCtx); err != nil {
			log.Printf("[sweeper] pass failed: %v", err)
			closeAssets()
			closeStore()
			os.Exit(1)
		}
		return
	}

	// One pass at a time; overlapping triggers get 409.
	var mu sync.Mutex

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	http.HandleFunc("/sweep", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			log.Printf("[sweeper] rejected non-POST method=%s", r.Method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !mu.TryLock() {
			http.Error(w, "sweep already running", http.StatusConflict)
			return
		}
		defer mu.Unlock()

		runCtx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
		defer cancel()

		res, err := sweeper.Sweep(runCtx)
		if err != nil {
			log.Printf("[sweeper] pass failed: %v", err)
			// Non-2xx so the scheduler retries.
			http.Error(w, "sweep failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})

	log.Printf("[sweeper] listening on %s dry_run=%v grace=%s", *listen, cfg.SweepDryRun, cfg.SweepGracePeriod)
	log.Fatal(http.ListenAndServe(*listen, nil))
}
