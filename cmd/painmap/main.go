// Package main provides the painmap entry point: one-shot clustering runs
// and a read-only serve mode for inspecting clusters.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/fraglens/painmap/internal/api"
	"github.com/fraglens/painmap/internal/cluster"
	"github.com/fraglens/painmap/internal/config"
	gormdb "github.com/fraglens/painmap/internal/db/gorm"
	"github.com/fraglens/painmap/internal/judge"
	"github.com/fraglens/painmap/internal/watcher"
	"github.com/fraglens/painmap/pkg/models"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	limit := flag.Int("limit", 0, "Max events per run (default: from settings)")
	threshold := flag.Float64("threshold", 0, "Similarity threshold override (0 = from settings)")
	judgeURL := flag.String("judge-url", "", "Judgment service URL override")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.painmap)")
	serve := flag.Bool("serve", false, "Serve the read-only API instead of running a batch")
	addr := flag.String("addr", "", "Listen address for serve mode (default: from settings)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
		cfg = config.Default()
	}

	if *threshold > 0 {
		cfg.SimilarityThreshold = *threshold
	}
	if *judgeURL != "" {
		cfg.JudgeURL = *judgeURL
	}
	if *limit > 0 {
		cfg.BatchLimit = *limit
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	dbPath := config.DBPath()
	if *dataDir != "" {
		dbPath = filepath.Join(*dataDir, "painmap.db")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	store, err := gormdb.NewStore(gormdb.Config{
		Path:     dbPath,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer store.Close()

	eventStore := gormdb.NewPainEventStore(store)
	clusterStore := gormdb.NewClusterStore(store)

	if *serve {
		runServe(ctx, cfg, clusterStore, eventStore)
		return
	}

	if cfg.JudgeURL == "" {
		log.Fatal().Msg("judge_url is required for clustering runs (settings or --judge-url)")
	}

	j := judge.NewHTTPJudge(cfg.JudgeURL, cfg.JudgeTimeout())
	orch := cluster.NewOrchestrator(
		eventStore,
		clusterStore,
		cluster.NewGrouper(cfg.SimilarityThreshold),
		cluster.NewValidator(j),
		cfg.JudgeConcurrency,
	)

	log.Info().
		Str("version", Version).
		Float64("threshold", cfg.SimilarityThreshold).
		Int("limit", cfg.BatchLimit).
		Msg("Starting clustering run")

	report, err := orch.Run(ctx, cfg.BatchLimit)
	if err != nil {
		if errors.Is(err, gormdb.ErrRunLockHeld) {
			log.Fatal().Msg("Another clustering run is in progress")
		}
		log.Fatal().Err(err).Msg("Clustering run failed")
	}

	printReport(report)
}

// runServe starts the read-only API and exits when the settings file changes
// so a supervisor can restart with fresh configuration.
func runServe(ctx context.Context, cfg *config.Config, clusters *gormdb.ClusterStore, events *gormdb.PainEventStore) {
	settingsPath := config.SettingsPath()
	w, err := watcher.New(settingsPath, func() {
		log.Warn().Str("path", settingsPath).Msg("Settings changed, exiting for restart...")
		time.Sleep(100 * time.Millisecond) // Give logs time to flush
		os.Exit(0)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
	} else if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(clusters, events).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.ListenAddr).Str("version", Version).Msg("Serving painmap API")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("API server error")
	}
}

// printReport writes the run summary to stdout for operators and scripts.
func printReport(r *models.RunReport) {
	fmt.Printf("events processed:    %d\n", r.EventsProcessed)
	fmt.Printf("missing embeddings:  %d\n", r.EventsMissingVector)
	fmt.Printf("groups proposed:     %d (singletons: %d)\n", r.GroupsProposed, r.Singletons)
	fmt.Printf("groups accepted:     %d (rejected: %d, validator errors: %d)\n",
		r.GroupsAccepted, r.GroupsRejected, r.ValidatorErrors)
	fmt.Printf("clusters created:    %d\n", r.ClustersCreated)
	fmt.Printf("clusters extended:   %d\n", r.ClustersExtended)
	fmt.Printf("overlap conflicts:   %d\n", r.OverlapConflicts)
	fmt.Printf("avg cluster size:    %.2f\n", r.AverageClusterSize)
	fmt.Printf("elapsed:             %s\n", r.Elapsed.Round(time.Millisecond))
}
