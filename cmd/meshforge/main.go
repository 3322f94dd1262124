// meshforge optimizes batches of 3D assets for runtime loading:
// conversion to a structured document format, perceptual texture
// compression, pose normalization, collider generation, and validation
// against a live runtime session.
//
// Exit codes: 0 on full success, 1 on a batch-level failure, 2 when the
// batch finished but some assets failed (see the failure report).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/meshforge/meshforge/internal/checkpoint"
	"github.com/meshforge/meshforge/internal/config"
	"github.com/meshforge/meshforge/internal/embed"
	"github.com/meshforge/meshforge/internal/logging"
	"github.com/meshforge/meshforge/internal/metrics"
	"github.com/meshforge/meshforge/internal/notify"
	"github.com/meshforge/meshforge/internal/pipeline"
	"github.com/meshforge/meshforge/internal/runtime"
	"github.com/meshforge/meshforge/internal/source"
	"github.com/meshforge/meshforge/internal/storage"
	"github.com/meshforge/meshforge/internal/tools"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	gitSHA  = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "path to YAML configuration file")
		outputDir   = flag.String("output", "", "override run.output_dir")
		workers     = flag.Int("workers", 0, "override run.workers")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("meshforge %s %s\n", version, gitSHA)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	if *outputDir != "" {
		cfg.Run.OutputDir = *outputDir
	}
	if *workers > 0 {
		cfg.Run.Workers = *workers
	}
	if err := cfg.Check(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	logging.Setup(cfg.Logging)
	log := logging.Component("main")
	log.Info("starting", "version", version, "git_sha", gitSHA)

	metrics.Init("meshforge")
	metrics.Serve(metrics.Config{Enabled: cfg.Metrics.Enabled, Address: cfg.Metrics.Address})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := source.NewFetcher(cfg.Source.TempDir)
	if err != nil {
		log.Error("failed to create source fetcher", "error", err)
		return 1
	}
	defer fetcher.Close()

	cpMgr, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
	})
	if err != nil {
		log.Error("failed to create checkpoint manager", "error", err)
		return 1
	}

	notifier := notify.NewEmitter(notify.Config{
		Enabled:   cfg.Notify.Enabled,
		Endpoint:  cfg.Notify.Endpoint,
		BackupDir: cfg.Notify.BackupDir,
	})
	defer notifier.Close()

	var publisher storage.Store
	if cfg.Publish.Enabled {
		publisher, err = storage.NewStore(storage.Config{
			Backend:    cfg.Publish.Backend,
			LocalDir:   cfg.Publish.LocalDir,
			GCSBucket:  cfg.Publish.Bucket,
			S3Bucket:   cfg.Publish.Bucket,
			S3Endpoint: cfg.Publish.S3Endpoint,
			S3Region:   cfg.Publish.S3Region,
			Prefix:     cfg.Publish.Prefix,
		})
		if err != nil {
			log.Error("failed to create publication store", "error", err)
			return 1
		}
		defer publisher.Close()
	}

	var embedder embed.Embedder
	if cfg.Embed.Enabled {
		embedder = embed.NewHTTPEmbedder(cfg.Embed.Endpoint, cfg.Embed.Model, os.Getenv(cfg.Embed.APIKeyEnv))
	}

	var session runtime.Session
	if !cfg.Validate.Skip {
		if cfg.Validate.SessionEndpoint == "" {
			log.Error("validation requires validate.session_endpoint (or set validate.skip)")
			return 1
		}
		session = runtime.NewHTTPSession(cfg.Validate.SessionEndpoint)
	}

	seq, err := pipeline.New(cfg, pipeline.Deps{
		Converter: tools.NewBlenderConverter(cfg.Convert),
		Colliders: tools.NewVHACDGenerator(cfg.Colliders),
		Session:   session,
		// The endpoint points at a pre-existing session; its lifecycle
		// belongs to whoever started it.
		SessionOwnership: runtime.BorrowsSession,
		Fetcher:          fetcher,
		Checkpoint:       cpMgr,
		Notifier:         notifier,
		Publisher:        publisher,
		Embedder:         embedder,
		Producer:         notify.Producer{Name: "meshforge", Version: version, GitSHA: gitSHA},
	})
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		return 1
	}

	ledger, err := seq.Run(ctx)
	if err != nil {
		log.Error("batch aborted", "error", err)
		return 1
	}
	if ledger.Len() > 0 {
		return 2
	}
	return 0
}
