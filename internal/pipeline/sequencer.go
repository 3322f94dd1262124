package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/meshforge/meshforge/internal/asset"
	"github.com/meshforge/meshforge/internal/checkpoint"
	"github.com/meshforge/meshforge/internal/config"
	"github.com/meshforge/meshforge/internal/embed"
	"github.com/meshforge/meshforge/internal/geometry"
	"github.com/meshforge/meshforge/internal/logging"
	"github.com/meshforge/meshforge/internal/metrics"
	"github.com/meshforge/meshforge/internal/notify"
	"github.com/meshforge/meshforge/internal/runtime"
	"github.com/meshforge/meshforge/internal/source"
	"github.com/meshforge/meshforge/internal/storage"
)

// Deps are the sequencer's injected collaborators.
type Deps struct {
	Converter Converter
	Colliders ColliderGenerator

	// Session is the validation runtime. Required unless validation is
	// skipped. Teardown is gated on SessionOwnership.
	Session          runtime.Session
	SessionOwnership runtime.Ownership

	Fetcher    source.Fetcher
	Checkpoint checkpoint.Manager
	Notifier   notify.Emitter

	// Publisher, when non-nil, receives the whole output directory after
	// the batch finishes.
	Publisher storage.Store

	// Embedder, when non-nil, embeds the annotation description into the
	// saved document. Embedding failures are logged, not fatal.
	Embedder embed.Embedder

	Producer notify.Producer
}

// Sequencer drives assets through conversion, collider generation, the
// save/compress stage, and runtime validation. A stage failure marks the
// asset failed and moves on; only bookkeeping failures abort the batch.
type Sequencer struct {
	cfg    config.Config
	deps   Deps
	ledger *Ledger
	runID  string
	skybox [3]uint8
	log    *slog.Logger

	// The validation session is stateful; one asset at a time.
	sessionMu sync.Mutex

	mu        sync.Mutex
	completed map[string]bool
	order     []string
}

// New builds a sequencer. Validation without a session is a wiring error
// and is rejected up front rather than failing every asset.
func New(cfg config.Config, deps Deps) (*Sequencer, error) {
	if !cfg.Validate.Skip && deps.Session == nil {
		return nil, ErrSessionRequired
	}
	if deps.Checkpoint == nil {
		deps.Checkpoint, _ = checkpoint.NewManager(checkpoint.Config{})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewEmitter(notify.Config{})
	}
	skybox, err := cfg.Render.ParseSkyboxColor()
	if err != nil {
		return nil, err
	}

	runID := logging.GenerateRunID()
	return &Sequencer{
		cfg:       cfg,
		deps:      deps,
		ledger:    NewLedger(),
		runID:     runID,
		skybox:    skybox,
		log:       logging.Component("sequencer").With("run_id", runID),
		completed: make(map[string]bool),
	}, nil
}

// RunID returns this run's identifier.
func (s *Sequencer) RunID() string { return s.runID }

// Ledger returns the run's failure ledger.
func (s *Sequencer) Ledger() *Ledger { return s.ledger }

// Run processes the configured batch and returns the failure ledger. The
// returned error covers batch bookkeeping only; per-asset failures are in
// the ledger.
func (s *Sequencer) Run(ctx context.Context) (*Ledger, error) {
	assets := s.batch()
	if len(assets) == 0 {
		return s.ledger, ErrNoAssets
	}

	outDir := s.cfg.Run.OutputDir
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return s.ledger, fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	done := make(map[string]bool)
	cp, err := s.deps.Checkpoint.Load(ctx, outDir)
	switch {
	case err == nil:
		done = cp.CompletedSet()
		s.log.Info("resuming from checkpoint", "already_completed", len(done))
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
	default:
		return s.ledger, fmt.Errorf("load checkpoint: %w", err)
	}
	s.mu.Lock()
	for id := range done {
		s.completed[id] = true
		s.order = append(s.order, id)
	}
	s.mu.Unlock()

	if s.deps.Session != nil && s.deps.SessionOwnership == runtime.OwnsSession {
		defer func() {
			if err := s.deps.Session.Close(); err != nil {
				s.log.Warn("session teardown failed", "error", err)
			}
		}()
	}

	start := time.Now()
	s.log.Info("batch started", "assets", len(assets), "workers", s.workerCount())

	s.process(ctx, assets, done)

	reportPath := ""
	if s.ledger.Len() > 0 {
		reportPath = filepath.Join(outDir, s.cfg.Run.ReportFileName)
		if err := s.ledger.WriteReport(reportPath); err != nil {
			return s.ledger, err
		}
		s.log.Warn("batch had failures", "failed", s.ledger.Len(), "report", reportPath)
	}

	if err := s.saveCheckpoint(ctx); err != nil {
		return s.ledger, err
	}

	if s.deps.Publisher != nil && s.cfg.Publish.Enabled {
		if err := storage.PublishDir(ctx, s.deps.Publisher, outDir, filepath.Base(outDir)); err != nil {
			return s.ledger, fmt.Errorf("publish artifacts: %w", err)
		}
		s.log.Info("artifacts published", "uri", s.deps.Publisher.URI(filepath.Base(outDir)))
	}

	duration := time.Since(start)
	evt := notify.Event{
		RunID:      s.runID,
		OutputDir:  outDir,
		Assets:     len(assets),
		Succeeded:  len(assets) - s.ledger.Len(),
		Failed:     s.ledger.Len(),
		Duration:   duration.Seconds(),
		ReportPath: reportPath,
		Producer:   s.deps.Producer,
	}
	if err := s.deps.Notifier.EmitBatch(ctx, evt); err != nil {
		s.log.Warn("failed to emit batch event", "error", err)
	}

	s.log.Info("batch finished",
		"succeeded", evt.Succeeded,
		"failed", evt.Failed,
		"duration", duration.String(),
	)
	return s.ledger, nil
}

// batch materializes the configured asset map in a stable order.
func (s *Sequencer) batch() []Asset {
	ids := make([]string, 0, len(s.cfg.Run.Assets))
	for id := range s.cfg.Run.Assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Asset, 0, len(ids))
	for _, id := range ids {
		out = append(out, Asset{
			ID:      id,
			Locator: s.cfg.Run.Assets[id],
			OutDir:  filepath.Join(s.cfg.Run.OutputDir, id),
		})
	}
	return out
}

// runAsset takes one asset through every requested stage. It returns true
// only when all of them succeeded. Panics in collaborators are contained
// to the asset.
func (s *Sequencer) runAsset(ctx context.Context, a Asset) (completed bool) {
	log := logging.AssetLogger(s.runID, a.ID)
	m := metrics.Get()

	defer func() {
		if r := recover(); r != nil {
			e := s.ledger.GetOrCreate(a.ID)
			e.SetReason(ReasonUnclassified)
			e["panic"] = fmt.Sprint(r)
			log.Error("asset processing panicked", "panic", r)
			completed = false
		}
	}()

	fail := func(stage, reason string) {
		if m != nil {
			m.AssetsFailed.WithLabelValues(stage).Inc()
			m.StageFailures.WithLabelValues(stage, reason).Inc()
		}
	}

	start := time.Now()
	state := StatePending

	if err := os.MkdirAll(a.OutDir, 0755); err != nil {
		e := s.ledger.GetOrCreate(a.ID)
		e.SetReason(ReasonUnclassified)
		e["error"] = err.Error()
		fail(StageConversion, ReasonUnclassified)
		return false
	}

	var srcPath string
	if s.cfg.Convert.Skip {
		// Preconverted input: a document must already be present.
		if _, err := asset.ExistingDocumentPath(a.OutDir, a.ID, ""); err != nil {
			e := s.ledger.GetOrCreate(a.ID)
			e.SetReason(ReasonConversionFailed)
			e["error"] = err.Error()
			fail(StageConversion, ReasonConversionFailed)
			return false
		}
		state = StateConverted
	} else {
		var err error
		srcPath, err = s.deps.Fetcher.Fetch(ctx, a.ID, a.Locator)
		if err != nil {
			e := s.ledger.GetOrCreate(a.ID)
			e.SetReason(ReasonSourceFetch)
			e["error"] = err.Error()
			fail(StageConversion, ReasonSourceFetch)
			return false
		}

		annPath, err := asset.ResolveAnnotations(s.cfg.Run.AnnotationsPath, a.ID)
		if err != nil {
			e := s.ledger.GetOrCreate(a.ID)
			e.SetReason(ReasonSourceFetch)
			e["error"] = err.Error()
			fail(StageConversion, ReasonSourceFetch)
			return false
		}

		res := s.deps.Converter.Convert(ctx, ConvertRequest{
			AssetID:         a.ID,
			SourcePath:      srcPath,
			AnnotationsPath: annPath,
			OutDir:          a.OutDir,
		})
		if m != nil {
			m.StageDuration.WithLabelValues(StageConversion).Observe(res.Duration.Seconds())
		}
		if !res.Success {
			reason := ReasonConversionFailed
			if res.TimedOut {
				reason = ReasonConversionTimeout
			}
			e := s.ledger.GetOrCreate(a.ID)
			e.SetReason(reason)
			e["conversion_output"] = res.Output
			if res.Err != nil {
				e["error"] = res.Err.Error()
			}
			fail(StageConversion, reason)
			log.Warn("conversion failed", "reason", reason, "exit_code", res.ExitCode)
			return false
		}
		state = StateConverted
	}
	log.Debug("stage complete", "state", state)

	if !s.cfg.Colliders.Skip {
		cstart := time.Now()
		cres := s.deps.Colliders.GenerateColliders(ctx, ColliderRequest{
			AssetID:       a.ID,
			OutDir:        a.OutDir,
			MaxColliders:  s.cfg.Colliders.MaxColliders,
			DeleteSources: s.cfg.Colliders.DeleteSources,
		})
		if m != nil {
			m.StageDuration.WithLabelValues(StageColliders).Observe(time.Since(cstart).Seconds())
		}
		if cres.Err != nil || cres.Failed {
			e := s.ledger.GetOrCreate(a.ID)
			e.SetReason(ReasonColliderGeneration)
			if cres.Err != nil {
				e["error"] = cres.Err.Error()
			}
			if cres.Info != nil {
				e["collider_info"] = cres.Info
			}
			fail(StageColliders, ReasonColliderGeneration)
			log.Warn("collider generation failed", "error", cres.Err)
			return false
		}
		state = StateColliderGenerated
		log.Debug("stage complete", "state", state)
	}

	target, err := s.saveAsset(ctx, a, log)
	if err != nil {
		e := s.ledger.GetOrCreate(a.ID)
		e.SetReason(ReasonTextureCompress)
		e["error"] = err.Error()
		fail(StageSave, ReasonTextureCompress)
		log.Warn("save failed", "error", err)
		return false
	}
	state = StateSaved
	log.Debug("stage complete", "state", state)

	if srcPath != "" {
		if si, err := os.Stat(srcPath); err == nil && si.Size() > 0 {
			if oi, err := os.Stat(target); err == nil {
				ratio := float64(oi.Size()) / float64(si.Size())
				if m != nil {
					m.CompressionRatio.Observe(ratio)
				}
				log.Info("asset optimized",
					"source_bytes", si.Size(),
					"optimized_bytes", oi.Size(),
					"reduction_pct", fmt.Sprintf("%.1f", (1-ratio)*100),
				)
			}
		}
	}

	if !s.cfg.Validate.Skip {
		if !s.validateAsset(ctx, a, log) {
			return false
		}
		state = StateValidated
		log.Debug("stage complete", "state", state)
	}

	state = StateDone
	if m != nil {
		m.AssetsProcessed.Inc()
	}
	log.Info("asset completed", "state", state, "duration", time.Since(start).String())
	return true
}

// saveAsset runs the save/compress stage: texture compression, pose
// normalization, annotation merge, and the final encode. It returns the
// written document path.
func (s *Sequencer) saveAsset(ctx context.Context, a Asset, log *slog.Logger) (string, error) {
	start := time.Now()
	m := metrics.Get()

	doc, err := asset.Load(a.OutDir, a.ID)
	if err != nil {
		return "", err
	}

	if err := s.processTextures(a.OutDir, doc, log); err != nil {
		return "", err
	}

	verts, err := doc.Vertices()
	if err != nil {
		log.Warn("no usable vertices, skipping pose normalization", "error", err)
	} else {
		yaw, err := geometry.OptimalYawDegrees(verts,
			s.cfg.Rotation.MaxDegrees, s.cfg.Rotation.Increments, s.cfg.Rotation.NoRotationBias)
		if err != nil {
			return "", err
		}
		doc.SetYawOffset(yaw)
		if m != nil {
			m.RotationApplied.Observe(math.Abs(yaw))
		}
		log.Debug("pose normalized", "yaw_offset", yaw)
	}

	if err := asset.AttachAnnotations(doc, a.OutDir); err != nil {
		return "", err
	}

	if s.deps.Embedder != nil {
		if err := s.embedDescription(ctx, doc); err != nil {
			log.Warn("description embedding failed", "error", err)
		}
	}

	target := asset.SavePathFor(a.OutDir, a.ID, s.cfg.Run.Encoding)
	if err := asset.Save(doc, target); err != nil {
		return "", err
	}

	if s.cfg.Run.Encoding != ".json" && !s.cfg.Run.KeepIntermediateJSON {
		os.Remove(asset.SavePathFor(a.OutDir, a.ID, ".json"))
	}

	if m != nil {
		if info, err := os.Stat(target); err == nil {
			m.AssetSizeBytes.Observe(float64(info.Size()))
		}
		m.StageDuration.WithLabelValues(StageSave).Observe(time.Since(start).Seconds())
	}
	return target, nil
}

// embedDescription attaches an embedding of the annotation description,
// when one exists, so downstream similarity search needs no second pass
// over the batch.
func (s *Sequencer) embedDescription(ctx context.Context, doc asset.Document) error {
	annotations, ok := doc["annotations"].(map[string]any)
	if !ok {
		return nil
	}
	description, _ := annotations["description"].(string)
	if description == "" {
		return nil
	}
	vec, err := s.deps.Embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	doc["descriptionEmbedding"] = vec
	return nil
}

// validateAsset loads the optimized asset into the validation runtime and
// renders the configured views. The session is stateful, so access is
// serialized across workers.
func (s *Sequencer) validateAsset(ctx context.Context, a Asset, log *slog.Logger) bool {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	start := time.Now()
	m := metrics.Get()
	sess := s.deps.Session

	fail := func(reason string, fields map[string]any) {
		e := s.ledger.GetOrCreate(a.ID)
		e.SetReason(reason)
		for k, v := range fields {
			e[k] = v
		}
		if m != nil {
			m.AssetsFailed.WithLabelValues(StageValidation).Inc()
			m.StageFailures.WithLabelValues(StageValidation, reason).Inc()
		}
		log.Warn("validation failed", "reason", reason)
	}

	if err := sess.Reset(ctx); err != nil {
		fail(ReasonRuntimeProcess, map[string]any{"error": err.Error()})
		return false
	}

	res, err := sess.CreateAsset(ctx, a.OutDir, a.ID, s.cfg.Run.Encoding)
	if err != nil {
		fail(ReasonRuntimeProcess, map[string]any{"error": err.Error()})
		return false
	}
	if !res.Success {
		fail(ReasonRuntimeCreate, map[string]any{
			"error_message": res.ErrorMessage,
			"last_action":   res.LastAction,
		})
		return false
	}

	if !s.cfg.Validate.SkipRender {
		renderDir := filepath.Join(a.OutDir, "renders")
		if err := os.MkdirAll(renderDir, 0755); err != nil {
			fail(ReasonRuntimeRender, map[string]any{"error": err.Error()})
			return false
		}
		angles := s.cfg.Render.Angles
		if s.cfg.Render.AngleStep > 0 {
			angles = runtime.ExpandAngles(s.cfg.Render.AngleStep)
		}
		rres, err := sess.RenderViews(ctx, runtime.RenderRequest{
			AssetID:     a.ID,
			OutputDir:   renderDir,
			Rotations:   runtime.RotationsFor(angles, nil),
			SkyboxColor: s.skybox,
			Width:       s.cfg.Render.Width,
			Height:      s.cfg.Render.Height,
		})
		if err != nil {
			fail(ReasonRuntimeProcess, map[string]any{"error": err.Error()})
			return false
		}
		if !rres.Success {
			fail(ReasonRuntimeRender, map[string]any{
				"error_message": rres.ErrorMessage,
				"last_action":   rres.LastAction,
			})
			return false
		}
	}

	if md := runtime.SanitizeMetadata(res.Metadata); len(md) > 0 {
		if err := writeMetadata(filepath.Join(a.OutDir, "runtime_metadata.json"), md); err != nil {
			log.Warn("failed to persist runtime metadata", "error", err)
		}
	}

	if m != nil {
		m.StageDuration.WithLabelValues(StageValidation).Observe(time.Since(start).Seconds())
	}
	return true
}

func writeMetadata(path string, md map[string]any) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// markCompleted records a finished asset and persists the checkpoint so
// an interrupted run resumes past it.
func (s *Sequencer) markCompleted(ctx context.Context, assetID string) {
	s.mu.Lock()
	if !s.completed[assetID] {
		s.completed[assetID] = true
		s.order = append(s.order, assetID)
	}
	s.mu.Unlock()

	if err := s.saveCheckpoint(ctx); err != nil {
		s.log.Warn("failed to save checkpoint", "error", err)
	}
}

func (s *Sequencer) saveCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	completed := make([]string, len(s.order))
	copy(completed, s.order)
	s.mu.Unlock()

	return s.deps.Checkpoint.Save(ctx, &checkpoint.Checkpoint{
		OutputDir: s.cfg.Run.OutputDir,
		Encoding:  s.cfg.Run.Encoding,
		Completed: completed,
		UpdatedAt: time.Now().UTC(),
	})
}
