// Package notify emits batch-completion events so downstream systems can
// react to finished runs without polling the output directory.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Event describes the outcome of one batch run.
type Event struct {
	RunID      string    `json:"run_id"`
	OutputDir  string    `json:"output_dir"`
	Assets     int       `json:"assets"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Duration   float64   `json:"duration_seconds"`
	ReportPath string    `json:"report_path,omitempty"`
	Producer   Producer  `json:"producer"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// Producer describes the software that produced the run.
type Producer struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// Emitter is the interface for batch event emission.
type Emitter interface {
	EmitBatch(ctx context.Context, evt Event) error
	Close() error
}

// Config configures batch event emission.
type Config struct {
	Enabled   bool
	Endpoint  string
	BackupDir string
}

// NewEmitter creates an appropriate emitter based on configuration.
func NewEmitter(cfg Config) Emitter {
	log := slog.With("component", "notify")
	if !cfg.Enabled {
		log.Debug("disabled, using no-op emitter")
		return &noopEmitter{}
	}

	if cfg.Endpoint != "" {
		log.Info("using HTTP emitter", "endpoint", cfg.Endpoint)
		return &httpEmitter{
			endpoint: cfg.Endpoint,
			client:   &http.Client{Timeout: 30 * time.Second},
			backup:   &fileBackup{dir: cfg.BackupDir},
			log:      log,
		}
	}

	log.Info("using file-only emitter", "dir", cfg.BackupDir)
	return &fileEmitter{backup: &fileBackup{dir: cfg.BackupDir}}
}

// fileBackup saves events to local files for backup/audit.
type fileBackup struct {
	dir string
}

func (f *fileBackup) save(evt Event) error {
	dir := f.dir
	if dir == "" {
		dir = "./notify-backup"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run_%s.json", evt.RunID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write event file: %w", err)
	}
	return nil
}

// httpEmitter posts events to an HTTP endpoint, with file backup.
type httpEmitter struct {
	endpoint string
	client   *http.Client
	backup   *fileBackup
	log      *slog.Logger
}

func (e *httpEmitter) EmitBatch(ctx context.Context, evt Event) error {
	evt.EmittedAt = time.Now().UTC()

	if err := e.backup.save(evt); err != nil {
		e.log.Warn("failed to back up event", "error", err)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("event endpoint returned %s", resp.Status)
	}
	return nil
}

func (e *httpEmitter) Close() error { return nil }

// fileEmitter writes events to files only (no HTTP).
type fileEmitter struct {
	backup *fileBackup
}

func (e *fileEmitter) EmitBatch(ctx context.Context, evt Event) error {
	evt.EmittedAt = time.Now().UTC()
	return e.backup.save(evt)
}

func (e *fileEmitter) Close() error { return nil }

type noopEmitter struct{}

func (e *noopEmitter) EmitBatch(ctx context.Context, evt Event) error { return nil }
func (e *noopEmitter) Close() error                                   { return nil }
