// Package tools provides exec-backed implementations of the pipeline's
// external tool collaborators.
package tools

import (
	"context"
	"path/filepath"
	"time"

	"github.com/meshforge/meshforge/internal/config"
	"github.com/meshforge/meshforge/internal/logging"
	"github.com/meshforge/meshforge/internal/pipeline"
	"github.com/meshforge/meshforge/internal/stage"
)

// BlenderConverter converts source models into the asset document format
// by driving a headless Blender process over a conversion script.
type BlenderConverter struct {
	cfg    config.ConvertConfig
	runner *stage.Runner
}

// NewBlenderConverter builds a converter from configuration.
func NewBlenderConverter(cfg config.ConvertConfig) *BlenderConverter {
	return &BlenderConverter{
		cfg: cfg,
		runner: &stage.Runner{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Log:     logging.Component("convert"),
		},
	}
}

// Convert implements pipeline.Converter. Success requires the asset
// document to exist afterwards; a nonzero exit is tolerated only when the
// configured benign markers appear in the tool output.
func (c *BlenderConverter) Convert(ctx context.Context, req pipeline.ConvertRequest) stage.Result {
	args := []string{
		"--background",
		"--python", c.cfg.ScriptPath,
		"--",
		"--object_path", req.SourcePath,
		"--output_dir", req.OutDir,
	}
	if req.AnnotationsPath != "" {
		args = append(args, "--annotations", req.AnnotationsPath)
	}
	if c.cfg.GenerateOBJ {
		args = append(args, "--obj")
	}
	if !c.cfg.AbsoluteTexturePaths {
		args = append(args, "--relative_texture_paths")
	}

	return c.runner.Run(ctx, stage.Invocation{
		Stage:          pipeline.StageConversion,
		Path:           c.cfg.ToolPath,
		Args:           args,
		OutputArtifact: filepath.Join(req.OutDir, req.AssetID+".json"),
		BenignMarkers:  c.cfg.BenignMarkers,
	})
}
