package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/meshforge/meshforge/internal/config"
	"github.com/meshforge/meshforge/internal/logging"
	"github.com/meshforge/meshforge/internal/pipeline"
	"github.com/meshforge/meshforge/internal/stage"
)

// decompFileName is where the hull decomposition tool writes its result,
// relative to its working directory.
const decompFileName = "decomp.obj"

// VHACDGenerator produces convex collider hulls for an asset's mesh by
// running a V-HACD decomposition binary over the intermediate OBJ.
type VHACDGenerator struct {
	cfg    config.ColliderConfig
	runner *stage.Runner
}

// NewVHACDGenerator builds a generator from configuration.
func NewVHACDGenerator(cfg config.ColliderConfig) *VHACDGenerator {
	return &VHACDGenerator{
		cfg: cfg,
		runner: &stage.Runner{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Log:     logging.Component("colliders"),
		},
	}
}

// GenerateColliders implements pipeline.ColliderGenerator. The hulls are
// left next to the asset document as "<id>_colliders.obj".
func (g *VHACDGenerator) GenerateColliders(ctx context.Context, req pipeline.ColliderRequest) pipeline.ColliderResult {
	objPath := filepath.Join(req.OutDir, req.AssetID+".obj")
	if _, err := os.Stat(objPath); err != nil {
		return pipeline.ColliderResult{
			Failed: true,
			Err:    fmt.Errorf("collider source mesh missing: %w", err),
		}
	}

	decompPath := filepath.Join(req.OutDir, decompFileName)
	res := g.runner.Run(ctx, stage.Invocation{
		Stage:          pipeline.StageColliders,
		Path:           g.cfg.ToolPath,
		Args:           []string{objPath, "-h", strconv.Itoa(req.MaxColliders)},
		Dir:            req.OutDir,
		OutputArtifact: decompPath,
	})

	info := map[string]any{
		"exit_code":    res.ExitCode,
		"duration_sec": res.Duration.Seconds(),
	}
	if !res.Success {
		info["output"] = tail(res.Output, 4000)
		return pipeline.ColliderResult{Failed: true, Info: info, Err: res.Err}
	}

	hulls, err := countHulls(decompPath)
	if err != nil {
		info["output"] = tail(res.Output, 4000)
		return pipeline.ColliderResult{Failed: true, Info: info, Err: err}
	}
	info["hulls"] = hulls

	collidersPath := filepath.Join(req.OutDir, req.AssetID+"_colliders.obj")
	if err := os.Rename(decompPath, collidersPath); err != nil {
		return pipeline.ColliderResult{Failed: true, Info: info, Err: fmt.Errorf("finalize colliders: %w", err)}
	}

	if req.DeleteSources {
		os.Remove(objPath)
		os.Remove(filepath.Join(req.OutDir, req.AssetID+".mtl"))
	}
	return pipeline.ColliderResult{Info: info}
}

// countHulls counts the object groups in a decomposition OBJ. A result
// with no hulls means the tool produced an empty decomposition.
func countHulls(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open decomposition %s: %w", path, err)
	}
	defer f.Close()

	hulls := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "o ") || strings.HasPrefix(line, "g ") {
			hulls++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scan decomposition %s: %w", path, err)
	}
	if hulls == 0 {
		return 0, fmt.Errorf("decomposition %s contains no hulls", path)
	}
	return hulls, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
