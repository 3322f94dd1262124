// Package pipeline sequences assets through the optimization stages and
// aggregates per-asset outcomes.
package pipeline

import (
	"context"

	"github.com/meshforge/meshforge/internal/stage"
)

// Asset is one model going through the pipeline.
type Asset struct {
	ID      string // stable id, also the output subdirectory name
	Locator string // local path or remote locator of the source model
	OutDir  string // per-asset output directory
}

// State is an asset's position in the stage sequence.
type State string

const (
	StatePending           State = "pending"
	StateConverted         State = "converted"
	StateColliderGenerated State = "collider_generated"
	StateSaved             State = "saved"
	StateValidated         State = "validated"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Stage names, used for timings, metrics, and the failure ledger.
const (
	StageConversion = "conversion"
	StageColliders  = "colliders"
	StageSave       = "save"
	StageValidation = "validation"
)

// ConvertRequest asks the conversion collaborator to produce the asset
// document and raw textures in OutDir.
type ConvertRequest struct {
	AssetID         string
	SourcePath      string
	AnnotationsPath string
	OutDir          string
}

// Converter is the mesh/material conversion collaborator.
type Converter interface {
	Convert(ctx context.Context, req ConvertRequest) stage.Result
}

// ColliderRequest asks the collider collaborator for convex hulls.
type ColliderRequest struct {
	AssetID       string
	OutDir        string
	MaxColliders  int
	DeleteSources bool
}

// ColliderResult is the collider collaborator's per-asset outcome.
type ColliderResult struct {
	Failed bool           // per-asset failure flag reported by the tool
	Info   map[string]any // tool-specific diagnostic payload
	Err    error          // unexpected error before or during the call
}

// ColliderGenerator is the collider-hull generation collaborator.
type ColliderGenerator interface {
	GenerateColliders(ctx context.Context, req ColliderRequest) ColliderResult
}
