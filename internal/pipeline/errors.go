package pipeline

import "errors"

// Failure reason codes recorded in the ledger. An asset carries exactly
// one: the stage that first failed for it.
const (
	ReasonSourceFetch        = "source_fetch_fail"
	ReasonConversionFailed   = "conversion_process_fail"
	ReasonConversionTimeout  = "conversion_process_timeout_fail"
	ReasonTextureCompress    = "texture_compress_fail"
	ReasonColliderGeneration = "collider_generation_fail"
	ReasonRuntimeCreate      = "runtime_create_asset_fail"
	ReasonRuntimeRender      = "runtime_render_fail"
	ReasonRuntimeProcess     = "runtime_process_fail"
	ReasonUnclassified       = "unclassified_process_fail"
)

var (
	// ErrSessionRequired is returned when validation is requested but no
	// session was supplied.
	ErrSessionRequired = errors.New("pipeline: validation requested but no runtime session configured")

	// ErrNoAssets is returned for an empty batch.
	ErrNoAssets = errors.New("pipeline: no assets to process")
)
