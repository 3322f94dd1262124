// Package config loads pipeline configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meshforge/meshforge/internal/logging"
)

// Config is the full configuration for a batch optimization run.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Convert    ConvertConfig    `yaml:"convert"`
	Texture    TextureConfig    `yaml:"texture"`
	Rotation   RotationConfig   `yaml:"rotation"`
	Colliders  ColliderConfig   `yaml:"colliders"`
	Validate   ValidateConfig   `yaml:"validate"`
	Render     RenderConfig     `yaml:"render"`
	Source     SourceConfig     `yaml:"source"`
	Publish    PublishConfig    `yaml:"publish"`
	Embed      EmbedConfig      `yaml:"embed"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Notify     NotifyConfig     `yaml:"notify"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    logging.Config   `yaml:"logging"`
}

// RunConfig holds batch-level options.
type RunConfig struct {
	OutputDir            string            `yaml:"output_dir"`
	Assets               map[string]string `yaml:"assets"` // asset id -> source locator
	Encoding             string            `yaml:"encoding"`
	KeepIntermediateJSON bool              `yaml:"keep_intermediate_json"`
	AnnotationsPath      string            `yaml:"annotations_path"`
	ReportFileName       string            `yaml:"report_file_name"`
	Workers              int               `yaml:"workers"`
}

// ConvertConfig holds geometry conversion options.
type ConvertConfig struct {
	Skip                 bool     `yaml:"skip"`
	ToolPath             string   `yaml:"tool_path"`
	ScriptPath           string   `yaml:"script_path"`
	TimeoutSec           int      `yaml:"timeout_sec"` // 0 = no timeout
	BenignMarkers        []string `yaml:"benign_markers"`
	AbsoluteTexturePaths bool     `yaml:"absolute_texture_paths"`
	GenerateOBJ          bool     `yaml:"generate_obj"`
}

// TextureConfig holds texture compression options.
type TextureConfig struct {
	SSIMThreshold float64 `yaml:"ssim_threshold"`
	MinQuality    int     `yaml:"min_quality"`
	MaxQuality    int     `yaml:"max_quality"`
}

// RotationConfig holds pose normalization options.
type RotationConfig struct {
	MaxDegrees     float64 `yaml:"max_degrees"`
	Increments     int     `yaml:"increments"`
	NoRotationBias float64 `yaml:"no_rotation_bias"`
}

// ColliderConfig holds collider generation options.
type ColliderConfig struct {
	Skip          bool   `yaml:"skip"`
	ToolPath      string `yaml:"tool_path"`
	MaxColliders  int    `yaml:"max_colliders"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	DeleteSources bool   `yaml:"delete_sources"` // remove .obj inputs after hull generation
}

// ValidateConfig holds runtime validation options.
type ValidateConfig struct {
	Skip            bool   `yaml:"skip"`
	SkipRender      bool   `yaml:"skip_render"`
	SessionEndpoint string `yaml:"session_endpoint"` // reuse an existing session when set
}

// RenderConfig holds render options for the validation session.
type RenderConfig struct {
	Width       int       `yaml:"width"`
	Height      int       `yaml:"height"`
	SkyboxColor string    `yaml:"skybox_color"` // "r,g,b"
	Angles      []float64 `yaml:"angles"`
	AngleStep   int       `yaml:"angle_step"` // when > 0, multiples of this over 360 replace angles
}

// SourceConfig configures fetching of remote asset sources.
type SourceConfig struct {
	TempDir string `yaml:"temp_dir"`
}

// PublishConfig configures optional publication of optimized artifacts.
type PublishConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"` // "local" | "gcs" | "s3"
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	LocalDir   string `yaml:"local_dir"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
}

// EmbedConfig configures optional embedding of annotation descriptions
// into the saved document.
type EmbedConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"` // env var holding the API key
}

// CheckpointConfig configures resumable runs.
type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// NotifyConfig configures batch completion notifications.
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	BackupDir string `yaml:"backup_dir"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Encodings recognized for the optimized asset document.
var Encodings = []string{".json", ".json.gz", ".msgpack", ".msgpack.gz"}

// Default returns a configuration populated with defaults.
func Default() Config {
	return Config{
		Run: RunConfig{
			OutputDir:      "./output",
			Encoding:       ".json",
			ReportFileName: "failed_assets.json",
			Workers:        1,
		},
		Convert: ConvertConfig{
			ToolPath:      "blender",
			BenignMarkers: []string{"Progress: 100.00%"},
			GenerateOBJ:   true,
		},
		Texture: TextureConfig{
			SSIMThreshold: 0.95,
			MinQuality:    20,
			MaxQuality:    95,
		},
		Rotation: RotationConfig{
			MaxDegrees:     45,
			Increments:     91,
			NoRotationBias: 0.01,
		},
		Colliders: ColliderConfig{
			ToolPath:     "TestVHACD",
			MaxColliders: 4,
			TimeoutSec:   60,
		},
		Render: RenderConfig{
			Width:       300,
			Height:      300,
			SkyboxColor: "255,255,255",
			Angles:      []float64{0, 45, 90, 180, 270, 315},
		},
		Checkpoint: CheckpointConfig{
			Dir: "./checkpoints",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads configuration from a YAML file (optional) and applies
// environment variable overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Check(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Check validates option combinations the pipeline cannot run with.
func (c Config) Check() error {
	if c.Run.OutputDir == "" {
		return fmt.Errorf("run.output_dir is required")
	}
	if !validEncoding(c.Run.Encoding) {
		return fmt.Errorf("run.encoding %q not one of %v", c.Run.Encoding, Encodings)
	}
	if c.Texture.SSIMThreshold < 0 || c.Texture.SSIMThreshold > 1 {
		return fmt.Errorf("texture.ssim_threshold %v not in [0,1]", c.Texture.SSIMThreshold)
	}
	if c.Rotation.Increments < 1 || c.Rotation.Increments%2 == 0 {
		return fmt.Errorf("rotation.increments must be an odd integer >= 1, got %d", c.Rotation.Increments)
	}
	if c.Rotation.MaxDegrees < 0 {
		return fmt.Errorf("rotation.max_degrees must be >= 0, got %v", c.Rotation.MaxDegrees)
	}
	if c.Render.AngleStep < 0 || c.Render.AngleStep > 360 {
		return fmt.Errorf("render.angle_step %d not in [0,360]", c.Render.AngleStep)
	}
	if _, err := c.Render.ParseSkyboxColor(); err != nil {
		return err
	}
	return nil
}

// ParseSkyboxColor parses the "r,g,b" skybox color string.
func (r RenderConfig) ParseSkyboxColor() ([3]uint8, error) {
	var out [3]uint8
	parts := strings.Split(r.SkyboxColor, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("render.skybox_color %q must be r,g,b", r.SkyboxColor)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return out, fmt.Errorf("render.skybox_color component %q out of range", p)
		}
		out[i] = uint8(v)
	}
	return out, nil
}

func validEncoding(ext string) bool {
	for _, e := range Encodings {
		if e == ext {
			return true
		}
	}
	return false
}

// applyEnv overrides a subset of options from the environment so the
// binary can be wired into CI without a config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MESHFORGE_OUTPUT_DIR"); v != "" {
		cfg.Run.OutputDir = v
	}
	if v := os.Getenv("MESHFORGE_ENCODING"); v != "" {
		cfg.Run.Encoding = v
	}
	if v := os.Getenv("MESHFORGE_WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Run.Workers = parsed
		}
	}
	if v := os.Getenv("MESHFORGE_CONVERT_TIMEOUT_SEC"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Convert.TimeoutSec = parsed
		}
	}
	if v := os.Getenv("MESHFORGE_SSIM_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Texture.SSIMThreshold = parsed
		}
	}
	if v := os.Getenv("MESHFORGE_MAX_COLLIDERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Colliders.MaxColliders = parsed
		}
	}
	if v := os.Getenv("MESHFORGE_SESSION_ENDPOINT"); v != "" {
		cfg.Validate.SessionEndpoint = v
	}
	if v := os.Getenv("MESHFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MESHFORGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MESHFORGE_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = v
	}
}
