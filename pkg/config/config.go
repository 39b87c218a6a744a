// Package config provides configuration loading and management for postmortemmri.
// It handles loading configuration from YAML or TOML files, provides default
// values and rejects inconsistent settings before any processing starts.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"postmortemmri/internal/models"
)

// Config represents the application configuration. It is loaded once per run
// and never mutated while the pipeline executes.
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many workers split each stage's voxel loops
		NumCores int `yaml:"numCores" toml:"num_cores"`

		// PctBorder is the fraction of the axial and sagittal extent cleared
		// at each border before processing (0 disables the strip)
		PctBorder float64 `yaml:"pctBorder" toml:"pct_border"`
	} `yaml:"processing" toml:"processing"`

	// Intensity bands, given in pre-inversion semantics
	Bands struct {
		Background int `yaml:"background" toml:"background"`
		WMMin      int `yaml:"wmMin" toml:"wm_min"`
		WMMax      int `yaml:"wmMax" toml:"wm_max"`
		GMMin      int `yaml:"gmMin" toml:"gm_min"`
		GMMax      int `yaml:"gmMax" toml:"gm_max"`

		// MaskSet is the sentinel written for protected voxels when the
		// interior mask is exported. It must not collide with tissue intensities.
		MaskSet int `yaml:"maskSet" toml:"mask_set"`
	} `yaml:"bands" toml:"bands"`

	// Stage enable flags
	Stages struct {
		StripBorders      bool `yaml:"stripBorders" toml:"strip_borders"`
		CleanBackground   bool `yaml:"cleanBackground" toml:"clean_background"`
		NormalizeSlices   bool `yaml:"normalizeSlices" toml:"normalize_slices"`
		NormalizeImage    bool `yaml:"normalizeImage" toml:"normalize_image"`
		IntensityCorrect  bool `yaml:"intensityCorrect" toml:"intensity_correct"`
		RemoveRind        bool `yaml:"removeRind" toml:"remove_rind"`
		ConvertToMask     bool `yaml:"convertToMask" toml:"convert_to_mask"`
		Brighten          bool `yaml:"brighten" toml:"brighten"`
		BackgroundTexture bool `yaml:"backgroundTexture" toml:"background_texture"`
	} `yaml:"stages" toml:"stages"`

	// Background cleaning parameters
	Cleaning struct {
		// SearchDist is how far (in voxels) to look for tissue along each axis
		SearchDist int `yaml:"searchDist" toml:"search_dist"`

		// InclusionReq is how many of the three axis probes must see tissue
		InclusionReq int `yaml:"inclusionReq" toml:"inclusion_req"`
	} `yaml:"cleaning" toml:"cleaning"`

	// Intensity normalization parameters
	Normalization struct {
		// SliceDists lists the neighbor distances of successive per-section passes
		SliceDists []int `yaml:"sliceDists" toml:"slice_dists"`

		// NormRank selects the rank-th brightest voxel as a section's statistic
		NormRank int `yaml:"normRank" toml:"norm_rank"`

		// TargetIntensity is where the global histogram mode is moved
		TargetIntensity int `yaml:"targetIntensity" toml:"target_intensity"`
	} `yaml:"normalization" toml:"normalization"`

	// Interior mask parameters
	Mask struct {
		// Dist is how far inside the cortical surface the mask starts, in mm
		Dist float64 `yaml:"dist" toml:"dist"`
	} `yaml:"mask" toml:"mask"`

	// Rind removal parameters
	Rind struct {
		Thickness float64 `yaml:"thickness" toml:"thickness"`
		Explore   float64 `yaml:"explore" toml:"explore"`
		Cutoff    int     `yaml:"cutoff" toml:"cutoff"`
		BlurRange float64 `yaml:"blurRange" toml:"blur_range"`

		// ThresholdFraction scales wmMin to select rind candidates
		ThresholdFraction float64 `yaml:"thresholdFraction" toml:"threshold_fraction"`

		// AdaptiveSearch widens the accepted band until a neighbor qualifies
		AdaptiveSearch bool    `yaml:"adaptiveSearch" toml:"adaptive_search"`
		WidenStep      float64 `yaml:"widenStep" toml:"widen_step"`
		MaxWidenSteps  int     `yaml:"maxWidenSteps" toml:"max_widen_steps"`

		// FallbackFraction positions the replacement inside the gray band
		// when no neighbor qualifies
		FallbackFraction float64 `yaml:"fallbackFraction" toml:"fallback_fraction"`

		CosmeticBlend  bool    `yaml:"cosmeticBlend" toml:"cosmetic_blend"`
		CosmeticWeight float64 `yaml:"cosmeticWeight" toml:"cosmetic_weight"`
	} `yaml:"rind" toml:"rind"`

	// Binarization parameters
	Binarize struct {
		CleanupReps int `yaml:"cleanupReps" toml:"cleanup_reps"`
	} `yaml:"binarize" toml:"binarize"`

	// Brightening parameters
	Brighten struct {
		Pct float64 `yaml:"pct" toml:"pct"`
	} `yaml:"brighten" toml:"brighten"`

	// Background texture parameters
	Texture struct {
		Min  int   `yaml:"min" toml:"min"`
		Max  int   `yaml:"max" toml:"max"`
		Seed int64 `yaml:"seed" toml:"seed"`
	} `yaml:"texture" toml:"texture"`

	// Mirror tool parameters
	Mirror struct {
		MirrorLine   int    `yaml:"mirrorLine" toml:"mirror_line"`
		Side         string `yaml:"side" toml:"side"`
		CheckOrient  bool   `yaml:"checkOrient" toml:"check_orient"`
		MoveSize     int    `yaml:"moveSize" toml:"move_size"`
		MoveImage    bool   `yaml:"moveImage" toml:"move_image"`
		FlipVertical bool   `yaml:"flipVertical" toml:"flip_vertical"`
	} `yaml:"mirror" toml:"mirror"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save stage snapshots
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" toml:"save_intermediary_results"`

		// SaveIntermediaryVolumes also writes the full grid of every stage
		SaveIntermediaryVolumes bool `yaml:"saveIntermediaryVolumes" toml:"save_intermediary_volumes"`

		IntermediaryDir string `yaml:"intermediaryDir" toml:"intermediary_dir"`

		// ReportDir receives QC charts when non-empty
		ReportDir string `yaml:"reportDir" toml:"report_dir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	// Logging parameters
	Logging struct {
		Level      string `yaml:"level" toml:"level"`
		Format     string `yaml:"format" toml:"format"`
		File       string `yaml:"file" toml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB" toml:"max_log_size"`
		MaxAgeDays int    `yaml:"maxAgeDays" toml:"max_log_age"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.PctBorder = 0

	// Normalization assumes these values; change them only when running
	// without normalization.
	cfg.Bands.Background = 0
	cfg.Bands.WMMin = 500
	cfg.Bands.WMMax = 1700
	cfg.Bands.GMMin = 1700
	cfg.Bands.GMMax = 3000
	cfg.Bands.MaskSet = 10000

	cfg.Stages.StripBorders = false
	cfg.Stages.CleanBackground = true
	cfg.Stages.NormalizeSlices = true
	cfg.Stages.NormalizeImage = true
	cfg.Stages.IntensityCorrect = true
	cfg.Stages.RemoveRind = true
	cfg.Stages.ConvertToMask = false
	cfg.Stages.Brighten = true
	cfg.Stages.BackgroundTexture = false

	cfg.Cleaning.SearchDist = 5
	cfg.Cleaning.InclusionReq = 3

	cfg.Normalization.SliceDists = []int{0, 1, 3}
	cfg.Normalization.NormRank = 200
	cfg.Normalization.TargetIntensity = 1785

	cfg.Mask.Dist = 2.0

	cfg.Rind.Thickness = 0.7
	cfg.Rind.Explore = 1.3
	cfg.Rind.Cutoff = 10
	cfg.Rind.BlurRange = 2.5
	cfg.Rind.ThresholdFraction = 0.90
	cfg.Rind.AdaptiveSearch = false
	cfg.Rind.WidenStep = 0.10
	cfg.Rind.MaxWidenSteps = 20
	cfg.Rind.FallbackFraction = 0.20
	cfg.Rind.CosmeticBlend = true
	cfg.Rind.CosmeticWeight = 0.40

	cfg.Binarize.CleanupReps = 5

	cfg.Brighten.Pct = 0.50

	cfg.Texture.Min = 1
	cfg.Texture.Max = 100
	cfg.Texture.Seed = 1

	cfg.Mirror.Side = "right"
	cfg.Mirror.MoveImage = false

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.SaveIntermediaryVolumes = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxAgeDays = 30

	return cfg
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(err, "error parsing TOML config file")
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "error parsing config file")
		}
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file, chosen by extension.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
		data = []byte(sb.String())
	default:
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// IntensityBands returns the configured bands in pre-inversion semantics
func (c *Config) IntensityBands() models.Bands {
	return models.Bands{
		Background: c.Bands.Background,
		WMMin:      c.Bands.WMMin,
		WMMax:      c.Bands.WMMax,
		GMMin:      c.Bands.GMMin,
		GMMax:      c.Bands.GMMax,
	}
}
