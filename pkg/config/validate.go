package config

import (
	"github.com/pkg/errors"
)

var (
	ErrBandOrder       = errors.New("intensity bands out of order")
	ErrMaskCollision   = errors.New("mask sentinel collides with tissue intensities")
	ErrInvalidDistance = errors.New("distance must not be negative")
	ErrInvalidCount    = errors.New("count out of range")
	ErrInvalidFraction = errors.New("fraction out of range")
	ErrInvalidOption   = errors.New("unknown option value")
)

// Validate checks the configuration for inconsistencies that would silently
// corrupt the output. It must be called before any processing starts.
func (c *Config) Validate() error {
	b := c.IntensityBands()
	if !b.Ordered() {
		return errors.Wrapf(ErrBandOrder, "need background < wmMin <= wmMax <= gmMin <= gmMax, got %s", b)
	}

	// Brightening scales tissue upward, so the sentinel has to clear the
	// brightest value tissue can reach as well.
	ceiling := float64(b.GMMax)
	if c.Stages.Brighten && c.Brighten.Pct > 0 {
		ceiling *= 1 + c.Brighten.Pct
	}
	if c.Bands.MaskSet >= b.Background && float64(c.Bands.MaskSet) <= ceiling {
		return errors.Wrapf(ErrMaskCollision, "maskSet %d lies within [%d, %.0f]", c.Bands.MaskSet, b.Background, ceiling)
	}

	if c.Processing.NumCores < 1 {
		return errors.Wrapf(ErrInvalidCount, "numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.PctBorder < 0 || c.Processing.PctBorder >= 0.5 {
		return errors.Wrapf(ErrInvalidFraction, "pctBorder must be in [0, 0.5), got %g", c.Processing.PctBorder)
	}

	if c.Cleaning.SearchDist < 0 {
		return errors.Wrapf(ErrInvalidDistance, "searchDist %d", c.Cleaning.SearchDist)
	}
	if c.Cleaning.InclusionReq < 0 || c.Cleaning.InclusionReq > 3 {
		return errors.Wrapf(ErrInvalidCount, "inclusionReq must be in [0, 3], got %d", c.Cleaning.InclusionReq)
	}

	for _, d := range c.Normalization.SliceDists {
		if d < 0 {
			return errors.Wrapf(ErrInvalidDistance, "sliceDists entry %d", d)
		}
	}
	if c.Normalization.NormRank < 1 {
		return errors.Wrapf(ErrInvalidCount, "normRank must be at least 1, got %d", c.Normalization.NormRank)
	}

	if c.Mask.Dist < 0 {
		return errors.Wrapf(ErrInvalidDistance, "mask dist %g", c.Mask.Dist)
	}
	if c.Rind.Thickness < 0 || c.Rind.Explore < 0 || c.Rind.BlurRange < 0 {
		return errors.Wrapf(ErrInvalidDistance, "rind thickness %g, explore %g, blurRange %g",
			c.Rind.Thickness, c.Rind.Explore, c.Rind.BlurRange)
	}
	if c.Rind.Cutoff < 1 {
		return errors.Wrapf(ErrInvalidCount, "rind cutoff must be at least 1, got %d", c.Rind.Cutoff)
	}
	if c.Rind.ThresholdFraction <= 0 {
		return errors.Wrapf(ErrInvalidFraction, "rind thresholdFraction must be positive, got %g", c.Rind.ThresholdFraction)
	}
	if c.Rind.FallbackFraction < 0 || c.Rind.FallbackFraction > 1 {
		return errors.Wrapf(ErrInvalidFraction, "rind fallbackFraction must be in [0, 1], got %g", c.Rind.FallbackFraction)
	}
	if c.Rind.AdaptiveSearch && (c.Rind.WidenStep <= 0 || c.Rind.MaxWidenSteps < 1) {
		return errors.Wrapf(ErrInvalidCount, "adaptive rind search needs widenStep > 0 and maxWidenSteps >= 1, got %g and %d",
			c.Rind.WidenStep, c.Rind.MaxWidenSteps)
	}

	if c.Binarize.CleanupReps < 0 {
		return errors.Wrapf(ErrInvalidCount, "cleanupReps %d", c.Binarize.CleanupReps)
	}
	if c.Brighten.Pct <= -1 {
		return errors.Wrapf(ErrInvalidFraction, "brighten pct must be greater than -1, got %g", c.Brighten.Pct)
	}
	if c.Texture.Min > c.Texture.Max {
		return errors.Wrapf(ErrInvalidCount, "texture min %d exceeds max %d", c.Texture.Min, c.Texture.Max)
	}

	switch c.Mirror.Side {
	case "left", "right", "none":
	default:
		return errors.Wrapf(ErrInvalidOption, "mirror side %q (must be left, right or none)", c.Mirror.Side)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.Wrapf(ErrInvalidOption, "logging format %q (must be text or json)", c.Logging.Format)
	}

	return nil
}
