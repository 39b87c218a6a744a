// Package pipeline runs the correction stages over a volume in order and
// keeps the per-stage metrics, the interior mask and the normalization
// profiles produced along the way.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"postmortemmri/internal/logging"
	"postmortemmri/internal/models"
	"postmortemmri/pkg/config"
	"postmortemmri/pkg/correction"
	"postmortemmri/pkg/report"
	"postmortemmri/pkg/visualization"
	"postmortemmri/pkg/volumeio"
)

// StageMetrics describes the grid produced by one stage
type StageMetrics struct {
	Stage   string
	Elapsed time.Duration

	// Changed counts voxels that differ from the stage input
	Changed int

	// Tissue counts non-background voxels; Mean and StdDev are taken over them
	Tissue int
	Mean   float64
	StdDev float64

	Min, Max int

	// Bytes is the in-memory size of the output grid
	Bytes int
}

// Fields renders the metrics as log fields
func (m StageMetrics) Fields() logrus.Fields {
	return logrus.Fields{
		"stage":   m.Stage,
		"elapsed": m.Elapsed.Round(time.Millisecond),
		"changed": humanize.Comma(int64(m.Changed)),
		"tissue":  humanize.Comma(int64(m.Tissue)),
		"mean":    fmt.Sprintf("%.1f", m.Mean),
		"stddev":  fmt.Sprintf("%.1f", m.StdDev),
		"range":   fmt.Sprintf("[%d, %d]", m.Min, m.Max),
		"memory":  humanize.Bytes(uint64(m.Bytes)),
	}
}

// Pipeline runs the configured stages. A Pipeline processes one grid at a
// time; the results of the last run stay available through its accessors.
type Pipeline struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	corrector *correction.Corrector

	bands     models.Bands
	step      int
	metrics   []StageMetrics
	mask      *models.Mask
	profiles  []correction.SectionProfile
	histogram *correction.Histogram
	rind      correction.RindStats
}

// NewPipeline creates a pipeline for cfg. The configuration is validated
// here so that a bad value fails before any voxel is touched.
func NewPipeline(cfg *config.Config, log logrus.FieldLogger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("nil configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Pipeline{
		cfg:       cfg,
		log:       log,
		corrector: correction.NewCorrector(cfg.Processing.NumCores, log),
	}, nil
}

// Process runs every enabled stage on g and returns the corrected grid. g is
// never modified. The context is checked between stages.
func (p *Pipeline) Process(ctx context.Context, g *models.Grid) (*models.Grid, error) {
	if err := g.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid input grid")
	}

	cfg := p.cfg
	c := p.corrector
	p.reset()
	bg := p.bands.Background

	p.log.WithFields(logrus.Fields{
		"shape":   fmt.Sprintf("%dx%dx%d", g.Nx, g.Ny, g.Nz),
		"spacing": fmt.Sprintf("%.3gx%.3gx%.3g", g.Spacing[0], g.Spacing[1], g.Spacing[2]),
		"workers": c.Workers(),
		"bands":   p.bands.String(),
	}).Info("Starting correction pipeline")
	p.saveIntermediaryResult("input", g)

	var err error
	if cfg.Stages.StripBorders && cfg.Processing.PctBorder > 0 {
		g, err = p.runStage(ctx, "strip_borders", g, func(in *models.Grid) *models.Grid {
			return c.StripBorders(in, cfg.Processing.PctBorder, bg)
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Stages.CleanBackground {
		g, err = p.runStage(ctx, "clean_background", g, func(in *models.Grid) *models.Grid {
			return c.CleanBackground(in, correction.CleanParams{
				SearchDist:   cfg.Cleaning.SearchDist,
				InclusionReq: cfg.Cleaning.InclusionReq,
				WMMin:        p.bands.WMMin,
				Background:   bg,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	// Section normalization assumes the pre-inversion contrast, so it only
	// runs as part of intensity correction.
	if cfg.Stages.IntensityCorrect && cfg.Stages.NormalizeSlices {
		for _, dist := range cfg.Normalization.SliceDists {
			g, err = p.runStage(ctx, fmt.Sprintf("normalize_slices_%d", dist), g, func(in *models.Grid) *models.Grid {
				out, profile := c.NormalizeSlices(in, correction.SliceParams{
					SliceDist: dist,
					Rank:      cfg.Normalization.NormRank,
					WMMin:     p.bands.WMMin,
					GMMax:     p.bands.GMMax,
				})
				p.profiles = append(p.profiles, profile)
				return out
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if cfg.Stages.NormalizeImage {
		g, err = p.runStage(ctx, "normalize_image", g, func(in *models.Grid) *models.Grid {
			out, h := c.NormalizeGlobal(in, cfg.Normalization.TargetIntensity, bg)
			if !h.Empty {
				p.log.WithFields(logrus.Fields{
					"mode":   h.Mode,
					"target": cfg.Normalization.TargetIntensity,
				}).Info("Moved histogram peak")
			}
			p.histogram = &h
			return out
		})
		if err != nil {
			return nil, err
		}
	}

	// Stages never write to their input, so the current grid is a stable
	// snapshot of the pre-inversion contrast.
	preFlip := g

	if cfg.Stages.IntensityCorrect {
		bands := p.bands
		g, err = p.runStage(ctx, "intensity_correct", g, func(in *models.Grid) *models.Grid {
			return c.Invert(in, bands)
		})
		if err != nil {
			return nil, err
		}
		p.bands = p.bands.Swapped()
	}

	if cfg.Stages.RemoveRind {
		g, err = p.runStage(ctx, "remove_rind", g, func(in *models.Grid) *models.Grid {
			p.mask = c.BuildMask(in, p.bands.GMMin, cfg.Mask.Dist)
			p.log.WithField("protected", humanize.Comma(int64(p.mask.Count()))).Info("Built interior mask")

			out, stats := c.RemoveRind(in, preFlip, p.mask, correction.RindParams{
				Bands:             p.bands,
				Thickness:         cfg.Rind.Thickness,
				Explore:           cfg.Rind.Explore,
				Cutoff:            cfg.Rind.Cutoff,
				BlurRange:         cfg.Rind.BlurRange,
				ThresholdFraction: cfg.Rind.ThresholdFraction,
				AdaptiveSearch:    cfg.Rind.AdaptiveSearch,
				WidenStep:         cfg.Rind.WidenStep,
				MaxWidenSteps:     cfg.Rind.MaxWidenSteps,
				FallbackFraction:  cfg.Rind.FallbackFraction,
				CosmeticBlend:     cfg.Rind.CosmeticBlend,
				CosmeticWeight:    cfg.Rind.CosmeticWeight,
			})
			entry := p.log.WithFields(stats.Fields())
			if stats.Fallbacks > 0 {
				entry.Warn("Some rind voxels had no usable neighbors and were set to the fallback intensity")
			} else {
				entry.Info("Removed rind")
			}
			p.rind = stats
			return out
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Stages.ConvertToMask {
		g, err = p.runStage(ctx, "convert_to_mask", g, func(in *models.Grid) *models.Grid {
			return c.Binarize(in, correction.BinarizeParams{
				Bands:       p.bands,
				BlurRange:   cfg.Rind.BlurRange,
				CleanupReps: cfg.Binarize.CleanupReps,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Stages.Brighten {
		g, err = p.runStage(ctx, "brighten", g, func(in *models.Grid) *models.Grid {
			return c.Brighten(in, cfg.Brighten.Pct, bg)
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Stages.BackgroundTexture {
		g, err = p.runStage(ctx, "background_texture", g, func(in *models.Grid) *models.Grid {
			return c.FillBackground(in, correction.TextureParams{
				Min:        cfg.Texture.Min,
				Max:        cfg.Texture.Max,
				Background: bg,
				Seed:       uint64(cfg.Texture.Seed),
			})
		})
		if err != nil {
			return nil, err
		}
	}

	if dir := cfg.Output.ReportDir; dir != "" {
		written, err := report.WriteAll(dir, p.profiles, p.histogram, cfg.Normalization.TargetIntensity)
		if err != nil {
			p.log.WithError(err).Warn("Failed to write QC report")
		}
		for _, path := range written {
			p.log.WithField("file", path).Info("Wrote QC chart")
		}
	}

	p.log.WithField("stages", len(p.metrics)).Info("Correction pipeline completed")
	return g, nil
}

func (p *Pipeline) reset() {
	p.bands = p.cfg.IntensityBands()
	p.step = 0
	p.metrics = nil
	p.mask = nil
	p.profiles = nil
	p.histogram = nil
	p.rind = correction.RindStats{}
}

// runStage runs fn on in, records its metrics and saves intermediary
// results when enabled.
func (p *Pipeline) runStage(ctx context.Context, name string, in *models.Grid, fn func(*models.Grid) *models.Grid) (*models.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "cancelled before %s", name)
	}

	p.step++
	p.log.Infof("Step %d: %s", p.step, name)

	start := time.Now()
	out := fn(in)
	m := measure(name, in, out, p.bands.Background)
	m.Elapsed = time.Since(start)

	p.metrics = append(p.metrics, m)
	p.log.WithFields(m.Fields()).Debug("Stage metrics")
	p.saveIntermediaryResult(name, out)
	return out, nil
}

// measure computes the statistics of out against the stage input
func measure(name string, in, out *models.Grid, background int) StageMetrics {
	tissue := make([]float64, 0, out.Len())
	for _, v := range out.Data {
		if v != background {
			tissue = append(tissue, float64(v))
		}
	}

	m := StageMetrics{
		Stage:   name,
		Changed: in.Diff(out),
		Tissue:  len(tissue),
		Bytes:   size.Of(out),
	}
	m.Min, m.Max = out.MinMax()
	if len(tissue) > 0 {
		m.Mean, m.StdDev = stat.MeanStdDev(tissue, nil)
	}
	return m
}

// saveIntermediaryResult saves the middle section along every axis and,
// optionally, the full grid under <dir>/<NN>_<stage>. Failures are logged
// and never stop the pipeline.
func (p *Pipeline) saveIntermediaryResult(stage string, g *models.Grid) {
	out := p.cfg.Output
	if !out.SaveIntermediaryResults {
		return
	}

	dir := filepath.Join(out.IntermediaryDir, fmt.Sprintf("%02d_%s", p.step, stage))
	if err := visualization.NewViewer(g).SaveMiddleSlices(dir, "png"); err != nil {
		p.log.WithError(err).WithField("stage", stage).Warn("Failed to save intermediary slices")
		return
	}

	if out.SaveIntermediaryVolumes {
		path := filepath.Join(dir, "volume.yaml")
		if err := volumeio.Write(path, &volumeio.Volume{Grid: g}, volumeio.Zstd); err != nil {
			p.log.WithError(err).WithField("stage", stage).Warn("Failed to save intermediary volume")
		}
	}
}

// GetMetrics returns the metrics of every stage run by the last Process call
func (p *Pipeline) GetMetrics() []StageMetrics {
	return p.metrics
}

// GetMask returns the interior mask of the last run, or nil if rind removal
// was disabled.
func (p *Pipeline) GetMask() *models.Mask {
	return p.mask
}

// Profiles returns one section profile per slice normalization pass
func (p *Pipeline) Profiles() []correction.SectionProfile {
	return p.profiles
}

// Histogram returns the global intensity histogram, or nil if global
// normalization was disabled.
func (p *Pipeline) Histogram() *correction.Histogram {
	return p.histogram
}

// RindStats returns the counters of the last rind removal
func (p *Pipeline) RindStats() correction.RindStats {
	return p.rind
}

// Bands returns the intensity bands in the semantics of the output grid
func (p *Pipeline) Bands() models.Bands {
	return p.bands
}
