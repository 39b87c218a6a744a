package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"postmortemmri/internal/logging"
	"postmortemmri/internal/models"
	"postmortemmri/pkg/config"
	"postmortemmri/pkg/pipeline"
	"postmortemmri/pkg/visualization"
	"postmortemmri/pkg/volumeio"
)

var errMissingInput = errors.New("no input volume given")

func main() {
	err := run(os.Args[1:])
	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// run parses args and processes one volume. Errors are returned instead of
// exiting so deferred cleanup always runs.
func run(args []string) error {
	fs := flag.NewFlagSet("postmortemmri", flag.ContinueOnError)

	// Parse command line arguments
	inputPath := fs.String("input", "", "Volume header (.yaml) to process")
	outputPath := fs.String("output", "output.yaml", "Volume header to write the corrected volume to")
	configPath := fs.String("config", "config.yaml", "Configuration file (.yaml or .toml); defaults are used if it does not exist")
	numCores := fs.Int("cores", 0, "Number of CPU cores to use (default: value from config)")
	writeConfig := fs.String("write-config", "", "Write the default configuration to this path and exit")
	compress := fs.Bool("compress", false, "Compress written voxel data with zstd")
	extractSlices := fs.Bool("extract-slices", false, "Extract and save corrected slices along all axes")
	slicesDir := fs.String("slices-dir", "corrected_slices", "Directory to save extracted slices")
	maskOutput := fs.String("mask-output", "", "Also write the interior mask overlay to this volume header")
	reportDir := fs.String("report", "", "Directory for QC charts (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			return errors.Wrap(err, "failed to write default configuration")
		}
		fmt.Printf("Default configuration written to: %s\n", *writeConfig)
		return nil
	}

	// Validate inputs
	if *inputPath == "" {
		fs.Usage()
		return errMissingInput
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *reportDir != "" {
		cfg.Output.ReportDir = *reportDir
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return errors.Wrap(err, "failed to set up logging")
	}
	defer closer.Close()
	if !cfg.Output.Verbose && logger.GetLevel() > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}

	compression := ""
	if *compress {
		compression = volumeio.Zstd
	}

	fmt.Println("================================")
	fmt.Println("POSTMORTEM BRAIN MRI CORRECTION")
	fmt.Println("Prepares ex vivo scans for cortical surface reconstruction")
	fmt.Println("================================")

	vol, err := volumeio.Read(*inputPath)
	if err != nil {
		return errors.Wrap(err, "failed to read input volume")
	}
	g := vol.Grid
	fmt.Printf("Loaded %dx%dx%d volume (%.3g x %.3g x %.3g mm voxels)\n",
		g.Nx, g.Ny, g.Nz, g.Spacing[0], g.Spacing[1], g.Spacing[2])

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to create pipeline")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Starting correction with %d workers...\n", cfg.Processing.NumCores)
	startTime := time.Now()
	out, err := p.Process(ctx, g)
	if err != nil {
		return errors.Wrap(err, "correction failed")
	}
	processingTime := time.Since(startTime)

	if err := volumeio.Write(*outputPath, &volumeio.Volume{Grid: out, Affine: vol.Affine}, compression); err != nil {
		return errors.Wrap(err, "failed to write output volume")
	}

	fmt.Printf("\nCorrection completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output volume saved to: %s\n\n", *outputPath)

	fmt.Printf("Stage Metrics:\n")
	fmt.Printf("==============\n")
	fmt.Printf("%-22s %10s %12s %12s %9s %9s\n", "Stage", "Time", "Changed", "Tissue", "Mean", "StdDev")
	for _, m := range p.GetMetrics() {
		fmt.Printf("%-22s %10s %12s %12s %9.1f %9.1f\n",
			m.Stage,
			m.Elapsed.Round(time.Millisecond),
			humanize.Comma(int64(m.Changed)),
			humanize.Comma(int64(m.Tissue)),
			m.Mean, m.StdDev)
	}

	if cfg.Stages.RemoveRind {
		stats := p.RindStats()
		fmt.Println("\nRind removal:")
		fmt.Printf("- Interior voxels protected: %s\n", humanize.Comma(int64(p.GetMask().Count())))
		fmt.Printf("- Rind voxels replaced: %s (%s protected, %s widened, %s fallback)\n",
			humanize.Comma(int64(stats.Candidates)),
			humanize.Comma(int64(stats.Protected)),
			humanize.Comma(int64(stats.Widened)),
			humanize.Comma(int64(stats.Fallbacks)))
		fmt.Printf("- Rind voxels re-textured: %s\n", humanize.Comma(int64(stats.Blended)))
	}

	if *maskOutput != "" {
		if mask := p.GetMask(); mask == nil {
			log.Printf("Warning: rind removal is disabled, no mask to write")
		} else if err := volumeio.WriteMask(*maskOutput, mask, cfg.Bands.MaskSet, vol, compression); err != nil {
			log.Printf("Warning: Failed to write mask: %v", err)
		} else {
			fmt.Printf("\nInterior mask saved to: %s\n", *maskOutput)
		}
	}

	// Extract and save slices if requested
	if *extractSlices {
		fmt.Println("\nExtracting corrected slices along all axes...")
		viewer := visualization.NewViewer(out)

		for _, axis := range []models.Axis{models.Axial, models.Sagittal, models.Coronal} {
			axisDir := filepath.Join(*slicesDir, axis.String())
			fmt.Printf("Saving %s slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir, "png"); err != nil {
				log.Printf("Warning: Failed to save %s slices: %v", axis, err)
			}
		}

		fmt.Println("Slice extraction completed!")
	}

	if cfg.Output.ReportDir != "" {
		fmt.Printf("\nQC charts saved to: %s\n", cfg.Output.ReportDir)
	}

	// Print information about intermediary results if saved
	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", cfg.Output.IntermediaryDir)
		fmt.Println("Each stage directory holds its middle axial, sagittal and coronal sections.")
	}

	return nil
}
