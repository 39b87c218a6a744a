package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"postmortemmri/pkg/config"
	"postmortemmri/pkg/mirror"
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

func run(args []string) error {
	fs := flag.NewFlagSet("mrimirror", flag.ContinueOnError)
	inputPath := fs.String("input", "", "Volume header (.yaml) to mirror")
	outputPath := fs.String("output", "mirrored.yaml", "Volume header to write the result to")
	configPath := fs.String("config", "config.yaml", "Configuration file whose mirror section supplies defaults")
	mirrorLine := fs.Int("mirror-line", 0, "Offset of the mirror point from the middle of the axis, in voxels")
	side := fs.String("side", "", "Half to rewrite: left, right or none")
	checkOrient := fs.Bool("check-orient", false, "Blank everything past the mirror point to check orientation")
	moveSize := fs.Int("move-size", 0, "Voxels to shift the volume by before mirroring")
	moveImage := fs.Bool("move", false, "Shift the volume by -move-size before mirroring")
	flipVertical := fs.Bool("flip-vertical", false, "Move and mirror along the axial axis instead of the sagittal axis")
	compress := fs.Bool("compress", false, "Compress written voxel data with zstd")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *inputPath == "" {
		fs.Usage()
		return errMissingInput
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	// Flags given on the command line override the config file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mirror-line":
			cfg.Mirror.MirrorLine = *mirrorLine
		case "side":
			cfg.Mirror.Side = *side
		case "check-orient":
			cfg.Mirror.CheckOrient = *checkOrient
		case "move-size":
			cfg.Mirror.MoveSize = *moveSize
		case "move":
			cfg.Mirror.MoveImage = *moveImage
		case "flip-vertical":
			cfg.Mirror.FlipVertical = *flipVertical
		}
	})

	params, err := mirror.FromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid mirror settings")
	}

	vol, err := volumeio.Read(*inputPath)
	if err != nil {
		return errors.Wrap(err, "failed to read input volume")
	}
	g := vol.Grid
	axis := params.Axis()

	fmt.Println("================================")
	fmt.Println("HEMISPHERE MIRROR")
	fmt.Println("================================")
	fmt.Printf("Volume dimensions: %dx%dx%d\n", g.Nx, g.Ny, g.Nz)
	fmt.Printf("Mirror axis: %s, mirror point: %d, side: %s\n",
		axis, mirror.MirrorPoint(g, axis, params.MirrorLine), params.Side)
	if params.MoveImage {
		fmt.Printf("Shifting by %d voxels before mirroring\n", params.MoveSize)
	}
	if params.CheckOrient && params.Side != mirror.Right {
		fmt.Printf("Orientation check: %s positions past the mirror point are blanked\n", axis)
	}

	startTime := time.Now()
	out := mirror.Apply(g, params)

	compression := ""
	if *compress {
		compression = volumeio.Zstd
	}
	if err := volumeio.Write(*outputPath, &volumeio.Volume{Grid: out, Affine: vol.Affine}, compression); err != nil {
		return errors.Wrap(err, "failed to write output volume")
	}

	fmt.Printf("\n%s voxels changed in %.2f seconds\n", humanize.Comma(int64(g.Diff(out))), time.Since(startTime).Seconds())
	fmt.Printf("Output volume saved to: %s\n", *outputPath)
	return nil
}
