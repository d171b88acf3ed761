package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LdDl/spotmate/internal/batch"
	"github.com/LdDl/spotmate/internal/config"
	"github.com/LdDl/spotmate/internal/export"
	"github.com/pkg/errors"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	exitOK    = 0
	exitSetup = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("spotmate", flag.ContinueOnError)
	configPath := flags.String("config", "", "JSON settings file; defaults reproduce the reference batch script")
	workers := flags.Int("workers", 1, "stacks processed in parallel")
	dbPath := flags.String("db", "", "also store results in this SQLite database")
	render := flags.Bool("render", false, "draw visible tracks into <stack>_tracks.png")
	pixelSize := flags.Float64("pixel-size", 0, "override pixel size of every stack (0 = use file calibration)")
	frameInterval := flags.Float64("frame-interval", 0, "override frame interval of every stack (0 = use file calibration)")
	version := flags.Bool("version", false, "print version and exit")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: spotmate [options] <folder>\n\nTracks particles in every .tif/.tiff/.gif stack of folder and writes <stack>.csv next to it.\n\nOptions:\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *version {
		fmt.Printf("spotmate %s (commit %s)\n", Version, GitCommit)
		return exitOK
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return exitUsage
	}
	folder := flags.Arg(0)

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Printf("Can't load config: %v", err)
			return exitSetup
		}
		cfg = loaded
	}
	settings, err := cfg.Settings()
	if err != nil {
		log.Printf("Bad config: %v", err)
		return exitSetup
	}
	override := cfg.CalibrationOverride()
	if *pixelSize > 0 {
		override.PixelSize = *pixelSize
	}
	if *frameInterval > 0 {
		override.FrameInterval = *frameInterval
	}

	paths, err := batch.Discover(folder)
	if err != nil {
		log.Printf("Can't discover stacks: %v", err)
		return exitSetup
	}
	if len(paths) == 0 {
		log.Printf("No stacks found in %s", folder)
	}

	options := batch.Options{
		Workers:     *workers,
		Exporters:   []export.Exporter{export.CSVExporter{}},
		Calibration: override,
	}
	if *render {
		options.Renderer = export.NewPNGRenderer("", settings.Detector.Channel)
	}
	var store *export.SQLiteStore
	if *dbPath != "" {
		store, err = export.OpenSQLiteStore(*dbPath)
		if err != nil {
			log.Printf("Can't open results database: %v", err)
			return exitSetup
		}
		defer store.Close()
		options.Exporters = append(options.Exporters, store)
	}

	b, err := batch.New(settings, options)
	if err != nil {
		log.Printf("Bad settings: %v", err)
		return exitSetup
	}
	if store != nil {
		if err := store.BeginRun(b.RunID(), folder); err != nil {
			log.Printf("Can't register run: %v", err)
			return exitSetup
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	report := b.Run(ctx, paths)
	for _, result := range report.Results {
		switch result.Status {
		case batch.StatusProcessed:
			fmt.Printf("%s\t%s\tspots %d/%d\ttracks %d/%d\n", result.Name, result.Status, result.SpotsVisible, result.SpotsDetected, result.TracksVisible, result.TracksFound)
		default:
			fmt.Printf("%s\t%s\t%v\n", result.Name, result.Status, result.Err)
		}
	}
	return exitOK
}
