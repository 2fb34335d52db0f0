package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/igc2kml/internal/config"
	"github.com/shaunagostinho/igc2kml/internal/convert"
	"github.com/shaunagostinho/igc2kml/internal/logger"
	"github.com/shaunagostinho/igc2kml/internal/recorder"
	"github.com/shaunagostinho/igc2kml/internal/server"
	"github.com/shaunagostinho/igc2kml/web"
)

const (
	exitOK               = 0
	exitFailure          = 1
	exitUsage            = 2
	exitDestNotDirectory = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("igc2kml", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: igc2kml [flags] FILE...\n       igc2kml -serve [-listen ADDR]\n       igc2kml -download PORT [-o FILE]\n\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Path to config file")
	dest := fs.String("d", "", "Destination directory for converted files")
	stdout := fs.Bool("s", false, "Write KML to stdout instead of files")
	clamp := fs.Bool("c", false, "Clamp the track to the ground")
	extrude := fs.Bool("e", false, "Extrude the track to the ground")
	kmz := fs.Bool("z", false, "Write zipped KMZ files")
	serve := fs.Bool("serve", false, "Run the HTTP conversion service")
	listenAddr := fs.String("listen", "", "Override listen address (e.g. :8080)")
	port := fs.String("download", "", "Download a flight from the recorder on this serial port")
	out := fs.String("o", "", "File to save a downloaded flight to")
	demo := fs.Bool("demo", false, "Download a simulated flight instead of using a serial recorder")
	verbose := fs.Bool("v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg := config.Load(*configPath)
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	closer := logger.Setup(cfg.Logging)
	defer closer.Close()

	// Flags override config; only flags that were set count.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			cfg.Convert.Destination = *dest
		case "c":
			cfg.Convert.ClampToGround = *clamp
		case "e":
			cfg.Convert.Extrude = *extrude
		case "z":
			cfg.Convert.KMZ = *kmz
		case "listen":
			cfg.Server.ListenAddr = *listenAddr
		case "download":
			cfg.Recorder.PortPath = *port
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fileOpts := convert.FileOptions{
		Options:     cfg.Convert.Options,
		Destination: cfg.Convert.Destination,
		KMZ:         cfg.Convert.KMZ,
	}
	if *stdout {
		fileOpts.Stdout = os.Stdout
	}

	// The server never writes files, so only the other modes need a usable
	// destination.
	checkDestination := func() bool {
		if *stdout {
			return true
		}
		if err := convert.CheckDestination(cfg.Convert.Destination); err != nil {
			log.WithField("component", "main").Error(err)
			return false
		}
		return true
	}

	switch {
	case *serve:
		srv := server.New(cfg, web.FS)
		if err := srv.Run(ctx); err != nil {
			log.WithField("component", "main").Errorf("server exited: %v", err)
			return exitFailure
		}
		return exitOK

	case *port != "" || *demo:
		if !checkDestination() {
			return exitDestNotDirectory
		}
		var src recorder.Source
		if *demo {
			src = recorder.NewDemo(time.Now().Add(-time.Hour), 0)
		} else {
			src = recorder.NewSerial(cfg.Recorder)
		}
		path, err := download(ctx, src, *out, cfg.Convert.Destination)
		if err != nil {
			log.WithField("component", "main").Errorf("download failed: %v", err)
			return exitFailure
		}
		if _, err := convert.File(path, fileOpts); err != nil {
			log.WithField("component", "main").Error(err)
			return exitFailure
		}
		return exitOK
	}

	paths := fs.Args()
	if len(paths) == 0 {
		fs.Usage()
		return exitUsage
	}
	if !checkDestination() {
		return exitDestNotDirectory
	}

	results, err := convert.Batch(ctx, paths, convert.BatchOptions{
		FileOptions: fileOpts,
		Workers:     cfg.Convert.Workers,
	})
	if err != nil {
		if errors.Is(err, convert.ErrDestNotDirectory) {
			return exitDestNotDirectory
		}
		converted := 0
		for _, r := range results {
			if r != nil {
				converted++
			}
		}
		log.WithField("component", "main").Errorf("%d of %d files failed", len(paths)-converted, len(paths))
		return exitFailure
	}
	return exitOK
}

// download fetches one flight from src and saves it as IGC text. Without an
// explicit out path the file is named after the current time in dir.
func download(ctx context.Context, src recorder.Source, out, dir string) (string, error) {
	if err := connectWithRetry(ctx, src.Name(), src, 5); err != nil {
		return "", err
	}
	defer src.Close()

	log.WithField("component", "recorder").Infof("waiting for flight from %s", src.Name())
	data, err := src.Download(ctx)
	if err != nil {
		return "", err
	}

	if out == "" {
		out = filepath.Join(dir, time.Now().Format("2006-01-02-150405")+".igc")
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("save %s: %w", out, err)
	}
	log.WithField("component", "recorder").Infof("saved %d bytes to %s", len(data), out)
	return out, nil
}

// connectWithRetry attempts to connect with exponential backoff, starting at
// 1s and doubling up to 30s. It gives up after maxAttempts.
func connectWithRetry(ctx context.Context, name string, src recorder.Source, maxAttempts int) error {
	delay := 1 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 1; ; attempt++ {
		err := src.Connect()
		if err == nil {
			log.WithField("component", "recorder").Infof("%s connected (attempt %d)", name, attempt)
			return nil
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("connect %s: %w", name, err)
		}
		log.WithField("component", "recorder").Warnf("connect attempt %d/%d failed: %v (retry in %v)",
			attempt, maxAttempts, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
