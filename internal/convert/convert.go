package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/igc2kml/internal/geodesy"
	"github.com/shaunagostinho/igc2kml/internal/igc"
	"github.com/shaunagostinho/igc2kml/internal/kmlgen"
)

var (
	ErrIsDirectory      = errors.New("not a file but a directory")
	ErrUnsupportedType  = errors.New("cannot read files of that type")
	ErrDestNotDirectory = errors.New("destination is not a directory")
)

// Result describes one converted flight.
type Result struct {
	Source     string  `json:"source,omitempty"`
	Output     string  `json:"output,omitempty"`
	Name       string  `json:"name"`
	Fixes      int     `json:"fixes"`
	DistanceKm float64 `json:"distanceKm"`
	KML        string  `json:"-"`
}

// FileOptions controls where File writes its output.
type FileOptions struct {
	kmlgen.Options

	// Destination is the output directory. Empty means next to the source.
	Destination string
	// KMZ writes a zipped doc.kml instead of plain KML.
	KMZ bool
	// Stdout, when set, receives the KML instead of a file.
	Stdout io.Writer
}

// Convert parses raw IGC text and renders it as KML.
func Convert(raw, name string, opts kmlgen.Options) (*Result, error) {
	flight, err := igc.Parse(raw)
	if err != nil {
		return nil, err
	}
	return Build(flight, name, opts)
}

// Build renders an already parsed flight.
func Build(flight *igc.FlightLog, name string, opts kmlgen.Options) (*Result, error) {
	doc, err := kmlgen.Build(flight, opts, name)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return &Result{
		Name:       name,
		Fixes:      len(flight.Fixes),
		DistanceKm: geodesy.TrackDistance(flight.Track()),
		KML:        doc,
	}, nil
}

// PlacemarkName returns the base name of path without its extension.
func PlacemarkName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputPath returns {dir}/{name}.kml, or .kmz when kmz is set. An empty
// dir means the directory of source.
func OutputPath(source, dir string, kmz bool) string {
	if dir == "" {
		dir = filepath.Dir(source)
	}
	ext := ".kml"
	if kmz {
		ext = ".kmz"
	}
	return filepath.Join(dir, PlacemarkName(source)+ext)
}

// File converts the IGC file at path and writes the result.
func File(path string, opts FileOptions) (*Result, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".igc") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, path)
	}
	if opts.Stdout == nil {
		if err := CheckDestination(opts.Destination); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := Convert(string(data), PlacemarkName(path), opts.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Source = path

	if opts.Stdout != nil {
		if _, err := io.WriteString(opts.Stdout, res.KML); err != nil {
			return nil, err
		}
		return res, nil
	}

	res.Output = OutputPath(path, opts.Destination, opts.KMZ)
	if opts.KMZ {
		err = writeKMZ(res.Output, res.KML)
	} else {
		err = os.WriteFile(res.Output, []byte(res.KML), 0644)
	}
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", res.Output, err)
	}
	log.WithFields(log.Fields{
		"component": "convert",
		"source":    path,
		"output":    res.Output,
		"fixes":     res.Fixes,
		"km":        fmt.Sprintf("%.1f", res.DistanceKm),
	}).Info("converted")
	return res, nil
}

// CheckDestination verifies that dir, if set, is an existing directory.
func CheckDestination(dir string) error {
	if dir == "" {
		return nil
	}
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return fmt.Errorf("%w: %s", ErrDestNotDirectory, dir)
	}
	return nil
}

// KMZ packs a KML document into a KMZ archive.
func KMZ(doc string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("doc.kml")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, doc); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeKMZ(path, doc string) error {
	data, err := KMZ(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
