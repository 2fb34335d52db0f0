package kmlgen

import (
	"encoding/xml"
	"image/color"
	"io"
	"strings"
	"time"

	kml "github.com/twpayne/go-kml"

	"github.com/shaunagostinho/igc2kml/internal/igc"
)

const (
	iconHref      = "http://earth.google.com/images/kml-icons/track-directional/track-0.png"
	lineWidth     = 4
	snippetLength = "2"
)

// lineColor renders as 99ffac59 (aabbggrr).
var lineColor = color.RGBA{R: 0x59, G: 0xac, B: 0xff, A: 0x99}

// Options controls how the track is drawn.
type Options struct {
	ClampToGround bool `yaml:"clamp_to_ground" json:"clampToGround"`
	Extrude       bool `yaml:"extrude" json:"extrude"`
}

type trackPoint struct {
	when  time.Time
	coord kml.Coordinate
}

// Build renders log as a KML document containing a single track placemark
// called name.
func Build(log *igc.FlightLog, opts Options, name string) (string, error) {
	var b strings.Builder
	if err := Write(&b, log, opts, name); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Write is like Build but writes the document to w.
func Write(w io.Writer, log *igc.FlightLog, opts Options, name string) error {
	desc, err := Description(log)
	if err != nil {
		return err
	}
	doc := kml.GxKML(
		kml.Placemark(
			kml.Name(name),
			snippet(Snippet(log)),
			kml.Description(desc),
			kml.Style(
				kml.IconStyle(
					kml.Icon(
						kml.Href(iconHref),
					),
				),
				kml.LineStyle(
					kml.Color(lineColor),
					kml.Width(lineWidth),
				),
			),
			track(log, opts),
		),
	)
	return doc.WriteIndent(w, "", "  ")
}

// Snippet returns the short summary shown under the placemark name, e.g.
// "Flight from Mountain Valley on 21.04.24".
func Snippet(log *igc.FlightLog) string {
	s := "Flight"
	if site := log.Header(igc.SubtypeSite); site != "" {
		s += " from " + site
	}
	if !log.Date.IsZero() {
		s += " on " + log.Date.String()
	}
	return s
}

// snippet emits <Snippet maxLines="2">. kml.Snippet writes the deprecated
// lowercase <snippet>, which has no maxLines.
func snippet(text string) kml.Element {
	se := kml.Snippet(text)
	se.Name.Local = "Snippet"
	se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: "maxLines"}, Value: snippetLength})
	return se
}

func track(log *igc.FlightLog, opts Options) kml.Element {
	mode := kml.AltitudeModeAbsolute
	if opts.ClampToGround {
		mode = kml.AltitudeModeClampToGround
	}

	points := trackPoints(log)
	children := make([]kml.Element, 0, 2+2*len(points))
	children = append(children,
		kml.AltitudeMode(mode),
		kml.Extrude(opts.Extrude),
	)
	for _, p := range points {
		children = append(children, kml.When(p.when))
	}
	for _, p := range points {
		children = append(children, kml.GxCoord(p.coord))
	}
	return kml.GxTrack(children...)
}

// trackPoints pairs every fix with its timestamp so that the n-th when and
// the n-th coord always describe the same B-record.
func trackPoints(log *igc.FlightLog) []trackPoint {
	stamps := log.Timestamps()
	points := make([]trackPoint, len(log.Fixes))
	for i, f := range log.Fixes {
		points[i] = trackPoint{
			when: stamps[i],
			coord: kml.Coordinate{
				Lon: f.Position.Longitude,
				Lat: f.Position.Latitude,
				Alt: float64(f.GNSSAltitude),
			},
		}
	}
	return points
}
