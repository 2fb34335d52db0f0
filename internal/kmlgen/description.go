package kmlgen

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/shaunagostinho/igc2kml/internal/igc"
)

// Line is one label/value pair of the placemark description.
type Line struct {
	Label string
	Value string
}

func (l Line) String() string { return l.Label + ": " + l.Value }

var describedHeaders = []struct {
	subtype string
	label   string
}{
	{igc.SubtypePilot, "Pilot"},
	{igc.SubtypeCompetitionID, "Competition ID"},
	{igc.SubtypeGliderType, "Glider"},
	{igc.SubtypeGliderID, "Glider ID"},
	{igc.SubtypeCompetitionClass, "Competition class"},
	{igc.SubtypeSite, "Site"},
}

// DescriptionLines returns the description content grouped into
// paragraphs: device, flight headers and date, manufacturer statistics.
// Empty paragraphs are dropped.
func DescriptionLines(log *igc.FlightLog) [][]Line {
	var groups [][]Line
	if log.DeviceName != "" {
		groups = append(groups, []Line{{"Device", log.DeviceName}})
	}

	var flight []Line
	for _, h := range describedHeaders {
		for _, v := range log.HeaderValues(h.subtype) {
			flight = append(flight, Line{h.label, v})
		}
	}
	if !log.Date.IsZero() {
		flight = append(flight, Line{"Date", log.Date.String()})
	}
	if len(flight) > 0 {
		groups = append(groups, flight)
	}

	if ext := ExtensionLines(log); len(ext) > 0 {
		groups = append(groups, ext)
	}
	return groups
}

// Description renders DescriptionLines as an HTML fragment.
func Description(log *igc.FlightLog) (string, error) {
	div := element(atom.Div)
	div.Attr = []html.Attribute{{Key: "style", Val: "width: 250;"}}
	for _, group := range DescriptionLines(log) {
		p := element(atom.P)
		for _, l := range group {
			strong := element(atom.Strong)
			strong.AppendChild(text(l.Label + ":"))
			dfn := element(atom.Dfn)
			dfn.AppendChild(text(l.Value))
			p.AppendChild(strong)
			p.AppendChild(dfn)
			p.AppendChild(element(atom.Br))
		}
		div.AppendChild(p)
	}

	var b strings.Builder
	if err := html.Render(&b, div); err != nil {
		return "", err
	}
	return b.String(), nil
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
