package igc

import (
	"strconv"
	"strings"

	"github.com/shaunagostinho/igc2kml/internal/geodesy"
)

// Record is one classified IGC line. The concrete types are ARecord,
// HRecord, DateRecord, BRecord, LRecord and UnknownRecord.
type Record interface {
	Kind() byte
}

// ARecord identifies the flight recorder.
type ARecord struct {
	Manufacturer string
	DeviceID     string
	DeviceName   string
}

// HRecord is a labelled header field such as HFPLTPILOT:John Doe.
type HRecord struct {
	Field HeaderField
}

// DateRecord is the HFDTE header.
type DateRecord struct {
	Date Date
}

// BRecord is a single position fix.
type BRecord struct {
	Fix Fix
}

// LRecord is a manufacturer defined log line.
type LRecord struct {
	Extension ExtensionRecord
}

// UnknownRecord is any line the classifier does not understand, including
// malformed A, H, B and L lines.
type UnknownRecord struct {
	Line string
}

func (ARecord) Kind() byte       { return 'A' }
func (HRecord) Kind() byte       { return 'H' }
func (DateRecord) Kind() byte    { return 'H' }
func (BRecord) Kind() byte       { return 'B' }
func (LRecord) Kind() byte       { return 'L' }
func (UnknownRecord) Kind() byte { return 0 }

// B-record layout: B HHMMSS DDMMmmmN DDDMMmmmE V PPPPP GGGGG
const (
	bTime     = 1
	bLat      = 7
	bLon      = 15
	bValidity = 24
	bPress    = 25
	bGNSS     = 30
	bLen      = 35
)

// ParseRecord classifies a single line. It never fails; lines that do not
// match the grammar of their record type come back as UnknownRecord.
func ParseRecord(line string) Record {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return UnknownRecord{Line: line}
	}

	var r Record
	var ok bool
	switch line[0] {
	case 'A', 'a':
		r, ok = parseA(line)
	case 'H', 'h':
		r, ok = parseH(line)
	case 'B', 'b':
		r, ok = parseB(line)
	case 'L', 'l':
		r, ok = parseL(line)
	}
	if !ok {
		return UnknownRecord{Line: line}
	}
	return r
}

func parseA(line string) (Record, bool) {
	rest := line[1:]
	n := alnumPrefix(rest, 6)
	if n < 3 {
		return nil, false
	}
	a := ARecord{Manufacturer: rest[:3]}
	if n == 6 {
		a.DeviceID = rest[3:6]
	}
	a.DeviceName = strings.TrimSpace(rest[n:])
	return a, true
}

func parseH(line string) (Record, bool) {
	if len(line) < 5 {
		return nil, false
	}
	source := upper(line[1])
	if source != 'F' && source != 'O' && source != 'P' {
		return nil, false
	}
	subtype := strings.ToUpper(line[2:5])
	if !isWord(subtype) {
		return nil, false
	}

	if source == 'F' && subtype == "DTE" {
		if d, ok := parseDate(line[5:]); ok {
			return DateRecord{Date: d}, true
		}
		return nil, false
	}

	key, value, found := strings.Cut(line[5:], ":")
	if !found {
		return nil, false
	}
	return HRecord{Field: HeaderField{
		Source:  source,
		Subtype: subtype,
		Key:     key,
		Value:   value,
	}}, true
}

// parseDate accepts both DDMMYY and the newer DATE:DDMMYY,NN form.
func parseDate(s string) (Date, bool) {
	if _, v, found := strings.Cut(s, ":"); found {
		s = v
	}
	if len(s) < 6 || !isDigits(s[:6]) {
		return Date{}, false
	}
	day, _ := strconv.Atoi(s[0:2])
	month, _ := strconv.Atoi(s[2:4])
	year, _ := strconv.Atoi(s[4:6])
	return Date{Day: day, Month: month, Year: year}, true
}

func parseB(line string) (Record, bool) {
	if len(line) < bLen {
		return nil, false
	}
	if !isDigits(line[bTime:bLat]) {
		return nil, false
	}
	pos, err := geodesy.ToDecimalDegrees(line[bLat:bLon], line[bLon:bValidity])
	if err != nil {
		return nil, false
	}
	validity := line[bValidity]
	if validity != 'A' && validity != 'V' {
		return nil, false
	}
	press, ok := parseAltitude(line[bPress:bGNSS])
	if !ok {
		return nil, false
	}
	gnss, ok := parseAltitude(line[bGNSS:bLen])
	if !ok {
		return nil, false
	}

	hh, _ := strconv.Atoi(line[1:3])
	mm, _ := strconv.Atoi(line[3:5])
	ss, _ := strconv.Atoi(line[5:7])
	return BRecord{Fix: Fix{
		Hour:             hh,
		Minute:           mm,
		Second:           ss,
		Position:         pos,
		Valid:            validity == 'A',
		PressureAltitude: press,
		GNSSAltitude:     gnss,
	}}, true
}

// parseAltitude reads a 5 character altitude, allowing a leading minus.
func parseAltitude(s string) (int, bool) {
	digits := s
	if s[0] == '-' {
		digits = s[1:]
	}
	if !isDigits(digits) {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseL(line string) (Record, bool) {
	rest := line[1:]
	if alnumPrefix(rest, 3) == 3 {
		return LRecord{Extension: ExtensionRecord{Code: rest[:3], Payload: rest[3:]}}, true
	}
	if rest == "" {
		return nil, false
	}
	switch upper(rest[0]) {
	case 'P', 'L', 'T', 'F', 'C':
		return LRecord{Extension: ExtensionRecord{Code: rest[:1], Payload: rest[1:]}}, true
	}
	return nil, false
}

func alnumPrefix(s string, max int) int {
	n := 0
	for n < len(s) && n < max && isAlnum(s[n]) {
		n++
	}
	if n > 3 && n < 6 {
		n = 3
	}
	return n
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) && s[i] != '_' {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
