package igc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/igc2kml/internal/geodesy"
)

// Header subtypes rendered in flight descriptions.
const (
	SubtypePilot            = "PLT"
	SubtypeCompetitionID    = "CID"
	SubtypeGliderType       = "GTY"
	SubtypeGliderID         = "GID"
	SubtypeCompetitionClass = "CCL"
	SubtypeSite             = "SIT"
)

// FlightLog is the parsed content of one IGC file. It is not modified after
// Parse returns, and it must not be copied.
type FlightLog struct {
	Manufacturer string `json:"manufacturer"`
	DeviceID     string `json:"deviceId,omitempty"`
	DeviceName   string `json:"deviceName,omitempty"`

	Date       Date              `json:"date"`
	Headers    []HeaderField     `json:"headers"`
	Fixes      []Fix             `json:"-"`
	Extensions []ExtensionRecord `json:"extensions,omitempty"`

	indexOnce sync.Once
	bySubtype map[string][]string
}

// HeaderField is one H-record, e.g. HFPLTPILOT:John Doe has Source 'F',
// Subtype "PLT", Key "PILOT" and Value "John Doe".
type HeaderField struct {
	Source  byte   `json:"-"`
	Subtype string `json:"subtype"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

// Date is the UTC flight date from HFDTE. Year has two digits.
type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Fix is one B-record.
type Fix struct {
	Hour             int                `json:"hour"`
	Minute           int                `json:"minute"`
	Second           int                `json:"second"`
	Position         geodesy.Coordinate `json:"position"`
	Valid            bool               `json:"valid"`
	PressureAltitude int                `json:"pressureAlt"`
	GNSSAltitude     int                `json:"gnssAlt"`
}

// ExtensionRecord is one L-record.
type ExtensionRecord struct {
	Code    string `json:"code"`
	Payload string `json:"payload"`
}

func (d Date) IsZero() bool { return d == Date{} }

// String renders the date as DD.MM.YY.
func (d Date) String() string {
	return fmt.Sprintf("%02d.%02d.%02d", d.Day, d.Month, d.Year)
}

// Time returns midnight UTC of the date, with the year taken as 2000+YY.
// The zero Date maps to 2000-01-01.
func (d Date) Time() time.Time {
	if d.IsZero() {
		return time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(2000+d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// SecondOfDay returns the fix time as seconds since midnight.
func (f Fix) SecondOfDay() int {
	return f.Hour*3600 + f.Minute*60 + f.Second
}

// HeaderValues returns the trimmed non-empty values of every header with
// the given subtype, in file order.
func (l *FlightLog) HeaderValues(subtype string) []string {
	l.indexOnce.Do(l.index)
	return l.bySubtype[strings.ToUpper(subtype)]
}

// Header returns the first non-empty value for subtype, or "".
func (l *FlightLog) Header(subtype string) string {
	if v := l.HeaderValues(subtype); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Track returns the fix positions in file order.
func (l *FlightLog) Track() []geodesy.Coordinate {
	track := make([]geodesy.Coordinate, len(l.Fixes))
	for i, f := range l.Fixes {
		track[i] = f.Position
	}
	return track
}

// Timestamps returns one UTC time per fix, in fix order. The date advances
// by a day whenever the time of day goes backwards, so flights crossing
// midnight UTC stay monotonic.
func (l *FlightLog) Timestamps() []time.Time {
	day := l.Date.Time()
	stamps := make([]time.Time, len(l.Fixes))
	prev := -1
	for i, f := range l.Fixes {
		sod := f.SecondOfDay()
		if sod < prev {
			day = day.AddDate(0, 0, 1)
		}
		prev = sod
		stamps[i] = day.Add(time.Duration(sod) * time.Second)
	}
	return stamps
}

func (l *FlightLog) index() {
	l.bySubtype = make(map[string][]string)
	for _, h := range l.Headers {
		if v := strings.TrimSpace(h.Value); v != "" {
			l.bySubtype[h.Subtype] = append(l.bySubtype[h.Subtype], v)
		}
	}
}
