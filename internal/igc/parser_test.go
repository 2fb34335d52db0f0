package igc

import (
	"errors"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func loadSample(t *testing.T) *FlightLog {
	t.Helper()
	data, err := os.ReadFile("testdata/sample.igc")
	if err != nil {
		t.Fatal(err)
	}
	log, err := Parse(string(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return log
}

func TestParseSample(t *testing.T) {
	log := loadSample(t)

	if log.Manufacturer != "XSX" || log.DeviceID != "dev" || log.DeviceName != "ice123 Model X" {
		t.Errorf("A record = %q %q %q", log.Manufacturer, log.DeviceID, log.DeviceName)
	}
	if log.Date != (Date{Day: 21, Month: 4, Year: 24}) {
		t.Errorf("date = %+v", log.Date)
	}
	if len(log.Fixes) != 3 {
		t.Fatalf("expected 3 fixes, got %d", len(log.Fixes))
	}
	if len(log.Extensions) != 2 {
		t.Fatalf("expected 2 L records, got %d", len(log.Extensions))
	}
	if log.Extensions[0] != (ExtensionRecord{Code: "XSX", Payload: "MC:3.5;MS:-2.1;MSP:95;Dist:120"}) {
		t.Errorf("first L record = %+v", log.Extensions[0])
	}

	var subtypes []string
	for _, h := range log.Headers {
		subtypes = append(subtypes, h.Subtype)
	}
	if got := strings.Join(subtypes, ","); got != "PLT,CID,GTY,GID,SIT,CCL,GPS" {
		t.Errorf("header order = %s", got)
	}

	expected := map[string]string{
		SubtypePilot:            "John Doe",
		SubtypeCompetitionID:    "JD1",
		SubtypeGliderType:       "Advance Sigma 10",
		SubtypeGliderID:         "",
		SubtypeSite:             "Mountain Valley",
		SubtypeCompetitionClass: "Serial",
	}
	for sub, v := range expected {
		if got := log.Header(sub); got != v {
			t.Errorf("Header(%s) = %q, expected %q", sub, got, v)
		}
	}
}

func TestParseFixes(t *testing.T) {
	log := loadSample(t)

	f := log.Fixes[0]
	if f.Hour != 9 || f.Minute != 15 || f.Second != 20 {
		t.Errorf("time = %02d:%02d:%02d", f.Hour, f.Minute, f.Second)
	}
	if math.Abs(f.Position.Latitude-45.516667) > 1e-5 || math.Abs(f.Position.Longitude-8.533333) > 1e-5 {
		t.Errorf("position = %+v", f.Position)
	}
	if !f.Valid || f.PressureAltitude != 420 || f.GNSSAltitude != 480 {
		t.Errorf("fix = %+v", f)
	}

	if log.Fixes[1].GNSSAltitude != 485 {
		t.Errorf("extended B record GNSS altitude = %d", log.Fixes[1].GNSSAltitude)
	}
	if log.Fixes[2].Valid {
		t.Errorf("V fix parsed as valid")
	}
}

func TestParseMissingARecord(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no A record", "HFDTE210424\nB0915204531000N00832000EA0042000480\n"},
		{"short A record", "AX1\nHFDTE210424\n"},
		{"A not at line start", " AXSX001\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Fatalf("expected ErrInvalidFormat, got %v", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Errorf("expected *FormatError, got %T", err)
			}
		})
	}
}

func TestParseTolerance(t *testing.T) {
	raw := strings.Join([]string{
		"afla6ngLXNAV",
		"HFDTEDATE:010723,01",
		"B0915204531000N00832000EA00420",      // short
		"B0915204531000N00832000XA0042000480", // bad hemisphere
		"B09152045310X0N00832000EA0042000480", // bad latitude digit
		"B0915204531000N00832000EZ0042000480", // bad validity
		"B2359594531000S00832000WA-001200010",
		"XUNKNOWNRECORD",
		"LX",
		"",
	}, "\r\n")

	log, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if log.Manufacturer != "fla" || log.DeviceID != "6ng" || log.DeviceName != "LXNAV" {
		t.Errorf("A record = %q %q %q", log.Manufacturer, log.DeviceID, log.DeviceName)
	}
	if log.Date != (Date{Day: 1, Month: 7, Year: 23}) {
		t.Errorf("date = %+v", log.Date)
	}
	if len(log.Fixes) != 1 {
		t.Fatalf("expected 1 fix, got %d", len(log.Fixes))
	}
	f := log.Fixes[0]
	if f.Position.Latitude >= 0 || f.Position.Longitude >= 0 {
		t.Errorf("S/W fix has non-negative position %+v", f.Position)
	}
	if f.PressureAltitude != -12 || f.GNSSAltitude != 10 {
		t.Errorf("altitudes = %d %d", f.PressureAltitude, f.GNSSAltitude)
	}
	if len(log.Extensions) != 0 {
		t.Errorf("unexpected L records %+v", log.Extensions)
	}
}

func TestParseLongLine(t *testing.T) {
	raw := "AXSX001 dev\nHFDTE210424\nLXSX" + strings.Repeat("x", 70000) +
		"\nB0915204531000N00832000EA0042000480\nLXSXMC:1.0"

	log, err := ParseReader(strings.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(log.Fixes) != 1 || log.Fixes[0].GNSSAltitude != 480 {
		t.Errorf("fixes after long line = %+v", log.Fixes)
	}
	if len(log.Extensions) != 1 || log.Extensions[0].Payload != "MC:1.0" {
		t.Errorf("extensions = %+v", log.Extensions)
	}
}

func TestHeaderValuesConcurrent(t *testing.T) {
	log := &FlightLog{
		Manufacturer: "XCT",
		Headers: []HeaderField{
			{Source: 'F', Subtype: "PLT", Key: "PILOT", Value: "Alice"},
			{Source: 'O', Subtype: "SIT", Key: "SITE", Value: "Hill"},
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v := log.Header(SubtypePilot); v != "Alice" {
				t.Errorf("Header(PLT) = %q", v)
			}
			if v := log.HeaderValues(SubtypeSite); len(v) != 1 {
				t.Errorf("HeaderValues(SIT) = %q", v)
			}
		}()
	}
	wg.Wait()
}

func TestParseDuplicateHeaders(t *testing.T) {
	raw := "AXCT\nHFPLTPILOT:Alice\nHFPLTPILOT: \nHFPLTCOPILOT:Bob\n"
	log, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(log.Headers) != 3 {
		t.Errorf("expected all 3 PLT headers retained, got %d", len(log.Headers))
	}
	got := log.HeaderValues("plt")
	if len(got) != 2 || got[0] != "Alice" || got[1] != "Bob" {
		t.Errorf("HeaderValues = %q", got)
	}
	if !log.Date.IsZero() {
		t.Errorf("expected zero date")
	}
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		line string
		kind byte
	}{
		{"AXSX001", 'A'},
		{"HFPLTPILOT:x", 'H'},
		{"HFDTE210424", 'H'},
		{"hfdte210424", 'H'},
		{"HFDTE2104", 0},
		{"HXPLTPILOT:x", 0},
		{"HFPLTPILOT", 0},
		{"B0915204531000N00832000EA0042000480", 'B'},
		{"B09152", 0},
		{"LXSXfoo", 'L'},
		{"LPfoo", 'L'},
		{"L!foo", 0},
		{"GABCDEF", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if k := ParseRecord(tt.line).Kind(); k != tt.kind {
				t.Errorf("ParseRecord(%q).Kind() = %q, expected %q", tt.line, k, tt.kind)
			}
		})
	}

	if _, ok := ParseRecord("HFDTE210424").(DateRecord); !ok {
		t.Errorf("HFDTE not classified as DateRecord")
	}
}

func TestTimestamps(t *testing.T) {
	log := &FlightLog{
		Date: Date{Day: 31, Month: 12, Year: 23},
		Fixes: []Fix{
			{Hour: 23, Minute: 59, Second: 58},
			{Hour: 23, Minute: 59, Second: 59},
			{Hour: 0, Minute: 0, Second: 1},
		},
	}
	stamps := log.Timestamps()
	if len(stamps) != len(log.Fixes) {
		t.Fatalf("expected %d timestamps, got %d", len(log.Fixes), len(stamps))
	}
	exp := []time.Time{
		time.Date(2023, 12, 31, 23, 59, 58, 0, time.UTC),
		time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
	}
	for i := range exp {
		if !stamps[i].Equal(exp[i]) {
			t.Errorf("timestamp %d = %v, expected %v", i, stamps[i], exp[i])
		}
	}

	if n := len((&FlightLog{}).Timestamps()); n != 0 {
		t.Errorf("expected no timestamps for an empty log, got %d", n)
	}
}

func TestDateString(t *testing.T) {
	d := Date{Day: 21, Month: 4, Year: 24}
	if d.String() != "21.04.24" {
		t.Errorf("String() = %q", d.String())
	}
	if !d.Time().Equal(time.Date(2024, 4, 21, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Time() = %v", d.Time())
	}
}
