package kmlgen

import (
	"strings"
	"sync"

	"github.com/shaunagostinho/igc2kml/internal/igc"
)

// ExtensionFunc turns the payload of a manufacturer's first L-record into
// description lines.
type ExtensionFunc func(payload string) []Line

var (
	extensionsMu sync.RWMutex
	extensions   = make(map[string]ExtensionFunc)
)

func init() {
	RegisterExtension("XSX", skytraxxStats)
}

// RegisterExtension installs fn for the manufacturer code of the A-record.
// Codes are case insensitive; a later registration replaces an earlier one.
func RegisterExtension(code string, fn ExtensionFunc) {
	extensionsMu.Lock()
	defer extensionsMu.Unlock()
	extensions[strings.ToUpper(code)] = fn
}

func lookupExtension(code string) ExtensionFunc {
	extensionsMu.RLock()
	defer extensionsMu.RUnlock()
	return extensions[strings.ToUpper(code)]
}

// ExtensionLines returns the manufacturer specific description lines for
// log, or nil if its manufacturer has no extension or it has no L-records.
func ExtensionLines(log *igc.FlightLog) []Line {
	fn := lookupExtension(log.Manufacturer)
	if fn == nil || len(log.Extensions) == 0 {
		return nil
	}
	return fn(log.Extensions[0].Payload)
}

var skytraxxKeys = []struct {
	key   string
	label string
	unit  string
}{
	{"MC", "Max. climb", "m/s"},
	{"MS", "Max. sink", "m/s"},
	{"MSP", "Max. speed", "km/h"},
	{"Dist", "Track distance", "km"},
}

// skytraxxStats decodes the flight summary Skytraxx varios write as
// LXSXMC:3.5;MS:-2.1;MSP:95;Dist:120.
func skytraxxStats(payload string) []Line {
	var lines []Line
	for _, item := range strings.Split(payload, ";") {
		key, value, found := strings.Cut(item, ":")
		value = strings.TrimSpace(value)
		if !found || value == "" {
			continue
		}
		for _, k := range skytraxxKeys {
			if strings.TrimSpace(key) == k.key {
				lines = append(lines, Line{k.label, value + " " + k.unit})
				break
			}
		}
	}
	return lines
}
