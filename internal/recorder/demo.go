package recorder

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/igc2kml/internal/geodesy"
)

// Positions are simulated in IGC units: thousandths of a minute.
const milliMinutesPerDegree = 60000

// DemoSource generates a simulated thermalling flight for testing.
type DemoSource struct {
	mu    sync.Mutex
	start time.Time
	fixes int
	rng   *rand.Rand
}

// NewDemo returns a demo recorder whose flight starts at start (UTC) and
// contains the given number of one-second fixes.
func NewDemo(start time.Time, fixes int) *DemoSource {
	if fixes <= 0 {
		fixes = 600
	}
	return &DemoSource{
		start: start.UTC(),
		fixes: fixes,
		rng:   rand.New(rand.NewSource(start.Unix())),
	}
}

func (d *DemoSource) Name() string   { return "Demo recorder (Simulated)" }
func (d *DemoSource) Connect() error { return nil }
func (d *DemoSource) Close() error   { return nil }

func (d *DemoSource) Download(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "AXSXDMO Skytraxx demo\r\n")
	fmt.Fprintf(&b, "HFDTE%s\r\n", d.start.Format("020106"))
	fmt.Fprintf(&b, "HFPLTPILOTINCHARGE:Demo Pilot\r\n")
	fmt.Fprintf(&b, "HFGTYGLIDERTYPE:Demo Wing\r\n")
	fmt.Fprintf(&b, "HFGIDGLIDERID:D-EMO\r\n")
	fmt.Fprintf(&b, "HFSITSITE:Demo Valley\r\n")

	// Drift downwind while circling around a thermal near Bassano.
	centerLat := 45*milliMinutesPerDegree + 47000
	centerLon := 11*milliMinutesPerDegree + 44000
	radius := 120.0 // ~220 m
	alt := 900.0

	var track []geodesy.Coordinate
	var maxClimb, maxSink, maxSpeed float64
	prevAlt := alt
	for i := 0; i < d.fixes; i++ {
		t := float64(i)
		lat := centerLat + int(radius*math.Sin(t*0.25)) + i/2
		lon := centerLon + int(radius*math.Cos(t*0.25)/math.Cos(45.78*math.Pi/180)) + i
		alt += 1.2 + 0.8*math.Sin(t*0.25) + d.rng.Float64()*0.4 - 0.2
		gnss := int(alt)

		ts := d.start.Add(time.Duration(i) * time.Second)
		latRaw, lonRaw := formatPosition(lat, lon)
		fmt.Fprintf(&b, "B%s%s%sA%s%s\r\n",
			ts.Format("150405"), latRaw, lonRaw, formatAltitude(gnss-25), formatAltitude(gnss))

		pos, err := geodesy.ToDecimalDegrees(latRaw, lonRaw)
		if err != nil {
			return nil, err
		}
		if n := len(track); n > 0 {
			maxSpeed = math.Max(maxSpeed, geodesy.Distance(track[n-1], pos)*3600)
		}
		track = append(track, pos)
		maxClimb = math.Max(maxClimb, alt-prevAlt)
		maxSink = math.Min(maxSink, alt-prevAlt)
		prevAlt = alt
	}

	fmt.Fprintf(&b, "LXSXMC:%.1f;MS:%.1f;MSP:%.0f;Dist:%.1f\r\n",
		maxClimb, maxSink, maxSpeed, geodesy.TrackDistance(track))
	return []byte(b.String()), nil
}

// formatPosition encodes milli-minute latitude and longitude as the
// DDMMmmmN and DDDMMmmmE fields of a B-record.
func formatPosition(lat, lon int) (string, string) {
	ns, ew := byte('N'), byte('E')
	if lat < 0 {
		lat, ns = -lat, 'S'
	}
	if lon < 0 {
		lon, ew = -lon, 'W'
	}
	return fmt.Sprintf("%02d%05d%c", lat/milliMinutesPerDegree, lat%milliMinutesPerDegree, ns),
		fmt.Sprintf("%03d%05d%c", lon/milliMinutesPerDegree, lon%milliMinutesPerDegree, ew)
}

func formatAltitude(m int) string {
	if m < 0 {
		return fmt.Sprintf("-%04d", -m)
	}
	return fmt.Sprintf("%05d", m)
}
