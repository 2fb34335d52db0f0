package geodesy

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

var (
	ErrMalformed      = errors.New("geodesy: malformed coordinate")
	ErrNotImplemented = errors.New("geodesy: not implemented")
)

// Coordinate is a signed decimal-degree position. Longitude comes first to
// match the order of a KML coordinate tuple.
type Coordinate struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
}

// ToDecimalDegrees converts IGC minutes-decimal fields to decimal degrees.
// latRaw is DDMMmmm[NS] and lonRaw is DDDMMmmm[EW], where MMmmm is minutes
// multiplied by 1000.
func ToDecimalDegrees(latRaw, lonRaw string) (Coordinate, error) {
	lat, err := parseMinDec(latRaw, 2, 'N', 'S')
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude %q: %w", latRaw, err)
	}
	lon, err := parseMinDec(lonRaw, 3, 'E', 'W')
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude %q: %w", lonRaw, err)
	}
	return Coordinate{Longitude: lon, Latitude: lat}, nil
}

// ToMinutesDecimal is the reverse of ToDecimalDegrees. It is not supported
// and always returns ErrNotImplemented.
func ToMinutesDecimal(c Coordinate) (latRaw, lonRaw string, err error) {
	return "", "", ErrNotImplemented
}

func parseMinDec(raw string, degDigits int, pos, neg byte) (float64, error) {
	if len(raw) != degDigits+6 {
		return 0, ErrMalformed
	}
	for i := 0; i < len(raw)-1; i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, ErrMalformed
		}
	}
	deg, _ := strconv.Atoi(raw[:degDigits])
	minPacked, _ := strconv.Atoi(raw[degDigits : degDigits+5])

	v := float64(deg) + float64(minPacked)/1000/60
	switch raw[len(raw)-1] {
	case pos:
	case neg:
		v = -v
	default:
		return 0, ErrMalformed
	}
	return v, nil
}

// Distance returns the great-circle distance between a and b in km.
func Distance(a, b Coordinate) float64 {
	pa := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	pb := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return pa.Distance(pb).Radians() * EarthRadiusKm
}

// TrackDistance sums the leg distances of a track in km.
func TrackDistance(track []Coordinate) float64 {
	var total float64
	for i := 1; i < len(track); i++ {
		total += Distance(track[i-1], track[i])
	}
	return total
}
