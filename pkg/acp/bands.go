package acp

import "math"

// MaxControlKm is the exclusive upper bound of the speed tables.
const MaxControlKm = 1300.0

// SpeedBand maps the half-open distance interval [LowKm, HighKm) to a speed in km/h.
type SpeedBand struct {
	LowKm  float64 `json:"low_km" yaml:"low_km"`
	HighKm float64 `json:"high_km" yaml:"high_km"`
	Speed  float64 `json:"speed_kmh" yaml:"speed_kmh"`
}

// Contains reports whether km falls inside the band.
func (b SpeedBand) Contains(km float64) bool {
	return km >= b.LowKm && km < b.HighKm
}

// SpeedTable is an ordered list of contiguous, non-overlapping bands
type SpeedTable []SpeedBand

var (
	maxSpeeds = SpeedTable{
		{LowKm: 0, HighKm: 200, Speed: 34},
		{LowKm: 200, HighKm: 400, Speed: 32},
		{LowKm: 400, HighKm: 600, Speed: 30},
		{LowKm: 600, HighKm: 1000, Speed: 28},
		{LowKm: 1000, HighKm: 1300, Speed: 26},
	}

	minSpeeds = SpeedTable{
		{LowKm: 0, HighKm: 200, Speed: 15},
		{LowKm: 200, HighKm: 400, Speed: 15},
		{LowKm: 400, HighKm: 600, Speed: 15},
		{LowKm: 600, HighKm: 1000, Speed: 11.428},
		{LowKm: 1000, HighKm: 1300, Speed: 13.333},
	}
)

// MaxSpeeds returns a copy of the maximum speed table used for open times.
func MaxSpeeds() SpeedTable {
	return append(SpeedTable(nil), maxSpeeds...)
}

// MinSpeeds returns a copy of the minimum speed table used for close times.
func MinSpeeds() SpeedTable {
	return append(SpeedTable(nil), minSpeeds...)
}

// Lookup returns the band whose interval contains km.
func (t SpeedTable) Lookup(km float64) (SpeedBand, error) {
	for _, b := range t {
		if b.Contains(km) {
			return b, nil
		}
	}
	return SpeedBand{}, &UnsupportedDistanceError{
		ControlKm: km,
		Reason:    "no speed band contains this distance",
	}
}

// hours applies the rate of the single band containing km to the whole distance.
func (t SpeedTable) hours(km float64) (float64, error) {
	b, err := t.Lookup(km)
	if err != nil {
		return 0, err
	}
	return km / b.Speed, nil
}

// cumulativeHours integrates over every band crossed between 0 and km.
func (t SpeedTable) cumulativeHours(km float64) float64 {
	var total float64
	for _, b := range t {
		if km <= b.LowKm {
			break
		}
		total += (math.Min(km, b.HighKm) - b.LowKm) / b.Speed
	}
	return total
}
