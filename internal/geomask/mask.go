// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Package geomask offsets geographic coordinates by a random distance so
// public listings never expose a submitter's exact location.
package geomask

import (
	"math"
	"math/rand"
	"sync"
)

// Radius presets in kilometers. List responses use the wider radius;
// the map endpoint trades a little privacy for better clustering.
const (
	ListRadiusKM = 5.0
	MapRadiusKM  = 3.0
)

// Kilometers per degree of latitude, and per degree of longitude at the
// equator. Longitude degrees shrink with cos(latitude).
const (
	kmPerDegreeLat = 110.574
	kmPerDegreeLon = 111.320
)

// decimals is the rounding precision of masked coordinates. Four decimal
// places is roughly 11 m, well below any masking radius.
const decimals = 1e4

// Masker offsets coordinates using its own random source.
// The zero value is not usable; construct with New or NewWithRand.
type Masker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Masker with a randomly seeded source.
func New() *Masker {
	return NewWithRand(rand.New(rand.NewSource(rand.Int63()))) //nolint:gosec // masking is privacy fuzz, not cryptography
}

// NewWithRand returns a Masker using the given source.
// Tests pass a seeded source for deterministic output.
func NewWithRand(rng *rand.Rand) *Masker {
	return &Masker{rng: rng}
}

// Mask returns lat/lon displaced by a uniformly distributed point within
// radiusKM of the input, rounded to 4 decimal places.
//
// Sampling r = R*sqrt(u) keeps the distribution uniform over the disc
// rather than clustered at the center.
func (m *Masker) Mask(lat, lon, radiusKM float64) (float64, float64) {
	m.mu.Lock()
	u1 := m.rng.Float64()
	u2 := m.rng.Float64()
	m.mu.Unlock()

	r := radiusKM * math.Sqrt(u1)
	theta := 2 * math.Pi * u2

	deltaLat := (r * math.Cos(theta)) / kmPerDegreeLat
	deltaLon := (r * math.Sin(theta)) / (kmPerDegreeLon * math.Cos(lat*math.Pi/180))

	return round4(lat + deltaLat), round4(lon + deltaLon)
}

func round4(v float64) float64 {
	return math.Round(v*decimals) / decimals
}

// DistanceKM returns the haversine distance between two points in
// kilometers. Used by tests to bound the masking offset.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
