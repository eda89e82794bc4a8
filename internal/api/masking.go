// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package api

import (
	"github.com/opportune-hq/opportuned/internal/geomask"
	"github.com/opportune-hq/opportuned/internal/models"
)

// maskOpportunity returns a copy of the opportunity safe for non-owner
// consumers: the project location is offset by the masking radius and the
// contact block is removed entirely. The stored document is never mutated.
func maskOpportunity(opp *models.Opportunity, masker *geomask.Masker, radiusKM float64) *models.Opportunity {
	masked := *opp
	masked.Data = deepCopyMap(opp.Data)

	delete(masked.Data, "contact")

	if lat, lon, ok := extractLocation(masked.Data); ok {
		mLat, mLon := masker.Mask(lat, lon, radiusKM)
		setLocation(masked.Data, mLat, mLon)
	}

	return &masked
}

// mapPoint is one entry in the map endpoint response.
type mapPoint struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// extractLocation pulls project coordinates out of the payload. Supports
// both lat/lng and latitude/longitude key styles seen from producers.
func extractLocation(data map[string]any) (lat, lon float64, ok bool) {
	project, ok := data["project"].(map[string]any)
	if !ok {
		return 0, 0, false
	}
	location, ok := project["location"].(map[string]any)
	if !ok {
		return 0, 0, false
	}

	lat, latOK := numeric(location["lat"])
	lon, lonOK := numeric(location["lng"])
	if !latOK || !lonOK {
		lat, latOK = numeric(location["latitude"])
		lon, lonOK = numeric(location["longitude"])
	}
	return lat, lon, latOK && lonOK
}

// setLocation writes masked coordinates back, normalizing to lat/lng keys.
func setLocation(data map[string]any, lat, lon float64) {
	project, ok := data["project"].(map[string]any)
	if !ok {
		return
	}
	project["location"] = map[string]any{"lat": lat, "lng": lon}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// deepCopyMap clones a decoded JSON object so masking cannot leak into
// other readers of the same document.
func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
