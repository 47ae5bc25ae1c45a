package airquality

import (
	"slices"
	"sort"
)

// Merge overlays upstream updates onto the baseline and returns a new slice
// plus the number of records replaced. An update only applies when it carries
// an AQI, so a reading-less response never downgrades a known local value.
// The baseline slice is not modified.
func Merge(baseline []WardAQIData, updates map[string]WardUpdate) ([]WardAQIData, int) {
	merged := make([]WardAQIData, len(baseline))
	applied := 0
	for i, ward := range baseline {
		update, ok := updates[ward.WardUnique]
		if !ok || update.AQI == nil {
			merged[i] = ward
			continue
		}
		merged[i] = overlay(ward, update)
		applied++
	}
	return merged, applied
}

func overlay(ward WardAQIData, u WardUpdate) WardAQIData {
	ward.WardUnique = u.WardUnique
	ward.WardID = u.WardID
	ward.Zone = u.Zone
	aqi := *u.AQI
	ward.AQI = &aqi
	ward.AQICategory = u.AQICategory
	ward.DominantPollutant = u.DominantPollutant
	ward.SourceHint = u.SourceHint
	ward.UpdatedUTC = u.UpdatedUTC
	return ward
}

// OverlayNames returns a copy of wards with ward_name set from names, keyed
// by ward_id. Wards without a match keep their current name.
func OverlayNames(wards []WardAQIData, names map[string]string) []WardAQIData {
	out := slices.Clone(wards)
	for i := range out {
		if name, ok := names[out[i].WardID]; ok && name != "" {
			out[i].WardName = name
		}
	}
	return out
}

// PrioritizeByAQI returns up to n wards with a known AQI, worst first.
func PrioritizeByAQI(wards []WardAQIData, n int) []WardAQIData {
	known := make([]WardAQIData, 0, len(wards))
	for _, w := range wards {
		if w.AQI != nil {
			known = append(known, w)
		}
	}
	sort.SliceStable(known, func(i, j int) bool {
		return *known[i].AQI > *known[j].AQI
	})
	if n >= 0 && len(known) > n {
		known = known[:n]
	}
	return known
}

// Locations returns the lookup points of wards in order.
func Locations(wards []WardAQIData) []WardLocation {
	locs := make([]WardLocation, 0, len(wards))
	for _, w := range wards {
		locs = append(locs, LocationOf(w))
	}
	return locs
}
