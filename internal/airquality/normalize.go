package airquality

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/i474232898/ward-air-quality/internal/common"
)

var (
	ErrMissingWardKey    = errors.New("ward_unique is required")
	ErrInvalidCoordinate = errors.New("invalid centroid coordinate")
	ErrDuplicateWard     = errors.New("duplicate ward_unique")
)

// FlexNumber accepts a JSON number, a numeric string, an empty string or null.
// Raw keeps the text form so the normalizer decides how to coerce it.
type FlexNumber struct {
	Raw   string
	Valid bool // false for null, absent or ""
}

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = FlexNumber{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		*n = FlexNumber{Raw: s, Valid: s != ""}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected number or string, got %s", data)
	}
	*n = FlexNumber{Raw: num.String(), Valid: true}
	return nil
}

// Float parses the value. ok is false for empty or unparseable input.
func (n FlexNumber) Float() (float64, bool) {
	if !n.Valid {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FlexString accepts a JSON string, number, bool or null.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
	default:
		*s = FlexString(data)
	}
	return nil
}

// RawWard is the input schema of the bundled ward dataset.
type RawWard struct {
	WardUnique        FlexString `json:"ward_unique"`
	WardID            FlexString `json:"ward_id"`
	WardName          FlexString `json:"ward_name"`
	Zone              FlexString `json:"zone"`
	CentroidLat       FlexNumber `json:"centroid_lat"`
	CentroidLon       FlexNumber `json:"centroid_lon"`
	AQI               FlexNumber `json:"aqi"`
	AQICategory       FlexString `json:"aqi_category"`
	DominantPollutant FlexString `json:"dominant_pollutant"`
	SourceHint        FlexString `json:"source_hint"`
	NearestStation    FlexString `json:"nearest_station"`
	NearestStationKm  FlexNumber `json:"nearest_station_km"`
	UpdatedUTC        FlexString `json:"updated_utc"`
}

// NormalizeLocalWard converts one raw dataset row into the canonical record.
// This is the only place dataset values are coerced.
func NormalizeLocalWard(raw RawWard) (WardAQIData, error) {
	key := strings.TrimSpace(string(raw.WardUnique))
	if key == "" {
		return WardAQIData{}, ErrMissingWardKey
	}

	lat, err := coordinate(raw.CentroidLat)
	if err != nil {
		return WardAQIData{}, fmt.Errorf("ward %s centroid_lat: %w", key, err)
	}
	lon, err := coordinate(raw.CentroidLon)
	if err != nil {
		return WardAQIData{}, fmt.Errorf("ward %s centroid_lon: %w", key, err)
	}

	ward := WardAQIData{
		WardUnique:        key,
		WardID:            strings.TrimSpace(string(raw.WardID)),
		WardName:          strings.TrimSpace(string(raw.WardName)),
		Zone:              strings.TrimSpace(string(raw.Zone)),
		CentroidLat:       lat,
		CentroidLon:       lon,
		AQICategory:       ParseCategory(string(raw.AQICategory)),
		DominantPollutant: NormalizePollutant(string(raw.DominantPollutant)),
		SourceHint:        string(raw.SourceHint),
		NearestStation:    string(raw.NearestStation),
		UpdatedUTC:        string(raw.UpdatedUTC),
	}
	if ward.WardID == "" || ward.Zone == "" {
		id, zone := ParseWardCode(key)
		ward.WardID = common.FirstNonEmpty(ward.WardID, id)
		ward.Zone = common.FirstNonEmpty(ward.Zone, zone)
	}
	if v, ok := raw.AQI.Float(); ok {
		ward.AQI = intPtr(int(math.Round(v)))
	}
	if km, ok := raw.NearestStationKm.Float(); ok {
		ward.NearestStationKm = km
	}
	return ward, nil
}

func coordinate(n FlexNumber) (float64, error) {
	if !n.Valid {
		return 0, nil
	}
	f, ok := n.Float()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, n.Raw)
	}
	return f, nil
}

// NormalizeLocalWards normalizes a whole dataset. Invalid rows and repeated
// ward keys (after the first) are skipped and reported in problems.
func NormalizeLocalWards(raws []RawWard) ([]WardAQIData, []error) {
	wards := make([]WardAQIData, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	var problems []error

	for i, raw := range raws {
		ward, err := NormalizeLocalWard(raw)
		if err != nil {
			problems = append(problems, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		if _, dup := seen[ward.WardUnique]; dup {
			problems = append(problems, fmt.Errorf("row %d: %w: %s", i, ErrDuplicateWard, ward.WardUnique))
			continue
		}
		seen[ward.WardUnique] = struct{}{}
		wards = append(wards, ward)
	}
	return wards, problems
}

// ParseCategory maps a stored category label onto the enumeration.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return CategoryGood
	case "satisfactory":
		return CategorySatisfactory
	case "moderate":
		return CategoryModerate
	case "poor":
		return CategoryPoor
	case "very_poor", "very poor", "very-poor":
		return CategoryVeryPoor
	case "severe":
		return CategorySevere
	default:
		return CategoryUnknown
	}
}
