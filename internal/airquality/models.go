package airquality

import (
	"time"

	"github.com/i474232898/ward-air-quality/internal/common"
)

// Category is the normalized AQI band of a ward.
type Category string

const (
	CategoryGood         Category = "good"
	CategorySatisfactory Category = "satisfactory"
	CategoryModerate     Category = "moderate"
	CategoryPoor         Category = "poor"
	CategoryVeryPoor     Category = "very_poor"
	CategorySevere       Category = "severe"
	CategoryUnknown      Category = "unknown"
)

// DataSource records where the readings in a collection came from.
type DataSource string

const (
	SourceLocal  DataSource = "local"
	SourceMixed  DataSource = "mixed"
	SourceGoogle DataSource = "google"
)

// WardAQIData is the canonical ward record served to clients.
type WardAQIData struct {
	WardUnique        string   `json:"ward_unique"`
	WardID            string   `json:"ward_id"`
	WardName          string   `json:"ward_name,omitempty"`
	Zone              string   `json:"zone"`
	CentroidLat       float64  `json:"centroid_lat"`
	CentroidLon       float64  `json:"centroid_lon"`
	AQI               *int     `json:"aqi"` // nil means no reading
	AQICategory       Category `json:"aqi_category"`
	DominantPollutant string   `json:"dominant_pollutant"`
	SourceHint        string   `json:"source_hint"`
	NearestStation    string   `json:"nearest_station"`
	NearestStationKm  float64  `json:"nearest_station_km"`
	UpdatedUTC        string   `json:"updated_utc"`
}

// DisplayName is the ward name, or the ward key when no name is known.
func (w WardAQIData) DisplayName() string {
	return common.FirstNonEmpty(w.WardName, w.WardUnique)
}

// WardUpdate is a partial record built from one upstream reading.
type WardUpdate struct {
	WardUnique        string   `json:"ward_unique"`
	WardID            string   `json:"ward_id"`
	Zone              string   `json:"zone"`
	AQI               *int     `json:"aqi"`
	AQICategory       Category `json:"aqi_category"`
	DominantPollutant string   `json:"dominant_pollutant"`
	SourceHint        string   `json:"source_hint"`
	UpdatedUTC        string   `json:"updated_utc"`
}

// WardLocation identifies the point to look up for a ward.
type WardLocation struct {
	WardUnique string  `json:"ward_unique"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// LocationOf returns the lookup point of a ward (its centroid).
func LocationOf(w WardAQIData) WardLocation {
	return WardLocation{WardUnique: w.WardUnique, Lat: w.CentroidLat, Lon: w.CentroidLon}
}

// Reading is one entry of a ward's history.
type Reading struct {
	WardUnique        string     `json:"ward_unique"`
	AQI               *int       `json:"aqi"`
	Category          Category   `json:"aqi_category"`
	DominantPollutant string     `json:"dominant_pollutant,omitempty"`
	Source            DataSource `json:"source"`
	Timestamp         time.Time  `json:"timestamp"` // always UTC
}

// ReadingOf captures the current values of a ward. The timestamp comes from
// updated_utc when it parses, otherwise fallback is used.
func ReadingOf(w WardAQIData, source DataSource, fallback time.Time) Reading {
	ts := fallback.UTC()
	if parsed, ok := parseTimestamp(w.UpdatedUTC); ok {
		ts = parsed
	}
	return Reading{
		WardUnique:        w.WardUnique,
		AQI:               w.AQI,
		Category:          w.AQICategory,
		DominantPollutant: w.DominantPollutant,
		Source:            source,
		Timestamp:         ts,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func intPtr(v int) *int {
	return &v
}
