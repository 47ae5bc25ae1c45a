package airquality

import (
	"regexp"
	"strings"

	"github.com/i474232898/ward-air-quality/internal/airquality/upstream"
	"github.com/i474232898/ward-air-quality/internal/common"
)

// Mapped is the part of a ward record derived from one upstream response.
type Mapped struct {
	AQI               *int     `json:"aqi"`
	AQICategory       Category `json:"aqi_category"`
	DominantPollutant string   `json:"dominant_pollutant"`
	SourceHint        string   `json:"source_hint"`
	UpdatedUTC        string   `json:"updated_utc"`
}

// MapResponse converts an upstream response. The universal index is used when
// present, otherwise the first index. It never fails: a response without
// indexes maps to an unknown reading stamped with the response time.
func MapResponse(resp upstream.Response) Mapped {
	index, ok := selectIndex(resp.Indexes)
	if !ok {
		return Mapped{
			AQICategory: CategoryUnknown,
			UpdatedUTC:  resp.DateTime,
		}
	}

	pollutant := NormalizePollutant(index.DominantPollutant)
	var aqi *int
	category := CategoryUnknown
	if index.AQI != nil {
		aqi = intPtr(*index.AQI)
		category = MapCategory(index.Category, *aqi)
	}
	return Mapped{
		AQI:               aqi,
		AQICategory:       category,
		DominantPollutant: pollutant,
		SourceHint:        SourceHint(pollutant),
		UpdatedUTC:        resp.DateTime,
	}
}

func selectIndex(indexes []upstream.Index) (upstream.Index, bool) {
	if len(indexes) == 0 {
		return upstream.Index{}, false
	}
	for _, idx := range indexes {
		if strings.EqualFold(idx.Code, upstream.UniversalIndexCode) {
			return idx, true
		}
	}
	return indexes[0], true
}

// MapCategory classifies a provider label and score. Each band fires on its
// keyword or its score threshold, checked in band order, so a low score
// settles the band before later keywords are looked at ("Moderate" with a
// score of 30 is good).
func MapCategory(label string, score int) Category {
	switch {
	case common.HasAnyFold(label, "good") || score <= 50:
		return CategoryGood
	case common.HasAnyFold(label, "satisfactory") || score <= 100:
		return CategorySatisfactory
	case common.HasAnyFold(label, "moderate") || score <= 200:
		return CategoryModerate
	case common.HasAnyFold(label, "poor") || score <= 300:
		return CategoryPoor
	case common.HasAnyFold(label, "very", "unhealthy") || score <= 400:
		return CategoryVeryPoor
	default:
		return CategorySevere
	}
}

var pollutantCodes = map[string]string{
	"pm25": "pm25",
	"pm10": "pm10",
	"o3":   "o3",
	"no2":  "no2",
	"so2":  "so2",
	"co":   "co",
}

// NormalizePollutant lower-cases a pollutant code. Codes outside the known
// table pass through lower-cased.
func NormalizePollutant(code string) string {
	lower := strings.ToLower(strings.TrimSpace(code))
	if known, ok := pollutantCodes[lower]; ok {
		return known
	}
	return lower
}

// SourceHint guesses the likely pollution source from a normalized pollutant code.
func SourceHint(pollutant string) string {
	switch pollutant {
	case "pm25", "pm10":
		return "dust/construction"
	case "no2", "co":
		return "vehicular"
	case "so2":
		return "industrial"
	case "o3":
		return "secondary"
	default:
		return "mixed"
	}
}

var wardCodePattern = regexp.MustCompile(`^(\d+)([A-Z]+)$`)

// ParseWardCode splits a ward key such as "104S" into its numeric id and zone
// letters. Keys that do not match are returned whole with an empty zone.
func ParseWardCode(wardUnique string) (wardID, zone string) {
	m := wardCodePattern.FindStringSubmatch(wardUnique)
	if m == nil {
		return wardUnique, ""
	}
	return m[1], m[2]
}

// UpdateFor builds the partial record for a ward from an upstream response.
func UpdateFor(wardUnique string, resp upstream.Response) WardUpdate {
	mapped := MapResponse(resp)
	wardID, zone := ParseWardCode(wardUnique)
	return WardUpdate{
		WardUnique:        wardUnique,
		WardID:            wardID,
		Zone:              zone,
		AQI:               mapped.AQI,
		AQICategory:       mapped.AQICategory,
		DominantPollutant: mapped.DominantPollutant,
		SourceHint:        mapped.SourceHint,
		UpdatedUTC:        mapped.UpdatedUTC,
	}
}
