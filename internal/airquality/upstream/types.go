package upstream

// Response is the current-conditions payload returned by the air-quality API
// and relayed verbatim by the proxy endpoint.
type Response struct {
	DateTime   string      `json:"dateTime"`
	RegionCode string      `json:"regionCode,omitempty"`
	Indexes    []Index     `json:"indexes"`
	Pollutants []Pollutant `json:"pollutants,omitempty"`
}

// UniversalIndexCode identifies the provider's composite index.
const UniversalIndexCode = "uaqi"

// Index is one air-quality index computed for the requested point.
type Index struct {
	Code              string `json:"code"`
	DisplayName       string `json:"displayName"`
	AQI               *int   `json:"aqi"` // nil when the provider sent null or omitted it
	AQIDisplay        string `json:"aqiDisplay,omitempty"`
	Color             Color  `json:"color"`
	Category          string `json:"category"`
	DominantPollutant string `json:"dominantPollutant"`
}

// Color is the display colour suggested by the provider (0..1 channels).
type Color struct {
	Red   float64 `json:"red,omitempty"`
	Green float64 `json:"green,omitempty"`
	Blue  float64 `json:"blue,omitempty"`
}

// Pollutant is a per-pollutant concentration reading.
type Pollutant struct {
	Code          string        `json:"code"`
	DisplayName   string        `json:"displayName,omitempty"`
	FullName      string        `json:"fullName,omitempty"`
	Concentration Concentration `json:"concentration"`
}

type Concentration struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

// LookupRequest is the body accepted by the proxy endpoint. Pointers let the
// proxy tell a missing coordinate from zero.
type LookupRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lon *float64 `json:"lon" validate:"required,longitude"`
}

// googleRequest is the body sent to currentConditions:lookup.
type googleRequest struct {
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	ExtraComputations []string `json:"extraComputations,omitempty"`
	LanguageCode      string   `json:"languageCode,omitempty"`
}
