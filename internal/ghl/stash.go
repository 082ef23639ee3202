package ghl

import (
	"encoding/json"
	"strings"

	"propertypackaging/internal/form"
)

const StashUnavailable = "Unable to retrieve property data. Please check the address and try again, or continue with manual entry."

// StashResult is the risk overlay and zoning data Stash holds for a property.
type StashResult struct {
	Error        bool   `json:"error"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	FloodRisk    string `json:"floodRisk"`
	BushfireRisk string `json:"bushfireRisk"`
	Flooding     string `json:"flooding,omitempty"`
	Bushfire     string `json:"bushfire,omitempty"`

	Zone     string `json:"zone"`
	ZoneDesc string `json:"zoneDesc"`
	Zoning   string `json:"zoning"`

	LGA    string `json:"lga"`
	State  string `json:"state"`
	LGAPid string `json:"lgaPid"`

	StreetNumber    string   `json:"streetNumber"`
	StreetName      string   `json:"streetName"`
	SuburbName      string   `json:"suburbName"`
	PostCode        string   `json:"postCode"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	GeocodedAddress string   `json:"geocodedAddress,omitempty"`

	LotSizeMin    string   `json:"lotSizeMin"`
	LotSizeAvg    string   `json:"lotSizeAvg"`
	PlanningLinks []string `json:"planningLinks"`

	Bedrooms  string `json:"bedrooms"`
	Bathrooms string `json:"bathrooms"`
	CarSpaces string `json:"carSpaces"`
	LandSize  string `json:"landSize"`
	YearBuilt string `json:"yearBuilt"`
	Title     string `json:"title"`
}

func stashError() StashResult {
	return StashResult{Error: true, ErrorMessage: StashUnavailable, PlanningLinks: []string{}}
}

// ParseStash reads a Stash webhook answer. Make.com wraps the scenario output
// in several ways (a JSON string, an array, a result, body or data wrapper);
// all are unwrapped. A bare number is a module reference, not data.
func ParseStash(raw []byte) StashResult {
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		// Plain-text acknowledgements such as "Accepted" carry no data.
		if strings.TrimSpace(string(raw)) == "7" {
			return stashError()
		}
		return StashResult{PlanningLinks: []string{}}
	}

	switch v := data.(type) {
	case float64:
		return stashError()
	case string:
		if strings.TrimSpace(v) == "7" {
			return stashError()
		}
		var inner interface{}
		if json.Unmarshal([]byte(v), &inner) == nil {
			data = inner
		}
	}

	if arr, ok := data.([]interface{}); ok && len(arr) > 0 {
		data = arr[0]
		if m, ok := arr[0].(map[string]interface{}); ok && truthy(m["result"]) {
			data = m["result"]
		}
	}

	if m, ok := data.(map[string]interface{}); ok {
		switch {
		case truthy(m["body"]):
			if s, isString := m["body"].(string); isString {
				var inner interface{}
				if err := json.Unmarshal([]byte(s), &inner); err != nil {
					return stashError()
				}
				data = inner
			} else {
				data = m["body"]
			}
		case truthy(m["data"]):
			data = unwrapData(m["data"])
		}
	}
	if m, ok := data.(map[string]interface{}); ok {
		if inner, present := m["data"]; present && inner != nil {
			switch inner.(type) {
			case map[string]interface{}, []interface{}:
				data = unwrapData(inner)
			}
		}
	}

	m, _ := data.(map[string]interface{})
	if m == nil {
		m = map[string]interface{}{}
	}
	return stashFromMap(m)
}

func unwrapData(v interface{}) interface{} {
	if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
		return arr[0]
	}
	return v
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	}
	return true
}

func stashFromMap(m map[string]interface{}) StashResult {
	r := StashResult{
		FloodRisk:       form.NormalizeYesNo(propString(m, "floodRisk", "floodingRisk")),
		BushfireRisk:    form.NormalizeYesNo(propString(m, "bushfireRisk")),
		Flooding:        propString(m, "flooding"),
		Bushfire:        propString(m, "bushfire"),
		Zone:            propString(m, "zone"),
		ZoneDesc:        propString(m, "zoneDesc"),
		Zoning:          propString(m, "zoning"),
		LGA:             propString(m, "lga"),
		State:           propString(m, "state"),
		LGAPid:          propString(m, "lgaPid"),
		StreetNumber:    propString(m, "streetNumber", "street_number"),
		StreetName:      propString(m, "streetName", "street_name"),
		SuburbName:      propString(m, "suburbName", "suburb_name", "localityName", "locality_name"),
		PostCode:        propString(m, "postCode", "postcode", "post_code"),
		GeocodedAddress: propString(m, "geocodedAddress", "formattedAddress", "address"),
		LotSizeMin:      propString(m, "lotSizeMin"),
		LotSizeAvg:      propString(m, "lotSizeAvg"),
		Bedrooms:        propString(m, "bedrooms"),
		Bathrooms:       propString(m, "bathrooms"),
		CarSpaces:       propString(m, "carSpaces"),
		LandSize:        propString(m, "landSize"),
		YearBuilt:       propString(m, "yearBuilt"),
		Title:           propString(m, "title"),
		PlanningLinks:   []string{},
	}

	if r.Zoning == "" {
		switch {
		case r.Zone != "" && r.ZoneDesc != "":
			r.Zoning = r.Zone + " (" + r.ZoneDesc + ")"
		case r.Zone != "":
			r.Zoning = r.Zone
		default:
			r.Zoning = r.ZoneDesc
		}
	}
	if lat, ok := m["latitude"].(float64); ok {
		r.Latitude = &lat
	}
	if lon, ok := m["longitude"].(float64); ok {
		r.Longitude = &lon
	}
	if links, ok := m["planningLinks"].([]interface{}); ok {
		for _, l := range links {
			if s, ok := l.(string); ok {
				r.PlanningLinks = append(r.PlanningLinks, s)
			}
		}
	}
	return r
}
