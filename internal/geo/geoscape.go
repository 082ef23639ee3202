package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	log "propertypackaging/internal/logging"
)

const DefaultGeoscapeURL = "https://api.psma.com.au/v2/addresses/geocoder"

var (
	commaAddressPattern = regexp.MustCompile(`(?i)^(\d+)\s+(.+?),\s*(.+?)(?:\s+([A-Z]{2,3}))?(?:\s+(\d+))?$`)
	stateTokenPattern   = regexp.MustCompile(`^[A-Z]{2,3}$`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// Suggestion is one candidate address returned by the geocoder.
type Suggestion struct {
	Address          string  `json:"address"`
	FormattedAddress string  `json:"formattedAddress"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Confidence       float64 `json:"confidence"`
	MatchType        string  `json:"matchType"`
	StreetNumber     string  `json:"streetNumber"`
	StreetName       string  `json:"streetName"`
	SuburbName       string  `json:"suburbName"`
	State            string  `json:"state"`
	PostCode         string  `json:"postCode"`
	LGA              string  `json:"lga"`
}

type GeocodeResult struct {
	Suggestions []Suggestion `json:"suggestions"`
	ExactMatch  bool         `json:"exactMatch"`
	BestMatch   *Suggestion  `json:"bestMatch,omitempty"`
}

type geoscapeFeature struct {
	Properties map[string]interface{} `json:"properties"`
	Geometry   struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

type geoscapeResponse struct {
	Data *struct {
		Features []geoscapeFeature `json:"features"`
	} `json:"data"`
	Features []geoscapeFeature `json:"features"`
}

func (r geoscapeResponse) features() []geoscapeFeature {
	if r.Data != nil && len(r.Data.Features) > 0 {
		return r.Data.Features
	}
	return r.Features
}

// GeoscapeClient talks to the Geoscape (PSMA) address geocoder.
type GeoscapeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewGeoscapeClient(apiKey, baseURL string) *GeoscapeClient {
	if baseURL == "" {
		baseURL = DefaultGeoscapeURL
	}
	return &GeoscapeClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *GeoscapeClient) query(ctx context.Context, address string) ([]geoscapeFeature, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	u := c.baseURL + "?" + url.Values{"address": {address}}.Encode()
	var resp geoscapeResponse
	if err := getJSON(ctx, c.httpClient, "geoscape", u, map[string]string{"Authorization": c.apiKey}, &resp); err != nil {
		return nil, err
	}
	return resp.features(), nil
}

// Geocode returns the geocoder's suggestions for address. On failure the
// result is empty and the error says why.
func (c *GeoscapeClient) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	result := GeocodeResult{Suggestions: []Suggestion{}}

	features, err := c.query(ctx, address)
	if err != nil {
		log.WithFields(log.Fields{
			"event":   "geocode_failed",
			"address": address,
			"error":   err.Error(),
		}).Error("Geocoding error")
		return result, err
	}
	if len(features) == 0 {
		return result, nil
	}

	for i, f := range features {
		result.Suggestions = append(result.Suggestions, suggestionFromFeature(f, i, address))
	}
	best := result.Suggestions[0]
	result.BestMatch = &best
	result.ExactMatch = collapse(address) == collapse(best.FormattedAddress)

	log.WithFields(log.Fields{
		"event":       "geocode_complete",
		"suggestions": len(result.Suggestions),
		"exact_match": result.ExactMatch,
	}).Info("Address geocoded")
	return result, nil
}

// LookupLGA returns the local government area of a suburb, or "" when the
// geocoder has none.
func (c *GeoscapeClient) LookupLGA(ctx context.Context, suburb, state string) (string, error) {
	if suburb == "" || state == "" {
		return "", nil
	}
	features, err := c.query(ctx, fmt.Sprintf("%s, %s", suburb, state))
	if err != nil {
		return "", fmt.Errorf("lga lookup: %w", err)
	}
	if len(features) == 0 {
		return "", nil
	}
	props := features[0].Properties
	lga := firstString(props, "lgaName", "lga_name", "localGovernmentArea", "local_government_area",
		"lga", "localGovernment", "council", "councilName", "municipality")
	if lga == "" {
		log.WithFields(log.Fields{
			"event":  "lga_missing",
			"suburb": suburb,
			"state":  state,
		}).Warn("LGA not found in geocoder response")
	}
	return lga, nil
}

func suggestionFromFeature(f geoscapeFeature, index int, input string) Suggestion {
	props := f.Properties
	formatted := firstString(props, "formattedAddress", "fullAddress", "address", "name")
	if formatted == "" {
		formatted = input
	}

	s := Suggestion{
		Address:          formatted,
		FormattedAddress: formatted,
		StreetNumber:     firstString(props, "streetNumber", "street_number"),
		StreetName:       firstString(props, "streetName", "street_name", "street"),
		SuburbName:       firstString(props, "localityName", "locality_name"),
		State:            firstString(props, "stateTerritory", "state_territory", "state"),
		PostCode:         firstString(props, "postcode", "post_code"),
		LGA:              firstString(props, "lgaName", "lga_name", "localGovernmentArea", "local_government_area"),
		MatchType:        firstString(props, "matchType"),
	}
	if len(f.Geometry.Coordinates) >= 2 {
		s.Longitude = f.Geometry.Coordinates[0]
		s.Latitude = f.Geometry.Coordinates[1]
	}

	s.Confidence = firstNumber(props, "confidence", "matchScore")
	if s.Confidence == 0 {
		s.Confidence = 80
		if index == 0 {
			s.Confidence = 100
		}
	}
	if s.MatchType == "" {
		s.MatchType = "fuzzy"
		if index == 0 {
			s.MatchType = "exact"
		}
	}

	if s.StreetNumber == "" || s.StreetName == "" {
		number, name := splitStreet(formatted)
		if s.StreetNumber == "" {
			s.StreetNumber = number
		}
		if s.StreetName == "" {
			s.StreetName = name
		}
	}
	return s
}

// splitStreet pulls the street number and name (type included) out of a
// one-line address such as "12 Osborne CCT, Gungahlin ACT 2912".
func splitStreet(formatted string) (number, name string) {
	if m := commaAddressPattern.FindStringSubmatch(formatted); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}

	parts := strings.Fields(formatted)
	if len(parts) < 4 {
		return "", ""
	}
	number = parts[0]
	stateIndex := -1
	for i := len(parts) - 1; i >= 0; i-- {
		if stateTokenPattern.MatchString(parts[i]) {
			stateIndex = i
			break
		}
	}
	if stateIndex > 1 {
		name = strings.Join(parts[1:stateIndex], " ")
	}
	return number, name
}

func collapse(s string) string {
	return whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func firstString(props map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func firstNumber(props map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := props[k].(float64); ok && v != 0 {
			return v
		}
	}
	return 0
}
