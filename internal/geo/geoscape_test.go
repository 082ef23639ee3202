package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geoscapeServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.URL.Query().Get("address"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeocode(t *testing.T) {
	srv := geoscapeServer(t, http.StatusOK, `{"data":{"features":[
		{"properties":{"formattedAddress":"12 Osborne CCT, Gungahlin ACT 2912","localityName":"GUNGAHLIN",
			"stateTerritory":"ACT","postcode":"2912","lgaName":"Canberra"},
		 "geometry":{"coordinates":[149.13,-35.18]}},
		{"properties":{"fullAddress":"12 OSBORNE CIRCUIT NGUNNAWAL ACT 2913","confidence":65}}
	]}}`)

	c := NewGeoscapeClient("test-key", srv.URL)
	res, err := c.Geocode(context.Background(), "12  osborne cct, gungahlin act 2912")
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 2)
	assert.True(t, res.ExactMatch)

	best := res.Suggestions[0]
	assert.Equal(t, "12", best.StreetNumber)
	assert.Equal(t, "Osborne CCT", best.StreetName)
	assert.Equal(t, "GUNGAHLIN", best.SuburbName)
	assert.Equal(t, "ACT", best.State)
	assert.Equal(t, "2912", best.PostCode)
	assert.Equal(t, "Canberra", best.LGA)
	assert.Equal(t, -35.18, best.Latitude)
	assert.Equal(t, 149.13, best.Longitude)
	assert.Equal(t, float64(100), best.Confidence)
	assert.Equal(t, "exact", best.MatchType)
	require.NotNil(t, res.BestMatch)
	assert.Equal(t, best, *res.BestMatch)

	second := res.Suggestions[1]
	assert.Equal(t, "12", second.StreetNumber)
	assert.Equal(t, "OSBORNE CIRCUIT NGUNNAWAL", second.StreetName)
	assert.Equal(t, float64(65), second.Confidence)
	assert.Equal(t, "fuzzy", second.MatchType)
}

func TestGeocodeNoFeatures(t *testing.T) {
	srv := geoscapeServer(t, http.StatusOK, `{"features":[]}`)
	res, err := NewGeoscapeClient("test-key", srv.URL).Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, res.Suggestions)
	assert.False(t, res.ExactMatch)
	assert.Nil(t, res.BestMatch)
}

func TestGeocodeUpstreamError(t *testing.T) {
	srv := geoscapeServer(t, http.StatusInternalServerError, `{"error":"boom"}`)
	res, err := NewGeoscapeClient("test-key", srv.URL).Geocode(context.Background(), "1 Main St")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Empty(t, res.Suggestions)
}

func TestGeocodeNotConfigured(t *testing.T) {
	_, err := NewGeoscapeClient("", "http://unused").Geocode(context.Background(), "1 Main St")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLookupLGA(t *testing.T) {
	srv := geoscapeServer(t, http.StatusOK, `{"features":[{"properties":{"council":"Fraser Coast Regional"}}]}`)
	c := NewGeoscapeClient("test-key", srv.URL)

	lga, err := c.LookupLGA(context.Background(), "Hervey Bay", "QLD")
	require.NoError(t, err)
	assert.Equal(t, "Fraser Coast Regional", lga)

	lga, err = c.LookupLGA(context.Background(), "", "QLD")
	require.NoError(t, err)
	assert.Empty(t, lga)
}

func TestSplitStreet(t *testing.T) {
	n, s := splitStreet("5 Smith Street, Hervey Bay QLD 4655")
	assert.Equal(t, "5", n)
	assert.Equal(t, "Smith Street", s)

	n, s = splitStreet("Hervey Bay")
	assert.Empty(t, n)
	assert.Empty(t, s)
}
