package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertypackaging/internal/geo"
	"propertypackaging/internal/openai"
	"propertypackaging/internal/ratelimit"
	"propertypackaging/internal/sheets"
	"propertypackaging/internal/usagelog"
	"propertypackaging/internal/vercel"
)

func TestHealthOnBothPrefixes(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))
	for _, path := range []string{"/health", "/api/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/stash", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRequestID(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestRequestsAreLoggedToUsageStore(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	doRequest(t, r, http.MethodGet, "/api/health", nil)
	doRequest(t, r, http.MethodPost, "/api/stash", "{")

	sum, err := svcs.Usage.DailySummary(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalRequests)
	assert.Equal(t, 1, sum.UniqueIPs)
	assert.Equal(t, 1, sum.Errors)
}

func TestInvalidJSON(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))
	w, env := doRequest(t, r, http.MethodPost, "/api/geocode", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid JSON payload", env.Error)
}

func TestGeocode(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/geocode", gin.H{"address": "1 Main St"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Geoscape API key not configured", env.Error)

	best := geo.Suggestion{FormattedAddress: "1 Main St, Urangan QLD 4655", State: "QLD"}
	svcs.Geocoder = &fakeGeocoder{result: geo.GeocodeResult{Suggestions: []geo.Suggestion{best}, BestMatch: &best}}
	w, env = doRequest(t, r, http.MethodPost, "/geocode", gin.H{"address": "1 Main St"})
	require.Equal(t, http.StatusOK, w.Code)
	var got geo.GeocodeResult
	decodeData(t, env, &got)
	assert.Len(t, got.Suggestions, 1)
	assert.Equal(t, "QLD", got.BestMatch.State)

	svcs.Geocoder = &fakeGeocoder{result: geo.GeocodeResult{Suggestions: []geo.Suggestion{}}, err: errors.New("geoscape down")}
	w, env = doRequest(t, r, http.MethodPost, "/api/geocode", gin.H{"address": "1 Main St"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "geoscape down", env.Error)

	w, _ = doRequest(t, r, http.MethodPost, "/api/geocode", gin.H{"address": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLGA(t *testing.T) {
	svcs := newTestServices(t)
	svcs.Geocoder = &fakeGeocoder{lga: "Fraser Coast Regional"}
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodGet, "/api/lga?suburb=Urangan&state=QLD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	decodeData(t, env, &got)
	assert.Equal(t, "Fraser Coast Regional", got["lga"])
	assert.Equal(t, true, got["found"])

	w, _ = doRequest(t, r, http.MethodGet, "/api/lga?suburb=Urangan", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func proximityResult() *geo.ProximityResult {
	return &geo.ProximityResult{
		Proximity:   "9 Bay St\n500 m (1 min), IGA Urangan",
		Amenities:   []geo.Amenity{{Name: "IGA Urangan", Distance: 500, Category: "commercial.supermarket"}},
		Coordinates: geo.Coordinates{Lat: -25.29, Lon: 152.9},
		APICalls:    3,
	}
}

func TestProximityWithCoordinates(t *testing.T) {
	svcs := newTestServices(t)
	finder := &fakeFinder{result: proximityResult()}
	svcs.Proximity = finder
	r := newTestRouter(t, svcs)

	req := gin.H{"propertyAddress": "9 Bay St", "latitude": -25.29, "longitude": 152.9, "userEmail": "will@buyersclub.com.au"}
	w, env := doRequest(t, r, http.MethodPost, "/api/geoapify/proximity", req)
	require.Equal(t, http.StatusOK, w.Code)

	var got geo.ProximityResult
	decodeData(t, env, &got)
	assert.Equal(t, "9 Bay St\n500 m (1 min), IGA Urangan", got.Proximity)
	if diff := cmp.Diff(geo.Origin{Lat: -25.29, Lon: 152.9, Address: "9 Bay St"}, finder.origin); diff != "" {
		t.Errorf("origin mismatch (-want +got):\n%s", diff)
	}

	logs, err := svcs.Usage.Logs(context.Background(), 10, usagelog.DateRange{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "will@buyersclub.com.au", logs[0].UserEmail)
	assert.Equal(t, "9 Bay St", logs[0].PropertyAddress)
	assert.Equal(t, 3, logs[0].APICallCount)
	assert.Equal(t, 1, logs[0].DestinationsCount)
	assert.Equal(t, "203.0.113.7", logs[0].IP)
	assert.True(t, logs[0].Success)
}

func TestProximityGeocodesAddress(t *testing.T) {
	svcs := newTestServices(t)
	finder := &fakeFinder{result: proximityResult()}
	svcs.Proximity = finder
	best := geo.Suggestion{Latitude: -27.47, Longitude: 153.02, State: "QLD"}
	svcs.Geocoder = &fakeGeocoder{result: geo.GeocodeResult{BestMatch: &best}}
	r := newTestRouter(t, svcs)

	w, _ := doRequest(t, r, http.MethodPost, "/geoapify/proximity", gin.H{"propertyAddress": "1 Queen St Brisbane"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, geo.Origin{Lat: -27.47, Lon: 153.02, Address: "1 Queen St Brisbane", State: "QLD"}, finder.origin)
}

func TestProximityErrors(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/geoapify/proximity", gin.H{"latitude": -25.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Property address or coordinates required", env.Error)

	w, env = doRequest(t, r, http.MethodPost, "/api/geoapify/proximity", gin.H{"propertyAddress": "9 Bay St"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Geoapify API key not configured", env.Error)

	finder := &fakeFinder{err: geo.ErrNoAmenities}
	svcs.Proximity = finder
	svcs.Geocoder = &fakeGeocoder{result: geo.GeocodeResult{}}
	w, env = doRequest(t, r, http.MethodPost, "/api/geoapify/proximity", gin.H{"propertyAddress": "nowhere"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Could not geocode address", env.Error)
	assert.Zero(t, finder.calls)

	w, env = doRequest(t, r, http.MethodPost, "/api/geoapify/proximity", gin.H{"latitude": -25.0, "longitude": 152.0})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "No amenities found", env.Error)

	logs, err := svcs.Usage.Logs(context.Background(), 10, usagelog.DateRange{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "No amenities found", logs[0].Error)
}

func TestProximityRateLimitSharedAcrossPrefixes(t *testing.T) {
	svcs := newTestServices(t)
	svcs.Limiter = ratelimit.New(ratelimit.Limits{PerHour: 20, Burst5Min: 1, GlobalDaily: 100})
	svcs.Proximity = &fakeFinder{result: proximityResult()}
	r := newTestRouter(t, svcs)

	body := gin.H{"latitude": -25.0, "longitude": 152.0}
	w, _ := doRequest(t, r, http.MethodPost, "/api/geoapify/proximity", body)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doRequest(t, r, http.MethodPost, "/geoapify/proximity", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w, env := doRequest(t, r, http.MethodGet, "/api/rate-limit/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status ratelimit.Status
	decodeData(t, env, &status)
	assert.Equal(t, 1, status.GlobalDaily)
	assert.Equal(t, 1, status.ActiveIPs.Burst)
}

func TestGenerateContent(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/ai/generate-content", gin.H{"suburb": "Urangan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Suburb and LGA are required", env.Error)

	ai := &fakeAI{content: "• Growing coastal market"}
	svcs.AI = ai
	w, env = doRequest(t, r, http.MethodPost, "/api/ai/generate-content", gin.H{"suburb": "Urangan", "lga": "Fraser Coast"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, openai.ContentWhyProperty, ai.contentType)
	var got map[string]string
	decodeData(t, env, &got)
	assert.Equal(t, "• Growing coastal market", got["content"])

	ai.err = openai.ErrInvalidContentType
	w, env = doRequest(t, r, http.MethodPost, "/api/ai/generate-content", gin.H{"suburb": "Urangan", "lga": "Fraser Coast", "type": "poem"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid content type", env.Error)

	ai.err = errors.New("upstream exploded")
	w, env = doRequest(t, r, http.MethodPost, "/api/ai/generate-content", gin.H{"suburb": "Urangan", "lga": "Fraser Coast"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to generate content", env.Error)
}

func TestPropertySummary(t *testing.T) {
	svcs := newTestServices(t)
	ai := &fakeAI{summary: openai.PropertySummary{Proximity: "9 Bay St", WhyThisProperty: "• Reasons"}}
	svcs.AI = ai
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/chatgpt/property-summary", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Property address is required", env.Error)

	w, env = doRequest(t, r, http.MethodPost, "/api/chatgpt/property-summary", gin.H{"propertyAddress": "9 Bay St"})
	require.Equal(t, http.StatusOK, w.Code)
	var got openai.PropertySummary
	decodeData(t, env, &got)
	assert.Equal(t, "• Reasons", got.WhyThisProperty)

	ai.err = openai.ErrRateLimited
	w, env = doRequest(t, r, http.MethodPost, "/api/chatgpt/property-summary", gin.H{"propertyAddress": "9 Bay St"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded. Please try again in a few minutes.", env.Error)

	ai.err = &openai.APIError{StatusCode: http.StatusUnauthorized, Message: "Incorrect API key provided"}
	w, env = doRequest(t, r, http.MethodPost, "/api/chatgpt/property-summary", gin.H{"propertyAddress": "9 Bay St"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Incorrect API key provided", env.Error)
}

func TestFormHelpers(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))

	w, env := doRequest(t, r, http.MethodPost, "/api/validate-email", gin.H{"email": "Packaging@buyersclub.com.au"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "Shared email accounts")

	_, env = doRequest(t, r, http.MethodPost, "/api/validate-email", gin.H{"email": " Will@BuyersClub.com.au "})
	assert.True(t, env.Success)
	var email map[string]interface{}
	decodeData(t, env, &email)
	assert.Equal(t, "will@buyersclub.com.au", email["email"])
	assert.Equal(t, true, email["isValid"])

	_, env = doRequest(t, r, http.MethodPost, "/api/format-phone", gin.H{"phone": "0450581822"})
	var phone map[string]interface{}
	decodeData(t, env, &phone)
	assert.Equal(t, map[string]interface{}{
		"formatted": "+61 4 50 581 822",
		"input":     "0450 581 822",
		"stored":    "+61 4 50 581 822",
		"isValid":   true,
	}, phone)

	w, env = doRequest(t, r, http.MethodPost, "/api/log", gin.H{"message": "step 3 loaded", "data": gin.H{"step": 3}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestSourcers(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	_, env := doRequest(t, r, http.MethodGet, "/api/sourcers", nil)
	var got struct {
		Sourcers  []string `json:"sourcers"`
		FromSheet bool     `json:"fromSheet"`
	}
	decodeData(t, env, &got)
	assert.Equal(t, sheets.FallbackSourcers(), got.Sourcers)
	assert.False(t, got.FromSheet)

	svcs.Sourcers = fakeSourcers{names: []string{"adi", "will"}}
	_, env = doRequest(t, r, http.MethodGet, "/sourcers", nil)
	decodeData(t, env, &got)
	assert.Equal(t, []string{"adi", "will"}, got.Sourcers)
	assert.True(t, got.FromSheet)
}

func TestDistanceMatrixAdminRoutes(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()
	for _, e := range []usagelog.DistanceMatrixEntry{
		{UserEmail: "will@buyersclub.com.au", PropertyAddress: "A", APICallCount: 9, Success: true},
		{UserEmail: "adi@buyersclub.com.au", PropertyAddress: "B", APICallCount: 2, Success: true},
	} {
		require.NoError(t, svcs.Usage.LogDistanceMatrix(ctx, e))
	}
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodGet, "/api/admin/distance-matrix/logs?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Logs  []usagelog.DistanceMatrixEntry `json:"logs"`
		Count int                            `json:"count"`
	}
	decodeData(t, env, &logs)
	assert.Equal(t, 1, logs.Count)

	_, env = doRequest(t, r, http.MethodGet, "/api/admin/distance-matrix/stats", nil)
	var stats usagelog.Stats
	decodeData(t, env, &stats)
	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, 11, stats.TotalAPICalls)
	assert.Equal(t, 2, stats.UniqueUsers)

	w, env = doRequest(t, r, http.MethodGet, "/api/admin/requests/summary?date=14-03-2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "date must be YYYY-MM-DD", env.Error)

	w, env = doRequest(t, r, http.MethodGet, "/api/admin/requests/summary?date=2001-01-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum usagelog.RequestSummary
	decodeData(t, env, &sum)
	assert.Equal(t, "2001-01-01", sum.Date)
	assert.Zero(t, sum.TotalRequests)
}

func TestAdminRoutesWithoutUsageStore(t *testing.T) {
	svcs := newTestServices(t)
	svcs.Usage = nil
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodGet, "/api/admin/distance-matrix/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, usageLogUnavailable, env.Error)
}

func TestVercelRoutes(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodGet, "/api/vercel/project", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, vercel.ErrNotConfigured.Error(), env.Error)

	fake := &fakeVercel{envs: []vercel.EnvVar{{ID: "e1", Key: "OPENAI_API_KEY", Value: "sk-secret", Type: "encrypted"}}}
	svcs.Vercel = fake

	w, env = doRequest(t, r, http.MethodGet, "/api/vercel/project", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "property-packaging", fake.project)

	w, _ = doRequest(t, r, http.MethodGet, "/api/vercel/env", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret")

	w, env = doRequest(t, r, http.MethodPost, "/api/vercel/env", gin.H{"key": "GEOAPIFY_API_KEY"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Key and value are required", env.Error)

	w, _ = doRequest(t, r, http.MethodPost, "/api/vercel/env", gin.H{"key": "GEOAPIFY_API_KEY", "value": "geo-secret", "targets": []string{"preview"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GEOAPIFY_API_KEY", fake.setKey)
	assert.Equal(t, []string{"preview"}, fake.targets)
	assert.NotContains(t, w.Body.String(), "geo-secret")

	w, _ = doRequest(t, r, http.MethodPost, "/api/vercel/deploy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", fake.ref)

	w, env = doRequest(t, r, http.MethodGet, "/api/vercel/deployments/dpl_9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d vercel.Deployment
	decodeData(t, env, &d)
	assert.Equal(t, "dpl_9", d.ID)
	assert.Equal(t, "READY", d.ReadyState)

	fake.err = errors.New("Failed to get project info: 403 forbidden")
	w, env = doRequest(t, r, http.MethodGet, "/api/vercel/project", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Failed to get project info: 403 forbidden", env.Error)
}
