package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"propertypackaging/internal/geo"
	log "propertypackaging/internal/logging"
	"propertypackaging/internal/openai"
	"propertypackaging/internal/phone"
	"propertypackaging/internal/ratelimit"
	"propertypackaging/internal/usagelog"
	"propertypackaging/internal/useremail"
)

const (
	serviceName    = "Property Packaging API"
	serviceVersion = "1.0.0"
)

// bindJSON answers 400 and returns false when the body is not valid JSON.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, WebhookResponse{
			Success: false,
			Error:   "Invalid JSON payload",
		})
		return false
	}
	return true
}

// fail answers with the error envelope. err, when set, is attached to the
// request for the access log.
func fail(c *gin.Context, status int, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(status, WebhookResponse{
		Success: false,
		Error:   message,
	})
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, WebhookResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// HealthCheckHandler provides a simple health check endpoint
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// GeocodeHandler returns address suggestions for the address step
func GeocodeHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GeocodeRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.Address) == "" {
			fail(c, http.StatusBadRequest, "Address is required", nil)
			return
		}
		if svcs.Geocoder == nil {
			fail(c, http.StatusInternalServerError, "Geoscape API key not configured", geo.ErrNotConfigured)
			return
		}

		result, err := svcs.Geocoder.Geocode(c.Request.Context(), req.Address)
		if err != nil {
			// The form falls back to manual entry, so an empty result is still a success.
			_ = c.Error(err)
			c.JSON(http.StatusOK, WebhookResponse{
				Success: true,
				Data:    result,
				Error:   err.Error(),
			})
			return
		}
		ok(c, "", result)
	}
}

// LGAHandler looks up the local government area of a suburb
func LGAHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		suburb := strings.TrimSpace(c.Query("suburb"))
		state := strings.TrimSpace(c.Query("state"))
		if suburb == "" || state == "" {
			fail(c, http.StatusBadRequest, "Suburb and state are required", nil)
			return
		}
		if svcs.Geocoder == nil {
			fail(c, http.StatusInternalServerError, "Geoscape API key not configured", geo.ErrNotConfigured)
			return
		}

		lga, err := svcs.Geocoder.LookupLGA(c.Request.Context(), suburb, state)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to look up LGA", err)
			return
		}
		ok(c, "", gin.H{
			"suburb": suburb,
			"state":  state,
			"lga":    lga,
			"found":  lga != "",
		})
	}
}

// ProximityHandler finds the nearest amenities to a property. Every lookup
// that reaches Geoapify is recorded in the usage log.
func ProximityHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		var req ProximityRequest
		if !bindJSON(c, &req) {
			return
		}
		hasCoords := req.Latitude != nil && req.Longitude != nil
		if strings.TrimSpace(req.PropertyAddress) == "" && !hasCoords {
			fail(c, http.StatusBadRequest, "Property address or coordinates required", nil)
			return
		}
		if svcs.Proximity == nil {
			fail(c, http.StatusInternalServerError, "Geoapify API key not configured", geo.ErrNotConfigured)
			return
		}

		ctx := c.Request.Context()
		origin := geo.Origin{Address: req.PropertyAddress}
		if hasCoords {
			origin.Lat, origin.Lon = *req.Latitude, *req.Longitude
		} else {
			if svcs.Geocoder == nil {
				fail(c, http.StatusBadRequest, "Could not geocode address", geo.ErrNotConfigured)
				return
			}
			geocoded, err := svcs.Geocoder.Geocode(ctx, req.PropertyAddress)
			if err != nil || geocoded.BestMatch == nil {
				fail(c, http.StatusBadRequest, "Could not geocode address", err)
				return
			}
			origin.Lat, origin.Lon = geocoded.BestMatch.Latitude, geocoded.BestMatch.Longitude
			origin.State = geocoded.BestMatch.State
		}

		log.WithFields(log.Fields{
			"event":   "geoapify_request",
			"address": req.PropertyAddress,
			"lat":     origin.Lat,
			"lon":     origin.Lon,
		}).Info("Finding nearby amenities")

		result, err := svcs.Proximity.Find(ctx, origin)
		recordDistanceUsage(c, svcs.Usage, req, result, err, start)

		if err != nil {
			msg := "Failed to fetch proximity data"
			if errors.Is(err, geo.ErrNoAmenities) {
				msg = err.Error()
			}
			fail(c, http.StatusInternalServerError, msg, err)
			return
		}
		ok(c, "", result)
	}
}

func recordDistanceUsage(c *gin.Context, usage *usagelog.Store, req ProximityRequest, result *geo.ProximityResult, err error, start time.Time) {
	if usage == nil {
		return
	}
	entry := usagelog.FromRequest(c.Request, ratelimit.ClientIP(c.Request))
	entry.UserEmail = req.UserEmail
	entry.PropertyAddress = req.PropertyAddress
	entry.DurationMS = time.Since(start).Milliseconds()
	entry.Success = err == nil
	if err != nil {
		entry.Error = err.Error()
	}
	if result != nil {
		entry.APICallCount = result.APICalls
		entry.DestinationsCount = len(result.Amenities)
	}
	if logErr := usage.LogDistanceMatrix(c.Request.Context(), entry); logErr != nil {
		log.WithFields(log.Fields{
			"event": "usage_log_failed",
			"error": logErr.Error(),
		}).Warn("Failed to record distance matrix usage")
	}
}

// GenerateContentHandler writes "why this property" copy for a suburb
func GenerateContentHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateContentRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.Suburb == "" || req.LGA == "" {
			fail(c, http.StatusBadRequest, "Suburb and LGA are required", nil)
			return
		}
		if req.Type == "" {
			req.Type = openai.ContentWhyProperty
		}
		if svcs.AI == nil {
			fail(c, http.StatusInternalServerError, "OpenAI API key not configured", openai.ErrNotConfigured)
			return
		}

		content, err := svcs.AI.GenerateContent(c.Request.Context(), req.Suburb, req.LGA, req.Type)
		switch {
		case errors.Is(err, openai.ErrInvalidContentType):
			fail(c, http.StatusBadRequest, err.Error(), nil)
			return
		case err != nil:
			fail(c, http.StatusInternalServerError, "Failed to generate content", err)
			return
		}
		ok(c, "", gin.H{"content": content})
	}
}

// PropertySummaryHandler asks the model for proximity and investment copy
func PropertySummaryHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PropertySummaryRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.PropertyAddress) == "" {
			fail(c, http.StatusBadRequest, "Property address is required", nil)
			return
		}
		if svcs.AI == nil {
			fail(c, http.StatusInternalServerError, "OpenAI API key not configured", openai.ErrNotConfigured)
			return
		}

		summary, err := svcs.AI.PropertySummary(c.Request.Context(), req.PropertyAddress)
		if err != nil {
			aiFailure(c, err)
			return
		}
		ok(c, "", summary)
	}
}

// aiFailure passes OpenAI's status through, with rate limits as 429.
func aiFailure(c *gin.Context, err error) {
	var apiErr *openai.APIError
	switch {
	case errors.Is(err, openai.ErrRateLimited):
		fail(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again in a few minutes.", err)
	case errors.As(err, &apiErr):
		fail(c, apiErr.StatusCode, apiErr.Message, err)
	default:
		fail(c, http.StatusInternalServerError, err.Error(), err)
	}
}

// ValidateEmailHandler checks the packager's identifying email
func ValidateEmailHandler(c *gin.Context) {
	var req ValidateEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	result := useremail.Validate(req.Email)
	if !result.Valid {
		c.JSON(http.StatusOK, WebhookResponse{
			Success: false,
			Data:    result,
			Error:   result.Error,
		})
		return
	}
	ok(c, "", result)
}

// FormatPhoneHandler formats an Australian mobile for display and storage
func FormatPhoneHandler(c *gin.Context) {
	var req FormatPhoneRequest
	if !bindJSON(c, &req) {
		return
	}
	ok(c, "", gin.H{
		"formatted": phone.FormatMobile(req.Phone),
		"input":     phone.FormatInput(req.Phone),
		"stored":    phone.NormalizeForStorage(req.Phone),
		"isValid":   phone.IsValidMobileInput(req.Phone),
	})
}

// ClientLogHandler writes a browser log line into the server log
func ClientLogHandler(c *gin.Context) {
	var req ClientLogRequest
	if !bindJSON(c, &req) {
		return
	}
	entry := log.WithFields(log.Fields{
		"event":  "client_log",
		"source": "client",
	})
	if req.Data != nil {
		entry = entry.WithField("data", req.Data)
	}
	entry.Info("[CLIENT] " + req.Message)
	c.JSON(http.StatusOK, WebhookResponse{Success: true})
}
