package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
	"propertypackaging/internal/ratelimit"
	"propertypackaging/internal/usagelog"
)

const requestIDHeader = "X-Request-ID"

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware reuses the caller's request id or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// timeoutMiddleware bounds how long a handler may wait on upstream APIs.
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requestLogMiddleware records every request in the structured log, the
// Prometheus collectors and the usage database.
func requestLogMiddleware(usage *usagelog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ip := ratelimit.ClientIP(c.Request)

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		entry := log.WithFields(log.Fields{
			"event":       "http_request",
			"request_id":  c.GetString("request_id"),
			"ip":          ip,
			"method":      c.Request.Method,
			"endpoint":    c.Request.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
		})
		errMsg := c.Errors.ByType(gin.ErrorTypeAny).String()
		if errMsg != "" {
			entry = entry.WithField("error", errMsg)
		}
		if status >= http.StatusInternalServerError {
			entry.Error("Request failed")
		} else {
			entry.Info("Request served")
		}

		if usage == nil {
			return
		}
		// The response is already written, so the request context may be gone.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := usage.LogRequest(ctx, usagelog.RequestEntry{
			IP:         ip,
			Endpoint:   c.Request.URL.Path,
			Method:     c.Request.Method,
			Status:     status,
			DurationMS: elapsed.Milliseconds(),
			Error:      errMsg,
		})
		if err != nil {
			log.WithFields(log.Fields{
				"event": "usage_log_failed",
				"error": err.Error(),
			}).Warn("Failed to record request")
		}
	}
}
