package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"propertypackaging/internal/usagelog"
	"propertypackaging/internal/vercel"
)

const usageLogUnavailable = "Usage log is not available"

// RateLimitStatusHandler reports global proximity usage against the limits
func RateLimitStatusHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, "", svcs.Limiter.Status())
	}
}

func dateRange(c *gin.Context) usagelog.DateRange {
	return usagelog.DateRange{From: c.Query("startDate"), To: c.Query("endDate")}
}

// DistanceMatrixLogsHandler lists recent proximity lookups, newest first
func DistanceMatrixLogsHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Usage == nil {
			fail(c, http.StatusInternalServerError, usageLogUnavailable, nil)
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit <= 0 {
			limit = 100
		}

		logs, err := svcs.Usage.Logs(c.Request.Context(), limit, dateRange(c))
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to fetch logs", err)
			return
		}
		ok(c, "", gin.H{
			"logs":  logs,
			"count": len(logs),
		})
	}
}

func DistanceMatrixStatsHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Usage == nil {
			fail(c, http.StatusInternalServerError, usageLogUnavailable, nil)
			return
		}
		stats, err := svcs.Usage.Stats(c.Request.Context(), dateRange(c))
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to fetch stats", err)
			return
		}
		ok(c, "", stats)
	}
}

// RequestSummaryHandler summarises one day of API traffic (?date=YYYY-MM-DD,
// default today UTC).
func RequestSummaryHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Usage == nil {
			fail(c, http.StatusInternalServerError, usageLogUnavailable, nil)
			return
		}
		day := time.Now().UTC()
		if v := c.Query("date"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				fail(c, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
				return
			}
			day = parsed
		}

		summary, err := svcs.Usage.DailySummary(c.Request.Context(), day)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to summarize requests", err)
			return
		}
		ok(c, "", summary)
	}
}

func vercelNotConfigured(c *gin.Context) {
	fail(c, http.StatusInternalServerError, vercel.ErrNotConfigured.Error(), vercel.ErrNotConfigured)
}

// VercelProjectHandler shows the deployment project
func VercelProjectHandler(svcs *Services, project string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Vercel == nil {
			vercelNotConfigured(c)
			return
		}
		p, err := svcs.Vercel.GetProject(c.Request.Context(), project)
		if err != nil {
			fail(c, http.StatusBadGateway, err.Error(), err)
			return
		}
		ok(c, "", p)
	}
}

// VercelListEnvHandler lists the project's variables. Values are never echoed.
func VercelListEnvHandler(svcs *Services, project string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Vercel == nil {
			vercelNotConfigured(c)
			return
		}
		envs, err := svcs.Vercel.ListEnv(c.Request.Context(), project)
		if err != nil {
			fail(c, http.StatusBadGateway, err.Error(), err)
			return
		}
		for i := range envs {
			envs[i].Value = ""
		}
		ok(c, "", gin.H{"envs": envs})
	}
}

func VercelSetEnvHandler(svcs *Services, project string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetEnvRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.Key == "" || req.Value == "" {
			fail(c, http.StatusBadRequest, "Key and value are required", nil)
			return
		}
		if svcs.Vercel == nil {
			vercelNotConfigured(c)
			return
		}

		env, err := svcs.Vercel.SetEnv(c.Request.Context(), project, req.Key, req.Value, req.Targets...)
		if err != nil {
			fail(c, http.StatusBadGateway, err.Error(), err)
			return
		}
		env.Value = ""
		ok(c, "Environment variable set", env)
	}
}

func VercelDeployHandler(svcs *Services, project string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeployRequest
		// An empty body deploys main.
		if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
			return
		}
		if svcs.Vercel == nil {
			vercelNotConfigured(c)
			return
		}

		d, err := svcs.Vercel.Deploy(c.Request.Context(), project, req.Ref)
		if err != nil {
			fail(c, http.StatusBadGateway, err.Error(), err)
			return
		}
		ok(c, "Deployment started", d)
	}
}

func VercelDeploymentHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Vercel == nil {
			vercelNotConfigured(c)
			return
		}
		d, err := svcs.Vercel.DeploymentStatus(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadGateway, err.Error(), err)
			return
		}
		ok(c, "", d)
	}
}
