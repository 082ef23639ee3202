package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/ratelimit"
)

var (
	routerOnce sync.Once
	router     *gin.Engine
)

// NewRouter builds the gin engine with every route registered under both
// /x and /api/x.
func NewRouter(config *Config, svcs *Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware(), requestIDMiddleware(), requestLogMiddleware(svcs.Usage), timeoutMiddleware(config.UpstreamTimeout))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "running",
			"message": serviceName,
			"version": serviceVersion,
			"endpoints": gin.H{
				"health":    "/api/health",
				"proximity": "/api/geoapify/proximity",
				"market":    "/api/market-performance/lookup",
				"reports":   "/api/investment-highlights/list-reports",
				"folder":    "/api/create-property-folder",
				"submit":    "/api/ghl/submit-property",
			},
		})
	})

	for _, g := range []*gin.RouterGroup{r.Group(""), r.Group("/api")} {
		setupRoutes(g, config, svcs)
	}
	return r
}

func setupRoutes(g *gin.RouterGroup, config *Config, svcs *Services) {
	// Health check endpoint
	g.GET("/health", HealthCheckHandler)

	// Address and proximity
	g.POST("/geocode", GeocodeHandler(svcs))
	g.GET("/lga", LGAHandler(svcs))
	g.POST("/geoapify/proximity", ratelimit.Middleware(svcs.Limiter), ProximityHandler(svcs))

	// AI content
	g.POST("/ai/generate-content", GenerateContentHandler(svcs))
	g.POST("/chatgpt/property-summary", PropertySummaryHandler(svcs))

	// Market performance sheet
	market := g.Group("/market-performance")
	market.GET("/lookup", MarketLookupHandler(svcs))
	market.POST("/lookup", MarketLookupHandler(svcs))
	market.POST("/save", MarketSaveHandler(svcs))
	market.POST("/update-timestamp", MarketUpdateTimestampHandler(svcs))
	market.POST("/update-timestamp-source", MarketUpdateSourceTimestampHandler(svcs))
	market.POST("/log-proceeded", MarketLogProceededHandler(svcs))

	// Investment highlights sheet
	highlights := g.Group("/investment-highlights")
	highlights.GET("/lookup", HighlightsLookupHandler(svcs))
	highlights.GET("/list-reports", HighlightsListHandler(svcs))
	highlights.POST("/save", HighlightsSaveHandler(svcs))
	highlights.POST("/extract-metadata", ExtractMetadataHandler)
	highlights.POST("/parse-with-ai", ParseReportHandler(svcs))
	highlights.POST("/validate-period", ValidatePeriodHandler)
	highlights.POST("/add-suburb", AddSuburbHandler(svcs))
	highlights.POST("/generate-summary", GenerateSummaryHandler(svcs))

	// GHL, Make.com and Drive
	g.POST("/ghl/check-address", CheckAddressHandler(svcs))
	g.POST("/ghl/submit-property", SubmitPropertyHandler(svcs))
	g.GET("/properties/:recordId", GetPropertyHandler(svcs))
	g.PUT("/properties/:recordId", UpdatePropertyHandler(svcs))
	g.POST("/properties/search", PropertySearchHandler(svcs))
	g.POST("/stash", StashHandler(svcs))
	g.POST("/create-property-folder", CreatePropertyFolderHandler(svcs))
	g.POST("/get-cashflow-spreadsheet-link", CashflowLinkHandler(svcs))
	g.POST("/update-property-spreadsheet", UpdateSpreadsheetHandler(svcs))

	// Form helpers
	g.GET("/sourcers", SourcersHandler(svcs))
	g.GET("/lookups", LookupsHandler(svcs))
	g.POST("/validate-email", ValidateEmailHandler)
	g.POST("/format-phone", FormatPhoneHandler)
	g.POST("/log", ClientLogHandler)

	// Usage and administration
	g.GET("/rate-limit/status", RateLimitStatusHandler(svcs))
	admin := g.Group("/admin")
	admin.GET("/distance-matrix/logs", DistanceMatrixLogsHandler(svcs))
	admin.GET("/distance-matrix/stats", DistanceMatrixStatsHandler(svcs))
	admin.GET("/requests/summary", RequestSummaryHandler(svcs))

	project := config.VercelProjectName
	v := g.Group("/vercel")
	v.GET("/project", VercelProjectHandler(svcs, project))
	v.GET("/env", VercelListEnvHandler(svcs, project))
	v.POST("/env", VercelSetEnvHandler(svcs, project))
	v.POST("/deploy", VercelDeployHandler(svcs, project))
	v.GET("/deployments/:id", VercelDeploymentHandler(svcs))
}

func buildServerlessRouter() {
	_ = godotenv.Load()
	config := LoadConfig()
	log.Init("api", config.LogLevel, config.LogFormat)

	// Only /tmp is writable on Vercel; usage logs last as long as the instance.
	if os.Getenv("VERCEL") != "" && os.Getenv("USAGE_DB_PATH") == "" {
		config.UsageDBPath = filepath.Join(os.TempDir(), "usage.db")
	}
	log.Debug("usage log at ", config.UsageDBPath)

	gin.SetMode(gin.ReleaseMode)
	router = NewRouter(config, NewServices(context.Background(), config))
	log.WithFields(log.Fields{
		"event": "router_ready",
	}).Info("Routes configured")
}

// Handler is the Vercel serverless function entry point
func Handler(w http.ResponseWriter, r *http.Request) {
	routerOnce.Do(buildServerlessRouter)
	router.ServeHTTP(w, r)
}
