package handler

import (
	"context"

	"propertypackaging/internal/drive"
	"propertypackaging/internal/form"
	"propertypackaging/internal/geo"
	"propertypackaging/internal/ghl"
	log "propertypackaging/internal/logging"
	"propertypackaging/internal/openai"
	"propertypackaging/internal/ratelimit"
	"propertypackaging/internal/sheets"
	"propertypackaging/internal/usagelog"
	"propertypackaging/internal/vercel"
)

// Geocoder resolves free-text addresses and suburbs.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.GeocodeResult, error)
	LookupLGA(ctx context.Context, suburb, state string) (string, error)
}

type ProximityFinder interface {
	Find(ctx context.Context, o geo.Origin) (*geo.ProximityResult, error)
}

// ContentWriter produces AI text for the form.
type ContentWriter interface {
	GenerateContent(ctx context.Context, suburb, lga, contentType string) (string, error)
	PropertySummary(ctx context.Context, propertyAddress string) (openai.PropertySummary, error)
	ParseReport(ctx context.Context, text, reportName, validPeriod string) (openai.ParsedReport, error)
	InfrastructureSummary(ctx context.Context, text string) (openai.InfrastructureSummary, error)
}

type MarketData interface {
	Lookup(ctx context.Context, suburb, state string) (sheets.MarketLookup, error)
	SaveAndLog(ctx context.Context, suburb, state string, fields sheets.MarketFields, source sheets.DataSource, changedBy string) error
	Verify(ctx context.Context, suburb, state, changedBy string) error
	VerifySource(ctx context.Context, suburb, state string, source sheets.DataSource, changedBy string) error
	LogProceeded(ctx context.Context, suburb, state string, daysSinceLastCheck int, changedBy string)
}

type HighlightsData interface {
	Lookup(ctx context.Context, suburb, lga, state string) (sheets.HighlightsLookup, error)
	Save(ctx context.Context, lga, suburb, state string, fields sheets.ReportFields) error
	List(ctx context.Context) (sheets.ReportList, error)
	AddSuburb(ctx context.Context, reportName, state, suburb string) (string, bool, error)
}

type Sourcers interface {
	Names(ctx context.Context) ([]string, bool)
}

// AdminLookups maps GHL user and stage IDs to names.
type AdminLookups interface {
	Lookups(ctx context.Context) (sheets.Lookups, error)
}

// Webhooks are the Make.com scenarios.
type Webhooks interface {
	CheckAddress(ctx context.Context, propertyAddress string) ghl.AddressCheck
	SearchProperties(ctx context.Context, address string) ([]interface{}, error)
	Stash(ctx context.Context, propertyAddress string) ghl.StashResult
}

type Records interface {
	CreateRecord(ctx context.Context, d *form.Data) (string, error)
	GetRecord(ctx context.Context, recordID string) (*form.Data, string, error)
	UpdateRecord(ctx context.Context, recordID string, d *form.Data) (string, error)
}

// PropertyFolders creates property folders and works on their spreadsheets.
type PropertyFolders interface {
	CreatePropertyFolder(ctx context.Context, req drive.FolderRequest) (drive.FolderResult, error)
	CashflowSheet(ctx context.Context, folderLink, contractType string) (drive.CashflowSheet, error)
	UpdateSpreadsheet(ctx context.Context, folderLink string, d *form.Data) (drive.CashflowSheet, int, error)
}

type FileDownloader interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

type Deployments interface {
	GetProject(ctx context.Context, project string) (*vercel.Project, error)
	ListEnv(ctx context.Context, project string) ([]vercel.EnvVar, error)
	SetEnv(ctx context.Context, project, key, value string, targets ...string) (*vercel.EnvVar, error)
	Deploy(ctx context.Context, project, ref string) (*vercel.Deployment, error)
	DeploymentStatus(ctx context.Context, deploymentID string) (*vercel.Deployment, error)
}

// Services holds every integration the routes use. A nil field means the
// integration is not configured and its routes answer 500.
type Services struct {
	Geocoder   Geocoder
	Proximity  ProximityFinder
	AI         ContentWriter
	Market     MarketData
	Highlights HighlightsData
	Sourcers   Sourcers
	Lookups    AdminLookups
	Webhooks   Webhooks
	Records    Records
	Folders    PropertyFolders
	Files      FileDownloader
	Vercel     Deployments

	Limiter *ratelimit.Limiter
	Usage   *usagelog.Store
}

// NewServices connects every configured integration. Failures are logged and
// leave the integration unset so the rest of the API still serves.
func NewServices(ctx context.Context, config *Config) *Services {
	s := &Services{Limiter: ratelimit.New(config.Limits())}

	if config.HasGeoscapeConfig() {
		s.Geocoder = geo.NewGeoscapeClient(config.GeoscapeAPIKey, config.GeoscapeBaseURL)
	}
	if config.HasGeoapifyConfig() {
		s.Proximity = geo.NewFinder(geo.NewGeoapifyClient(config.GeoapifyAPIKey, config.GeoapifyBaseURL))
	}
	if config.HasOpenAIConfig() {
		s.AI = openai.NewClient(config.OpenAIAPIKey, config.OpenAIBaseURL, config.OpenAIModel)
	}
	if config.HasMakeConfig() {
		s.Webhooks = ghl.NewMakeClient(ghl.MakeConfig{
			CheckAddressURL:   config.MakeCheckAddressURL,
			PropertySearchURL: config.MakePropertySearchURL,
			StashURL:          config.StashWebhookURL,
		})
	}
	if config.HasGHLConfig() {
		s.Records = ghl.NewClient(ghl.Config{
			BaseURL:     config.GHLBaseURL,
			ObjectID:    config.GHLObjectID,
			LocationID:  config.GHLLocationID,
			BearerToken: config.GHLBearerToken,
			APIVersion:  config.GHLAPIVersion,
		})
	}
	if config.HasVercelConfig() {
		s.Vercel = vercel.NewClient(vercel.Config{
			BaseURL: config.VercelBaseURL,
			Token:   config.VercelToken,
			TeamID:  config.VercelTeamID,
		})
	}

	s.connectGoogle(ctx, config)

	store, err := usagelog.Open(ctx, config.UsageDBPath)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "usage_db_unavailable",
			"path":  config.UsageDBPath,
			"error": err.Error(),
		}).Warn("Usage logging disabled")
	} else {
		s.Usage = store
	}

	log.WithFields(log.Fields{
		"event":      "services_ready",
		"geocoder":   s.Geocoder != nil,
		"proximity":  s.Proximity != nil,
		"ai":         s.AI != nil,
		"market":     s.Market != nil,
		"highlights": s.Highlights != nil,
		"webhooks":   s.Webhooks != nil,
		"records":    s.Records != nil,
		"folders":    s.Folders != nil,
		"vercel":     s.Vercel != nil,
		"usage_log":  s.Usage != nil,
	}).Info("Services initialized")
	return s
}

func (s *Services) connectGoogle(ctx context.Context, config *Config) {
	if !config.HasGoogleConfig() {
		return
	}
	client, err := sheets.Connect(ctx, config.GoogleCredentials)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "sheets_connect_failed",
			"error": err.Error(),
		}).Error("Google Sheets unavailable")
		return
	}
	if config.MarketPerformanceSheetID != "" {
		s.Market = sheets.NewMarketStore(client, config.MarketPerformanceSheetID)
	}
	if config.InvestmentHighlightsSheet != "" {
		s.Highlights = sheets.NewHighlightsStore(client, config.InvestmentHighlightsSheet)
	}
	if config.AdminSheetID != "" {
		s.Sourcers = sheets.NewSourcerList(client, config.AdminSheetID)
		s.Lookups = sheets.NewAdminLookups(client, config.AdminSheetID)
	}

	files, err := drive.Connect(ctx, config.GoogleCredentials, config.SharedDriveID)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "drive_connect_failed",
			"error": err.Error(),
		}).Error("Google Drive unavailable")
		return
	}
	s.Files = files
	if !config.HasDriveConfig() {
		return
	}
	s.Folders = drive.NewFolderService(files, client, drive.FolderConfig{
		SharedDriveID:      config.SharedDriveID,
		TemplateFolderID:   config.TemplateFolderID,
		PropertiesFolderID: config.PropertiesFolderID,
	})
}

// Close releases the usage database.
func (s *Services) Close() error {
	if s.Usage == nil {
		return nil
	}
	return s.Usage.Close()
}
