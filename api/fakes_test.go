package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"propertypackaging/internal/drive"
	"propertypackaging/internal/form"
	"propertypackaging/internal/geo"
	"propertypackaging/internal/ghl"
	"propertypackaging/internal/openai"
	"propertypackaging/internal/ratelimit"
	"propertypackaging/internal/sheets"
	"propertypackaging/internal/usagelog"
	"propertypackaging/internal/vercel"
)

type fakeGeocoder struct {
	result geo.GeocodeResult
	err    error
	lga    string
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (geo.GeocodeResult, error) {
	return f.result, f.err
}

func (f *fakeGeocoder) LookupLGA(ctx context.Context, suburb, state string) (string, error) {
	return f.lga, f.err
}

type fakeFinder struct {
	origin geo.Origin
	calls  int
	result *geo.ProximityResult
	err    error
}

func (f *fakeFinder) Find(ctx context.Context, o geo.Origin) (*geo.ProximityResult, error) {
	f.calls++
	f.origin = o
	return f.result, f.err
}

type fakeAI struct {
	contentType string
	content     string
	summary     openai.PropertySummary
	parsed      openai.ParsedReport
	infra       openai.InfrastructureSummary
	summarised  string
	err         error
}

func (f *fakeAI) GenerateContent(ctx context.Context, suburb, lga, contentType string) (string, error) {
	f.contentType = contentType
	return f.content, f.err
}

func (f *fakeAI) PropertySummary(ctx context.Context, propertyAddress string) (openai.PropertySummary, error) {
	return f.summary, f.err
}

func (f *fakeAI) ParseReport(ctx context.Context, text, reportName, validPeriod string) (openai.ParsedReport, error) {
	return f.parsed, f.err
}

func (f *fakeAI) InfrastructureSummary(ctx context.Context, text string) (openai.InfrastructureSummary, error) {
	f.summarised = text
	return f.infra, f.err
}

type marketCall struct {
	method    string
	suburb    string
	state     string
	source    sheets.DataSource
	fields    sheets.MarketFields
	days      int
	changedBy string
}

type fakeMarket struct {
	lookup sheets.MarketLookup
	err    error
	calls  []marketCall
}

func (f *fakeMarket) Lookup(ctx context.Context, suburb, state string) (sheets.MarketLookup, error) {
	f.calls = append(f.calls, marketCall{method: "Lookup", suburb: suburb, state: state})
	return f.lookup, f.err
}

func (f *fakeMarket) SaveAndLog(ctx context.Context, suburb, state string, fields sheets.MarketFields, source sheets.DataSource, changedBy string) error {
	f.calls = append(f.calls, marketCall{method: "SaveAndLog", suburb: suburb, state: state, fields: fields, source: source, changedBy: changedBy})
	return f.err
}

func (f *fakeMarket) Verify(ctx context.Context, suburb, state, changedBy string) error {
	f.calls = append(f.calls, marketCall{method: "Verify", suburb: suburb, state: state, changedBy: changedBy})
	return f.err
}

func (f *fakeMarket) VerifySource(ctx context.Context, suburb, state string, source sheets.DataSource, changedBy string) error {
	f.calls = append(f.calls, marketCall{method: "VerifySource", suburb: suburb, state: state, source: source, changedBy: changedBy})
	return f.err
}

func (f *fakeMarket) LogProceeded(ctx context.Context, suburb, state string, days int, changedBy string) {
	f.calls = append(f.calls, marketCall{method: "LogProceeded", suburb: suburb, state: state, days: days, changedBy: changedBy})
}

type fakeHighlights struct {
	lookup   sheets.HighlightsLookup
	list     sheets.ReportList
	err      error
	lga      string
	suburb   string
	state    string
	fields   sheets.ReportFields
	lookedUp []string
	added    []string
	merged   string
	isNew    bool
}

func (f *fakeHighlights) Lookup(ctx context.Context, suburb, lga, state string) (sheets.HighlightsLookup, error) {
	f.lookedUp = []string{suburb, lga, state}
	return f.lookup, f.err
}

func (f *fakeHighlights) Save(ctx context.Context, lga, suburb, state string, fields sheets.ReportFields) error {
	f.lga, f.suburb, f.state, f.fields = lga, suburb, state, fields
	return f.err
}

func (f *fakeHighlights) List(ctx context.Context) (sheets.ReportList, error) {
	return f.list, f.err
}

func (f *fakeHighlights) AddSuburb(ctx context.Context, reportName, state, suburb string) (string, bool, error) {
	f.added = []string{reportName, state, suburb}
	return f.merged, f.isNew, f.err
}

type fakeSourcers struct{ names []string }

func (f fakeSourcers) Names(ctx context.Context) ([]string, bool) { return f.names, true }

type fakeLookups struct {
	lookups sheets.Lookups
	err     error
}

func (f fakeLookups) Lookups(ctx context.Context) (sheets.Lookups, error) { return f.lookups, f.err }

type fakeDownloads struct {
	data   []byte
	err    error
	fileID string
}

func (f *fakeDownloads) Download(ctx context.Context, fileID string) ([]byte, error) {
	f.fileID = fileID
	return f.data, f.err
}

type fakeWebhooks struct {
	check      ghl.AddressCheck
	properties []interface{}
	searchErr  error
	stash      ghl.StashResult
}

func (f *fakeWebhooks) CheckAddress(ctx context.Context, propertyAddress string) ghl.AddressCheck {
	return f.check
}

func (f *fakeWebhooks) SearchProperties(ctx context.Context, address string) ([]interface{}, error) {
	return f.properties, f.searchErr
}

func (f *fakeWebhooks) Stash(ctx context.Context, propertyAddress string) ghl.StashResult {
	return f.stash
}

type fakeRecords struct {
	id      string
	data    *form.Data
	err     error
	created *form.Data
	updated string
}

func (f *fakeRecords) CreateRecord(ctx context.Context, d *form.Data) (string, error) {
	f.created = d
	return f.id, f.err
}

func (f *fakeRecords) GetRecord(ctx context.Context, recordID string) (*form.Data, string, error) {
	return f.data, recordID, f.err
}

func (f *fakeRecords) UpdateRecord(ctx context.Context, recordID string, d *form.Data) (string, error) {
	f.updated = recordID
	return recordID, f.err
}

type fakeFolders struct {
	req          drive.FolderRequest
	result       drive.FolderResult
	sheet        drive.CashflowSheet
	link         string
	contractType string
	form         *form.Data
	err          error
}

func (f *fakeFolders) CreatePropertyFolder(ctx context.Context, req drive.FolderRequest) (drive.FolderResult, error) {
	f.req = req
	return f.result, f.err
}

func (f *fakeFolders) CashflowSheet(ctx context.Context, folderLink, contractType string) (drive.CashflowSheet, error) {
	f.link, f.contractType = folderLink, contractType
	return f.sheet, f.err
}

func (f *fakeFolders) UpdateSpreadsheet(ctx context.Context, folderLink string, d *form.Data) (drive.CashflowSheet, int, error) {
	f.link, f.form = folderLink, d
	return f.sheet, 42, f.err
}

type fakeVercel struct {
	project string
	envs    []vercel.EnvVar
	setKey  string
	targets []string
	ref     string
	err     error
}

func (f *fakeVercel) GetProject(ctx context.Context, project string) (*vercel.Project, error) {
	f.project = project
	return &vercel.Project{ID: "prj_1", Name: project}, f.err
}

func (f *fakeVercel) ListEnv(ctx context.Context, project string) ([]vercel.EnvVar, error) {
	f.project = project
	return f.envs, f.err
}

func (f *fakeVercel) SetEnv(ctx context.Context, project, key, value string, targets ...string) (*vercel.EnvVar, error) {
	f.setKey, f.targets = key, targets
	return &vercel.EnvVar{ID: "env_1", Key: key, Value: value, Type: "encrypted", Target: targets}, f.err
}

func (f *fakeVercel) Deploy(ctx context.Context, project, ref string) (*vercel.Deployment, error) {
	f.ref = ref
	return &vercel.Deployment{ID: "dpl_1", Name: project, ReadyState: "QUEUED"}, f.err
}

func (f *fakeVercel) DeploymentStatus(ctx context.Context, deploymentID string) (*vercel.Deployment, error) {
	return &vercel.Deployment{ID: deploymentID, ReadyState: "READY"}, f.err
}

// envelope mirrors WebhookResponse with Data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServices(t *testing.T) *Services {
	t.Helper()
	store, err := usagelog.Open(context.Background(), usagelog.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &Services{
		Limiter: ratelimit.New(ratelimit.DefaultLimits()),
		Usage:   store,
	}
}

func newTestRouter(t *testing.T, svcs *Services) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(&Config{VercelProjectName: "property-packaging"}, svcs)
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NotEmpty(t, env.Data, "response has no data")
	require.NoError(t, json.Unmarshal(env.Data, out))
}
