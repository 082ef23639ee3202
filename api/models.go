package handler

import (
	"propertypackaging/internal/form"
	"propertypackaging/internal/sheets"
)

// WebhookResponse is the envelope every route answers with
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GeocodeRequest asks for address suggestions
type GeocodeRequest struct {
	Address string `json:"address"`
}

// ProximityRequest locates amenities around an address or a coordinate pair
type ProximityRequest struct {
	PropertyAddress string   `json:"propertyAddress"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	UserEmail       string   `json:"userEmail"`
}

type GenerateContentRequest struct {
	Suburb string `json:"suburb"`
	LGA    string `json:"lga"`
	Type   string `json:"type"`
}

type PropertySummaryRequest struct {
	PropertyAddress string `json:"propertyAddress"`
}

// MarketLookupRequest is accepted as JSON or as query parameters
type MarketLookupRequest struct {
	SuburbName string `json:"suburbName" form:"suburbName"`
	State      string `json:"state" form:"state"`
}

type MarketSaveRequest struct {
	SuburbName string               `json:"suburbName"`
	State      string               `json:"state"`
	Data       *sheets.MarketFields `json:"data"`
	DataSource sheets.DataSource    `json:"dataSource"`
	ChangedBy  string               `json:"changedBy"`
}

type MarketTimestampRequest struct {
	SuburbName string            `json:"suburbName"`
	State      string            `json:"state"`
	Source     sheets.DataSource `json:"source"`
	ChangedBy  string            `json:"changedBy"`
}

type LogProceededRequest struct {
	SuburbName         string `json:"suburbName"`
	State              string `json:"state"`
	DaysSinceLastCheck int    `json:"daysSinceLastCheck"`
	ChangedBy          string `json:"changedBy"`
}

// HighlightsSaveRequest carries a report and the suburbs it covers. The first
// suburb is used to find an existing report row. Nil report fields are left
// as they are in the sheet.
type HighlightsSaveRequest struct {
	Suburbs []string `json:"suburbs"`
	LGA     string   `json:"lga"`
	State   string   `json:"state"`

	ReportName              *string `json:"reportName"`
	ValidPeriod             *string `json:"validPeriod"`
	MainBody                *string `json:"mainBody"`
	ExtraInfo               *string `json:"extraInfo"`
	PopulationGrowthContext *string `json:"populationGrowthContext"`
	Residential             *string `json:"residential"`
	Industrial              *string `json:"industrial"`
	CommercialAndCivic      *string `json:"commercialAndCivic"`
	HealthAndEducation      *string `json:"healthAndEducation"`
	Transport               *string `json:"transport"`
	JobImplications         *string `json:"jobImplications"`
	PDFDriveLink            *string `json:"pdfDriveLink"`
	PDFFileID               *string `json:"pdfFileId"`

	// Upload results; they win over pdfDriveLink and pdfFileId.
	PDFLink string `json:"pdfLink"`
	FileID  string `json:"fileId"`
}

// ReportFields builds the sheet update, storing suburbs as the report's
// suburb list.
func (r *HighlightsSaveRequest) ReportFields(suburbs string) sheets.ReportFields {
	f := sheets.ReportFields{
		Suburbs:                 &suburbs,
		ReportName:              r.ReportName,
		ValidPeriod:             r.ValidPeriod,
		MainBody:                r.MainBody,
		ExtraInfo:               r.ExtraInfo,
		PopulationGrowthContext: r.PopulationGrowthContext,
		Residential:             r.Residential,
		Industrial:              r.Industrial,
		CommercialAndCivic:      r.CommercialAndCivic,
		HealthAndEducation:      r.HealthAndEducation,
		Transport:               r.Transport,
		JobImplications:         r.JobImplications,
		PDFDriveLink:            r.PDFDriveLink,
		PDFFileID:               r.PDFFileID,
	}
	if r.PDFLink != "" {
		f.PDFDriveLink = &r.PDFLink
	}
	if r.FileID != "" {
		f.PDFFileID = &r.FileID
	}
	return f
}

// AddSuburbRequest names the report a suburb joins
type AddSuburbRequest struct {
	Suburb     string `json:"suburb"`
	State      string `json:"state"`
	ReportName string `json:"reportName"`
}

type GenerateSummaryRequest struct {
	FileID string `json:"fileId"`
}

type ExtractMetadataRequest struct {
	Text string `json:"text"`
}

type ParseReportRequest struct {
	Text        string `json:"text"`
	ReportName  string `json:"reportName"`
	ValidPeriod string `json:"validPeriod"`
}

type ValidatePeriodRequest struct {
	ValidPeriod string `json:"validPeriod"`
}

// AddressRequest is shared by the Make.com lookups
type AddressRequest struct {
	PropertyAddress string `json:"propertyAddress"`
}

type ValidateEmailRequest struct {
	Email string `json:"email"`
}

type FormatPhoneRequest struct {
	Phone string `json:"phone"`
}

// ClientLogRequest is a log line forwarded from the browser
type ClientLogRequest struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type SetEnvRequest struct {
	Key     string   `json:"key"`
	Value   string   `json:"value"`
	Targets []string `json:"targets"`
}

type DeployRequest struct {
	Ref string `json:"ref"`
}

type PropertySearchRequest struct {
	Address string `json:"address"`
}

// CashflowLinkRequest locates the cashflow sheet in a property folder
type CashflowLinkRequest struct {
	FolderLink   string `json:"folderLink"`
	ContractType string `json:"contractType"`
}

type UpdateSpreadsheetRequest struct {
	FolderLink string     `json:"folderLink"`
	FormData   *form.Data `json:"formData"`
}
