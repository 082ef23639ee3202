// Package form defines the property review submitted by packagers, as it
// travels between the HTTP API, GHL and the cashflow spreadsheets.
package form

import (
	"math"
	"strconv"
	"strings"

	"propertypackaging/internal/address"
)

const (
	PropertyNew         = "New"
	PropertyEstablished = "Established"

	LotIndividual = "Individual"
	LotMultiple   = "Multiple"

	SingleContract = "Single Contract"
	SplitContract  = "Split Contract"

	RebateCashback = "cashback"
)

type DecisionTree struct {
	PropertyType           string `json:"propertyType,omitempty"`
	ContractType           string `json:"contractType,omitempty"`
	ContractTypeSimplified string `json:"contractTypeSimplified,omitempty"`
	LotType                string `json:"lotType,omitempty"`
	DualOccupancy          string `json:"dualOccupancy,omitempty"`
	Status                 string `json:"status,omitempty"`
}

type Address struct {
	PropertyAddress        string  `json:"propertyAddress"`
	LotNumber              string  `json:"lotNumber,omitempty"`
	LotNumberNotApplicable bool    `json:"lotNumberNotApplicable,omitempty"`
	UnitNumber             string  `json:"unitNumber,omitempty"`
	HasUnitNumbers         bool    `json:"hasUnitNumbers,omitempty"`
	StreetNumber           string  `json:"streetNumber,omitempty"`
	StreetName             string  `json:"streetName,omitempty"`
	SuburbName             string  `json:"suburbName,omitempty"`
	State                  string  `json:"state,omitempty"`
	PostCode               string  `json:"postCode,omitempty"`
	GoogleMap              string  `json:"googleMap,omitempty"`
	LGA                    string  `json:"lga,omitempty"`
	Latitude               float64 `json:"latitude,omitempty"`
	Longitude              float64 `json:"longitude,omitempty"`
}

// Parts returns the fields used to build the full address and folder name.
func (a Address) Parts() address.Parts {
	return address.Parts{
		PropertyAddress:        a.PropertyAddress,
		LotNumber:              a.LotNumber,
		LotNumberNotApplicable: a.LotNumberNotApplicable,
		UnitNumber:             a.UnitNumber,
		HasUnitNumbers:         a.HasUnitNumbers,
	}
}

// Street is "<number> <name> <suburb>" with empty parts skipped.
func (a Address) Street() string {
	return strings.Join(strings.Fields(a.StreetNumber+" "+a.StreetName+" "+a.SuburbName), " ")
}

type RiskOverlays struct {
	Zoning                        string `json:"zoning,omitempty"`
	Flood                         string `json:"flood"`
	FloodDialogue                 string `json:"floodDialogue,omitempty"`
	Bushfire                      string `json:"bushfire"`
	BushfireDialogue              string `json:"bushfireDialogue,omitempty"`
	Mining                        string `json:"mining"`
	MiningDialogue                string `json:"miningDialogue,omitempty"`
	OtherOverlay                  string `json:"otherOverlay"`
	OtherOverlayDialogue          string `json:"otherOverlayDialogue,omitempty"`
	SpecialInfrastructure         string `json:"specialInfrastructure"`
	SpecialInfrastructureDialogue string `json:"specialInfrastructureDialogue,omitempty"`
	DueDiligenceAcceptance        string `json:"dueDiligenceAcceptance"`
}

type PropertyDescription struct {
	BedsPrimary                    string `json:"bedsPrimary,omitempty"`
	BedsSecondary                  string `json:"bedsSecondary,omitempty"`
	BathPrimary                    string `json:"bathPrimary,omitempty"`
	BathSecondary                  string `json:"bathSecondary,omitempty"`
	GaragePrimary                  string `json:"garagePrimary,omitempty"`
	GarageSecondary                string `json:"garageSecondary,omitempty"`
	CarportPrimary                 string `json:"carportPrimary,omitempty"`
	CarportSecondary               string `json:"carportSecondary,omitempty"`
	CarspacePrimary                string `json:"carspacePrimary,omitempty"`
	CarspaceSecondary              string `json:"carspaceSecondary,omitempty"`
	YearBuilt                      string `json:"yearBuilt,omitempty"`
	LandRegistration               string `json:"landRegistration,omitempty"`
	LandSize                       string `json:"landSize,omitempty"`
	BuildSize                      string `json:"buildSize,omitempty"`
	Title                          string `json:"title,omitempty"`
	BodyCorpPerQuarter             string `json:"bodyCorpPerQuarter,omitempty"`
	BodyCorpDescription            string `json:"bodyCorpDescription,omitempty"`
	DoesThisPropertyHave2Dwellings string `json:"doesThisPropertyHave2Dwellings,omitempty"`
	AdditionalDialogue             string `json:"propertyDescriptionAdditionalDialogue,omitempty"`
}

type PurchasePrice struct {
	Asking                    string `json:"asking,omitempty"`
	AskingText                string `json:"askingText,omitempty"`
	ComparableSales           string `json:"comparableSales,omitempty"`
	AcceptableAcquisitionFrom string `json:"acceptableAcquisitionFrom,omitempty"`
	AcceptableAcquisitionTo   string `json:"acceptableAcquisitionTo,omitempty"`
	LandPrice                 string `json:"landPrice,omitempty"`
	BuildPrice                string `json:"buildPrice,omitempty"`
	TotalPrice                string `json:"totalPrice,omitempty"`
	CashbackRebateValue       string `json:"cashbackRebateValue,omitempty"`
	CashbackRebateType        string `json:"cashbackRebateType,omitempty"`
	AdditionalDialogue        string `json:"purchasePriceAdditionalDialogue,omitempty"`
}

type RentalAssessment struct {
	Occupancy                  string `json:"occupancy,omitempty"`
	CurrentRentPrimary         string `json:"currentRentPrimary,omitempty"`
	CurrentRentSecondary       string `json:"currentRentSecondary,omitempty"`
	ExpiryPrimary              string `json:"expiryPrimary,omitempty"`
	ExpirySecondary            string `json:"expirySecondary,omitempty"`
	RentAppraisalPrimaryFrom   string `json:"rentAppraisalPrimaryFrom,omitempty"`
	RentAppraisalPrimaryTo     string `json:"rentAppraisalPrimaryTo,omitempty"`
	RentAppraisalSecondaryFrom string `json:"rentAppraisalSecondaryFrom,omitempty"`
	RentAppraisalSecondaryTo   string `json:"rentAppraisalSecondaryTo,omitempty"`
	Yield                      string `json:"yield,omitempty"`
	AppraisedYield             string `json:"appraisedYield,omitempty"`
	AdditionalDialogue         string `json:"rentalAssessmentAdditionalDialogue,omitempty"`
}

type MarketPerformance struct {
	MedianPriceChange3Months string `json:"medianPriceChange3Months,omitempty"`
	MedianPriceChange1Year   string `json:"medianPriceChange1Year,omitempty"`
	MedianPriceChange3Year   string `json:"medianPriceChange3Year,omitempty"`
	MedianPriceChange5Year   string `json:"medianPriceChange5Year,omitempty"`
	MedianYield              string `json:"medianYield,omitempty"`
	MedianRentChange1Year    string `json:"medianRentChange1Year,omitempty"`
	RentalPopulation         string `json:"rentalPopulation,omitempty"`
	VacancyRate              string `json:"vacancyRate,omitempty"`
	AdditionalDialogue       string `json:"marketPerformanceAdditionalDialogue,omitempty"`
}

type ContentSections struct {
	WhyThisProperty      string `json:"whyThisProperty,omitempty"`
	Proximity            string `json:"proximity,omitempty"`
	InvestmentHighlights string `json:"investmentHighlights,omitempty"`
}

type AgentInfo struct {
	AgentName   string `json:"agentName,omitempty"`
	AgentMobile string `json:"agentMobile,omitempty"`
	AgentEmail  string `json:"agentEmail,omitempty"`
}

// Data is a complete property review.
type Data struct {
	Packager                      string `json:"packager,omitempty"`
	Sourcer                       string `json:"sourcer,omitempty"`
	SellingAgent                  string `json:"sellingAgent,omitempty"`
	Status                        string `json:"status,omitempty"`
	DealType                      string `json:"dealType,omitempty"`
	ReviewDate                    string `json:"reviewDate,omitempty"`
	FolderLink                    string `json:"folderLink,omitempty"`
	MessageForBA                  string `json:"messageForBA,omitempty"`
	AttachmentsAdditionalDialogue string `json:"attachmentsAdditionalDialogue,omitempty"`

	DecisionTree        DecisionTree        `json:"decisionTree"`
	Address             Address             `json:"address"`
	RiskOverlays        RiskOverlays        `json:"riskOverlays"`
	PropertyDescription PropertyDescription `json:"propertyDescription"`
	PurchasePrice       PurchasePrice       `json:"purchasePrice"`
	RentalAssessment    RentalAssessment    `json:"rentalAssessment"`
	MarketPerformance   MarketPerformance   `json:"marketPerformance"`
	ContentSections     ContentSections     `json:"contentSections"`
	AgentInfo           AgentInfo           `json:"agentInfo"`
}

// TemplateType is the GHL email template for the property type.
func (d *Data) TemplateType() string {
	switch {
	case d.DecisionTree.PropertyType == PropertyNew && d.DecisionTree.LotType == LotMultiple:
		return "Project"
	case d.DecisionTree.PropertyType == PropertyNew:
		return "H&L with Sales Assessment"
	default:
		return "Standard"
	}
}

// IsDual reports whether the property has a secondary dwelling.
func (d *Data) IsDual() bool {
	pd := d.PropertyDescription
	return d.DecisionTree.DualOccupancy == "Yes" ||
		pd.BedsSecondary != "" || pd.BathSecondary != "" || pd.GarageSecondary != ""
}

// IsSplitContract reports whether land and build are priced separately.
func (d *Data) IsSplitContract() bool {
	return d.DecisionTree.ContractTypeSimplified == SplitContract
}

// ParseCurrency reads "$1,234.50" style amounts. TBC and blanks are not
// numbers, nor are NaN or infinities.
func ParseCurrency(s string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if cleaned == "" || strings.EqualFold(cleaned, "TBC") {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// NormalizeYesNo maps any casing of yes/no to "Yes"/"No"; anything else is "".
func NormalizeYesNo(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return "Yes"
	case "no":
		return "No"
	}
	return ""
}

// FormatAmount renders a whole amount without a trailing ".0" and keeps
// cents otherwise.
func FormatAmount(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
