package ghl

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"propertypackaging/internal/form"
)

type fieldKind int

const (
	plain fieldKind = iota
	yesNo
	// bath counts are stored as option keys: "2.5" becomes "2point5".
	bath
	// numeric fields are number fields in GHL; blank or unparseable values are
	// not sent in either mode.
	numeric
)

type field struct {
	key  string
	kind fieldKind
	get  func(d *form.Data) *string
	// aliases are alternative keys accepted when reading a record.
	aliases []string
}

var recordFields = []field{
	{key: "property_address", get: func(d *form.Data) *string { return &d.Address.PropertyAddress }},
	{key: "street_number", get: func(d *form.Data) *string { return &d.Address.StreetNumber }},
	{key: "street_name", get: func(d *form.Data) *string { return &d.Address.StreetName }},
	{key: "suburb_name", get: func(d *form.Data) *string { return &d.Address.SuburbName }},
	{key: "state", get: func(d *form.Data) *string { return &d.Address.State }},
	{key: "post_code", get: func(d *form.Data) *string { return &d.Address.PostCode }},
	{key: "google_map", get: func(d *form.Data) *string { return &d.Address.GoogleMap }},
	{key: "lga", get: func(d *form.Data) *string { return &d.Address.LGA }},

	{key: "contract_type", get: func(d *form.Data) *string { return &d.DecisionTree.ContractTypeSimplified }},
	{key: "sourcer", get: func(d *form.Data) *string { return &d.Sourcer }},
	{key: "packager", get: func(d *form.Data) *string { return &d.Packager }},
	{key: "deal_type", get: func(d *form.Data) *string { return &d.DealType }},
	{key: "review_date", get: func(d *form.Data) *string { return &d.ReviewDate }},
	{key: "status", get: func(d *form.Data) *string { return &d.Status }},
	{key: "folder_link", get: func(d *form.Data) *string { return &d.FolderLink }},
	{key: "selling_agent", get: func(d *form.Data) *string { return &d.SellingAgent }},
	{key: "message_for_ba", get: func(d *form.Data) *string { return &d.MessageForBA }},
	{key: "attachments_additional_dialogue", get: func(d *form.Data) *string { return &d.AttachmentsAdditionalDialogue }},

	{key: "zoning", get: func(d *form.Data) *string { return &d.RiskOverlays.Zoning }},
	{key: "flood", kind: yesNo, get: func(d *form.Data) *string { return &d.RiskOverlays.Flood }},
	{key: "flood_dialogue", get: func(d *form.Data) *string { return &d.RiskOverlays.FloodDialogue }},
	{key: "bushfire", kind: yesNo, get: func(d *form.Data) *string { return &d.RiskOverlays.Bushfire }},
	{key: "bushfire_dialogue", get: func(d *form.Data) *string { return &d.RiskOverlays.BushfireDialogue }},
	{key: "mining", kind: yesNo, get: func(d *form.Data) *string { return &d.RiskOverlays.Mining }},
	// The GHL field key is misspelt.
	{key: "mining_dialogie", get: func(d *form.Data) *string { return &d.RiskOverlays.MiningDialogue }, aliases: []string{"mining_dialogue"}},
	{key: "other_overlay", kind: yesNo, get: func(d *form.Data) *string { return &d.RiskOverlays.OtherOverlay }},
	{key: "other_overlay_dialogue", get: func(d *form.Data) *string { return &d.RiskOverlays.OtherOverlayDialogue }},
	{key: "special_infrastructure", kind: yesNo, get: func(d *form.Data) *string { return &d.RiskOverlays.SpecialInfrastructure }},
	{key: "special_infrastructure_dialogue", get: func(d *form.Data) *string { return &d.RiskOverlays.SpecialInfrastructureDialogue }},
	{key: "due_diligence_acceptance", kind: yesNo, get: func(d *form.Data) *string { return &d.RiskOverlays.DueDiligenceAcceptance }},

	{key: "beds_primary", get: func(d *form.Data) *string { return &d.PropertyDescription.BedsPrimary }},
	{key: "beds_additional__secondary__dual_key", get: func(d *form.Data) *string { return &d.PropertyDescription.BedsSecondary }},
	{key: "bath_primary", kind: bath, get: func(d *form.Data) *string { return &d.PropertyDescription.BathPrimary }},
	{key: "baths_additional__secondary__dual_key", kind: bath, get: func(d *form.Data) *string { return &d.PropertyDescription.BathSecondary },
		aliases: []string{"baths_additional_secondary_dual_key", "bathsSecondary", "bathSecondary"}},
	{key: "garage_primary", get: func(d *form.Data) *string { return &d.PropertyDescription.GaragePrimary }},
	{key: "garage_additional__secondary__dual_key", get: func(d *form.Data) *string { return &d.PropertyDescription.GarageSecondary }},
	{key: "carport_primary", get: func(d *form.Data) *string { return &d.PropertyDescription.CarportPrimary }},
	{key: "carport_additional__secondary__dual_key", get: func(d *form.Data) *string { return &d.PropertyDescription.CarportSecondary }},
	{key: "carspace_primary", get: func(d *form.Data) *string { return &d.PropertyDescription.CarspacePrimary }},
	{key: "carspace_additional__secondary__dual_key", get: func(d *form.Data) *string { return &d.PropertyDescription.CarspaceSecondary }},
	{key: "year_built", get: func(d *form.Data) *string { return &d.PropertyDescription.YearBuilt }},
	{key: "land_registration", get: func(d *form.Data) *string { return &d.PropertyDescription.LandRegistration }},
	{key: "land_size", get: func(d *form.Data) *string { return &d.PropertyDescription.LandSize }},
	{key: "build_size", get: func(d *form.Data) *string { return &d.PropertyDescription.BuildSize }},
	{key: "title", get: func(d *form.Data) *string { return &d.PropertyDescription.Title }},
	{key: "body_corp__per_quarter", get: func(d *form.Data) *string { return &d.PropertyDescription.BodyCorpPerQuarter }},
	{key: "body_corp_description", get: func(d *form.Data) *string { return &d.PropertyDescription.BodyCorpDescription }},
	{key: "does_this_property_have_2_dwellings", get: func(d *form.Data) *string { return &d.PropertyDescription.DoesThisPropertyHave2Dwellings }},
	{key: "property_description_additional_dialogue", get: func(d *form.Data) *string { return &d.PropertyDescription.AdditionalDialogue }},

	{key: "asking", get: func(d *form.Data) *string { return &d.PurchasePrice.Asking }},
	{key: "asking_text", get: func(d *form.Data) *string { return &d.PurchasePrice.AskingText }},
	{key: "acceptable_acquisition__from", get: func(d *form.Data) *string { return &d.PurchasePrice.AcceptableAcquisitionFrom }},
	{key: "acceptable_acquisition__to", get: func(d *form.Data) *string { return &d.PurchasePrice.AcceptableAcquisitionTo }},
	{key: "comparable_sales", get: func(d *form.Data) *string { return &d.PurchasePrice.ComparableSales }},
	{key: "land_price", get: func(d *form.Data) *string { return &d.PurchasePrice.LandPrice }},
	{key: "build_price", get: func(d *form.Data) *string { return &d.PurchasePrice.BuildPrice }},
	{key: "total_price", get: func(d *form.Data) *string { return &d.PurchasePrice.TotalPrice }},
	{key: "cashback_rebate_value", get: func(d *form.Data) *string { return &d.PurchasePrice.CashbackRebateValue }},
	{key: "cashback_rebate_type", get: func(d *form.Data) *string { return &d.PurchasePrice.CashbackRebateType }},
	{key: "purchase_price_additional_dialogue", get: func(d *form.Data) *string { return &d.PurchasePrice.AdditionalDialogue }},

	{key: "occupancy", get: func(d *form.Data) *string { return &d.RentalAssessment.Occupancy }, aliases: []string{"occupancy_primary"}},
	{key: "current_rent_primary__per_week", get: func(d *form.Data) *string { return &d.RentalAssessment.CurrentRentPrimary }},
	{key: "current_rent_secondary__per_week", get: func(d *form.Data) *string { return &d.RentalAssessment.CurrentRentSecondary }},
	{key: "expiry_primary", get: func(d *form.Data) *string { return &d.RentalAssessment.ExpiryPrimary }},
	{key: "expiry_secondary", get: func(d *form.Data) *string { return &d.RentalAssessment.ExpirySecondary }},
	{key: "rent_appraisal_primary_from", get: func(d *form.Data) *string { return &d.RentalAssessment.RentAppraisalPrimaryFrom }, aliases: []string{"rent_appraisal_primary"}},
	{key: "rent_appraisal_primary_to", get: func(d *form.Data) *string { return &d.RentalAssessment.RentAppraisalPrimaryTo }, aliases: []string{"rent_appraisal_primary"}},
	{key: "rent_appraisal_secondary_from", get: func(d *form.Data) *string { return &d.RentalAssessment.RentAppraisalSecondaryFrom }, aliases: []string{"rent_appraisal_secondary"}},
	{key: "rent_appraisal_secondary_to", get: func(d *form.Data) *string { return &d.RentalAssessment.RentAppraisalSecondaryTo }, aliases: []string{"rent_appraisal_secondary"}},
	{key: "yield", get: func(d *form.Data) *string { return &d.RentalAssessment.Yield }},
	{key: "appraised_yield", get: func(d *form.Data) *string { return &d.RentalAssessment.AppraisedYield }},
	{key: "rental_assessment_additional_dialogue", get: func(d *form.Data) *string { return &d.RentalAssessment.AdditionalDialogue }},

	{key: "median_price_change__3_months", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.MedianPriceChange3Months }},
	{key: "median_price_change__1_year", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.MedianPriceChange1Year }},
	{key: "median_price_change__3_year", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.MedianPriceChange3Year }},
	{key: "median_price_change__5_year", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.MedianPriceChange5Year }},
	{key: "median_yield", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.MedianYield }},
	{key: "median_rent_change__1_year", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.MedianRentChange1Year }},
	{key: "rental_population", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.RentalPopulation }},
	{key: "vacancy_rate", kind: numeric, get: func(d *form.Data) *string { return &d.MarketPerformance.VacancyRate }},
	{key: "market_performance_additional_dialogue", get: func(d *form.Data) *string { return &d.MarketPerformance.AdditionalDialogue },
		aliases: []string{"market_perfornance_additional_dialogue"}},

	{key: "why_this_property", get: func(d *form.Data) *string { return &d.ContentSections.WhyThisProperty }},
	{key: "proximity", get: func(d *form.Data) *string { return &d.ContentSections.Proximity }},
	{key: "investment_highlights", get: func(d *form.Data) *string { return &d.ContentSections.InvestmentHighlights }},

	{key: "agent_name", get: func(d *form.Data) *string { return &d.AgentInfo.AgentName }},
	{key: "agent_mobile", get: func(d *form.Data) *string { return &d.AgentInfo.AgentMobile }},
	{key: "agent_email", get: func(d *form.Data) *string { return &d.AgentInfo.AgentEmail }},
}

var (
	contractTypeKey = regexp.MustCompile(`^\d{2}_`)
	lotPrefix       = regexp.MustCompile(`(?i)^Lot\s+([\d\w]+)`)
	unitPattern     = regexp.MustCompile(`(?i)Units?\s+([^,]+)`)
)

// ToRecord converts a review into GHL record properties. A partial record
// leaves out empty fields so an update never blanks what is already stored;
// a full record sends every field and defaults the review date to today.
func ToRecord(d *form.Data, partial bool, today time.Time) map[string]interface{} {
	rec := make(map[string]interface{}, len(recordFields)+4)
	for _, f := range recordFields {
		v := strings.TrimSpace(*f.get(d))
		switch f.kind {
		case yesNo:
			if n := form.NormalizeYesNo(v); n != "" {
				v = n
			}
		case bath:
			v = strings.Replace(v, ".", "point", 1)
		case numeric:
			if n, ok := parseNumber(v); ok {
				rec[f.key] = n
			}
			continue
		}
		if partial && v == "" {
			continue
		}
		rec[f.key] = v
	}

	if d.DecisionTree.PropertyType != "" || !partial {
		rec["template_type"] = d.TemplateType()
	}
	switch d.DecisionTree.DualOccupancy {
	case "Yes":
		rec["single_or_dual_occupancy"] = "dual_occupancy"
	case "No":
		rec["single_or_dual_occupancy"] = "single_occupancy"
	}
	if !partial && d.ReviewDate == "" {
		rec["review_date"] = today.Format("2006-01-02")
	}

	total, hasTotal := form.ParseCurrency(d.PurchasePrice.TotalPrice)
	if d.IsSplitContract() && !hasTotal {
		land, okLand := form.ParseCurrency(d.PurchasePrice.LandPrice)
		build, okBuild := form.ParseCurrency(d.PurchasePrice.BuildPrice)
		if okLand && okBuild {
			total, hasTotal = land+build, true
			rec["total_price"] = form.FormatAmount(total)
		}
	}
	if strings.EqualFold(d.PurchasePrice.CashbackRebateType, form.RebateCashback) && hasTotal {
		if cashback, ok := form.ParseCurrency(d.PurchasePrice.CashbackRebateValue); ok {
			rec["net_price"] = total - cashback
		}
	}
	return rec
}

// FromRecord rebuilds a review from the properties of a GHL record.
func FromRecord(props map[string]interface{}) *form.Data {
	d := &form.Data{}
	for _, f := range recordFields {
		v := propString(props, append([]string{f.key}, f.aliases...)...)
		switch f.kind {
		case yesNo:
			v = form.NormalizeYesNo(v)
		case bath:
			v = strings.ReplaceAll(strings.ToLower(v), "point", ".")
		}
		*f.get(d) = v
	}

	dt := &d.DecisionTree
	switch d.DealType {
	case "05_established", "03_internal_with_comms", "04_internal_nocomms":
		dt.PropertyType = form.PropertyEstablished
	case "01_hl_comms", "02_single_comms":
		dt.PropertyType, dt.LotType = form.PropertyNew, form.LotIndividual
	}
	if dt.PropertyType == "" {
		switch propString(props, "template_type") {
		case "Project":
			dt.PropertyType, dt.LotType = form.PropertyNew, form.LotMultiple
		case "H&L with Sales Assessment":
			dt.PropertyType, dt.LotType = form.PropertyNew, form.LotIndividual
		case "Standard":
			dt.PropertyType = form.PropertyEstablished
		}
	}
	if contractTypeKey.MatchString(d.DealType) {
		dt.ContractType = d.DealType
	}
	if dt.ContractTypeSimplified != form.SingleContract && dt.ContractTypeSimplified != form.SplitContract {
		dt.ContractTypeSimplified = ""
	}
	occupancy := strings.ToLower(propString(props, "single_or_dual_occupancy"))
	switch {
	case strings.Contains(occupancy, "dual"):
		dt.DualOccupancy = "Yes"
	case strings.Contains(occupancy, "single"):
		dt.DualOccupancy = "No"
	}
	dt.Status = d.Status

	addr := &d.Address
	addr.LotNumber = propString(props, "lot_number")
	if addr.LotNumber == "" {
		if m := lotPrefix.FindStringSubmatch(addr.PropertyAddress); m != nil {
			addr.LotNumber = m[1]
		}
	}
	addr.LotNumberNotApplicable = addr.LotNumber == ""
	addr.UnitNumber = propString(props, "unit_number")
	if addr.UnitNumber == "" {
		if m := unitPattern.FindStringSubmatch(addr.PropertyAddress); m != nil {
			addr.UnitNumber = strings.TrimSpace(m[1])
		}
	}
	addr.HasUnitNumbers = addr.UnitNumber != ""
	return d
}

// parseNumber reads figures like "4.8%" or "1,200". NaN and infinities are
// rejected.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSuffix(strings.TrimSpace(s), "%"), ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func propString(props map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}
