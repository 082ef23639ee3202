package sheets

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"

	"propertypackaging/internal/form"
	log "propertypackaging/internal/logging"
)

const autofillTab = "'Autofill data'"

// PopulateAutofill fills the "Autofill data" tab of a cashflow spreadsheet.
// Column A holds field labels; the value for each recognised label is written
// to column B of the same row. It returns the number of cells written.
func (c *Client) PopulateAutofill(ctx context.Context, spreadsheetID string, d *form.Data) (int, error) {
	rows, err := c.readRows(ctx, spreadsheetID, autofillTab+"!A:B")
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("tab %s is empty or doesn't exist", autofillTab)
	}

	var updates []*sheets.ValueRange
	for i, row := range rows {
		label := strings.TrimSpace(cell(row, 0))
		if label == "" {
			continue
		}
		if v := AutofillValue(label, d); v != "" {
			updates = append(updates, cellRange(fmt.Sprintf("%s!B%d", autofillTab, i+1), v))
		}
	}
	if len(updates) == 0 {
		log.WithFields(log.Fields{
			"event":          "autofill_empty",
			"spreadsheet_id": spreadsheetID,
		}).Warn("No autofill labels matched the form data")
		return 0, nil
	}
	if err := c.batchUpdate(ctx, spreadsheetID, inputUserEntered, updates); err != nil {
		return 0, err
	}
	return len(updates), nil
}

// AutofillValue is the cell value for an autofill label, or "" when the label
// is not one we fill. Average rent is calculated by the sheet itself.
func AutofillValue(label string, d *form.Data) string {
	l := strings.ToLower(strings.TrimSpace(label))
	pp := d.PurchasePrice
	pd := d.PropertyDescription
	ra := d.RentalAssessment
	dual := d.IsDual()

	switch {
	case strings.Contains(l, "address") && !strings.Contains(l, "state"):
		return d.Address.PropertyAddress
	case strings.Contains(l, "state"):
		return d.Address.State
	case strings.Contains(l, "land cost"):
		return pp.LandPrice
	case strings.Contains(l, "build cost"):
		return pp.BuildPrice
	case strings.Contains(l, "total cost"):
		land, okLand := form.ParseCurrency(pp.LandPrice)
		build, okBuild := form.ParseCurrency(pp.BuildPrice)
		if okLand && okBuild && land != 0 && build != 0 {
			return form.FormatAmount(land + build)
		}
		return pp.TotalPrice
	case strings.Contains(l, "cashback value"):
		if strings.EqualFold(pp.CashbackRebateType, form.RebateCashback) {
			return pp.CashbackRebateValue
		}
		return ""
	case strings.Contains(l, "total bed"):
		return pair(pd.BedsPrimary, pd.BedsSecondary, dual)
	case strings.Contains(l, "total bath"):
		return pair(pd.BathPrimary, pd.BathSecondary, dual)
	case strings.Contains(l, "total garage"):
		return pair(pd.GaragePrimary, pd.GarageSecondary, dual)
	case strings.Contains(l, "low rent"):
		return rentTotal(ra.RentAppraisalPrimaryFrom, ra.RentAppraisalSecondaryFrom, dual)
	case strings.Contains(l, "high rent"):
		return rentTotal(ra.RentAppraisalPrimaryTo, ra.RentAppraisalSecondaryTo, dual)
	}
	return ""
}

func pair(primary, secondary string, dual bool) string {
	if primary == "" {
		primary = "0"
	}
	if !dual {
		return primary
	}
	if secondary == "" {
		secondary = "0"
	}
	return primary + " + " + secondary
}

func rentTotal(primary, secondary string, dual bool) string {
	s, ok := form.ParseCurrency(secondary)
	if !dual || !ok || s <= 0 {
		return primary
	}
	p, _ := form.ParseCurrency(primary)
	return form.FormatAmount(p + s)
}
