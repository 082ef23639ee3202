package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"propertypackaging/internal/drive"
	"propertypackaging/internal/form"
	"propertypackaging/internal/ghl"
	log "propertypackaging/internal/logging"
)

const addressCheckUnavailable = "Could not verify address uniqueness - proceeding with folder creation"

// ghlFailure passes GHL's own status through when it answered with an error.
func ghlFailure(c *gin.Context, err error, fallback string) {
	var apiErr *ghl.APIError
	switch {
	case errors.Is(err, ghl.ErrNotConfigured):
		fail(c, http.StatusInternalServerError, err.Error(), err)
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400:
		fail(c, apiErr.StatusCode, apiErr.Error(), err)
	default:
		fail(c, http.StatusInternalServerError, fallback, err)
	}
}

// CheckAddressHandler asks GHL whether the property already exists. It fails
// open so folder creation is never blocked by the check itself.
func CheckAddressHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddressRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.PropertyAddress) == "" {
			fail(c, http.StatusBadRequest, "Property address is required", nil)
			return
		}

		check := ghl.AddressCheck{MatchingRecords: []interface{}{}, Error: addressCheckUnavailable}
		if svcs.Webhooks != nil {
			check = svcs.Webhooks.CheckAddress(c.Request.Context(), req.PropertyAddress)
		}
		if check.Error != "" {
			log.WithFields(log.Fields{
				"event":   "address_check_failed_open",
				"address": req.PropertyAddress,
				"error":   check.Error,
			}).Warn("Address uniqueness not verified")
		}
		ok(c, "", check)
	}
}

// SubmitPropertyHandler creates a Property Review record in GHL
func SubmitPropertyHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var data form.Data
		if !bindJSON(c, &data) {
			return
		}
		if svcs.Records == nil {
			fail(c, http.StatusInternalServerError, ghl.ErrNotConfigured.Error(), ghl.ErrNotConfigured)
			return
		}

		id, err := svcs.Records.CreateRecord(c.Request.Context(), &data)
		if err != nil {
			ghlFailure(c, err, "Failed to submit property to GHL")
			return
		}
		ok(c, "Property successfully submitted to GHL", gin.H{"recordId": id})
	}
}

// GetPropertyHandler loads a GHL record back into form shape
func GetPropertyHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := strings.TrimSpace(c.Param("recordId"))
		if recordID == "" {
			fail(c, http.StatusBadRequest, "Record ID is required", nil)
			return
		}
		if svcs.Records == nil {
			fail(c, http.StatusInternalServerError, ghl.ErrNotConfigured.Error(), ghl.ErrNotConfigured)
			return
		}

		data, id, err := svcs.Records.GetRecord(c.Request.Context(), recordID)
		if err != nil {
			ghlFailure(c, err, "Failed to fetch property from GHL")
			return
		}
		ok(c, "", gin.H{
			"recordId": id,
			"formData": data,
		})
	}
}

// UpdatePropertyHandler writes the provided form fields to an existing record
func UpdatePropertyHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := strings.TrimSpace(c.Param("recordId"))
		if recordID == "" {
			fail(c, http.StatusBadRequest, "Record ID is required", nil)
			return
		}
		var data form.Data
		if !bindJSON(c, &data) {
			return
		}
		if svcs.Records == nil {
			fail(c, http.StatusInternalServerError, ghl.ErrNotConfigured.Error(), ghl.ErrNotConfigured)
			return
		}

		id, err := svcs.Records.UpdateRecord(c.Request.Context(), recordID, &data)
		if err != nil {
			ghlFailure(c, err, "Failed to update property in GHL")
			return
		}
		ok(c, "Property updated", gin.H{"recordId": id})
	}
}

// PropertySearchHandler finds existing GHL records by address through Make.com
func PropertySearchHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PropertySearchRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.Address) == "" {
			fail(c, http.StatusBadRequest, "Address is required", nil)
			return
		}
		if svcs.Webhooks == nil {
			fail(c, http.StatusInternalServerError, ghl.ErrSearchNotConfigured.Error(), ghl.ErrSearchNotConfigured)
			return
		}

		properties, err := svcs.Webhooks.SearchProperties(c.Request.Context(), req.Address)
		if err != nil {
			var apiErr *ghl.APIError
			msg := err.Error()
			if errors.As(err, &apiErr) {
				msg = "Search failed: " + http.StatusText(apiErr.StatusCode)
			}
			fail(c, http.StatusInternalServerError, msg, err)
			return
		}
		ok(c, "", gin.H{"properties": properties})
	}
}

// StashHandler fetches risk overlays and zoning. Failures still answer 200
// with the manual-entry message so the form can carry on.
func StashHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddressRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.PropertyAddress) == "" {
			fail(c, http.StatusBadRequest, "Property address is required", nil)
			return
		}

		result := ghl.StashResult{Error: true, ErrorMessage: ghl.StashUnavailable, PlanningLinks: []string{}}
		if svcs.Webhooks != nil {
			result = svcs.Webhooks.Stash(c.Request.Context(), req.PropertyAddress)
		}
		c.JSON(http.StatusOK, WebhookResponse{
			Success: !result.Error,
			Data:    result,
			Error:   result.ErrorMessage,
		})
	}
}

// CreatePropertyFolderHandler copies the Drive template for a new property
func CreatePropertyFolderHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req drive.FolderRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.PropertyAddress) == "" {
			fail(c, http.StatusBadRequest, drive.ErrAddressRequired.Error(), nil)
			return
		}
		if svcs.Folders == nil {
			fail(c, http.StatusInternalServerError, drive.ErrNotConfigured.Error(), drive.ErrNotConfigured)
			return
		}

		result, err := svcs.Folders.CreatePropertyFolder(c.Request.Context(), req)
		switch {
		case errors.Is(err, drive.ErrAddressRequired), errors.Is(err, drive.ErrInvalidName):
			fail(c, http.StatusBadRequest, err.Error(), nil)
			return
		case err != nil:
			fail(c, http.StatusInternalServerError, err.Error(), err)
			return
		}
		ok(c, "Property folder created", result)
	}
}

// folderFailure maps the property folder errors onto statuses.
func folderFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, drive.ErrFolderLinkRequired), errors.Is(err, drive.ErrFormRequired), errors.Is(err, drive.ErrInvalidFolderLink):
		fail(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, drive.ErrNoSpreadsheets):
		fail(c, http.StatusNotFound, err.Error(), nil)
	default:
		fail(c, http.StatusInternalServerError, err.Error(), err)
	}
}

// CashflowLinkHandler returns the edit link of a property's cashflow sheet
func CashflowLinkHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CashflowLinkRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.FolderLink) == "" {
			folderFailure(c, drive.ErrFolderLinkRequired)
			return
		}
		if svcs.Folders == nil {
			fail(c, http.StatusInternalServerError, drive.ErrNotConfigured.Error(), drive.ErrNotConfigured)
			return
		}

		sheet, err := svcs.Folders.CashflowSheet(c.Request.Context(), req.FolderLink, req.ContractType)
		if err != nil {
			folderFailure(c, err)
			return
		}
		ok(c, "", sheet)
	}
}

// UpdateSpreadsheetHandler rewrites an existing cashflow sheet from the
// edited form
func UpdateSpreadsheetHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateSpreadsheetRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.FolderLink) == "" {
			folderFailure(c, drive.ErrFolderLinkRequired)
			return
		}
		if req.FormData == nil {
			folderFailure(c, drive.ErrFormRequired)
			return
		}
		if svcs.Folders == nil {
			fail(c, http.StatusInternalServerError, drive.ErrNotConfigured.Error(), drive.ErrNotConfigured)
			return
		}

		sheet, cells, err := svcs.Folders.UpdateSpreadsheet(c.Request.Context(), req.FolderLink, req.FormData)
		if err != nil {
			folderFailure(c, err)
			return
		}
		log.WithFields(log.Fields{
			"event":      "spreadsheet_update_requested",
			"sheet_name": sheet.SheetName,
			"cells":      cells,
		}).Info("Spreadsheet updated")
		ok(c, "Spreadsheet updated successfully", gin.H{
			"sheetName":      sheet.SheetName,
			"sheetId":        sheet.SheetID,
			"spreadsheetUrl": sheet.SpreadsheetURL,
			"cellsWritten":   cells,
		})
	}
}
