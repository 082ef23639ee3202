package drive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"propertypackaging/internal/form"
	log "propertypackaging/internal/logging"
)

var (
	ErrFolderLinkRequired = errors.New("Folder link is required")
	ErrFormRequired       = errors.New("Form data is required")
	ErrInvalidFolderLink  = errors.New("Invalid folder link. Could not extract folder ID.")
	ErrNoSpreadsheets     = errors.New("No Google Sheets found in folder")
)

var linkIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
}

// IDFromLink extracts the file or folder ID from a Drive URL. It returns ""
// when the link has none.
func IDFromLink(link string) string {
	for _, re := range linkIDPatterns {
		if m := re.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	return ""
}

func SpreadsheetLink(id string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", id)
}

type CashflowSheet struct {
	SheetID        string `json:"sheetId"`
	SheetName      string `json:"sheetName"`
	SpreadsheetURL string `json:"spreadsheetUrl"`
}

// CashflowSheet finds the spreadsheet to open in a property folder: the
// contract sheet matching contractType, else the first spreadsheet.
func (s *FolderService) CashflowSheet(ctx context.Context, folderLink, contractType string) (CashflowSheet, error) {
	if strings.TrimSpace(folderLink) == "" {
		return CashflowSheet{}, ErrFolderLinkRequired
	}
	if s.files == nil || s.config.SharedDriveID == "" {
		return CashflowSheet{}, ErrNotConfigured
	}
	folderID := IDFromLink(folderLink)
	if folderID == "" {
		return CashflowSheet{}, ErrInvalidFolderLink
	}

	files, err := s.files.ListSpreadsheets(ctx, folderID)
	if err != nil {
		return CashflowSheet{}, err
	}
	if len(files) == 0 {
		return CashflowSheet{}, ErrNoSpreadsheets
	}
	f := pickContractSheet(files, contractType)
	log.WithFields(log.Fields{
		"event":     "cashflow_sheet_selected",
		"folder_id": folderID,
		"sheets":    len(files),
		"sheet":     f.Name,
	}).Debug("Selected cashflow spreadsheet")
	return CashflowSheet{SheetID: f.ID, SheetName: f.Name, SpreadsheetURL: SpreadsheetLink(f.ID)}, nil
}

// UpdateSpreadsheet rewrites the autofill values of a property's existing
// cashflow sheet from the current form.
func (s *FolderService) UpdateSpreadsheet(ctx context.Context, folderLink string, d *form.Data) (CashflowSheet, int, error) {
	if strings.TrimSpace(folderLink) == "" {
		return CashflowSheet{}, 0, ErrFolderLinkRequired
	}
	if d == nil {
		return CashflowSheet{}, 0, ErrFormRequired
	}
	if s.autofill == nil {
		return CashflowSheet{}, 0, ErrNotConfigured
	}
	sheet, err := s.CashflowSheet(ctx, folderLink, d.DecisionTree.ContractTypeSimplified)
	if err != nil {
		return CashflowSheet{}, 0, err
	}

	n, err := s.autofill.PopulateAutofill(ctx, sheet.SheetID, d)
	if err != nil {
		return CashflowSheet{}, 0, fmt.Errorf("failed to update %s: %w", sheet.SheetName, err)
	}
	log.WithFields(log.Fields{
		"event":    "spreadsheet_updated",
		"sheet_id": sheet.SheetID,
		"cells":    n,
	}).Info("Updated property spreadsheet")
	return sheet, n, nil
}

func pickContractSheet(files []File, contractType string) File {
	var want string
	switch strings.ToLower(strings.TrimSpace(contractType)) {
	case strings.ToLower(form.SplitContract):
		want = "split contract"
	case strings.ToLower(form.SingleContract):
		want = "single contract"
	}
	if want != "" {
		if f, ok := findByName(files, want, nil); ok {
			return f
		}
	}
	return files[0]
}
