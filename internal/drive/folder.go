package drive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"propertypackaging/internal/address"
	"propertypackaging/internal/form"
	log "propertypackaging/internal/logging"
)

var (
	ErrNotConfigured   = errors.New("Google Drive configuration is missing. Required environment variables: GOOGLE_DRIVE_SHARED_DRIVE_ID, GOOGLE_DRIVE_TEMPLATE_FOLDER_ID, GOOGLE_DRIVE_PROPERTIES_FOLDER_ID")
	ErrAddressRequired = errors.New("Property address is required")
	ErrInvalidName     = errors.New("Property address does not produce a valid folder name")
)

// Files is the subset of Drive that folder creation needs.
type Files interface {
	CopyFolder(ctx context.Context, srcID, parentID, name string) (Folder, error)
	ListSpreadsheets(ctx context.Context, folderID string) ([]File, error)
	Rename(ctx context.Context, fileID, name string) error
	Delete(ctx context.Context, fileID string) error
}

// Autofiller writes form values into a cashflow spreadsheet.
type Autofiller interface {
	PopulateAutofill(ctx context.Context, spreadsheetID string, d *form.Data) (int, error)
}

type FolderConfig struct {
	SharedDriveID      string
	TemplateFolderID   string
	PropertiesFolderID string
}

func (c FolderConfig) complete() bool {
	return c.SharedDriveID != "" && c.TemplateFolderID != "" && c.PropertiesFolderID != ""
}

type FolderRequest struct {
	PropertyAddress string     `json:"propertyAddress"`
	FormData        *form.Data `json:"formData,omitempty"`
}

type FolderResult struct {
	FolderID   string `json:"folderId"`
	FolderLink string `json:"folderLink"`
	FolderName string `json:"folderName"`
}

// FolderService creates property folders from the master template.
type FolderService struct {
	files    Files
	autofill Autofiller
	config   FolderConfig
}

func NewFolderService(files Files, autofill Autofiller, config FolderConfig) *FolderService {
	return &FolderService{files: files, autofill: autofill, config: config}
}

// CreatePropertyFolder copies the template folder into the properties folder.
// With form data it then tidies the copied spreadsheets: the contract sheet
// that does not apply is deleted and the HL cashflow sheet is renamed and
// autofilled. Spreadsheet failures never fail the folder creation.
func (s *FolderService) CreatePropertyFolder(ctx context.Context, req FolderRequest) (FolderResult, error) {
	if strings.TrimSpace(req.PropertyAddress) == "" {
		return FolderResult{}, ErrAddressRequired
	}
	if s.files == nil || !s.config.complete() {
		return FolderResult{}, ErrNotConfigured
	}

	parts := address.Parts{PropertyAddress: req.PropertyAddress}
	if req.FormData != nil {
		parts = req.FormData.Address.Parts()
		parts.PropertyAddress = req.PropertyAddress
	}
	name := address.FolderName(parts)
	if !address.ValidFolderName(name) {
		return FolderResult{}, ErrInvalidName
	}

	folder, err := s.files.CopyFolder(ctx, s.config.TemplateFolderID, s.config.PropertiesFolderID, name)
	if err != nil {
		return FolderResult{}, fmt.Errorf("failed to copy template folder: %w", err)
	}
	log.WithFields(log.Fields{
		"event":     "folder_created",
		"folder_id": folder.ID,
		"name":      name,
	}).Info("Created property folder")

	if req.FormData != nil {
		s.prepareSpreadsheets(ctx, folder.ID, req.FormData)
	}
	return FolderResult{FolderID: folder.ID, FolderLink: folder.WebViewLink, FolderName: name}, nil
}

func (s *FolderService) prepareSpreadsheets(ctx context.Context, folderID string, d *form.Data) {
	logger := log.WithFields(log.Fields{"folder_id": folderID})

	files, err := s.files.ListSpreadsheets(ctx, folderID)
	if err != nil {
		logger.WithField("event", "sheet_processing_failed").WithError(err).Warn("Could not list spreadsheets")
		return
	}
	if len(files) == 0 {
		logger.WithField("event", "no_spreadsheets").Warn("No spreadsheets found in property folder")
		return
	}

	deleted := map[string]bool{}
	var unwanted string
	switch strings.ToLower(strings.TrimSpace(d.DecisionTree.ContractTypeSimplified)) {
	case strings.ToLower(form.SingleContract):
		unwanted = "split contract"
	case strings.ToLower(form.SplitContract):
		unwanted = "single contract"
	}
	if unwanted != "" {
		if f, ok := findByName(files, unwanted, deleted); ok {
			if err := s.files.Delete(ctx, f.ID); err != nil {
				logger.WithField("event", "sheet_delete_failed").WithError(err).Warn("Could not delete " + f.Name)
			} else {
				deleted[f.ID] = true
			}
		}
	}

	hl, ok := findByName(files, "hl", deleted)
	if !ok {
		logger.WithField("event", "hl_sheet_missing").Warn("HL sheet not found in folder")
		return
	}
	newName := fmt.Sprintf("CF HL spreadsheet (%s)", d.Address.Street())
	if err := s.files.Rename(ctx, hl.ID, newName); err != nil {
		logger.WithField("event", "sheet_rename_failed").WithError(err).Warn("Could not rename HL sheet")
		return
	}
	if s.autofill == nil {
		return
	}
	n, err := s.autofill.PopulateAutofill(ctx, hl.ID, d)
	if err != nil {
		logger.WithField("event", "autofill_failed").WithError(err).Warn("Could not populate HL sheet")
		return
	}
	logger.WithField("event", "autofill_done").WithField("cells", n).Info("Populated HL sheet")
}

// findByName returns the first file whose name contains substr, ignoring case.
func findByName(files []File, substr string, skip map[string]bool) (File, bool) {
	for _, f := range files {
		if !skip[f.ID] && strings.Contains(strings.ToLower(f.Name), substr) {
			return f, true
		}
	}
	return File{}, false
}
