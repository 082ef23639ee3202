// Package drive manages property folders on the packaging shared drive.
package drive

import (
	"context"
	"fmt"
	"io"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
	"propertypackaging/internal/sheets"
)

const (
	MimeFolder      = "application/vnd.google-apps.folder"
	MimeSpreadsheet = "application/vnd.google-apps.spreadsheet"

	serviceName = "google_drive"
	listFields  = "nextPageToken, files(id, name, mimeType)"

	// MaxDownload bounds file downloads.
	MaxDownload = 32 << 20
)

type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type Folder struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WebViewLink string `json:"webViewLink"`
}

// Client wraps the Drive files API. Every call sets supportsAllDrives so
// shared drive items are visible.
type Client struct {
	svc     *drive.Service
	driveID string
}

func NewClient(svc *drive.Service, driveID string) *Client {
	return &Client{svc: svc, driveID: driveID}
}

// Connect builds a Drive client from the same service account used for Sheets.
func Connect(ctx context.Context, credentialsJSON, driveID string, opts ...option.ClientOption) (*Client, error) {
	creds, err := sheets.Credentials(ctx, credentialsJSON, sheets.ScopeSpreadsheets, sheets.ScopeDrive)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, append([]option.ClientOption{option.WithCredentials(creds)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return NewClient(svc, driveID), nil
}

func observe(start time.Time, err error) {
	metrics.ObserveUpstream(serviceName, start, err)
}

func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (folder Folder, err error) {
	start := time.Now()
	defer func() { observe(start, err) }()

	meta := &drive.File{Name: name, MimeType: MimeFolder}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := c.svc.Files.Create(meta).
		SupportsAllDrives(true).
		Fields("id, name, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return Folder{}, fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	if f.Id == "" {
		return Folder{}, fmt.Errorf("failed to create folder %q: no ID returned", name)
	}
	if f.Name == "" {
		f.Name = name
	}
	return Folder{ID: f.Id, Name: f.Name, WebViewLink: f.WebViewLink}, nil
}

// List returns the non-trashed children of a folder.
func (c *Client) List(ctx context.Context, folderID string) (files []File, err error) {
	start := time.Now()
	defer func() { observe(start, err) }()

	call := c.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", folderID)).
		Fields(listFields).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)
	if c.driveID != "" {
		call = call.DriveId(c.driveID).Corpora("drive")
	}
	err = call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			files = append(files, File{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}
	return files, nil
}

func (c *Client) ListSpreadsheets(ctx context.Context, folderID string) ([]File, error) {
	files, err := c.List(ctx, folderID)
	if err != nil {
		return nil, err
	}
	var out []File
	for _, f := range files {
		if f.MimeType == MimeSpreadsheet {
			out = append(out, f)
		}
	}
	return out, nil
}

// CopyFile copies a file into parentID, keeping its name.
func (c *Client) CopyFile(ctx context.Context, file File, parentID string) (copied File, err error) {
	start := time.Now()
	defer func() { observe(start, err) }()

	f, err := c.svc.Files.Copy(file.ID, &drive.File{Name: file.Name, Parents: []string{parentID}}).
		SupportsAllDrives(true).
		Fields("id, name, mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return File{}, fmt.Errorf("failed to copy %q: %w", file.Name, err)
	}
	return File{ID: f.Id, Name: f.Name, MimeType: f.MimeType}, nil
}

// CopyFolder recreates the folder tree under srcID as a new folder called
// name inside parentID, copying every file.
func (c *Client) CopyFolder(ctx context.Context, srcID, parentID, name string) (Folder, error) {
	src, err := c.get(ctx, srcID, "id, name, mimeType")
	if err != nil {
		return Folder{}, err
	}
	if src.MimeType != MimeFolder {
		return Folder{}, fmt.Errorf("template %s is not a folder", srcID)
	}

	folder, err := c.copyTree(ctx, srcID, parentID, name)
	if err != nil {
		return Folder{}, err
	}
	if folder.WebViewLink == "" {
		if folder.WebViewLink, err = c.FolderLink(ctx, folder.ID); err != nil {
			return Folder{}, err
		}
	}
	return folder, nil
}

func (c *Client) copyTree(ctx context.Context, srcID, parentID, name string) (Folder, error) {
	folder, err := c.CreateFolder(ctx, name, parentID)
	if err != nil {
		return Folder{}, err
	}
	items, err := c.List(ctx, srcID)
	if err != nil {
		return Folder{}, err
	}
	for _, item := range items {
		if item.MimeType == MimeFolder {
			if _, err := c.copyTree(ctx, item.ID, folder.ID, item.Name); err != nil {
				return Folder{}, err
			}
			continue
		}
		if _, err := c.CopyFile(ctx, item, folder.ID); err != nil {
			return Folder{}, err
		}
	}
	return folder, nil
}

func (c *Client) get(ctx context.Context, fileID string, fields googleapi.Field) (f *drive.File, err error) {
	start := time.Now()
	defer func() { observe(start, err) }()

	f, err = c.svc.Files.Get(fileID).SupportsAllDrives(true).Fields(fields).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", fileID, err)
	}
	return f, nil
}

// FolderLink returns the browser link for a folder.
func (c *Client) FolderLink(ctx context.Context, folderID string) (string, error) {
	f, err := c.get(ctx, folderID, "webViewLink")
	if err != nil {
		return "", err
	}
	return f.WebViewLink, nil
}

func (c *Client) Rename(ctx context.Context, fileID, name string) (err error) {
	start := time.Now()
	defer func() { observe(start, err) }()

	if _, err = c.svc.Files.Update(fileID, &drive.File{Name: name}).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to rename %s: %w", fileID, err)
	}
	log.WithFields(log.Fields{
		"event":   "file_renamed",
		"file_id": fileID,
		"name":    name,
	}).Debug("Renamed drive file")
	return nil
}

func (c *Client) Delete(ctx context.Context, fileID string) (err error) {
	start := time.Now()
	defer func() { observe(start, err) }()

	if err = c.svc.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", fileID, err)
	}
	return nil
}

// Download reads a file's content, failing once it passes MaxDownload bytes.
func (c *Client) Download(ctx context.Context, fileID string) (data []byte, err error) {
	start := time.Now()
	defer func() { observe(start, err) }()

	resp, err := c.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(io.LimitReader(resp.Body, MaxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileID, err)
	}
	if len(data) > MaxDownload {
		return nil, fmt.Errorf("file %s is larger than %d bytes", fileID, MaxDownload)
	}
	return data, nil
}
