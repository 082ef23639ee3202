package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var parentQuery = regexp.MustCompile(`^'([^']+)' in parents`)

// fakeDrive is an in-memory shared drive behind the Drive v3 files API.
type fakeDrive struct {
	t *testing.T

	mu      sync.Mutex
	files   map[string]*drive.File
	content map[string][]byte
	nextID  int
	calls   []string
}

func newFakeDrive(t *testing.T) *fakeDrive {
	return &fakeDrive{t: t, files: map[string]*drive.File{}, content: map[string][]byte{}}
}

func (f *fakeDrive) add(id, name, mime, parent string) {
	f.files[id] = &drive.File{Id: id, Name: name, MimeType: mime, Parents: []string{parent}}
}

func (f *fakeDrive) newID() string {
	f.nextID++
	return fmt.Sprintf("new-%d", f.nextID)
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	assert.Equal(f.t, "true", r.URL.Query().Get("supportsAllDrives"))
	path := strings.TrimPrefix(r.URL.Path, "/files")
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	switch {
	case r.Method == http.MethodGet && path == "":
		m := parentQuery.FindStringSubmatch(r.URL.Query().Get("q"))
		require.NotNil(f.t, m)
		var out []*drive.File
		for _, file := range f.files {
			if len(file.Parents) > 0 && file.Parents[0] == m[1] {
				out = append(out, file)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
		writeJSON(w, drive.FileList{Files: out})

	case r.Method == http.MethodPost && path == "":
		var meta drive.File
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&meta))
		meta.Id = f.newID()
		meta.WebViewLink = "https://drive.google.com/drive/folders/" + meta.Id
		f.files[meta.Id] = &meta
		writeJSON(w, meta)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/copy"):
		src, ok := f.files[strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/copy")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var meta drive.File
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&meta))
		cp := &drive.File{Id: f.newID(), Name: meta.Name, MimeType: src.MimeType, Parents: meta.Parents}
		f.files[cp.Id] = cp
		writeJSON(w, cp)

	case r.Method == http.MethodGet:
		file, ok := f.files[strings.TrimPrefix(path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write(f.content[file.Id])
			return
		}
		writeJSON(w, file)

	case r.Method == http.MethodPatch:
		file, ok := f.files[strings.TrimPrefix(path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var meta drive.File
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&meta))
		file.Name = meta.Name
		writeJSON(w, file)

	case r.Method == http.MethodDelete:
		delete(f.files, strings.TrimPrefix(path, "/"))
		w.WriteHeader(http.StatusNoContent)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeDrive) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewClient(svc, "shared-drive")
}

func templateDrive(t *testing.T) *fakeDrive {
	f := newFakeDrive(t)
	f.add("tpl", "00 - Master Folder Template", MimeFolder, "properties")
	f.add("tpl-photos", "Photos", MimeFolder, "tpl")
	f.add("tpl-photos-readme", "README", "text/plain", "tpl-photos")
	f.add("tpl-hl", "HL Cashflow", MimeSpreadsheet, "tpl")
	f.add("tpl-split", "Split Contract Calculator", MimeSpreadsheet, "tpl")
	return f
}

func (f *fakeDrive) childNames(parent string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, file := range f.files {
		if len(file.Parents) > 0 && file.Parents[0] == parent {
			names = append(names, file.Name)
		}
	}
	sort.Strings(names)
	return names
}

func TestCopyFolder(t *testing.T) {
	f := templateDrive(t)
	c := newTestClient(t, f)

	folder, err := c.CopyFolder(context.Background(), "tpl", "properties", "9 Bay St, Urangan QLD 4655")
	require.NoError(t, err)
	assert.Equal(t, "9 Bay St, Urangan QLD 4655", folder.Name)
	assert.Equal(t, "https://drive.google.com/drive/folders/"+folder.ID, folder.WebViewLink)

	assert.Equal(t, []string{"HL Cashflow", "Photos", "Split Contract Calculator"}, f.childNames(folder.ID))

	var photosID string
	f.mu.Lock()
	for id, file := range f.files {
		if file.Name == "Photos" && file.Parents[0] == folder.ID {
			photosID = id
		}
	}
	f.mu.Unlock()
	require.NotEmpty(t, photosID)
	assert.Equal(t, []string{"README"}, f.childNames(photosID))
}

func TestCopyFolderRejectsFile(t *testing.T) {
	f := templateDrive(t)
	c := newTestClient(t, f)

	_, err := c.CopyFolder(context.Background(), "tpl-hl", "properties", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a folder")
}

func TestListSpreadsheetsRenameDelete(t *testing.T) {
	f := templateDrive(t)
	c := newTestClient(t, f)
	ctx := context.Background()

	files, err := c.ListSpreadsheets(ctx, "tpl")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "tpl-hl", files[0].ID)

	require.NoError(t, c.Rename(ctx, "tpl-hl", "CF HL spreadsheet (9 Bay St Urangan)"))
	require.NoError(t, c.Delete(ctx, "tpl-split"))
	assert.Equal(t, []string{"CF HL spreadsheet (9 Bay St Urangan)", "Photos"}, f.childNames("tpl"))

	err = c.Rename(ctx, "missing", "x")
	assert.Error(t, err)
}

func TestDownload(t *testing.T) {
	f := templateDrive(t)
	f.add("report", "Fraser Coast.pdf", "application/pdf", "reports")
	f.content["report"] = []byte("%PDF-1.4 report")
	c := newTestClient(t, f)

	data, err := c.Download(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 report", string(data))

	_, err = c.Download(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to download missing")
}
