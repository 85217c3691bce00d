// ABOUTME: Tests for the Sheets/Drive client against stub API servers
// ABOUTME: Covers create, folder move, cell updates, and permission grants

package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newTestClient(t *testing.T, folderID string) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		requests = append(requests, rec)

		if r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets" {
			fmt.Fprint(w, `{"spreadsheetId":"sheet-1","spreadsheetUrl":"https://docs.google.com/spreadsheets/d/sheet-1"}`)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		FolderID:      folderID,
		SheetsBaseURL: srv.URL,
		DriveBaseURL:  srv.URL,
	})
	return client, &requests
}

func TestCreateSpreadsheet(t *testing.T) {
	client, requests := newTestClient(t, "")

	sheet, err := client.CreateSpreadsheet(context.Background(), "tok", "Budget 2026")
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", sheet.ID)
	assert.Contains(t, sheet.URL, "sheet-1")

	require.Len(t, *requests, 1)
	props := (*requests)[0].body["properties"].(map[string]any)
	assert.Equal(t, "Budget 2026", props["title"])
}

func TestCreateSpreadsheetMovesIntoFolder(t *testing.T) {
	client, requests := newTestClient(t, "folder-9")

	_, err := client.CreateSpreadsheet(context.Background(), "tok", "Budget")
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	move := (*requests)[1]
	assert.Equal(t, http.MethodPatch, move.method)
	assert.Equal(t, "/drive/v3/files/sheet-1", move.path)
	assert.Contains(t, move.query, "addParents=folder-9")
	assert.Contains(t, move.query, "removeParents=root")
}

func TestUpdateCells(t *testing.T) {
	client, requests := newTestClient(t, "")

	err := client.UpdateCells(context.Background(), "tok", "sheet-1", "Sheet1!A1:B2",
		[][]any{{"Item", "Cost"}, {"Tea", 4.5}})
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	update := (*requests)[0]
	assert.Equal(t, http.MethodPut, update.method)
	assert.Equal(t, "/v4/spreadsheets/sheet-1/values/Sheet1!A1:B2", update.path)
	assert.Contains(t, update.query, "valueInputOption=USER_ENTERED")
	assert.Equal(t, "Sheet1!A1:B2", update.body["range"])
	values := update.body["values"].([]any)
	require.Len(t, values, 2)
}

func TestShareSpreadsheetDefaultsToReader(t *testing.T) {
	client, requests := newTestClient(t, "")

	err := client.ShareSpreadsheet(context.Background(), "tok", "sheet-1", "friend@example.com", "")
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	grant := (*requests)[0]
	assert.Equal(t, "/drive/v3/files/sheet-1/permissions", grant.path)
	assert.Equal(t, "user", grant.body["type"])
	assert.Equal(t, "reader", grant.body["role"])
	assert.Equal(t, "friend@example.com", grant.body["emailAddress"])
}

func TestShareSpreadsheetAnyone(t *testing.T) {
	client, requests := newTestClient(t, "")

	err := client.ShareSpreadsheet(context.Background(), "tok", "sheet-1", "anyone", "writer")
	require.NoError(t, err)

	grant := (*requests)[0]
	assert.Equal(t, "anyone", grant.body["type"])
	assert.Equal(t, "writer", grant.body["role"])
	_, hasEmail := grant.body["emailAddress"]
	assert.False(t, hasEmail)
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"insufficient permissions"}}`)
	}))
	defer srv.Close()
	client := NewClient(Config{SheetsBaseURL: srv.URL, DriveBaseURL: srv.URL})

	_, err := client.CreateSpreadsheet(context.Background(), "tok", "X")
	require.ErrorIs(t, err, ErrAPIError)
	assert.Contains(t, err.Error(), "403")
}
