// ABOUTME: Google Sheets and Drive REST client for spreadsheet tools
// ABOUTME: Create, update, move-to-folder, and share with injectable base URLs

package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrAPIError indicates a non-2xx answer from the Sheets or Drive API.
var ErrAPIError = errors.New("sheets api error")

// Spreadsheet describes a created spreadsheet.
type Spreadsheet struct {
	ID  string `json:"spreadsheetId"`
	URL string `json:"spreadsheetUrl"`
}

// Config contains construction options for the Client.
type Config struct {
	FolderID      string // optional Drive folder to move new spreadsheets into
	SheetsBaseURL string // default https://sheets.googleapis.com
	DriveBaseURL  string // default https://www.googleapis.com
	HTTPClient    *http.Client
}

// Client manipulates spreadsheets through the Sheets API and their
// placement and sharing through the Drive API.
type Client struct {
	folderID  string
	sheetsURL string
	driveURL  string
	client    *http.Client
}

// NewClient creates a Sheets/Drive client.
func NewClient(cfg Config) *Client {
	if cfg.SheetsBaseURL == "" {
		cfg.SheetsBaseURL = "https://sheets.googleapis.com"
	}
	if cfg.DriveBaseURL == "" {
		cfg.DriveBaseURL = "https://www.googleapis.com"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		folderID:  cfg.FolderID,
		sheetsURL: cfg.SheetsBaseURL,
		driveURL:  cfg.DriveBaseURL,
		client:    cfg.HTTPClient,
	}
}

// do sends an authorized JSON request and decodes a JSON response.
func (c *Client) do(ctx context.Context, token, method, rawURL string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: status %d: %s",
			ErrAPIError, method, rawURL, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// CreateSpreadsheet creates an empty spreadsheet with the given title.
// When a Drive folder is configured the file is moved into it, so
// spreadsheets the agent creates stay collected in one place.
func (c *Client) CreateSpreadsheet(ctx context.Context, token, title string) (*Spreadsheet, error) {
	var sheet Spreadsheet
	err := c.do(ctx, token, http.MethodPost, c.sheetsURL+"/v4/spreadsheets", map[string]any{
		"properties": map[string]string{"title": title},
	}, &sheet)
	if err != nil {
		return nil, err
	}

	if c.folderID != "" {
		moveURL := fmt.Sprintf("%s/drive/v3/files/%s?addParents=%s&removeParents=root",
			c.driveURL, sheet.ID, url.QueryEscape(c.folderID))
		if err := c.do(ctx, token, http.MethodPatch, moveURL, map[string]any{}, nil); err != nil {
			return nil, fmt.Errorf("moving spreadsheet to folder: %w", err)
		}
	}
	return &sheet, nil
}

// UpdateCells writes a rectangular block of values at an A1-notation range.
func (c *Client) UpdateCells(ctx context.Context, token, spreadsheetID, a1Range string, values [][]any) error {
	updateURL := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?valueInputOption=USER_ENTERED",
		c.sheetsURL, spreadsheetID, url.PathEscape(a1Range))
	return c.do(ctx, token, http.MethodPut, updateURL, map[string]any{
		"range":  a1Range,
		"values": values,
	}, nil)
}

// ShareSpreadsheet grants a principal access to a spreadsheet via a
// Drive permission. An empty role defaults to "reader"; the principal
// "anyone" creates a link-accessible permission instead of a user grant.
func (c *Client) ShareSpreadsheet(ctx context.Context, token, spreadsheetID, principal, role string) error {
	if role == "" {
		role = "reader"
	}
	permission := map[string]string{
		"type": "user",
		"role": role,
	}
	if principal == "anyone" {
		permission["type"] = "anyone"
	} else {
		permission["emailAddress"] = principal
	}

	shareURL := fmt.Sprintf("%s/drive/v3/files/%s/permissions?sendNotificationEmail=false",
		c.driveURL, spreadsheetID)
	return c.do(ctx, token, http.MethodPost, shareURL, permission, nil)
}
