// ABOUTME: Spreadsheet pack: create, update, and share Google Sheets
// ABOUTME: Scoped to spreadsheets; share role defaults to reader

package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/errandhq/errand-gateway/internal/providers/sheets"
	"github.com/errandhq/errand-gateway/internal/tools"
)

func registerSheetsPack(registry *tools.Registry, client *sheets.Client) {
	registry.Register(&tools.Descriptor{
		Name:        "create_spreadsheet",
		Description: "Create an empty spreadsheet with the given title",
		Provider:    googleProvider,
		Scope:       ScopeSpreadsheets,
		Params: []tools.Param{
			{Name: "title", Type: tools.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			sheet, err := client.CreateSpreadsheet(ctx, inv.AccessToken, stringParam(inv, "title"))
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{
				"spreadsheet_id":  sheet.ID,
				"spreadsheet_url": sheet.URL,
			})
		},
	})

	registry.Register(&tools.Descriptor{
		Name:        "update_sheet",
		Description: "Write values into a spreadsheet range (A1 notation)",
		Provider:    googleProvider,
		Scope:       ScopeSpreadsheets,
		Params: []tools.Param{
			{Name: "spreadsheet_id", Type: tools.TypeString, Required: true},
			{Name: "range", Type: tools.TypeString, Required: true},
			{Name: "values", Type: tools.TypeList, Required: true},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			rows, err := valueRows(listParam(inv, "values"))
			if err != nil {
				return nil, err
			}
			if err := client.UpdateCells(ctx, inv.AccessToken,
				stringParam(inv, "spreadsheet_id"), stringParam(inv, "range"), rows); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"updated": true, "rows": len(rows)})
		},
	})

	registry.Register(&tools.Descriptor{
		Name:        "share_sheet",
		Description: "Grant a principal access to a spreadsheet",
		Provider:    googleProvider,
		Scope:       ScopeSpreadsheets,
		Params: []tools.Param{
			{Name: "spreadsheet_id", Type: tools.TypeString, Required: true},
			{Name: "principal", Type: tools.TypeString, Required: true},
			{Name: "role", Type: tools.TypeString, Required: false},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			role := stringParam(inv, "role")
			if role == "" {
				role = "reader"
			}
			if err := client.ShareSpreadsheet(ctx, inv.AccessToken,
				stringParam(inv, "spreadsheet_id"), stringParam(inv, "principal"), role); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"shared_with": stringParam(inv, "principal"), "role": role})
		},
	})
}

// valueRows normalizes the values parameter into rows of cells. A flat
// list becomes a single row.
func valueRows(values []any) ([][]any, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("values must not be empty")
	}
	if _, nested := values[0].([]any); !nested {
		return [][]any{values}, nil
	}
	rows := make([][]any, len(values))
	for i, v := range values {
		row, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("row %d is not a list", i)
		}
		rows[i] = row
	}
	return rows, nil
}
