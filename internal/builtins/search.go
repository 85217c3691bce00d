// ABOUTME: Search pack: document queries against the retrieval index
// ABOUTME: Unscoped; the index is local to the gateway

package builtins

import (
	"context"
	"encoding/json"

	"github.com/errandhq/errand-gateway/internal/retrieval"
	"github.com/errandhq/errand-gateway/internal/tools"
)

func registerSearchPack(registry *tools.Registry, index *retrieval.Index) {
	registry.Register(&tools.Descriptor{
		Name:        "search_documents",
		Description: "Search ingested documents for passages relevant to a query",
		Params: []tools.Param{
			{Name: "query", Type: tools.TypeString, Required: true},
			{Name: "k", Type: tools.TypeInt, Required: false},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			k := int(intParam(inv, "k", 5))
			matches := index.Query(stringParam(inv, "query"), k)

			type hit struct {
				DocumentID string  `json:"document_id"`
				Offset     int     `json:"offset"`
				Content    string  `json:"content"`
				Score      float64 `json:"score"`
			}
			hits := make([]hit, len(matches))
			for i, m := range matches {
				hits[i] = hit{DocumentID: m.DocumentID, Offset: m.Offset, Content: m.Content, Score: m.Score}
			}
			return json.Marshal(map[string]any{"matches": hits})
		},
	})
}
